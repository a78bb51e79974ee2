// Package publishers builds typed events, resolves their channels and hands
// them to the broker. One publisher per event family; all of them share the
// connection gate and publish instrumentation in publisher.
package publishers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"neostack/eventservice/internal/broker"
	"neostack/eventservice/internal/events"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/pkg/logging"
)

// Observer is notified synchronously after each publish attempt: with the
// event on success, or with the wrapped error under type "error" on failure.
type Observer func(eventType string, event any)

// publisher carries the state every event publisher shares: the broker
// client, the initialized gate and the observer list.
type publisher struct {
	name    string
	client  broker.Client
	metrics *metrics.Metrics
	logger  logging.Logger

	mu          sync.Mutex
	initialized bool
	observers   []Observer

	now func() time.Time
}

func newPublisher(name string, client broker.Client, m *metrics.Metrics, logger logging.Logger) publisher {
	return publisher{
		name:    name,
		client:  client,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
}

// Connect opens the broker connection and arms the publisher. Publishing
// before Connect fails with ErrNotInitialized.
func (p *publisher) Connect(ctx context.Context) error {
	start := p.now()
	err := p.client.Connect(ctx)
	if p.metrics != nil {
		p.metrics.TrackConnectionAttempt(err == nil)
		p.metrics.TrackConnection(time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("connect %s publisher: %w", p.name, err)
	}

	p.mu.Lock()
	p.initialized = true
	p.mu.Unlock()

	p.logger.WithField("publisher", p.name).Info("Publisher initialized")
	return nil
}

// Close tears the publisher down. It cannot publish again afterwards.
func (p *publisher) Close() error {
	p.mu.Lock()
	p.initialized = false
	p.mu.Unlock()
	return p.client.Close()
}

// Subscribe registers an observer for successful publishes. Observers run
// synchronously on the publishing goroutine.
func (p *publisher) Subscribe(fn Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, fn)
}

func (p *publisher) notify(eventType string, event any) {
	p.mu.Lock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	for _, fn := range observers {
		fn(eventType, event)
	}
}

// publish wraps the event in its envelope and delivers it. There is no retry
// here; the caller decides whether a failed publish is worth repeating.
func (p *publisher) publish(ctx context.Context, channel, eventType, tenantID string, event any) error {
	p.mu.Lock()
	initialized := p.initialized
	p.mu.Unlock()
	if !initialized {
		return fmt.Errorf("%s publisher: %w", p.name, events.ErrNotInitialized)
	}

	payload, err := json.Marshal(events.Envelope{Type: eventType, Data: event})
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", eventType, err)
	}

	start := p.now()
	err = p.client.Publish(ctx, channel, payload)
	duration := time.Since(start)

	if p.metrics != nil {
		p.metrics.TrackPublish(channel, eventType, tenantID, duration, len(payload), err == nil)
	}

	if err != nil {
		p.logger.WithError(err).WithFields(logging.Fields{
			"publisher": p.name,
			"channel":   channel,
			"type":      eventType,
		}).Error("Failed to publish event")
		wrapped := fmt.Errorf("%w: %v", events.ErrPublishFailed, err)
		p.notify("error", wrapped)
		return wrapped
	}

	p.notify(eventType, event)
	return nil
}

func (p *publisher) base(eventType, tenantID string) events.Base {
	return events.Base{
		ID:        events.NewEventID(),
		TenantID:  tenantID,
		Type:      eventType,
		Timestamp: p.now().UTC(),
	}
}
