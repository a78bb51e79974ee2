package publishers

import (
	"context"

	"neostack/eventservice/internal/broker"
	"neostack/eventservice/internal/channels"
	"neostack/eventservice/internal/events"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/pkg/logging"
)

// UsagePublisher emits resource usage snapshots. Tenant-scoped snapshots go
// to the tenant's metrics channel; platform-wide snapshots (empty tenant id)
// go to the admin metrics channel.
type UsagePublisher struct {
	publisher
}

// NewUsagePublisher creates a usage publisher over client.
func NewUsagePublisher(client broker.Client, m *metrics.Metrics, logger logging.Logger) *UsagePublisher {
	return &UsagePublisher{publisher: newPublisher("usage", client, m, logger)}
}

// PublishUpdate emits a periodic usage snapshot.
func (p *UsagePublisher) PublishUpdate(ctx context.Context, tenantID string, snapshot events.MetricsSnapshot) (*events.MetricsEvent, error) {
	return p.send(ctx, events.TypeMetricsUpdate, tenantID, snapshot)
}

// PublishThreshold emits a snapshot that crossed a configured threshold.
func (p *UsagePublisher) PublishThreshold(ctx context.Context, tenantID string, snapshot events.MetricsSnapshot) (*events.MetricsEvent, error) {
	return p.send(ctx, events.TypeMetricsThreshold, tenantID, snapshot)
}

// PublishAnomaly emits a snapshot flagged as anomalous.
func (p *UsagePublisher) PublishAnomaly(ctx context.Context, tenantID string, snapshot events.MetricsSnapshot) (*events.MetricsEvent, error) {
	return p.send(ctx, events.TypeMetricsAnomaly, tenantID, snapshot)
}

func (p *UsagePublisher) send(ctx context.Context, eventType, tenantID string, snapshot events.MetricsSnapshot) (*events.MetricsEvent, error) {
	event := &events.MetricsEvent{
		Base: p.base(eventType, tenantID),
		Data: snapshot,
	}

	channel := channels.AdminMetrics
	if tenantID != "" {
		channel = channels.TenantChannel(channels.TenantMetrics, tenantID)
	}
	if err := p.publish(ctx, channel, eventType, tenantID, event); err != nil {
		return nil, err
	}
	return event, nil
}
