package publishers

import (
	"context"

	"neostack/eventservice/internal/broker"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/pkg/logging"
)

// Set bundles every publisher over one shared broker connection.
type Set struct {
	Deployments   *DeploymentPublisher
	Billing       *BillingPublisher
	Usage         *UsagePublisher
	Alerts        *AlertPublisher
	Presence      *PresencePublisher
	Notifications *NotificationPublisher
}

// NewSet creates all publishers over the same broker client.
func NewSet(client broker.Client, m *metrics.Metrics, logger logging.Logger) *Set {
	return &Set{
		Deployments:   NewDeploymentPublisher(client, m, logger),
		Billing:       NewBillingPublisher(client, m, logger),
		Usage:         NewUsagePublisher(client, m, logger),
		Alerts:        NewAlertPublisher(client, m, logger),
		Presence:      NewPresencePublisher(client, m, logger),
		Notifications: NewNotificationPublisher(client, m, logger),
	}
}

// Connect opens the shared broker connection once and arms every publisher.
func (s *Set) Connect(ctx context.Context) error {
	if err := s.Deployments.Connect(ctx); err != nil {
		return err
	}
	for _, p := range s.others() {
		p.mu.Lock()
		p.initialized = true
		p.mu.Unlock()
	}
	return nil
}

// Close tears down the shared connection and disarms every publisher.
func (s *Set) Close() error {
	for _, p := range s.others() {
		p.mu.Lock()
		p.initialized = false
		p.mu.Unlock()
	}
	return s.Deployments.Close()
}

func (s *Set) others() []*publisher {
	return []*publisher{
		&s.Billing.publisher,
		&s.Usage.publisher,
		&s.Alerts.publisher,
		&s.Presence.publisher,
		&s.Notifications.publisher,
	}
}
