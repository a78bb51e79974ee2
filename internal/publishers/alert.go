package publishers

import (
	"context"
	"fmt"

	"neostack/eventservice/internal/broker"
	"neostack/eventservice/internal/channels"
	"neostack/eventservice/internal/events"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/pkg/logging"
)

// AlertPublisher emits operational alerts. Tenant-scoped alerts go to the
// tenant's alerts channel; alerts with no tenant are system-wide and go to
// the admin alerts channel.
type AlertPublisher struct {
	publisher
}

// NewAlertPublisher creates an alert publisher over client.
func NewAlertPublisher(client broker.Client, m *metrics.Metrics, logger logging.Logger) *AlertPublisher {
	return &AlertPublisher{publisher: newPublisher("alert", client, m, logger)}
}

// PublishCritical emits a critical alert.
func (p *AlertPublisher) PublishCritical(ctx context.Context, tenantID, message, source string) (*events.AlertEvent, error) {
	return p.send(ctx, events.TypeAlertCritical, events.SeverityCritical, tenantID, message, source)
}

// PublishWarning emits a warning alert.
func (p *AlertPublisher) PublishWarning(ctx context.Context, tenantID, message, source string) (*events.AlertEvent, error) {
	return p.send(ctx, events.TypeAlertWarning, events.SeverityWarning, tenantID, message, source)
}

// PublishInfo emits an informational alert.
func (p *AlertPublisher) PublishInfo(ctx context.Context, tenantID, message, source string) (*events.AlertEvent, error) {
	return p.send(ctx, events.TypeAlertInfo, events.SeverityInfo, tenantID, message, source)
}

func (p *AlertPublisher) send(ctx context.Context, eventType, severity, tenantID, message, source string) (*events.AlertEvent, error) {
	if message == "" {
		return nil, fmt.Errorf("%w: missing alert message", events.ErrInvalidEvent)
	}

	event := &events.AlertEvent{
		Base:     p.base(eventType, tenantID),
		Severity: severity,
		Message:  message,
		Source:   source,
	}

	channel := channels.AdminAlerts
	if tenantID != "" {
		channel = channels.TenantChannel(channels.TenantAlerts, tenantID)
	}
	if err := p.publish(ctx, channel, eventType, tenantID, event); err != nil {
		return nil, err
	}
	return event, nil
}
