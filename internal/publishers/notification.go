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

// NotificationPublisher delivers notifications either to a single user's
// channel or to a whole tenant's channel.
type NotificationPublisher struct {
	publisher
}

// Notification is the caller-facing shape of a notification to deliver.
type Notification struct {
	Title    string
	Message  string
	Priority string
	Category string
	Actions  []events.NotificationAction
}

// NewNotificationPublisher creates a notification publisher over client.
func NewNotificationPublisher(client broker.Client, m *metrics.Metrics, logger logging.Logger) *NotificationPublisher {
	return &NotificationPublisher{publisher: newPublisher("notification", client, m, logger)}
}

// PublishToUser delivers a notification to one user's personal channel.
func (p *NotificationPublisher) PublishToUser(ctx context.Context, userID string, n Notification) (*events.NotificationEvent, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: missing user id", events.ErrInvalidEvent)
	}

	event := p.build(events.TypeNotification, "", n)
	event.UserID = userID

	channel := channels.UserChannel(userID)
	if err := p.publish(ctx, channel, event.Type, "", event); err != nil {
		return nil, err
	}
	return event, nil
}

// PublishToTenant delivers a notification to everyone in a tenant.
func (p *NotificationPublisher) PublishToTenant(ctx context.Context, tenantID string, n Notification) (*events.NotificationEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant id", events.ErrInvalidEvent)
	}

	event := p.build(events.TypeNotification, tenantID, n)

	channel := channels.TenantChannel(channels.TenantNotifications, tenantID)
	if err := p.publish(ctx, channel, event.Type, tenantID, event); err != nil {
		return nil, err
	}
	return event, nil
}

// PublishAnnouncement broadcasts an announcement on the system channel.
// Intended for admin or system callers; channel authorization is enforced
// upstream.
func (p *NotificationPublisher) PublishAnnouncement(ctx context.Context, n Notification) (*events.NotificationEvent, error) {
	event := p.build(events.TypeAnnouncement, "", n)

	if err := p.publish(ctx, channels.SystemAnnouncements, event.Type, "", event); err != nil {
		return nil, err
	}
	return event, nil
}

// PublishMaintenance broadcasts a maintenance notice on the system channel.
func (p *NotificationPublisher) PublishMaintenance(ctx context.Context, n Notification) (*events.NotificationEvent, error) {
	event := p.build(events.TypeMaintenance, "", n)

	if err := p.publish(ctx, channels.SystemMaintenance, event.Type, "", event); err != nil {
		return nil, err
	}
	return event, nil
}

func (p *NotificationPublisher) build(eventType, tenantID string, n Notification) *events.NotificationEvent {
	priority := n.Priority
	if priority == "" {
		priority = "medium"
	}
	category := n.Category
	if category == "" {
		category = "system"
	}

	return &events.NotificationEvent{
		Base:     p.base(eventType, tenantID),
		Title:    n.Title,
		Message:  n.Message,
		Priority: priority,
		Category: category,
		Read:     false,
		Actions:  n.Actions,
	}
}
