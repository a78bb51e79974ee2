package publishers

import (
	"context"
	"fmt"
	"time"

	"neostack/eventservice/internal/broker"
	"neostack/eventservice/internal/channels"
	"neostack/eventservice/internal/events"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/pkg/logging"
)

// PresencePublisher emits user presence changes on the tenant's presence
// channel.
type PresencePublisher struct {
	publisher
}

// NewPresencePublisher creates a presence publisher over client.
func NewPresencePublisher(client broker.Client, m *metrics.Metrics, logger logging.Logger) *PresencePublisher {
	return &PresencePublisher{publisher: newPublisher("presence", client, m, logger)}
}

// PublishJoin announces a user joining the tenant's workspace.
func (p *PresencePublisher) PublishJoin(ctx context.Context, tenantID, userID, userName string) (*events.PresenceEvent, error) {
	return p.send(ctx, events.TypePresenceJoin, tenantID, userID, userName, "online", "")
}

// PublishLeave announces a user leaving.
func (p *PresencePublisher) PublishLeave(ctx context.Context, tenantID, userID, userName string) (*events.PresenceEvent, error) {
	return p.send(ctx, events.TypePresenceLeave, tenantID, userID, userName, "offline", "")
}

// PublishUpdate announces a presence status change.
func (p *PresencePublisher) PublishUpdate(ctx context.Context, tenantID, userID, userName, status, currentPage string) (*events.PresenceEvent, error) {
	return p.send(ctx, events.TypePresenceUpdate, tenantID, userID, userName, status, currentPage)
}

func (p *PresencePublisher) send(ctx context.Context, eventType, tenantID, userID, userName, status, currentPage string) (*events.PresenceEvent, error) {
	if tenantID == "" || userID == "" {
		return nil, fmt.Errorf("%w: presence events need tenant and user ids", events.ErrInvalidEvent)
	}

	event := &events.PresenceEvent{
		Base:        p.base(eventType, tenantID),
		UserName:    userName,
		Status:      status,
		LastSeen:    p.now().UTC().Format(time.RFC3339),
		CurrentPage: currentPage,
	}
	event.UserID = userID

	channel := channels.TenantChannel(channels.TenantPresence, tenantID)
	if err := p.publish(ctx, channel, eventType, tenantID, event); err != nil {
		return nil, err
	}
	return event, nil
}
