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

// BillingPublisher emits invoice, payment and plan events on the tenant's
// billing channel.
type BillingPublisher struct {
	publisher
}

// NewBillingPublisher creates a billing publisher over client.
func NewBillingPublisher(client broker.Client, m *metrics.Metrics, logger logging.Logger) *BillingPublisher {
	return &BillingPublisher{publisher: newPublisher("billing", client, m, logger)}
}

// PublishInvoice announces a new invoice to the tenant.
func (p *BillingPublisher) PublishInvoice(ctx context.Context, tenantID, invoiceID string, amount float64, currency, message string) (*events.BillingEvent, error) {
	event := &events.BillingEvent{
		Base:      p.base(events.TypeBillingInvoice, tenantID),
		Status:    "pending",
		Amount:    amount,
		Currency:  currency,
		InvoiceID: invoiceID,
		Message:   message,
	}
	return p.send(ctx, event)
}

// PublishPayment announces a payment outcome to the tenant.
func (p *BillingPublisher) PublishPayment(ctx context.Context, tenantID, paymentID, status string, amount float64, currency, message string) (*events.BillingEvent, error) {
	event := &events.BillingEvent{
		Base:      p.base(events.TypeBillingPayment, tenantID),
		Status:    status,
		Amount:    amount,
		Currency:  currency,
		PaymentID: paymentID,
		Message:   message,
	}
	return p.send(ctx, event)
}

// PublishUsageAlert warns the tenant that a metered resource is approaching
// its limit.
func (p *BillingPublisher) PublishUsageAlert(ctx context.Context, tenantID, resource string, usage, limit float64) (*events.BillingEvent, error) {
	percentage := 0.0
	if limit > 0 {
		percentage = usage / limit * 100
	}
	event := &events.BillingEvent{
		Base:    p.base(events.TypeBillingUsageAlert, tenantID),
		Status:  "pending",
		Message: fmt.Sprintf("%s usage at %.0f%% of limit", resource, percentage),
	}
	event.Metadata = map[string]any{
		"resource":   resource,
		"usage":      usage,
		"limit":      limit,
		"percentage": percentage,
	}
	return p.send(ctx, event)
}

// PublishPlanChange announces a subscription plan change to the tenant.
func (p *BillingPublisher) PublishPlanChange(ctx context.Context, tenantID, planName, message string) (*events.BillingEvent, error) {
	event := &events.BillingEvent{
		Base:     p.base(events.TypeBillingPlanChange, tenantID),
		Status:   "completed",
		PlanName: planName,
		Message:  message,
	}
	return p.send(ctx, event)
}

func (p *BillingPublisher) send(ctx context.Context, event *events.BillingEvent) (*events.BillingEvent, error) {
	if event.TenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant id", events.ErrInvalidEvent)
	}

	channel := channels.TenantChannel(channels.TenantBilling, event.TenantID)
	if err := p.publish(ctx, channel, event.Type, event.TenantID, event); err != nil {
		return nil, err
	}
	return event, nil
}
