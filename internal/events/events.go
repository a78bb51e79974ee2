package events

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotInitialized = errors.New("publisher not initialized")
	ErrPublishFailed  = errors.New("publish failed")
	ErrInvalidEvent   = errors.New("invalid event")
)

// Event type discriminators carried in the envelope and in each event body.
const (
	TypeDeploymentStart    = "deployment_start"
	TypeDeploymentProgress = "deployment_progress"
	TypeDeploymentComplete = "deployment_complete"
	TypeDeploymentError    = "deployment_error"

	TypeBillingInvoice    = "billing_invoice"
	TypeBillingPayment    = "billing_payment"
	TypeBillingUsageAlert = "billing_usage_alert"
	TypeBillingPlanChange = "billing_plan_change"

	TypeMetricsUpdate    = "metrics_update"
	TypeMetricsThreshold = "metrics_threshold"
	TypeMetricsAnomaly   = "metrics_anomaly"

	TypeAlertCritical = "alert_critical"
	TypeAlertWarning  = "alert_warning"
	TypeAlertInfo     = "alert_info"

	TypePresenceUpdate = "presence_update"
	TypePresenceJoin   = "presence_join"
	TypePresenceLeave  = "presence_leave"

	TypeNotification = "notification"
	TypeAnnouncement = "announcement"
	TypeMaintenance  = "maintenance"
)

// Envelope is the wire shape published to the broker: a type discriminator
// wrapping the event body so consumers can route before full decoding.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Base carries the fields every event shares.
type Base struct {
	ID        string         `json:"id"`
	TenantID  string         `json:"tenant_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Type      string         `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// DeploymentStatus is the lifecycle state of a deployment.
type DeploymentStatus string

const (
	DeploymentStarting   DeploymentStatus = "starting"
	DeploymentInProgress DeploymentStatus = "in_progress"
	DeploymentCompleted  DeploymentStatus = "completed"
	DeploymentFailed     DeploymentStatus = "failed"
)

// InstanceType identifies which product a deployment provisions.
type InstanceType string

const (
	InstanceOdoo    InstanceType = "odoo"
	InstanceNetbox  InstanceType = "netbox"
	InstanceWazuh   InstanceType = "wazuh"
	InstanceCortex  InstanceType = "cortex"
	InstanceMISP    InstanceType = "misp"
	InstanceTheHive InstanceType = "thehive"
)

// Valid reports whether the instance type is one the platform provisions.
func (t InstanceType) Valid() bool {
	switch t {
	case InstanceOdoo, InstanceNetbox, InstanceWazuh, InstanceCortex, InstanceMISP, InstanceTheHive:
		return true
	}
	return false
}

// DeploymentEvent reports deployment lifecycle progress to a tenant.
type DeploymentEvent struct {
	Base
	DeploymentID        string           `json:"deployment_id"`
	InstanceType        InstanceType     `json:"instance_type"`
	Status              DeploymentStatus `json:"status"`
	Progress            int              `json:"progress"`
	CurrentStep         string           `json:"current_step"`
	Logs                []string         `json:"logs"`
	EstimatedCompletion string           `json:"estimated_completion,omitempty"`
}

// Validate checks the invariants that hold for every deployment event.
func (e *DeploymentEvent) Validate() error {
	if e.TenantID == "" {
		return fmt.Errorf("%w: missing tenant id", ErrInvalidEvent)
	}
	if e.DeploymentID == "" {
		return fmt.Errorf("%w: missing deployment id", ErrInvalidEvent)
	}
	if !e.InstanceType.Valid() {
		return fmt.Errorf("%w: unknown instance type %q", ErrInvalidEvent, e.InstanceType)
	}
	if e.Progress < 0 || e.Progress > 100 {
		return fmt.Errorf("%w: progress %d out of range", ErrInvalidEvent, e.Progress)
	}
	return nil
}

// BillingEvent reports invoice, payment and plan activity to a tenant.
type BillingEvent struct {
	Base
	Status    string  `json:"status"`
	Amount    float64 `json:"amount,omitempty"`
	Currency  string  `json:"currency,omitempty"`
	InvoiceID string  `json:"invoice_id,omitempty"`
	PaymentID string  `json:"payment_id,omitempty"`
	PlanName  string  `json:"plan_name,omitempty"`
	Message   string  `json:"message"`
}

// MetricsSnapshot is one resource usage sample.
type MetricsSnapshot struct {
	CPU             float64 `json:"cpu"`
	Memory          float64 `json:"memory"`
	Disk            float64 `json:"disk"`
	NetworkIn       float64 `json:"network_in"`
	NetworkOut      float64 `json:"network_out"`
	ActiveInstances int     `json:"active_instances"`
	Uptime          float64 `json:"uptime"`
}

// MetricsEvent carries a usage snapshot. An empty tenant id means the
// snapshot is platform-wide and belongs on the admin channel.
type MetricsEvent struct {
	Base
	Data MetricsSnapshot `json:"data"`
}

// AlertEvent reports an operational alert. An empty tenant id means the
// alert is system-wide.
type AlertEvent struct {
	Base
	Severity string `json:"severity"`
	Message  string `json:"message"`
	Source   string `json:"source"`
}

// Alert severities.
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// PresenceEvent reports a user's presence change within a tenant.
type PresenceEvent struct {
	Base
	UserName    string `json:"user_name"`
	Status      string `json:"status"`
	LastSeen    string `json:"last_seen"`
	CurrentPage string `json:"current_page,omitempty"`
}

// NotificationAction is one actionable button attached to a notification.
type NotificationAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
	Style  string `json:"style"`
}

// NotificationEvent delivers a user- or tenant-facing notification.
type NotificationEvent struct {
	Base
	Title    string               `json:"title"`
	Message  string               `json:"message"`
	Priority string               `json:"priority"`
	Category string               `json:"category"`
	Read     bool                 `json:"read"`
	Actions  []NotificationAction `json:"actions,omitempty"`
}

// NewEventID mints an event identifier of the form evt_<unixms>_<suffix>.
func NewEventID() string {
	return fmt.Sprintf("evt_%d_%s", time.Now().UnixMilli(), randomSuffix())
}

// NewDeploymentID mints a deployment identifier prefixed with its instance
// type so operators can read the product off the id.
func NewDeploymentID(instanceType InstanceType) string {
	return fmt.Sprintf("%s-%d-%s", instanceType, time.Now().UnixMilli(), randomSuffix())
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
}
