package publishers

import (
	"context"
	"fmt"
	"sync"

	"neostack/eventservice/internal/broker"
	"neostack/eventservice/internal/channels"
	"neostack/eventservice/internal/events"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/pkg/logging"
)

// DeploymentPublisher emits deployment lifecycle events on the tenant's
// deployments channel. A deployment moves start -> progress* -> complete or
// error; once a terminal event is published the lifecycle is closed and
// further events for that deployment are rejected.
type DeploymentPublisher struct {
	publisher

	mu       sync.Mutex
	terminal map[string]bool
}

// Credentials are access details minted by a completed deployment. Values
// never reach the channel; only the key names are echoed so the client knows
// which credentials exist.
type Credentials map[string]string

// NewDeploymentPublisher creates a deployment publisher over client.
func NewDeploymentPublisher(client broker.Client, m *metrics.Metrics, logger logging.Logger) *DeploymentPublisher {
	return &DeploymentPublisher{
		publisher: newPublisher("deployment", client, m, logger),
		terminal:  make(map[string]bool),
	}
}

// PublishStart opens a deployment lifecycle and returns the event carrying
// the minted deployment id.
func (p *DeploymentPublisher) PublishStart(ctx context.Context, tenantID string, instanceType events.InstanceType) (*events.DeploymentEvent, error) {
	event := &events.DeploymentEvent{
		Base:         p.base(events.TypeDeploymentStart, tenantID),
		DeploymentID: events.NewDeploymentID(instanceType),
		InstanceType: instanceType,
		Status:       events.DeploymentStarting,
		Progress:     0,
		CurrentStep:  "Starting deployment",
		Logs: []string{
			fmt.Sprintf("deployment started for %s", instanceType),
		},
	}
	return p.send(ctx, event)
}

// PublishProgress reports progress within an open lifecycle. The instance
// type is required; it is carried on every event rather than inferred from
// the deployment id.
func (p *DeploymentPublisher) PublishProgress(ctx context.Context, tenantID, deploymentID string, instanceType events.InstanceType, progress int, currentStep, log string) (*events.DeploymentEvent, error) {
	event := &events.DeploymentEvent{
		Base:         p.base(events.TypeDeploymentProgress, tenantID),
		DeploymentID: deploymentID,
		InstanceType: instanceType,
		Status:       events.DeploymentInProgress,
		Progress:     progress,
		CurrentStep:  currentStep,
		Logs:         []string{},
	}
	if log != "" {
		event.Logs = []string{log}
	}
	return p.send(ctx, event)
}

// PublishCompletion closes the lifecycle successfully. Progress is always
// reported as 100 and credential values are redacted to their key names.
func (p *DeploymentPublisher) PublishCompletion(ctx context.Context, tenantID, deploymentID string, instanceType events.InstanceType, instanceURL string, credentials Credentials) (*events.DeploymentEvent, error) {
	credentialKeys := make([]string, 0, len(credentials))
	for key := range credentials {
		credentialKeys = append(credentialKeys, key)
	}

	event := &events.DeploymentEvent{
		Base:         p.base(events.TypeDeploymentComplete, tenantID),
		DeploymentID: deploymentID,
		InstanceType: instanceType,
		Status:       events.DeploymentCompleted,
		Progress:     100,
		CurrentStep:  "Deployment completed",
		Logs: []string{
			"deployment completed",
			fmt.Sprintf("instance available at %s", instanceURL),
		},
	}
	event.Metadata = map[string]any{
		"instance_url": instanceURL,
		"credentials":  credentialKeys,
	}
	return p.send(ctx, event)
}

// PublishError closes the lifecycle with a failure. Progress is always
// reported as 0.
func (p *DeploymentPublisher) PublishError(ctx context.Context, tenantID, deploymentID string, instanceType events.InstanceType, cause string) (*events.DeploymentEvent, error) {
	event := &events.DeploymentEvent{
		Base:         p.base(events.TypeDeploymentError, tenantID),
		DeploymentID: deploymentID,
		InstanceType: instanceType,
		Status:       events.DeploymentFailed,
		Progress:     0,
		CurrentStep:  "Deployment failed",
		Logs: []string{
			fmt.Sprintf("deployment failed: %s", cause),
		},
	}
	event.Metadata = map[string]any{"error": cause}
	return p.send(ctx, event)
}

func (p *DeploymentPublisher) send(ctx context.Context, event *events.DeploymentEvent) (*events.DeploymentEvent, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	if err := p.checkLifecycle(event); err != nil {
		return nil, err
	}

	channel := channels.TenantChannel(channels.TenantDeployments, event.TenantID)
	if err := p.publish(ctx, channel, event.Type, event.TenantID, event); err != nil {
		return nil, err
	}
	return event, nil
}

// checkLifecycle rejects events for a deployment that already reached a
// terminal status, and records terminal transitions.
func (p *DeploymentPublisher) checkLifecycle(event *events.DeploymentEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.terminal[event.DeploymentID] {
		return fmt.Errorf("%w: deployment %s already terminal", events.ErrInvalidEvent, event.DeploymentID)
	}
	if event.Type == events.TypeDeploymentComplete || event.Type == events.TypeDeploymentError {
		p.terminal[event.DeploymentID] = true
	}
	return nil
}
