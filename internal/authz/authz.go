package authz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"neostack/eventservice/internal/channels"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/pkg/auth"
	"neostack/eventservice/pkg/logging"
)

var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// Action is what the principal wants to do on a channel.
type Action string

const (
	ActionSubscribe Action = "subscribe"
	ActionPublish   Action = "publish"
)

// Denial reasons recorded on the authz failure counter.
const (
	reasonUnauthorized = "unauthorized"
	reasonValidation   = "validation_error"
	reasonRateLimited  = "rate_limited"
)

// RateLimiter decides whether one more request is allowed under the given
// key. Implementations must bound their own store calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Config tunes the authorization engine.
type Config struct {
	RateLimitEnabled bool
	// FailOpen allows requests through when the rate-limit store errors.
	FailOpen bool
}

// Authorizer composes tenant isolation, role gates, publish permissions and
// rate limiting into a single allow/deny decision. Ordinary policy denials
// return false without an error; errors are reserved for malformed channels
// and exceeded rate limits.
type Authorizer struct {
	cfg     Config
	limiter RateLimiter
	metrics *metrics.Metrics
	logger  logging.Logger
}

// New creates an authorization engine. The metrics handle may be nil.
func New(cfg Config, limiter RateLimiter, m *metrics.Metrics, logger logging.Logger) *Authorizer {
	return &Authorizer{
		cfg:     cfg,
		limiter: limiter,
		metrics: m,
		logger:  logger,
	}
}

// Authorize decides whether the principal may perform action on channel.
func (a *Authorizer) Authorize(ctx context.Context, principal *auth.AuthContext, channel string, action Action) (bool, error) {
	start := time.Now()
	allowed, reason, err := a.decide(ctx, principal, channel, action)
	if a.metrics != nil {
		a.metrics.TrackAuthz(time.Since(start), channel, string(action), reason)
	}
	return allowed, err
}

func (a *Authorizer) decide(ctx context.Context, principal *auth.AuthContext, channel string, action Action) (bool, string, error) {
	// 1. Tenant isolation: tenant- and user-scoped channels may only be
	// touched by their owner.
	if channels.IsTenantChannel(channel) {
		_, owner, err := channels.ExtractOwner(channel)
		if err != nil {
			return false, reasonValidation, err
		}

		expected := principal.TenantID
		if strings.HasPrefix(channel, "user:") {
			expected = principal.UserID
		}
		if owner != expected {
			a.logger.WithFields(logging.Fields{
				"user_id":       principal.UserID,
				"tenant_id":     principal.TenantID,
				"channel":       channel,
				"channel_owner": owner,
			}).Warn("Tenant isolation violation")
			return false, reasonUnauthorized, nil
		}
	}

	// 2. Admin-only channels.
	if channels.IsAdminChannel(channel) {
		if !principal.HasRole("admin") && !principal.HasRole("super_admin") {
			a.logger.WithFields(logging.Fields{
				"user_id": principal.UserID,
				"roles":   principal.Roles,
				"channel": channel,
			}).Warn("Unauthorized admin channel access attempt")
			return false, reasonUnauthorized, nil
		}
	}

	// 3. System channels are read-only except for admin/system roles.
	if channels.IsSystemChannel(channel) && action == ActionPublish {
		if !principal.HasRole("admin") && !principal.HasRole("system") {
			a.logger.WithFields(logging.Fields{
				"user_id": principal.UserID,
				"channel": channel,
			}).Warn("Unauthorized system publish attempt")
			return false, reasonUnauthorized, nil
		}
	}

	// 4. Resource permission gate for publishing.
	if action == ActionPublish {
		if required, ok := channels.RequiredPermission(channel); ok && !principal.HasPermission(required) {
			a.logger.WithFields(logging.Fields{
				"user_id":    principal.UserID,
				"channel":    channel,
				"permission": required,
			}).Warn("Publish permission denied")
			return false, reasonUnauthorized, nil
		}
	}

	// 5. Rate limiting, keyed per tenant/user/action.
	if a.cfg.RateLimitEnabled && a.limiter != nil {
		key := fmt.Sprintf("ratelimit:%s:%s:%s", principal.TenantID, principal.UserID, action)
		allowed, err := a.limiter.Allow(ctx, key)
		if err != nil {
			if a.cfg.FailOpen {
				a.logger.WithError(err).Warn("Rate limit store unavailable, failing open")
				return true, "", nil
			}
			return false, reasonRateLimited, fmt.Errorf("rate limit check: %w", err)
		}
		if !allowed {
			return false, reasonRateLimited, ErrRateLimitExceeded
		}
	}

	return true, "", nil
}

// SubscriptionResult partitions a batch subscription request.
type SubscriptionResult struct {
	Allowed []string `json:"allowed"`
	Denied  []string `json:"denied"`
}

// ValidateSubscription evaluates subscribe access per channel independently;
// one channel's failure never aborts evaluation of the others.
func (a *Authorizer) ValidateSubscription(ctx context.Context, principal *auth.AuthContext, channelNames []string) SubscriptionResult {
	result := SubscriptionResult{
		Allowed: []string{},
		Denied:  []string{},
	}

	for _, channel := range channelNames {
		allowed, err := a.Authorize(ctx, principal, channel, ActionSubscribe)
		ok := allowed && err == nil
		if ok {
			result.Allowed = append(result.Allowed, channel)
		} else {
			result.Denied = append(result.Denied, channel)
		}
		if a.metrics != nil {
			a.metrics.TrackChannelSubscription(channel, principal.TenantID, ok)
		}
	}

	return result
}

// PermissionSummary is a pure projection of a principal's authorization
// attributes.
type PermissionSummary struct {
	Roles        []string `json:"roles"`
	Permissions  []string `json:"permissions"`
	IsAdmin      bool     `json:"is_admin"`
	IsSuperAdmin bool     `json:"is_super_admin"`
}

// Summary projects the principal's roles and permissions. No authorization
// side effects.
func Summary(principal *auth.AuthContext) PermissionSummary {
	return PermissionSummary{
		Roles:        principal.Roles,
		Permissions:  principal.Permissions,
		IsAdmin:      principal.HasRole("admin"),
		IsSuperAdmin: principal.HasRole("super_admin"),
	}
}
