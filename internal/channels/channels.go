package channels

import (
	"errors"
	"strings"
)

var ErrInvalidChannel = errors.New("invalid channel format")

// Scope is the isolation class of a channel.
type Scope string

const (
	ScopeTenant Scope = "tenant"
	ScopeAdmin  Scope = "admin"
	ScopeSystem Scope = "system"
	ScopeOther  Scope = "other"
)

// Channel name patterns. The naming contract is fixed; consumers substitute
// {tenantId}/{userId} via TenantChannel and UserChannel.
const (
	TenantDeployments   = "tenant:{tenantId}:deployments"
	TenantBilling       = "tenant:{tenantId}:billing"
	TenantMetrics       = "tenant:{tenantId}:metrics"
	TenantAlerts        = "tenant:{tenantId}:alerts"
	TenantPresence      = "tenant:{tenantId}:presence"
	TenantNotifications = "tenant:{tenantId}:notifications"
	TenantExams         = "tenant:{tenantId}:exams"
	TenantProctoring    = "tenant:{tenantId}:proctoring"
	TenantResults       = "tenant:{tenantId}:results"

	AdminMetrics = "admin:metrics"
	AdminAlerts  = "admin:alerts"
	AdminTenants = "admin:tenants"
	AdminSystem  = "admin:system"

	SystemHealth        = "system:health"
	SystemMaintenance   = "system:maintenance"
	SystemAnnouncements = "system:announcements"

	UserNotifications = "user:{userId}:notifications"
)

// TenantChannel substitutes the tenant id into a tenant channel pattern.
func TenantChannel(pattern, tenantID string) string {
	return strings.Replace(pattern, "{tenantId}", tenantID, 1)
}

// UserChannel returns the notification channel for a user.
func UserChannel(userID string) string {
	return strings.Replace(UserNotifications, "{userId}", userID, 1)
}

// IsTenantChannel reports whether the channel is tenant- or user-scoped.
func IsTenantChannel(channel string) bool {
	return strings.HasPrefix(channel, "tenant:") || strings.HasPrefix(channel, "user:")
}

// IsAdminChannel reports whether the channel is admin-only.
func IsAdminChannel(channel string) bool {
	return strings.HasPrefix(channel, "admin:")
}

// IsSystemChannel reports whether the channel is system-wide.
func IsSystemChannel(channel string) bool {
	return strings.HasPrefix(channel, "system:")
}

// ExtractTenantID returns the tenant id embedded in a tenant channel.
// A tenant channel without the id segment is a malformed request, never a
// silent allow or deny.
func ExtractTenantID(channel string) (string, error) {
	parts := strings.Split(channel, ":")
	if parts[0] != "tenant" {
		return "", ErrInvalidChannel
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", ErrInvalidChannel
	}
	return parts[1], nil
}

// ExtractOwner returns the isolation scope of a channel and, for tenant and
// user channels, the embedded owner id.
func ExtractOwner(channel string) (Scope, string, error) {
	switch {
	case strings.HasPrefix(channel, "tenant:"):
		id, err := ExtractTenantID(channel)
		if err != nil {
			return ScopeTenant, "", err
		}
		return ScopeTenant, id, nil
	case strings.HasPrefix(channel, "user:"):
		parts := strings.Split(channel, ":")
		if len(parts) < 2 || parts[1] == "" {
			return ScopeTenant, "", ErrInvalidChannel
		}
		return ScopeTenant, parts[1], nil
	case IsAdminChannel(channel):
		return ScopeAdmin, "", nil
	case IsSystemChannel(channel):
		return ScopeSystem, "", nil
	default:
		return ScopeOther, "", nil
	}
}

// publishPermissions maps a resource keyword to the permission required to
// publish on channels naming it. Ordered; first substring match wins.
var publishPermissions = []struct {
	keyword    string
	permission string
}{
	{"deployments", "deploy:write"},
	{"billing", "billing:read"},
	{"metrics", "metrics:read"},
	{"alerts", "alerts:read"},
	{"presence", "presence:read"},
	{"notifications", "notifications:read"},
	{"exams", "exams:read"},
}

// RequiredPermission returns the permission needed to publish on the
// channel, if any.
func RequiredPermission(channel string) (string, bool) {
	for _, entry := range publishPermissions {
		if strings.Contains(channel, entry.keyword) {
			return entry.permission, true
		}
	}
	return "", false
}
