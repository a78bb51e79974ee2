package channels

import (
	"errors"
	"testing"
)

func TestChannelPatternsAreStable(t *testing.T) {
	tests := []struct {
		pattern string
		want    string
	}{
		{TenantDeployments, "tenant:{tenantId}:deployments"},
		{TenantBilling, "tenant:{tenantId}:billing"},
		{TenantMetrics, "tenant:{tenantId}:metrics"},
		{TenantAlerts, "tenant:{tenantId}:alerts"},
		{TenantPresence, "tenant:{tenantId}:presence"},
		{TenantNotifications, "tenant:{tenantId}:notifications"},
		{TenantExams, "tenant:{tenantId}:exams"},
		{TenantProctoring, "tenant:{tenantId}:proctoring"},
		{TenantResults, "tenant:{tenantId}:results"},
		{AdminMetrics, "admin:metrics"},
		{AdminAlerts, "admin:alerts"},
		{AdminTenants, "admin:tenants"},
		{AdminSystem, "admin:system"},
		{SystemHealth, "system:health"},
		{SystemMaintenance, "system:maintenance"},
		{SystemAnnouncements, "system:announcements"},
		{UserNotifications, "user:{userId}:notifications"},
	}
	for _, tt := range tests {
		if tt.pattern != tt.want {
			t.Fatalf("pattern %q changed, want %q", tt.pattern, tt.want)
		}
	}
}

func TestChannelSubstitution(t *testing.T) {
	if got := TenantChannel(TenantDeployments, "t1"); got != "tenant:t1:deployments" {
		t.Fatalf("TenantChannel = %q", got)
	}
	if got := UserChannel("u1"); got != "user:u1:notifications" {
		t.Fatalf("UserChannel = %q", got)
	}
}

func TestChannelClassification(t *testing.T) {
	tests := []struct {
		channel  string
		isTenant bool
		isAdmin  bool
		isSystem bool
	}{
		{"tenant:t1:deployments", true, false, false},
		{"user:u1:notifications", true, false, false},
		{"admin:metrics", false, true, false},
		{"system:health", false, false, true},
		{"public:lobby", false, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			if got := IsTenantChannel(tt.channel); got != tt.isTenant {
				t.Errorf("IsTenantChannel = %v, want %v", got, tt.isTenant)
			}
			if got := IsAdminChannel(tt.channel); got != tt.isAdmin {
				t.Errorf("IsAdminChannel = %v, want %v", got, tt.isAdmin)
			}
			if got := IsSystemChannel(tt.channel); got != tt.isSystem {
				t.Errorf("IsSystemChannel = %v, want %v", got, tt.isSystem)
			}
		})
	}
}

func TestExtractTenantID(t *testing.T) {
	tests := []struct {
		name    string
		channel string
		want    string
		wantErr bool
	}{
		{"tenant channel", "tenant:t1:deployments", "t1", false},
		{"tenant only prefix", "tenant:t1", "t1", false},
		{"missing segment", "tenant:", "", true},
		{"bare keyword", "tenant", "", true},
		{"user channel", "user:u1:notifications", "", true},
		{"admin channel", "admin:metrics", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExtractTenantID(tt.channel)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidChannel) {
					t.Fatalf("expected ErrInvalidChannel, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("ExtractTenantID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtractOwner(t *testing.T) {
	tests := []struct {
		channel   string
		scope     Scope
		owner     string
		wantErr   bool
	}{
		{"tenant:t1:billing", ScopeTenant, "t1", false},
		{"user:u1:notifications", ScopeTenant, "u1", false},
		{"tenant:", ScopeTenant, "", true},
		{"user:", ScopeTenant, "", true},
		{"admin:alerts", ScopeAdmin, "", false},
		{"system:health", ScopeSystem, "", false},
		{"random", ScopeOther, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			scope, owner, err := ExtractOwner(tt.channel)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidChannel) {
					t.Fatalf("expected ErrInvalidChannel, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if scope != tt.scope || owner != tt.owner {
				t.Fatalf("ExtractOwner = (%s, %q), want (%s, %q)", scope, owner, tt.scope, tt.owner)
			}
		})
	}
}

func TestRequiredPermissionFirstMatchWins(t *testing.T) {
	tests := []struct {
		channel string
		want    string
		found   bool
	}{
		{"tenant:t1:deployments", "deploy:write", true},
		{"tenant:t1:billing", "billing:read", true},
		{"admin:metrics", "metrics:read", true},
		{"tenant:t1:exams", "exams:read", true},
		{"system:health", "", false},
		// "notifications" appears before "exams" in the channel but
		// the ordered list is scanned, not the channel: first list
		// entry whose keyword the channel contains wins.
		{"user:u1:notifications", "notifications:read", true},
	}

	for _, tt := range tests {
		t.Run(tt.channel, func(t *testing.T) {
			got, found := RequiredPermission(tt.channel)
			if found != tt.found || got != tt.want {
				t.Fatalf("RequiredPermission = (%q, %v), want (%q, %v)", got, found, tt.want, tt.found)
			}
		})
	}
}
