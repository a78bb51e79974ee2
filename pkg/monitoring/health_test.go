package monitoring

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct{ err error }

func (f fakePinger) HealthCheck(ctx context.Context) error { return f.err }

func TestCheckHealthAggregation(t *testing.T) {
	hc := NewHealthChecker("herald", "1.0.0")
	hc.AddCheck("ok", func() CheckResult { return CheckResult{Status: StatusHealthy} })

	if got := hc.CheckHealth(); got.Status != StatusHealthy {
		t.Fatalf("status = %s, want healthy", got.Status)
	}

	hc.AddCheck("slow", func() CheckResult { return CheckResult{Status: StatusDegraded} })
	if got := hc.CheckHealth(); got.Status != StatusDegraded {
		t.Fatalf("status = %s, want degraded", got.Status)
	}

	hc.AddCheck("down", func() CheckResult { return CheckResult{Status: StatusUnhealthy} })
	if got := hc.CheckHealth(); got.Status != StatusUnhealthy {
		t.Fatalf("status = %s, want unhealthy", got.Status)
	}
}

func TestBrokerHealthCheck(t *testing.T) {
	if got := BrokerHealthCheck(nil)(); got.Status != StatusUnhealthy {
		t.Fatalf("nil client should be unhealthy, got %s", got.Status)
	}
	if got := BrokerHealthCheck(fakePinger{})(); got.Status != StatusHealthy {
		t.Fatalf("healthy pinger reported %s", got.Status)
	}
	if got := BrokerHealthCheck(fakePinger{err: errors.New("refused")})(); got.Status != StatusUnhealthy {
		t.Fatalf("failing pinger reported %s", got.Status)
	}
}

func TestConfigurationHealthCheck(t *testing.T) {
	check := ConfigurationHealthCheck(map[string]string{"JWT_SECRET": "set", "BROKER_SECRET": ""})
	if got := check(); got.Status != StatusUnhealthy {
		t.Fatalf("missing config should be unhealthy, got %s", got.Status)
	}

	check = ConfigurationHealthCheck(map[string]string{"JWT_SECRET": "set"})
	if got := check(); got.Status != StatusHealthy {
		t.Fatalf("complete config reported %s", got.Status)
	}
}
