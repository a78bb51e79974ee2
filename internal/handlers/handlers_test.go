package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"neostack/eventservice/internal/authz"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/internal/publishers"
	"neostack/eventservice/pkg/auth"
	"neostack/eventservice/pkg/logging"
)

type fakeBroker struct {
	publishErr error
	channels   []string
}

func (f *fakeBroker) Connect(ctx context.Context) error { return nil }

func (f *fakeBroker) Publish(ctx context.Context, channel string, payload []byte) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.channels = append(f.channels, channel)
	return nil
}

func (f *fakeBroker) HealthCheck(ctx context.Context) error { return nil }
func (f *fakeBroker) Close() error                          { return nil }

type fixture struct {
	router *gin.Engine
	auth   *auth.Service
	broker *fakeBroker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := logging.NewLogger()
	authService := auth.NewService(auth.Config{
		CredentialSecret: "credential-secret",
		BrokerSecret:     "broker-secret",
	})
	m := metrics.New(logger)
	authorizer := authz.New(authz.Config{}, nil, m, logger)

	b := &fakeBroker{}
	set := publishers.NewSet(b, m, logger)
	if err := set.Connect(context.Background()); err != nil {
		t.Fatalf("connect publishers: %v", err)
	}

	router := gin.New()
	h := NewHeraldHandlers(authService, authorizer, set, m, logger)
	h.RegisterRoutes(router)

	return &fixture{router: router, auth: authService, broker: b}
}

func (f *fixture) token(t *testing.T, userID, tenantID string, roles, permissions []string) string {
	t.Helper()
	token, err := f.auth.IssueAccessToken(userID, tenantID, roles, permissions)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestAuthMiddleware(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/auth/permissions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/auth/permissions", "not-a-jwt", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("garbage token: status %d", rec.Code)
	}

	token := f.token(t, "u1", "t1", []string{"admin"}, []string{"deploy:write"})
	rec = f.do(t, http.MethodGet, "/auth/permissions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d body %s", rec.Code, rec.Body)
	}

	var summary authz.PermissionSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &summary); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !summary.IsAdmin || summary.IsSuperAdmin {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestRefreshFlow(t *testing.T) {
	f := newFixture(t)

	refresh, err := f.auth.IssueRefreshToken("u1", "t1", nil, nil)
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}

	rec := f.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": refresh})
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh: status %d body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, err := f.auth.Authenticate(resp.Token); err != nil {
		t.Fatalf("minted token rejected: %v", err)
	}

	// An access token is not accepted as a refresh token.
	access := f.token(t, "u1", "t1", nil, nil)
	rec = f.do(t, http.MethodPost, "/auth/refresh", "", gin.H{"refresh_token": access})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("access-as-refresh: status %d", rec.Code)
	}
}

func TestConnectionToken(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, "u1", "t1", []string{"user"}, nil)

	rec := f.do(t, http.MethodGet, "/auth/connection-token", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}

	var resp struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := f.auth.ParseConnectionToken(resp.Token)
	if err != nil {
		t.Fatalf("parse connection token: %v", err)
	}
	if claims.User != "u1" || claims.TenantID != "t1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestValidateSubscription(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, "u1", "t1", nil, nil)

	rec := f.do(t, http.MethodPost, "/subscriptions/validate", token, gin.H{
		"channels": []string{"tenant:t1:billing", "tenant:t2:billing", "admin:metrics"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}

	var result authz.SubscriptionResult
	if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(result.Allowed) != 1 || result.Allowed[0] != "tenant:t1:billing" || len(result.Denied) != 2 {
		t.Fatalf("result = %+v", result)
	}
}

func TestDeploymentEndpoints(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, "u1", "t1", nil, []string{"deploy:write"})

	rec := f.do(t, http.MethodPost, "/events/deployments/start", token, gin.H{
		"tenant_id":     "t1",
		"instance_type": "odoo",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("start: status %d body %s", rec.Code, rec.Body)
	}

	var started struct {
		Event struct {
			DeploymentID string `json:"deployment_id"`
		} `json:"event"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode: %v", err)
	}
	depID := started.Event.DeploymentID
	if depID == "" {
		t.Fatalf("no deployment id in %s", rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/events/deployments/progress", token, gin.H{
		"tenant_id":     "t1",
		"deployment_id": depID,
		"instance_type": "odoo",
		"progress":      40,
		"current_step":  "installing modules",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("progress: status %d body %s", rec.Code, rec.Body)
	}

	rec = f.do(t, http.MethodPost, "/events/deployments/complete", token, gin.H{
		"tenant_id":     "t1",
		"deployment_id": depID,
		"instance_type": "odoo",
		"instance_url":  "https://odoo.t1.example.com",
		"credentials":   gin.H{"admin_password": "hunter2"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("complete: status %d body %s", rec.Code, rec.Body)
	}
	if bytes.Contains(rec.Body.Bytes(), []byte("hunter2")) {
		t.Fatal("response leaked credential value")
	}

	// The lifecycle is closed: further progress is a client error.
	rec = f.do(t, http.MethodPost, "/events/deployments/progress", token, gin.H{
		"tenant_id":     "t1",
		"deployment_id": depID,
		"instance_type": "odoo",
		"progress":      99,
		"current_step":  "late step",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("progress after complete: status %d body %s", rec.Code, rec.Body)
	}
}

func TestPublishAuthorization(t *testing.T) {
	f := newFixture(t)

	// No deploy:write permission.
	token := f.token(t, "u1", "t1", nil, nil)
	rec := f.do(t, http.MethodPost, "/events/deployments/start", token, gin.H{
		"tenant_id":     "t1",
		"instance_type": "odoo",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("missing permission: status %d body %s", rec.Code, rec.Body)
	}

	// Cross-tenant publish.
	token = f.token(t, "u1", "t1", nil, []string{"deploy:write"})
	rec = f.do(t, http.MethodPost, "/events/deployments/start", token, gin.H{
		"tenant_id":     "t2",
		"instance_type": "odoo",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("cross-tenant: status %d body %s", rec.Code, rec.Body)
	}

	// Platform-wide alert needs an admin role.
	token = f.token(t, "u1", "t1", nil, []string{"alerts:read"})
	rec = f.do(t, http.MethodPost, "/events/alerts", token, gin.H{
		"severity": "critical",
		"message":  "disk full",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin platform alert: status %d body %s", rec.Code, rec.Body)
	}

	token = f.token(t, "u1", "t1", []string{"admin"}, []string{"alerts:read"})
	rec = f.do(t, http.MethodPost, "/events/alerts", token, gin.H{
		"severity": "critical",
		"message":  "disk full",
		"source":   "monitor",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin platform alert: status %d body %s", rec.Code, rec.Body)
	}
	if f.broker.channels[len(f.broker.channels)-1] != "admin:alerts" {
		t.Fatalf("channels = %v", f.broker.channels)
	}
}

func TestPublishFailureMapsToBadGateway(t *testing.T) {
	f := newFixture(t)
	f.broker.publishErr = errors.New("broker down")

	token := f.token(t, "u1", "t1", nil, []string{"notifications:read"})
	rec := f.do(t, http.MethodPost, "/events/notifications", token, gin.H{
		"tenant_id": "t1",
		"title":     "Hello",
		"message":   "World",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
}

func TestNotificationTargets(t *testing.T) {
	f := newFixture(t)

	// A user may publish to their own notification channel.
	token := f.token(t, "u1", "t1", nil, []string{"notifications:read"})
	rec := f.do(t, http.MethodPost, "/events/notifications", token, gin.H{
		"user_id": "u1",
		"title":   "Hi",
		"message": "there",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("own user channel: status %d body %s", rec.Code, rec.Body)
	}

	// But not to someone else's.
	rec = f.do(t, http.MethodPost, "/events/notifications", token, gin.H{
		"user_id": "u2",
		"title":   "Hi",
		"message": "there",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("foreign user channel: status %d body %s", rec.Code, rec.Body)
	}

	// Maintenance notices ride the system channel, admin only.
	rec = f.do(t, http.MethodPost, "/events/notifications", token, gin.H{
		"type":    "maintenance",
		"title":   "Downtime",
		"message": "tonight",
	})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin maintenance: status %d body %s", rec.Code, rec.Body)
	}

	admin := f.token(t, "u1", "t1", []string{"admin"}, nil)
	rec = f.do(t, http.MethodPost, "/events/notifications", admin, gin.H{
		"type":    "maintenance",
		"title":   "Downtime",
		"message": "tonight",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("admin maintenance: status %d body %s", rec.Code, rec.Body)
	}
}

func TestNilMetricsHandle(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logging.NewLogger()
	authService := auth.NewService(auth.Config{
		CredentialSecret: "credential-secret",
		BrokerSecret:     "broker-secret",
	})
	authorizer := authz.New(authz.Config{}, nil, nil, logger)

	b := &fakeBroker{}
	set := publishers.NewSet(b, nil, logger)
	if err := set.Connect(context.Background()); err != nil {
		t.Fatalf("connect publishers: %v", err)
	}

	router := gin.New()
	NewHeraldHandlers(authService, authorizer, set, nil, logger).RegisterRoutes(router)
	f := &fixture{router: router, auth: authService, broker: b}

	rec := f.do(t, http.MethodGet, "/auth/permissions", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}

	token := f.token(t, "u1", "t1", nil, nil)
	rec = f.do(t, http.MethodGet, "/auth/permissions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("valid token: status %d body %s", rec.Code, rec.Body)
	}
}

func TestRateLimitedPublishReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	logger := logging.NewLogger()
	authService := auth.NewService(auth.Config{
		CredentialSecret: "credential-secret",
		BrokerSecret:     "broker-secret",
	})
	m := metrics.New(logger)
	limiter := authz.NewMemoryLimiter(0, 0) // every request over budget
	authorizer := authz.New(authz.Config{RateLimitEnabled: true}, limiter, m, logger)

	b := &fakeBroker{}
	set := publishers.NewSet(b, m, logger)
	if err := set.Connect(context.Background()); err != nil {
		t.Fatalf("connect publishers: %v", err)
	}

	router := gin.New()
	NewHeraldHandlers(authService, authorizer, set, m, logger).RegisterRoutes(router)
	f := &fixture{router: router, auth: authService, broker: b}

	token := f.token(t, "u1", "t1", nil, []string{"presence:read"})
	rec := f.do(t, http.MethodPost, "/events/presence", token, gin.H{
		"type":      "presence_join",
		"tenant_id": "t1",
		"user_id":   "u1",
		"user_name": "Ana",
	})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status %d body %s", rec.Code, rec.Body)
	}
}
