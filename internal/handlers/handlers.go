package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"neostack/eventservice/internal/authz"
	"neostack/eventservice/internal/channels"
	"neostack/eventservice/internal/events"
	"neostack/eventservice/internal/metrics"
	"neostack/eventservice/internal/publishers"
	"neostack/eventservice/pkg/auth"
	"neostack/eventservice/pkg/logging"
)

const principalKey = "auth_context"

// HeraldHandlers contains the HTTP handlers for the service.
type HeraldHandlers struct {
	auth       *auth.Service
	authorizer *authz.Authorizer
	publishers *publishers.Set
	metrics    *metrics.Metrics
	logger     logging.Logger
	startTime  time.Time
}

// NewHeraldHandlers creates a new handlers instance.
func NewHeraldHandlers(authService *auth.Service, authorizer *authz.Authorizer, set *publishers.Set, m *metrics.Metrics, logger logging.Logger) *HeraldHandlers {
	return &HeraldHandlers{
		auth:       authService,
		authorizer: authorizer,
		publishers: set,
		metrics:    m,
		logger:     logger,
		startTime:  time.Now(),
	}
}

// RegisterRoutes mounts every API route on the router.
func (h *HeraldHandlers) RegisterRoutes(router *gin.Engine) {
	router.POST("/auth/refresh", h.HandleRefresh)

	authed := router.Group("/")
	authed.Use(h.AuthMiddleware())
	{
		authed.GET("/auth/connection-token", h.HandleConnectionToken)
		authed.GET("/auth/permissions", h.HandlePermissions)
		authed.POST("/subscriptions/validate", h.HandleValidateSubscription)

		deployments := authed.Group("/events/deployments")
		{
			deployments.POST("/start", h.HandleDeploymentStart)
			deployments.POST("/progress", h.HandleDeploymentProgress)
			deployments.POST("/complete", h.HandleDeploymentComplete)
			deployments.POST("/error", h.HandleDeploymentError)
		}

		authed.POST("/events/billing", h.HandleBillingEvent)
		authed.POST("/events/metrics", h.HandleMetricsEvent)
		authed.POST("/events/alerts", h.HandleAlertEvent)
		authed.POST("/events/presence", h.HandlePresenceEvent)
		authed.POST("/events/notifications", h.HandleNotificationEvent)
	}
}

// AuthMiddleware authenticates the bearer token and binds the principal to
// the request context.
func (h *HeraldHandlers) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			h.trackAuth(time.Since(start), false)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		principal, err := h.auth.Authenticate(strings.TrimPrefix(header, "Bearer "))
		h.trackAuth(time.Since(start), err == nil)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// trackAuth records authentication outcomes. The metrics handle is optional,
// matching the authorizer and the publishers.
func (h *HeraldHandlers) trackAuth(duration time.Duration, success bool) {
	if h.metrics != nil {
		h.metrics.TrackAuth(duration, success)
	}
}

func (h *HeraldHandlers) principal(c *gin.Context) *auth.AuthContext {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil
	}
	principal, _ := v.(*auth.AuthContext)
	return principal
}

// HandleRefresh exchanges a refresh token for a fresh access token.
func (h *HeraldHandlers) HandleRefresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refresh_token is required"})
		return
	}

	token, principal, err := h.auth.Refresh(req.RefreshToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": principal.ExpiresAt.UTC(),
		"principal":  principal,
	})
}

// HandleConnectionToken mints a broker connection token for the caller.
func (h *HeraldHandlers) HandleConnectionToken(c *gin.Context) {
	principal := h.principal(c)

	token, err := h.auth.ConnectionToken(principal)
	if err != nil {
		h.logger.WithError(err).Error("Failed to mint connection token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to mint connection token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

// HandlePermissions returns the caller's authorization summary.
func (h *HeraldHandlers) HandlePermissions(c *gin.Context) {
	c.JSON(http.StatusOK, authz.Summary(h.principal(c)))
}

// HandleValidateSubscription partitions the requested channels into allowed
// and denied.
func (h *HeraldHandlers) HandleValidateSubscription(c *gin.Context) {
	var req struct {
		Channels []string `json:"channels" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "channels is required"})
		return
	}

	result := h.authorizer.ValidateSubscription(c.Request.Context(), h.principal(c), req.Channels)
	c.JSON(http.StatusOK, result)
}

// authorizePublish runs the channel authorization pipeline and writes the
// error response itself when the caller may not publish.
func (h *HeraldHandlers) authorizePublish(c *gin.Context, channel string) bool {
	allowed, err := h.authorizer.Authorize(c.Request.Context(), h.principal(c), channel, authz.ActionPublish)
	switch {
	case errors.Is(err, authz.ErrRateLimitExceeded):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return false
	case errors.Is(err, channels.ErrInvalidChannel):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel"})
		return false
	case err != nil:
		h.logger.WithError(err).Error("Authorization failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "authorization failed"})
		return false
	case !allowed:
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return false
	}
	return true
}

// respondPublish maps publisher errors onto HTTP statuses.
func (h *HeraldHandlers) respondPublish(c *gin.Context, event any, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"success": true, "event": event})
	case errors.Is(err, events.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, events.ErrNotInitialized):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "publisher unavailable"})
	default:
		h.logger.WithError(err).Error("Publish failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "publish failed"})
	}
}

// HandleDeploymentStart opens a deployment lifecycle.
func (h *HeraldHandlers) HandleDeploymentStart(c *gin.Context) {
	var req struct {
		TenantID     string `json:"tenant_id" binding:"required"`
		InstanceType string `json:"instance_type" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tenant_id and instance_type are required"})
		return
	}

	channel := channels.TenantChannel(channels.TenantDeployments, req.TenantID)
	if !h.authorizePublish(c, channel) {
		return
	}

	event, err := h.publishers.Deployments.PublishStart(c.Request.Context(), req.TenantID, events.InstanceType(req.InstanceType))
	h.respondPublish(c, event, err)
}

type deploymentRef struct {
	TenantID     string `json:"tenant_id" binding:"required"`
	DeploymentID string `json:"deployment_id" binding:"required"`
	InstanceType string `json:"instance_type" binding:"required"`
}

// HandleDeploymentProgress reports progress within a lifecycle.
func (h *HeraldHandlers) HandleDeploymentProgress(c *gin.Context) {
	var req struct {
		deploymentRef
		Progress    int    `json:"progress"`
		CurrentStep string `json:"current_step" binding:"required"`
		Log         string `json:"log"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel := channels.TenantChannel(channels.TenantDeployments, req.TenantID)
	if !h.authorizePublish(c, channel) {
		return
	}

	event, err := h.publishers.Deployments.PublishProgress(c.Request.Context(), req.TenantID, req.DeploymentID,
		events.InstanceType(req.InstanceType), req.Progress, req.CurrentStep, req.Log)
	h.respondPublish(c, event, err)
}

// HandleDeploymentComplete closes a lifecycle successfully.
func (h *HeraldHandlers) HandleDeploymentComplete(c *gin.Context) {
	var req struct {
		deploymentRef
		InstanceURL string            `json:"instance_url" binding:"required"`
		Credentials map[string]string `json:"credentials"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel := channels.TenantChannel(channels.TenantDeployments, req.TenantID)
	if !h.authorizePublish(c, channel) {
		return
	}

	event, err := h.publishers.Deployments.PublishCompletion(c.Request.Context(), req.TenantID, req.DeploymentID,
		events.InstanceType(req.InstanceType), req.InstanceURL, publishers.Credentials(req.Credentials))
	h.respondPublish(c, event, err)
}

// HandleDeploymentError closes a lifecycle with a failure.
func (h *HeraldHandlers) HandleDeploymentError(c *gin.Context) {
	var req struct {
		deploymentRef
		Error string `json:"error" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel := channels.TenantChannel(channels.TenantDeployments, req.TenantID)
	if !h.authorizePublish(c, channel) {
		return
	}

	event, err := h.publishers.Deployments.PublishError(c.Request.Context(), req.TenantID, req.DeploymentID,
		events.InstanceType(req.InstanceType), req.Error)
	h.respondPublish(c, event, err)
}

// HandleBillingEvent publishes one billing event, dispatched on its type.
func (h *HeraldHandlers) HandleBillingEvent(c *gin.Context) {
	var req struct {
		Type      string  `json:"type" binding:"required"`
		TenantID  string  `json:"tenant_id" binding:"required"`
		Status    string  `json:"status"`
		Amount    float64 `json:"amount"`
		Currency  string  `json:"currency"`
		InvoiceID string  `json:"invoice_id"`
		PaymentID string  `json:"payment_id"`
		PlanName  string  `json:"plan_name"`
		Message   string  `json:"message"`
		Resource  string  `json:"resource"`
		Usage     float64 `json:"usage"`
		Limit     float64 `json:"limit"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel := channels.TenantChannel(channels.TenantBilling, req.TenantID)
	if !h.authorizePublish(c, channel) {
		return
	}

	ctx := c.Request.Context()
	var (
		event *events.BillingEvent
		err   error
	)
	switch req.Type {
	case events.TypeBillingInvoice:
		event, err = h.publishers.Billing.PublishInvoice(ctx, req.TenantID, req.InvoiceID, req.Amount, req.Currency, req.Message)
	case events.TypeBillingPayment:
		event, err = h.publishers.Billing.PublishPayment(ctx, req.TenantID, req.PaymentID, req.Status, req.Amount, req.Currency, req.Message)
	case events.TypeBillingUsageAlert:
		event, err = h.publishers.Billing.PublishUsageAlert(ctx, req.TenantID, req.Resource, req.Usage, req.Limit)
	case events.TypeBillingPlanChange:
		event, err = h.publishers.Billing.PublishPlanChange(ctx, req.TenantID, req.PlanName, req.Message)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown billing event type"})
		return
	}
	h.respondPublish(c, event, err)
}

// HandleMetricsEvent publishes a usage snapshot. An empty tenant_id targets
// the admin metrics channel.
func (h *HeraldHandlers) HandleMetricsEvent(c *gin.Context) {
	var req struct {
		Type     string                 `json:"type"`
		TenantID string                 `json:"tenant_id"`
		Data     events.MetricsSnapshot `json:"data"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel := channels.AdminMetrics
	if req.TenantID != "" {
		channel = channels.TenantChannel(channels.TenantMetrics, req.TenantID)
	}
	if !h.authorizePublish(c, channel) {
		return
	}

	ctx := c.Request.Context()
	var (
		event *events.MetricsEvent
		err   error
	)
	switch req.Type {
	case events.TypeMetricsThreshold:
		event, err = h.publishers.Usage.PublishThreshold(ctx, req.TenantID, req.Data)
	case events.TypeMetricsAnomaly:
		event, err = h.publishers.Usage.PublishAnomaly(ctx, req.TenantID, req.Data)
	default:
		event, err = h.publishers.Usage.PublishUpdate(ctx, req.TenantID, req.Data)
	}
	h.respondPublish(c, event, err)
}

// HandleAlertEvent publishes an alert. An empty tenant_id targets the admin
// alerts channel.
func (h *HeraldHandlers) HandleAlertEvent(c *gin.Context) {
	var req struct {
		Severity string `json:"severity" binding:"required"`
		TenantID string `json:"tenant_id"`
		Message  string `json:"message" binding:"required"`
		Source   string `json:"source"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel := channels.AdminAlerts
	if req.TenantID != "" {
		channel = channels.TenantChannel(channels.TenantAlerts, req.TenantID)
	}
	if !h.authorizePublish(c, channel) {
		return
	}

	ctx := c.Request.Context()
	var (
		event *events.AlertEvent
		err   error
	)
	switch req.Severity {
	case events.SeverityCritical:
		event, err = h.publishers.Alerts.PublishCritical(ctx, req.TenantID, req.Message, req.Source)
	case events.SeverityWarning:
		event, err = h.publishers.Alerts.PublishWarning(ctx, req.TenantID, req.Message, req.Source)
	case events.SeverityInfo:
		event, err = h.publishers.Alerts.PublishInfo(ctx, req.TenantID, req.Message, req.Source)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown alert severity"})
		return
	}
	h.respondPublish(c, event, err)
}

// HandlePresenceEvent publishes a presence change for the caller's tenant.
func (h *HeraldHandlers) HandlePresenceEvent(c *gin.Context) {
	var req struct {
		Type        string `json:"type" binding:"required"`
		TenantID    string `json:"tenant_id" binding:"required"`
		UserID      string `json:"user_id" binding:"required"`
		UserName    string `json:"user_name"`
		Status      string `json:"status"`
		CurrentPage string `json:"current_page"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	channel := channels.TenantChannel(channels.TenantPresence, req.TenantID)
	if !h.authorizePublish(c, channel) {
		return
	}

	ctx := c.Request.Context()
	var (
		event *events.PresenceEvent
		err   error
	)
	switch req.Type {
	case events.TypePresenceJoin:
		event, err = h.publishers.Presence.PublishJoin(ctx, req.TenantID, req.UserID, req.UserName)
	case events.TypePresenceLeave:
		event, err = h.publishers.Presence.PublishLeave(ctx, req.TenantID, req.UserID, req.UserName)
	case events.TypePresenceUpdate:
		event, err = h.publishers.Presence.PublishUpdate(ctx, req.TenantID, req.UserID, req.UserName, req.Status, req.CurrentPage)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown presence event type"})
		return
	}
	h.respondPublish(c, event, err)
}

// HandleNotificationEvent delivers a notification to a user, a tenant or,
// for announcements and maintenance notices, a system channel.
func (h *HeraldHandlers) HandleNotificationEvent(c *gin.Context) {
	var req struct {
		Type     string                      `json:"type"`
		TenantID string                      `json:"tenant_id"`
		UserID   string                      `json:"user_id"`
		Title    string                      `json:"title" binding:"required"`
		Message  string                      `json:"message" binding:"required"`
		Priority string                      `json:"priority"`
		Category string                      `json:"category"`
		Actions  []events.NotificationAction `json:"actions"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	n := publishers.Notification{
		Title:    req.Title,
		Message:  req.Message,
		Priority: req.Priority,
		Category: req.Category,
		Actions:  req.Actions,
	}

	ctx := c.Request.Context()
	var (
		channel string
		publish func() (*events.NotificationEvent, error)
	)
	switch {
	case req.Type == events.TypeAnnouncement:
		channel = channels.SystemAnnouncements
		publish = func() (*events.NotificationEvent, error) {
			return h.publishers.Notifications.PublishAnnouncement(ctx, n)
		}
	case req.Type == events.TypeMaintenance:
		channel = channels.SystemMaintenance
		publish = func() (*events.NotificationEvent, error) {
			return h.publishers.Notifications.PublishMaintenance(ctx, n)
		}
	case req.UserID != "":
		channel = channels.UserChannel(req.UserID)
		publish = func() (*events.NotificationEvent, error) {
			return h.publishers.Notifications.PublishToUser(ctx, req.UserID, n)
		}
	case req.TenantID != "":
		channel = channels.TenantChannel(channels.TenantNotifications, req.TenantID)
		publish = func() (*events.NotificationEvent, error) {
			return h.publishers.Notifications.PublishToTenant(ctx, req.TenantID, n)
		}
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id or tenant_id is required"})
		return
	}

	if !h.authorizePublish(c, channel) {
		return
	}

	event, err := publish()
	h.respondPublish(c, event, err)
}
