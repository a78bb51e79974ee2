package metrics

import (
	"bytes"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"

	"neostack/eventservice/pkg/logging"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusFailure = "failure"
)

// Metrics is the gateway's metrics registry. Each instance owns its own
// prometheus registry so tests and embedders can construct isolated ones.
// Every tracking call is fire-and-forget: a recording failure is logged and
// swallowed, never propagated to the operation being observed.
type Metrics struct {
	registry *prometheus.Registry
	logger   logging.Logger

	eventsPublished      *prometheus.CounterVec
	eventsReceived       *prometheus.CounterVec
	connectionAttempts   *prometheus.CounterVec
	channelSubscriptions *prometheus.CounterVec
	authFailures         *prometheus.CounterVec
	authzFailures        *prometheus.CounterVec

	publishLatency    *prometheus.HistogramVec
	authLatency       *prometheus.HistogramVec
	authzLatency      *prometheus.HistogramVec
	connectionLatency *prometheus.HistogramVec
	eventSize         *prometheus.HistogramVec

	activeConnections  *prometheus.GaugeVec
	activeChannels     *prometheus.GaugeVec
	channelSubscribers *prometheus.GaugeVec
	activeTenants      prometheus.Gauge
	memoryUsage        *prometheus.GaugeVec
}

// New creates a metrics registry with all gateway collectors registered.
func New(logger logging.Logger) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		logger:   logger,
	}

	m.eventsPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_published_total",
		Help: "Total number of events published",
	}, []string{"channel", "type", "tenant_id", "status"})

	m.eventsReceived = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "events_received_total",
		Help: "Total number of events received by clients",
	}, []string{"channel", "type", "tenant_id"})

	m.connectionAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "connection_attempts_total",
		Help: "Total number of broker connection attempts",
	}, []string{"status"})

	m.channelSubscriptions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_subscriptions_total",
		Help: "Total number of channel subscriptions",
	}, []string{"channel", "tenant_id", "status"})

	m.authFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "auth_failures_total",
		Help: "Total number of authentication failures",
	}, []string{"reason"})

	m.authzFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authz_failures_total",
		Help: "Total number of authorization failures",
	}, []string{"channel", "reason"})

	m.publishLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_publish_duration_seconds",
		Help:    "Time spent publishing events in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"channel", "type", "tenant_id"})

	m.authLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "auth_duration_seconds",
		Help:    "Time spent authenticating in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"status"})

	m.authzLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "authz_duration_seconds",
		Help:    "Time spent authorizing in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"channel", "action"})

	m.connectionLatency = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "connection_duration_seconds",
		Help:    "Time spent establishing broker connections in seconds",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"status"})

	m.eventSize = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "event_size_bytes",
		Help:    "Size of events in bytes",
		Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000},
	}, []string{"type"})

	m.activeConnections = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "active_connections",
		Help: "Number of active broker connections",
	}, []string{"tenant_id"})

	m.activeChannels = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "active_channels",
		Help: "Number of active channels",
	}, []string{"channel"})

	m.channelSubscribers = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "channel_subscribers",
		Help: "Number of subscribers per channel",
	}, []string{"channel"})

	m.activeTenants = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "active_tenants",
		Help: "Number of tenants with active connections",
	})

	m.memoryUsage = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "event_service_memory_bytes",
		Help: "Memory usage of the event service in bytes",
	}, []string{"type"})

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.eventsPublished, m.eventsReceived, m.connectionAttempts,
		m.channelSubscriptions, m.authFailures, m.authzFailures,
		m.publishLatency, m.authLatency, m.authzLatency,
		m.connectionLatency, m.eventSize,
		m.activeConnections, m.activeChannels, m.channelSubscribers,
		m.activeTenants, m.memoryUsage,
	)

	return m
}

// guard swallows panics from metric recording so observation can never mask
// or replace the observed operation's outcome.
func (m *Metrics) guard() {
	if r := recover(); r != nil && m.logger != nil {
		m.logger.WithField("panic", r).Error("Metrics recording failed")
	}
}

// TrackPublish records outcome, latency and payload size for one publish.
func (m *Metrics) TrackPublish(channel, eventType, tenantID string, duration time.Duration, sizeBytes int, success bool) {
	defer m.guard()
	status := StatusSuccess
	if !success {
		status = StatusError
	}
	m.eventsPublished.WithLabelValues(channel, eventType, tenantID, status).Inc()
	m.publishLatency.WithLabelValues(channel, eventType, tenantID).Observe(duration.Seconds())
	m.eventSize.WithLabelValues(eventType).Observe(float64(sizeBytes))
}

// TrackReceive records one event delivered to a client.
func (m *Metrics) TrackReceive(channel, eventType, tenantID string) {
	defer m.guard()
	m.eventsReceived.WithLabelValues(channel, eventType, tenantID).Inc()
}

// TrackConnectionAttempt records one broker connection attempt.
func (m *Metrics) TrackConnectionAttempt(success bool) {
	defer m.guard()
	status := StatusSuccess
	if !success {
		status = StatusFailure
	}
	m.connectionAttempts.WithLabelValues(status).Inc()
}

// TrackConnection records connection establishment latency.
func (m *Metrics) TrackConnection(duration time.Duration, success bool) {
	defer m.guard()
	status := StatusSuccess
	if !success {
		status = StatusFailure
	}
	m.connectionLatency.WithLabelValues(status).Observe(duration.Seconds())
}

// TrackChannelSubscription records one subscription request outcome.
func (m *Metrics) TrackChannelSubscription(channel, tenantID string, success bool) {
	defer m.guard()
	status := StatusSuccess
	if !success {
		status = StatusFailure
	}
	m.channelSubscriptions.WithLabelValues(channel, tenantID, status).Inc()
	if success {
		m.activeChannels.WithLabelValues(channel).Inc()
	}
}

// TrackAuth records authentication latency and failures.
func (m *Metrics) TrackAuth(duration time.Duration, success bool) {
	defer m.guard()
	status := StatusSuccess
	if !success {
		status = StatusFailure
	}
	m.authLatency.WithLabelValues(status).Observe(duration.Seconds())
	if !success {
		m.authFailures.WithLabelValues("invalid_token").Inc()
	}
}

// TrackAuthz records authorization latency, plus a failure counter when
// reason is non-empty ("unauthorized", "validation_error", "rate_limited").
func (m *Metrics) TrackAuthz(duration time.Duration, channel, action, reason string) {
	defer m.guard()
	m.authzLatency.WithLabelValues(channel, action).Observe(duration.Seconds())
	if reason != "" {
		m.authzFailures.WithLabelValues(channel, reason).Inc()
	}
}

// UpdateActiveConnections adjusts the per-tenant connection gauge.
func (m *Metrics) UpdateActiveConnections(tenantID string, delta float64) {
	defer m.guard()
	m.activeConnections.WithLabelValues(tenantID).Add(delta)
}

// UpdateChannelSubscribers adjusts the per-channel subscriber gauge.
func (m *Metrics) UpdateChannelSubscribers(channel string, delta float64) {
	defer m.guard()
	m.channelSubscribers.WithLabelValues(channel).Add(delta)
}

// UpdateActiveTenants adjusts the active tenant gauge.
func (m *Metrics) UpdateActiveTenants(delta float64) {
	defer m.guard()
	m.activeTenants.Add(delta)
}

// UpdateMemoryUsage samples process memory into the memory gauge.
func (m *Metrics) UpdateMemoryUsage() {
	defer m.guard()
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	m.memoryUsage.WithLabelValues("heap").Set(float64(stats.HeapAlloc))
	m.memoryUsage.WithLabelValues("sys").Set(float64(stats.Sys))
	m.memoryUsage.WithLabelValues("stack").Set(float64(stats.StackInuse))
}

// Export serializes the full registry in the Prometheus text format.
func (m *Metrics) Export() (string, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return "", err
		}
	}
	return buf.String(), nil
}

// IsHealthy reports whether the registry can serialize.
func (m *Metrics) IsHealthy() bool {
	_, err := m.Export()
	return err == nil
}

// Handler returns a gin handler exposing the registry for scraping.
func (m *Metrics) Handler() gin.HandlerFunc {
	handler := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return func(c *gin.Context) {
		handler.ServeHTTP(c.Writer, c.Request)
	}
}

// Registry exposes the underlying prometheus registry for test assertions.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
