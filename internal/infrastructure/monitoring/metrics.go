package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsByStatus    *prometheus.GaugeVec
	SessionsCreated     *prometheus.CounterVec
	SessionsClosed      prometheus.Counter
	AdmissionRejections *prometheus.CounterVec
	BufferOverflows     *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a metrics collector with its own registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		// HTTP metrics
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhub_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termhub_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		// Session metrics
		SessionsByStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "termhub_sessions",
				Help: "Number of live sessions by status",
			},
			[]string{"status"},
		),
		SessionsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhub_sessions_created_total",
				Help: "Total number of sessions created",
			},
			[]string{"terminal_type"},
		),
		SessionsClosed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termhub_sessions_closed_total",
				Help: "Total number of sessions closed",
			},
		),
		AdmissionRejections: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhub_admission_rejections_total",
				Help: "Session creates rejected before spawning",
			},
			[]string{"reason"},
		),
		BufferOverflows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhub_buffer_overflows_total",
				Help: "Output appends that discarded old lines",
			},
			[]string{"buffer"},
		),

		// WebSocket metrics
		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termhub_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termhub_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "termhub_uptime_seconds",
			Help: "Server uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Handler exposes the registry in Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetSessionCounts publishes the per-status session gauge
func (m *Metrics) SetSessionCounts(creating, active, paused int) {
	if m == nil {
		return
	}
	m.SessionsByStatus.WithLabelValues("creating").Set(float64(creating))
	m.SessionsByStatus.WithLabelValues("active").Set(float64(active))
	m.SessionsByStatus.WithLabelValues("paused").Set(float64(paused))
}

// IncSessionsCreated counts a successful create
func (m *Metrics) IncSessionsCreated(terminalType string) {
	if m == nil {
		return
	}
	m.SessionsCreated.WithLabelValues(terminalType).Inc()
}

// IncSessionsClosed counts a session reaching closed
func (m *Metrics) IncSessionsClosed() {
	if m == nil {
		return
	}
	m.SessionsClosed.Inc()
}

// IncAdmissionRejection counts a rejected create
func (m *Metrics) IncAdmissionRejection(reason string) {
	if m == nil {
		return
	}
	m.AdmissionRejections.WithLabelValues(reason).Inc()
}

// IncBufferOverflow counts a trimming append on the live or paused buffer
func (m *Metrics) IncBufferOverflow(buffer string) {
	if m == nil {
		return
	}
	m.BufferOverflows.WithLabelValues(buffer).Inc()
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
