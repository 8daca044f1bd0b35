package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/termbed/termbed/internal/sessions"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsSpawned *prometheus.CounterVec
	SessionsActive  prometheus.Gauge
	SessionExits    *prometheus.CounterVec
	Kills           prometheus.Counter
	Resizes         prometheus.Counter

	// Console metrics
	ConsoleEvals  prometheus.Counter
	ConsoleEvents prometheus.Counter

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// New creates a metrics collector registered on reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbed_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "termbed_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),

		SessionsSpawned: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbed_sessions_spawned_total",
				Help: "Total number of sessions spawned, by platform",
			},
			[]string{"platform"},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termbed_sessions_active",
				Help: "Number of currently running sessions",
			},
		),
		SessionExits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbed_session_exits_total",
				Help: "Total number of session exits, by outcome",
			},
			[]string{"outcome"},
		),
		Kills: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termbed_session_kills_total",
				Help: "Total number of session kill requests",
			},
		),
		Resizes: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termbed_session_resizes_total",
				Help: "Total number of applied session resizes",
			},
		),

		ConsoleEvals: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termbed_console_evals_total",
				Help: "Total number of console evaluations",
			},
		),
		ConsoleEvents: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "termbed_console_events_total",
				Help: "Total number of log events recorded by the console store",
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termbed_ws_connections",
				Help: "Number of open WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "termbed_ws_messages_total",
				Help: "Total number of WebSocket messages, by type and direction",
			},
			[]string{"type", "direction"},
		),

		Uptime: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "termbed_uptime_seconds",
				Help: "Process uptime in seconds",
			},
		),
	}
}

// Every recorder is nil-safe so components can treat metrics as
// optional.

// SessionSpawned records a spawn and bumps the active gauge.
func (m *Metrics) SessionSpawned(platform string) {
	if m == nil {
		return
	}
	m.SessionsSpawned.WithLabelValues(platform).Inc()
	m.SessionsActive.Inc()
}

// SessionExited records a completed session with its outcome and drops
// the active gauge.
func (m *Metrics) SessionExited(status sessions.ExitStatus, err error) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionExits.WithLabelValues(outcome(status, err)).Inc()
}

func outcome(status sessions.ExitStatus, err error) string {
	switch {
	case err != nil:
		return "error"
	case status.Success():
		return "success"
	default:
		if _, ok := status.Signal(); ok {
			return "signal"
		}
		if _, ok := status.Code(); ok {
			return "failure"
		}
		return "unknown"
	}
}

// SessionKilled records a kill request.
func (m *Metrics) SessionKilled() {
	if m == nil {
		return
	}
	m.Kills.Inc()
}

// SessionResized records an applied resize.
func (m *Metrics) SessionResized() {
	if m == nil {
		return
	}
	m.Resizes.Inc()
}

// ConsoleEvaluated records one console evaluation.
func (m *Metrics) ConsoleEvaluated() {
	if m == nil {
		return
	}
	m.ConsoleEvals.Inc()
}

// ConsoleEventRecorded records one log event reaching the store.
func (m *Metrics) ConsoleEventRecorded() {
	if m == nil {
		return
	}
	m.ConsoleEvents.Inc()
}

// WSConnected / WSDisconnected track the open-connection gauge.
func (m *Metrics) WSConnected() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

func (m *Metrics) WSDisconnected() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}

// WSMessage records one WebSocket message. direction is "in" or "out".
func (m *Metrics) WSMessage(msgType, direction string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(msgType, direction).Inc()
}

// UpdateUptime refreshes the uptime gauge.
func (m *Metrics) UpdateUptime() {
	if m == nil {
		return
	}
	m.Uptime.Set(time.Since(m.startTime).Seconds())
}
