package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for turns, model requests, tool
// executions and the HTTP surface. A nil *Metrics records nothing.
type Metrics struct {
	// Labels: termination (final_answer|max_steps|cancelled|error)
	TurnsTotal   *prometheus.CounterVec
	TurnDuration prometheus.Histogram
	ActiveTurns  prometheus.Gauge

	// Labels: status (success|error)
	ModelRequests        *prometheus.CounterVec
	ModelRequestDuration prometheus.Histogram

	// Labels: tool, status (success|<error kind>)
	ToolExecutions        *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	// Labels: server
	RemoteTools *prometheus.GaugeVec

	// Labels: method, path, code
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// creates unregistered collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		TurnsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dylan_turns_total",
			Help: "Completed agent turns by termination reason",
		}, []string{"termination"}),
		TurnDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dylan_turn_duration_seconds",
			Help:    "Duration of agent turns in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		ActiveTurns: f.NewGauge(prometheus.GaugeOpts{
			Name: "dylan_active_turns",
			Help: "Agent turns currently running",
		}),
		ModelRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dylan_model_requests_total",
			Help: "Model gateway requests by status",
		}, []string{"status"}),
		ModelRequestDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "dylan_model_request_duration_seconds",
			Help:    "Duration of model gateway requests in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		ToolExecutions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dylan_tool_executions_total",
			Help: "Tool dispatches by tool and status",
		}, []string{"tool", "status"}),
		ToolExecutionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dylan_tool_execution_duration_seconds",
			Help:    "Duration of tool dispatches in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"tool"}),
		RemoteTools: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dylan_remote_tools",
			Help: "Tools currently published by each remote tool server",
		}, []string{"server"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dylan_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "path", "code"}),
	}
}

// TurnStarted marks a turn as running.
func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.ActiveTurns.Inc()
}

// TurnFinished records a completed turn.
func (m *Metrics) TurnFinished(termination string, d time.Duration) {
	if m == nil {
		return
	}
	m.ActiveTurns.Dec()
	m.TurnsTotal.WithLabelValues(termination).Inc()
	m.TurnDuration.Observe(d.Seconds())
}

// ModelRequest records one model gateway call.
func (m *Metrics) ModelRequest(err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.ModelRequests.WithLabelValues(status).Inc()
	m.ModelRequestDuration.Observe(d.Seconds())
}

// ToolExecution records one tool dispatch. status is "success" or the
// failure kind.
func (m *Metrics) ToolExecution(tool, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ToolExecutions.WithLabelValues(tool, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(tool).Observe(d.Seconds())
}

// SetRemoteTools records how many tools server currently publishes.
func (m *Metrics) SetRemoteTools(server string, n int) {
	if m == nil {
		return
	}
	m.RemoteTools.WithLabelValues(server).Set(float64(n))
}

// HTTPRequest records one served request.
func (m *Metrics) HTTPRequest(method, path string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, path, strconv.Itoa(code)).Inc()
}
