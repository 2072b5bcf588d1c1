// Package metrics defines the server's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	labelTool    = "tool"
	labelOutcome = "outcome"
	labelMethod  = "method"
	labelPath    = "path"
	labelStatus  = "status"
)

// Tool call outcomes.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds every collector, registered on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	ToolCalls        *prometheus.CounterVec
	ToolDuration     *prometheus.HistogramVec
	SessionFallbacks prometheus.Counter
	Requests         *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
}

// New creates and registers the collectors, plus the Go runtime and process
// collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ToolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "weft_tool_calls_total",
				Help: "MCP tool calls by tool and outcome",
			},
			[]string{labelTool, labelOutcome},
		),
		ToolDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "weft_tool_duration_seconds",
				Help:    "MCP tool call latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{labelTool},
		),
		SessionFallbacks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "weft_session_fallbacks_total",
				Help: "Tool calls that fell back to the shared default session",
			},
		),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests",
			},
			[]string{labelMethod, labelPath, labelStatus},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "http_request_duration_seconds",
				Help: "HTTP latency",
			},
			[]string{labelMethod, labelPath},
		),
	}

	reg.MustRegister(
		m.ToolCalls,
		m.ToolDuration,
		m.SessionFallbacks,
		m.Requests,
		m.RequestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveTool records one tool call.
func (m *Metrics) ObserveTool(tool, outcome string, elapsed time.Duration) {
	m.ToolCalls.WithLabelValues(tool, outcome).Inc()
	m.ToolDuration.WithLabelValues(tool).Observe(elapsed.Seconds())
}

// SessionFallback counts one call resolved to the fallback session.
func (m *Metrics) SessionFallback() {
	m.SessionFallbacks.Inc()
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(method, path, status string, elapsed time.Duration) {
	m.Requests.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
