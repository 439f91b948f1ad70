package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions      prometheus.Gauge
	sessionTransitions  *prometheus.CounterVec
	sessionLoadDuration prometheus.Histogram
	sessionSaveDuration prometheus.Histogram

	toolExecutionTotal    *prometheus.CounterVec
	toolExecutionDuration *prometheus.HistogramVec
	toolErrorsTotal       *prometheus.CounterVec
	toolCancellations     *prometheus.CounterVec

	traceExportsTotal *prometheus.CounterVec
	tracesStored      prometheus.Gauge

	gatewayClients prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "agentsim_persisted_sessions",
					Help: "Number of session records on disk.",
				},
			),
			sessionTransitions: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentsim_session_transitions_total",
					Help: "Session state transitions by target state.",
				},
				[]string{"state"},
			),
			sessionLoadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentsim_session_load_duration_seconds",
					Help:    "Time spent replaying a session record.",
					Buckets: prometheus.DefBuckets,
				},
			),
			sessionSaveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "agentsim_session_append_duration_seconds",
					Help:    "Time spent appending to a session record.",
					Buckets: prometheus.DefBuckets,
				},
			),
			toolExecutionTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentsim_tool_execution_total",
					Help: "Tool executions by tool and outcome.",
				},
				[]string{"tool", "outcome"},
			),
			toolExecutionDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agentsim_tool_execution_duration_seconds",
					Help:    "Tool execution duration by tool.",
					Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
				},
				[]string{"tool"},
			),
			toolErrorsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentsim_tool_errors_total",
					Help: "Failed tool executions by tool and error type.",
				},
				[]string{"tool", "error_type"},
			),
			toolCancellations: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentsim_tool_cancellations_total",
					Help: "Cancelled tool executions by tool.",
				},
				[]string{"tool"},
			),
			traceExportsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agentsim_trace_exports_total",
					Help: "Golden trace exports by format and status.",
				},
				[]string{"format", "status"},
			),
			tracesStored: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "agentsim_traces_stored",
					Help: "Golden traces indexed in the catalog.",
				},
			),
			gatewayClients: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "agentsim_gateway_clients",
					Help: "Connected websocket clients.",
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionTransitions,
			m.sessionLoadDuration,
			m.sessionSaveDuration,
			m.toolExecutionTotal,
			m.toolExecutionDuration,
			m.toolErrorsTotal,
			m.toolCancellations,
			m.traceExportsTotal,
			m.tracesStored,
			m.gatewayClients,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionTransition(state string) {
	getMetrics().sessionTransitions.WithLabelValues(state).Inc()
}

func RecordSessionLoad(duration time.Duration) {
	getMetrics().sessionLoadDuration.Observe(duration.Seconds())
}

func RecordSessionSave(duration time.Duration) {
	getMetrics().sessionSaveDuration.Observe(duration.Seconds())
}

// Tool execution outcomes
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// RecordToolExecution counts one finished invocation. errorType is ignored
// unless outcome is OutcomeError.
func RecordToolExecution(tool, outcome, errorType string, duration time.Duration) {
	m := getMetrics()
	m.toolExecutionTotal.WithLabelValues(tool, outcome).Inc()
	m.toolExecutionDuration.WithLabelValues(tool).Observe(duration.Seconds())
	switch outcome {
	case OutcomeError:
		m.toolErrorsTotal.WithLabelValues(tool, errorType).Inc()
	case OutcomeCancelled:
		m.toolCancellations.WithLabelValues(tool).Inc()
	}
}

func RecordTraceExport(format string, success bool) {
	status := "error"
	if success {
		status = "success"
	}
	getMetrics().traceExportsTotal.WithLabelValues(format, status).Inc()
}

func SetTracesStored(count int) {
	getMetrics().tracesStored.Set(float64(count))
}

func SetGatewayClients(count int) {
	getMetrics().gatewayClients.Set(float64(count))
}
