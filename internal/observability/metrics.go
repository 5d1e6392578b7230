// Package observability provides the Prometheus metrics and OpenTelemetry
// tracing wired through the engine, orchestrator, and transport layers.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized registry of the counters/histograms/gauges the
// runtime exposes on its internal /metrics handler.
//
// A nil *Metrics is valid everywhere it's accepted (Engine.SetMetrics,
// transport.Server) so a process started without a metrics listener still
// runs; every Record* method is a nil-receiver no-op.
type Metrics struct {
	IterationsTotal  prometheus.Counter
	IterationsByRun  *prometheus.HistogramVec

	LLMRequestDuration *prometheus.HistogramVec
	LLMRequestCounter  *prometheus.CounterVec
	LLMTokensUsed      *prometheus.CounterVec

	ToolExecutionCounter  *prometheus.CounterVec
	ToolExecutionDuration *prometheus.HistogramVec

	RecoveryAttempts *prometheus.CounterVec
	LoopAborts       prometheus.Counter

	ActiveSessions prometheus.Gauge

	HTTPRequestDuration *prometheus.HistogramVec
	HTTPRequestCounter  *prometheus.CounterVec
}

// NewMetrics registers every metric against prometheus's default registry.
// Call once at process startup.
func NewMetrics() *Metrics {
	return &Metrics{
		IterationsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentrunner_iterations_total",
			Help: "Total number of ReAct loop iterations across all runs.",
		}),
		IterationsByRun: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrunner_run_iterations",
				Help:    "Number of iterations consumed by a single Engine.Run call.",
				Buckets: []float64{1, 2, 5, 10, 20, 40, 60, 100},
			},
			[]string{"outcome"},
		),

		LLMRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrunner_llm_request_duration_seconds",
				Help:    "Duration of LLM completion calls in seconds.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"provider", "model"},
		),
		LLMRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrunner_llm_requests_total",
				Help: "Total LLM completion calls by provider, model, and outcome.",
			},
			[]string{"provider", "model", "status"},
		),
		LLMTokensUsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrunner_llm_tokens_total",
				Help: "Total tokens consumed by provider, model, and token type.",
			},
			[]string{"provider", "model", "type"},
		),

		ToolExecutionCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrunner_tool_executions_total",
				Help: "Total tool dispatches by tool name and outcome.",
			},
			[]string{"tool_name", "status"},
		),
		ToolExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrunner_tool_execution_duration_seconds",
				Help:    "Duration of tool dispatches in seconds.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"tool_name"},
		),

		RecoveryAttempts: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrunner_recovery_attempts_total",
				Help: "Total self-healing recovery attempts by outcome.",
			},
			[]string{"status"},
		),
		LoopAborts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "agentrunner_loop_detection_aborts_total",
			Help: "Total runs stopped by repeated-action loop detection.",
		}),

		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "agentrunner_active_sessions",
			Help: "Current number of sessions bound in memory.",
		}),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentrunner_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
			[]string{"method", "path", "status_code"},
		),
		HTTPRequestCounter: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentrunner_http_requests_total",
				Help: "Total HTTP requests by method, path, and status code.",
			},
			[]string{"method", "path", "status_code"},
		),
	}
}

// RecordIteration increments the running iteration counter for one loop tick.
func (m *Metrics) RecordIteration() {
	if m == nil {
		return
	}
	m.IterationsTotal.Inc()
}

// RecordRunOutcome records the total iteration count spent on a completed run.
func (m *Metrics) RecordRunOutcome(outcome string, iterations int) {
	if m == nil {
		return
	}
	m.IterationsByRun.WithLabelValues(outcome).Observe(float64(iterations))
}

// RecordLLMRequest records one LLM completion call.
func (m *Metrics) RecordLLMRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.LLMRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.LLMRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.LLMTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolExecution records one tool dispatch.
func (m *Metrics) RecordToolExecution(toolName, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.ToolExecutionCounter.WithLabelValues(toolName, status).Inc()
	m.ToolExecutionDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordRecoveryAttempt records the outcome of one self-healing retry.
func (m *Metrics) RecordRecoveryAttempt(status string) {
	if m == nil {
		return
	}
	m.RecoveryAttempts.WithLabelValues(status).Inc()
}

// RecordLoopAbort records a run terminated by repeated-action detection.
func (m *Metrics) RecordLoopAbort() {
	if m == nil {
		return
	}
	m.LoopAborts.Inc()
}

// SessionBound/SessionClosed track the active-sessions gauge.
func (m *Metrics) SessionBound() {
	if m == nil {
		return
	}
	m.ActiveSessions.Inc()
}

func (m *Metrics) SessionClosed() {
	if m == nil {
		return
	}
	m.ActiveSessions.Dec()
}

// RecordHTTPRequest records one served HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(method, path, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
}
