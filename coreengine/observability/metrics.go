// Package observability provides Prometheus metrics instrumentation for goalrunner.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// =============================================================================
// RUN METRICS
// =============================================================================

var (
	runsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalrunner_runs_total",
			Help: "Total number of orchestrator runs",
		},
		[]string{"status"}, // status: success, unsatisfied, error
	)

	runDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goalrunner_run_duration_seconds",
			Help:    "Orchestrator run duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	goalSatisfaction = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "goalrunner_goal_satisfaction",
			Help:    "Goal satisfaction score reported by the planner",
			Buckets: prometheus.LinearBuckets(0.1, 0.1, 10),
		},
	)
)

// =============================================================================
// AGENT METRICS
// =============================================================================

var (
	agentExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalrunner_agent_executions_total",
			Help: "Total number of agent executions",
		},
		[]string{"agent", "status"}, // status: planned, completed, error
	)

	agentDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goalrunner_agent_duration_seconds",
			Help:    "Agent execution duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"agent"},
	)

	agentRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalrunner_agent_retries_total",
			Help: "Low-confidence re-runs charged to the shared iteration budget",
		},
		[]string{"agent"},
	)
)

// =============================================================================
// LLM METRICS
// =============================================================================

var (
	llmCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalrunner_llm_calls_total",
			Help: "Total number of LLM API calls",
		},
		[]string{"provider", "model", "status"}, // status: success, error, timeout
	)

	llmDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goalrunner_llm_duration_seconds",
			Help:    "LLM call duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)
)

// =============================================================================
// EXTERNAL API METRICS
// =============================================================================

var (
	externalCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalrunner_external_calls_total",
			Help: "Total calls to launch and weather data providers",
		},
		[]string{"service", "status"}, // status: HTTP code or "error"
	)

	externalDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goalrunner_external_call_duration_seconds",
			Help:    "External data call duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
		},
		[]string{"service"},
	)
)

// =============================================================================
// GRPC METRICS
// =============================================================================

var (
	grpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "goalrunner_grpc_requests_total",
			Help: "Total gRPC requests",
		},
		[]string{"method", "status"}, // status: OK, InvalidArgument, Internal, etc.
	)

	grpcRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "goalrunner_grpc_request_duration_seconds",
			Help:    "gRPC request duration in seconds",
			Buckets: []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
		},
		[]string{"method"},
	)
)

// =============================================================================
// PUBLIC API
// =============================================================================

// RecordRun records one orchestrator run.
func RecordRun(status string, durationMS int) {
	runsTotal.WithLabelValues(status).Inc()
	runDurationSeconds.Observe(float64(durationMS) / 1000.0)
}

// RecordGoalSatisfaction records the final evaluation score of a run.
func RecordGoalSatisfaction(score float64) {
	goalSatisfaction.Observe(score)
}

// RecordAgentExecution records agent execution metrics.
// This should be called after agent processing completes.
func RecordAgentExecution(agent string, status string, durationMS int) {
	agentExecutionsTotal.WithLabelValues(agent, status).Inc()
	agentDurationSeconds.WithLabelValues(agent).Observe(float64(durationMS) / 1000.0)
}

// RecordAgentRetry records one low-confidence re-run.
func RecordAgentRetry(agent string) {
	agentRetriesTotal.WithLabelValues(agent).Inc()
}

// RecordLLMCall records LLM call metrics.
// This should be called after LLM generation completes.
func RecordLLMCall(provider string, model string, status string, durationMS int) {
	llmCallsTotal.WithLabelValues(provider, model, status).Inc()
	llmDurationSeconds.WithLabelValues(provider, model).Observe(float64(durationMS) / 1000.0)
}

// RecordExternalCall records a launch or weather API call.
func RecordExternalCall(service string, status string, durationMS int) {
	externalCallsTotal.WithLabelValues(service, status).Inc()
	externalDurationSeconds.WithLabelValues(service).Observe(float64(durationMS) / 1000.0)
}

// RecordGRPCRequest records gRPC request metrics.
// This should be called from gRPC interceptors.
func RecordGRPCRequest(method string, status string, durationMS int) {
	grpcRequestsTotal.WithLabelValues(method, status).Inc()
	grpcRequestDurationSeconds.WithLabelValues(method).Observe(float64(durationMS) / 1000.0)
}

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.Handler()
}
