// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestDuration tracks HTTP request duration.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// RequestsTotal tracks total HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// LLMCallDuration tracks language-model call duration.
	LLMCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Language model call duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"model", "status"},
	)

	// LLMTokensTotal tracks total LLM tokens processed.
	LLMTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "llm_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// SecurityRejectionsTotal counts inputs rejected by the security gate.
	SecurityRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_security_rejections_total",
			Help: "Inputs rejected by the security gate",
		},
		[]string{"input_type", "reason"},
	)

	// RateLimitedTotal counts requests rejected by the per-feature limiter.
	RateLimitedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_rate_limited_total",
			Help: "Requests rejected by the per-user feature quota",
		},
		[]string{"feature"},
	)

	// IntentsTotal counts classified intents by category and source.
	IntentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_intents_total",
			Help: "Classified intents",
		},
		[]string{"category", "source"},
	)

	// ValidationFailuresTotal counts actions rejected by business validation.
	ValidationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_validation_failures_total",
			Help: "Actions rejected by business validation",
		},
		[]string{"code"},
	)

	// CommitsTotal counts commit attempts by tool and status.
	CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_commits_total",
			Help: "Commit attempts by tool",
		},
		[]string{"tool", "status"},
	)

	// UpstreamFailuresTotal counts failed collaborator calls.
	UpstreamFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_upstream_failures_total",
			Help: "Failed calls to external collaborators",
		},
		[]string{"collaborator"},
	)

	// PendingOperations tracks parked operations awaiting user input.
	PendingOperations = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "assistant_pending_operations",
			Help: "Pending operations held in the conversation store",
		},
		[]string{"kind"},
	)
)

// RecordRequest records metrics for an HTTP request.
func RecordRequest(method, path, status string, duration float64) {
	RequestDuration.WithLabelValues(method, path, status).Observe(duration)
	RequestsTotal.WithLabelValues(method, path, status).Inc()
}

// RecordLLMCall records metrics for a language-model call.
func RecordLLMCall(model, status string, duration float64, tokensIn, tokensOut int) {
	LLMCallDuration.WithLabelValues(model, status).Observe(duration)
	LLMTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	LLMTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordUpstreamFailure increments the failure counter for a collaborator.
func RecordUpstreamFailure(collaborator string) {
	UpstreamFailuresTotal.WithLabelValues(collaborator).Inc()
}

// SetPending publishes the current pending-operation counts.
func SetPending(events, orders int) {
	PendingOperations.WithLabelValues("event").Set(float64(events))
	PendingOperations.WithLabelValues("order").Set(float64(orders))
}
