package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// PostGenerationsTotal counts generation attempts by outcome
	// status: "success", "error", "rate_limited", "validation_failed",
	// "blocked", "budget_exceeded"
	PostGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_generations_total",
			Help: "Total number of AI post generation attempts by status",
		},
		[]string{"status"},
	)

	// GenerationDuration tracks end-to-end LLM generation latency
	GenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "post_generation_duration_seconds",
			Help:    "AI post generation duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	// GenerationCostUSD accumulates estimated LLM spend
	GenerationCostUSD = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "post_generation_cost_usd_total",
			Help: "Estimated cumulative LLM cost in USD",
		},
	)

	// RateLimitHitsTotal counts denied rate-limit checks by tier
	RateLimitHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_hits_total",
			Help: "Total number of requests denied by the rate limiter",
		},
		[]string{"tier"},
	)

	// InjectionPatternHitsTotal counts sanitizer pattern matches by
	// pattern ID. The matched content itself is never recorded.
	InjectionPatternHitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "injection_pattern_hits_total",
			Help: "Total number of injection pattern matches by pattern ID",
		},
		[]string{"pattern"},
	)

	// InputBlockedTotal counts inputs rejected wholesale by the sanitizer
	InputBlockedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "input_blocked_total",
			Help: "Total number of inputs rejected as adversarial",
		},
	)

	// QualitySeverityTotal counts quality-gate verdicts by severity bucket
	QualitySeverityTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_severity_total",
			Help: "Total number of quality gate evaluations by severity",
		},
		[]string{"severity"},
	)

	// AutoRepairsTotal counts drafts rewritten by the quality gate
	AutoRepairsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "quality_auto_repairs_total",
			Help: "Total number of drafts auto-repaired by the quality gate",
		},
	)
)

// RegisterMetrics registers all Prometheus metrics
// This is called during application startup
func RegisterMetrics() {
	// Metrics are auto-registered via promauto, but we keep this function
	// for consistency and future manual registration if needed
}
