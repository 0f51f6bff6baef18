package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TierAttempts counts tier evaluations by tier
	TierAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlagent_tier_attempts_total",
		Help: "Tier attempts by tier.",
	}, []string{"tier"})

	// Outcomes counts tier outcomes by tier and case
	Outcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlagent_tier_outcomes_total",
		Help: "Tier evaluation outcomes by tier and case.",
	}, []string{"tier", "case"})

	// Rejections counts validator rejections by category
	Rejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlagent_validation_rejections_total",
		Help: "Candidate rejections by error category.",
	}, []string{"category"})

	// ModelLatency observes backend call latency
	ModelLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sqlagent_model_call_seconds",
		Help:    "Model backend call latency.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	}, []string{"provider", "model", "outcome"})

	// BreakerState reports each backend's circuit state (0 closed, 1 open, 2 half-open)
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "sqlagent_backend_circuit_state",
		Help: "Circuit breaker state per backend.",
	}, []string{"backend"})

	// Runs counts completed runs by status
	Runs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sqlagent_runs_total",
		Help: "Completed runs by status.",
	}, []string{"status"})
)
