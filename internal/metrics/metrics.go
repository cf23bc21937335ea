// Package metrics holds the Prometheus collectors shared across services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UpstreamRequests counts calls to external services by outcome.
	UpstreamRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinewise_upstream_requests_total",
			Help: "Requests made to external services",
		},
		[]string{"service", "operation", "outcome"},
	)

	// UpstreamLatency observes upstream call durations.
	UpstreamLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cinewise_upstream_request_duration_seconds",
			Help:    "Duration of requests to external services",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"service", "operation"},
	)

	// BreakerState reports circuit breaker state (0=closed, 1=half-open, 2=open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cinewise_circuit_breaker_state",
			Help: "Circuit breaker state per upstream service",
		},
		[]string{"service"},
	)

	// GeneratorFallbacks counts cycles served from the mock recommendation list.
	GeneratorFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinewise_generator_fallbacks_total",
			Help: "Recommendation requests answered by the local fallback list",
		},
		[]string{"reason"},
	)

	// CandidateOutcomes counts what happened to each candidate in a cycle.
	CandidateOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinewise_candidates_total",
			Help: "Candidates processed by the aggregation pipeline",
		},
		[]string{"outcome"}, // kept, excluded, unresolved, panicked
	)

	// Cycles counts aggregation cycles by kind and result.
	Cycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinewise_aggregation_cycles_total",
			Help: "Aggregation cycles run",
		},
		[]string{"kind", "result"}, // kind: search|more; result: items|exhausted|error|stale
	)

	// WatchlistSize tracks the number of saved entries.
	WatchlistSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cinewise_watchlist_entries",
			Help: "Entries currently in the watchlist",
		},
	)

	// RateLimitHits counts API requests rejected by the per-IP limiter.
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cinewise_rate_limit_hits_total",
			Help: "Requests rejected by the API rate limiter",
		},
		[]string{"route"},
	)
)
