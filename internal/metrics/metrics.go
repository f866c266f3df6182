// Package metrics holds the Prometheus collectors shared by the three cache
// tiers and the query synthesizer: one *_total CounterVec per outcome, one
// *_duration_seconds HistogramVec per operation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CacheTier names the three caches of §2 for metric labels.
type CacheTier string

const (
	TierCodePlane    CacheTier = "code_plane"
	TierControlPlane CacheTier = "control_plane"
	TierDataPlane    CacheTier = "data_plane"
)

// Registry bundles every collector the gateway registers at startup.
type Registry struct {
	CacheHits      *prometheus.CounterVec
	CacheMisses    *prometheus.CounterVec
	CacheErrors    *prometheus.CounterVec
	CacheDuration  *prometheus.HistogramVec
	DriftDetected  *prometheus.CounterVec
	QueryDuration  *prometheus.HistogramVec
	QueryErrors    *prometheus.CounterVec
	DispatchStatus *prometheus.CounterVec
}

// NewRegistry constructs and registers the gateway's collectors against the
// given registerer (pass prometheus.DefaultRegisterer in production, a fresh
// prometheus.NewRegistry() in tests to avoid collisions across test runs).
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		CacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgrestgw_cache_hits_total",
				Help: "Total number of cache hits, by tier.",
			},
			[]string{"tier"},
		),
		CacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgrestgw_cache_misses_total",
				Help: "Total number of cache misses, by tier.",
			},
			[]string{"tier"},
		),
		CacheErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgrestgw_cache_errors_total",
				Help: "Total number of cache I/O errors, by tier. Never fails a request (§7).",
			},
			[]string{"tier"},
		),
		CacheDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgrestgw_cache_operation_duration_seconds",
				Help:    "Duration of cache tier operations.",
				Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"tier", "operation"},
		),
		DriftDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgrestgw_schema_drift_total",
				Help: "Total number of detected schema-drift events, by table.",
			},
			[]string{"table"},
		),
		QueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pgrestgw_query_duration_seconds",
				Help:    "Duration of synthesized SQL statement execution.",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"table", "operation"},
		),
		QueryErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgrestgw_query_errors_total",
				Help: "Total number of synthesized query execution errors.",
			},
			[]string{"table", "operation"},
		),
		DispatchStatus: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pgrestgw_dispatch_responses_total",
				Help: "Total number of dispatched responses, by HTTP status class.",
			},
			[]string{"table", "status"},
		),
	}
}
