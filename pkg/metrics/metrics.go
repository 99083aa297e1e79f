// Package metrics defines the Prometheus collectors used by the resolver,
// ranking engine, frequency index and quota counter, and exposes an HTTP
// handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the core.
type Metrics struct {
	ResolutionsTotal      *prometheus.CounterVec
	IntegrityWarnings     *prometheus.CounterVec
	RankQueriesTotal      *prometheus.CounterVec
	RankLatency           prometheus.Histogram
	RankFallbacksTotal    *prometheus.CounterVec
	IndexRebuildsTotal    *prometheus.CounterVec
	IndexRebuildDuration  prometheus.Histogram
	IndexedContentSets    prometheus.Gauge
	QuotaDecisionsTotal   *prometheus.CounterVec
	QuotaStoreErrorsTotal prometheus.Counter
	CircuitBreakerState   *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. Pass
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ResolutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edition_resolutions_total",
				Help: "Edition resolutions by system and outcome (single, transition, not_found).",
			},
			[]string{"system", "outcome"},
		),
		IntegrityWarnings: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edition_integrity_warnings_total",
				Help: "Data integrity problems detected (edition overlaps and gaps, passage parent cycles), by kind.",
			},
			[]string{"kind"},
		),
		RankQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_queries_total",
				Help: "Per-content-set ranking calls by outcome (hit, zero_result, empty_query).",
			},
			[]string{"outcome"},
		),
		RankLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rank_latency_seconds",
				Help:    "Per-content-set ranking latency in seconds.",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
			},
		),
		RankFallbacksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rank_unweighted_fallbacks_total",
				Help: "Ranking calls scored without IDF weights, by reason (missing, stale).",
			},
			[]string{"reason"},
		),
		IndexRebuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "frequency_index_rebuilds_total",
				Help: "Frequency index rebuilds by status.",
			},
			[]string{"status"},
		),
		IndexRebuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "frequency_index_rebuild_seconds",
				Help:    "Frequency index rebuild duration in seconds.",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
			},
		),
		IndexedContentSets: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "frequency_index_content_sets",
				Help: "Number of content sets with a live frequency snapshot.",
			},
		),
		QuotaDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "quota_decisions_total",
				Help: "Quota decisions by tier and outcome (admitted, denied, unavailable).",
			},
			[]string{"tier", "outcome"},
		),
		QuotaStoreErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "quota_store_errors_total",
				Help: "Quota counter store failures.",
			},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.ResolutionsTotal,
		m.IntegrityWarnings,
		m.RankQueriesTotal,
		m.RankLatency,
		m.RankFallbacksTotal,
		m.IndexRebuildsTotal,
		m.IndexRebuildDuration,
		m.IndexedContentSets,
		m.QuotaDecisionsTotal,
		m.QuotaStoreErrorsTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
