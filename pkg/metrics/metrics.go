// Package metrics defines the Prometheus collectors of the search service.
// StartServer exposes them for scraping on a dedicated port.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	ReopensTotal         *prometheus.CounterVec
	ReopenDuration       *prometheus.HistogramVec
	LiveGenerations      prometheus.Gauge
	GenerationDocs       *prometheus.GaugeVec
	AuxiliaryReloads     *prometheus.CounterVec
	AuxiliaryRecords     *prometheus.GaugeVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all collectors and registers them with reg. A nil reg uses
// the process-wide default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total queries by operation (search, autocomplete, find) and outcome.",
			},
			[]string{"operation", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Query latency in seconds by operation.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"operation"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Total hits matched per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 1000},
			},
			[]string{"operation"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of result cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of result cache misses.",
			},
		),
		ReopensTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_reopens_total",
				Help: "Index reopen attempts by outcome (published, unchanged, skipped, failed).",
			},
			[]string{"outcome"},
		),
		ReopenDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "index_reopen_phase_seconds",
				Help:    "Duration of each reopen phase (reopen, build, warm).",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"phase"},
		),
		LiveGenerations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "index_live_generations",
				Help: "Generations built and not yet closed (current plus retired ones still held).",
			},
		),
		GenerationDocs: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_generation_documents",
				Help: "Document counts of the current generation by kind (max, live, latest, latest_stable).",
			},
			[]string{"kind"},
		),
		AuxiliaryReloads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "auxiliary_reloads_total",
				Help: "Auxiliary data reloads by outcome.",
			},
			[]string{"outcome"},
		),
		AuxiliaryRecords: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "auxiliary_records",
				Help: "Records in the current auxiliary snapshot by table.",
			},
			[]string{"table"},
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
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.ReopensTotal,
		m.ReopenDuration,
		m.LiveGenerations,
		m.GenerationDocs,
		m.AuxiliaryReloads,
		m.AuxiliaryRecords,
		m.CircuitBreakerState,
	)

	return m
}

// NewNop returns collectors registered on a throwaway registry, for tests
// and tools that do not expose /metrics.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}
