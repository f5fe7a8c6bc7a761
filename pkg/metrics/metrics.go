// Package metrics defines the Prometheus metric collectors used by the
// crawler, indexer and searcher and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. Recording helpers accept a nil
// receiver so library code can run without a registry.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	PagesCommittedTotal prometheus.Counter
	FetchErrorsTotal    *prometheus.CounterVec
	FetchRetriesTotal   prometheus.Counter
	FetchDuration       prometheus.Histogram
	FrontierSize        prometheus.Gauge

	DocsIndexedTotal  prometheus.Counter
	IndexTerms        *prometheus.GaugeVec
	IndexBuildSeconds prometheus.Histogram

	SearchQueriesTotal  *prometheus.CounterVec
	SearchLatency       *prometheus.HistogramVec
	SearchResultsCount  prometheus.Histogram
	CacheHitsTotal      prometheus.Counter
	CacheMissesTotal    prometheus.Counter
	CircuitBreakerState *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
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
		PagesCommittedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_pages_committed_total",
				Help: "Pages fetched and written to the page store.",
			},
		),
		FetchErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_fetch_errors_total",
				Help: "Fetch failures by kind (transient, permanent, abandoned).",
			},
			[]string{"kind"},
		),
		FetchRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_fetch_retries_total",
				Help: "URLs re-enqueued after a transient failure.",
			},
		),
		FetchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_fetch_duration_seconds",
				Help:    "Page fetch latency in seconds.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
		),
		FrontierSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_frontier_size",
				Help: "URLs waiting in the crawl frontier.",
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docs_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexTerms: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_terms",
				Help: "Distinct terms per inverted index.",
			},
			[]string{"field"},
		),
		IndexBuildSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "index_build_duration_seconds",
				Help:    "Wall time of a full index build.",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Total search queries by rank mode and result type (hit, zero_result, error).",
			},
			[]string{"rank", "result_type"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search query latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
			[]string{"cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of cache misses.",
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
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.PagesCommittedTotal,
		m.FetchErrorsTotal,
		m.FetchRetriesTotal,
		m.FetchDuration,
		m.FrontierSize,
		m.DocsIndexedTotal,
		m.IndexTerms,
		m.IndexBuildSeconds,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) PageCommitted() {
	if m == nil {
		return
	}
	m.PagesCommittedTotal.Inc()
}

func (m *Metrics) FetchObserved(d time.Duration) {
	if m == nil {
		return
	}
	m.FetchDuration.Observe(d.Seconds())
}

// FetchFailed counts a failure of the given kind; a "transient" failure that
// is being retried also bumps the retry counter.
func (m *Metrics) FetchFailed(kind string, retried bool) {
	if m == nil {
		return
	}
	m.FetchErrorsTotal.WithLabelValues(kind).Inc()
	if retried {
		m.FetchRetriesTotal.Inc()
	}
}

func (m *Metrics) SetFrontier(n int) {
	if m == nil {
		return
	}
	m.FrontierSize.Set(float64(n))
}

func (m *Metrics) DocIndexed() {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Inc()
}

func (m *Metrics) IndexBuilt(d time.Duration, titleTerms, bodyTerms int) {
	if m == nil {
		return
	}
	m.IndexBuildSeconds.Observe(d.Seconds())
	m.IndexTerms.WithLabelValues("title").Set(float64(titleTerms))
	m.IndexTerms.WithLabelValues("body").Set(float64(bodyTerms))
}

func (m *Metrics) SearchObserved(rank, resultType, cacheStatus string, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.SearchQueriesTotal.WithLabelValues(rank, resultType).Inc()
	m.SearchLatency.WithLabelValues(cacheStatus).Observe(d.Seconds())
	m.SearchResultsCount.Observe(float64(results))
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
	} else {
		m.CacheMissesTotal.Inc()
	}
}

func (m *Metrics) BreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
