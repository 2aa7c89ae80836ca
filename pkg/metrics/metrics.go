// Package metrics defines the Prometheus metric collectors used across the
// service and serves them for scraping.
//
// All recording helpers are nil-safe so components can run without metrics
// (tests, one-shot CLI calls).
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	AnswersTotal         *prometheus.CounterVec
	StageDuration        *prometheus.HistogramVec
	DocumentsRetrieved   prometheus.Histogram
	DocumentsDropped     prometheus.Counter
	ContextChars         prometheus.Histogram
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexVectors         prometheus.Gauge
	EmbeddingsTotal      *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates all metrics and registers them with the default registerer.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates all metrics and registers them with reg.
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
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		AnswersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_answers_total",
				Help: "Answer calls by outcome (answered, no_documents, no_context, error).",
			},
			[]string{"outcome"},
		),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "rag_stage_duration_seconds",
				Help:    "Latency of each pipeline stage in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"stage"},
		),
		DocumentsRetrieved: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_documents_retrieved",
				Help:    "Documents surviving retrieval per query.",
				Buckets: []float64{0, 1, 2, 3, 5, 10},
			},
		),
		DocumentsDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_documents_dropped_total",
				Help: "Search hits dropped because the backing file was missing or unreadable.",
			},
		),
		ContextChars: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "rag_context_chars",
				Help:    "Characters of assembled context per query.",
				Buckets: []float64{0, 250, 500, 1000, 2000, 4000, 8000, 16000},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_cache_hits_total",
				Help: "Total number of answer cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "rag_cache_misses_total",
				Help: "Total number of answer cache misses.",
			},
		),
		IndexVectors: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "rag_index_vectors",
				Help: "Number of vectors in the loaded index.",
			},
		),
		EmbeddingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "rag_embeddings_total",
				Help: "Documents processed by the index builder, by status (embedded, skipped, failed).",
			},
			[]string{"status"},
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
		m.AnswersTotal,
		m.StageDuration,
		m.DocumentsRetrieved,
		m.DocumentsDropped,
		m.ContextChars,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexVectors,
		m.EmbeddingsTotal,
		m.CircuitBreakerState,
	)

	return m
}

func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (m *Metrics) RecordAnswer(outcome string) {
	if m == nil {
		return
	}
	m.AnswersTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) RecordRetrieval(kept, dropped int) {
	if m == nil {
		return
	}
	m.DocumentsRetrieved.Observe(float64(kept))
	m.DocumentsDropped.Add(float64(dropped))
}

func (m *Metrics) RecordContext(chars int) {
	if m == nil {
		return
	}
	m.ContextChars.Observe(float64(chars))
}

func (m *Metrics) RecordCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.Inc()
		return
	}
	m.CacheMissesTotal.Inc()
}

func (m *Metrics) RecordEmbedding(status string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.EmbeddingsTotal.WithLabelValues(status).Add(float64(n))
}

// BeginRequest marks an HTTP request in flight. Call the returned function
// with the matched route and final status once it completes.
func (m *Metrics) BeginRequest(method string) func(route string, status int) {
	if m == nil {
		return func(string, int) {}
	}
	start := time.Now()
	m.HTTPRequestsInFlight.Inc()
	return func(route string, status int) {
		m.HTTPRequestsInFlight.Dec()
		m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
		m.HTTPRequestDuration.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}

func (m *Metrics) SetIndexVectors(n int) {
	if m == nil {
		return
	}
	m.IndexVectors.Set(float64(n))
}

func (m *Metrics) SetBreakerState(name string, state int) {
	if m == nil {
		return
	}
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
