// Package telemetry defines the Prometheus collectors for the memory
// service and exposes the scrape handler. Each Metrics instance carries
// its own registry so tests can create collectors freely.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the service.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	SearchesTotal      *prometheus.CounterVec
	SearchLatency      prometheus.Histogram
	SearchResultsCount prometheus.Histogram

	DocsIndexedTotal  prometheus.Counter
	DocsDeletedTotal  prometheus.Counter
	NamespaceDocCount *prometheus.GaugeVec

	SyncBatchesTotal  *prometheus.CounterVec
	SyncCursorRowID   prometheus.Gauge
	EmbedRequestsTotal *prometheus.CounterVec
}

// New creates all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memclawz_http_requests_total",
				Help: "HTTP requests by method, route, and status.",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "memclawz_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"method", "route"},
		),
		SearchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memclawz_searches_total",
				Help: "Search requests by outcome (ok, degraded, zero_result, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memclawz_search_latency_seconds",
				Help:    "Hybrid search latency in seconds, embedding included.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "memclawz_search_results_count",
				Help:    "Results returned per search.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100},
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memclawz_docs_indexed_total",
				Help: "Documents upserted into the indexes.",
			},
		),
		DocsDeletedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "memclawz_docs_deleted_total",
				Help: "Documents removed from the indexes.",
			},
		),
		NamespaceDocCount: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "memclawz_namespace_document_count",
				Help: "Documents currently indexed per namespace.",
			},
			[]string{"namespace"},
		),
		SyncBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memclawz_sync_batches_total",
				Help: "Sync batches by status (applied, failed).",
			},
			[]string{"status"},
		),
		SyncCursorRowID: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "memclawz_sync_cursor_rowid",
				Help: "Last memory log rowid applied by the sync loop.",
			},
		),
		EmbedRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "memclawz_embed_requests_total",
				Help: "Embedding requests by status (ok, error).",
			},
			[]string{"status"},
		),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SearchesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.DocsIndexedTotal,
		m.DocsDeletedTotal,
		m.NamespaceDocCount,
		m.SyncBatchesTotal,
		m.SyncCursorRowID,
		m.EmbedRequestsTotal,
	)

	return m
}

// Handler returns the scrape handler for this instance's registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
