// Package telemetry exposes Prometheus metrics for vaultrag's sync,
// embedding, retrieval, rerank, and LLM generation paths.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector vaultrag registers.
type Metrics struct {
	SyncOperations *prometheus.CounterVec
	SyncDuration   *prometheus.HistogramVec
	SyncedFiles    prometheus.Counter
	SyncedChunks   prometheus.Counter
	SyncErrors     *prometheus.CounterVec

	EmbeddingRequests *prometheus.CounterVec
	EmbeddingDuration *prometheus.HistogramVec
	EmbeddingErrors   *prometheus.CounterVec
	ModelDownloads    *prometheus.CounterVec

	DenseQueryDuration  prometheus.Histogram
	SparseQueryDuration prometheus.Histogram
	QueryResultCount    *prometheus.HistogramVec

	RerankRequests *prometheus.CounterVec
	RerankDuration prometheus.Histogram

	LLMRequests *prometheus.CounterVec
	LLMDuration *prometheus.HistogramVec
	LLMErrors   *prometheus.CounterVec

	CircuitBreakerState *prometheus.GaugeVec
	VectorStoreSize     prometheus.Gauge
}

// New creates and registers vaultrag's metrics against the default
// Prometheus registry.
func New(namespace string) *Metrics {
	return NewWithRegistry(namespace, prometheus.DefaultRegisterer)
}

// NewWithRegistry is New with an explicit registry, so tests don't collide
// with the global default registerer.
func NewWithRegistry(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "vaultrag"
	}

	counterVec := func(name, help string, labels []string) *prometheus.CounterVec {
		return promauto.With(reg).NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogramVec := func(name, help string, buckets []float64, labels []string) *prometheus.HistogramVec {
		return promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets}, labels)
	}
	histogram := func(name, help string, buckets []float64) prometheus.Histogram {
		return promauto.With(reg).NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: name, Help: help, Buckets: buckets})
	}
	counter := func(name, help string) prometheus.Counter {
		return promauto.With(reg).NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help})
	}
	gaugeVec := func(name, help string, labels []string) *prometheus.GaugeVec {
		return promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.With(reg).NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &Metrics{
		SyncOperations: counterVec("sync_operations_total", "Total sync operations by kind and status", []string{"kind", "status"}),
		SyncDuration:   histogramVec("sync_duration_seconds", "Sync duration in seconds", []float64{.1, .5, 1, 5, 10, 30, 60, 300}, []string{"kind"}),
		SyncedFiles:    counter("synced_files_total", "Total files synced"),
		SyncedChunks:   counter("synced_chunks_total", "Total chunks written"),
		SyncErrors:     counterVec("sync_errors_total", "Total sync errors by type", []string{"error_type"}),

		EmbeddingRequests: counterVec("embedding_requests_total", "Total embedding requests by provider and status", []string{"provider", "status"}),
		EmbeddingDuration: histogramVec("embedding_duration_seconds", "Embedding call duration in seconds", []float64{.01, .05, .1, .25, .5, 1, 2.5, 5}, []string{"provider"}),
		EmbeddingErrors:   counterVec("embedding_errors_total", "Total embedding errors by provider and type", []string{"provider", "error_type"}),
		ModelDownloads:    counterVec("model_downloads_total", "Total embedding model downloads by status", []string{"status"}),

		DenseQueryDuration:  histogram("dense_query_duration_seconds", "Dense (vector) query duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5}),
		SparseQueryDuration: histogram("sparse_query_duration_seconds", "Sparse (BM25) query duration in seconds", []float64{.001, .005, .01, .025, .05, .1, .25, .5}),
		QueryResultCount:    histogramVec("query_result_count", "Number of chunks returned per query by search mode", []float64{0, 1, 5, 10, 25, 50, 100}, []string{"mode"}),

		RerankRequests: counterVec("rerank_requests_total", "Total rerank requests by status", []string{"status"}),
		RerankDuration: histogram("rerank_duration_seconds", "Cross-encoder rerank duration in seconds", []float64{.01, .05, .1, .25, .5, 1, 2.5}),

		LLMRequests: counterVec("llm_requests_total", "Total LLM generation requests by provider and status", []string{"provider", "status"}),
		LLMDuration: histogramVec("llm_duration_seconds", "LLM generation duration in seconds", []float64{.25, .5, 1, 2.5, 5, 10, 30}, []string{"provider"}),
		LLMErrors:   counterVec("llm_errors_total", "Total LLM generation errors by provider and type", []string{"provider", "error_type"}),

		CircuitBreakerState: gaugeVec("circuit_breaker_state", "Circuit breaker state by name (0=closed, 1=open, 2=half-open)", []string{"name"}),
		VectorStoreSize:     gauge("vector_store_size_chunks", "Number of chunks currently stored"),
	}
}

// RecordSync records one sync operation's duration and outcome.
func (m *Metrics) RecordSync(kind, status string, duration time.Duration) {
	m.SyncOperations.WithLabelValues(kind, status).Inc()
	m.SyncDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSyncError records a sync error by type.
func (m *Metrics) RecordSyncError(errorType string) {
	m.SyncErrors.WithLabelValues(errorType).Inc()
}

// RecordEmbedding records one embedding call's duration and outcome.
func (m *Metrics) RecordEmbedding(provider, status string, duration time.Duration) {
	m.EmbeddingRequests.WithLabelValues(provider, status).Inc()
	m.EmbeddingDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordEmbeddingError records an embedding error by provider and type.
func (m *Metrics) RecordEmbeddingError(provider, errorType string) {
	m.EmbeddingErrors.WithLabelValues(provider, errorType).Inc()
}

// RecordModelDownload records an embedding model download's outcome.
func (m *Metrics) RecordModelDownload(status string) {
	m.ModelDownloads.WithLabelValues(status).Inc()
}

// RecordDenseQuery records a vector query's duration and result count.
func (m *Metrics) RecordDenseQuery(duration time.Duration, resultCount int) {
	m.DenseQueryDuration.Observe(duration.Seconds())
	m.QueryResultCount.WithLabelValues("dense").Observe(float64(resultCount))
}

// RecordSparseQuery records a BM25 query's duration and result count.
func (m *Metrics) RecordSparseQuery(duration time.Duration, resultCount int) {
	m.SparseQueryDuration.Observe(duration.Seconds())
	m.QueryResultCount.WithLabelValues("sparse").Observe(float64(resultCount))
}

// RecordHybridQuery records a fused hybrid query's result count.
func (m *Metrics) RecordHybridQuery(resultCount int) {
	m.QueryResultCount.WithLabelValues("hybrid").Observe(float64(resultCount))
}

// RecordRerank records one rerank call's duration and outcome.
func (m *Metrics) RecordRerank(status string, duration time.Duration) {
	m.RerankRequests.WithLabelValues(status).Inc()
	m.RerankDuration.Observe(duration.Seconds())
}

// RecordLLMGeneration records one LLM call's duration and outcome.
func (m *Metrics) RecordLLMGeneration(provider, status string, duration time.Duration) {
	m.LLMRequests.WithLabelValues(provider, status).Inc()
	m.LLMDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordLLMError records an LLM error by provider and type.
func (m *Metrics) RecordLLMError(provider, errorType string) {
	m.LLMErrors.WithLabelValues(provider, errorType).Inc()
}

// SetCircuitBreakerState reports a breaker's current numeric state.
func (m *Metrics) SetCircuitBreakerState(name string, state float64) {
	m.CircuitBreakerState.WithLabelValues(name).Set(state)
}

// SetVectorStoreSize reports the current chunk count.
func (m *Metrics) SetVectorStoreSize(count int) {
	m.VectorStoreSize.Set(float64(count))
}
