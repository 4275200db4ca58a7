package metrics

import (
	"context"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/trace"
)

var (
	// defaultRegistry is the default Prometheus registry
	defaultRegistry = prometheus.DefaultRegisterer
)

// Config holds metrics configuration.
type Config struct {
	EnableOwnerLabel bool
}

// Metrics holds all application metrics for one engine instance.
type Metrics struct {
	config                Config
	httpRequestsTotal      *prometheus.CounterVec
	httpRequestDuration    *prometheus.HistogramVec
	httpRequestBytes       *prometheus.CounterVec
	fileOperationsTotal    *prometheus.CounterVec
	fileOperationDuration  *prometheus.HistogramVec
	fileOperationErrors    *prometheus.CounterVec
	chunkSealOperations    *prometheus.CounterVec
	chunkSealDuration      *prometheus.HistogramVec
	chunkSealErrors        *prometheus.CounterVec
	chunkSealBytes         *prometheus.CounterVec
	reconstructedReads     *prometheus.CounterVec
	cacheHits              *prometheus.CounterVec
	cacheMisses            *prometheus.CounterVec
	activeConnections      prometheus.Gauge
	goroutines             prometheus.Gauge
	memoryAllocBytes       prometheus.Gauge
	memorySysBytes         prometheus.Gauge
	pqAlgorithmEnabled     *prometheus.GaugeVec
}

// NewMetrics creates a new metrics instance with default configuration.
func NewMetrics() *Metrics {
	return NewMetricsWithConfig(Config{EnableOwnerLabel: true})
}

// NewMetricsWithConfig creates a new metrics instance with the provided configuration.
func NewMetricsWithConfig(cfg Config) *Metrics {
	return newMetricsWithRegistry(defaultRegistry, cfg)
}

// NewMetricsWithRegistry creates a new metrics instance with a custom registry.
// This is useful for testing to avoid metric registration conflicts.
func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetricsWithRegistry(reg, Config{EnableOwnerLabel: true})
}

// newMetricsWithRegistry creates a new metrics instance with a custom registry (for testing).
func newMetricsWithRegistry(reg prometheus.Registerer, cfg Config) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		config: cfg,
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of admin-surface HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Admin-surface HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),
		httpRequestBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_request_bytes_total",
				Help: "Total bytes transferred through admin-surface HTTP requests",
			},
			[]string{"method", "path"},
		),
		fileOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "file_operations_total",
				Help: "Total number of FileEngine operations (write, read, delete)",
			},
			[]string{"operation", "owner"},
		),
		fileOperationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "file_operation_duration_seconds",
				Help:    "FileEngine operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "owner"},
		),
		fileOperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "file_operation_errors_total",
				Help: "Total number of FileEngine operation errors, by sentinel error",
			},
			[]string{"operation", "owner", "error_type"},
		),
		chunkSealOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_seal_operations_total",
				Help: "Total number of chunk seal/open operations (§4.C)",
			},
			[]string{"operation"}, // "seal" or "open"
		),
		chunkSealDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chunk_seal_duration_seconds",
				Help:    "Chunk seal/open operation duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
			},
			[]string{"operation"},
		),
		chunkSealErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_seal_errors_total",
				Help: "Total number of chunk seal/open errors",
			},
			[]string{"operation", "error_type"},
		),
		chunkSealBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunk_seal_bytes_total",
				Help: "Total plaintext bytes sealed or opened",
			},
			[]string{"operation"},
		),
		reconstructedReads: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reconstructed_reads_total",
				Help: "Total number of chunk reads that required erasure or secret-share reconstruction instead of a direct fetch (§4.H Read step 3)",
			},
			[]string{"reason"}, // "local_miss", "shard_reconstructed"
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockstore_cache_hits_total",
				Help: "Total number of BlockStore reads served from a Cache-pinned block",
			},
			[]string{"tier"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blockstore_cache_misses_total",
				Help: "Total number of BlockStore reads that missed the local cache",
			},
			[]string{"tier"},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "active_connections",
				Help: "Number of active admin-surface HTTP connections",
			},
		),
		goroutines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "goroutines_total",
				Help: "Number of goroutines",
			},
		),
		memoryAllocBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_alloc_bytes",
				Help: "Number of bytes allocated and not yet freed",
			},
		),
		memorySysBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "memory_sys_bytes",
				Help: "Total bytes of memory obtained from OS",
			},
		),
		pqAlgorithmEnabled: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "pq_algorithm_enabled",
				Help: "Post-quantum algorithm in use (1=active, 0=inactive)",
			},
			[]string{"algorithm"},
		),
	}
}

// SetPQAlgorithmStatus records which post-quantum KEM/signature scheme this
// instance is running (§4.A: Kyber768, Dilithium3).
func (m *Metrics) SetPQAlgorithmStatus(algorithm string, enabled bool) {
	val := 0.0
	if enabled {
		val = 1.0
	}
	m.pqAlgorithmEnabled.WithLabelValues(algorithm).Set(val)
}

// GetPQAlgorithmEnabledMetric returns the pq algorithm gauge (for testing).
func (m *Metrics) GetPQAlgorithmEnabledMetric() *prometheus.GaugeVec {
	return m.pqAlgorithmEnabled
}

// GetReconstructedReadsMetric returns the reconstructed-reads counter (for testing).
func (m *Metrics) GetReconstructedReadsMetric() *prometheus.CounterVec {
	return m.reconstructedReads
}

// RecordHTTPRequest records an admin-surface HTTP request metric.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, status int, duration time.Duration, bytes int64) {
	label := sanitizePathLabel(path)
	labels := prometheus.Labels{"method": method, "path": label, "status": http.StatusText(status)}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.httpRequestsTotal.With(labels).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.httpRequestsTotal.With(labels).Inc()
		}

		if observer, ok := m.httpRequestDuration.With(labels).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.httpRequestDuration.With(labels).Observe(duration.Seconds())
		}
	} else {
		m.httpRequestsTotal.With(labels).Inc()
		m.httpRequestDuration.With(labels).Observe(duration.Seconds())
	}

	// No exemplars for byte counters usually
	m.httpRequestBytes.WithLabelValues(method, label).Add(float64(bytes))
}

// sanitizePathLabel reduces high-cardinality paths to stable labels.
// Examples:
// "/metrics" => "/metrics"
// "/stats/long/path" => "/stats/*"
func sanitizePathLabel(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	// Trim query if any (defensive; callers typically pass Path only)
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	// Split into segments
	segs := strings.Split(strings.TrimPrefix(path, "/"), "/")
	if len(segs) <= 1 {
		return "/" + segs[0]
	}
	return "/" + segs[0] + "/*"
}

// RecordFileOperation records a FileEngine operation metric.
func (m *Metrics) RecordFileOperation(ctx context.Context, operation, owner string, duration time.Duration) {
	ownerLabel := owner
	if !m.config.EnableOwnerLabel {
		ownerLabel = "*"
	}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.fileOperationsTotal.WithLabelValues(operation, ownerLabel).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.fileOperationsTotal.WithLabelValues(operation, ownerLabel).Inc()
		}

		if observer, ok := m.fileOperationDuration.WithLabelValues(operation, ownerLabel).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.fileOperationDuration.WithLabelValues(operation, ownerLabel).Observe(duration.Seconds())
		}
	} else {
		m.fileOperationsTotal.WithLabelValues(operation, ownerLabel).Inc()
		m.fileOperationDuration.WithLabelValues(operation, ownerLabel).Observe(duration.Seconds())
	}
}

// RecordFileOperationError records a FileEngine operation error.
func (m *Metrics) RecordFileOperationError(ctx context.Context, operation, owner, errorType string) {
	ownerLabel := owner
	if !m.config.EnableOwnerLabel {
		ownerLabel = "*"
	}

	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.fileOperationErrors.WithLabelValues(operation, ownerLabel, errorType).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.fileOperationErrors.WithLabelValues(operation, ownerLabel, errorType).Inc()
		}
	} else {
		m.fileOperationErrors.WithLabelValues(operation, ownerLabel, errorType).Inc()
	}
}

// RecordChunkSeal records a chunk seal/open operation metric.
func (m *Metrics) RecordChunkSeal(ctx context.Context, operation string, duration time.Duration, bytes int64) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.chunkSealOperations.WithLabelValues(operation).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.chunkSealOperations.WithLabelValues(operation).Inc()
		}

		if observer, ok := m.chunkSealDuration.WithLabelValues(operation).(prometheus.ExemplarObserver); ok {
			observer.ObserveWithExemplar(duration.Seconds(), exemplar)
		} else {
			m.chunkSealDuration.WithLabelValues(operation).Observe(duration.Seconds())
		}
	} else {
		m.chunkSealOperations.WithLabelValues(operation).Inc()
		m.chunkSealDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	m.chunkSealBytes.WithLabelValues(operation).Add(float64(bytes))
}

// RecordChunkSealError records a chunk seal/open error.
func (m *Metrics) RecordChunkSealError(ctx context.Context, operation, errorType string) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.chunkSealErrors.WithLabelValues(operation, errorType).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.chunkSealErrors.WithLabelValues(operation, errorType).Inc()
		}
	} else {
		m.chunkSealErrors.WithLabelValues(operation, errorType).Inc()
	}
}

// RecordReconstructedRead records a chunk read that fell back to erasure or
// secret-share reconstruction rather than a direct envelope fetch.
func (m *Metrics) RecordReconstructedRead(ctx context.Context, reason string) {
	if exemplar := getExemplar(ctx); exemplar != nil {
		if adder, ok := m.reconstructedReads.WithLabelValues(reason).(prometheus.ExemplarAdder); ok {
			adder.AddWithExemplar(1, exemplar)
		} else {
			m.reconstructedReads.WithLabelValues(reason).Inc()
		}
	} else {
		m.reconstructedReads.WithLabelValues(reason).Inc()
	}
}

// RecordCacheHit records a BlockStore read served from a Cache pin.
func (m *Metrics) RecordCacheHit(tier string) {
	m.cacheHits.WithLabelValues(tier).Inc()
}

// RecordCacheMiss records a BlockStore read that missed the local cache.
func (m *Metrics) RecordCacheMiss(tier string) {
	m.cacheMisses.WithLabelValues(tier).Inc()
}

// UpdateSystemMetrics updates system-level metrics (goroutines, memory).
func (m *Metrics) UpdateSystemMetrics() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	m.goroutines.Set(float64(runtime.NumGoroutine()))
	m.memoryAllocBytes.Set(float64(memStats.Alloc))
	m.memorySysBytes.Set(float64(memStats.Sys))
}

// IncrementActiveConnections increments the active connections counter.
func (m *Metrics) IncrementActiveConnections() {
	m.activeConnections.Inc()
}

// DecrementActiveConnections decrements the active connections counter.
func (m *Metrics) DecrementActiveConnections() {
	m.activeConnections.Dec()
}

// StartSystemMetricsCollector starts a goroutine that periodically updates system metrics.
func (m *Metrics) StartSystemMetricsCollector() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for range ticker.C {
			m.UpdateSystemMetrics()
		}
	}()
}

// Handler returns the HTTP handler for metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}

// getExemplar extracts trace ID from context and returns prometheus Labels for exemplar.
func getExemplar(ctx context.Context) prometheus.Labels {
	if ctx == nil {
		return nil
	}
	spanContext := trace.SpanFromContext(ctx).SpanContext()
	if spanContext.IsValid() {
		return prometheus.Labels{"trace_id": spanContext.TraceID().String()}
	}
	return nil
}
