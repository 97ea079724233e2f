// Package metrics provides Prometheus metrics for the trendradar service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager owns every collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	registry         prometheus.Registerer

	// Pipeline
	runsTotal         *prometheus.CounterVec
	runDuration       prometheus.Histogram
	recordsScored     prometheus.Counter
	recordsExcluded   prometheus.Counter
	categoryFailures  prometheus.Counter
	nonNumericCells   prometheus.Counter
	structuralErrors  *prometheus.CounterVec
	classifyDuration  prometheus.Histogram
	trendingRecords   prometheus.Gauge
	cachedRuns        prometheus.Gauge
	lastRunCategories prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// System
	memoryUsage    prometheus.Gauge
	goroutineCount prometheus.Gauge
	gcPause        prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry without default Go collectors

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager registered on the configured registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "trendradar",
		subsystem:        "pipeline",
		histogramBuckets: []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) initializeMetrics() {
	auto := promauto.With(m.registry)

	m.runsTotal = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "runs_total",
		Help:      "Scoring runs by outcome",
	}, []string{"outcome"})

	m.runDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "run_duration_milliseconds",
		Help:      "Resolve, normalize and score duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.recordsScored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_scored_total",
		Help:      "Records that received a trend score",
	})

	m.recordsExcluded = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "records_excluded_total",
		Help:      "Records excluded from scoring because of undefined values",
	})

	m.categoryFailures = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "category_failures_total",
		Help:      "Categories dropped for insufficient data",
	})

	m.nonNumericCells = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "non_numeric_cells_total",
		Help:      "Metric cells that could not be read as numbers",
	})

	m.structuralErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "structural_errors_total",
		Help:      "Runs aborted by schema or record errors",
	}, []string{"kind"})

	m.classifyDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "classify_duration_milliseconds",
		Help:      "Threshold classification duration in milliseconds",
		Buckets:   m.histogramBuckets,
	})

	m.trendingRecords = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "trending_records",
		Help:      "Records flagged trending by the latest classification",
	})

	m.cachedRuns = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "cached_runs",
		Help:      "Runs held in the run repository",
	})

	m.lastRunCategories = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: m.subsystem,
		Name:      "last_run_categories",
		Help:      "Categories scored by the latest run",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP requests by endpoint, method and status code",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "http",
		Name:      "request_duration_milliseconds",
		Help:      "HTTP request duration in milliseconds",
		Buckets:   m.histogramBuckets,
	}, []string{"endpoint", "method", "status_code"})

	m.memoryUsage = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "memory_usage_bytes",
		Help:      "Heap bytes allocated",
	})

	m.goroutineCount = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "goroutines",
		Help:      "Number of goroutines",
	})

	m.gcPause = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace,
		Subsystem: "system",
		Name:      "gc_pause_milliseconds",
		Help:      "Average GC pause in milliseconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	})
}

// RecordRun records a completed run.
func (m *Manager) RecordRun(durationMs float64, scored, excluded, failures, nonNumeric, categories int) {
	m.runsTotal.WithLabelValues("scored").Inc()
	m.runDuration.Observe(durationMs)
	m.recordsScored.Add(float64(scored))
	m.recordsExcluded.Add(float64(excluded))
	m.categoryFailures.Add(float64(failures))
	m.nonNumericCells.Add(float64(nonNumeric))
	m.lastRunCategories.Set(float64(categories))
}

// RecordRunError records an aborted run.
func (m *Manager) RecordRunError(kind string) {
	m.runsTotal.WithLabelValues("failed").Inc()
	m.structuralErrors.WithLabelValues(kind).Inc()
}

// RecordClassify records a classification pass.
func (m *Manager) RecordClassify(durationMs float64, trending int) {
	m.classifyDuration.Observe(durationMs)
	m.trendingRecords.Set(float64(trending))
}

// UpdateCachedRuns sets the number of cached runs.
func (m *Manager) UpdateCachedRuns(n int) { m.cachedRuns.Set(float64(n)) }

// RecordHTTPRequest records one HTTP request.
func (m *Manager) RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(durationMs)
}

// UpdateSystemMemoryUsage sets the allocated heap bytes.
func (m *Manager) UpdateSystemMemoryUsage(bytes uint64) { m.memoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the goroutine gauge.
func (m *Manager) UpdateSystemGoroutineCount(n int) { m.goroutineCount.Set(float64(n)) }

// RecordSystemGCPauseTime observes an average GC pause.
func (m *Manager) RecordSystemGCPauseTime(ms float64) { m.gcPause.Observe(ms) }

// RecordRun records a completed run on the global manager.
func RecordRun(durationMs float64, scored, excluded, failures, nonNumeric, categories int) {
	globalManager.RecordRun(durationMs, scored, excluded, failures, nonNumeric, categories)
}

// RecordRunError records an aborted run on the global manager.
func RecordRunError(kind string) { globalManager.RecordRunError(kind) }

// RecordClassify records a classification pass on the global manager.
func RecordClassify(durationMs float64, trending int) { globalManager.RecordClassify(durationMs, trending) }

// UpdateCachedRuns sets the cached run gauge on the global manager.
func UpdateCachedRuns(n int) { globalManager.UpdateCachedRuns(n) }

// RecordHTTPRequest records one HTTP request on the global manager.
func RecordHTTPRequest(endpoint, method, statusCode string, durationMs float64) {
	globalManager.RecordHTTPRequest(endpoint, method, statusCode, durationMs)
}

// UpdateSystemMemoryUsage sets the allocated heap bytes on the global manager.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.UpdateSystemMemoryUsage(bytes) }

// UpdateSystemGoroutineCount sets the goroutine gauge on the global manager.
func UpdateSystemGoroutineCount(n int) { globalManager.UpdateSystemGoroutineCount(n) }

// RecordSystemGCPauseTime observes an average GC pause on the global manager.
func RecordSystemGCPauseTime(ms float64) { globalManager.RecordSystemGCPauseTime(ms) }

// GetRegistry returns the custom registry backing the global manager.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
