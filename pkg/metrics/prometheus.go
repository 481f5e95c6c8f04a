// Package metrics provides Prometheus metrics for the motion evaluation service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	scoreBuckets     []float64
	gridBuckets      []float64
	enabled          bool
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Evaluation
	evaluations     *prometheus.CounterVec
	evaluationScore *prometheus.HistogramVec
	evaluationTime  prometheus.Histogram

	// DTW engine
	dtwLatency prometheus.Histogram
	dtwCells   prometheus.Histogram

	// Calibration
	calibrationRuns    *prometheus.CounterVec
	calibrationCeiling *prometheus.GaugeVec
	calibrationLatency prometheus.Histogram
	calibrationPairs   prometheus.Histogram

	// Ingestion
	ingestions       *prometheus.CounterVec
	ingestDuplicates prometheus.Counter
	mqttMessages     *prometheus.CounterVec
	motionTypes      prometheus.Gauge

	// Reference cache
	referenceCacheHits   prometheus.Counter
	referenceCacheMisses prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Repository
	repositoryLatency *prometheus.HistogramVec
	repositoryErrors  *prometheus.CounterVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerActiveCount       prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrorRate         prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByType      *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec
	errorLatency         *prometheus.HistogramVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "motionscore",
		subsystem:        "evaluator",
		histogramBuckets: prometheus.DefBuckets,
		scoreBuckets:     prometheus.LinearBuckets(0, 10, 11),
		gridBuckets:      prometheus.ExponentialBuckets(64, 4, 10),
		enabled:          true,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counterOpts(name, help string) prometheus.CounterOpts {
	return prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) gaugeOpts(name, help string) prometheus.GaugeOpts {
	return prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		ConstLabels: m.customLabels,
	}
}

func (m *Manager) histogramOpts(name, help string, buckets []float64) prometheus.HistogramOpts {
	if buckets == nil {
		buckets = m.histogramBuckets
	}
	return prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        m.name(name),
		Help:        help,
		Buckets:     buckets,
		ConstLabels: m.customLabels,
	}
}

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // long function required for comprehensive metrics initialization
	auto := promauto.With(m.registry)

	m.evaluations = auto.NewCounterVec(
		m.counterOpts("evaluations_total", "Total number of evaluations by motion type and outcome"),
		[]string{"motion", "outcome"},
	)
	m.evaluationScore = auto.NewHistogramVec(
		m.histogramOpts("evaluation_score", "Distribution of evaluation scores (0-100)", m.scoreBuckets),
		[]string{"motion"},
	)
	m.evaluationTime = auto.NewHistogram(
		m.histogramOpts("evaluation_latency_milliseconds", "End-to-end evaluation latency in milliseconds", nil),
	)

	m.dtwLatency = auto.NewHistogram(
		m.histogramOpts("dtw_latency_milliseconds", "Latency of a single DTW distance computation in milliseconds", nil),
	)
	m.dtwCells = auto.NewHistogram(
		m.histogramOpts("dtw_grid_cells", "Size of the DTW accumulated-cost grid (n*m)", m.gridBuckets),
	)

	m.calibrationRuns = auto.NewCounterVec(
		m.counterOpts("calibration_runs_total", "Total number of recalibrations by outcome"),
		[]string{"outcome"},
	)
	m.calibrationCeiling = auto.NewGaugeVec(
		m.gaugeOpts("calibration_ceiling", "Current max DTW distance per motion type"),
		[]string{"motion"},
	)
	m.calibrationLatency = auto.NewHistogram(
		m.histogramOpts("calibration_latency_milliseconds", "Recalibration latency in milliseconds", nil),
	)
	m.calibrationPairs = auto.NewHistogram(
		m.histogramOpts("calibration_pairs", "Reference x zero_score pairs compared per recalibration", prometheus.ExponentialBuckets(1, 2, 12)),
	)

	m.ingestions = auto.NewCounterVec(
		m.counterOpts("ingestions_total", "Total number of ingested recordings by category and outcome"),
		[]string{"category", "outcome"},
	)
	m.ingestDuplicates = auto.NewCounter(
		m.counterOpts("ingest_duplicates_total", "Total number of duplicate recordings acknowledged without a write"),
	)
	m.mqttMessages = auto.NewCounterVec(
		m.counterOpts("mqtt_messages_total", "Total number of MQTT ingestion messages by outcome"),
		[]string{"outcome"},
	)
	m.motionTypes = auto.NewGauge(
		m.gaugeOpts("motion_types", "Number of configured motion types"),
	)

	m.referenceCacheHits = auto.NewCounter(
		m.counterOpts("reference_cache_hits_total", "Reference matrix cache hits"),
	)
	m.referenceCacheMisses = auto.NewCounter(
		m.counterOpts("reference_cache_misses_total", "Reference matrix cache misses"),
	)

	m.httpRequests = auto.NewCounterVec(
		m.counterOpts("http_requests_total", "Total number of HTTP requests by endpoint and method"),
		[]string{"endpoint", "method", "status_code"},
	)
	m.httpRequestDuration = auto.NewHistogramVec(
		m.histogramOpts("http_request_duration_milliseconds", "HTTP request duration in milliseconds", nil),
		[]string{"endpoint", "method", "status_code"},
	)

	m.repositoryLatency = auto.NewHistogramVec(
		m.histogramOpts("repository_latency_milliseconds", "Repository operation latency in milliseconds", nil),
		[]string{"operation"},
	)
	m.repositoryErrors = auto.NewCounterVec(
		m.counterOpts("repository_errors_total", "Repository operation failures"),
		[]string{"operation"},
	)

	m.queueSize = auto.NewGauge(m.gaugeOpts("queue_size", "Current size of the ingestion queue"))
	m.queueCapacity = auto.NewGauge(m.gaugeOpts("queue_capacity", "Maximum ingestion queue capacity"))
	m.queueUtilization = auto.NewGauge(m.gaugeOpts("queue_utilization_ratio", "Queue utilization ratio (current size / capacity)"))
	m.queueEnqueueRate = auto.NewCounter(m.counterOpts("queue_enqueue_total", "Total number of jobs enqueued"))
	m.queueDequeueRate = auto.NewCounter(m.counterOpts("queue_dequeue_total", "Total number of jobs dequeued"))
	m.queueEnqueueErrors = auto.NewCounter(m.counterOpts("queue_enqueue_errors_total", "Total number of enqueue errors"))
	m.queueProcessingLatency = auto.NewHistogram(
		m.histogramOpts("queue_processing_latency_milliseconds", "Queue enqueue latency in milliseconds", nil),
	)

	m.workerCount = auto.NewGauge(m.gaugeOpts("worker_count", "Configured number of ingestion workers"))
	m.workerActiveCount = auto.NewGauge(m.gaugeOpts("worker_active_count", "Number of ingestion workers currently processing a job"))
	m.workerProcessingLatency = auto.NewHistogram(
		m.histogramOpts("worker_processing_latency_milliseconds", "Worker job processing latency in milliseconds", nil),
	)
	m.workerErrorRate = auto.NewCounter(m.counterOpts("worker_errors_total", "Total number of worker errors"))

	m.errorRateByComponent = auto.NewCounterVec(
		m.counterOpts("errors_by_component_total", "Total number of errors by component"),
		[]string{"component", "error_type"},
	)
	m.errorRateByType = auto.NewCounterVec(
		m.counterOpts("errors_by_type_total", "Total number of errors by type"),
		[]string{"error_type", "severity"},
	)
	m.errorRateByEndpoint = auto.NewCounterVec(
		m.counterOpts("errors_by_endpoint_total", "Total number of errors by endpoint"),
		[]string{"endpoint", "method", "error_type"},
	)
	m.errorLatency = auto.NewHistogramVec(
		m.histogramOpts("error_latency_milliseconds", "Latency of operations that resulted in errors", nil),
		[]string{"component", "error_type"},
	)

	m.systemMemoryUsage = auto.NewGauge(m.gaugeOpts("system_memory_usage_bytes", "System memory usage in bytes"))
	m.systemGoroutineCount = auto.NewGauge(m.gaugeOpts("system_goroutine_count", "Number of goroutines"))
	m.systemGCPauseTime = auto.NewHistogram(
		m.histogramOpts("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
			[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000}),
	)
}

// Evaluation Metrics Functions.

// RecordEvaluation counts an evaluation outcome ("scored", "not_found", "malformed", ...).
func RecordEvaluation(motion, outcome string) {
	if !globalManager.enabled {
		return
	}
	globalManager.evaluations.WithLabelValues(motion, outcome).Inc()
}

// RecordEvaluationScore observes a final score.
func RecordEvaluationScore(motion string, score float64) {
	if !globalManager.enabled {
		return
	}
	globalManager.evaluationScore.WithLabelValues(motion).Observe(score)
}

// RecordEvaluationLatency records end-to-end evaluation latency.
func RecordEvaluationLatency(latencyMs float64) {
	globalManager.evaluationTime.Observe(latencyMs)
}

// DTW Metrics Functions.

// RecordDTW records one distance computation: its latency and grid size.
func RecordDTW(latencyMs float64, cells int) {
	globalManager.dtwLatency.Observe(latencyMs)
	globalManager.dtwCells.Observe(float64(cells))
}

// Calibration Metrics Functions.

// RecordCalibration counts a recalibration run by outcome ("updated", "incomplete", "degenerate", "unchanged", "error").
func RecordCalibration(outcome string, latencyMs float64, pairs int) {
	globalManager.calibrationRuns.WithLabelValues(outcome).Inc()
	globalManager.calibrationLatency.Observe(latencyMs)
	if pairs > 0 {
		globalManager.calibrationPairs.Observe(float64(pairs))
	}
}

// UpdateCalibrationCeiling publishes the current ceiling of a motion type.
func UpdateCalibrationCeiling(motion string, ceiling float64) {
	globalManager.calibrationCeiling.WithLabelValues(motion).Set(ceiling)
}

// Ingestion Metrics Functions.

// RecordIngestion counts an ingestion attempt.
func RecordIngestion(category, outcome string) {
	globalManager.ingestions.WithLabelValues(category, outcome).Inc()
}

// RecordIngestDuplicate counts a duplicate recording key.
func RecordIngestDuplicate() {
	globalManager.ingestDuplicates.Inc()
}

// RecordMQTTMessage counts an MQTT message by outcome.
func RecordMQTTMessage(outcome string) {
	globalManager.mqttMessages.WithLabelValues(outcome).Inc()
}

// UpdateMotionTypes sets the number of configured motion types.
func UpdateMotionTypes(count int) {
	globalManager.motionTypes.Set(float64(count))
}

// RecordReferenceCache counts a reference cache lookup.
func RecordReferenceCache(hit bool) {
	if hit {
		globalManager.referenceCacheHits.Inc()
		return
	}
	globalManager.referenceCacheMisses.Inc()
}

// HTTP Metrics Functions.

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// Repository Metrics Functions.

// RecordRepositoryOperation records latency of a repository call and counts failures.
func RecordRepositoryOperation(operation string, latencyMs float64, err error) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
	if err != nil {
		globalManager.repositoryErrors.WithLabelValues(operation).Inc()
	}
}

// Queue Metrics Functions.

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) {
	globalManager.queueUtilization.Set(utilization)
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueueRate.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeueRate.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records queue processing latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// Worker Metrics Functions.

// UpdateWorkerCount sets the configured worker count.
func UpdateWorkerCount(count int) {
	globalManager.workerCount.Set(float64(count))
}

// AddWorkerActive adjusts the number of busy workers by delta.
func AddWorkerActive(delta int) {
	globalManager.workerActiveCount.Add(float64(delta))
}

// RecordWorkerProcessingLatency records worker processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() {
	globalManager.workerErrorRate.Inc()
}

// Error Metrics Functions.

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByType records an error with type and severity labels.
func RecordErrorByType(errorType, severity string) {
	globalManager.errorRateByType.WithLabelValues(errorType, severity).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordErrorLatency records the latency of an operation that resulted in an error.
func RecordErrorLatency(component, errorType string, latencyMs float64) {
	globalManager.errorLatency.WithLabelValues(component, errorType).Observe(latencyMs)
}

// System Performance Metrics Functions.

// UpdateSystemMemoryUsage sets the system memory usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) {
	globalManager.systemMemoryUsage.Set(float64(bytes))
}

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) {
	globalManager.systemGoroutineCount.Set(float64(count))
}

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) {
	globalManager.systemGCPauseTime.Observe(pauseMs)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
