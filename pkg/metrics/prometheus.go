// Package metrics provides Prometheus metrics for the podium leaderboard service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Submission outcomes recorded by RecordSubmission.
const (
	OutcomeAccepted  = "accepted"
	OutcomePartial   = "partial"
	OutcomeDuplicate = "duplicate"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
)

// Sync results recorded by RecordSyncRun.
const (
	SyncRebuilt = "rebuilt"
	SyncSkipped = "skipped"
	SyncShared  = "shared"
	SyncFailed  = "failed"
)

// Manager owns every Prometheus collector of the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      prometheus.Labels
	registry         prometheus.Registerer

	// Submission path
	submissions        *prometheus.CounterVec
	submitLatency      prometheus.Histogram
	boardUpdates       *prometheus.CounterVec
	boardUpdateErrors  *prometheus.CounterVec
	duplicateSubmitted prometheus.Counter
	decodeSkipped      prometheus.Counter

	// Rank store
	storeLatency *prometheus.HistogramVec
	storeBoards  prometheus.Gauge
	storeEntries prometheus.Gauge
	storeExpired prometheus.Counter

	// Durable ledger
	ledgerLatency *prometheus.HistogramVec
	ledgerErrors  *prometheus.CounterVec

	// Category catalog
	catalogLookups *prometheus.CounterVec

	// Sync engine
	syncRuns      *prometheus.CounterVec
	syncDuration  prometheus.Histogram
	syncLastUnix  prometheus.Gauge
	syncDivergent prometheus.Gauge

	// Events
	eventsPublished     *prometheus.CounterVec
	eventsPublishErrors *prometheus.CounterVec

	// Rebuild queue and workers
	queueCapacity          prometheus.Gauge
	queueSize              prometheus.Gauge
	queueEnqueued          prometheus.Counter
	queueDequeued          prometheus.Counter
	queueEnqueueErrors     prometheus.Counter
	queueProcessingLatency prometheus.Histogram
	workerActiveCount      prometheus.Gauge
	workerLatency          prometheus.Histogram
	workerErrors           prometheus.Counter

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

// customRegistry keeps the default Go collectors out of /metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // metrics registry

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "podium",
		subsystem:        "leaderboard",
		histogramBuckets: prometheus.DefBuckets,
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: buckets,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: name, Help: help, ConstLabels: m.constLabels, Buckets: m.histogramBuckets,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.submissions = m.counterVec("submissions_total", "Score submissions by outcome", "outcome")
	m.submitLatency = m.histogram("submit_latency_milliseconds", "End-to-end score submission latency in milliseconds", m.histogramBuckets)
	m.boardUpdates = m.counterVec("board_updates_total", "Successful board upserts by board kind", "board_kind")
	m.boardUpdateErrors = m.counterVec("board_update_errors_total", "Failed board upserts by board kind", "board_kind")
	m.duplicateSubmitted = m.counter("duplicate_submissions_total", "Submissions acknowledged as duplicates of an earlier submission id")
	m.decodeSkipped = m.counter("decode_skipped_total", "Board entries skipped because the member could not be decoded")

	m.storeLatency = m.histogramVec("store_latency_milliseconds", "Rank store operation latency in milliseconds", "op")
	m.storeBoards = m.gauge("store_boards", "Number of live boards in the rank store")
	m.storeEntries = m.gauge("store_entries", "Number of entries across all live boards")
	m.storeExpired = m.counter("store_boards_expired_total", "Boards dropped after their expiry elapsed")

	m.ledgerLatency = m.histogramVec("ledger_latency_milliseconds", "Durable ledger operation latency in milliseconds", "op")
	m.ledgerErrors = m.counterVec("ledger_errors_total", "Durable ledger operation failures", "op")

	m.catalogLookups = m.counterVec("catalog_lookups_total", "Category catalog lookups by cache result", "result")

	m.syncRuns = m.counterVec("sync_runs_total", "Sync engine runs by result", "result")
	m.syncDuration = m.histogram("sync_duration_milliseconds", "Full rebuild duration in milliseconds",
		[]float64{10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000})
	m.syncLastUnix = m.gauge("sync_last_unix", "Unix timestamp of the last completed rebuild")
	m.syncDivergent = m.gauge("sync_divergent_categories", "Categories whose board cardinality differs from the ledger at the last status check")

	m.eventsPublished = m.counterVec("events_published_total", "Domain events published by subject", "subject")
	m.eventsPublishErrors = m.counterVec("events_publish_errors_total", "Domain event publish failures by subject", "subject")

	m.queueCapacity = m.gauge("rebuild_queue_capacity", "Rebuild job queue capacity")
	m.queueSize = m.gauge("rebuild_queue_size", "Rebuild jobs waiting in the queue")
	m.queueEnqueued = m.counter("rebuild_queue_enqueue_total", "Rebuild jobs enqueued")
	m.queueDequeued = m.counter("rebuild_queue_dequeue_total", "Rebuild jobs dequeued")
	m.queueEnqueueErrors = m.counter("rebuild_queue_enqueue_errors_total", "Rebuild job enqueue failures")
	m.queueProcessingLatency = m.histogram("rebuild_queue_wait_milliseconds", "Time rebuild jobs spend queued in milliseconds", m.histogramBuckets)
	m.workerActiveCount = m.gauge("rebuild_workers_active", "Rebuild workers currently running")
	m.workerLatency = m.histogram("rebuild_job_latency_milliseconds", "Per-user rebuild job latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("rebuild_job_errors_total", "Per-user rebuild job failures")

	m.httpRequests = m.counterVec("http_requests_total", "HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.errorRateByComponent = m.counterVec("errors_by_component_total", "Errors by component", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total", "Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap memory in use in bytes")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "GC pause time in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordSubmission counts a submission by outcome.
func RecordSubmission(outcome string) {
	globalManager.submissions.WithLabelValues(outcome).Inc()
}

// RecordSubmitLatency records the end-to-end submission latency.
func RecordSubmitLatency(latencyMs float64) {
	globalManager.submitLatency.Observe(latencyMs)
}

// RecordBoardUpdate counts a successful board upsert.
func RecordBoardUpdate(kind string) {
	globalManager.boardUpdates.WithLabelValues(kind).Inc()
}

// RecordBoardUpdateError counts a failed board upsert.
func RecordBoardUpdateError(kind string) {
	globalManager.boardUpdateErrors.WithLabelValues(kind).Inc()
}

// RecordDuplicateSubmission counts an idempotent replay.
func RecordDuplicateSubmission() {
	globalManager.duplicateSubmitted.Inc()
}

// RecordDecodeSkipped counts a board entry dropped from a read.
func RecordDecodeSkipped() {
	globalManager.decodeSkipped.Inc()
}

// RecordStoreLatency records a rank store operation latency.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// UpdateStoreBoards sets the live board count.
func UpdateStoreBoards(count int) {
	globalManager.storeBoards.Set(float64(count))
}

// UpdateStoreEntries sets the entry count across boards.
func UpdateStoreEntries(count int) {
	globalManager.storeEntries.Set(float64(count))
}

// RecordBoardExpired counts an expired board.
func RecordBoardExpired() {
	globalManager.storeExpired.Inc()
}

// RecordLedgerLatency records a ledger operation latency.
func RecordLedgerLatency(op string, latencyMs float64) {
	globalManager.ledgerLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordLedgerError counts a ledger failure.
func RecordLedgerError(op string) {
	globalManager.ledgerErrors.WithLabelValues(op).Inc()
}

// RecordCatalogHit counts a catalog cache hit.
func RecordCatalogHit() {
	globalManager.catalogLookups.WithLabelValues("hit").Inc()
}

// RecordCatalogMiss counts a catalog cache miss.
func RecordCatalogMiss() {
	globalManager.catalogLookups.WithLabelValues("miss").Inc()
}

// RecordSyncRun counts a sync engine run.
func RecordSyncRun(result string) {
	globalManager.syncRuns.WithLabelValues(result).Inc()
}

// RecordSyncDuration records a full rebuild duration.
func RecordSyncDuration(latencyMs float64) {
	globalManager.syncDuration.Observe(latencyMs)
}

// UpdateSyncLastUnix sets the last rebuild completion time.
func UpdateSyncLastUnix(ts float64) {
	globalManager.syncLastUnix.Set(ts)
}

// UpdateSyncDivergentCategories sets the divergent category count.
func UpdateSyncDivergentCategories(count int) {
	globalManager.syncDivergent.Set(float64(count))
}

// RecordEventPublished counts a published event.
func RecordEventPublished(subject string) {
	globalManager.eventsPublished.WithLabelValues(subject).Inc()
}

// RecordEventPublishError counts a failed publish.
func RecordEventPublishError(subject string) {
	globalManager.eventsPublishErrors.WithLabelValues(subject).Inc()
}

// UpdateQueueCapacity sets the rebuild queue capacity.
func UpdateQueueCapacity(capacity int) {
	globalManager.queueCapacity.Set(float64(capacity))
}

// UpdateQueueSize sets the rebuild queue depth.
func UpdateQueueSize(size int) {
	globalManager.queueSize.Set(float64(size))
}

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() {
	globalManager.queueEnqueued.Inc()
}

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() {
	globalManager.queueDequeued.Inc()
}

// RecordQueueEnqueueError increments the enqueue error counter.
func RecordQueueEnqueueError() {
	globalManager.queueEnqueueErrors.Inc()
}

// RecordQueueProcessingLatency records how long a job waited in the queue.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerActiveCount sets the number of running workers.
func UpdateWorkerActiveCount(count int) {
	globalManager.workerActiveCount.Set(float64(count))
}

// RecordWorkerProcessingLatency records a job's processing latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerLatency.Observe(latencyMs)
}

// RecordWorkerError increments the job failure counter.
func RecordWorkerError() {
	globalManager.workerErrors.Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets heap memory usage in bytes.
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

// GetRegistry returns the registry that backs /metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
