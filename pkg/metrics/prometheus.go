// Package metrics provides Prometheus metrics for the Tandem match service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultRefreshInterval = 10 * time.Second
)

// Manager owns every Prometheus collector exported by the service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	enabled          bool
	refreshInterval  time.Duration
	customLabels     map[string]string
	metricPrefix     string
	registry         prometheus.Registerer

	// Interest intake
	interestsRecorded *prometheus.CounterVec
	interestConflicts prometheus.Counter
	quotaDenied       *prometheus.CounterVec

	// Match formation
	matchesCreated  prometheus.Counter
	matchRaces      prometheus.Counter
	matchesDissolve prometheus.Counter

	// Milestones
	milestonesApplied   *prometheus.CounterVec
	milestonesDuplicate prometheus.Counter
	compatibilityScore  prometheus.Histogram

	// Ranking
	rankingLatency  prometheus.Histogram
	rankingPoolSize prometheus.Histogram

	// Notifications
	notificationsEmitted   *prometheus.CounterVec
	notificationsDropped   prometheus.Counter
	notificationsFailed    prometheus.Counter
	notificationsDuplicate prometheus.Counter
	breakerState           *prometheus.GaugeVec

	// Storage
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Queue
	queueSize              prometheus.Gauge
	queueCapacity          prometheus.Gauge
	queueUtilization       prometheus.Gauge
	queueEnqueueRate       prometheus.Counter
	queueDequeueRate       prometheus.Counter
	queueEnqueueErrors     *prometheus.CounterVec
	queueProcessingLatency prometheus.Histogram

	// Workers
	workerCount             prometheus.Gauge
	workerProcessingLatency prometheus.Histogram
	workerErrors            prometheus.Counter

	// Errors
	errorRateByComponent *prometheus.CounterVec
	errorRateByEndpoint  *prometheus.CounterVec

	// System
	systemMemoryUsage    prometheus.Gauge
	systemGoroutineCount prometheus.Gauge
	systemGCPauseTime    prometheus.Histogram
}

var globalManager *Manager //nolint:gochecknoglobals // singleton metrics manager

var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // registry served by /healthz

func init() { //nolint:gochecknoinits // global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a metrics manager and registers its collectors.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "tandem",
		subsystem:        "matchmaker",
		histogramBuckets: prometheus.DefBuckets,
		enabled:          true,
		refreshInterval:  defaultRefreshInterval,
		customLabels:     make(map[string]string),
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	if !m.enabled {
		// Collectors still exist so recorders stay safe to call, but they
		// live on a registry nobody serves.
		m.registry = prometheus.NewRegistry()
	}
	m.initializeMetrics()
	return m
}

// Enabled reports whether recorded values reach the configured registry.
func (m *Manager) Enabled() bool { return m.enabled }

// RefreshInterval is how often polled gauges (system, queue) are refreshed.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Configure replaces the global manager with one built from opts on a fresh
// served registry. Call it once at startup, before GetRegistry is used.
func Configure(opts ...Option) {
	customRegistry = prometheus.NewRegistry()
	globalManager = NewManager(append([]Option{WithPrometheusRegistry(customRegistry)}, opts...)...)
}

// Enabled reports whether the global manager exports what it records.
func Enabled() bool { return globalManager.Enabled() }

// RefreshInterval returns the global manager's gauge refresh interval.
func RefreshInterval() time.Duration { return globalManager.RefreshInterval() }

func (m *Manager) name(n string) string {
	if m.metricPrefix == "" {
		return n
	}
	return m.metricPrefix + "_" + n
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogram(name, help string, buckets []float64) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: buckets, ConstLabels: m.customLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name(name), Help: help, Buckets: m.histogramBuckets, ConstLabels: m.customLabels,
	}, labels)
}

func (m *Manager) initializeMetrics() { //nolint:funlen // one place for every collector
	m.interestsRecorded = m.counterVec("interests_recorded_total",
		"Interest events durably recorded, by disposition and priority", "disposition", "priority")
	m.interestConflicts = m.counter("interest_conflicts_total",
		"Interest writes that lost the (actor, target) uniqueness race or were retried")
	m.quotaDenied = m.counterVec("quota_denied_total",
		"Interest attempts rejected by the capability gate, by action", "action")

	m.matchesCreated = m.counter("matches_created_total", "Matches created by the detector")
	m.matchRaces = m.counter("match_races_total",
		"Detector invocations that found the pair already matched")
	m.matchesDissolve = m.counter("matches_dissolved_total", "Matches tombstoned by unmatch")

	m.milestonesApplied = m.counterVec("milestones_applied_total",
		"Milestone bonuses applied, by milestone key", "key")
	m.milestonesDuplicate = m.counter("milestones_duplicate_total",
		"Milestone applications that were already in the ledger")
	m.compatibilityScore = m.histogram("compatibility_score",
		"Compatibility score observed after seeding or milestone application",
		[]float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100})

	m.rankingLatency = m.histogram("ranking_latency_milliseconds",
		"Top Picks ranking latency in milliseconds", m.histogramBuckets)
	m.rankingPoolSize = m.histogram("ranking_pool_size",
		"Candidates scored per ranking request", []float64{0, 5, 10, 25, 50, 75, 100, 200})

	m.notificationsEmitted = m.counterVec("notifications_emitted_total",
		"Notifications delivered to the sink, by kind", "kind")
	m.notificationsDropped = m.counter("notifications_dropped_total",
		"Notifications dropped because the dispatch queue was full or closed")
	m.notificationsFailed = m.counter("notifications_failed_total",
		"Notifications the sink failed to accept")
	m.notificationsDuplicate = m.counter("notifications_duplicate_total",
		"Notifications suppressed by the dispatcher dedupe")
	m.breakerState = promauto.With(m.registry).NewGaugeVec(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, Name: m.name("breaker_state"),
		Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)", ConstLabels: m.customLabels,
	}, []string{"name"})

	m.storeLatency = m.histogramVec("store_latency_milliseconds",
		"Storage operation latency in milliseconds", "op")
	m.storeErrors = m.counterVec("store_errors_total", "Storage failures by operation", "op")

	m.httpRequests = m.counterVec("http_requests_total",
		"HTTP requests by endpoint, method and status", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds",
		"HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.queueSize = m.gauge("queue_size", "Notifications waiting for dispatch")
	m.queueCapacity = m.gauge("queue_capacity", "Notification queue capacity")
	m.queueUtilization = m.gauge("queue_utilization_ratio", "Notification queue utilization ratio")
	m.queueEnqueueRate = m.counter("queue_enqueue_total", "Notifications enqueued")
	m.queueDequeueRate = m.counter("queue_dequeue_total", "Notifications dequeued")
	m.queueEnqueueErrors = m.counterVec("queue_enqueue_errors_total", "Enqueue failures by reason", "reason")
	m.queueProcessingLatency = m.histogram("queue_processing_latency_milliseconds",
		"Enqueue latency in milliseconds", m.histogramBuckets)

	m.workerCount = m.gauge("worker_count", "Notification dispatch workers")
	m.workerProcessingLatency = m.histogram("worker_processing_latency_milliseconds",
		"Per-notification delivery latency in milliseconds", m.histogramBuckets)
	m.workerErrors = m.counter("worker_errors_total", "Notification deliveries that failed in a worker")

	m.errorRateByComponent = m.counterVec("errors_by_component_total",
		"Errors by component and type", "component", "error_type")
	m.errorRateByEndpoint = m.counterVec("errors_by_endpoint_total",
		"Errors by endpoint", "endpoint", "method", "error_type")

	m.systemMemoryUsage = m.gauge("system_memory_usage_bytes", "Heap bytes allocated")
	m.systemGoroutineCount = m.gauge("system_goroutine_count", "Number of goroutines")
	m.systemGCPauseTime = m.histogram("system_gc_pause_time_milliseconds", "Average GC pause in milliseconds",
		[]float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000})
}

// RecordInterest counts a durably recorded interest event.
func RecordInterest(disposition string, priority bool) {
	p := "false"
	if priority {
		p = "true"
	}
	globalManager.interestsRecorded.WithLabelValues(disposition, p).Inc()
}

// RecordInterestConflict counts a duplicate interest write.
func RecordInterestConflict() { globalManager.interestConflicts.Inc() }

// RecordQuotaDenied counts a capability gate denial.
func RecordQuotaDenied(action string) { globalManager.quotaDenied.WithLabelValues(action).Inc() }

// RecordMatchCreated counts a new match and observes its seeded score.
func RecordMatchCreated(initialScore int) {
	globalManager.matchesCreated.Inc()
	globalManager.compatibilityScore.Observe(float64(initialScore))
}

// RecordMatchRace counts a detection that resolved to an existing match.
func RecordMatchRace() { globalManager.matchRaces.Inc() }

// RecordMatchDissolved counts an unmatch.
func RecordMatchDissolved() { globalManager.matchesDissolve.Inc() }

// RecordMilestoneApplied counts an applied milestone and observes the new score.
func RecordMilestoneApplied(key string, newScore int) {
	globalManager.milestonesApplied.WithLabelValues(key).Inc()
	globalManager.compatibilityScore.Observe(float64(newScore))
}

// RecordMilestoneDuplicate counts an already-applied milestone.
func RecordMilestoneDuplicate() { globalManager.milestonesDuplicate.Inc() }

// RecordRanking observes one ranking request.
func RecordRanking(latencyMs float64, poolSize int) {
	globalManager.rankingLatency.Observe(latencyMs)
	globalManager.rankingPoolSize.Observe(float64(poolSize))
}

// RecordNotificationEmitted counts a notification accepted by the sink.
func RecordNotificationEmitted(kind string) {
	globalManager.notificationsEmitted.WithLabelValues(kind).Inc()
}

// RecordNotificationDropped counts a notification that never reached a worker.
func RecordNotificationDropped() { globalManager.notificationsDropped.Inc() }

// RecordNotificationFailed counts a sink failure.
func RecordNotificationFailed() { globalManager.notificationsFailed.Inc() }

// RecordNotificationDuplicate counts a suppressed duplicate notification.
func RecordNotificationDuplicate() { globalManager.notificationsDuplicate.Inc() }

// UpdateBreakerState publishes a breaker state (0 closed, 1 half-open, 2 open).
func UpdateBreakerState(name string, state int) {
	globalManager.breakerState.WithLabelValues(name).Set(float64(state))
}

// RecordStoreLatency observes one storage operation.
func RecordStoreLatency(op string, latencyMs float64) {
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordStoreError counts a storage failure.
func RecordStoreError(op string) { globalManager.storeErrors.WithLabelValues(op).Inc() }

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// UpdateQueueSize sets the current queue size.
func UpdateQueueSize(size int) { globalManager.queueSize.Set(float64(size)) }

// UpdateQueueCapacity sets the maximum queue capacity.
func UpdateQueueCapacity(capacity int) { globalManager.queueCapacity.Set(float64(capacity)) }

// UpdateQueueUtilization sets the queue utilization ratio.
func UpdateQueueUtilization(utilization float64) { globalManager.queueUtilization.Set(utilization) }

// RecordQueueEnqueue increments the enqueue counter.
func RecordQueueEnqueue() { globalManager.queueEnqueueRate.Inc() }

// RecordQueueDequeue increments the dequeue counter.
func RecordQueueDequeue() { globalManager.queueDequeueRate.Inc() }

// RecordQueueEnqueueError counts an enqueue failure by reason.
func RecordQueueEnqueueError(reason string) {
	globalManager.queueEnqueueErrors.WithLabelValues(reason).Inc()
}

// RecordQueueProcessingLatency records enqueue latency.
func RecordQueueProcessingLatency(latencyMs float64) {
	globalManager.queueProcessingLatency.Observe(latencyMs)
}

// UpdateWorkerCount sets the number of dispatch workers.
func UpdateWorkerCount(count int) { globalManager.workerCount.Set(float64(count)) }

// RecordWorkerProcessingLatency records per-notification delivery latency.
func RecordWorkerProcessingLatency(latencyMs float64) {
	globalManager.workerProcessingLatency.Observe(latencyMs)
}

// RecordWorkerError increments the worker error counter.
func RecordWorkerError() { globalManager.workerErrors.Inc() }

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorRateByComponent.WithLabelValues(component, errorType).Inc()
}

// RecordErrorByEndpoint records an error with endpoint, method, and error type labels.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	globalManager.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// UpdateSystemMemoryUsage sets the heap usage in bytes.
func UpdateSystemMemoryUsage(bytes uint64) { globalManager.systemMemoryUsage.Set(float64(bytes)) }

// UpdateSystemGoroutineCount sets the number of goroutines.
func UpdateSystemGoroutineCount(count int) { globalManager.systemGoroutineCount.Set(float64(count)) }

// RecordSystemGCPauseTime records GC pause time in milliseconds.
func RecordSystemGCPauseTime(pauseMs float64) { globalManager.systemGCPauseTime.Observe(pauseMs) }

// Since returns the elapsed milliseconds since start, for latency helpers.
func Since(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000
}

// GetRegistry returns the registry the service metrics are registered on.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
