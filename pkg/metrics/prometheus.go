// Package metrics provides Prometheus metrics for the scouting calculation pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the pipeline.
type Manager struct {
	namespace        string
	subsystem        string
	durationBuckets []float64
	enabled         bool
	constLabels     map[string]string
	metricPrefix    string
	registry        prometheus.Registerer

	// Ingestion
	qrsIngested         *prometheus.CounterVec
	decompressFailures  *prometheus.CounterVec
	rawQRTotal          prometheus.Gauge
	blocklistMutations  prometheus.Counter
	overrideMutations   prometheus.Counter

	// Calculation cycle
	cycleDuration     prometheus.Histogram
	cyclesTotal       prometheus.Counter
	stageDuration     *prometheus.HistogramVec
	stageKeys         *prometheus.CounterVec
	stageErrors       *prometheus.CounterVec
	changeLogEntries  prometheus.Gauge

	// Store
	storeOperations *prometheus.CounterVec
	storeLatency    *prometheus.HistogramVec

	// TBA
	tbaRequests *prometheus.CounterVec
	tbaLatency  prometheus.Histogram

	// Cloud replica
	replicaMirrored prometheus.Counter
	replicaErrors   prometheus.Counter
	replicaLag      prometheus.Gauge

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
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
		namespace:       "scoutcalc",
		subsystem:       "pipeline",
		durationBuckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000, 5000},
		enabled:         true,
		constLabels:     make(map[string]string),
		registry:        prometheus.DefaultRegisterer,
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

func (m *Manager) initializeMetrics() { //nolint:funlen // one block per metric
	auto := promauto.With(m.registry)
	labels := prometheus.Labels(m.constLabels)

	m.qrsIngested = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("qrs_ingested_total"),
		Help: "QR strings submitted for ingestion, by result (accepted, duplicate, invalid)",
	}, []string{"result"})

	m.decompressFailures = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("decompress_failures_total"),
		Help: "QR payloads that could not be decompressed, by kind",
	}, []string{"kind"})

	m.rawQRTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("raw_qr_total"),
		Help: "Raw QR documents held by the store",
	})

	m.blocklistMutations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("blocklist_mutations_total"),
		Help: "Raw QR documents whose blocklist flag was changed",
	})

	m.overrideMutations = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("override_mutations_total"),
		Help: "Per-field overrides applied to raw QR documents",
	})

	m.cycleDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("cycle_duration_milliseconds"),
		Help:    "Wall time of one calculation cycle",
		Buckets: m.durationBuckets,
	})

	m.cyclesTotal = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("cycles_total"),
		Help: "Calculation cycles completed",
	})

	m.stageDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("stage_duration_milliseconds"),
		Help:    "Wall time of one stage run",
		Buckets: m.durationBuckets,
	}, []string{"stage"})

	m.stageKeys = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("stage_keys_total"),
		Help: "Keys recomputed by a stage",
	}, []string{"stage"})

	m.stageErrors = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("stage_errors_total"),
		Help: "Per-key failures inside a stage",
	}, []string{"stage"})

	m.changeLogEntries = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("change_log_entries"),
		Help: "Entries read from the change log in the last cycle",
	})

	m.storeOperations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("store_operations_total"),
		Help: "Document store operations by kind and collection",
	}, []string{"op", "collection"})

	m.storeLatency = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("store_latency_milliseconds"),
		Help:    "Document store operation latency",
		Buckets: m.durationBuckets,
	}, []string{"op"})

	m.tbaRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("tba_requests_total"),
		Help: "TBA API requests by outcome (ok, not_modified, error)",
	}, []string{"outcome"})

	m.tbaLatency = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("tba_latency_milliseconds"),
		Help:    "TBA API request latency",
		Buckets: m.durationBuckets,
	})

	m.replicaMirrored = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("replica_mirrored_total"),
		Help: "Change-log entries mirrored to the cloud replica",
	})

	m.replicaErrors = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("replica_errors_total"),
		Help: "Failed cloud replica write batches",
	})

	m.replicaLag = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("replica_pending_entries"),
		Help: "Change-log entries not yet mirrored to the cloud replica",
	})

	m.httpRequests = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name: m.name("http_requests_total"),
		Help: "Read API requests",
	}, []string{"endpoint", "method", "status_code"})

	m.httpRequestDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: m.subsystem, ConstLabels: labels,
		Name:    m.name("http_request_duration_milliseconds"),
		Help:    "Read API request duration",
		Buckets: m.durationBuckets,
	}, []string{"endpoint", "method", "status_code"})
}

// RecordQRIngested counts one submitted QR by result.
func RecordQRIngested(result string) {
	if !globalManager.enabled {
		return
	}
	globalManager.qrsIngested.WithLabelValues(result).Inc()
}

// RecordDecompressFailure counts a QR that could not be decompressed.
func RecordDecompressFailure(kind string) {
	globalManager.decompressFailures.WithLabelValues(kind).Inc()
}

// UpdateRawQRTotal sets the number of raw QR documents.
func UpdateRawQRTotal(n int) {
	globalManager.rawQRTotal.Set(float64(n))
}

// RecordBlocklistMutation counts blocklist flag changes.
func RecordBlocklistMutation(n int) {
	globalManager.blocklistMutations.Add(float64(n))
}

// RecordOverrideMutation counts an override applied to a raw QR.
func RecordOverrideMutation() {
	globalManager.overrideMutations.Inc()
}

// RecordCycle records one completed calculation cycle.
func RecordCycle(durationMs float64) {
	globalManager.cyclesTotal.Inc()
	globalManager.cycleDuration.Observe(durationMs)
}

// RecordStage records the duration of a stage and the keys it recomputed.
func RecordStage(stage string, durationMs float64, keys int) {
	globalManager.stageDuration.WithLabelValues(stage).Observe(durationMs)
	globalManager.stageKeys.WithLabelValues(stage).Add(float64(keys))
}

// RecordStageError counts a per-key failure within a stage.
func RecordStageError(stage string) {
	globalManager.stageErrors.WithLabelValues(stage).Inc()
}

// UpdateChangeLogEntries sets the number of change-log entries read in the last cycle.
func UpdateChangeLogEntries(n int) {
	globalManager.changeLogEntries.Set(float64(n))
}

// RecordStoreOperation counts a store operation and its latency.
func RecordStoreOperation(op, collection string, latencyMs float64) {
	globalManager.storeOperations.WithLabelValues(op, collection).Inc()
	globalManager.storeLatency.WithLabelValues(op).Observe(latencyMs)
}

// RecordTBARequest counts a TBA request by outcome and records its latency.
func RecordTBARequest(outcome string, latencyMs float64) {
	globalManager.tbaRequests.WithLabelValues(outcome).Inc()
	globalManager.tbaLatency.Observe(latencyMs)
}

// RecordReplicaMirrored counts change-log entries written to the replica.
func RecordReplicaMirrored(n int) {
	globalManager.replicaMirrored.Add(float64(n))
}

// RecordReplicaError counts a failed replica write batch.
func RecordReplicaError() {
	globalManager.replicaErrors.Inc()
}

// UpdateReplicaPending sets the number of entries waiting for the replica.
func UpdateReplicaPending(n int) {
	globalManager.replicaLag.Set(float64(n))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}
