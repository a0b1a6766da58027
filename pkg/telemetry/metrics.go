package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus observability primitives for the order feed.
type Metrics struct {
	apiRequests       *prometheus.CounterVec
	apiDuration       *prometheus.HistogramVec
	chunkUpdates      prometheus.Counter
	chunkErrors       prometheus.Counter
	chunkRecords      prometheus.Histogram
	activePartitions  prometheus.Gauge
	mergePublishes    prometheus.Counter
	cacheLoads        *prometheus.CounterVec
	cacheStoreFailed  prometheus.Counter
	rootTransitions   *prometheus.CounterVec
	activeSessions    prometheus.Gauge
	streamSubscribers prometheus.Gauge
}

// NewMetrics registers and returns Prometheus metrics on reg. A nil
// registerer uses the default registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderfeed_api_requests_total",
			Help: "Counts API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "orderfeed_api_duration_seconds",
			Help:    "API request latency per method/route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		chunkUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderfeed_chunk_updates_total",
			Help: "Batch snapshots delivered by chunk watchers.",
		}),
		chunkErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderfeed_chunk_errors_total",
			Help: "Batch subscription errors reported by chunk watchers.",
		}),
		chunkRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orderfeed_chunk_records",
			Help:    "Records per delivered batch snapshot.",
			Buckets: []float64{0, 1, 2, 5, 8, 10},
		}),
		activePartitions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderfeed_active_partitions",
			Help: "Chunk watchers currently running.",
		}),
		mergePublishes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderfeed_merge_publishes_total",
			Help: "Aggregate snapshots published by the merger.",
		}),
		cacheLoads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderfeed_cache_loads_total",
			Help: "Cache loads by result.",
		}, []string{"result"}),
		cacheStoreFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orderfeed_cache_store_failures_total",
			Help: "Cache writes that failed and were dropped.",
		}),
		rootTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "orderfeed_root_transitions_total",
			Help: "Root watcher state transitions.",
		}, []string{"from", "to"}),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderfeed_active_sessions",
			Help: "Signed-in owners with a running root watcher.",
		}),
		streamSubscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orderfeed_stream_subscribers",
			Help: "Open order view streams.",
		}),
	}

	reg.MustRegister(
		m.apiRequests,
		m.apiDuration,
		m.chunkUpdates,
		m.chunkErrors,
		m.chunkRecords,
		m.activePartitions,
		m.mergePublishes,
		m.cacheLoads,
		m.cacheStoreFailed,
		m.rootTransitions,
		m.activeSessions,
		m.streamSubscribers,
	)
	return m
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, status).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// ChunkUpdate records one delivered batch snapshot.
func (m *Metrics) ChunkUpdate(records int) {
	if m == nil {
		return
	}
	m.chunkUpdates.Inc()
	m.chunkRecords.Observe(float64(records))
}

func (m *Metrics) ChunkError() {
	if m == nil {
		return
	}
	m.chunkErrors.Inc()
}

// AddActivePartitions moves the running watcher gauge by delta.
func (m *Metrics) AddActivePartitions(delta int) {
	if m == nil {
		return
	}
	m.activePartitions.Add(float64(delta))
}

func (m *Metrics) MergePublish() {
	if m == nil {
		return
	}
	m.mergePublishes.Inc()
}

// CacheLoad records a cache lookup outcome (hit, miss, stale, error).
func (m *Metrics) CacheLoad(result string) {
	if m == nil {
		return
	}
	m.cacheLoads.WithLabelValues(sanitizeLabel(result)).Inc()
}

func (m *Metrics) CacheStoreFailed() {
	if m == nil {
		return
	}
	m.cacheStoreFailed.Inc()
}

// RootTransition records a root watcher state change.
func (m *Metrics) RootTransition(from, to string) {
	if m == nil {
		return
	}
	m.rootTransitions.WithLabelValues(sanitizeLabel(from), sanitizeLabel(to)).Inc()
}

func (m *Metrics) AddActiveSessions(delta int) {
	if m == nil {
		return
	}
	m.activeSessions.Add(float64(delta))
}

func (m *Metrics) AddStreamSubscribers(delta int) {
	if m == nil {
		return
	}
	m.streamSubscribers.Add(float64(delta))
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
