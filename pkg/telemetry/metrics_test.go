package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if !labelsMatch(metric, labels) {
				continue
			}
			switch {
			case metric.GetCounter() != nil:
				return metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				return metric.GetGauge().GetValue()
			}
		}
	}
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(labels) == 0 {
		return true
	}
	matched := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok && want == pair.GetValue() {
			matched++
		}
	}
	return matched == len(labels)
}

func TestMetricsRecordOrderPipeline(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.ChunkUpdate(10)
	m.ChunkUpdate(5)
	m.ChunkError()
	m.AddActivePartitions(3)
	m.AddActivePartitions(-1)
	m.MergePublish()
	m.CacheLoad("hit")
	m.CacheLoad("")
	m.CacheStoreFailed()
	m.RootTransition("idle", "bootstrapping")
	m.ObserveAPIRequest("GET", "/v1/orders", "200", 20*time.Millisecond)

	assert.Equal(t, 2.0, counterValue(t, reg, "orderfeed_chunk_updates_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "orderfeed_chunk_errors_total", nil))
	assert.Equal(t, 2.0, counterValue(t, reg, "orderfeed_active_partitions", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "orderfeed_merge_publishes_total", nil))
	assert.Equal(t, 1.0, counterValue(t, reg, "orderfeed_cache_loads_total", map[string]string{"result": "hit"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "orderfeed_cache_loads_total", map[string]string{"result": "unknown"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "orderfeed_root_transitions_total", map[string]string{"from": "idle", "to": "bootstrapping"}))
	assert.Equal(t, 1.0, counterValue(t, reg, "orderfeed_api_requests_total", map[string]string{"route": "/v1/orders", "status": "200"}))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ChunkUpdate(1)
		m.ChunkError()
		m.CacheLoad("miss")
		m.RootTransition("live", "idle")
		m.AddStreamSubscribers(1)
	})
}
