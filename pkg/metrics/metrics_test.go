package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveSearch("partial", "miss", 0.002, 3)
	m.CacheHit("local")
	m.CacheHit("local")
	m.CacheMiss()
	m.SnapshotReload("swapped", 10, 42)
	m.SnapshotReload("error", 0, 0)
	m.Build("ok", 1.5, 10)
	m.BreakerState("redis-cache", 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.SearchQueriesTotal.WithLabelValues("partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHitsTotal.WithLabelValues("local")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMissesTotal))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.SnapshotDocuments), "failed reloads keep the gauges")
	assert.Equal(t, 42.0, testutil.ToFloat64(m.SnapshotTerms))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.DocsIndexedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CircuitBreakerState.WithLabelValues("redis-cache")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveSearch("full", "hit", 0, 1)
		m.CacheHit("redis")
		m.CacheMiss()
		m.SnapshotReload("swapped", 1, 1)
		m.Build("error", 1, 0)
		m.RateLimited()
		m.BreakerState("x", 0)
	})
}
