package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordCacheLookup("listings", "hit")
	m.RecordCacheLookup("listings", "hit")
	m.RecordCacheLookup("listings", "miss")
	m.RecordOfflineQueued("create_listing", nil)
	m.RecordOfflineQueued("create_listing", errors.New("db down"))
	m.RecordRetry("server")
	m.SetNetworkQuality(2)
	m.RecordRequest("listings", "live", 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("listings", "hit")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("listings", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.offlineQueued.WithLabelValues("create_listing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.offlineQueueFails))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retriesTotal.WithLabelValues("server")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.networkQuality))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requestsTotal.WithLabelValues("listings", "live")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAttempt()
		m.RecordRetry("network")
		m.RecordBatchDrain("size", 10)
		m.RecordProbe(time.Second)
		m.RecordProbeFailure("backend")
		m.SetNetworkQuality(0)
	})
}

func TestMetrics_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		NewMetrics(prometheus.NewRegistry())
		NewMetrics(prometheus.NewRegistry())
	})
}
