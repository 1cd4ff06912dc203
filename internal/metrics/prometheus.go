// Package metrics provides Prometheus metrics for the adaptive request layer.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requestsTotal     *prometheus.CounterVec
	requestDuration   *prometheus.HistogramVec
	attemptsTotal     prometheus.Counter
	retriesTotal      *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	fallbacksTotal    *prometheus.CounterVec
	offlineQueued     *prometheus.CounterVec
	offlineQueueFails prometheus.Counter
	batchDrains       *prometheus.CounterVec
	batchSize         prometheus.Histogram
	networkQuality    prometheus.Gauge
	probeLatency      prometheus.Histogram
	probeFailures     *prometheus.CounterVec
}

// NewMetrics creates metrics registered against reg. A nil reg uses the
// default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptivenet_requests_total",
				Help: "Total number of facade requests by resource and outcome",
			},
			[]string{"resource", "outcome"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adaptivenet_request_duration_seconds",
				Help:    "Facade request duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"resource"},
		),
		attemptsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adaptivenet_remote_attempts_total",
				Help: "Total number of remote operation attempts",
			},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptivenet_retries_total",
				Help: "Total number of retries by error kind",
			},
			[]string{"kind"},
		),
		cacheLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptivenet_cache_lookups_total",
				Help: "Response cache lookups by resource and result (hit, miss, stale)",
			},
			[]string{"resource", "result"},
		),
		fallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptivenet_fallbacks_total",
				Help: "Degraded responses served by source (stale_cache, fallback_data)",
			},
			[]string{"resource", "source"},
		),
		offlineQueued: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptivenet_offline_queue_appends_total",
				Help: "Write intents appended to the offline queue",
			},
			[]string{"type"},
		),
		offlineQueueFails: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "adaptivenet_offline_queue_append_failures_total",
				Help: "Failed offline queue appends (swallowed)",
			},
		),
		batchDrains: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptivenet_batch_drains_total",
				Help: "Batch queue drains by trigger (size, timer, close)",
			},
			[]string{"trigger"},
		),
		batchSize: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adaptivenet_batch_size",
				Help:    "Number of requests per batch drain",
				Buckets: []float64{1, 2, 3, 5, 8, 10, 20, 50},
			},
		),
		networkQuality: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "adaptivenet_network_quality",
				Help: "Current network quality rank (0 = poor, 3 = excellent)",
			},
		),
		probeLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "adaptivenet_backend_probe_latency_seconds",
				Help:    "Backend probe latency in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.3, 0.5, 0.8, 1, 2, 5, 10},
			},
		),
		probeFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adaptivenet_probe_failures_total",
				Help: "Failed probes by probe kind (reachability, backend)",
			},
			[]string{"probe"},
		),
	}
}

// RecordRequest records the outcome and duration of a facade call
func (m *Metrics) RecordRequest(resource, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(resource, outcome).Inc()
	m.requestDuration.WithLabelValues(resource).Observe(duration.Seconds())
}

// RecordAttempt counts one remote attempt
func (m *Metrics) RecordAttempt() {
	if m == nil {
		return
	}
	m.attemptsTotal.Inc()
}

// RecordRetry counts one retry caused by an error of the given kind
func (m *Metrics) RecordRetry(kind string) {
	if m == nil {
		return
	}
	m.retriesTotal.WithLabelValues(kind).Inc()
}

// RecordCacheLookup records a cache hit, miss or stale hit
func (m *Metrics) RecordCacheLookup(resource, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(resource, result).Inc()
}

// RecordFallback records a degraded response
func (m *Metrics) RecordFallback(resource, source string) {
	if m == nil {
		return
	}
	m.fallbacksTotal.WithLabelValues(resource, source).Inc()
}

// RecordOfflineQueued records an offline queue append
func (m *Metrics) RecordOfflineQueued(itemType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.offlineQueueFails.Inc()
		return
	}
	m.offlineQueued.WithLabelValues(itemType).Inc()
}

// RecordBatchDrain records a batch drain and its size
func (m *Metrics) RecordBatchDrain(trigger string, size int) {
	if m == nil {
		return
	}
	m.batchDrains.WithLabelValues(trigger).Inc()
	m.batchSize.Observe(float64(size))
}

// SetNetworkQuality sets the quality gauge from a grade rank
func (m *Metrics) SetNetworkQuality(rank int) {
	if m == nil {
		return
	}
	m.networkQuality.Set(float64(rank))
}

// RecordProbe records a backend probe latency
func (m *Metrics) RecordProbe(latency time.Duration) {
	if m == nil {
		return
	}
	m.probeLatency.Observe(latency.Seconds())
}

// RecordProbeFailure counts a failed probe
func (m *Metrics) RecordProbeFailure(probe string) {
	if m == nil {
		return
	}
	m.probeFailures.WithLabelValues(probe).Inc()
}

// MetricsServer provides a separate HTTP server for Prometheus metrics.
type MetricsServer struct {
	server *http.Server
	logger *zap.Logger
}

// NewMetricsServer creates a new metrics server.
func NewMetricsServer(port int, path string, gatherer prometheus.Gatherer, logger *zap.Logger) *MetricsServer {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &MetricsServer{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Start starts the metrics server.
func (ms *MetricsServer) Start() error {
	ms.logger.Info("starting metrics server", zap.String("addr", ms.server.Addr))
	if err := ms.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the metrics server.
func (ms *MetricsServer) Shutdown(ctx context.Context) error {
	return ms.server.Shutdown(ctx)
}
