package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/devrev/adaptivenet/internal/config"
	"github.com/devrev/adaptivenet/internal/handler"
	"github.com/devrev/adaptivenet/internal/health"
	"github.com/devrev/adaptivenet/internal/model"
	"github.com/devrev/adaptivenet/internal/netprobe"
	"github.com/devrev/adaptivenet/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeProber struct {
	mu      sync.Mutex
	status  model.NetworkStatus
	checked bool
	checks  int
	history store.HistoryStore
}

func (p *fakeProber) CheckStatus(ctx context.Context) model.NetworkStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checks++
	p.checked = true
	return p.status
}

func (p *fakeProber) LastStatus() (model.NetworkStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status, p.checked
}

func (p *fakeProber) Stats(ctx context.Context, window time.Duration) (model.QualityStats, error) {
	if p.history == nil {
		return model.QualityStats{}, netprobe.ErrNoHistory
	}
	return p.history.GetAverageNetworkQuality(ctx, window)
}

func newTestServer(t *testing.T, prober *fakeProber, queue store.SyncQueue) http.Handler {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.RateLimiter.RequestsPerSecond = 0.001
	cfg.RateLimiter.BurstSize = 1

	logger := zap.NewNop()
	srv := NewServer(cfg, handler.NewHandlers(prober, queue, logger), health.NewHealthCheck(prober, logger), logger)
	return srv.Handler()
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func goodStatus() model.NetworkStatus {
	return model.NetworkStatus{
		IsConnected:     true,
		CanReachBackend: true,
		Quality:         model.QualityFair,
		Speed:           model.SpeedSlow,
		Latency:         1500 * time.Millisecond,
	}
}

func TestNetworkStatus_ProbesOnceThenServesLast(t *testing.T) {
	prober := &fakeProber{status: goodStatus()}
	h := newTestServer(t, prober, nil)

	rec := do(t, h, http.MethodGet, "/v1/network/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handler.StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.QualityFair, resp.Quality)
	assert.Equal(t, int64(1500), resp.LatencyMs)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	do(t, h, http.MethodGet, "/v1/network/status")
	assert.Equal(t, 1, prober.checks)
}

func TestRefresh_RateLimited(t *testing.T) {
	prober := &fakeProber{status: goodStatus()}
	h := newTestServer(t, prober, nil)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/v1/network/refresh").Code)
	assert.Equal(t, http.StatusTooManyRequests, do(t, h, http.MethodPost, "/v1/network/refresh").Code)
	assert.Equal(t, 1, prober.checks)
}

func TestNetworkStats(t *testing.T) {
	history := store.NewMemoryHistoryStore(48*time.Hour, nil)
	ctx := context.Background()
	require.NoError(t, history.RecordNetworkQuality(ctx, model.QualityObservation{
		Quality:     model.QualityGood,
		Latency:     600 * time.Millisecond,
		IsConnected: true,
	}))
	h := newTestServer(t, &fakeProber{history: history}, nil)

	rec := do(t, h, http.MethodGet, "/v1/network/stats?window_hours=2")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp handler.StatsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2.0, resp.WindowHours)
	assert.Equal(t, 1, resp.Samples)
	assert.Equal(t, int64(600), resp.AverageLatencyMs)
	assert.Equal(t, model.QualityGood, resp.Dominant)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/network/stats?window_hours=-1").Code)
}

func TestNetworkStats_NoHistory(t *testing.T) {
	h := newTestServer(t, &fakeProber{}, nil)
	assert.Equal(t, http.StatusNotImplemented, do(t, h, http.MethodGet, "/v1/network/stats").Code)
}

func TestSyncQueueStats(t *testing.T) {
	queue := store.NewMemorySyncQueue(0)
	require.NoError(t, queue.AddToSyncQueue(context.Background(), &model.SyncItem{Type: model.SyncSendMessage}))
	h := newTestServer(t, &fakeProber{}, queue)

	rec := do(t, h, http.MethodGet, "/v1/sync-queue/stats")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats model.SyncQueueStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.ByType[model.SyncSendMessage])

	h = newTestServer(t, &fakeProber{}, nil)
	assert.Equal(t, http.StatusNotImplemented, do(t, h, http.MethodGet, "/v1/sync-queue/stats").Code)
}

func TestHealthRoutes(t *testing.T) {
	prober := &fakeProber{status: goodStatus()}
	h := newTestServer(t, prober, nil)

	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/health").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/ready").Code)

	prober.CheckStatus(context.Background())
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready").Code)
}

func TestUnknownRouteAndMethod(t *testing.T) {
	h := newTestServer(t, &fakeProber{}, nil)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/nope").Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodDelete, "/v1/network/status").Code)
}
