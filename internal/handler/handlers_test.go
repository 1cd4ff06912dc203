package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/devrev/adaptivenet/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProber struct {
	status   model.NetworkStatus
	checked  bool
	stats    model.QualityStats
	statsErr error
	window   time.Duration
}

func (p *stubProber) CheckStatus(ctx context.Context) model.NetworkStatus {
	p.checked = true
	return p.status
}

func (p *stubProber) LastStatus() (model.NetworkStatus, bool) {
	return p.status, p.checked
}

func (p *stubProber) Stats(ctx context.Context, window time.Duration) (model.QualityStats, error) {
	p.window = window
	return p.stats, p.statsErr
}

type failingQueue struct{}

func (failingQueue) AddToSyncQueue(ctx context.Context, item *model.SyncItem) error {
	return errors.New("unavailable")
}

func (failingQueue) Stats(ctx context.Context) (*model.SyncQueueStats, error) {
	return nil, errors.New("unavailable")
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestNetworkStats_WindowHours(t *testing.T) {
	prober := &stubProber{stats: model.QualityStats{
		Samples:        4,
		AverageLatency: 250 * time.Millisecond,
		Dominant:       model.QualityExcellent,
		Distribution:   map[model.Quality]int{model.QualityExcellent: 4},
		ConnectedRatio: 1,
	}}
	h := NewHandlers(prober, nil, nil)

	rec := httptest.NewRecorder()
	h.NetworkStats(rec, httptest.NewRequest(http.MethodGet, "/v1/network/stats?window_hours=1.5", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 90*time.Minute, prober.window)

	var body StatsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, 1.5, body.WindowHours)
	assert.Equal(t, int64(250), body.AverageLatencyMs)
	assert.Equal(t, model.QualityExcellent, body.Dominant)
}

func TestNetworkStats_DefaultWindow(t *testing.T) {
	prober := &stubProber{}
	h := NewHandlers(prober, nil, nil)

	rec := httptest.NewRecorder()
	h.NetworkStats(rec, httptest.NewRequest(http.MethodGet, "/v1/network/stats", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DefaultStatsWindow, prober.window)
}

func TestNetworkStats_RejectsBadWindow(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-2"} {
		t.Run(raw, func(t *testing.T) {
			h := NewHandlers(&stubProber{}, nil, nil)
			rec := httptest.NewRecorder()
			h.NetworkStats(rec, httptest.NewRequest(http.MethodGet, "/v1/network/stats?window_hours="+raw, nil))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, ErrorCodeInvalidRequest, decodeError(t, rec).ErrorCode)
		})
	}
}

func TestNetworkStats_StoreFailure(t *testing.T) {
	h := NewHandlers(&stubProber{statsErr: errors.New("redis down")}, nil, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/network/stats", nil)
	req.Header.Set("X-Request-ID", "req-1")
	h.NetworkStats(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, ErrorCodeInternalError, body.ErrorCode)
	assert.Equal(t, "req-1", body.RequestID)
	assert.NotContains(t, body.Message, "redis")
}

func TestSyncQueueStats_QueueFailure(t *testing.T) {
	h := NewHandlers(&stubProber{}, failingQueue{}, nil)

	rec := httptest.NewRecorder()
	h.SyncQueueStats(rec, httptest.NewRequest(http.MethodGet, "/v1/sync-queue/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRefreshNetworkStatus_ReportsLatencyInMilliseconds(t *testing.T) {
	prober := &stubProber{status: model.NetworkStatus{
		IsConnected:     true,
		CanReachBackend: true,
		Quality:         model.QualityGood,
		Speed:           model.SpeedMedium,
		Latency:         700 * time.Millisecond,
	}}
	h := NewHandlers(prober, nil, nil)

	rec := httptest.NewRecorder()
	h.RefreshNetworkStatus(rec, httptest.NewRequest(http.MethodPost, "/v1/network/refresh", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, prober.checked)

	var body StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, int64(700), body.LatencyMs)
	assert.Equal(t, model.QualityGood, body.Quality)
}
