// Package handler provides HTTP handlers for the network agent.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/devrev/adaptivenet/internal/model"
	"github.com/devrev/adaptivenet/internal/netprobe"
	"github.com/devrev/adaptivenet/internal/store"
	"go.uber.org/zap"
)

// ErrorCode represents agent error codes.
type ErrorCode string

const (
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
	ErrorCodeNotConfigured  ErrorCode = "NOT_CONFIGURED"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"
)

// ErrorResponse represents the standard error response format.
type ErrorResponse struct {
	Status    string    `json:"status"`
	ErrorCode ErrorCode `json:"error_code"`
	Message   string    `json:"message"`
	RequestID string    `json:"request_id,omitempty"`
}

// Prober is the network probe surface the handlers use
type Prober interface {
	CheckStatus(ctx context.Context) model.NetworkStatus
	LastStatus() (model.NetworkStatus, bool)
	Stats(ctx context.Context, window time.Duration) (model.QualityStats, error)
}

// StatusResponse is a NetworkStatus with latency in milliseconds.
type StatusResponse struct {
	IsConnected     bool          `json:"is_connected"`
	CanReachBackend bool          `json:"can_reach_backend"`
	Quality         model.Quality `json:"quality"`
	Speed           model.Speed   `json:"speed"`
	LatencyMs       int64         `json:"latency_ms"`
	Error           string        `json:"error,omitempty"`
	CheckedAt       time.Time     `json:"checked_at"`
}

// StatsResponse is QualityStats in operator units.
type StatsResponse struct {
	WindowHours      float64               `json:"window_hours"`
	Samples          int                   `json:"samples"`
	AverageLatencyMs int64                 `json:"average_latency_ms"`
	Dominant         model.Quality         `json:"dominant,omitempty"`
	Distribution     map[model.Quality]int `json:"distribution"`
	ConnectedRatio   float64               `json:"connected_ratio"`
}

// DefaultStatsWindow is used when window_hours is absent
const DefaultStatsWindow = 24 * time.Hour

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	probe  Prober
	queue  store.SyncQueue
	logger *zap.Logger
}

// NewHandlers creates a new Handlers instance. queue may be nil.
func NewHandlers(probe Prober, queue store.SyncQueue, logger *zap.Logger) *Handlers {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		probe:  probe,
		queue:  queue,
		logger: logger,
	}
}

// NetworkStatus handles GET /v1/network/status. It serves the last
// observation and probes only if none exists yet.
func (h *Handlers) NetworkStatus(w http.ResponseWriter, r *http.Request) {
	status, ok := h.probe.LastStatus()
	if !ok {
		status = h.probe.CheckStatus(r.Context())
	}
	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

// RefreshNetworkStatus handles POST /v1/network/refresh.
func (h *Handlers) RefreshNetworkStatus(w http.ResponseWriter, r *http.Request) {
	status := h.probe.CheckStatus(r.Context())
	h.logger.Info("Network status refreshed",
		zap.String("quality", string(status.Quality)),
		zap.String("request_id", r.Header.Get("X-Request-ID")))
	writeJSON(w, http.StatusOK, toStatusResponse(status))
}

// NetworkStats handles GET /v1/network/stats?window_hours=N.
func (h *Handlers) NetworkStats(w http.ResponseWriter, r *http.Request) {
	window := DefaultStatsWindow
	if raw := r.URL.Query().Get("window_hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || hours <= 0 {
			writeError(w, r, http.StatusBadRequest, ErrorCodeInvalidRequest, "window_hours must be a positive number")
			return
		}
		window = time.Duration(hours * float64(time.Hour))
	}

	stats, err := h.probe.Stats(r.Context(), window)
	if err != nil {
		if errors.Is(err, netprobe.ErrNoHistory) {
			writeError(w, r, http.StatusNotImplemented, ErrorCodeNotConfigured, err.Error())
			return
		}
		h.logger.Error("failed to load network stats", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, ErrorCodeInternalError, "failed to load network stats")
		return
	}

	writeJSON(w, http.StatusOK, StatsResponse{
		WindowHours:      window.Hours(),
		Samples:          stats.Samples,
		AverageLatencyMs: stats.AverageLatency.Milliseconds(),
		Dominant:         stats.Dominant,
		Distribution:     stats.Distribution,
		ConnectedRatio:   stats.ConnectedRatio,
	})
}

// SyncQueueStats handles GET /v1/sync-queue/stats.
func (h *Handlers) SyncQueueStats(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		writeError(w, r, http.StatusNotImplemented, ErrorCodeNotConfigured, "offline queue not configured")
		return
	}

	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to load sync queue stats", zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, ErrorCodeInternalError, "failed to load sync queue stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// NotFound writes the standard 404 body.
func NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, ErrorCodeNotFound, "endpoint not found")
}

// MethodNotAllowed writes the standard 405 body.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusMethodNotAllowed, ErrorCodeInvalidRequest, "method not allowed")
}

func toStatusResponse(s model.NetworkStatus) StatusResponse {
	return StatusResponse{
		IsConnected:     s.IsConnected,
		CanReachBackend: s.CanReachBackend,
		Quality:         s.Quality,
		Speed:           s.Speed,
		LatencyMs:       s.Latency.Milliseconds(),
		Error:           s.Error,
		CheckedAt:       s.CheckedAt,
	}
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, errorCode ErrorCode, message string) {
	writeJSON(w, code, ErrorResponse{
		Status:    "error",
		ErrorCode: errorCode,
		Message:   message,
		RequestID: r.Header.Get("X-Request-ID"),
	})
}
