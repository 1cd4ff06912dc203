// Package health provides liveness and readiness endpoints for the agent.
package health

import (
	"encoding/json"
	"net/http"

	"github.com/devrev/adaptivenet/internal/model"
	"go.uber.org/zap"
)

// StatusSource exposes the most recent network observation
type StatusSource interface {
	LastStatus() (model.NetworkStatus, bool)
}

// HealthCheck derives readiness from the last probe result.
type HealthCheck struct {
	source StatusSource
	logger *zap.Logger
}

// NewHealthCheck creates a new HealthCheck instance.
func NewHealthCheck(source StatusSource, logger *zap.Logger) *HealthCheck {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthCheck{
		source: source,
		logger: logger,
	}
}

// LivenessResponse represents the response for the liveness check.
type LivenessResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the response for the readiness check.
type ReadinessResponse struct {
	Status  string            `json:"status"`
	Quality model.Quality     `json:"quality,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// LivenessHandler handles GET /health. 200 while the process runs.
func (hc *HealthCheck) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{Status: "healthy"})
}

// ReadinessHandler handles GET /ready. 200 once a probe has reached the backend.
func (hc *HealthCheck) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	status, checked := hc.source.LastStatus()
	if !checked {
		writeJSON(w, http.StatusServiceUnavailable, ReadinessResponse{
			Status: "not_ready",
			Error:  "no network check has completed yet",
		})
		return
	}

	resp := ReadinessResponse{
		Quality: status.Quality,
		Checks: map[string]string{
			"connectivity": healthState(status.IsConnected),
			"backend":      healthState(status.CanReachBackend),
		},
		Error: status.Error,
	}

	if !status.IsConnected || !status.CanReachBackend {
		resp.Status = "not_ready"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	resp.Status = "ready"
	writeJSON(w, http.StatusOK, resp)
}

// IsReady reports whether the last probe reached the backend.
func (hc *HealthCheck) IsReady() bool {
	status, checked := hc.source.LastStatus()
	return checked && status.IsConnected && status.CanReachBackend
}

func healthState(ok bool) string {
	if ok {
		return "healthy"
	}
	return "unhealthy"
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}
