// Package handler serves the todo items REST API, its probes, and the
// WebSocket event stream.
package handler

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/vyrodovalexey/todolist-api/internal/model"
)

// Version is the application version.
const Version = "1.0.0"

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ReadyResponse is the body of a successful GET /ready.
type ReadyResponse struct {
	Status  string `json:"status"`
	Backend string `json:"backend"`
}

// HealthCheck handles GET /health requests.
func (h *TodoHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	response := HealthResponse{
		Status:  "healthy",
		Version: Version,
	}
	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(response))
}

// ReadyCheck handles GET /ready requests. The service is ready when the
// backend answers a ping.
func (h *TodoHandler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	if err := h.backend.Ping(r.Context()); err != nil {
		h.logger.Warn("readiness check failed", zap.Error(err))
		h.writeJSON(w, http.StatusServiceUnavailable, model.NewErrorResponse[ReadyResponse]("backend unavailable"))
		return
	}

	h.writeJSON(w, http.StatusOK, model.NewSuccessResponse(ReadyResponse{Status: "ready", Backend: "ok"}))
}

// writeJSON writes a JSON response with the given status code.
func (h *TodoHandler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}

// writeText writes a plain-text body that clients show verbatim.
func (h *TodoHandler) writeText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)

	if _, err := w.Write([]byte(message)); err != nil {
		h.logger.Error("failed to write response", zap.Error(err))
	}
}

func (h *TodoHandler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, model.ErrorResponse{
		Code:    status,
		Message: message,
	})
}
