package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hyperengineering/stride/internal/config"
	"github.com/hyperengineering/stride/internal/snapshot"
	"github.com/hyperengineering/stride/internal/store"
	stridesync "github.com/hyperengineering/stride/internal/sync"
)

// Handler implements the API handlers
type Handler struct {
	store    store.Store
	pipeline *stridesync.Pipeline
	queue    *stridesync.Queue
	uploader snapshot.Uploader
	clock    stridesync.Clock
	sync     config.SyncConfig
	version  string
}

// NewHandler wires the reconciliation engine and storage into the API.
func NewHandler(s store.Store, uploader snapshot.Uploader, clock stridesync.Clock, syncCfg config.SyncConfig, version string) *Handler {
	queue := stridesync.NewQueue(s, clock)
	return &Handler{
		store:    s,
		pipeline: stridesync.NewPipeline(s, queue, s, clock),
		queue:    queue,
		uploader: uploader,
		clock:    clock,
		sync:     syncCfg,
		version:  version,
	}
}

// HealthResponse is the health endpoint payload.
type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	QueueDepth int64  `json:"queueDepth"`
}

// Health returns the health status
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	depth, err := h.store.QueueDepth(r.Context())
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "healthy",
		Version:    h.version,
		QueueDepth: depth,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
