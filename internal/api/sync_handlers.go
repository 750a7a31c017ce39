package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/hyperengineering/stride/internal/snapshot"
	stridesync "github.com/hyperengineering/stride/internal/sync"
	"github.com/hyperengineering/stride/internal/validation"
)

// CheckDuplicates handles POST /api/v1/sync/check-duplicates. It reports,
// per candidate operation, whether a matching operation is already queued
// without modifying the queue.
func (h *Handler) CheckDuplicates(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operations []stridesync.CandidateOp `json:"operations"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	user := MustUserFromContext(r.Context())

	checks, err := h.queue.FindDuplicates(r.Context(), user.ID, req.Operations)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]stridesync.DuplicateCheck{"results": checks})
}

// SyncStatusResponse is the payload for GET /sync/status.
type SyncStatusResponse struct {
	Pending        int `json:"pending"`
	Syncing        int `json:"syncing"`
	Synced         int `json:"synced"`
	Failed         int `json:"failed"`
	Total          int `json:"total"`
	SyncPercentage int `json:"syncPercentage"`
}

// SyncStatus handles GET /api/v1/sync/status
func (h *Handler) SyncStatus(w http.ResponseWriter, r *http.Request) {
	user := MustUserFromContext(r.Context())

	counts, err := h.store.MetadataStatusCounts(r.Context(), user.ID)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SyncStatusResponse{
		Pending:        counts.Pending,
		Syncing:        counts.Syncing,
		Synced:         counts.Synced,
		Failed:         counts.Failed,
		Total:          counts.Total(),
		SyncPercentage: counts.SyncPercentage(),
	})
}

// Enqueue handles POST /api/v1/sync/enqueue. Duplicate operations are
// silently dropped; the response reports how many were actually queued.
func (h *Handler) Enqueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Operations []stridesync.NewOperation `json:"operations"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	var collector validation.Collector
	for i, op := range req.Operations {
		field := "operations[" + strconv.Itoa(i) + "]"
		collector.Add(validation.Required(field+".entityId", op.EntityID))
		if !op.EntityType.Valid() {
			collector.Add(validation.OneOf(field+".entityType", string(op.EntityType),
				"activity", "activity_kind", "activity_log", "goal", "task"))
		}
		if !op.Operation.Valid() {
			collector.Add(validation.OneOf(field+".operation", string(op.Operation),
				"create", "update", "delete"))
		}
		collector.Add(validation.NonZeroTime(field+".timestamp", op.Timestamp))
	}
	if collector.HasErrors() {
		WriteProblemWithErrors(w, r, "Invalid operations", collector.Errors())
		return
	}
	user := MustUserFromContext(r.Context())

	queued, err := h.queue.Enqueue(r.Context(), user.ID, req.Operations)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"enqueuedCount": len(queued),
		"operations":    queued,
	})
}

// ProcessQueue handles POST /api/v1/sync/process. It drains one page of the
// caller's queue through the reconciliation pipeline.
func (h *Handler) ProcessQueue(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BatchSize  *int `json:"batchSize"`
		MaxRetries *int `json:"maxRetries"`
	}
	if r.ContentLength != 0 {
		if !decodeBody(w, r, &req) {
			return
		}
	}

	batchSize := h.sync.DefaultBatchSize
	if req.BatchSize != nil {
		batchSize = *req.BatchSize
	}
	maxRetries := h.sync.DefaultMaxRetries
	if req.MaxRetries != nil {
		maxRetries = *req.MaxRetries
	}

	var collector validation.Collector
	if batchSize < 1 {
		collector.Add(&validation.ValidationError{Field: "batchSize", Message: "must be at least 1"})
	}
	collector.Add(validation.MaxItems("batchSize", batchSize, h.sync.MaxBatchSize))
	if maxRetries < 0 {
		collector.Add(&validation.ValidationError{Field: "maxRetries", Message: "must not be negative"})
	}
	if collector.HasErrors() {
		WriteProblemWithErrors(w, r, "Invalid processing parameters", collector.Errors())
		return
	}
	user := MustUserFromContext(r.Context())

	result, err := h.pipeline.ProcessSyncQueue(r.Context(), user.ID, batchSize, maxRetries)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// SyncBatch handles POST /api/v1/sync/batch. Items are applied in dependency
// order but results come back in submission order.
func (h *Handler) SyncBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Items    []stridesync.BatchItem `json:"items"`
		Strategy stridesync.Strategy    `json:"strategy,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = stridesync.StrategyTimestamp
	}

	var collector validation.Collector
	if !strategy.Valid() {
		collector.Add(validation.OneOf("strategy", string(strategy),
			"client-wins", "server-wins", "timestamp"))
	}
	collector.Add(validation.MaxItems("items", len(req.Items), h.sync.MaxBatchSize))
	if collector.HasErrors() {
		WriteProblemWithErrors(w, r, "Invalid batch", collector.Errors())
		return
	}
	user := MustUserFromContext(r.Context())

	results, err := h.pipeline.ProcessBatch(r.Context(), user.ID, req.Items, strategy)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// SnapshotResponse is the payload for GET /sync/snapshot.
type SnapshotResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Snapshot handles GET /api/v1/sync/snapshot. It produces a fresh database
// snapshot, uploads it, and returns a time-limited download URL.
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	if err := h.store.GenerateSnapshot(r.Context()); err != nil {
		MapStoreError(w, r, err)
		return
	}

	path, err := h.store.SnapshotPath(r.Context())
	if err != nil {
		MapStoreError(w, r, err)
		return
	}

	if err := h.uploader.Upload(r.Context(), path); err != nil {
		MapStoreError(w, r, err)
		return
	}

	url, expiresAt, err := h.uploader.PresignedURL(r.Context())
	if err != nil {
		if errors.Is(err, snapshot.ErrNotConfigured) {
			WriteProblem(w, r, http.StatusServiceUnavailable, "Snapshot storage is not configured")
			return
		}
		MapStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, SnapshotResponse{URL: url, ExpiresAt: expiresAt})
}
