package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	stridesync "github.com/hyperengineering/stride/internal/sync"
	"github.com/hyperengineering/stride/internal/types"
	"github.com/hyperengineering/stride/internal/validation"
)

// parseSince reads the optional since query parameter.
func parseSince(r *http.Request) (*time.Time, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("invalid since parameter %q", raw)
	}
	return &t, nil
}

// listEntities serves GET /{entity}?since=... for one entity type,
// responding with the records under the entity's envelope key. Tombstones
// are included so clients learn about deletions.
func listEntities[R any](h *Handler, w http.ResponseWriter, r *http.Request, key string,
	list func(ctx context.Context, userID string, since *time.Time) ([]R, error)) {
	since, err := parseSince(r)
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user := MustUserFromContext(r.Context())

	records, err := list(r.Context(), user.ID, since)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]R{key: records})
}

// runEntitySync serves POST /{entity}/sync for one entity type via the
// generic batch resolver.
func runEntitySync[R stridesync.Syncable](h *Handler, w http.ResponseWriter, r *http.Request,
	field string, items []R, hooks stridesync.BatchHooks[R]) {
	var collector validation.Collector
	collector.Add(validation.MaxItems(field, len(items), h.sync.MaxBatchItems))
	if collector.HasErrors() {
		WriteProblemWithErrors(w, r, "Batch too large", collector.Errors())
		return
	}
	user := MustUserFromContext(r.Context())

	outcome, err := stridesync.SyncBatch(r.Context(), h.clock, user.ID, items, hooks)
	if err != nil {
		MapStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

// decodeBody decodes a JSON request body, mapping failures to 400.
func decodeBody(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		WriteProblem(w, r, http.StatusBadRequest, fmt.Sprintf("Invalid JSON: %s", err))
		return false
	}
	return true
}

// ListActivities handles GET /api/v1/activities
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	listEntities(h, w, r, "activities", h.store.ListActivitiesSince)
}

// SyncActivities handles POST /api/v1/activities/sync
func (h *Handler) SyncActivities(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Activities []types.Activity `json:"activities"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	runEntitySync(h, w, r, "activities", req.Activities, stridesync.BatchHooks[types.Activity]{
		BulkUpsert:  h.store.BulkUpsertActivities,
		LookupByIDs: h.store.LookupActivitiesByIDs,
	})
}

// ListActivityKinds handles GET /api/v1/activity-kinds
func (h *Handler) ListActivityKinds(w http.ResponseWriter, r *http.Request) {
	listEntities(h, w, r, "activityKinds", h.store.ListActivityKindsSince)
}

// SyncActivityKinds handles POST /api/v1/activity-kinds/sync
func (h *Handler) SyncActivityKinds(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivityKinds []types.ActivityKind `json:"activityKinds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	runEntitySync(h, w, r, "activityKinds", req.ActivityKinds, stridesync.BatchHooks[types.ActivityKind]{
		BulkUpsert:  h.store.BulkUpsertActivityKinds,
		LookupByIDs: h.store.LookupActivityKindsByIDs,
	})
}

// ListActivityLogs handles GET /api/v1/activity-logs
func (h *Handler) ListActivityLogs(w http.ResponseWriter, r *http.Request) {
	listEntities(h, w, r, "activityLogs", h.store.ListActivityLogsSince)
}

// SyncActivityLogs handles POST /api/v1/activity-logs/sync
func (h *Handler) SyncActivityLogs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActivityLogs []types.ActivityLog `json:"activityLogs"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	runEntitySync(h, w, r, "activityLogs", req.ActivityLogs, stridesync.BatchHooks[types.ActivityLog]{
		OwnedParents: h.store.OwnedActivityIDs,
		BulkUpsert:   h.store.BulkUpsertActivityLogs,
		LookupByIDs:  h.store.LookupActivityLogsByIDs,
	})
}

// ListGoals handles GET /api/v1/goals
func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	listEntities(h, w, r, "goals", h.store.ListGoalsSince)
}

// SyncGoals handles POST /api/v1/goals/sync
func (h *Handler) SyncGoals(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goals []types.Goal `json:"goals"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	runEntitySync(h, w, r, "goals", req.Goals, stridesync.BatchHooks[types.Goal]{
		OwnedParents: h.store.OwnedActivityIDs,
		BulkUpsert:   h.store.BulkUpsertGoals,
		LookupByIDs:  h.store.LookupGoalsByIDs,
	})
}

// ListTasks handles GET /api/v1/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	listEntities(h, w, r, "tasks", h.store.ListTasksSince)
}

// SyncTasks handles POST /api/v1/tasks/sync
func (h *Handler) SyncTasks(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tasks []types.Task `json:"tasks"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	runEntitySync(h, w, r, "tasks", req.Tasks, stridesync.BatchHooks[types.Task]{
		BulkUpsert:  h.store.BulkUpsertTasks,
		LookupByIDs: h.store.LookupTasksByIDs,
	})
}
