package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

// RecordState is the pipeline's generic view of a stored entity row.
type RecordState struct {
	ID        string
	Payload   json.RawMessage
	Version   *int64
	UpdatedAt time.Time
	Deleted   bool
}

// RecordStore is the transactional repository surface the pipeline applies
// mutations through. Implemented generically by store.SQLiteStore for every
// entity type. Lookups return (nil, nil) when the row does not exist.
type RecordStore interface {
	WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error
	GetRecord(ctx context.Context, tx *sql.Tx, userID string, entityType types.EntityType, entityID string) (*RecordState, error)
	InsertRecord(ctx context.Context, tx *sql.Tx, userID string, entityType types.EntityType, entityID string, payload json.RawMessage) (*RecordState, error)
	UpdateRecord(ctx context.Context, tx *sql.Tx, userID string, entityType types.EntityType, entityID string, payload json.RawMessage) (*RecordState, error)
	SoftDeleteRecord(ctx context.Context, tx *sql.Tx, userID string, entityType types.EntityType, entityID string, at time.Time) error
}

// parentSpec describes the parent reference carried by a child entity's
// payload. Creates and updates of a child verify the parent exists, is not a
// tombstone, and belongs to the acting user, inside the same transaction.
type parentSpec struct {
	parentType types.EntityType
	jsonKey    string
}

var parentSpecs = map[types.EntityType]parentSpec{
	types.EntityActivityLog: {types.EntityActivity, "activityId"},
	types.EntityGoal:        {types.EntityActivity, "activityId"},
}

// Pipeline drains the sync queue (or accepts inline batches) and applies
// heterogeneous mutations idempotently against entity storage.
type Pipeline struct {
	records  RecordStore
	queue    *Queue
	metadata MetadataTracker
	clock    Clock
}

// NewPipeline creates a reconciliation pipeline.
func NewPipeline(records RecordStore, queue *Queue, metadata MetadataTracker, clock Clock) *Pipeline {
	return &Pipeline{records: records, queue: queue, metadata: metadata, clock: clock}
}

// ProcessBatch applies an inline batch of mutations grouped by entity type,
// in dependency order, one storage transaction per entity-type group. A
// failing item becomes an error result without aborting its siblings; a
// failing group does not roll back groups already committed. The returned
// slice has one result per input item, in input order.
func (p *Pipeline) ProcessBatch(ctx context.Context, userID string, items []BatchItem, strategy Strategy) ([]ItemResult, error) {
	results := make([]ItemResult, len(items))

	groups := make(map[types.EntityType][]int, len(types.PipelineOrder))
	for i, item := range items {
		if !item.EntityType.Valid() {
			results[i] = ItemResult{
				ClientID: item.ClientID,
				Status:   ItemError,
				Error:    fmt.Sprintf("unknown entity type %q", item.EntityType),
			}
			continue
		}
		groups[item.EntityType] = append(groups[item.EntityType], i)
	}

	for _, entityType := range types.PipelineOrder {
		indexes := groups[entityType]
		if len(indexes) == 0 {
			continue
		}
		err := p.records.WithTx(ctx, func(tx *sql.Tx) error {
			for _, i := range indexes {
				results[i] = p.applyItem(ctx, tx, userID, items[i], strategy)
			}
			return nil
		})
		if err != nil {
			// Whole-group failure (begin/commit): every item in the group
			// reports it; other groups proceed independently.
			for _, i := range indexes {
				results[i] = ItemResult{
					ClientID: items[i].ClientID,
					Status:   ItemError,
					Error:    err.Error(),
				}
			}
		}
	}
	return results, nil
}

// ProcessSyncQueue drains one page of the user's queue, updating sync
// metadata around every attempt. Successfully applied items are removed from
// the queue; failed items stay queued until their retry budget is exhausted,
// at which point they are dropped with a terminal failed status.
func (p *Pipeline) ProcessSyncQueue(ctx context.Context, userID string, batchSize, maxRetries int) (ProcessResult, error) {
	page, err := p.queue.DequeueBatch(ctx, userID, batchSize)
	if err != nil {
		return ProcessResult{}, err
	}

	var result ProcessResult
	result.HasMore = page.HasMore
	remove := make([]string, 0, len(page.Items))

	for _, item := range page.Items {
		retryCount := 0
		if meta, err := p.metadata.GetMetadata(ctx, userID, item.EntityType, item.EntityID); err != nil {
			slog.Warn("sync metadata lookup failed",
				"entity_type", item.EntityType,
				"entity_id", item.EntityID,
				"error", err,
			)
		} else if meta != nil {
			retryCount = meta.RetryCount
		}

		p.trackStatus(ctx, item, MetadataUpdate{
			Status:     StatusSyncing,
			RetryCount: retryCount,
		})

		applied := p.applyQueueItem(ctx, userID, item, StrategyTimestamp)
		if applied.Status != ItemError {
			result.ProcessedCount++
			now := p.clock.Now()
			p.trackStatus(ctx, item, MetadataUpdate{
				Status:       StatusSynced,
				LastSyncedAt: &now,
			})
			remove = append(remove, item.ID)
			continue
		}

		result.FailedCount++
		retryCount++
		p.trackStatus(ctx, item, MetadataUpdate{
			Status:       StatusFailed,
			ErrorMessage: applied.Error,
			RetryCount:   retryCount,
		})
		if retryCount > maxRetries {
			// Retry budget exhausted; drop the item, the metadata row keeps
			// the terminal failure on record.
			slog.Warn("sync queue item exhausted retries",
				"queue_id", item.ID,
				"entity_type", item.EntityType,
				"entity_id", item.EntityID,
				"retry_count", retryCount,
			)
			remove = append(remove, item.ID)
		}
	}

	if len(remove) > 0 {
		if err := p.queue.store.DeleteQueueItems(ctx, userID, remove); err != nil {
			return result, fmt.Errorf("remove completed queue items: %w", err)
		}
	}
	return result, nil
}

// applyQueueItem applies a single queued mutation inside its own
// transaction.
func (p *Pipeline) applyQueueItem(ctx context.Context, userID string, item QueueItem, strategy Strategy) ItemResult {
	batchItem := BatchItem{
		ClientID:       item.ID,
		EntityType:     item.EntityType,
		EntityID:       item.EntityID,
		Operation:      item.Operation,
		Payload:        item.Payload,
		Timestamp:      item.Timestamp,
		SequenceNumber: item.SequenceNumber,
	}
	var result ItemResult
	err := p.records.WithTx(ctx, func(tx *sql.Tx) error {
		result = p.applyItem(ctx, tx, userID, batchItem, strategy)
		return nil
	})
	if err != nil {
		return ItemResult{ClientID: item.ID, Status: ItemError, Error: err.Error()}
	}
	return result
}

// applyItem applies one mutation. Creates and deletes are idempotent:
// re-creating an existing record or re-deleting a tombstone is a skipped
// no-op. Updates of a missing record are errors since there is nothing to
// reconcile against.
func (p *Pipeline) applyItem(ctx context.Context, tx *sql.Tx, userID string, item BatchItem, strategy Strategy) ItemResult {
	result := ItemResult{ClientID: item.ClientID}

	if !item.Operation.Valid() {
		result.Status = ItemError
		result.Error = fmt.Sprintf("unknown operation %q", item.Operation)
		return result
	}

	existing, err := p.records.GetRecord(ctx, tx, userID, item.EntityType, item.EntityID)
	if err != nil {
		result.Status = ItemError
		result.Error = err.Error()
		return result
	}

	switch item.Operation {
	case OpCreate:
		if existing != nil {
			result.Status = ItemSkipped
			result.Message = "already exists"
			result.ServerID = existing.ID
			result.Payload = existing.Payload
			return result
		}
		if msg := p.parentError(ctx, tx, userID, item); msg != "" {
			result.Status = ItemError
			result.Error = msg
			return result
		}
		created, err := p.records.InsertRecord(ctx, tx, userID, item.EntityType, item.EntityID, item.Payload)
		if err != nil {
			result.Status = ItemError
			result.Error = err.Error()
			return result
		}
		result.Status = ItemSuccess
		result.ServerID = created.ID
		result.Payload = created.Payload
		return result

	case OpUpdate:
		if existing == nil {
			result.Status = ItemError
			result.Error = "update target missing"
			return result
		}
		if msg := p.parentError(ctx, tx, userID, item); msg != "" {
			result.Status = ItemError
			result.Error = msg
			return result
		}
		return p.applyUpdate(ctx, tx, userID, item, existing, strategy)

	default: // OpDelete
		if existing == nil || existing.Deleted {
			result.Status = ItemSkipped
			result.Message = "already deleted"
			if existing != nil {
				result.ServerID = existing.ID
			}
			return result
		}
		if err := p.records.SoftDeleteRecord(ctx, tx, userID, item.EntityType, item.EntityID, p.clock.Now()); err != nil {
			result.Status = ItemError
			result.Error = err.Error()
			return result
		}
		result.Status = ItemSuccess
		result.ServerID = existing.ID
		return result
	}
}

// applyUpdate runs conflict detection against the current server row and
// writes the winning side.
func (p *Pipeline) applyUpdate(ctx context.Context, tx *sql.Tx, userID string, item BatchItem, existing *RecordState, strategy Strategy) ItemResult {
	result := ItemResult{ClientID: item.ClientID}

	clientVersion := clientRecordVersion(item)
	serverVersion := RecordVersion{
		Persisted: true,
		Version:   existing.Version,
		UpdatedAt: existing.UpdatedAt,
	}

	if !HasConflict(clientVersion, serverVersion) {
		updated, err := p.records.UpdateRecord(ctx, tx, userID, item.EntityType, item.EntityID, item.Payload)
		if err != nil {
			result.Status = ItemError
			result.Error = err.Error()
			return result
		}
		result.Status = ItemSuccess
		result.ServerID = updated.ID
		result.Payload = updated.Payload
		return result
	}

	winner := ResolveWinner(clientVersion, serverVersion, strategy)
	result.Status = ItemConflict
	result.ServerID = existing.ID
	if winner == ClientSide {
		updated, err := p.records.UpdateRecord(ctx, tx, userID, item.EntityType, item.EntityID, item.Payload)
		if err != nil {
			result.Status = ItemError
			result.Error = err.Error()
			return result
		}
		result.Payload = updated.Payload
		result.ConflictData = existing.Payload
		return result
	}
	// Server side wins: the stored value is already the resolved value.
	result.Payload = existing.Payload
	result.ConflictData = item.Payload
	return result
}

// parentError verifies the parent reference carried by a child payload,
// returning a human-readable message when the parent is missing, deleted, or
// not the user's. Empty string means the reference is fine (or the entity
// type has no parent).
func (p *Pipeline) parentError(ctx context.Context, tx *sql.Tx, userID string, item BatchItem) string {
	spec, ok := parentSpecs[item.EntityType]
	if !ok {
		return ""
	}
	parentID := extractStringField(item.Payload, spec.jsonKey)
	if parentID == "" {
		return fmt.Sprintf("missing %s", spec.jsonKey)
	}
	parent, err := p.records.GetRecord(ctx, tx, userID, spec.parentType, parentID)
	if err != nil {
		return err.Error()
	}
	if parent == nil || parent.Deleted {
		return fmt.Sprintf("%s %s not found", spec.parentType, parentID)
	}
	return ""
}

// clientRecordVersion extracts the comparable view of a client submission.
// The payload's own updatedAt is authoritative; the queue timestamp is the
// fallback for payloads that omit it.
func clientRecordVersion(item BatchItem) RecordVersion {
	v := RecordVersion{Persisted: true, UpdatedAt: item.Timestamp}
	var meta struct {
		UpdatedAt *time.Time `json:"updatedAt"`
		Version   *int64     `json:"version"`
	}
	if len(item.Payload) > 0 {
		if err := json.Unmarshal(item.Payload, &meta); err == nil {
			if meta.UpdatedAt != nil {
				v.UpdatedAt = *meta.UpdatedAt
			}
			v.Version = meta.Version
		}
	}
	return v
}

// extractStringField pulls a single string field out of a raw payload.
func extractStringField(payload json.RawMessage, key string) string {
	if len(payload) == 0 {
		return ""
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return ""
	}
	raw, ok := fields[key]
	if !ok {
		return ""
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return ""
	}
	return value
}

// trackStatus records a metadata transition, logging rather than failing the
// drain when the tracker itself errors.
func (p *Pipeline) trackStatus(ctx context.Context, item QueueItem, update MetadataUpdate) {
	update.UserID = item.UserID
	update.EntityType = item.EntityType
	update.EntityID = item.EntityID
	if _, err := p.metadata.UpsertMetadata(ctx, update); err != nil {
		slog.Warn("sync metadata update failed",
			"entity_type", item.EntityType,
			"entity_id", item.EntityID,
			"status", update.Status,
			"error", err,
		)
	}
}
