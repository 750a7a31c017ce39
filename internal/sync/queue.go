package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hyperengineering/stride/internal/types"
	"github.com/oklog/ulid/v2"
)

// DuplicateWindow is the timestamp tolerance for duplicate detection: a
// candidate matching an already-queued operation for the same entity within
// this window either side is treated as a re-submission.
const DuplicateWindow = 1 * time.Second

// QueueStore is the persistence contract for the sync queue. Implemented by
// store.SQLiteStore.
type QueueStore interface {
	// InsertQueueItems persists the items atomically.
	InsertQueueItems(ctx context.Context, items []QueueItem) error
	// ListQueueItems returns every queued item for the user.
	ListQueueItems(ctx context.Context, userID string) ([]QueueItem, error)
	// DequeueQueueItems returns up to limit items ordered by sequence number
	// ascending, plus the total queued count for the user.
	DequeueQueueItems(ctx context.Context, userID string, limit int) ([]QueueItem, int, error)
	// DeleteQueueItems removes the identified items.
	DeleteQueueItems(ctx context.Context, userID string, ids []string) error
}

// NewOperation is one client mutation submitted for enqueueing.
type NewOperation struct {
	EntityType     types.EntityType `json:"entityType"`
	EntityID       string           `json:"entityId"`
	Operation      Operation        `json:"operation"`
	Payload        json.RawMessage  `json:"payload,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
	SequenceNumber int64            `json:"sequenceNumber"`
}

// Queue durably records client intent. Enqueued operations are applied later
// by the Pipeline; enqueueing itself never touches entity storage.
type Queue struct {
	store QueueStore
	clock Clock
}

// NewQueue creates a queue service over the given store.
func NewQueue(store QueueStore, clock Clock) *Queue {
	return &Queue{store: store, clock: clock}
}

// FindDuplicates checks each candidate against the user's currently queued
// operations. A candidate is a duplicate when a queued item for the same
// entity carries a timestamp within DuplicateWindow of the candidate's.
func (q *Queue) FindDuplicates(ctx context.Context, userID string, candidates []CandidateOp) ([]DuplicateCheck, error) {
	results := make([]DuplicateCheck, len(candidates))
	if len(candidates) == 0 {
		return results, nil
	}

	queued, err := q.store.ListQueueItems(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list queued operations: %w", err)
	}
	index := indexByEntity(queued)

	for i, candidate := range candidates {
		key := entityKey{candidate.EntityType, candidate.EntityID}
		for _, item := range index[key] {
			if withinWindow(item.Timestamp, candidate.Timestamp) {
				results[i].IsDuplicate = true
				results[i].ConflictingOperationIDs = append(results[i].ConflictingOperationIDs, item.ID)
			}
		}
	}
	return results, nil
}

// Enqueue persists the given operations as queue items in one transaction,
// silently excluding duplicates of already-queued operations. Returns the
// items actually created.
func (q *Queue) Enqueue(ctx context.Context, userID string, ops []NewOperation) ([]QueueItem, error) {
	if len(ops) == 0 {
		return []QueueItem{}, nil
	}

	candidates := make([]CandidateOp, len(ops))
	for i, op := range ops {
		candidates[i] = CandidateOp{
			EntityType: op.EntityType,
			EntityID:   op.EntityID,
			Operation:  op.Operation,
			Timestamp:  op.Timestamp,
		}
	}
	checks, err := q.FindDuplicates(ctx, userID, candidates)
	if err != nil {
		return nil, err
	}

	now := q.clock.Now()
	items := make([]QueueItem, 0, len(ops))
	for i, op := range ops {
		if checks[i].IsDuplicate {
			continue
		}
		items = append(items, QueueItem{
			ID:             ulid.Make().String(),
			UserID:         userID,
			EntityType:     op.EntityType,
			EntityID:       op.EntityID,
			Operation:      op.Operation,
			Payload:        op.Payload,
			Timestamp:      op.Timestamp,
			SequenceNumber: op.SequenceNumber,
			CreatedAt:      now,
		})
	}
	if len(items) == 0 {
		return []QueueItem{}, nil
	}

	if err := q.store.InsertQueueItems(ctx, items); err != nil {
		return nil, fmt.Errorf("enqueue operations: %w", err)
	}
	return items, nil
}

// DequeueBatch returns one page of queued items for the user, ordered by
// sequence number so same-entity operations replay in client-submission
// order.
func (q *Queue) DequeueBatch(ctx context.Context, userID string, batchSize int) (DequeueResult, error) {
	items, total, err := q.store.DequeueQueueItems(ctx, userID, batchSize)
	if err != nil {
		return DequeueResult{}, fmt.Errorf("dequeue batch: %w", err)
	}
	return DequeueResult{
		Items:      items,
		HasMore:    total > len(items),
		TotalCount: total,
	}, nil
}

type entityKey struct {
	entityType types.EntityType
	entityID   string
}

func indexByEntity(items []QueueItem) map[entityKey][]QueueItem {
	index := make(map[entityKey][]QueueItem, len(items))
	for _, item := range items {
		key := entityKey{item.EntityType, item.EntityID}
		index[key] = append(index[key], item)
	}
	return index
}

func withinWindow(a, b time.Time) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= DuplicateWindow
}
