package sync

import (
	"context"
	"testing"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

// mockQueueStore implements QueueStore in memory.
type mockQueueStore struct {
	items      []QueueItem
	insertErr  error
	dequeued   []QueueItem
	totalCount int
	deletedIDs []string
}

func (m *mockQueueStore) InsertQueueItems(ctx context.Context, items []QueueItem) error {
	if m.insertErr != nil {
		return m.insertErr
	}
	m.items = append(m.items, items...)
	return nil
}

func (m *mockQueueStore) ListQueueItems(ctx context.Context, userID string) ([]QueueItem, error) {
	var out []QueueItem
	for _, item := range m.items {
		if item.UserID == userID {
			out = append(out, item)
		}
	}
	return out, nil
}

func (m *mockQueueStore) DequeueQueueItems(ctx context.Context, userID string, limit int) ([]QueueItem, int, error) {
	return m.dequeued, m.totalCount, nil
}

func (m *mockQueueStore) DeleteQueueItems(ctx context.Context, userID string, ids []string) error {
	m.deletedIDs = append(m.deletedIDs, ids...)
	return nil
}

func queuedOp(userID string, entityType types.EntityType, entityID string, ts time.Time) QueueItem {
	return QueueItem{
		ID:         "q-" + entityID + ts.Format("150405.000"),
		UserID:     userID,
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  OpUpdate,
		Timestamp:  ts,
	}
}

func TestFindDuplicates_MatchesWithinWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &mockQueueStore{items: []QueueItem{
		queuedOp("u1", types.EntityActivity, "a1", now),
	}}
	q := NewQueue(store, FixedClock{At: now})

	cases := []struct {
		name      string
		offset    time.Duration
		duplicate bool
	}{
		{"exact match", 0, true},
		{"inside window", 500 * time.Millisecond, true},
		{"at window bound", DuplicateWindow, true},
		{"past window", DuplicateWindow + time.Millisecond, false},
		{"before, inside window", -DuplicateWindow, true},
		{"before, past window", -DuplicateWindow - time.Millisecond, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checks, err := q.FindDuplicates(context.Background(), "u1", []CandidateOp{{
				EntityType: types.EntityActivity,
				EntityID:   "a1",
				Operation:  OpUpdate,
				Timestamp:  now.Add(tc.offset),
			}})
			if err != nil {
				t.Fatalf("FindDuplicates: %v", err)
			}
			if checks[0].IsDuplicate != tc.duplicate {
				t.Errorf("IsDuplicate = %v, want %v", checks[0].IsDuplicate, tc.duplicate)
			}
			if tc.duplicate && len(checks[0].ConflictingOperationIDs) == 0 {
				t.Error("duplicate verdict without conflicting operation ids")
			}
		})
	}
}

func TestFindDuplicates_DifferentEntityNeverMatches(t *testing.T) {
	now := time.Now().UTC()
	store := &mockQueueStore{items: []QueueItem{
		queuedOp("u1", types.EntityActivity, "a1", now),
	}}
	q := NewQueue(store, FixedClock{At: now})

	checks, err := q.FindDuplicates(context.Background(), "u1", []CandidateOp{
		{EntityType: types.EntityActivity, EntityID: "a2", Timestamp: now},
		{EntityType: types.EntityTask, EntityID: "a1", Timestamp: now},
	})
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	for i, check := range checks {
		if check.IsDuplicate {
			t.Errorf("candidate %d flagged duplicate, want distinct entity ignored", i)
		}
	}
}

func TestFindDuplicates_ScopedToUser(t *testing.T) {
	now := time.Now().UTC()
	store := &mockQueueStore{items: []QueueItem{
		queuedOp("other-user", types.EntityActivity, "a1", now),
	}}
	q := NewQueue(store, FixedClock{At: now})

	checks, err := q.FindDuplicates(context.Background(), "u1", []CandidateOp{{
		EntityType: types.EntityActivity,
		EntityID:   "a1",
		Timestamp:  now,
	}})
	if err != nil {
		t.Fatalf("FindDuplicates: %v", err)
	}
	if checks[0].IsDuplicate {
		t.Error("another user's queued operation must not count as duplicate")
	}
}

func TestEnqueue_AssignsIDsAndCreatedAt(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &mockQueueStore{}
	q := NewQueue(store, FixedClock{At: now})

	created, err := q.Enqueue(context.Background(), "u1", []NewOperation{
		{EntityType: types.EntityActivity, EntityID: "a1", Operation: OpCreate, Timestamp: now, SequenceNumber: 1},
		{EntityType: types.EntityGoal, EntityID: "g1", Operation: OpUpdate, Timestamp: now, SequenceNumber: 2},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("created %d items, want 2", len(created))
	}
	seen := make(map[string]struct{})
	for _, item := range created {
		if item.ID == "" {
			t.Error("queue item missing id")
		}
		if _, dup := seen[item.ID]; dup {
			t.Errorf("duplicate queue item id %s", item.ID)
		}
		seen[item.ID] = struct{}{}
		if item.UserID != "u1" {
			t.Errorf("UserID = %q, want u1", item.UserID)
		}
		if !item.CreatedAt.Equal(now) {
			t.Errorf("CreatedAt = %v, want clock time %v", item.CreatedAt, now)
		}
	}
	if len(store.items) != 2 {
		t.Errorf("store holds %d items, want 2", len(store.items))
	}
}

func TestEnqueue_SilentlyDropsDuplicates(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &mockQueueStore{items: []QueueItem{
		queuedOp("u1", types.EntityActivity, "a1", now),
	}}
	q := NewQueue(store, FixedClock{At: now})

	created, err := q.Enqueue(context.Background(), "u1", []NewOperation{
		{EntityType: types.EntityActivity, EntityID: "a1", Operation: OpUpdate, Timestamp: now.Add(200 * time.Millisecond)},
		{EntityType: types.EntityActivity, EntityID: "a2", Operation: OpCreate, Timestamp: now},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("created %d items, want 1 (duplicate dropped)", len(created))
	}
	if created[0].EntityID != "a2" {
		t.Errorf("created entity = %q, want a2", created[0].EntityID)
	}
}

func TestEnqueue_AllDuplicatesSkipsInsert(t *testing.T) {
	now := time.Now().UTC()
	store := &mockQueueStore{items: []QueueItem{
		queuedOp("u1", types.EntityTask, "t1", now),
	}}
	q := NewQueue(store, FixedClock{At: now})

	created, err := q.Enqueue(context.Background(), "u1", []NewOperation{
		{EntityType: types.EntityTask, EntityID: "t1", Operation: OpUpdate, Timestamp: now},
	})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created %d items, want 0", len(created))
	}
	if len(store.items) != 1 {
		t.Errorf("store grew to %d items, want unchanged 1", len(store.items))
	}
}

func TestDequeueBatch_ReportsHasMore(t *testing.T) {
	now := time.Now().UTC()
	store := &mockQueueStore{
		dequeued:   []QueueItem{queuedOp("u1", types.EntityActivity, "a1", now)},
		totalCount: 5,
	}
	q := NewQueue(store, FixedClock{At: now})

	result, err := q.DequeueBatch(context.Background(), "u1", 1)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}
	if !result.HasMore {
		t.Error("HasMore = false, want true with 5 total and 1 returned")
	}
	if result.TotalCount != 5 {
		t.Errorf("TotalCount = %d, want 5", result.TotalCount)
	}

	store.totalCount = 1
	result, err = q.DequeueBatch(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("DequeueBatch: %v", err)
	}
	if result.HasMore {
		t.Error("HasMore = true, want false when page covers the queue")
	}
}
