package store

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	stridesync "github.com/hyperengineering/stride/internal/sync"
	"github.com/hyperengineering/stride/internal/types"
)

func TestGetRecord_MissingReturnsNilNil(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "u1")

	state, err := s.GetRecord(context.Background(), nil, "u1", types.EntityActivity, "nope")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if state != nil {
		t.Errorf("state = %+v, want nil for missing row", state)
	}
}

func TestGetRecord_UnknownEntityType(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetRecord(context.Background(), nil, "u1", "widget", "w1")
	if !errors.Is(err, ErrUnknownEntity) {
		t.Errorf("err = %v, want ErrUnknownEntity", err)
	}
}

func TestInsertRecord_MissingTimestampsUseStoreClock(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "u1")
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.clock = stridesync.FixedClock{At: at}

	payload := []byte(`{"id":"t1","title":"write tests"}`)
	state, err := s.InsertRecord(ctx, nil, "u1", types.EntityTask, "t1", payload)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if !state.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want clock time %v", state.UpdatedAt, at)
	}
}

func TestInsertRecord_RoundTripsPayload(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "u1")
	ctx := context.Background()

	payload := []byte(`{"id":"l1","activityId":"a1","startedAt":"2026-03-01T09:00:00Z","durationSeconds":1800,"note":"morning run","updatedAt":"2026-03-01T09:30:00Z","createdAt":"2026-03-01T09:30:00Z"}`)
	state, err := s.InsertRecord(ctx, nil, "u1", types.EntityActivityLog, "l1", payload)
	if err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if state.ID != "l1" {
		t.Errorf("ID = %q, want l1", state.ID)
	}
	if state.Deleted {
		t.Error("fresh record marked deleted")
	}

	var decoded map[string]any
	if err := json.Unmarshal(state.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal state payload: %v", err)
	}
	if decoded["activityId"] != "a1" {
		t.Errorf("activityId = %v, want a1", decoded["activityId"])
	}
	if decoded["durationSeconds"] != float64(1800) {
		t.Errorf("durationSeconds = %v, want 1800", decoded["durationSeconds"])
	}
	if decoded["note"] != "morning run" {
		t.Errorf("note = %v", decoded["note"])
	}

	want := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	if !state.UpdatedAt.Equal(want) {
		t.Errorf("UpdatedAt = %v, want payload value %v", state.UpdatedAt, want)
	}
}

func TestInsertRecord_PayloadIDMismatch(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "u1")

	_, err := s.InsertRecord(context.Background(), nil, "u1", types.EntityTask, "t1",
		[]byte(`{"id":"someone-else","title":"x"}`))
	if err == nil {
		t.Fatal("mismatched payload id accepted")
	}
}

func TestUpdateRecord_ReplacesFields(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "u1")
	ctx := context.Background()

	if _, err := s.InsertRecord(ctx, nil, "u1", types.EntityTask, "t1",
		[]byte(`{"id":"t1","title":"draft","notes":"wip"}`)); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	state, err := s.UpdateRecord(ctx, nil, "u1", types.EntityTask, "t1",
		[]byte(`{"id":"t1","title":"final","version":2}`))
	if err != nil {
		t.Fatalf("UpdateRecord: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(state.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["title"] != "final" {
		t.Errorf("title = %v, want final", decoded["title"])
	}
	// Full replace: a field omitted from the payload resets.
	if notes, ok := decoded["notes"]; ok && notes != "" {
		t.Errorf("notes = %v, want cleared", notes)
	}
	if state.Version == nil || *state.Version != 2 {
		t.Errorf("Version = %v, want 2", state.Version)
	}
}

func TestUpdateRecord_MissingRowIsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "u1")

	_, err := s.UpdateRecord(context.Background(), nil, "u1", types.EntityTask, "ghost",
		[]byte(`{"id":"ghost","title":"x"}`))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdateRecord_CannotTouchOtherUsersRow(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "owner")
	createTestUser(t, s, "intruder")
	ctx := context.Background()

	if _, err := s.InsertRecord(ctx, nil, "owner", types.EntityTask, "t1",
		[]byte(`{"id":"t1","title":"private"}`)); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	_, err := s.UpdateRecord(ctx, nil, "intruder", types.EntityTask, "t1",
		[]byte(`{"id":"t1","title":"hijacked"}`))
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound for foreign row", err)
	}

	state, err := s.GetRecord(ctx, nil, "owner", types.EntityTask, "t1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(state.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["title"] != "private" {
		t.Errorf("title = %v, owner's row was modified", decoded["title"])
	}
}

func TestSoftDeleteRecord_SetsTombstone(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "u1")
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.InsertRecord(ctx, nil, "u1", types.EntityActivity, "a1",
		[]byte(`{"id":"a1","name":"Running"}`)); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}

	if err := s.SoftDeleteRecord(ctx, nil, "u1", types.EntityActivity, "a1", at); err != nil {
		t.Fatalf("SoftDeleteRecord: %v", err)
	}

	state, err := s.GetRecord(ctx, nil, "u1", types.EntityActivity, "a1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	if state == nil {
		t.Fatal("tombstone not visible via GetRecord")
	}
	if !state.Deleted {
		t.Error("Deleted = false after soft delete")
	}
	if !state.UpdatedAt.Equal(at) {
		t.Errorf("UpdatedAt = %v, want delete time %v", state.UpdatedAt, at)
	}

	// Tombstones survive in list output so clients learn about deletions.
	activities, err := s.ListActivitiesSince(ctx, "u1", nil)
	if err != nil {
		t.Fatalf("ListActivitiesSince: %v", err)
	}
	if len(activities) != 1 || activities[0].DeletedAt == nil {
		t.Error("tombstone missing from list output")
	}
}

func TestSoftDeleteRecord_AlreadyDeletedIsNoOp(t *testing.T) {
	s := newTestStore(t)
	createTestUser(t, s, "u1")
	ctx := context.Background()
	first := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	second := first.Add(time.Hour)

	if _, err := s.InsertRecord(ctx, nil, "u1", types.EntityActivity, "a1",
		[]byte(`{"id":"a1","name":"Running"}`)); err != nil {
		t.Fatalf("InsertRecord: %v", err)
	}
	if err := s.SoftDeleteRecord(ctx, nil, "u1", types.EntityActivity, "a1", first); err != nil {
		t.Fatalf("first delete: %v", err)
	}
	if err := s.SoftDeleteRecord(ctx, nil, "u1", types.EntityActivity, "a1", second); err != nil {
		t.Fatalf("second delete: %v", err)
	}

	state, err := s.GetRecord(ctx, nil, "u1", types.EntityActivity, "a1")
	if err != nil {
		t.Fatalf("GetRecord: %v", err)
	}
	// The original tombstone timestamp is preserved.
	if !state.UpdatedAt.Equal(first) {
		t.Errorf("UpdatedAt = %v, want original delete time %v", state.UpdatedAt, first)
	}
}
