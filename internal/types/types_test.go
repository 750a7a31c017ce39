package types

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestEntityType_Valid(t *testing.T) {
	for _, entityType := range PipelineOrder {
		if !entityType.Valid() {
			t.Errorf("%s should be valid", entityType)
		}
	}
	for _, invalid := range []EntityType{"", "activities", "widget", "ACTIVITY"} {
		if invalid.Valid() {
			t.Errorf("%q should be invalid", invalid)
		}
	}
}

func TestPipelineOrder_ParentsBeforeChildren(t *testing.T) {
	position := make(map[EntityType]int, len(PipelineOrder))
	for i, entityType := range PipelineOrder {
		position[entityType] = i
	}

	if len(position) != 5 {
		t.Fatalf("PipelineOrder covers %d entity types, want 5", len(position))
	}
	// Activity logs and goals reference activities.
	if position[EntityActivity] >= position[EntityActivityLog] {
		t.Error("activities must be applied before activity logs")
	}
	if position[EntityActivity] >= position[EntityGoal] {
		t.Error("activities must be applied before goals")
	}
}

func TestSyncable_ParentRefs(t *testing.T) {
	if _, ok := (Activity{}).ParentRef(); ok {
		t.Error("activity should have no parent")
	}
	if _, ok := (ActivityKind{}).ParentRef(); ok {
		t.Error("activity kind should have no parent")
	}
	if _, ok := (Task{}).ParentRef(); ok {
		t.Error("task should have no parent")
	}

	if parent, ok := (ActivityLog{ActivityID: "a1"}).ParentRef(); !ok || parent != "a1" {
		t.Errorf("activity log parent = (%q, %v), want (a1, true)", parent, ok)
	}
	if parent, ok := (Goal{ActivityID: "a1"}).ParentRef(); !ok || parent != "a1" {
		t.Errorf("goal parent = (%q, %v), want (a1, true)", parent, ok)
	}
}

func TestEntityJSON_OmitsUserIDAndUsesCamelCase(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw, err := json.Marshal(ActivityLog{
		ID:              "l1",
		UserID:          "secret-user",
		ActivityID:      "a1",
		StartedAt:       now,
		DurationSeconds: 1800,
		CreatedAt:       now,
		UpdatedAt:       now,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	body := string(raw)

	if strings.Contains(body, "secret-user") {
		t.Error("user id leaked into JSON payload")
	}
	for _, field := range []string{"activityId", "startedAt", "durationSeconds", "createdAt", "updatedAt"} {
		if !strings.Contains(body, field) {
			t.Errorf("missing camelCase field %s in %s", field, body)
		}
	}
}

func TestUserJSON_OmitsToken(t *testing.T) {
	raw, err := json.Marshal(User{ID: "u1", Name: "Ada", APIToken: "top-secret"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(raw), "top-secret") {
		t.Error("api token leaked into JSON payload")
	}
}
