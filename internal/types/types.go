package types

import (
	"time"
)

// EntityType identifies a syncable record collection.
type EntityType string

const (
	EntityActivity     EntityType = "activity"
	EntityActivityKind EntityType = "activity_kind"
	EntityActivityLog  EntityType = "activity_log"
	EntityTask         EntityType = "task"
	EntityGoal         EntityType = "goal"
)

// PipelineOrder is the fixed dependency order in which the reconciliation
// pipeline applies entity groups. A parent entity must be committed before
// any child referencing it in the same batch.
var PipelineOrder = []EntityType{
	EntityActivity,
	EntityActivityKind,
	EntityActivityLog,
	EntityTask,
	EntityGoal,
}

// Valid reports whether t names a known entity type.
func (t EntityType) Valid() bool {
	switch t {
	case EntityActivity, EntityActivityKind, EntityActivityLog, EntityTask, EntityGoal:
		return true
	}
	return false
}

// GoalPeriod is the aggregation window a goal is measured over.
type GoalPeriod string

const (
	PeriodDaily   GoalPeriod = "daily"
	PeriodWeekly  GoalPeriod = "weekly"
	PeriodMonthly GoalPeriod = "monthly"
)

// Activity is a trackable activity owned by a user. The kind name is carried
// inline rather than as a foreign key so an activity payload is
// self-contained when it travels through the sync queue.
type Activity struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Name      string     `json:"name"`
	Kind      string     `json:"kind,omitempty"`
	Color     string     `json:"color,omitempty"`
	Icon      *string    `json:"icon,omitempty"`
	Version   *int64     `json:"version,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// ActivityKind is a user-defined category for activities.
type ActivityKind struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Name      string     `json:"name"`
	Icon      *string    `json:"icon,omitempty"`
	Position  int        `json:"position"`
	Version   *int64     `json:"version,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

// ActivityLog is one recorded session of an activity. ActivityID references
// a parent activity and is ownership-validated before any sync write.
type ActivityLog struct {
	ID              string     `json:"id"`
	UserID          string     `json:"-"`
	ActivityID      string     `json:"activityId"`
	StartedAt       time.Time  `json:"startedAt"`
	DurationSeconds int64      `json:"durationSeconds"`
	Note            string     `json:"note,omitempty"`
	Version         *int64     `json:"version,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
	DeletedAt       *time.Time `json:"deletedAt,omitempty"`
}

// Goal is a recurring target for an activity.
type Goal struct {
	ID            string     `json:"id"`
	UserID        string     `json:"-"`
	ActivityID    string     `json:"activityId"`
	TargetSeconds int64      `json:"targetSeconds"`
	Period        GoalPeriod `json:"period"`
	Version       *int64     `json:"version,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	DeletedAt     *time.Time `json:"deletedAt,omitempty"`
}

// Task is a standalone to-do item with no parent entity.
type Task struct {
	ID          string     `json:"id"`
	UserID      string     `json:"-"`
	Title       string     `json:"title"`
	Notes       string     `json:"notes,omitempty"`
	DueAt       *time.Time `json:"dueAt,omitempty"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
	Version     *int64     `json:"version,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty"`
}

// User is the acting principal resolved from a bearer token.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	APIToken  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordID / RecordUpdatedAt / ParentRef implement sync.Syncable for each
// entity type. Only activity logs and goals reference a parent.

func (a Activity) RecordID() string           { return a.ID }
func (a Activity) RecordUpdatedAt() time.Time { return a.UpdatedAt }
func (a Activity) ParentRef() (string, bool)  { return "", false }

func (k ActivityKind) RecordID() string           { return k.ID }
func (k ActivityKind) RecordUpdatedAt() time.Time { return k.UpdatedAt }
func (k ActivityKind) ParentRef() (string, bool)  { return "", false }

func (l ActivityLog) RecordID() string           { return l.ID }
func (l ActivityLog) RecordUpdatedAt() time.Time { return l.UpdatedAt }
func (l ActivityLog) ParentRef() (string, bool)  { return l.ActivityID, true }

func (g Goal) RecordID() string           { return g.ID }
func (g Goal) RecordUpdatedAt() time.Time { return g.UpdatedAt }
func (g Goal) ParentRef() (string, bool)  { return g.ActivityID, true }

func (t Task) RecordID() string           { return t.ID }
func (t Task) RecordUpdatedAt() time.Time { return t.UpdatedAt }
func (t Task) ParentRef() (string, bool)  { return "", false }
