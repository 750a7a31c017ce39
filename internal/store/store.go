package store

import (
	"context"
	"time"

	stridesync "github.com/hyperengineering/stride/internal/sync"
	"github.com/hyperengineering/stride/internal/types"
)

// Store defines the interface contract for all storage operations the API
// layer depends on. SQLiteStore is the only production implementation; tests
// substitute mocks.
type Store interface {
	// Reconciliation engine contracts.
	stridesync.QueueStore
	stridesync.MetadataTracker
	stridesync.RecordStore

	// Ownership validator.
	OwnedActivityIDs(ctx context.Context, userID string, ids []string) (map[string]struct{}, error)

	// Per-entity repositories for the direct sync path.
	ListActivitiesSince(ctx context.Context, userID string, since *time.Time) ([]types.Activity, error)
	LookupActivitiesByIDs(ctx context.Context, userID string, ids []string) (map[string]types.Activity, error)
	BulkUpsertActivities(ctx context.Context, userID string, records []types.Activity) (map[string]struct{}, error)

	ListActivityKindsSince(ctx context.Context, userID string, since *time.Time) ([]types.ActivityKind, error)
	LookupActivityKindsByIDs(ctx context.Context, userID string, ids []string) (map[string]types.ActivityKind, error)
	BulkUpsertActivityKinds(ctx context.Context, userID string, records []types.ActivityKind) (map[string]struct{}, error)

	ListActivityLogsSince(ctx context.Context, userID string, since *time.Time) ([]types.ActivityLog, error)
	LookupActivityLogsByIDs(ctx context.Context, userID string, ids []string) (map[string]types.ActivityLog, error)
	BulkUpsertActivityLogs(ctx context.Context, userID string, records []types.ActivityLog) (map[string]struct{}, error)

	ListGoalsSince(ctx context.Context, userID string, since *time.Time) ([]types.Goal, error)
	LookupGoalsByIDs(ctx context.Context, userID string, ids []string) (map[string]types.Goal, error)
	BulkUpsertGoals(ctx context.Context, userID string, records []types.Goal) (map[string]struct{}, error)

	ListTasksSince(ctx context.Context, userID string, since *time.Time) ([]types.Task, error)
	LookupTasksByIDs(ctx context.Context, userID string, ids []string) (map[string]types.Task, error)
	BulkUpsertTasks(ctx context.Context, userID string, records []types.Task) (map[string]struct{}, error)

	// Principals.
	UserByToken(ctx context.Context, token string) (*types.User, error)
	CreateUser(ctx context.Context, user types.User) error

	// Observability and snapshots.
	QueueDepth(ctx context.Context) (int64, error)
	GenerateSnapshot(ctx context.Context) error
	SnapshotPath(ctx context.Context) (string, error)

	Close() error
}

var _ Store = (*SQLiteStore)(nil)
