package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

// MetadataID derives the deterministic metadata row id for a record. One row
// per (user, entity type, entity id), created lazily and never deleted.
func MetadataID(userID string, entityType types.EntityType, entityID string) string {
	return fmt.Sprintf("%s:%s:%s", userID, entityType, entityID)
}

// CanRetry reports whether a failed record is still eligible for another
// processing attempt.
func CanRetry(meta *Metadata, maxRetries int) bool {
	return meta.RetryCount < maxRetries
}

// MetadataUpdate carries one status transition for a tracked record. The
// tracker writes every field, so callers pass the full desired state; a zero
// field clears the stored value.
type MetadataUpdate struct {
	UserID       string
	EntityType   types.EntityType
	EntityID     string
	Status       Status
	LastSyncedAt *time.Time
	ErrorMessage string
	RetryCount   int
}

// MetadataTracker is the persistence contract for sync metadata. Implemented
// by store.SQLiteStore.
type MetadataTracker interface {
	GetMetadata(ctx context.Context, userID string, entityType types.EntityType, entityID string) (*Metadata, error)
	UpsertMetadata(ctx context.Context, update MetadataUpdate) (*Metadata, error)
	MetadataStatusCounts(ctx context.Context, userID string) (StatusCounts, error)
}
