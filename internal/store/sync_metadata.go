package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	stridesync "github.com/hyperengineering/stride/internal/sync"
	"github.com/hyperengineering/stride/internal/types"
)

const syncMetadataColumns = "id, user_id, entity_type, entity_id, status, last_synced_at, error_message, retry_count, created_at, updated_at"

// GetMetadata returns the sync metadata row for one tracked record, or
// (nil, nil) when the record has never been processed.
func (s *SQLiteStore) GetMetadata(ctx context.Context, userID string, entityType types.EntityType, entityID string) (*stridesync.Metadata, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+syncMetadataColumns+" FROM sync_metadata WHERE user_id = ? AND entity_type = ? AND entity_id = ?",
		userID, string(entityType), entityID,
	)
	meta, err := scanMetadata(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return meta, nil
}

// UpsertMetadata applies one status transition, creating the metadata row
// lazily on the first processing attempt. Rows are never deleted; they are
// the durable audit trail outliving the transient queue.
func (s *SQLiteStore) UpsertMetadata(ctx context.Context, update stridesync.MetadataUpdate) (*stridesync.Metadata, error) {
	id := stridesync.MetadataID(update.UserID, update.EntityType, update.EntityID)
	now := formatTime(s.clock.Now().UTC())

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_metadata (id, user_id, entity_type, entity_id, status, last_synced_at, error_message, retry_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, entity_type, entity_id) DO UPDATE SET
			status = excluded.status,
			last_synced_at = excluded.last_synced_at,
			error_message = excluded.error_message,
			retry_count = excluded.retry_count,
			updated_at = excluded.updated_at`,
		id, update.UserID, string(update.EntityType), update.EntityID,
		string(update.Status), formatNullableTime(update.LastSyncedAt),
		update.ErrorMessage, update.RetryCount, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert sync metadata %s: %w", id, err)
	}
	return s.GetMetadata(ctx, update.UserID, update.EntityType, update.EntityID)
}

// MetadataStatusCounts aggregates the user's metadata rows per status.
func (s *SQLiteStore) MetadataStatusCounts(ctx context.Context, userID string) (stridesync.StatusCounts, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT status, COUNT(*) FROM sync_metadata WHERE user_id = ? GROUP BY status",
		userID,
	)
	if err != nil {
		return stridesync.StatusCounts{}, fmt.Errorf("count sync metadata: %w", err)
	}
	defer rows.Close()

	var counts stridesync.StatusCounts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return stridesync.StatusCounts{}, fmt.Errorf("scan metadata count: %w", err)
		}
		switch stridesync.Status(status) {
		case stridesync.StatusPending:
			counts.Pending = n
		case stridesync.StatusSyncing:
			counts.Syncing = n
		case stridesync.StatusSynced:
			counts.Synced = n
		case stridesync.StatusFailed:
			counts.Failed = n
		}
	}
	return counts, rows.Err()
}

func scanMetadata(row *sql.Row) (*stridesync.Metadata, error) {
	var (
		meta                 stridesync.Metadata
		entityType, status   string
		lastSyncedAt         sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&meta.ID, &meta.UserID, &entityType, &meta.EntityID,
		&status, &lastSyncedAt, &meta.ErrorMessage, &meta.RetryCount,
		&createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	meta.EntityType = types.EntityType(entityType)
	meta.Status = stridesync.Status(status)
	if lastSyncedAt.Valid {
		t, err := parseTime(lastSyncedAt.String)
		if err != nil {
			return nil, err
		}
		meta.LastSyncedAt = &t
	}
	if meta.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if meta.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &meta, nil
}
