package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

const activityLogColumns = "id, activity_id, started_at, duration_seconds, note, version, created_at, updated_at, deleted_at"

// ListActivityLogsSince returns the user's activity logs, tombstones
// included, optionally restricted to rows updated after since.
func (s *SQLiteStore) ListActivityLogsSince(ctx context.Context, userID string, since *time.Time) ([]types.ActivityLog, error) {
	query := "SELECT " + activityLogColumns + " FROM activity_logs WHERE user_id = ?"
	args := []any{userID}
	if since != nil {
		query += " AND updated_at > ?"
		args = append(args, formatTime(*since))
	}
	query += " ORDER BY updated_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity logs: %w", err)
	}
	defer rows.Close()

	records := []types.ActivityLog{}
	for rows.Next() {
		record, err := scanActivityLog(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		records = append(records, record)
	}
	return records, rows.Err()
}

// LookupActivityLogsByIDs fetches current activity-log rows by id, scoped to
// the user.
func (s *SQLiteStore) LookupActivityLogsByIDs(ctx context.Context, userID string, ids []string) (map[string]types.ActivityLog, error) {
	found := make(map[string]types.ActivityLog, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query := fmt.Sprintf(
		"SELECT "+activityLogColumns+" FROM activity_logs WHERE id IN (%s) AND user_id = ?",
		inPlaceholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids, userID)...)
	if err != nil {
		return nil, fmt.Errorf("lookup activity logs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanActivityLog(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		found[record.ID] = record
	}
	return found, rows.Err()
}

// BulkUpsertActivityLogs conditionally writes the records; see
// BulkUpsertActivities for the LWW guard semantics.
func (s *SQLiteStore) BulkUpsertActivityLogs(ctx context.Context, userID string, records []types.ActivityLog) (map[string]struct{}, error) {
	written := make(map[string]struct{}, len(records))
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			var id string
			err := tx.QueryRowContext(ctx, `
				INSERT INTO activity_logs (id, user_id, activity_id, started_at, duration_seconds, note, version, created_at, updated_at, deleted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					activity_id = excluded.activity_id,
					started_at = excluded.started_at,
					duration_seconds = excluded.duration_seconds,
					note = excluded.note,
					version = excluded.version,
					updated_at = excluded.updated_at,
					deleted_at = excluded.deleted_at
				WHERE excluded.updated_at > activity_logs.updated_at
				  AND activity_logs.user_id = excluded.user_id
				RETURNING id`,
				record.ID, userID, record.ActivityID, formatTime(record.StartedAt),
				record.DurationSeconds, record.Note, nullableInt(record.Version),
				formatTime(record.CreatedAt), formatTime(record.UpdatedAt),
				formatNullableTime(record.DeletedAt),
			).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("upsert activity log %s: %w", record.ID, err)
			}
			written[id] = struct{}{}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func scanActivityLog(rows *sql.Rows) (types.ActivityLog, error) {
	var (
		record                          types.ActivityLog
		version                         sql.NullInt64
		startedAt, createdAt, updatedAt string
		deletedAt                       sql.NullString
	)
	if err := rows.Scan(&record.ID, &record.ActivityID, &startedAt,
		&record.DurationSeconds, &record.Note, &version,
		&createdAt, &updatedAt, &deletedAt); err != nil {
		return types.ActivityLog{}, fmt.Errorf("scan activity log: %w", err)
	}
	if version.Valid {
		record.Version = &version.Int64
	}
	var err error
	if record.StartedAt, err = parseTime(startedAt); err != nil {
		return types.ActivityLog{}, err
	}
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.ActivityLog{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.ActivityLog{}, err
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return types.ActivityLog{}, err
		}
		record.DeletedAt = &t
	}
	return record, nil
}
