package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

// inPlaceholders returns "?, ?, ..., ?" for n parameters.
func inPlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// idArgs converts an id list for an IN clause, with the user id appended.
func idArgs(ids []string, userID string) []any {
	args := make([]any, 0, len(ids)+1)
	for _, id := range ids {
		args = append(args, id)
	}
	return append(args, userID)
}

// OwnedActivityIDs returns the subset of ids that exist, are not tombstones,
// and belong to userID. This is the ownership validator consulted before any
// child-record write; empty input returns empty output without querying.
func (s *SQLiteStore) OwnedActivityIDs(ctx context.Context, userID string, ids []string) (map[string]struct{}, error) {
	owned := make(map[string]struct{}, len(ids))
	if len(ids) == 0 {
		return owned, nil
	}

	query := fmt.Sprintf(
		"SELECT id FROM activities WHERE id IN (%s) AND user_id = ? AND deleted_at IS NULL",
		inPlaceholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids, userID)...)
	if err != nil {
		return nil, fmt.Errorf("query owned activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan owned activity id: %w", err)
		}
		owned[id] = struct{}{}
	}
	return owned, rows.Err()
}

const activityColumns = "id, name, kind, color, icon, version, created_at, updated_at, deleted_at"

// ListActivitiesSince returns the user's activities, tombstones included,
// optionally restricted to rows updated after since.
func (s *SQLiteStore) ListActivitiesSince(ctx context.Context, userID string, since *time.Time) ([]types.Activity, error) {
	query := "SELECT " + activityColumns + " FROM activities WHERE user_id = ?"
	args := []any{userID}
	if since != nil {
		query += " AND updated_at > ?"
		args = append(args, formatTime(*since))
	}
	query += " ORDER BY updated_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activities: %w", err)
	}
	defer rows.Close()

	records := []types.Activity{}
	for rows.Next() {
		record, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		records = append(records, record)
	}
	return records, rows.Err()
}

// LookupActivitiesByIDs fetches current activity rows by id, scoped to the
// user. Missing ids are simply absent from the result.
func (s *SQLiteStore) LookupActivitiesByIDs(ctx context.Context, userID string, ids []string) (map[string]types.Activity, error) {
	found := make(map[string]types.Activity, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query := fmt.Sprintf(
		"SELECT "+activityColumns+" FROM activities WHERE id IN (%s) AND user_id = ?",
		inPlaceholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids, userID)...)
	if err != nil {
		return nil, fmt.Errorf("lookup activities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		found[record.ID] = record
	}
	return found, rows.Err()
}

// BulkUpsertActivities conditionally writes the records in one transaction:
// insert when absent, overwrite only when the stored row is strictly older
// (on an exact updated_at tie the stored row is kept). Icon is preserved
// when the incoming value is null so partial uploads do not blank it.
// Returns the ids actually written.
func (s *SQLiteStore) BulkUpsertActivities(ctx context.Context, userID string, records []types.Activity) (map[string]struct{}, error) {
	written := make(map[string]struct{}, len(records))
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			var id string
			err := tx.QueryRowContext(ctx, `
				INSERT INTO activities (id, user_id, name, kind, color, icon, version, created_at, updated_at, deleted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					kind = excluded.kind,
					color = excluded.color,
					icon = COALESCE(excluded.icon, activities.icon),
					version = excluded.version,
					updated_at = excluded.updated_at,
					deleted_at = excluded.deleted_at
				WHERE excluded.updated_at > activities.updated_at
				  AND activities.user_id = excluded.user_id
				RETURNING id`,
				record.ID, userID, record.Name, record.Kind, record.Color,
				nullableString(record.Icon), nullableInt(record.Version),
				formatTime(record.CreatedAt), formatTime(record.UpdatedAt),
				formatNullableTime(record.DeletedAt),
			).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue // LWW guard refused the write
			}
			if err != nil {
				return fmt.Errorf("upsert activity %s: %w", record.ID, err)
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

func scanActivity(rows *sql.Rows) (types.Activity, error) {
	var (
		record               types.Activity
		icon                 sql.NullString
		version              sql.NullInt64
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	if err := rows.Scan(&record.ID, &record.Name, &record.Kind, &record.Color,
		&icon, &version, &createdAt, &updatedAt, &deletedAt); err != nil {
		return types.Activity{}, fmt.Errorf("scan activity: %w", err)
	}
	if icon.Valid {
		record.Icon = &icon.String
	}
	if version.Valid {
		record.Version = &version.Int64
	}
	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Activity{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.Activity{}, err
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return types.Activity{}, err
		}
		record.DeletedAt = &t
	}
	return record, nil
}

// nullableString converts an optional string for SQL binding.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

// nullableInt converts an optional int64 for SQL binding.
func nullableInt(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}
