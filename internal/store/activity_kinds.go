package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

const activityKindColumns = "id, name, icon, position, version, created_at, updated_at, deleted_at"

// ListActivityKindsSince returns the user's activity kinds, tombstones
// included, optionally restricted to rows updated after since.
func (s *SQLiteStore) ListActivityKindsSince(ctx context.Context, userID string, since *time.Time) ([]types.ActivityKind, error) {
	query := "SELECT " + activityKindColumns + " FROM activity_kinds WHERE user_id = ?"
	args := []any{userID}
	if since != nil {
		query += " AND updated_at > ?"
		args = append(args, formatTime(*since))
	}
	query += " ORDER BY updated_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list activity kinds: %w", err)
	}
	defer rows.Close()

	records := []types.ActivityKind{}
	for rows.Next() {
		record, err := scanActivityKind(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		records = append(records, record)
	}
	return records, rows.Err()
}

// LookupActivityKindsByIDs fetches current activity-kind rows by id, scoped
// to the user.
func (s *SQLiteStore) LookupActivityKindsByIDs(ctx context.Context, userID string, ids []string) (map[string]types.ActivityKind, error) {
	found := make(map[string]types.ActivityKind, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query := fmt.Sprintf(
		"SELECT "+activityKindColumns+" FROM activity_kinds WHERE id IN (%s) AND user_id = ?",
		inPlaceholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids, userID)...)
	if err != nil {
		return nil, fmt.Errorf("lookup activity kinds: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanActivityKind(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		found[record.ID] = record
	}
	return found, rows.Err()
}

// BulkUpsertActivityKinds conditionally writes the records; see
// BulkUpsertActivities for the LWW guard semantics. Icon gets the same
// preserve-when-null treatment.
func (s *SQLiteStore) BulkUpsertActivityKinds(ctx context.Context, userID string, records []types.ActivityKind) (map[string]struct{}, error) {
	written := make(map[string]struct{}, len(records))
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			var id string
			err := tx.QueryRowContext(ctx, `
				INSERT INTO activity_kinds (id, user_id, name, icon, position, version, created_at, updated_at, deleted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					name = excluded.name,
					icon = COALESCE(excluded.icon, activity_kinds.icon),
					position = excluded.position,
					version = excluded.version,
					updated_at = excluded.updated_at,
					deleted_at = excluded.deleted_at
				WHERE excluded.updated_at > activity_kinds.updated_at
				  AND activity_kinds.user_id = excluded.user_id
				RETURNING id`,
				record.ID, userID, record.Name, nullableString(record.Icon),
				record.Position, nullableInt(record.Version),
				formatTime(record.CreatedAt), formatTime(record.UpdatedAt),
				formatNullableTime(record.DeletedAt),
			).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("upsert activity kind %s: %w", record.ID, err)
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

func scanActivityKind(rows *sql.Rows) (types.ActivityKind, error) {
	var (
		record               types.ActivityKind
		icon                 sql.NullString
		version              sql.NullInt64
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	if err := rows.Scan(&record.ID, &record.Name, &icon, &record.Position,
		&version, &createdAt, &updatedAt, &deletedAt); err != nil {
		return types.ActivityKind{}, fmt.Errorf("scan activity kind: %w", err)
	}
	if icon.Valid {
		record.Icon = &icon.String
	}
	if version.Valid {
		record.Version = &version.Int64
	}
	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.ActivityKind{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.ActivityKind{}, err
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return types.ActivityKind{}, err
		}
		record.DeletedAt = &t
	}
	return record, nil
}
