package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

const goalColumns = "id, activity_id, target_seconds, period, version, created_at, updated_at, deleted_at"

// ListGoalsSince returns the user's goals, tombstones included, optionally
// restricted to rows updated after since.
func (s *SQLiteStore) ListGoalsSince(ctx context.Context, userID string, since *time.Time) ([]types.Goal, error) {
	query := "SELECT " + goalColumns + " FROM goals WHERE user_id = ?"
	args := []any{userID}
	if since != nil {
		query += " AND updated_at > ?"
		args = append(args, formatTime(*since))
	}
	query += " ORDER BY updated_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()

	records := []types.Goal{}
	for rows.Next() {
		record, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		records = append(records, record)
	}
	return records, rows.Err()
}

// LookupGoalsByIDs fetches current goal rows by id, scoped to the user.
func (s *SQLiteStore) LookupGoalsByIDs(ctx context.Context, userID string, ids []string) (map[string]types.Goal, error) {
	found := make(map[string]types.Goal, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query := fmt.Sprintf(
		"SELECT "+goalColumns+" FROM goals WHERE id IN (%s) AND user_id = ?",
		inPlaceholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids, userID)...)
	if err != nil {
		return nil, fmt.Errorf("lookup goals: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		found[record.ID] = record
	}
	return found, rows.Err()
}

// BulkUpsertGoals conditionally writes the records; see
// BulkUpsertActivities for the LWW guard semantics.
func (s *SQLiteStore) BulkUpsertGoals(ctx context.Context, userID string, records []types.Goal) (map[string]struct{}, error) {
	written := make(map[string]struct{}, len(records))
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			var id string
			err := tx.QueryRowContext(ctx, `
				INSERT INTO goals (id, user_id, activity_id, target_seconds, period, version, created_at, updated_at, deleted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					activity_id = excluded.activity_id,
					target_seconds = excluded.target_seconds,
					period = excluded.period,
					version = excluded.version,
					updated_at = excluded.updated_at,
					deleted_at = excluded.deleted_at
				WHERE excluded.updated_at > goals.updated_at
				  AND goals.user_id = excluded.user_id
				RETURNING id`,
				record.ID, userID, record.ActivityID, record.TargetSeconds,
				string(record.Period), nullableInt(record.Version),
				formatTime(record.CreatedAt), formatTime(record.UpdatedAt),
				formatNullableTime(record.DeletedAt),
			).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("upsert goal %s: %w", record.ID, err)
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

func scanGoal(rows *sql.Rows) (types.Goal, error) {
	var (
		record               types.Goal
		period               string
		version              sql.NullInt64
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	if err := rows.Scan(&record.ID, &record.ActivityID, &record.TargetSeconds,
		&period, &version, &createdAt, &updatedAt, &deletedAt); err != nil {
		return types.Goal{}, fmt.Errorf("scan goal: %w", err)
	}
	record.Period = types.GoalPeriod(period)
	if version.Valid {
		record.Version = &version.Int64
	}
	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Goal{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.Goal{}, err
	}
	if deletedAt.Valid {
		t, err := parseTime(deletedAt.String)
		if err != nil {
			return types.Goal{}, err
		}
		record.DeletedAt = &t
	}
	return record, nil
}
