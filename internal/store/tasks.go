package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hyperengineering/stride/internal/types"
)

const taskColumns = "id, title, notes, due_at, completed_at, version, created_at, updated_at, deleted_at"

// ListTasksSince returns the user's tasks, tombstones included, optionally
// restricted to rows updated after since.
func (s *SQLiteStore) ListTasksSince(ctx context.Context, userID string, since *time.Time) ([]types.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE user_id = ?"
	args := []any{userID}
	if since != nil {
		query += " AND updated_at > ?"
		args = append(args, formatTime(*since))
	}
	query += " ORDER BY updated_at"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	records := []types.Task{}
	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		records = append(records, record)
	}
	return records, rows.Err()
}

// LookupTasksByIDs fetches current task rows by id, scoped to the user.
func (s *SQLiteStore) LookupTasksByIDs(ctx context.Context, userID string, ids []string) (map[string]types.Task, error) {
	found := make(map[string]types.Task, len(ids))
	if len(ids) == 0 {
		return found, nil
	}

	query := fmt.Sprintf(
		"SELECT "+taskColumns+" FROM tasks WHERE id IN (%s) AND user_id = ?",
		inPlaceholders(len(ids)),
	)
	rows, err := s.db.QueryContext(ctx, query, idArgs(ids, userID)...)
	if err != nil {
		return nil, fmt.Errorf("lookup tasks: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		record.UserID = userID
		found[record.ID] = record
	}
	return found, rows.Err()
}

// BulkUpsertTasks conditionally writes the records; see
// BulkUpsertActivities for the LWW guard semantics.
func (s *SQLiteStore) BulkUpsertTasks(ctx context.Context, userID string, records []types.Task) (map[string]struct{}, error) {
	written := make(map[string]struct{}, len(records))
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, record := range records {
			var id string
			err := tx.QueryRowContext(ctx, `
				INSERT INTO tasks (id, user_id, title, notes, due_at, completed_at, version, created_at, updated_at, deleted_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO UPDATE SET
					title = excluded.title,
					notes = excluded.notes,
					due_at = excluded.due_at,
					completed_at = excluded.completed_at,
					version = excluded.version,
					updated_at = excluded.updated_at,
					deleted_at = excluded.deleted_at
				WHERE excluded.updated_at > tasks.updated_at
				  AND tasks.user_id = excluded.user_id
				RETURNING id`,
				record.ID, userID, record.Title, record.Notes,
				formatNullableTime(record.DueAt), formatNullableTime(record.CompletedAt),
				nullableInt(record.Version),
				formatTime(record.CreatedAt), formatTime(record.UpdatedAt),
				formatNullableTime(record.DeletedAt),
			).Scan(&id)
			if errors.Is(err, sql.ErrNoRows) {
				continue
			}
			if err != nil {
				return fmt.Errorf("upsert task %s: %w", record.ID, err)
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

func scanTask(rows *sql.Rows) (types.Task, error) {
	var (
		record               types.Task
		dueAt, completedAt   sql.NullString
		version              sql.NullInt64
		createdAt, updatedAt string
		deletedAt            sql.NullString
	)
	if err := rows.Scan(&record.ID, &record.Title, &record.Notes,
		&dueAt, &completedAt, &version, &createdAt, &updatedAt, &deletedAt); err != nil {
		return types.Task{}, fmt.Errorf("scan task: %w", err)
	}
	if version.Valid {
		record.Version = &version.Int64
	}
	var err error
	if record.CreatedAt, err = parseTime(createdAt); err != nil {
		return types.Task{}, err
	}
	if record.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return types.Task{}, err
	}
	for _, opt := range []struct {
		src  sql.NullString
		dest **time.Time
	}{{dueAt, &record.DueAt}, {completedAt, &record.CompletedAt}, {deletedAt, &record.DeletedAt}} {
		if !opt.src.Valid {
			continue
		}
		t, err := parseTime(opt.src.String)
		if err != nil {
			return types.Task{}, err
		}
		*opt.dest = &t
	}
	return record, nil
}
