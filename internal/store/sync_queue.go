package store

import (
	"context"
	"database/sql"
	"fmt"

	stridesync "github.com/hyperengineering/stride/internal/sync"
	"github.com/hyperengineering/stride/internal/types"
)

const syncQueueColumns = "id, user_id, entity_type, entity_id, operation, payload, timestamp, sequence_number, created_at"

// InsertQueueItems persists the items atomically; either every operation is
// durably queued or none are.
func (s *SQLiteStore) InsertQueueItems(ctx context.Context, items []stridesync.QueueItem) error {
	if len(items) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, item := range items {
			var payload any
			if len(item.Payload) > 0 {
				payload = string(item.Payload)
			}
			_, err := tx.ExecContext(ctx, `
				INSERT INTO sync_queue (`+syncQueueColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID, item.UserID, string(item.EntityType), item.EntityID,
				string(item.Operation), payload, formatTime(item.Timestamp),
				item.SequenceNumber, formatTime(item.CreatedAt),
			)
			if err != nil {
				return fmt.Errorf("insert queue item %s: %w", item.ID, err)
			}
		}
		return nil
	})
}

// ListQueueItems returns every queued item for the user, in enqueue order.
func (s *SQLiteStore) ListQueueItems(ctx context.Context, userID string) ([]stridesync.QueueItem, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+syncQueueColumns+" FROM sync_queue WHERE user_id = ? ORDER BY sequence_number, created_at",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list queue items: %w", err)
	}
	defer rows.Close()
	return scanQueueItems(rows)
}

// DequeueQueueItems returns up to limit items ordered by sequence number
// ascending, plus the user's total queued count.
func (s *SQLiteStore) DequeueQueueItems(ctx context.Context, userID string, limit int) ([]stridesync.QueueItem, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sync_queue WHERE user_id = ?", userID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count queue items: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+syncQueueColumns+" FROM sync_queue WHERE user_id = ? ORDER BY sequence_number, created_at LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("dequeue queue items: %w", err)
	}
	defer rows.Close()

	items, err := scanQueueItems(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// DeleteQueueItems removes the identified items for the user.
func (s *SQLiteStore) DeleteQueueItems(ctx context.Context, userID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query := fmt.Sprintf(
		"DELETE FROM sync_queue WHERE id IN (%s) AND user_id = ?",
		inPlaceholders(len(ids)),
	)
	if _, err := s.db.ExecContext(ctx, query, idArgs(ids, userID)...); err != nil {
		return fmt.Errorf("delete queue items: %w", err)
	}
	return nil
}

func scanQueueItems(rows *sql.Rows) ([]stridesync.QueueItem, error) {
	items := []stridesync.QueueItem{}
	for rows.Next() {
		var (
			item                 stridesync.QueueItem
			entityType, op       string
			payload              sql.NullString
			timestamp, createdAt string
		)
		if err := rows.Scan(&item.ID, &item.UserID, &entityType, &item.EntityID,
			&op, &payload, &timestamp, &item.SequenceNumber, &createdAt); err != nil {
			return nil, fmt.Errorf("scan queue item: %w", err)
		}
		item.EntityType = types.EntityType(entityType)
		item.Operation = stridesync.Operation(op)
		if payload.Valid {
			item.Payload = []byte(payload.String)
		}
		var err error
		if item.Timestamp, err = parseTime(timestamp); err != nil {
			return nil, err
		}
		if item.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
