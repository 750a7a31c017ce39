package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stridesync "github.com/hyperengineering/stride/internal/sync"
	"github.com/hyperengineering/stride/internal/types"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q selects the transaction when one is in flight, the pool otherwise.
func (s *SQLiteStore) q(tx *sql.Tx) querier {
	if tx != nil {
		return tx
	}
	return s.db
}

// GetRecord loads one entity row scoped to the user, tombstones included.
// Returns (nil, nil) when the row does not exist or belongs to someone else.
func (s *SQLiteStore) GetRecord(ctx context.Context, tx *sql.Tx, userID string, entityType types.EntityType, entityID string) (*stridesync.RecordState, error) {
	schema, err := schemaFor(entityType)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(schema.columns)+5)
	cols = append(cols, "id", "version", "created_at", "updated_at", "deleted_at")
	for _, spec := range schema.columns {
		cols = append(cols, spec.column)
	}
	query := fmt.Sprintf(
		"SELECT %s FROM %s WHERE id = ? AND user_id = ?",
		strings.Join(cols, ", "), schema.table,
	)

	var (
		id, createdAt, updatedAt string
		version                  sql.NullInt64
		deletedAt                sql.NullString
	)
	dest := []any{&id, &version, &createdAt, &updatedAt, &deletedAt}
	domain := make([]sql.NullString, len(schema.columns))
	domainInts := make([]sql.NullInt64, len(schema.columns))
	for i, spec := range schema.columns {
		if spec.kind == colInt {
			dest = append(dest, &domainInts[i])
		} else {
			dest = append(dest, &domain[i])
		}
	}

	err = s.q(tx).QueryRowContext(ctx, query, entityID, userID).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", entityType, entityID, err)
	}

	payload := map[string]any{"id": id}
	created, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := parseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	payload["createdAt"] = created
	payload["updatedAt"] = updated
	state := &stridesync.RecordState{ID: id, UpdatedAt: updated}
	if version.Valid {
		v := version.Int64
		state.Version = &v
		payload["version"] = v
	}
	if deletedAt.Valid {
		deleted, err := parseTime(deletedAt.String)
		if err != nil {
			return nil, err
		}
		payload["deletedAt"] = deleted
		state.Deleted = true
	}

	for i, spec := range schema.columns {
		switch spec.kind {
		case colInt:
			payload[spec.jsonKey] = domainInts[i].Int64
		case colText:
			payload[spec.jsonKey] = domain[i].String
		case colNullText:
			if domain[i].Valid {
				payload[spec.jsonKey] = domain[i].String
			}
		case colTime, colNullTime:
			if domain[i].Valid {
				t, err := parseTime(domain[i].String)
				if err != nil {
					return nil, err
				}
				payload[spec.jsonKey] = t
			}
		}
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", entityType, err)
	}
	state.Payload = raw
	return state, nil
}

// InsertRecord creates a new entity row from a client payload and returns
// its canonical state.
func (s *SQLiteStore) InsertRecord(ctx context.Context, tx *sql.Tx, userID string, entityType types.EntityType, entityID string, payload json.RawMessage) (*stridesync.RecordState, error) {
	schema, err := schemaFor(entityType)
	if err != nil {
		return nil, err
	}
	fields, meta, err := decodePayload(schema, entityID, payload, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	cols := []string{"id", "user_id", "version", "created_at", "updated_at", "deleted_at"}
	args := []any{entityID, userID, meta.version, formatTime(meta.createdAt), formatTime(meta.updatedAt), formatNullableTime(meta.deletedAt)}
	for _, spec := range schema.columns {
		cols = append(cols, spec.column)
		args = append(args, fields[spec.column])
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		schema.table, strings.Join(cols, ", "), placeholders,
	)
	if _, err := s.q(tx).ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("insert %s %s: %w", entityType, entityID, err)
	}
	return s.GetRecord(ctx, tx, userID, entityType, entityID)
}

// UpdateRecord replaces an entity row's mutable fields from a client payload
// (full-record replace) and returns the resulting state.
func (s *SQLiteStore) UpdateRecord(ctx context.Context, tx *sql.Tx, userID string, entityType types.EntityType, entityID string, payload json.RawMessage) (*stridesync.RecordState, error) {
	schema, err := schemaFor(entityType)
	if err != nil {
		return nil, err
	}
	fields, meta, err := decodePayload(schema, entityID, payload, s.clock.Now().UTC())
	if err != nil {
		return nil, err
	}

	assignments := []string{"version = ?", "updated_at = ?", "deleted_at = ?"}
	args := []any{meta.version, formatTime(meta.updatedAt), formatNullableTime(meta.deletedAt)}
	for _, spec := range schema.columns {
		assignments = append(assignments, spec.column+" = ?")
		args = append(args, fields[spec.column])
	}
	args = append(args, entityID, userID)
	query := fmt.Sprintf(
		"UPDATE %s SET %s WHERE id = ? AND user_id = ?",
		schema.table, strings.Join(assignments, ", "),
	)
	result, err := s.q(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", entityType, entityID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", entityType, entityID, err)
	}
	if affected == 0 {
		return nil, ErrNotFound
	}
	return s.GetRecord(ctx, tx, userID, entityType, entityID)
}

// SoftDeleteRecord marks an entity row as a tombstone. Already-deleted rows
// are left untouched.
func (s *SQLiteStore) SoftDeleteRecord(ctx context.Context, tx *sql.Tx, userID string, entityType types.EntityType, entityID string, at time.Time) error {
	schema, err := schemaFor(entityType)
	if err != nil {
		return err
	}
	stamp := formatTime(at)
	query := fmt.Sprintf(
		"UPDATE %s SET deleted_at = ?, updated_at = ? WHERE id = ? AND user_id = ? AND deleted_at IS NULL",
		schema.table,
	)
	if _, err := s.q(tx).ExecContext(ctx, query, stamp, stamp, entityID, userID); err != nil {
		return fmt.Errorf("soft delete %s %s: %w", entityType, entityID, err)
	}
	return nil
}

// payloadMeta carries the bookkeeping fields extracted from a client
// payload.
type payloadMeta struct {
	version   any
	createdAt time.Time
	updatedAt time.Time
	deletedAt *time.Time
}

// decodePayload converts a client payload into SQL column values plus the
// common bookkeeping fields. Missing createdAt/updatedAt fall back to now,
// taken from the store's clock.
func decodePayload(schema tableSchema, entityID string, payload json.RawMessage, now time.Time) (map[string]any, payloadMeta, error) {
	var data map[string]any
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &data); err != nil {
			return nil, payloadMeta{}, fmt.Errorf("unmarshal payload: %w", err)
		}
	}
	if data == nil {
		data = map[string]any{}
	}

	if payloadID, ok := data["id"].(string); ok && payloadID != entityID {
		return nil, payloadMeta{}, fmt.Errorf("payload id %q does not match entity id %q", payloadID, entityID)
	}

	meta := payloadMeta{createdAt: now, updatedAt: now}
	if v, ok := data["version"].(float64); ok {
		meta.version = int64(v)
	}
	if t, ok := payloadTime(data["createdAt"]); ok {
		meta.createdAt = t
	}
	if t, ok := payloadTime(data["updatedAt"]); ok {
		meta.updatedAt = t
	}
	if t, ok := payloadTime(data["deletedAt"]); ok {
		meta.deletedAt = &t
	}

	fields := make(map[string]any, len(schema.columns))
	for _, spec := range schema.columns {
		value, err := payloadSQLValue(spec, data[spec.jsonKey])
		if err != nil {
			return nil, payloadMeta{}, err
		}
		fields[spec.column] = value
	}
	return fields, meta, nil
}

// payloadTime parses an RFC 3339 timestamp out of a decoded payload value.
func payloadTime(value any) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
