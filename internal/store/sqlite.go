package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	stridesync "github.com/hyperengineering/stride/internal/sync"
	_ "modernc.org/sqlite"
)

// timeLayout is the storage format for all timestamps: UTC, fixed-width,
// millisecond precision. Fixed width keeps lexicographic comparison in SQL
// (the conditional-upsert LWW guard) consistent with chronological order,
// which RFC 3339 with trimmed fractional seconds does not guarantee.
const timeLayout = "2006-01-02T15:04:05.000Z"

// formatTime renders a timestamp in the storage layout.
func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime reads a stored timestamp.
func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// formatNullableTime renders an optional timestamp, nil for SQL NULL.
func formatNullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return formatTime(*t)
}

// SQLiteStore is the SQLite-backed canonical store for all synced entities,
// the sync queue, and sync metadata.
type SQLiteStore struct {
	db    *sql.DB
	path  string
	clock stridesync.Clock
}

// NewSQLiteStore opens (creating if necessary) the database at dbPath,
// applies pragmas, and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := enablePragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable pragmas: %w", err)
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteStore{db: db, path: dbPath, clock: stridesync.SystemClock{}}, nil
}

// enablePragmas sets SQLite pragmas for performance and safety.
func enablePragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithTx runs fn inside a transaction, committing on nil and rolling back on
// error. Each reconciliation entity-type group runs inside one such
// transaction; there is no cross-group transaction.
func (s *SQLiteStore) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// QueueDepth returns the total number of queued sync operations across all
// users. Health endpoint observability.
func (s *SQLiteStore) QueueDepth(ctx context.Context) (int64, error) {
	var depth int64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sync_queue").Scan(&depth)
	if err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return depth, nil
}

// GenerateSnapshot writes a consistent copy of the database to the snapshot
// path via VACUUM INTO. The previous snapshot, if any, is replaced.
func (s *SQLiteStore) GenerateSnapshot(ctx context.Context) error {
	target := s.snapshotPath()
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale snapshot: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", target); err != nil {
		return fmt.Errorf("vacuum into snapshot: %w", err)
	}
	return nil
}

// SnapshotPath returns the path of the current snapshot file, or
// ErrSnapshotMissing when none has been generated.
func (s *SQLiteStore) SnapshotPath(ctx context.Context) (string, error) {
	target := s.snapshotPath()
	if _, err := os.Stat(target); err != nil {
		if os.IsNotExist(err) {
			return "", ErrSnapshotMissing
		}
		return "", fmt.Errorf("stat snapshot: %w", err)
	}
	return target, nil
}

func (s *SQLiteStore) snapshotPath() string {
	return s.path + ".snapshot"
}
