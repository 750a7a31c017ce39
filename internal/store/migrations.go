package store

import (
	"database/sql"
	"fmt"

	"github.com/hyperengineering/stride/migrations"
	"github.com/pressly/goose/v3"
)

// RunMigrations applies pending goose migrations from the embedded
// migrations filesystem. Called on every store open so a fresh database
// file is usable immediately.
func RunMigrations(db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrations.FS)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}
	if err := goose.Up(db, "."); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
