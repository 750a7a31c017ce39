package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hyperengineering/stride/internal/types"
)

// UserByToken resolves the acting user from a bearer token.
// Returns ErrNotFound for an unknown token.
func (s *SQLiteStore) UserByToken(ctx context.Context, token string) (*types.User, error) {
	var (
		user      types.User
		createdAt string
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, api_token, created_at FROM users WHERE api_token = ?",
		token,
	).Scan(&user.ID, &user.Name, &user.APIToken, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user by token: %w", err)
	}
	if user.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &user, nil
}

// CreateUser persists a new user with the given token.
func (s *SQLiteStore) CreateUser(ctx context.Context, user types.User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.clock.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO users (id, name, api_token, created_at) VALUES (?, ?, ?, ?)",
		user.ID, user.Name, user.APIToken, formatTime(user.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}
