package api

import (
	"context"

	"github.com/hyperengineering/stride/internal/types"
)

// userContextKey is the context key for the authenticated user.
type userContextKey struct{}

// WithUser returns a new context with the authenticated user attached.
func WithUser(ctx context.Context, user *types.User) context.Context {
	return context.WithValue(ctx, userContextKey{}, user)
}

// UserFromContext extracts the authenticated user from the context.
func UserFromContext(ctx context.Context) (*types.User, bool) {
	user, ok := ctx.Value(userContextKey{}).(*types.User)
	return user, ok && user != nil
}

// MustUserFromContext extracts the authenticated user or panics.
// Use only on routes behind the auth middleware.
func MustUserFromContext(ctx context.Context) *types.User {
	user, ok := UserFromContext(ctx)
	if !ok {
		panic("user not in context: middleware misconfiguration")
	}
	return user
}
