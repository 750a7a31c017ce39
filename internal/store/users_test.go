package store

import (
	"context"
	"errors"
	"testing"

	"github.com/hyperengineering/stride/internal/types"
)

func TestUserByToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CreateUser(ctx, types.User{ID: "u1", Name: "Ada", APIToken: "secret-token"})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	user, err := s.UserByToken(ctx, "secret-token")
	if err != nil {
		t.Fatalf("UserByToken: %v", err)
	}
	if user.ID != "u1" || user.Name != "Ada" {
		t.Errorf("user = %+v", user)
	}
	if user.CreatedAt.IsZero() {
		t.Error("CreatedAt not populated")
	}
}

func TestUserByToken_UnknownToken(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UserByToken(context.Background(), "nope")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestCreateUser_DuplicateTokenRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateUser(ctx, types.User{ID: "u1", Name: "Ada", APIToken: "dup"}); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := s.CreateUser(ctx, types.User{ID: "u2", Name: "Grace", APIToken: "dup"}); err == nil {
		t.Error("duplicate api token accepted")
	}
}
