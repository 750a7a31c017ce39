package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperengineering/stride/internal/types"
)

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{"valid token", "Bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"lowercase scheme", "bearer abc123", ""},
		{"bare token", "abc123", ""},
		{"trailing space", "Bearer abc123  ", "abc123"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			if got := extractBearerToken(req); got != tc.want {
				t.Errorf("extractBearerToken = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestAuthMiddleware_ValidTokenAttachesUser(t *testing.T) {
	user := &types.User{ID: "u1", Name: "Ada"}
	s := &mockStore{user: user}

	var gotUser *types.User
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = MustUserFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	w := httptest.NewRecorder()

	AuthMiddleware(s)(next).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if gotUser == nil || gotUser.ID != "u1" {
		t.Errorf("user in context = %+v, want u1", gotUser)
	}
}

func TestAuthMiddleware_UnknownTokenIs401(t *testing.T) {
	s := &mockStore{} // no user configured: every lookup is ErrNotFound

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with invalid token")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	w := httptest.NewRecorder()

	AuthMiddleware(s)(next).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q, want application/problem+json", ct)
	}
	// The presented token must not leak into the response.
	if strings.Contains(w.Body.String(), "bad-token") {
		t.Error("token echoed in 401 response")
	}
}

func TestAuthMiddleware_MissingHeaderIs401(t *testing.T) {
	s := &mockStore{user: &types.User{ID: "u1"}}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without credentials")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil)
	w := httptest.NewRecorder()

	AuthMiddleware(s)(next).ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuthMiddleware_LookupErrorIs500(t *testing.T) {
	s := &mockStore{userErr: errors.New("database locked")}

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached despite lookup failure")
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil)
	req.Header.Set("Authorization", "Bearer token")
	w := httptest.NewRecorder()

	AuthMiddleware(s)(next).ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

func TestRouter_HealthIsPublic(t *testing.T) {
	handler := newTestHandler(&mockStore{})
	router := NewRouter(handler)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 without credentials", w.Code)
	}
}

func TestRouter_EntityRoutesRequireAuth(t *testing.T) {
	handler := newTestHandler(&mockStore{})
	router := NewRouter(handler)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/activities"},
		{http.MethodPost, "/api/v1/activities/sync"},
		{http.MethodGet, "/api/v1/sync/status"},
		{http.MethodPost, "/api/v1/sync/batch"},
		{http.MethodGet, "/api/v1/sync/snapshot"},
	}
	for _, p := range paths {
		req := httptest.NewRequest(p.method, p.path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s = %d, want 401 without credentials", p.method, p.path, w.Code)
		}
	}
}
