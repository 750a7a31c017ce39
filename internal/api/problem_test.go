package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hyperengineering/stride/internal/store"
	"github.com/hyperengineering/stride/internal/validation"
)

func TestWriteProblem_RFC7807Shape(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil)
	w := httptest.NewRecorder()

	WriteProblem(w, req, http.StatusNotFound, "Resource not found")

	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/problem+json" {
		t.Errorf("content type = %q", ct)
	}

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Status != http.StatusNotFound {
		t.Errorf("status field = %d, want 404", p.Status)
	}
	if p.Type == "" || p.Title == "" {
		t.Errorf("problem = %+v, missing type or title", p)
	}
	if p.Instance != "/api/v1/activities" {
		t.Errorf("instance = %q, want request path", p.Instance)
	}
}

func TestWriteProblemWithErrors_CarriesFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sync/enqueue", nil)
	w := httptest.NewRecorder()

	WriteProblemWithErrors(w, req, "Invalid operations", []validation.ValidationError{
		{Field: "operations[0].entityId", Message: "is required"},
	})

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}

	var p ProblemWithErrors
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(p.Errors) != 1 || p.Errors[0].Field != "operations[0].entityId" {
		t.Errorf("errors = %+v", p.Errors)
	}
}

func TestMapStoreError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"not found", store.ErrNotFound, http.StatusNotFound},
		{"snapshot missing", store.ErrSnapshotMissing, http.StatusNotFound},
		{"unknown error", errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil)
			w := httptest.NewRecorder()

			MapStoreError(w, req, tc.err)

			if w.Code != tc.want {
				t.Errorf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestMapStoreError_DoesNotLeakInternals(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/activities", nil)
	w := httptest.NewRecorder()

	MapStoreError(w, req, errors.New("secret internal path /var/db/stride.db"))

	var p Problem
	if err := json.Unmarshal(w.Body.Bytes(), &p); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if p.Detail != "Internal Server Error" {
		t.Errorf("detail = %q, internal error details leaked", p.Detail)
	}
}
