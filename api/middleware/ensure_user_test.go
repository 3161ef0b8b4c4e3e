package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
)

type ensureFunc func(ctx context.Context, id uuid.UUID, email string) (*models.User, error)

func (f ensureFunc) Ensure(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
	return f(ctx, id, email)
}

func TestEnsureUserCreatesRow(t *testing.T) {
	userID := uuid.New()
	called := false
	store := ensureFunc(func(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
		called = true
		if id != userID || email != "ada@example.com" {
			t.Fatalf("unexpected ensure args %s %s", id, email)
		}
		return &models.User{ID: id, Email: email}, nil
	})

	handler := EnsureUser(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/billing/checkout", nil)
	req = req.WithContext(WithEmail(WithUserID(req.Context(), userID.String()), "ada@example.com"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent || !called {
		t.Fatalf("expected ensure then next, status=%d called=%v", rec.Code, called)
	}
}

func TestEnsureUserSkipsWithoutEmail(t *testing.T) {
	store := ensureFunc(func(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
		t.Fatalf("ensure should not run without an email")
		return nil, nil
	})
	handler := EnsureUser(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(WithUserID(req.Context(), uuid.NewString()))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestEnsureUserStoreFailure(t *testing.T) {
	store := ensureFunc(func(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
		return nil, errors.New("db down")
	})
	handler := EnsureUser(store, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("next should not run")
	}))
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req = req.WithContext(WithEmail(WithUserID(req.Context(), uuid.NewString()), "a@b.c"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 got %d", rec.Code)
	}
}
