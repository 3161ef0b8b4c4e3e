package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/api/responses"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

type userEnsurer interface {
	Ensure(ctx context.Context, id uuid.UUID, email string) (*models.User, error)
}

// EnsureUser creates the account row for a token subject on first sight so
// later grants have a balance to land on. Tokens without an email are passed
// through; the row cannot be created without one.
func EnsureUser(store userEnsurer, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			email := EmailFromContext(ctx)
			if email == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := uuid.Parse(UserIDFromContext(ctx))
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "invalid user id"))
				return
			}

			if _, err := store.Ensure(ctx, userID, email); err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure user"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
