package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/api/responses"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

type userReader interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type meResponse struct {
	ID             uuid.UUID `json:"id"`
	Email          string    `json:"email"`
	CreditsBalance int64     `json:"creditsBalance"`
}

// GetMe returns the caller's account row.
func GetMe(users userReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if users == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "users repository unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		user, err := users.FindByID(r.Context(), userID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "account not found"))
			return
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load account"))
			return
		}

		responses.WriteSuccess(w, meResponse{ID: user.ID, Email: user.Email, CreditsBalance: user.CreditsBalance})
	}
}
