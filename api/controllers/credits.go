package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/api/responses"
	"github.com/pixelmint/pixelmint-backend/api/validators"
	"github.com/pixelmint/pixelmint-backend/internal/credits"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

const (
	defaultLedgerLimit = 20
	maxLedgerLimit     = 100
)

type creditsReader interface {
	Summary(ctx context.Context, userID uuid.UUID, limit int) (*credits.Summary, error)
}

type ledgerEntryResponse struct {
	ID          uuid.UUID `json:"id"`
	Delta       int64     `json:"delta"`
	Reason      string    `json:"reason"`
	RefProvider string    `json:"refProvider,omitempty"`
	RefID       string    `json:"refId"`
	CreatedAt   time.Time `json:"createdAt"`
}

type creditsResponse struct {
	Balance int64                 `json:"balance"`
	Entries []ledgerEntryResponse `json:"entries"`
}

// GetCredits returns the caller's balance and most recent ledger movements.
func GetCredits(svc creditsReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credits service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseLimit(r, defaultLedgerLimit, maxLedgerLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summary, err := svc.Summary(r.Context(), userID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		resp := creditsResponse{
			Balance: summary.Balance,
			Entries: make([]ledgerEntryResponse, 0, len(summary.Entries)),
		}
		for _, e := range summary.Entries {
			resp.Entries = append(resp.Entries, ledgerEntryResponse{
				ID:          e.ID,
				Delta:       e.Delta,
				Reason:      string(e.Reason),
				RefProvider: e.RefProvider,
				RefID:       e.RefID,
				CreatedAt:   e.CreatedAt,
			})
		}
		responses.WriteSuccess(w, resp)
	}
}
