package controllers

import (
	"context"
	"net/http"

	"github.com/pixelmint/pixelmint-backend/api/middleware"
	"github.com/pixelmint/pixelmint-backend/api/responses"
	"github.com/pixelmint/pixelmint-backend/api/validators"
	"github.com/pixelmint/pixelmint-backend/internal/checkout"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

type checkoutService interface {
	Checkout(ctx context.Context, in checkout.Input) (*checkout.Result, error)
	Products() []checkout.Product
}

type checkoutRequest struct {
	Provider  string `json:"provider" validate:"required"`
	ProductID string `json:"productId" validate:"required,max=64"`
}

// ListProducts returns the active credit packs and subscription plans.
func ListProducts(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		responses.WriteSuccess(w, map[string]any{"products": svc.Products()})
	}
}

// CreateCheckout opens a hosted checkout session for the caller.
func CreateCheckout(svc checkoutService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		userID, err := requireUserID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Checkout(r.Context(), checkout.Input{
			UserID:      userID,
			Email:       middleware.EmailFromContext(r.Context()),
			Provider:    validators.NormalizeCode(req.Provider),
			ProductCode: validators.NormalizeCode(req.ProductID),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}
