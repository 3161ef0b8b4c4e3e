package checkout

import (
	"context"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

type subscriptionFinder interface {
	FindBlockingSubscription(ctx context.Context, userID uuid.UUID, excludeID *uuid.UUID) (*models.Subscription, error)
}

// Guard enforces one live subscription per user at checkout time. Two
// checkouts racing past it are reconciled when their webhooks land.
type Guard struct {
	subs subscriptionFinder
}

func NewGuard(subs subscriptionFinder) *Guard {
	return &Guard{subs: subs}
}

// GetBlockingSubscription returns the user's live, non-ended subscription or nil.
func (g *Guard) GetBlockingSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error) {
	sub, err := g.subs.FindBlockingSubscription(ctx, userID, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load active subscription")
	}
	return sub, nil
}
