package checkout

import (
	"context"

	"github.com/pixelmint/pixelmint-backend/pkg/creem"
)

type creemCheckoutCreator interface {
	CreateCheckout(ctx context.Context, req creem.CheckoutRequest) (*creem.Checkout, error)
}

// CreemGateway opens Creem hosted checkouts. Creem has no cancel URL; the
// customer simply leaves the page.
type CreemGateway struct {
	client creemCheckoutCreator
}

func NewCreemGateway(client creemCheckoutCreator) *CreemGateway {
	return &CreemGateway{client: client}
}

func (g *CreemGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	checkoutReq := creem.CheckoutRequest{
		ProductID:  req.ProviderProductID,
		RequestID:  req.OrderID.String(),
		SuccessURL: req.SuccessURL,
		Metadata:   sessionMetadata(req),
	}
	if req.Email != "" {
		checkoutReq.Customer = &creem.Customer{Email: req.Email}
	}
	out, err := g.client.CreateCheckout(ctx, checkoutReq)
	if err != nil {
		return nil, err
	}
	return &Session{ID: out.ID, URL: out.CheckoutURL}, nil
}
