package checkout

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
)

type stripeSessionCreator func(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)

// StripeGateway opens Stripe Checkout sessions against pre-created prices.
type StripeGateway struct {
	create stripeSessionCreator
}

func NewStripeGateway() *StripeGateway {
	return &StripeGateway{create: session.New}
}

func (g *StripeGateway) CreateSession(ctx context.Context, req SessionRequest) (*Session, error) {
	mode := stripe.CheckoutSessionModePayment
	if req.Product.IsSubscription() {
		mode = stripe.CheckoutSessionModeSubscription
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(mode)),
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.OrderID.String()),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.ProviderProductID),
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}

	metadata := sessionMetadata(req)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if req.Product.IsSubscription() {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{Metadata: metadata}
	} else {
		params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{Metadata: metadata}
	}

	sess, err := g.create(params)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.URL == "" {
		return nil, errors.New("stripe checkout session missing url")
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}
