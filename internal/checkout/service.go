package checkout

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/pkg/config"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

// ProvisionalPrefix marks a provider_order_id written before the provider
// session exists.
const ProvisionalPrefix = "pending_"

type Input struct {
	UserID      uuid.UUID
	Email       string
	Provider    string
	ProductCode string
}

type Result struct {
	OrderID     uuid.UUID `json:"orderId"`
	CheckoutURL string    `json:"checkoutUrl"`
}

// Service starts hosted checkouts for credit packs and subscriptions.
type Service interface {
	Checkout(ctx context.Context, in Input) (*Result, error)
	Products() []Product
}

type blockingGuard interface {
	GetBlockingSubscription(ctx context.Context, userID uuid.UUID) (*models.Subscription, error)
}

// ServiceParams groups checkout dependencies. ProviderProducts maps each
// provider to catalog code -> provider price/product id.
type ServiceParams struct {
	Repo             Repository
	Catalog          *Catalog
	Guard            blockingGuard
	Gateways         map[enums.PaymentProvider]Gateway
	ProviderProducts map[enums.PaymentProvider]map[string]string
	PublicURL        string
	SuccessPath      string
	CancelPath       string
	Logger           *logger.Logger
}

type service struct {
	repo             Repository
	catalog          *Catalog
	guard            blockingGuard
	gateways         map[enums.PaymentProvider]Gateway
	providerProducts map[enums.PaymentProvider]map[string]string
	successURL       string
	cancelURL        string
	logg             *logger.Logger
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout repo required")
	}
	if params.Catalog == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "catalog required")
	}
	if params.Guard == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription guard required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	base := strings.TrimRight(params.PublicURL, "/")
	return &service{
		repo:             params.Repo,
		catalog:          params.Catalog,
		guard:            params.Guard,
		gateways:         params.Gateways,
		providerProducts: params.ProviderProducts,
		successURL:       base + params.SuccessPath,
		cancelURL:        base + params.CancelPath,
		logg:             params.Logger,
	}, nil
}

// ProviderProductsFrom lifts the env-configured product maps.
func ProviderProductsFrom(cfg config.CheckoutConfig) map[enums.PaymentProvider]map[string]string {
	return map[enums.PaymentProvider]map[string]string{
		enums.PaymentProviderStripe: cfg.StripeProducts,
		enums.PaymentProviderCreem:  cfg.CreemProducts,
	}
}

func (s *service) Products() []Product {
	return s.catalog.List()
}

func (s *service) Checkout(ctx context.Context, in Input) (*Result, error) {
	if in.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	provider, err := enums.ParsePaymentProvider(strings.ToLower(strings.TrimSpace(in.Provider)))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid provider").
			WithDetails(map[string]any{"provider": in.Provider})
	}
	product, ok := s.catalog.Lookup(in.ProductCode)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found").
			WithDetails(map[string]any{"productId": in.ProductCode})
	}
	gateway, ok := s.gateways[provider]
	if !ok || gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment provider not configured").
			WithDetails(map[string]any{"provider": provider.String()})
	}
	providerProductID := strings.TrimSpace(s.providerProducts[provider][product.Code])
	if providerProductID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not available for provider").
			WithDetails(map[string]any{"productId": product.Code, "provider": provider.String()})
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"user_id":      in.UserID.String(),
		"provider":     provider.String(),
		"product_code": product.Code,
	})

	if product.IsSubscription() {
		blocking, err := s.guard.GetBlockingSubscription(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		if blocking != nil {
			s.logg.Info(ctx, "checkout.subscription.blocked")
			return nil, pkgerrors.New(pkgerrors.CodeConflict, "an active subscription already exists").
				WithDetails(map[string]any{
					"subscriptionId": blocking.ProviderSubscriptionID,
					"status":         blocking.Status.String(),
				})
		}
	}

	orderID := uuid.New()
	order := &models.Order{
		ID:              orderID,
		UserID:          in.UserID,
		Provider:        provider,
		ProviderOrderID: ProvisionalPrefix + orderID.String(),
		Type:            product.Type,
		ProductID:       product.Code,
		Status:          enums.OrderStatusCreated,
		AmountCents:     product.AmountCents(),
		Currency:        product.Currency,
		Credits:         product.Credits,
	}
	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
	}
	ctx = s.logg.WithField(ctx, "order_id", orderID.String())

	sess, err := gateway.CreateSession(ctx, SessionRequest{
		OrderID:           orderID,
		UserID:            in.UserID,
		Email:             in.Email,
		Product:           product,
		ProviderProductID: providerProductID,
		SuccessURL:        s.successURL,
		CancelURL:         s.cancelURL,
	})
	if err != nil {
		s.logg.Error(ctx, "checkout.session.failed", err)
		if markErr := s.repo.MarkOrderFailed(context.WithoutCancel(ctx), orderID); markErr != nil {
			s.logg.Error(ctx, "checkout.order.mark_failed", markErr)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout session")
	}

	if sess.ID != "" {
		if err := s.repo.SetProviderOrderID(ctx, orderID, sess.ID); err != nil {
			// The provisional id still reconciles through order_id metadata.
			s.logg.Error(ctx, "checkout.order.provider_id_failed", err)
		}
	}

	s.logg.Info(ctx, "checkout.session.created")
	return &Result{OrderID: orderID, CheckoutURL: sess.URL}, nil
}
