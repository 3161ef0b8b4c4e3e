package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/pixelmint/pixelmint-backend/internal/billing"
	"github.com/pixelmint/pixelmint-backend/internal/checkout"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
	"github.com/pixelmint/pixelmint-backend/pkg/metrics"
)

type billingProcessor interface {
	HandleBillingEvent(ctx context.Context, event billing.Event) (*billing.Result, error)
}

type ServiceParams struct {
	Processor billingProcessor
	Products  *checkout.ProductIndex
	Metrics   *metrics.BillingMetrics
	Logger    *logger.Logger
}

// Service turns verified Stripe events into billing events.
type Service struct {
	processor billingProcessor
	products  *checkout.ProductIndex
	metrics   *metrics.BillingMetrics
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Processor == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing processor required")
	}
	if params.Products == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "product index required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		processor: params.Processor,
		products:  params.Products,
		metrics:   params.Metrics,
		logg:      params.Logger,
	}, nil
}

// HandleEvent applies the event. Types that carry no billing effect are
// acknowledged without touching the store.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (*billing.Result, error) {
	if event == nil || event.Data == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"provider":          enums.PaymentProviderStripe.String(),
		"event_id":          event.ID,
		"stripe_event_type": string(event.Type),
	})

	normalized, err := s.Normalize(event)
	if err != nil {
		s.metrics.IncEvent(enums.PaymentProviderStripe.String(), string(event.Type), metrics.OutcomeRejected)
		s.logg.Error(ctx, "billing.event.rejected", err)
		return nil, err
	}
	if normalized == nil {
		s.metrics.IncEvent(enums.PaymentProviderStripe.String(), string(event.Type), metrics.OutcomeIgnored)
		s.logg.Debug(ctx, "billing.event.ignored")
		return &billing.Result{OK: true}, nil
	}
	return s.processor.HandleBillingEvent(ctx, *normalized)
}

// Normalize maps a Stripe event to a billing event, or nil when it is not
// billable.
func (s *Service) Normalize(event *stripe.Event) (*billing.Event, error) {
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
		}
		return s.normalizeCheckout(event.ID, &sess)
	case stripe.EventTypeInvoicePaid:
		var inv invoicePayload
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode invoice")
		}
		return s.normalizeInvoice(event.ID, &inv)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return normalizeDeleted(event.ID, &sub), nil
	default:
		return nil, nil
	}
}

// Subscription checkouts are settled by invoice.paid, which carries the period.
func (s *Service) normalizeCheckout(eventID string, sess *stripe.CheckoutSession) (*billing.Event, error) {
	if sess.Mode != stripe.CheckoutSessionModePayment {
		return nil, nil
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid &&
		sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusNoPaymentRequired {
		return nil, nil
	}

	ref := sess.ClientReferenceID
	if ref == "" {
		ref = sess.Metadata[checkout.MetadataOrderID]
	}
	orderID, err := parseOptionalUUID(ref)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order reference")
	}

	return &billing.Event{
		Provider: enums.PaymentProviderStripe,
		EventID:  eventID,
		Type:     enums.BillingEventTypeOneTimePaid,
		OneTime: &billing.OneTimePaid{
			OrderID:         orderID,
			ProviderOrderID: sess.ID,
		},
	}, nil
}

type subscriptionDetails struct {
	Subscription *stripe.Subscription `json:"subscription"`
	Metadata     map[string]string    `json:"metadata"`
}

// invoicePayload reads the invoice fields across API versions: newer versions
// nest the subscription under parent.subscription_details.
type invoicePayload struct {
	ID                  string               `json:"id"`
	Customer            *stripe.Customer     `json:"customer"`
	Subscription        *stripe.Subscription `json:"subscription"`
	SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	Parent              *struct {
		SubscriptionDetails *subscriptionDetails `json:"subscription_details"`
	} `json:"parent"`
	PeriodStart int64 `json:"period_start"`
	PeriodEnd   int64 `json:"period_end"`
	Lines       struct {
		Data []struct {
			Period struct {
				Start int64 `json:"start"`
				End   int64 `json:"end"`
			} `json:"period"`
		} `json:"data"`
	} `json:"lines"`
}

func (p *invoicePayload) subscription() (string, map[string]string) {
	var (
		id       string
		metadata map[string]string
	)
	if p.Parent != nil && p.Parent.SubscriptionDetails != nil {
		if p.Parent.SubscriptionDetails.Subscription != nil {
			id = p.Parent.SubscriptionDetails.Subscription.ID
		}
		metadata = p.Parent.SubscriptionDetails.Metadata
	}
	if id == "" && p.Subscription != nil {
		id = p.Subscription.ID
	}
	if len(metadata) == 0 && p.SubscriptionDetails != nil {
		metadata = p.SubscriptionDetails.Metadata
	}
	return id, metadata
}

// period prefers the line item service period over the invoice's own window.
func (p *invoicePayload) period() (time.Time, time.Time) {
	start, end := p.PeriodStart, p.PeriodEnd
	if len(p.Lines.Data) > 0 && p.Lines.Data[0].Period.Start > 0 {
		start, end = p.Lines.Data[0].Period.Start, p.Lines.Data[0].Period.End
	}
	return unixOrZero(start), unixOrZero(end)
}

func (s *Service) normalizeInvoice(eventID string, inv *invoicePayload) (*billing.Event, error) {
	subID, metadata := inv.subscription()
	if subID == "" {
		return nil, nil
	}

	userID, err := parseOptionalUUID(metadata[checkout.MetadataUserID])
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user reference")
	}
	orderID, err := parseOptionalUUID(metadata[checkout.MetadataOrderID])
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order reference")
	}
	product, ok := s.products.Resolve(metadata[checkout.MetadataProductCode], "")
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription product not recognized").
			WithDetails(map[string]any{"subscriptionId": subID})
	}

	start, end := inv.period()
	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}

	return &billing.Event{
		Provider: enums.PaymentProviderStripe,
		EventID:  eventID,
		Type:     enums.BillingEventTypeSubscriptionPeriodPaid,
		Period: &billing.SubscriptionPeriodPaid{
			UserID:                 userID,
			OrderID:                orderID,
			ProviderSubscriptionID: subID,
			ProviderCustomerID:     customerID,
			ProductID:              product.Code,
			Status:                 enums.SubscriptionStatusActive,
			PeriodStart:            start,
			PeriodEnd:              end,
			Credits:                product.Credits,
		},
	}, nil
}

func normalizeDeleted(eventID string, sub *stripe.Subscription) *billing.Event {
	ended := &billing.SubscriptionEnded{
		ProviderSubscriptionID: sub.ID,
		Status:                 endedStatus(sub.Status),
		EndedAt:                unixOrZero(sub.EndedAt),
	}
	if sub.CanceledAt > 0 {
		canceled := time.Unix(sub.CanceledAt, 0).UTC()
		ended.CanceledAt = &canceled
	}
	return &billing.Event{
		Provider: enums.PaymentProviderStripe,
		EventID:  eventID,
		Type:     enums.BillingEventTypeSubscriptionEnded,
		Ended:    ended,
	}
}

func endedStatus(status stripe.SubscriptionStatus) enums.SubscriptionStatus {
	if status == stripe.SubscriptionStatusIncompleteExpired {
		return enums.SubscriptionStatusExpired
	}
	return enums.SubscriptionStatusCanceled
}

func parseOptionalUUID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}

func unixOrZero(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
