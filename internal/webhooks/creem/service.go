// Package creemwebhook normalizes Creem webhook payloads into billing events.
package creemwebhook

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/internal/billing"
	"github.com/pixelmint/pixelmint-backend/internal/checkout"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
	"github.com/pixelmint/pixelmint-backend/pkg/metrics"
)

const (
	EventCheckoutCompleted    = "checkout.completed"
	EventSubscriptionPaid     = "subscription.paid"
	EventSubscriptionCanceled = "subscription.canceled"
	EventSubscriptionExpired  = "subscription.expired"
	provider                  = enums.PaymentProviderCreem
)

// Event is the Creem webhook envelope.
type Event struct {
	ID        string          `json:"id"`
	EventType string          `json:"eventType"`
	CreatedAt int64           `json:"created_at"`
	Object    json.RawMessage `json:"object"`
}

// ref is an expandable reference: either a bare id string or an object with id.
type ref struct {
	ID string `json:"id"`
}

func (r *ref) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &r.ID)
	}
	type plain ref
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = ref(p)
	return nil
}

type subscriptionObject struct {
	ID                     string            `json:"id"`
	Status                 string            `json:"status"`
	Customer               *ref              `json:"customer"`
	Product                *ref              `json:"product"`
	CurrentPeriodStartDate *time.Time        `json:"current_period_start_date"`
	CurrentPeriodEndDate   *time.Time        `json:"current_period_end_date"`
	CanceledAt             *time.Time        `json:"canceled_at"`
	Metadata               map[string]string `json:"metadata"`
}

type checkoutObject struct {
	ID           string            `json:"id"`
	RequestID    string            `json:"request_id"`
	Order        *ref              `json:"order"`
	Product      *ref              `json:"product"`
	Subscription *ref              `json:"subscription"`
	Metadata     map[string]string `json:"metadata"`
}

type billingProcessor interface {
	HandleBillingEvent(ctx context.Context, event billing.Event) (*billing.Result, error)
}

type ServiceParams struct {
	Processor billingProcessor
	Products  *checkout.ProductIndex
	Metrics   *metrics.BillingMetrics
	Logger    *logger.Logger
}

type Service struct {
	processor billingProcessor
	products  *checkout.ProductIndex
	metrics   *metrics.BillingMetrics
	logg      *logger.Logger
	now       func() time.Time
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
		now:       time.Now,
	}, nil
}

// HandlePayload decodes a verified webhook body and applies it.
func (s *Service) HandlePayload(ctx context.Context, payload []byte) (*billing.Result, error) {
	var event Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode creem event")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"provider":         provider.String(),
		"event_id":         event.ID,
		"creem_event_type": event.EventType,
	})

	normalized, err := s.Normalize(event)
	if err != nil {
		s.metrics.IncEvent(provider.String(), event.EventType, metrics.OutcomeRejected)
		s.logg.Error(ctx, "billing.event.rejected", err)
		return nil, err
	}
	if normalized == nil {
		s.metrics.IncEvent(provider.String(), event.EventType, metrics.OutcomeIgnored)
		s.logg.Debug(ctx, "billing.event.ignored")
		return &billing.Result{OK: true}, nil
	}
	return s.processor.HandleBillingEvent(ctx, *normalized)
}

// Normalize maps a Creem event to a billing event, or nil when it is not
// billable.
func (s *Service) Normalize(event Event) (*billing.Event, error) {
	switch event.EventType {
	case EventCheckoutCompleted:
		var obj checkoutObject
		if err := json.Unmarshal(event.Object, &obj); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout")
		}
		return normalizeCheckout(event.ID, &obj)
	case EventSubscriptionPaid:
		var obj subscriptionObject
		if err := json.Unmarshal(event.Object, &obj); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return s.normalizePaid(event.ID, &obj)
	case EventSubscriptionCanceled, EventSubscriptionExpired:
		var obj subscriptionObject
		if err := json.Unmarshal(event.Object, &obj); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode subscription")
		}
		return s.normalizeEnded(event, &obj), nil
	default:
		return nil, nil
	}
}

// Subscription checkouts are settled by subscription.paid.
func normalizeCheckout(eventID string, obj *checkoutObject) (*billing.Event, error) {
	if obj.Subscription != nil && obj.Subscription.ID != "" {
		return nil, nil
	}
	raw := obj.Metadata[checkout.MetadataOrderID]
	if raw == "" {
		raw = obj.RequestID
	}
	orderID, err := parseOptionalUUID(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order reference")
	}
	return &billing.Event{
		Provider: provider,
		EventID:  eventID,
		Type:     enums.BillingEventTypeOneTimePaid,
		OneTime: &billing.OneTimePaid{
			OrderID:         orderID,
			ProviderOrderID: obj.ID,
		},
	}, nil
}

func (s *Service) normalizePaid(eventID string, obj *subscriptionObject) (*billing.Event, error) {
	if obj.CurrentPeriodStartDate == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription period start missing")
	}
	userID, err := parseOptionalUUID(obj.Metadata[checkout.MetadataUserID])
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user reference")
	}
	orderID, err := parseOptionalUUID(obj.Metadata[checkout.MetadataOrderID])
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order reference")
	}
	productID := ""
	if obj.Product != nil {
		productID = obj.Product.ID
	}
	product, ok := s.products.Resolve(obj.Metadata[checkout.MetadataProductCode], productID)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subscription product not recognized").
			WithDetails(map[string]any{"subscriptionId": obj.ID, "productId": productID})
	}

	period := &billing.SubscriptionPeriodPaid{
		UserID:                 userID,
		OrderID:                orderID,
		ProviderSubscriptionID: obj.ID,
		ProductID:              product.Code,
		Status:                 liveStatus(obj.Status),
		PeriodStart:            obj.CurrentPeriodStartDate.UTC(),
		Credits:                product.Credits,
	}
	if obj.Customer != nil {
		period.ProviderCustomerID = obj.Customer.ID
	}
	if obj.CurrentPeriodEndDate != nil {
		period.PeriodEnd = obj.CurrentPeriodEndDate.UTC()
	}
	return &billing.Event{
		Provider: provider,
		EventID:  eventID,
		Type:     enums.BillingEventTypeSubscriptionPeriodPaid,
		Period:   period,
	}, nil
}

func (s *Service) normalizeEnded(event Event, obj *subscriptionObject) *billing.Event {
	ended := &billing.SubscriptionEnded{
		ProviderSubscriptionID: obj.ID,
		Status:                 enums.SubscriptionStatusCanceled,
		CanceledAt:             obj.CanceledAt,
	}
	if event.EventType == EventSubscriptionExpired {
		ended.Status = enums.SubscriptionStatusExpired
	}
	switch {
	case obj.CanceledAt != nil && ended.Status == enums.SubscriptionStatusCanceled:
		ended.EndedAt = obj.CanceledAt.UTC()
	case event.CreatedAt > 0:
		ended.EndedAt = time.UnixMilli(event.CreatedAt).UTC()
	default:
		ended.EndedAt = s.now().UTC()
	}
	return &billing.Event{
		Provider: provider,
		EventID:  event.ID,
		Type:     enums.BillingEventTypeSubscriptionEnded,
		Ended:    ended,
	}
}

func liveStatus(raw string) enums.SubscriptionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trialing":
		return enums.SubscriptionStatusTrialing
	case "past_due", "unpaid":
		return enums.SubscriptionStatusPastDue
	default:
		return enums.SubscriptionStatusActive
	}
}

func parseOptionalUUID(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, nil
	}
	return uuid.Parse(raw)
}
