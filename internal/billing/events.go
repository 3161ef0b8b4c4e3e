package billing

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

// Event is a provider webhook normalized into one of three billing outcomes.
// Exactly one payload pointer matching Type is set.
type Event struct {
	Provider enums.PaymentProvider
	EventID  string
	Type     enums.BillingEventType

	OneTime *OneTimePaid
	Period  *SubscriptionPeriodPaid
	Ended   *SubscriptionEnded
}

// OneTimePaid settles a credit pack order. OrderID is the local order id when
// the provider echoes it back; ProviderOrderID is the provider's own id.
type OneTimePaid struct {
	OrderID         uuid.UUID
	ProviderOrderID string
	Credits         int64
}

type SubscriptionPeriodPaid struct {
	UserID                 uuid.UUID
	OrderID                uuid.UUID
	ProviderSubscriptionID string
	ProviderCustomerID     string
	ProductID              string
	Status                 enums.SubscriptionStatus
	PeriodStart            time.Time
	PeriodEnd              time.Time
	Credits                int64
}

type SubscriptionEnded struct {
	ProviderSubscriptionID string
	Status                 enums.SubscriptionStatus
	EndedAt                time.Time
	CanceledAt             *time.Time
}

// Result is returned to the webhook caller.
type Result struct {
	OK      bool `json:"ok"`
	Deduped bool `json:"deduped,omitempty"`
}

// PeriodKey is the ledger ref_id that makes a subscription period grant
// idempotent across distinct deliveries.
func PeriodKey(providerSubscriptionID string, periodStart time.Time) string {
	return fmt.Sprintf("%s:%s", providerSubscriptionID, periodStart.UTC().Format(time.RFC3339))
}

func (e Event) validate() error {
	if !e.Provider.IsValid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown payment provider")
	}
	if strings.TrimSpace(e.EventID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "event id is required")
	}
	switch e.Type {
	case enums.BillingEventTypeOneTimePaid:
		if e.OneTime == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "one-time payload is required")
		}
		if e.OneTime.OrderID == uuid.Nil && strings.TrimSpace(e.OneTime.ProviderOrderID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "order reference is required")
		}
	case enums.BillingEventTypeSubscriptionPeriodPaid:
		p := e.Period
		if p == nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription period payload is required")
		}
		if strings.TrimSpace(p.ProviderSubscriptionID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
		}
		if p.PeriodStart.IsZero() {
			return pkgerrors.New(pkgerrors.CodeValidation, "period start is required")
		}
	case enums.BillingEventTypeSubscriptionEnded:
		if e.Ended == nil || strings.TrimSpace(e.Ended.ProviderSubscriptionID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "subscription id is required")
		}
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, "unsupported billing event type").
			WithDetails(map[string]any{"type": string(e.Type)})
	}
	return nil
}
