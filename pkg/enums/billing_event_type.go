package enums

import "fmt"

// BillingEventType is the normalized webhook event kind.
type BillingEventType string

const (
	BillingEventTypeOneTimePaid            BillingEventType = "ONE_TIME_PAID"
	BillingEventTypeSubscriptionPeriodPaid BillingEventType = "SUBSCRIPTION_PERIOD_PAID"
	BillingEventTypeSubscriptionEnded      BillingEventType = "SUBSCRIPTION_ENDED"
)

var validBillingEventTypes = []BillingEventType{
	BillingEventTypeOneTimePaid,
	BillingEventTypeSubscriptionPeriodPaid,
	BillingEventTypeSubscriptionEnded,
}

// String implements fmt.Stringer.
func (s BillingEventType) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s BillingEventType) IsValid() bool {
	for _, candidate := range validBillingEventTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBillingEventType converts raw input into a BillingEventType.
func ParseBillingEventType(value string) (BillingEventType, error) {
	for _, candidate := range validBillingEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid billing event type %q", value)
}
