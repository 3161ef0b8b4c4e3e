package enums

import "fmt"

// OrderType distinguishes credit packs from recurring plans.
type OrderType string

const (
	OrderTypeOneTime      OrderType = "one_time"
	OrderTypeSubscription OrderType = "subscription"
)

var validOrderTypes = []OrderType{
	OrderTypeOneTime,
	OrderTypeSubscription,
}

// String implements fmt.Stringer.
func (s OrderType) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s OrderType) IsValid() bool {
	for _, candidate := range validOrderTypes {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseOrderType converts raw input into a OrderType.
func ParseOrderType(value string) (OrderType, error) {
	for _, candidate := range validOrderTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order type %q", value)
}
