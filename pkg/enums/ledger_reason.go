package enums

import "fmt"

// LedgerReason classifies a credit_ledger entry.
type LedgerReason string

const (
	LedgerReasonGenerationCharge     LedgerReason = "generation_charge"
	LedgerReasonGenerationRefund     LedgerReason = "generation_refund"
	LedgerReasonTextGenerationCharge LedgerReason = "text_generation_charge"
	LedgerReasonTextGenerationRefund LedgerReason = "text_generation_refund"
	LedgerReasonOneTimeGrant         LedgerReason = "one_time_grant"
	LedgerReasonSubscriptionGrant    LedgerReason = "subscription_grant"
)

var validLedgerReasons = []LedgerReason{
	LedgerReasonGenerationCharge,
	LedgerReasonGenerationRefund,
	LedgerReasonTextGenerationCharge,
	LedgerReasonTextGenerationRefund,
	LedgerReasonOneTimeGrant,
	LedgerReasonSubscriptionGrant,
}

// String implements fmt.Stringer.
func (s LedgerReason) String() string {
	return string(s)
}

// IsValid reports whether the value is known.
func (s LedgerReason) IsValid() bool {
	for _, candidate := range validLedgerReasons {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLedgerReason converts raw input into a LedgerReason.
func ParseLedgerReason(value string) (LedgerReason, error) {
	for _, candidate := range validLedgerReasons {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger reason %q", value)
}
