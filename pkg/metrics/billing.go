package metrics

import "github.com/prometheus/client_golang/prometheus"

// Webhook outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeDeduped  = "deduped"
	OutcomeIgnored  = "ignored"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// BillingMetrics records payment webhook processing.
type BillingMetrics struct {
	events *prometheus.CounterVec
	grants *prometheus.CounterVec
}

func NewBillingMetrics(reg prometheus.Registerer) *BillingMetrics {
	if reg == nil {
		return &BillingMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "billing_webhook_events_total",
		Help: "Payment webhook events by provider, type and outcome.",
	}, []string{"provider", "type", "outcome"})
	grants := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "credit_grants_total",
		Help: "Credits granted from payments by ledger reason.",
	}, []string{"reason"})
	reg.MustRegister(events, grants)
	return &BillingMetrics{events: events, grants: grants}
}

func (b *BillingMetrics) IncEvent(provider, eventType, outcome string) {
	if b == nil || b.events == nil {
		return
	}
	b.events.WithLabelValues(normalizeLabel(provider), normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// AddGranted adds granted credits for a ledger reason.
func (b *BillingMetrics) AddGranted(reason string, credits int64) {
	if b == nil || b.grants == nil || credits <= 0 {
		return
	}
	b.grants.WithLabelValues(normalizeLabel(reason)).Add(float64(credits))
}
