package stripewebhook

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/pixelmint/pixelmint-backend/internal/billing"
	"github.com/pixelmint/pixelmint-backend/internal/checkout"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

type recordingProcessor struct {
	events []billing.Event
}

func (r *recordingProcessor) HandleBillingEvent(_ context.Context, event billing.Event) (*billing.Result, error) {
	r.events = append(r.events, event)
	return &billing.Result{OK: true}, nil
}

func newTestService(t *testing.T) (*Service, *recordingProcessor) {
	t.Helper()
	proc := &recordingProcessor{}
	svc, err := NewService(ServiceParams{
		Processor: proc,
		Products:  checkout.NewProductIndex(checkout.DefaultCatalog(), nil),
		Logger:    logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
	})
	if err != nil {
		t.Fatalf("setup service: %v", err)
	}
	return svc, proc
}

func eventOf(t *testing.T, id string, typ stripe.EventType, object string) *stripe.Event {
	t.Helper()
	if !json.Valid([]byte(object)) {
		t.Fatalf("invalid fixture json for %s", id)
	}
	return &stripe.Event{ID: id, Type: typ, Data: &stripe.EventData{Raw: json.RawMessage(object)}}
}

func TestCheckoutCompletedPaymentMode(t *testing.T) {
	svc, proc := newTestService(t)
	orderID := uuid.New()

	res, err := svc.HandleEvent(context.Background(), eventOf(t, "evt_1", stripe.EventTypeCheckoutSessionCompleted,
		`{"id":"cs_test_1","object":"checkout.session","mode":"payment","payment_status":"paid","client_reference_id":"`+orderID.String()+`"}`))
	if err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if !res.OK || len(proc.events) != 1 {
		t.Fatalf("expected one forwarded event, got %d", len(proc.events))
	}
	got := proc.events[0]
	if got.Type != enums.BillingEventTypeOneTimePaid || got.Provider != enums.PaymentProviderStripe || got.EventID != "evt_1" {
		t.Fatalf("unexpected event %+v", got)
	}
	if got.OneTime.OrderID != orderID || got.OneTime.ProviderOrderID != "cs_test_1" {
		t.Fatalf("unexpected payload %+v", got.OneTime)
	}
}

func TestCheckoutCompletedFallsBackToMetadata(t *testing.T) {
	svc, _ := newTestService(t)
	orderID := uuid.New()

	ev, err := svc.Normalize(eventOf(t, "evt_2", stripe.EventTypeCheckoutSessionCompleted,
		`{"id":"cs_2","mode":"payment","payment_status":"paid","metadata":{"order_id":"`+orderID.String()+`"}}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.OneTime.OrderID != orderID {
		t.Fatalf("expected metadata order id, got %s", ev.OneTime.OrderID)
	}
}

func TestCheckoutCompletedIgnoredCases(t *testing.T) {
	svc, proc := newTestService(t)
	cases := map[string]string{
		"subscription mode": `{"id":"cs_3","mode":"subscription","payment_status":"paid"}`,
		"unpaid":            `{"id":"cs_4","mode":"payment","payment_status":"unpaid"}`,
	}
	for name, object := range cases {
		res, err := svc.HandleEvent(context.Background(), eventOf(t, "evt_"+name, stripe.EventTypeCheckoutSessionCompleted, object))
		if err != nil || !res.OK {
			t.Fatalf("%s: expected ok ack, got %v", name, err)
		}
	}
	res, err := svc.HandleEvent(context.Background(), eventOf(t, "evt_other", "payment_intent.created", `{"id":"pi_1"}`))
	if err != nil || !res.OK {
		t.Fatalf("unhandled type should be acknowledged: %v", err)
	}
	if len(proc.events) != 0 {
		t.Fatalf("ignored events must not reach the processor")
	}
}

func TestCheckoutCompletedBadReference(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.HandleEvent(context.Background(), eventOf(t, "evt_bad", stripe.EventTypeCheckoutSessionCompleted,
		`{"id":"cs_5","mode":"payment","payment_status":"paid","client_reference_id":"not-a-uuid"}`))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestInvoicePaidNestedSubscription(t *testing.T) {
	svc, _ := newTestService(t)
	userID, orderID := uuid.New(), uuid.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	object := `{
		"id":"in_1","customer":"cus_1",
		"period_start":1,"period_end":2,
		"parent":{"subscription_details":{"subscription":"sub_1","metadata":{
			"user_id":"` + userID.String() + `","order_id":"` + orderID.String() + `","product_code":"sub_basic"}}},
		"lines":{"data":[{"period":{"start":` + itoa(start.Unix()) + `,"end":` + itoa(end.Unix()) + `}}]}
	}`
	ev, err := svc.Normalize(eventOf(t, "evt_inv", stripe.EventTypeInvoicePaid, object))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	p := ev.Period
	if ev.Type != enums.BillingEventTypeSubscriptionPeriodPaid || p == nil {
		t.Fatalf("unexpected event %+v", ev)
	}
	if p.ProviderSubscriptionID != "sub_1" || p.ProviderCustomerID != "cus_1" {
		t.Fatalf("unexpected refs %+v", p)
	}
	if p.UserID != userID || p.OrderID != orderID || p.Credits != 1200 || p.ProductID != "sub_basic" {
		t.Fatalf("unexpected payload %+v", p)
	}
	if !p.PeriodStart.Equal(start) || !p.PeriodEnd.Equal(end) {
		t.Fatalf("expected line period, got %s - %s", p.PeriodStart, p.PeriodEnd)
	}
}

func TestInvoicePaidLegacyShape(t *testing.T) {
	svc, _ := newTestService(t)
	userID := uuid.New()

	ev, err := svc.Normalize(eventOf(t, "evt_legacy", stripe.EventTypeInvoicePaid, `{
		"id":"in_2","subscription":"sub_2","period_start":1772323200,"period_end":1775001600,
		"subscription_details":{"metadata":{"user_id":"`+userID.String()+`","product_code":"sub_pro"}}
	}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.Period.ProviderSubscriptionID != "sub_2" || ev.Period.Credits != 4000 {
		t.Fatalf("unexpected payload %+v", ev.Period)
	}
	if ev.Period.PeriodStart.Unix() != 1772323200 {
		t.Fatalf("expected invoice period fallback, got %s", ev.Period.PeriodStart)
	}
}

func TestInvoicePaidWithoutSubscriptionIgnored(t *testing.T) {
	svc, _ := newTestService(t)
	ev, err := svc.Normalize(eventOf(t, "evt_one_off", stripe.EventTypeInvoicePaid, `{"id":"in_3"}`))
	if err != nil || ev != nil {
		t.Fatalf("expected ignored invoice, got %+v %v", ev, err)
	}
}

func TestInvoicePaidUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Normalize(eventOf(t, "evt_unknown", stripe.EventTypeInvoicePaid,
		`{"id":"in_4","subscription":"sub_4","subscription_details":{"metadata":{"product_code":"sub_gold"}}}`))
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestSubscriptionDeleted(t *testing.T) {
	svc, _ := newTestService(t)

	ev, err := svc.Normalize(eventOf(t, "evt_del", stripe.EventTypeCustomerSubscriptionDeleted,
		`{"id":"sub_9","object":"subscription","status":"canceled","ended_at":1775001600,"canceled_at":1774000000}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	e := ev.Ended
	if ev.Type != enums.BillingEventTypeSubscriptionEnded || e.ProviderSubscriptionID != "sub_9" {
		t.Fatalf("unexpected event %+v", ev)
	}
	if e.Status != enums.SubscriptionStatusCanceled || e.EndedAt.Unix() != 1775001600 {
		t.Fatalf("unexpected ended payload %+v", e)
	}
	if e.CanceledAt == nil || e.CanceledAt.Unix() != 1774000000 {
		t.Fatalf("expected canceled_at")
	}

	ev, err = svc.Normalize(eventOf(t, "evt_exp", stripe.EventTypeCustomerSubscriptionDeleted,
		`{"id":"sub_10","status":"incomplete_expired"}`))
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if ev.Ended.Status != enums.SubscriptionStatusExpired || !ev.Ended.EndedAt.IsZero() {
		t.Fatalf("unexpected expired payload %+v", ev.Ended)
	}
}

func TestHandleEventRequiresData(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.HandleEvent(context.Background(), &stripe.Event{ID: "evt"}); err == nil {
		t.Fatal("expected error for event without data")
	}
}

func itoa(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
