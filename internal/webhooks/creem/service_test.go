package creemwebhook_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pixelmint/pixelmint-backend/internal/billing"
	"github.com/pixelmint/pixelmint-backend/internal/checkout"
	"github.com/pixelmint/pixelmint-backend/internal/credits"
	creemwebhook "github.com/pixelmint/pixelmint-backend/internal/webhooks/creem"
	"github.com/pixelmint/pixelmint-backend/pkg/db"
	"github.com/pixelmint/pixelmint-backend/pkg/db/dbtest"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
)

func newService(t *testing.T) (*creemwebhook.Service, *db.Client) {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	ledger, err := credits.NewService(credits.NewRepository(client.DB()), client)
	require.NoError(t, err)
	proc, err := billing.NewProcessor(billing.ProcessorParams{
		Repo:              billing.NewRepository(client.DB()),
		Ledger:            ledger,
		TransactionRunner: client,
		Logger:            logg,
	})
	require.NoError(t, err)

	svc, err := creemwebhook.NewService(creemwebhook.ServiceParams{
		Processor: proc,
		Products:  checkout.NewProductIndex(checkout.DefaultCatalog(), map[string]string{"sub_basic": "prod_basic"}),
		Logger:    logg,
	})
	require.NoError(t, err)
	return svc, client
}

func seedOrder(t *testing.T, client *db.Client, userID uuid.UUID, orderType enums.OrderType, productCode string, credits int64) models.Order {
	t.Helper()
	order := models.Order{
		ID:              uuid.New(),
		UserID:          userID,
		Provider:        enums.PaymentProviderCreem,
		ProviderOrderID: "ch_1",
		Type:            orderType,
		ProductID:       productCode,
		Status:          enums.OrderStatusCreated,
		AmountCents:     990,
		Currency:        "USD",
		Credits:         credits,
	}
	require.NoError(t, client.DB().Create(&order).Error)
	return order
}

func TestCheckoutCompletedGrantsOnce(t *testing.T) {
	svc, client := newService(t)
	user := dbtest.SeedUser(t, client, 0)
	order := seedOrder(t, client, user.ID, enums.OrderTypeOneTime, "pack_small", 800)

	payload := []byte(`{"id":"evt_123","eventType":"checkout.completed","created_at":1772323200000,"object":{
		"id":"ch_1","request_id":"` + order.ID.String() + `","order":{"id":"ord_1"},
		"product":{"id":"prod_small"},"customer":{"id":"cust_1","email":"a@b.c"},
		"metadata":{"order_id":"` + order.ID.String() + `"}}}`)

	res, err := svc.HandlePayload(context.Background(), payload)
	require.NoError(t, err)
	assert.Equal(t, &billing.Result{OK: true}, res)

	res, err = svc.HandlePayload(context.Background(), payload)
	require.NoError(t, err)
	assert.True(t, res.Deduped)

	assert.Equal(t, int64(800), dbtest.Balance(t, client, user.ID))
	assert.Equal(t, int64(800), dbtest.LedgerSum(t, client, user.ID))

	var stored models.Order
	require.NoError(t, client.DB().First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
}

func TestSubscriptionPaidRecordsPeriod(t *testing.T) {
	svc, client := newService(t)
	user := dbtest.SeedUser(t, client, 0)
	order := seedOrder(t, client, user.ID, enums.OrderTypeSubscription, "sub_basic", 1200)

	paid := func(eventID, start, end string) []byte {
		return []byte(`{"id":"` + eventID + `","eventType":"subscription.paid","object":{
			"id":"sub_c1","status":"active","customer":"cust_9","product":{"id":"prod_basic"},
			"current_period_start_date":"` + start + `","current_period_end_date":"` + end + `",
			"metadata":{"user_id":"` + user.ID.String() + `","order_id":"` + order.ID.String() + `"}}}`)
	}

	_, err := svc.HandlePayload(context.Background(), paid("evt_p1", "2026-03-01T00:00:00.000Z", "2026-04-01T00:00:00.000Z"))
	require.NoError(t, err)
	// A distinct delivery of the same period must not grant twice.
	_, err = svc.HandlePayload(context.Background(), paid("evt_p1_retry", "2026-03-01T00:00:00.000Z", "2026-04-01T00:00:00.000Z"))
	require.NoError(t, err)
	assert.Equal(t, int64(1200), dbtest.Balance(t, client, user.ID))

	_, err = svc.HandlePayload(context.Background(), paid("evt_p2", "2026-04-01T00:00:00.000Z", "2026-05-01T00:00:00.000Z"))
	require.NoError(t, err)
	assert.Equal(t, int64(2400), dbtest.Balance(t, client, user.ID))

	var sub models.Subscription
	require.NoError(t, client.DB().First(&sub, "provider_subscription_id = ?", "sub_c1").Error)
	assert.Equal(t, enums.SubscriptionStatusActive, sub.Status)
	assert.Equal(t, "sub_basic", sub.ProductID)
	require.NotNil(t, sub.ProviderCustomerID)
	assert.Equal(t, "cust_9", *sub.ProviderCustomerID)

	var stored models.Order
	require.NoError(t, client.DB().First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, enums.OrderStatusPaid, stored.Status)
}

func TestSubscriptionExpiredEnds(t *testing.T) {
	svc, client := newService(t)
	user := dbtest.SeedUser(t, client, 0)
	start := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, client.DB().Create(&models.Subscription{
		UserID:                 user.ID,
		Provider:               enums.PaymentProviderCreem,
		ProviderSubscriptionID: "sub_c2",
		Status:                 enums.SubscriptionStatusActive,
		CurrentPeriodStart:     &start,
	}).Error)

	_, err := svc.HandlePayload(context.Background(), []byte(`{"id":"evt_e1","eventType":"subscription.expired","created_at":1775001600000,"object":{"id":"sub_c2","status":"expired"}}`))
	require.NoError(t, err)

	var sub models.Subscription
	require.NoError(t, client.DB().First(&sub, "provider_subscription_id = ?", "sub_c2").Error)
	assert.Equal(t, enums.SubscriptionStatusExpired, sub.Status)
	require.NotNil(t, sub.EndedAt)
	assert.Equal(t, int64(1775001600), sub.EndedAt.Unix())
}

func TestNormalize(t *testing.T) {
	svc, _ := newService(t)

	ev, err := svc.Normalize(creemwebhook.Event{ID: "evt_s", EventType: "checkout.completed",
		Object: []byte(`{"id":"ch_2","subscription":{"id":"sub_x"}}`)})
	require.NoError(t, err)
	assert.Nil(t, ev, "subscription checkouts settle via subscription.paid")

	ev, err = svc.Normalize(creemwebhook.Event{ID: "evt_r", EventType: "refund.created", Object: []byte(`{}`)})
	require.NoError(t, err)
	assert.Nil(t, ev)

	_, err = svc.Normalize(creemwebhook.Event{ID: "evt_np", EventType: "subscription.paid", Object: []byte(`{"id":"sub_y"}`)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = svc.Normalize(creemwebhook.Event{ID: "evt_up", EventType: "subscription.paid",
		Object: []byte(`{"id":"sub_z","product":"prod_gold","current_period_start_date":"2026-03-01T00:00:00Z"}`)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	canceledAt := "2026-03-15T10:00:00Z"
	ev, err = svc.Normalize(creemwebhook.Event{ID: "evt_c", EventType: "subscription.canceled",
		Object: []byte(`{"id":"sub_c3","canceled_at":"` + canceledAt + `"}`)})
	require.NoError(t, err)
	assert.Equal(t, enums.SubscriptionStatusCanceled, ev.Ended.Status)
	assert.Equal(t, canceledAt, ev.Ended.EndedAt.Format(time.RFC3339))
	require.NotNil(t, ev.Ended.CanceledAt)
}

func TestHandlePayloadRejectsGarbage(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.HandlePayload(context.Background(), []byte(`not json`))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
