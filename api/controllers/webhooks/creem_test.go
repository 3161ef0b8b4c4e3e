package webhooks

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pixelmint/pixelmint-backend/internal/billing"
	"github.com/pixelmint/pixelmint-backend/pkg/creem"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

const testCreemSecret = "creem_whsec"

type fakeCreemService struct {
	payloads [][]byte
	err      error
}

func (f *fakeCreemService) HandlePayload(_ context.Context, payload []byte) (*billing.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.payloads = append(f.payloads, payload)
	return &billing.Result{OK: true}, nil
}

func postCreem(handler http.Handler, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/creem", bytes.NewReader(payload))
	if signature != "" {
		req.Header.Set(creem.SignatureHeader, signature)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreemWebhook_ValidSignature(t *testing.T) {
	payload := []byte(`{"id":"evt_123","eventType":"checkout.completed","object":{}}`)
	svc := &fakeCreemService{}
	handler := CreemWebhook(svc, testCreemSecret, testLogger())

	rec := postCreem(handler, payload, creem.Sign(payload, testCreemSecret))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if len(svc.payloads) != 1 || !bytes.Equal(svc.payloads[0], payload) {
		t.Fatalf("raw payload should reach the service untouched")
	}
	if body := decodeResult(t, rec); !body.OK {
		t.Fatalf("unexpected result %+v", body)
	}
}

func TestCreemWebhook_RejectsTamperedBody(t *testing.T) {
	payload := []byte(`{"id":"evt_123","eventType":"checkout.completed"}`)
	signature := creem.Sign(payload, testCreemSecret)
	svc := &fakeCreemService{}
	handler := CreemWebhook(svc, testCreemSecret, nil)

	rec := postCreem(handler, []byte(`{"id":"evt_999","eventType":"checkout.completed"}`), signature)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if len(svc.payloads) != 0 {
		t.Fatalf("service should not run")
	}
}

func TestCreemWebhook_MissingSignatureOrSecret(t *testing.T) {
	payload := []byte(`{}`)
	if rec := postCreem(CreemWebhook(&fakeCreemService{}, testCreemSecret, nil), payload, ""); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without signature, got %d", rec.Code)
	}
	if rec := postCreem(CreemWebhook(&fakeCreemService{}, "", nil), payload, "abc"); rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 without secret, got %d", rec.Code)
	}
}

func TestCreemWebhook_NormalizationErrorSurfaces(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	svc := &fakeCreemService{err: pkgerrors.New(pkgerrors.CodeValidation, "unknown product")}
	rec := postCreem(CreemWebhook(svc, testCreemSecret, nil), payload, creem.Sign(payload, testCreemSecret))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
