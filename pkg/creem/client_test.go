package creem

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/pixelmint/pixelmint-backend/pkg/config"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func respond(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func TestCreateCheckout(t *testing.T) {
	var captured CheckoutRequest
	client, err := NewClient(config.CreemConfig{APIKey: "creem_test", BaseURL: "https://api.creem.test/"},
		WithHTTPClient(&http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.String() != "https://api.creem.test/v1/checkouts" {
				t.Fatalf("unexpected url %s", req.URL)
			}
			if req.Header.Get("x-api-key") != "creem_test" {
				t.Fatalf("missing api key header")
			}
			raw, _ := io.ReadAll(req.Body)
			if err := json.Unmarshal(raw, &captured); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			return respond(http.StatusOK, `{"id":"ch_1","checkout_url":"https://checkout.creem.test/ch_1","status":"pending"}`), nil
		})}))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	out, err := client.CreateCheckout(context.Background(), CheckoutRequest{
		ProductID: "prod_1",
		RequestID: "order-1",
		Metadata:  map[string]string{"order_id": "order-1"},
	})
	if err != nil {
		t.Fatalf("CreateCheckout: %v", err)
	}
	if out.ID != "ch_1" || out.CheckoutURL != "https://checkout.creem.test/ch_1" {
		t.Fatalf("unexpected checkout %+v", out)
	}
	if captured.ProductID != "prod_1" || captured.Metadata["order_id"] != "order-1" {
		t.Fatalf("unexpected request %+v", captured)
	}
}

func TestCreateCheckoutAPIError(t *testing.T) {
	client, _ := NewClient(config.CreemConfig{APIKey: "k", BaseURL: "https://api.creem.test"},
		WithHTTPClient(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
			return respond(http.StatusBadRequest, `{"message":["product_id must be a string"]}`), nil
		})}))

	_, err := client.CreateCheckout(context.Background(), CheckoutRequest{})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message != "product_id must be a string" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(config.CreemConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"id":"evt_1"}`)
	sig := Sign(payload, "whsec")

	if err := VerifySignature(payload, sig, "whsec"); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := VerifySignature(payload, strings.ToUpper(sig), "whsec"); err != nil {
		t.Fatalf("case-insensitive hex rejected: %v", err)
	}
	if err := VerifySignature([]byte(`{"id":"evt_2"}`), sig, "whsec"); !errors.Is(err, ErrBadSignature) {
		t.Fatalf("expected mismatch, got %v", err)
	}
	if err := VerifySignature(payload, sig, ""); err == nil {
		t.Fatal("expected error without secret")
	}
}
