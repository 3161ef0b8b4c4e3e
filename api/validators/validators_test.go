package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

type sampleRequest struct {
	Model       string `json:"model" validate:"required,model_key"`
	AspectRatio string `json:"aspectRatio" validate:"omitempty,aspect_ratio"`
}

func TestDecodeJSONBodyCustomTags(t *testing.T) {
	cases := []struct {
		name  string
		body  string
		valid bool
	}{
		{name: "ok", body: `{"model":"nano-banana","aspectRatio":"16:9"}`, valid: true},
		{name: "no ratio", body: `{"model":"seedream-4"}`, valid: true},
		{name: "mixed case key", body: `{"model":"Flux-Kontext-Pro"}`, valid: true},
		{name: "bad key", body: `{"model":"nano banana"}`},
		{name: "bad ratio", body: `{"model":"sora-image","aspectRatio":"wide"}`},
		{name: "zero ratio", body: `{"model":"sora-image","aspectRatio":"0:1"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
			var dest sampleRequest
			err := DecodeJSONBody(req, &dest)
			if tc.valid && err != nil {
				t.Fatalf("expected valid body, got %v", err)
			}
			if !tc.valid && !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	body := `{"model":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	var dest sampleRequest
	err := DecodeJSONBody(req, &dest)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if typed := pkgerrors.As(err); typed.Message() != "request body too large" {
		t.Fatalf("unexpected message %q", typed.Message())
	}
}

func TestNormalizePrompt(t *testing.T) {
	if got := NormalizePrompt("  a red\x00 fox\r\n on snow\t ", 0); got != "a red fox\n on snow" {
		t.Fatalf("unexpected prompt %q", got)
	}
	if got := NormalizePrompt("ñandú volando", 5); got != "ñandú" {
		t.Fatalf("expected rune-aware cut, got %q", got)
	}
}

func TestParseLimit(t *testing.T) {
	cases := map[string]struct {
		query   string
		want    int
		wantErr bool
	}{
		"default":  {query: "", want: 20},
		"explicit": {query: "?limit=7", want: 7},
		"too big":  {query: "?limit=101", wantErr: true},
		"zero":     {query: "?limit=0", wantErr: true},
		"garbage":  {query: "?limit=ten", wantErr: true},
	}
	for name, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/credits"+tc.query, nil)
		got, err := ParseLimit(req, 20, 100)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("%s: expected error", name)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("%s: got %d err %v", name, got, err)
		}
	}
}

func TestParseUUIDParam(t *testing.T) {
	routeCtx := chi.NewRouteContext()
	routeCtx.URLParams.Add("jobId", "not-a-uuid")
	req := httptest.NewRequest(http.MethodGet, "/api/image/jobs/not-a-uuid", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	if _, err := ParseUUIDParam(req, "jobId"); !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
