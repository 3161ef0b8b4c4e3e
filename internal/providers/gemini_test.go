package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	"google.golang.org/genai"
)

func newTestGemini(t *testing.T, apiKey, model string, sizeSupported bool, rt roundTripFunc) *geminiAdapter {
	t.Helper()
	adapter, err := newGeminiAdapter(context.Background(), apiKey, "http://gemini.test", model, sizeSupported, clientFor(rt))
	if err != nil {
		t.Fatalf("newGeminiAdapter: %v", err)
	}
	return adapter
}

func TestGeminiGenerateRequestShape(t *testing.T) {
	var captured map[string]any
	var capturedURL, capturedKey string

	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		capturedURL = req.URL.String()
		capturedKey = req.Header.Get("x-goog-api-key")
		body, _ := io.ReadAll(req.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Fatalf("unmarshal request: %v", err)
		}
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"here you go"},{"inlineData":{"mimeType":"image/png","data":"`+pngB64+`"}}]}}]}`), nil
	})

	adapter := newTestGemini(t, "gm-key", "gemini-3-pro-image-preview", true, rt)
	result, err := adapter.Generate(context.Background(), Request{
		Prompt:          "a cat in a hat",
		ReferenceImages: []ReferenceImage{{Data: []byte("ref"), MimeType: "image/jpeg"}},
		AspectRatio:     "16:9",
		ImageSize:       "2K",
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !strings.HasPrefix(capturedURL, "http://gemini.test/v1beta/") ||
		!strings.HasSuffix(capturedURL, "models/gemini-3-pro-image-preview:generateContent") {
		t.Fatalf("unexpected url %q", capturedURL)
	}
	if capturedKey != "gm-key" {
		t.Fatalf("api key header missing")
	}
	if !bytes.Equal(result.Data, pngBytes) || result.MimeType != "image/png" {
		t.Fatalf("unexpected result %+v", result)
	}

	contents := captured["contents"].([]any)
	parts := contents[0].(map[string]any)["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected reference + text parts, got %d", len(parts))
	}
	if _, ok := parts[0].(map[string]any)["inlineData"]; !ok {
		t.Fatalf("expected inline reference first: %v", parts[0])
	}
	if parts[1].(map[string]any)["text"] != "a cat in a hat" {
		t.Fatalf("expected prompt last: %v", parts[1])
	}
	genCfg := captured["generationConfig"].(map[string]any)
	if mods := genCfg["responseModalities"].([]any); len(mods) != 1 || mods[0] != "IMAGE" {
		t.Fatalf("unexpected modalities %v", mods)
	}
	imgCfg := genCfg["imageConfig"].(map[string]any)
	if imgCfg["aspectRatio"] != "16:9" || imgCfg["imageSize"] != "2K" {
		t.Fatalf("unexpected image config %v", imgCfg)
	}
}

func TestGeminiFlashOmitsImageSize(t *testing.T) {
	var captured map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &captured)
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"`+pngB64+`"}}]}}]}`), nil
	})

	adapter := newTestGemini(t, "k", "gemini-2.5-flash-image", false, rt)
	if _, err := adapter.Generate(context.Background(), Request{Prompt: "p", ImageSize: "4K"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	imgCfg := captured["generationConfig"].(map[string]any)["imageConfig"].(map[string]any)
	if _, ok := imgCfg["imageSize"]; ok {
		t.Fatalf("flash model must not send imageSize: %v", imgCfg)
	}
}

func TestGeminiMissingImageIs502(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"I cannot draw that"}]}}]}`), nil
	})
	adapter := newTestGemini(t, "k", "gemini-2.5-flash-image", false, rt)

	_, err := adapter.Generate(context.Background(), Request{Prompt: "p"})
	var upstream *Error
	if !errors.As(err, &upstream) || upstream.Status != http.StatusBadGateway {
		t.Fatalf("expected 502 upstream error, got %v", err)
	}
}

func TestGeminiErrorNormalized(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusTooManyRequests, `{"error":{"code":429,"message":"Quota exceeded","status":"RESOURCE_EXHAUSTED"}}`), nil
	})
	adapter := newTestGemini(t, "k", "gemini-2.5-flash-image", false, rt)

	_, err := adapter.Generate(context.Background(), Request{Prompt: "p"})
	var upstream *Error
	if !errors.As(err, &upstream) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if upstream.Status != http.StatusTooManyRequests || upstream.Message != "RESOURCE_EXHAUSTED: Quota exceeded" {
		t.Fatalf("unexpected normalized error %+v", upstream)
	}
}

func TestGeminiGenerateText(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"text":"Hello "},{"text":"world"}]}}]}`), nil
	})
	adapter := newTestGemini(t, "k", "gemini-2.5-flash", false, rt)

	text, err := adapter.GenerateText(context.Background(), "say hi")
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("unexpected text %q", text)
	}
}

func TestGeminiHonorsContextDeadline(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})
	adapter := newTestGemini(t, "k", "gemini-2.5-flash-image", false, rt)

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()
	_, err := adapter.Generate(ctx, Request{Prompt: "p"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestGeminiHostedReferenceSentAsFileData(t *testing.T) {
	var captured map[string]any
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Host != "gemini.test" {
			t.Fatalf("reference must not be downloaded, got request to %s", req.URL.Host)
		}
		body, _ := io.ReadAll(req.Body)
		_ = json.Unmarshal(body, &captured)
		return jsonResponse(http.StatusOK, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"`+pngB64+`"}}]}}]}`), nil
	})
	adapter := newTestGemini(t, "k", "gemini-2.5-flash-image", false, rt)

	_, err := adapter.Generate(context.Background(), Request{
		Prompt:          "p",
		ReferenceImages: []ReferenceImage{{URL: "https://cdn.example.com/a.png", MimeType: "image/png"}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	parts := captured["contents"].([]any)[0].(map[string]any)["parts"].([]any)
	fileData, ok := parts[0].(map[string]any)["fileData"].(map[string]any)
	if !ok || fileData["fileUri"] != "https://cdn.example.com/a.png" {
		t.Fatalf("expected fileData reference, got %v", parts[0])
	}
}

func TestGeminiBlockedPromptIs400(t *testing.T) {
	rt := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"promptFeedback":{"blockReason":"SAFETY"}}`), nil
	})
	adapter := newTestGemini(t, "k", "gemini-2.5-flash-image", false, rt)

	_, err := adapter.Generate(context.Background(), Request{Prompt: "p"})
	var upstream *Error
	if !errors.As(err, &upstream) || upstream.Status != http.StatusBadRequest || upstream.Message != "prompt blocked: SAFETY" {
		t.Fatalf("expected blocked prompt error, got %v", err)
	}
}

func TestGeminiAPIErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantMsg    string
	}{
		{
			name:       "status and message",
			err:        genai.APIError{Code: 400, Message: "Invalid aspect ratio", Status: "INVALID_ARGUMENT"},
			wantStatus: http.StatusBadRequest,
			wantMsg:    "INVALID_ARGUMENT: Invalid aspect ratio",
		},
		{
			name:       "wrapped",
			err:        fmt.Errorf("generate: %w", genai.APIError{Code: 503, Message: "overloaded"}),
			wantStatus: http.StatusServiceUnavailable,
			wantMsg:    "overloaded",
		},
		{
			name:       "empty body falls back",
			err:        genai.APIError{Code: 500},
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "gemini request failed with status 500",
		},
		{
			name:       "non error code clamps",
			err:        genai.APIError{Code: 0, Message: "odd"},
			wantStatus: http.StatusBadGateway,
			wantMsg:    "odd",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := geminiAPIError(tt.err)
			if got == nil || got.Status != tt.wantStatus || got.Message != tt.wantMsg {
				t.Fatalf("unexpected mapping %+v", got)
			}
		})
	}
	if geminiAPIError(errors.New("dial tcp: refused")) != nil {
		t.Fatal("transport errors are not API errors")
	}
}
