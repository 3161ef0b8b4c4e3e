package providers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"google.golang.org/genai"
)

const geminiAPIVersion = "v1beta"

// geminiAdapter drives the generateContent API for image and text models
// through the genai SDK. Upstream failures arrive as genai.APIError and are
// mapped into *Error.
type geminiAdapter struct {
	client        *genai.Client
	model         string
	sizeSupported bool
}

func newGeminiAdapter(ctx context.Context, apiKey, baseURL, model string, sizeSupported bool, opts ...Option) (*geminiAdapter, error) {
	t := newTransport(baseURL, nil, opts...)
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: t.httpClient,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    t.baseURL,
			APIVersion: geminiAPIVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client for %s: %w", model, err)
	}
	return &geminiAdapter{client: client, model: model, sizeSupported: sizeSupported}, nil
}

func (a *geminiAdapter) Name() string { return "gemini:" + a.model }

func (a *geminiAdapter) Generate(ctx context.Context, req Request) (*ImageResult, error) {
	parts := make([]*genai.Part, 0, len(req.ReferenceImages)+1)
	for _, ref := range req.ReferenceImages {
		if ref.Inline() {
			parts = append(parts, genai.NewPartFromBytes(ref.Data, ref.MimeType))
			continue
		}
		parts = append(parts, genai.NewPartFromURI(ref.URL, ref.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(req.Prompt))

	imageConfig := &genai.ImageConfig{AspectRatio: req.AspectRatio}
	if a.sizeSupported && req.ImageSize != "" {
		imageConfig.ImageSize = string(req.ImageSize)
	}

	resp, err := a.call(ctx, parts, &genai.GenerateContentConfig{
		ResponseModalities: []string{"IMAGE"},
		ImageConfig:        imageConfig,
	})
	if err != nil {
		return nil, err
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, &Error{Message: "prompt blocked: " + string(resp.PromptFeedback.BlockReason), Status: http.StatusBadRequest}
		}
		return nil, errNoImage("gemini")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
			continue
		}
		return &ImageResult{Data: part.InlineData.Data, MimeType: part.InlineData.MIMEType}, nil
	}
	return nil, errNoImage("gemini")
}

func (a *geminiAdapter) GenerateText(ctx context.Context, prompt string) (string, error) {
	resp, err := a.call(ctx, []*genai.Part{genai.NewPartFromText(prompt)}, nil)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil || part.Thought {
				continue
			}
			sb.WriteString(part.Text)
		}
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return "", &Error{Message: "gemini returned no text", Status: http.StatusBadGateway}
	}
	return text, nil
}

func (a *geminiAdapter) call(ctx context.Context, parts []*genai.Part, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}
	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, cfg)
	if err != nil {
		if upstream := geminiAPIError(err); upstream != nil {
			return nil, upstream
		}
		return nil, fmt.Errorf("gemini generateContent: %w", err)
	}
	return resp, nil
}

// geminiAPIError maps the SDK's error into *Error, keeping the
// "STATUS: message" form used for every Google error body.
func geminiAPIError(err error) *Error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		var apiErrPtr *genai.APIError
		if !errors.As(err, &apiErrPtr) || apiErrPtr == nil {
			return nil
		}
		apiErr = *apiErrPtr
	}
	msg := strings.TrimSpace(apiErr.Message)
	if msg != "" && apiErr.Status != "" {
		msg = apiErr.Status + ": " + msg
	}
	return &Error{
		Message: truncate(fallbackMessage("gemini", apiErr.Code, msg), maxErrorMessageLen),
		Status:  normalizeStatus(apiErr.Code),
	}
}
