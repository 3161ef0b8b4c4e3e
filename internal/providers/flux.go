package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
)

type imagesRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	AspectRatio    string   `json:"aspect_ratio,omitempty"`
	Size           string   `json:"size,omitempty"`
	Image          []string `json:"image,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Watermark      *bool    `json:"watermark,omitempty"`
	N              int      `json:"n,omitempty"`
}

type imagesResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

// firstImage returns the first b64_json or url entry.
func (r imagesResponse) firstImage(provider string) (*ImageResult, error) {
	for _, item := range r.Data {
		if item.B64JSON != "" {
			data, err := base64.StdEncoding.DecodeString(item.B64JSON)
			if err != nil || len(data) == 0 {
				return nil, &Error{Message: provider + " returned an undecodable image", Status: http.StatusBadGateway}
			}
			return &ImageResult{Data: data, MimeType: http.DetectContentType(data)}, nil
		}
		if item.URL != "" {
			return &ImageResult{URL: item.URL}, nil
		}
	}
	return nil, errNoImage(provider)
}

// fluxAdapter edits when reference images are supplied and generates otherwise.
type fluxAdapter struct {
	transport
	apiKey string
	model  string
}

func newFluxAdapter(apiKey, baseURL, model string, opts ...Option) *fluxAdapter {
	return &fluxAdapter{
		transport: newTransport(baseURL, normalizeFluxError, opts...),
		apiKey:    apiKey,
		model:     model,
	}
}

func (a *fluxAdapter) Name() string { return "flux:" + a.model }

func (a *fluxAdapter) Generate(ctx context.Context, req Request) (*ImageResult, error) {
	if len(req.ReferenceImages) > 0 {
		return a.edit(ctx, req)
	}

	payload := imagesRequest{
		Model:       a.model,
		Prompt:      req.Prompt,
		AspectRatio: req.AspectRatio,
		N:           1,
	}
	var resp imagesResponse
	if err := a.postJSON(ctx, "v1/images/generations", a.headers(), payload, &resp); err != nil {
		return nil, err
	}
	return resp.firstImage("flux")
}

func (a *fluxAdapter) edit(ctx context.Context, req Request) (*ImageResult, error) {
	var body bytes.Buffer
	form := multipart.NewWriter(&body)

	fields := map[string]string{"model": a.model, "prompt": req.Prompt}
	if req.AspectRatio != "" {
		fields["aspect_ratio"] = req.AspectRatio
	}
	for k, v := range fields {
		if err := form.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write form field: %w", err)
		}
	}

	for i, ref := range req.ReferenceImages {
		inline, err := a.fetch(ctx, ref)
		if err != nil {
			return nil, err
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="reference-%d"`, i))
		header.Set("Content-Type", inline.MimeType)
		part, err := form.CreatePart(header)
		if err != nil {
			return nil, fmt.Errorf("create image part: %w", err)
		}
		if _, err := part.Write(inline.Data); err != nil {
			return nil, fmt.Errorf("write image part: %w", err)
		}
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("close form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url("v1/images/edits"), &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", form.FormDataContentType())
	for k, v := range a.headers() {
		httpReq.Header.Set(k, v)
	}

	var resp imagesResponse
	if err := a.do(httpReq, &resp); err != nil {
		return nil, err
	}
	return resp.firstImage("flux")
}

func (a *fluxAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}
