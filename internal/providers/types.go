// Package providers adapts upstream image and text models behind one
// capability. Adapters are selected through a closed model_key registry and
// every upstream failure is normalized into *Error before it leaves here.
package providers

import (
	"context"
	"encoding/base64"
	"fmt"
	"mime"
	"strings"

	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

// ReferenceImage is either inline bytes or a hosted URL.
type ReferenceImage struct {
	Data     []byte
	MimeType string
	URL      string
}

func (r ReferenceImage) Inline() bool {
	return len(r.Data) > 0
}

// DataURL renders inline bytes as a data: URL, or returns the hosted URL.
func (r ReferenceImage) DataURL() string {
	if !r.Inline() {
		return r.URL
	}
	return fmt.Sprintf("data:%s;base64,%s", r.MimeType, base64.StdEncoding.EncodeToString(r.Data))
}

// ParseReferenceImage accepts a base64 data URL or an absolute http(s) URL.
func ParseReferenceImage(raw string) (ReferenceImage, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "data:") {
		data, mimeType, err := decodeDataURL(raw)
		if err != nil {
			return ReferenceImage{}, err
		}
		return ReferenceImage{Data: data, MimeType: mimeType}, nil
	}
	if _, err := checkReferenceURL(raw); err != nil {
		return ReferenceImage{}, err
	}
	return ReferenceImage{URL: raw}, nil
}

// Request is the provider-agnostic generation input.
type Request struct {
	Prompt          string
	ReferenceImages []ReferenceImage
	AspectRatio     string
	ImageSize       enums.ImageSize
}

// ImageResult carries decoded bytes, a hosted URL, or both.
type ImageResult struct {
	Data     []byte
	MimeType string
	URL      string
}

func (r *ImageResult) Empty() bool {
	return r == nil || (len(r.Data) == 0 && r.URL == "")
}

// Extension maps the MIME type to a storage file extension.
func (r *ImageResult) Extension() string {
	if r == nil {
		return "png"
	}
	switch strings.ToLower(r.MimeType) {
	case "image/jpeg", "image/jpg":
		return "jpg"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	default:
		return "png"
	}
}

// Adapter generates one image for a prompt.
type Adapter interface {
	Name() string
	Generate(ctx context.Context, req Request) (*ImageResult, error)
}

// TextAdapter completes a text prompt.
type TextAdapter interface {
	Name() string
	GenerateText(ctx context.Context, prompt string) (string, error)
}

func decodeDataURL(raw string) ([]byte, string, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(raw, "data:"), ",")
	if !ok {
		return nil, "", fmt.Errorf("malformed data URL")
	}
	mediaType, params, found := strings.Cut(header, ";")
	if !found || !strings.Contains(params, "base64") {
		return nil, "", fmt.Errorf("data URL must be base64 encoded")
	}
	if mediaType == "" {
		mediaType = "image/png"
	}
	if _, _, err := mime.ParseMediaType(mediaType); err != nil {
		return nil, "", fmt.Errorf("invalid data URL media type: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("decode data URL: %w", err)
	}
	if len(data) == 0 {
		return nil, "", fmt.Errorf("data URL is empty")
	}
	return data, mediaType, nil
}
