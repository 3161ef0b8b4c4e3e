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
	"unicode/utf8"
)

const (
	responseReadLimit  int64 = 64 << 20
	errorBodyReadLimit int64 = 4 << 10
	maxErrorMessageLen       = 300
)

// Option configures optional adapter behavior.
type Option func(*transport)

// WithHTTPClient overrides the default HTTP client for upstream calls and
// reference downloads. Deadlines come from the caller's context, so the
// default client has no timeout of its own. Reference URLs are still
// screened before any request is made.
func WithHTTPClient(client *http.Client) Option {
	return func(t *transport) {
		if client != nil {
			t.httpClient = client
			t.refClient = client
		}
	}
}

type transport struct {
	httpClient *http.Client
	refClient  *http.Client
	baseURL    string
	normalize  errorNormalizer
}

func newTransport(baseURL string, normalize errorNormalizer, opts ...Option) transport {
	t := transport{
		httpClient: &http.Client{},
		refClient:  newReferenceClient(),
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		normalize:  normalize,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&t)
		}
	}
	return t
}

func (t transport) url(path string) string {
	return fmt.Sprintf("%s/%s", t.baseURL, strings.TrimLeft(path, "/"))
}

// postJSON sends payload and decodes a 2xx body into out. Non-2xx responses
// are normalized into *Error.
func (t transport) postJSON(ctx context.Context, path string, headers map[string]string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url(path), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return t.do(req, out)
}

func (t transport) do(req *http.Request, out any) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		upstream := t.normalize(resp.StatusCode, raw)
		upstream.Message = truncate(upstream.Message, maxErrorMessageLen)
		return upstream
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, responseReadLimit)).Decode(out); err != nil {
		return &Error{Message: "invalid upstream response: " + err.Error(), Status: http.StatusBadGateway}
	}
	return nil
}

// fetch downloads a hosted reference image so it can be sent inline. Only
// public hosts are contacted and the body is capped at maxReferenceBytes.
func (t transport) fetch(ctx context.Context, ref ReferenceImage) (ReferenceImage, error) {
	if ref.Inline() {
		return ref, nil
	}
	target, err := checkReferenceURL(ref.URL)
	if err != nil {
		return ReferenceImage{}, &Error{Message: err.Error(), Status: http.StatusBadRequest}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return ReferenceImage{}, fmt.Errorf("build reference request: %w", err)
	}
	resp, err := t.refClient.Do(req)
	if err != nil {
		if errors.Is(err, errBlockedAddress) {
			return ReferenceImage{}, &Error{Message: errBlockedAddress.Error(), Status: http.StatusBadRequest}
		}
		return ReferenceImage{}, fmt.Errorf("fetch reference image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return ReferenceImage{}, &Error{Message: fmt.Sprintf("reference image fetch returned %d", resp.StatusCode), Status: http.StatusBadRequest}
	}
	if resp.ContentLength > maxReferenceBytes {
		return ReferenceImage{}, referenceTooLarge()
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxReferenceBytes+1))
	if err != nil {
		return ReferenceImage{}, fmt.Errorf("read reference image: %w", err)
	}
	if int64(len(data)) > maxReferenceBytes {
		return ReferenceImage{}, referenceTooLarge()
	}
	mimeType := resp.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = http.DetectContentType(data)
	}
	if !strings.HasPrefix(strings.ToLower(mimeType), "image/") {
		return ReferenceImage{}, &Error{Message: "reference URL did not return an image", Status: http.StatusBadRequest}
	}
	return ReferenceImage{Data: data, MimeType: mimeType, URL: ref.URL}, nil
}

func referenceTooLarge() *Error {
	return &Error{Message: fmt.Sprintf("reference image exceeds %d MiB", maxReferenceBytes>>20), Status: http.StatusBadRequest}
}

// truncate keeps at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
