package providers

import (
	"encoding/base64"
	"io"
	"net/http"
	"strings"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func clientFor(rt roundTripFunc) Option {
	return WithHTTPClient(&http.Client{Transport: rt})
}

var pngBytes = []byte("\x89PNG\r\n\x1a\nfake-image")

var pngB64 = base64.StdEncoding.EncodeToString(pngBytes)
