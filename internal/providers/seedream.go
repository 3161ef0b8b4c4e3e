package providers

import (
	"context"
	"strings"
)

// seedreamAdapter calls the Ark images API with b64_json output.
type seedreamAdapter struct {
	transport
	apiKey string
	model  string
}

func newSeedreamAdapter(apiKey, baseURL, model string, opts ...Option) *seedreamAdapter {
	return &seedreamAdapter{
		transport: newTransport(baseURL, normalizeSeedreamError, opts...),
		apiKey:    apiKey,
		model:     model,
	}
}

func (a *seedreamAdapter) Name() string { return "seedream:" + a.model }

func (a *seedreamAdapter) Generate(ctx context.Context, req Request) (*ImageResult, error) {
	watermark := false
	payload := imagesRequest{
		Model:          a.model,
		Prompt:         withAspectHint(req.Prompt, req.AspectRatio),
		Size:           string(req.ImageSize),
		ResponseFormat: "b64_json",
		Watermark:      &watermark,
	}
	for _, ref := range req.ReferenceImages {
		payload.Image = append(payload.Image, ref.DataURL())
	}

	var resp imagesResponse
	if err := a.postJSON(ctx, "api/v3/images/generations", map[string]string{"Authorization": "Bearer " + a.apiKey}, payload, &resp); err != nil {
		return nil, err
	}
	return resp.firstImage("seedream")
}

// withAspectHint folds the aspect ratio into the prompt; the size field only
// carries resolution.
func withAspectHint(prompt, aspectRatio string) string {
	if strings.TrimSpace(aspectRatio) == "" {
		return prompt
	}
	return prompt + " --ratio " + aspectRatio
}
