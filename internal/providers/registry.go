package providers

import (
	"context"
	"sort"
	"strings"

	"github.com/pixelmint/pixelmint-backend/pkg/config"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

// Variant is the adapter family serving a model_key.
type Variant string

const (
	VariantGemini    Variant = "gemini"
	VariantChatImage Variant = "chat_image"
	VariantFlux      Variant = "flux"
	VariantSeedream  Variant = "seedream"
)

type route struct {
	variant       Variant
	upstreamModel string
}

// imageRoutes is the closed set of billable image models.
var imageRoutes = map[string]route{
	"nano-banana":      {variant: VariantGemini, upstreamModel: "gemini-2.5-flash-image"},
	"nano-banana-pro":  {variant: VariantGemini, upstreamModel: "gemini-3-pro-image-preview"},
	"sora-image":       {variant: VariantChatImage, upstreamModel: "sora-image"},
	"flux-kontext-pro": {variant: VariantFlux, upstreamModel: "flux-kontext-pro"},
	"flux-kontext-max": {variant: VariantFlux, upstreamModel: "flux-kontext-max"},
	"seedream-4":       {variant: VariantSeedream, upstreamModel: "doubao-seedream-4-0-250828"},
}

// textRoutes is the closed set of billable text models.
var textRoutes = map[string]route{
	"gemini-flash-text": {variant: VariantGemini, upstreamModel: "gemini-2.5-flash"},
}

// Registry resolves a model_key to its adapter. It is built once at boot from
// explicit configuration; adapters never read the environment.
type Registry struct {
	images map[string]Adapter
	texts  map[string]TextAdapter
}

// NewRegistry builds adapters for every route whose provider has credentials.
// Routes without credentials stay known but unavailable.
func NewRegistry(ctx context.Context, cfg config.ProvidersConfig, opts ...Option) (*Registry, error) {
	r := &Registry{
		images: make(map[string]Adapter, len(imageRoutes)),
		texts:  make(map[string]TextAdapter, len(textRoutes)),
	}

	for key, rt := range imageRoutes {
		adapter, err := buildImageAdapter(ctx, cfg, rt, opts...)
		if err != nil {
			return nil, err
		}
		if adapter != nil {
			r.images[key] = adapter
		}
	}
	for key, rt := range textRoutes {
		if rt.variant != VariantGemini || strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			continue
		}
		adapter, err := newGeminiAdapter(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, rt.upstreamModel, false, opts...)
		if err != nil {
			return nil, err
		}
		r.texts[key] = adapter
	}
	return r, nil
}

func buildImageAdapter(ctx context.Context, cfg config.ProvidersConfig, rt route, opts ...Option) (Adapter, error) {
	switch rt.variant {
	case VariantGemini:
		if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
			return nil, nil
		}
		sizeSupported := strings.Contains(rt.upstreamModel, "pro")
		return newGeminiAdapter(ctx, cfg.GeminiAPIKey, cfg.GeminiBaseURL, rt.upstreamModel, sizeSupported, opts...)
	case VariantChatImage:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			return nil, nil
		}
		return newChatImageAdapter(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, rt.upstreamModel, opts...), nil
	case VariantFlux:
		if strings.TrimSpace(cfg.FluxAPIKey) == "" {
			return nil, nil
		}
		return newFluxAdapter(cfg.FluxAPIKey, cfg.FluxBaseURL, rt.upstreamModel, opts...), nil
	case VariantSeedream:
		if strings.TrimSpace(cfg.SeedreamAPIKey) == "" {
			return nil, nil
		}
		return newSeedreamAdapter(cfg.SeedreamAPIKey, cfg.SeedreamBaseURL, rt.upstreamModel, opts...), nil
	default:
		return nil, nil
	}
}

// Resolve returns the adapter for an image model_key.
func (r *Registry) Resolve(modelKey string) (Adapter, error) {
	if _, ok := imageRoutes[modelKey]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedModel, "unsupported model").
			WithDetails(map[string]any{"model": modelKey})
	}
	adapter, ok := r.images[modelKey]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "model provider not configured").
			WithDetails(map[string]any{"model": modelKey})
	}
	return adapter, nil
}

// ResolveText returns the adapter for a text model_key.
func (r *Registry) ResolveText(modelKey string) (TextAdapter, error) {
	if _, ok := textRoutes[modelKey]; !ok {
		return nil, pkgerrors.New(pkgerrors.CodeUnsupportedModel, "unsupported model").
			WithDetails(map[string]any{"model": modelKey})
	}
	adapter, ok := r.texts[modelKey]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "model provider not configured").
			WithDetails(map[string]any{"model": modelKey})
	}
	return adapter, nil
}

// VariantOf reports the adapter family for a model_key.
func VariantOf(modelKey string) (Variant, bool) {
	if rt, ok := imageRoutes[modelKey]; ok {
		return rt.variant, true
	}
	if rt, ok := textRoutes[modelKey]; ok {
		return rt.variant, true
	}
	return "", false
}

// ImageModels lists the known image model keys in sorted order.
func ImageModels() []string {
	keys := make([]string, 0, len(imageRoutes))
	for k := range imageRoutes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
