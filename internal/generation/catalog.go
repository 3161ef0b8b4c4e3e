package generation

import (
	"context"

	"github.com/pixelmint/pixelmint-backend/internal/providers"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

const (
	ModelKindImage = "image"
	ModelKindText  = "text"
)

// ModelListing is one priced model as shown to clients.
type ModelListing struct {
	ModelKey    string            `json:"model"`
	Kind        string            `json:"kind"`
	Provider    providers.Variant `json:"provider"`
	CostCredits int64             `json:"costCredits"`
	Available   bool              `json:"available"`
}

// ListModels joins enabled prices with the provider registry. Priced keys
// with no known route are omitted; known routes without credentials are
// listed as unavailable.
func (s *service) ListModels(ctx context.Context) ([]ModelListing, error) {
	rows, err := s.prices.ListEnabled(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list model pricing")
	}

	images := make(map[string]struct{})
	for _, key := range providers.ImageModels() {
		images[key] = struct{}{}
	}

	out := make([]ModelListing, 0, len(rows))
	for _, row := range rows {
		if row.CreditsPerImage <= 0 {
			continue
		}
		variant, ok := providers.VariantOf(row.ModelKey)
		if !ok {
			continue
		}
		listing := ModelListing{
			ModelKey:    row.ModelKey,
			Provider:    variant,
			CostCredits: row.CreditsPerImage,
		}
		if _, isImage := images[row.ModelKey]; isImage {
			listing.Kind = ModelKindImage
			_, err = s.registry.Resolve(row.ModelKey)
		} else {
			listing.Kind = ModelKindText
			_, err = s.registry.ResolveText(row.ModelKey)
		}
		listing.Available = err == nil
		out = append(out, listing)
	}
	return out, nil
}
