package pricing

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

// Repository reads model_pricing. Prices are never taken from client input.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Cost returns credits_per_image for an enabled model. Unknown or disabled
// models yield CodeUnsupportedModel.
func (r *Repository) Cost(ctx context.Context, modelKey string) (int64, error) {
	key := strings.TrimSpace(modelKey)
	if key == "" {
		return 0, pkgerrors.New(pkgerrors.CodeUnsupportedModel, "model is required")
	}

	var row models.ModelPricing
	err := r.db.WithContext(ctx).
		Where("model_key = ? AND enabled = ?", key, true).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, pkgerrors.New(pkgerrors.CodeUnsupportedModel, "unsupported model").
				WithDetails(map[string]any{"model": key})
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load model pricing")
	}
	if row.CreditsPerImage <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeUnsupportedModel, "model has no price").
			WithDetails(map[string]any{"model": key})
	}
	return row.CreditsPerImage, nil
}

// ListEnabled returns every enabled price ordered by model key.
func (r *Repository) ListEnabled(ctx context.Context) ([]models.ModelPricing, error) {
	var rows []models.ModelPricing
	if err := r.db.WithContext(ctx).
		Where("enabled = ?", true).
		Order("model_key ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
