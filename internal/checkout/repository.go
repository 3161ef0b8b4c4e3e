package checkout

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

// Repository writes the checkout side of orders.
type Repository interface {
	CreateOrder(ctx context.Context, order *models.Order) error
	SetProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) error
	MarkOrderFailed(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// SetProviderOrderID replaces the provisional id while the order is still open.
func (r *repository) SetProviderOrderID(ctx context.Context, id uuid.UUID, providerOrderID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusCreated.String()).
		Updates(map[string]any{"provider_order_id": providerOrderID, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) MarkOrderFailed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusCreated.String()).
		Updates(map[string]any{"status": enums.OrderStatusFailed.String(), "updated_at": time.Now().UTC()}).Error
}
