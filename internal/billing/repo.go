package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

var ErrOrderNotFound = errors.New("order not found")

// Repository handles webhook-side billing persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertEventIfAbsent(ctx context.Context, event *models.ProviderEvent) (bool, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindOrderByProviderID(ctx context.Context, provider enums.PaymentProvider, providerOrderID string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, id uuid.UUID, providerOrderID string) (bool, error)
	FindSubscription(ctx context.Context, provider enums.PaymentProvider, providerSubscriptionID string) (*models.Subscription, error)
	CreateSubscription(ctx context.Context, subscription *models.Subscription) error
	UpdateSubscription(ctx context.Context, subscription *models.Subscription) error
	FindBlockingSubscription(ctx context.Context, userID uuid.UUID, excludeID *uuid.UUID) (*models.Subscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a billing repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// InsertEventIfAbsent records a webhook delivery. false means the
// (provider, event_id) pair was already processed.
func (r *repository) InsertEventIfAbsent(ctx context.Context, event *models.ProviderEvent) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).Take(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderByProviderID(ctx context.Context, provider enums.PaymentProvider, providerOrderID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_order_id = ?", provider.String(), providerOrderID).
		Order("created_at DESC").
		Take(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid moves a created order to paid and records the provider's own
// identifier. Terminal orders are left untouched.
func (r *repository) MarkOrderPaid(ctx context.Context, id uuid.UUID, providerOrderID string) (bool, error) {
	fields := map[string]any{
		"status":     enums.OrderStatusPaid.String(),
		"updated_at": time.Now().UTC(),
	}
	if providerOrderID != "" {
		fields["provider_order_id"] = providerOrderID
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusCreated.String()).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// FindSubscription returns nil, nil when no row exists.
func (r *repository) FindSubscription(ctx context.Context, provider enums.PaymentProvider, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.WithContext(ctx).
		Where("provider = ? AND provider_subscription_id = ?", provider.String(), providerSubscriptionID).
		Take(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func (r *repository) CreateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Create(subscription).Error
}

func (r *repository) UpdateSubscription(ctx context.Context, subscription *models.Subscription) error {
	return r.db.WithContext(ctx).Save(subscription).Error
}

// FindBlockingSubscription returns the newest live, non-ended subscription for
// the user, or nil, nil.
func (r *repository) FindBlockingSubscription(ctx context.Context, userID uuid.UUID, excludeID *uuid.UUID) (*models.Subscription, error) {
	q := r.db.WithContext(ctx).
		Where("user_id = ? AND status IN ? AND ended_at IS NULL", userID, liveStatuses())
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}
	var sub models.Subscription
	if err := q.Order("created_at DESC").Take(&sub).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sub, nil
}

func liveStatuses() []string {
	return []string{
		enums.SubscriptionStatusTrialing.String(),
		enums.SubscriptionStatusActive.String(),
		enums.SubscriptionStatusPastDue.String(),
	}
}
