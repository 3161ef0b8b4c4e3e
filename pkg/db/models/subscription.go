package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

// Subscription persists provider subscription state per user, keyed by
// (provider, provider_subscription_id).
type Subscription struct {
	ID                     uuid.UUID                `gorm:"type:uuid;primaryKey"`
	UserID                 uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	Provider               enums.PaymentProvider    `gorm:"column:provider;not null;uniqueIndex:uq_subscriptions_provider_ref"`
	ProviderCustomerID     *string                  `gorm:"column:provider_customer_id"`
	ProviderSubscriptionID string                   `gorm:"column:provider_subscription_id;not null;uniqueIndex:uq_subscriptions_provider_ref"`
	ProductID              string                   `gorm:"column:product_id;not null;default:''"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;not null"`
	CurrentPeriodStart     *time.Time               `gorm:"column:current_period_start"`
	CurrentPeriodEnd       *time.Time               `gorm:"column:current_period_end"`
	CanceledAt             *time.Time               `gorm:"column:canceled_at"`
	EndedAt                *time.Time               `gorm:"column:ended_at"`
	CreatedAt              time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (s *Subscription) BeforeCreate(*gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
