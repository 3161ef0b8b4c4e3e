package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

// Order is created at checkout with a provisional provider id that the payment
// webhook may later replace with the provider's own identifier.
type Order struct {
	ID              uuid.UUID             `gorm:"type:uuid;primaryKey"`
	UserID          uuid.UUID             `gorm:"column:user_id;type:uuid;not null;index"`
	Provider        enums.PaymentProvider `gorm:"column:provider;not null"`
	ProviderOrderID string                `gorm:"column:provider_order_id;not null;index"`
	Type            enums.OrderType       `gorm:"column:type;not null"`
	ProductID       string                `gorm:"column:product_id;not null"`
	Status          enums.OrderStatus     `gorm:"column:status;not null;default:'created'"`
	AmountCents     int64                 `gorm:"column:amount;not null"`
	Currency        string                `gorm:"column:currency;not null"`
	Credits         int64                 `gorm:"column:credits;not null"`
	CreatedAt       time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}
