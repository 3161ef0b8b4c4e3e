package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

// ProviderEvent marks a webhook delivery as applied. Only its existence matters.
type ProviderEvent struct {
	ID         uuid.UUID             `gorm:"type:uuid;primaryKey"`
	Provider   enums.PaymentProvider `gorm:"column:provider;not null;uniqueIndex:uq_provider_events"`
	EventID    string                `gorm:"column:event_id;not null;uniqueIndex:uq_provider_events"`
	EventType  string                `gorm:"column:event_type;not null;default:''"`
	ReceivedAt time.Time             `gorm:"column:received_at;autoCreateTime"`
}

func (e *ProviderEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
