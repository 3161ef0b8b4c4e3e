package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

// CreditLedgerEntry is an append-only balance movement. (reason, ref_provider,
// ref_id) is unique and doubles as the idempotency key for refunds and grants.
type CreditLedgerEntry struct {
	ID          uuid.UUID          `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID          `gorm:"column:user_id;type:uuid;not null;index"`
	Delta       int64              `gorm:"column:delta;not null"`
	Reason      enums.LedgerReason `gorm:"column:reason;not null;uniqueIndex:uq_credit_ledger_ref"`
	RefProvider string             `gorm:"column:ref_provider;not null;default:'';uniqueIndex:uq_credit_ledger_ref"`
	RefID       string             `gorm:"column:ref_id;not null;uniqueIndex:uq_credit_ledger_ref"`
	CreatedAt   time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (CreditLedgerEntry) TableName() string {
	return "credit_ledger"
}

func (e *CreditLedgerEntry) BeforeCreate(*gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
