package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the account that owns a credit balance. CreditsBalance is a cache of
// the ledger sum and is only mutated alongside a credit_ledger row.
type User struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email          string    `gorm:"type:text;not null;uniqueIndex"`
	CreditsBalance int64     `gorm:"column:credits_balance;not null;default:0;check:chk_users_credits_balance,credits_balance >= 0"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (u *User) BeforeCreate(*gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}
