package models

import "time"

type ModelPricing struct {
	ModelKey        string    `gorm:"column:model_key;primaryKey"`
	CreditsPerImage int64     `gorm:"column:credits_per_image;not null"`
	Enabled         bool      `gorm:"column:enabled;not null;default:true"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (ModelPricing) TableName() string {
	return "model_pricing"
}
