package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

// GenerationJob tracks one billed generation call. The ID is assigned before
// the charge so it can serve as the ledger ref_id.
type GenerationJob struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID      uuid.UUID       `gorm:"column:user_id;type:uuid;not null;index"`
	ModelKey    string          `gorm:"column:model_key;not null"`
	CostCredits int64           `gorm:"column:cost_credits;not null"`
	Prompt      string          `gorm:"column:prompt;not null"`
	AspectRatio string          `gorm:"column:aspect_ratio;not null;default:''"`
	ImageSize   enums.ImageSize `gorm:"column:image_size;not null"`
	Status      enums.JobStatus `gorm:"column:status;not null"`
	Error       *string         `gorm:"column:error"`
	OutputKey   *string         `gorm:"column:output_r2_key"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt *time.Time      `gorm:"column:completed_at"`
}
