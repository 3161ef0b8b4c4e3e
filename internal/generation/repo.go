package generation

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
)

var ErrJobNotFound = errors.New("generation job not found")

// Repository persists generation_jobs. Every status transition is guarded by
// status = 'running', so a job settles at most once.
type Repository interface {
	Create(ctx context.Context, job *models.GenerationJob) error
	MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error)
	SetOutputKey(ctx context.Context, id uuid.UUID, key string) error
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.GenerationJob, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, job *models.GenerationJob) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *repository) MarkSucceeded(ctx context.Context, id uuid.UUID) (bool, error) {
	return r.settle(ctx, id, map[string]any{
		"status": enums.JobStatusSucceeded.String(),
		"error":  nil,
	})
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	return r.settle(ctx, id, map[string]any{
		"status": enums.JobStatusFailed.String(),
		"error":  message,
	})
}

func (r *repository) settle(ctx context.Context, id uuid.UUID, fields map[string]any) (bool, error) {
	now := time.Now().UTC()
	fields["completed_at"] = now
	fields["updated_at"] = now

	res := r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, enums.JobStatusRunning.String()).
		Updates(fields)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) SetOutputKey(ctx context.Context, id uuid.UUID, key string) error {
	return r.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, enums.JobStatusSucceeded.String()).
		Updates(map[string]any{"output_r2_key": key, "updated_at": time.Now().UTC()}).Error
}

func (r *repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.GenerationJob, error) {
	var job models.GenerationJob
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		Take(&job).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}
