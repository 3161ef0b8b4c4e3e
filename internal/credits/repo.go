package credits

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
)

// ErrUserNotFound is returned when a balance update matches no user row.
var ErrUserNotFound = errors.New("user not found")

// Repository manages users.credits_balance and the credit_ledger table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)
	Credit(ctx context.Context, userID uuid.UUID, amount int64) error
	InsertEntry(ctx context.Context, entry *models.CreditLedgerEntry) error
	InsertEntryIfAbsent(ctx context.Context, entry *models.CreditLedgerEntry) (bool, error)
	Balance(ctx context.Context, userID uuid.UUID) (int64, error)
	LedgerSum(ctx context.Context, userID uuid.UUID) (int64, error)
	ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a credits repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// DebitIfSufficient subtracts amount in one conditional statement. The
// predicate and the write are evaluated atomically by the store, so concurrent
// debits can never drive the balance negative.
func (r *repository) DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND credits_balance >= ?", userID, amount).
		Updates(map[string]any{
			"credits_balance": gorm.Expr("credits_balance - ?", amount),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]any{
			"credits_balance": gorm.Expr("credits_balance + ?", amount),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *repository) InsertEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// InsertEntryIfAbsent appends entry unless its (reason, ref_provider, ref_id)
// key already exists. It reports whether a row was written.
func (r *repository) InsertEntryIfAbsent(ctx context.Context, entry *models.CreditLedgerEntry) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "reason"}, {Name: "ref_provider"}, {Name: "ref_id"}},
			DoNothing: true,
		}).
		Create(entry)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Select("credits_balance").
		Where("id = ?", userID).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrUserNotFound
		}
		return 0, err
	}
	return user.CreditsBalance, nil
}

func (r *repository) LedgerSum(ctx context.Context, userID uuid.UUID) (int64, error) {
	var sum int64
	err := r.db.WithContext(ctx).
		Model(&models.CreditLedgerEntry{}).
		Select("COALESCE(SUM(delta), 0)").
		Where("user_id = ?", userID).
		Scan(&sum).Error
	return sum, err
}

func (r *repository) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error) {
	var entries []models.CreditLedgerEntry
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}
