package users

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
)

// Repository owns the account rows. Balances are never written here; the
// credits service is the only writer of credits_balance.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Ensure creates the account row for an identity minted by the session
// service on first sight and keeps its email in sync afterwards. New rows
// start with a zero balance.
func (r *Repository) Ensure(ctx context.Context, id uuid.UUID, email string) (*models.User, error) {
	email = normalizeEmail(email)
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(&models.User{ID: id, Email: email}).Error; err != nil {
		return nil, err
	}

	user, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if email == "" || user.Email == email {
		return user, nil
	}

	if err := r.db.WithContext(ctx).Model(user).Update("email", email).Error; err != nil {
		return nil, err
	}
	user.Email = email
	return user, nil
}

func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}
