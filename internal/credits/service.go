package credits

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/db"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

const (
	defaultHistoryLimit = 50

	ledgerRefConstraint = "uq_credit_ledger_ref"
)

// Movement describes one balance change and its ledger idempotency key.
type Movement struct {
	UserID      uuid.UUID
	Amount      int64
	Reason      enums.LedgerReason
	RefProvider string
	RefID       string
}

// Summary is the caller-facing view of a balance.
type Summary struct {
	Balance int64                      `json:"balance"`
	Entries []models.CreditLedgerEntry `json:"entries"`
}

// Reconciliation compares the cached balance with the ledger sum.
type Reconciliation struct {
	Balance   int64 `json:"balance"`
	LedgerSum int64 `json:"ledger_sum"`
}

func (r Reconciliation) Consistent() bool {
	return r.Balance == r.LedgerSum
}

// Service is the only writer of users.credits_balance and credit_ledger.
type Service interface {
	Charge(ctx context.Context, m Movement) (bool, error)
	Refund(ctx context.Context, m Movement) (bool, error)
	Grant(ctx context.Context, m Movement) (bool, error)
	GrantWithTx(ctx context.Context, tx *gorm.DB, m Movement) (bool, error)
	Summary(ctx context.Context, userID uuid.UUID, limit int) (*Summary, error)
	Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo     Repository
	txRunner txRunner
}

// NewService wires a credits service with the provided repository.
func NewService(repo Repository, runner txRunner) (Service, error) {
	if repo == nil {
		return nil, errors.New("credits repository required")
	}
	if runner == nil {
		return nil, errors.New("transaction runner required")
	}
	return &service{repo: repo, txRunner: runner}, nil
}

// Charge debits m.Amount when the balance covers it and appends a negative
// ledger row in the same transaction. A false result means nothing changed.
// Non-positive amounts succeed without touching the store.
func (s *service) Charge(ctx context.Context, m Movement) (bool, error) {
	if err := validate(m, chargeReasons); err != nil {
		return false, err
	}
	if m.Amount <= 0 {
		return true, nil
	}

	charged := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.DebitIfSufficient(ctx, m.UserID, m.Amount)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "debit credits")
		}
		if !ok {
			return nil
		}
		entry := entryFor(m, -m.Amount)
		if err := repo.InsertEntry(ctx, &entry); err != nil {
			if db.IsUniqueViolation(err, ledgerRefConstraint) {
				return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "charge already recorded").
					WithDetails(map[string]any{"refId": m.RefID})
			}
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append charge ledger entry")
		}
		charged = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return charged, nil
}

// Refund restores m.Amount at most once per (reason, ref_provider, ref_id).
// The balance increment is gated on the ledger insert, so a repeated refund
// is a no-op and reports false.
func (s *service) Refund(ctx context.Context, m Movement) (bool, error) {
	if err := validate(m, refundReasons); err != nil {
		return false, err
	}
	return s.creditOnce(ctx, m)
}

// Grant adds purchased credits at most once per idempotency key.
func (s *service) Grant(ctx context.Context, m Movement) (bool, error) {
	if err := validate(m, grantReasons); err != nil {
		return false, err
	}
	return s.creditOnce(ctx, m)
}

// GrantWithTx is Grant inside a caller-owned transaction.
func (s *service) GrantWithTx(ctx context.Context, tx *gorm.DB, m Movement) (bool, error) {
	if err := validate(m, grantReasons); err != nil {
		return false, err
	}
	if m.Amount <= 0 {
		return false, nil
	}
	return applyCredit(ctx, s.repo.WithTx(tx), m)
}

func (s *service) creditOnce(ctx context.Context, m Movement) (bool, error) {
	if m.Amount <= 0 {
		return false, nil
	}
	applied := false
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := applyCredit(ctx, s.repo.WithTx(tx), m)
		applied = ok
		return err
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func applyCredit(ctx context.Context, repo Repository, m Movement) (bool, error) {
	entry := entryFor(m, m.Amount)
	inserted, err := repo.InsertEntryIfAbsent(ctx, &entry)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "append credit ledger entry")
	}
	if !inserted {
		return false, nil
	}
	if err := repo.Credit(ctx, m.UserID, m.Amount); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "credit balance")
	}
	return true, nil
}

func (s *service) Summary(ctx context.Context, userID uuid.UUID, limit int) (*Summary, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if limit <= 0 || limit > defaultHistoryLimit {
		limit = defaultHistoryLimit
	}
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load balance")
	}
	entries, err := s.repo.ListEntries(ctx, userID, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list ledger entries")
	}
	return &Summary{Balance: balance, Entries: entries}, nil
}

func (s *service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	balance, err := s.repo.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	sum, err := s.repo.LedgerSum(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Reconciliation{Balance: balance, LedgerSum: sum}, nil
}

var (
	chargeReasons = []enums.LedgerReason{enums.LedgerReasonGenerationCharge, enums.LedgerReasonTextGenerationCharge}
	refundReasons = []enums.LedgerReason{enums.LedgerReasonGenerationRefund, enums.LedgerReasonTextGenerationRefund}
	grantReasons  = []enums.LedgerReason{enums.LedgerReasonOneTimeGrant, enums.LedgerReasonSubscriptionGrant}
)

func validate(m Movement, allowed []enums.LedgerReason) error {
	if m.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if strings.TrimSpace(m.RefID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "ledger ref id is required")
	}
	for _, reason := range allowed {
		if reason == m.Reason {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeValidation, "ledger reason not allowed for this operation").
		WithDetails(map[string]any{"reason": m.Reason.String()})
}

func entryFor(m Movement, delta int64) models.CreditLedgerEntry {
	return models.CreditLedgerEntry{
		UserID:      m.UserID,
		Delta:       delta,
		Reason:      m.Reason,
		RefProvider: m.RefProvider,
		RefID:       m.RefID,
	}
}
