package credits

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
)

type fakeRepository struct {
	debitFn  func(ctx context.Context, userID uuid.UUID, amount int64) (bool, error)
	creditFn func(ctx context.Context, userID uuid.UUID, amount int64) error
	insertFn func(ctx context.Context, entry *models.CreditLedgerEntry) error
	ignoreFn func(ctx context.Context, entry *models.CreditLedgerEntry) (bool, error)

	debits  int
	credits int
	entries []models.CreditLedgerEntry
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) DebitIfSufficient(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) {
	f.debits++
	if f.debitFn != nil {
		return f.debitFn(ctx, userID, amount)
	}
	return true, nil
}

func (f *fakeRepository) Credit(ctx context.Context, userID uuid.UUID, amount int64) error {
	f.credits++
	if f.creditFn != nil {
		return f.creditFn(ctx, userID, amount)
	}
	return nil
}

func (f *fakeRepository) InsertEntry(ctx context.Context, entry *models.CreditLedgerEntry) error {
	if f.insertFn != nil {
		if err := f.insertFn(ctx, entry); err != nil {
			return err
		}
	}
	f.entries = append(f.entries, *entry)
	return nil
}

func (f *fakeRepository) InsertEntryIfAbsent(ctx context.Context, entry *models.CreditLedgerEntry) (bool, error) {
	if f.ignoreFn != nil {
		return f.ignoreFn(ctx, entry)
	}
	f.entries = append(f.entries, *entry)
	return true, nil
}

func (f *fakeRepository) Balance(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) LedgerSum(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func (f *fakeRepository) ListEntries(ctx context.Context, userID uuid.UUID, limit int) ([]models.CreditLedgerEntry, error) {
	return f.entries, nil
}

type stubTxRunner struct {
	calls int
}

func (s *stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	s.calls++
	return fn(nil)
}

func newTestService(t *testing.T, repo *fakeRepository) (Service, *stubTxRunner) {
	t.Helper()
	runner := &stubTxRunner{}
	svc, err := NewService(repo, runner)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return svc, runner
}

func chargeMovement() Movement {
	return Movement{
		UserID: uuid.New(),
		Amount: 4,
		Reason: enums.LedgerReasonGenerationCharge,
		RefID:  uuid.NewString(),
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	if _, err := NewService(nil, &stubTxRunner{}); err == nil {
		t.Fatal("expected error for nil repository")
	}
	if _, err := NewService(&fakeRepository{}, nil); err == nil {
		t.Fatal("expected error for nil runner")
	}
}

func TestCharge_AppendsNegativeEntry(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := newTestService(t, repo)

	m := chargeMovement()
	ok, err := svc.Charge(context.Background(), m)
	if err != nil {
		t.Fatalf("Charge error: %v", err)
	}
	if !ok {
		t.Fatal("expected charge to succeed")
	}
	if len(repo.entries) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(repo.entries))
	}
	entry := repo.entries[0]
	if entry.Delta != -4 || entry.RefID != m.RefID || entry.Reason != enums.LedgerReasonGenerationCharge {
		t.Fatalf("unexpected entry %+v", entry)
	}
}

func TestCharge_InsufficientBalanceWritesNothing(t *testing.T) {
	repo := &fakeRepository{
		debitFn: func(ctx context.Context, userID uuid.UUID, amount int64) (bool, error) { return false, nil },
	}
	svc, _ := newTestService(t, repo)

	ok, err := svc.Charge(context.Background(), chargeMovement())
	if err != nil {
		t.Fatalf("Charge error: %v", err)
	}
	if ok {
		t.Fatal("expected charge to be rejected")
	}
	if len(repo.entries) != 0 {
		t.Fatalf("expected no ledger entries, got %d", len(repo.entries))
	}
}

func TestCharge_NonPositiveAmountIsNoop(t *testing.T) {
	for _, amount := range []int64{0, -3} {
		repo := &fakeRepository{}
		svc, runner := newTestService(t, repo)

		m := chargeMovement()
		m.Amount = amount
		ok, err := svc.Charge(context.Background(), m)
		if err != nil || !ok {
			t.Fatalf("amount %d: expected no-op success, got ok=%v err=%v", amount, ok, err)
		}
		if repo.debits != 0 || runner.calls != 0 {
			t.Fatalf("amount %d: expected store untouched", amount)
		}
	}
}

func TestCharge_LedgerFailureIsFatal(t *testing.T) {
	repo := &fakeRepository{
		insertFn: func(ctx context.Context, entry *models.CreditLedgerEntry) error { return errors.New("disk full") },
	}
	svc, _ := newTestService(t, repo)

	ok, err := svc.Charge(context.Background(), chargeMovement())
	if err == nil {
		t.Fatal("expected ledger failure to surface")
	}
	if ok {
		t.Fatal("failed charge must not report success")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}
}

func TestCharge_DuplicateRefIsConflict(t *testing.T) {
	repo := &fakeRepository{
		insertFn: func(ctx context.Context, entry *models.CreditLedgerEntry) error {
			return &pgconn.PgError{Code: "23505", ConstraintName: "uq_credit_ledger_ref"}
		},
	}
	svc, _ := newTestService(t, repo)

	ok, err := svc.Charge(context.Background(), chargeMovement())
	if ok {
		t.Fatal("duplicate charge must not report success")
	}
	if !pkgerrors.IsCode(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestRefund_DuplicateDoesNotCreditTwice(t *testing.T) {
	seen := map[string]bool{}
	repo := &fakeRepository{}
	repo.ignoreFn = func(ctx context.Context, entry *models.CreditLedgerEntry) (bool, error) {
		key := string(entry.Reason) + "|" + entry.RefProvider + "|" + entry.RefID
		if seen[key] {
			return false, nil
		}
		seen[key] = true
		return true, nil
	}
	svc, _ := newTestService(t, repo)

	m := Movement{UserID: uuid.New(), Amount: 5, Reason: enums.LedgerReasonGenerationRefund, RefID: "job-1"}
	first, err := svc.Refund(context.Background(), m)
	if err != nil || !first {
		t.Fatalf("first refund: ok=%v err=%v", first, err)
	}
	second, err := svc.Refund(context.Background(), m)
	if err != nil {
		t.Fatalf("second refund error: %v", err)
	}
	if second {
		t.Fatal("second refund should be deduped")
	}
	if repo.credits != 1 {
		t.Fatalf("expected one balance credit, got %d", repo.credits)
	}
}

func TestGrant_UnknownUser(t *testing.T) {
	repo := &fakeRepository{
		creditFn: func(ctx context.Context, userID uuid.UUID, amount int64) error { return ErrUserNotFound },
	}
	svc, _ := newTestService(t, repo)

	_, err := svc.Grant(context.Background(), Movement{UserID: uuid.New(), Amount: 800, Reason: enums.LedgerReasonOneTimeGrant, RefProvider: "creem", RefID: "ord_1"})
	if !pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestMovementValidation(t *testing.T) {
	repo := &fakeRepository{}
	svc, _ := newTestService(t, repo)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		code pkgerrors.Code
	}{
		{
			name: "missing user",
			call: func() error {
				m := chargeMovement()
				m.UserID = uuid.Nil
				_, err := svc.Charge(ctx, m)
				return err
			},
			code: pkgerrors.CodeUnauthorized,
		},
		{
			name: "missing ref id",
			call: func() error {
				m := chargeMovement()
				m.RefID = " "
				_, err := svc.Charge(ctx, m)
				return err
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "refund reason on charge",
			call: func() error {
				m := chargeMovement()
				m.Reason = enums.LedgerReasonGenerationRefund
				_, err := svc.Charge(ctx, m)
				return err
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "charge reason on refund",
			call: func() error {
				_, err := svc.Refund(ctx, chargeMovement())
				return err
			},
			code: pkgerrors.CodeValidation,
		},
		{
			name: "refund reason on grant",
			call: func() error {
				m := chargeMovement()
				m.Reason = enums.LedgerReasonGenerationRefund
				_, err := svc.Grant(ctx, m)
				return err
			},
			code: pkgerrors.CodeValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			if !pkgerrors.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
	if repo.debits != 0 || repo.credits != 0 {
		t.Fatal("validation failures must not reach the repository")
	}
}
