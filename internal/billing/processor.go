package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pixelmint/pixelmint-backend/internal/credits"
	"github.com/pixelmint/pixelmint-backend/pkg/db/models"
	"github.com/pixelmint/pixelmint-backend/pkg/enums"
	pkgerrors "github.com/pixelmint/pixelmint-backend/pkg/errors"
	"github.com/pixelmint/pixelmint-backend/pkg/logger"
	"github.com/pixelmint/pixelmint-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Processor applies normalized billing events exactly once.
type Processor struct {
	repo     Repository
	ledger   credits.Service
	txRunner txRunner
	metrics  *metrics.BillingMetrics
	logg     *logger.Logger
}

// ProcessorParams groups dependencies for the billing processor.
type ProcessorParams struct {
	Repo              Repository
	Ledger            credits.Service
	TransactionRunner txRunner
	Metrics           *metrics.BillingMetrics
	Logger            *logger.Logger
}

func NewProcessor(params ProcessorParams) (*Processor, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "billing repo required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "credits service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Processor{
		repo:     params.Repo,
		ledger:   params.Ledger,
		txRunner: params.TransactionRunner,
		metrics:  params.Metrics,
		logg:     params.Logger,
	}, nil
}

// HandleBillingEvent dedupes on (provider, event_id) and applies the event.
// The dedup row and the mutation commit together, so a failed mutation leaves
// the event unprocessed for the provider's retry.
func (p *Processor) HandleBillingEvent(ctx context.Context, event Event) (*Result, error) {
	if err := event.validate(); err != nil {
		p.metrics.IncEvent(event.Provider.String(), string(event.Type), metrics.OutcomeRejected)
		return nil, err
	}
	ctx = p.logg.WithFields(ctx, map[string]any{
		"provider":   event.Provider.String(),
		"event_id":   event.EventID,
		"event_type": string(event.Type),
	})

	deduped := false
	err := p.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := p.repo.WithTx(tx)
		inserted, err := repo.InsertEventIfAbsent(ctx, &models.ProviderEvent{
			Provider:  event.Provider,
			EventID:   event.EventID,
			EventType: string(event.Type),
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "record provider event")
		}
		if !inserted {
			deduped = true
			return nil
		}

		switch event.Type {
		case enums.BillingEventTypeOneTimePaid:
			return p.applyOneTime(ctx, tx, repo, event.Provider, event.OneTime)
		case enums.BillingEventTypeSubscriptionPeriodPaid:
			return p.applyPeriod(ctx, tx, repo, event.Provider, event.Period)
		default:
			return p.applyEnded(ctx, repo, event.Provider, event.Ended)
		}
	})
	if err != nil {
		p.metrics.IncEvent(event.Provider.String(), string(event.Type), metrics.OutcomeFailed)
		p.logg.Error(ctx, "billing.event.failed", err)
		return nil, err
	}

	if deduped {
		p.metrics.IncEvent(event.Provider.String(), string(event.Type), metrics.OutcomeDeduped)
		p.logg.Info(ctx, "billing.event.deduped")
		return &Result{OK: true, Deduped: true}, nil
	}
	p.metrics.IncEvent(event.Provider.String(), string(event.Type), metrics.OutcomeApplied)
	p.logg.Info(ctx, "billing.event.applied")
	return &Result{OK: true}, nil
}

func (p *Processor) applyOneTime(ctx context.Context, tx *gorm.DB, repo Repository, provider enums.PaymentProvider, paid *OneTimePaid) error {
	order, err := p.lookupOrder(ctx, repo, provider, paid.OrderID, paid.ProviderOrderID)
	if err != nil {
		return err
	}
	if _, err := repo.MarkOrderPaid(ctx, order.ID, paid.ProviderOrderID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark order paid")
	}

	amount := order.Credits
	if paid.Credits > 0 {
		amount = paid.Credits
	}
	return p.grant(ctx, tx, credits.Movement{
		UserID:      order.UserID,
		Amount:      amount,
		Reason:      enums.LedgerReasonOneTimeGrant,
		RefProvider: provider.String(),
		RefID:       order.ID.String(),
	})
}

func (p *Processor) applyPeriod(ctx context.Context, tx *gorm.DB, repo Repository, provider enums.PaymentProvider, paid *SubscriptionPeriodPaid) error {
	status := paid.Status
	if status == "" {
		status = enums.SubscriptionStatusActive
	}
	start := paid.PeriodStart.UTC()
	var end *time.Time
	if !paid.PeriodEnd.IsZero() {
		e := paid.PeriodEnd.UTC()
		end = &e
	}

	sub, err := repo.FindSubscription(ctx, provider, paid.ProviderSubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}

	if sub == nil {
		if paid.UserID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "user id is required for a new subscription")
		}
		blocking, err := repo.FindBlockingSubscription(ctx, paid.UserID, nil)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check overlapping subscription")
		}
		if blocking != nil {
			p.logg.Warn(p.logg.WithFields(ctx, map[string]any{
				"user_id":             paid.UserID.String(),
				"existing_sub_id":     blocking.ProviderSubscriptionID,
				"incoming_sub_id":     paid.ProviderSubscriptionID,
				"existing_sub_status": blocking.Status.String(),
			}), "billing.subscription.overlap")
		}
		sub = &models.Subscription{
			UserID:                 paid.UserID,
			Provider:               provider,
			ProviderSubscriptionID: paid.ProviderSubscriptionID,
			ProductID:              paid.ProductID,
		}
		if paid.ProviderCustomerID != "" {
			customer := paid.ProviderCustomerID
			sub.ProviderCustomerID = &customer
		}
		sub.Status = status
		sub.CurrentPeriodStart = &start
		sub.CurrentPeriodEnd = end
		if err := repo.CreateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create subscription")
		}
	} else {
		if periodAdvances(sub, start) {
			sub.Status = status
			sub.CurrentPeriodStart = &start
			sub.CurrentPeriodEnd = end
			sub.EndedAt = nil
		} else {
			p.logg.Info(p.logg.WithFields(ctx, map[string]any{
				"provider_subscription_id": sub.ProviderSubscriptionID,
				"period_start":             start,
			}), "billing.subscription.stale_period")
		}
		if paid.ProviderCustomerID != "" {
			customer := paid.ProviderCustomerID
			sub.ProviderCustomerID = &customer
		}
		if paid.ProductID != "" {
			sub.ProductID = paid.ProductID
		}
		if err := repo.UpdateSubscription(ctx, sub); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update subscription")
		}
	}

	if paid.OrderID != uuid.Nil {
		if _, err := repo.MarkOrderPaid(ctx, paid.OrderID, paid.ProviderSubscriptionID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mark subscription order paid")
		}
	}

	return p.grant(ctx, tx, credits.Movement{
		UserID:      sub.UserID,
		Amount:      paid.Credits,
		Reason:      enums.LedgerReasonSubscriptionGrant,
		RefProvider: provider.String(),
		RefID:       PeriodKey(paid.ProviderSubscriptionID, start),
	})
}

// periodAdvances reports whether a period-paid event may overwrite the row's
// status and period. A live row accepts the current or a later period; an
// ended row only comes back for a strictly later period, so redelivered or
// reordered events for a paid period never revive it.
func periodAdvances(sub *models.Subscription, start time.Time) bool {
	if sub.CurrentPeriodStart == nil {
		return true
	}
	stored := sub.CurrentPeriodStart.UTC()
	if sub.EndedAt != nil {
		return start.After(stored)
	}
	return !start.Before(stored)
}

func (p *Processor) applyEnded(ctx context.Context, repo Repository, provider enums.PaymentProvider, ended *SubscriptionEnded) error {
	sub, err := repo.FindSubscription(ctx, provider, ended.ProviderSubscriptionID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load subscription")
	}
	if sub == nil {
		// arrived before the first period-paid event; fail so the provider
		// redelivers once the subscription row exists
		p.logg.Warn(p.logg.WithField(ctx, "provider_subscription_id", ended.ProviderSubscriptionID), "billing.subscription.unknown")
		return pkgerrors.New(pkgerrors.CodeDependency, "subscription not recorded yet").
			WithDetails(map[string]any{"providerSubscriptionId": ended.ProviderSubscriptionID})
	}

	status := ended.Status
	if status == "" {
		status = enums.SubscriptionStatusCanceled
	}
	endedAt := ended.EndedAt
	if endedAt.IsZero() {
		endedAt = time.Now()
	}
	endedAt = endedAt.UTC()

	sub.Status = status
	sub.EndedAt = &endedAt
	if ended.CanceledAt != nil {
		canceled := ended.CanceledAt.UTC()
		sub.CanceledAt = &canceled
	}
	if err := repo.UpdateSubscription(ctx, sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "end subscription")
	}
	return nil
}

func (p *Processor) lookupOrder(ctx context.Context, repo Repository, provider enums.PaymentProvider, orderID uuid.UUID, providerOrderID string) (*models.Order, error) {
	var (
		order *models.Order
		err   error
	)
	if orderID != uuid.Nil {
		order, err = repo.FindOrder(ctx, orderID)
	} else {
		order, err = repo.FindOrderByProviderID(ctx, provider, providerOrderID)
	}
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order.Provider != provider {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, fmt.Sprintf("order belongs to %s", order.Provider))
	}
	return order, nil
}

func (p *Processor) grant(ctx context.Context, tx *gorm.DB, m credits.Movement) error {
	if m.Amount <= 0 {
		p.logg.Warn(p.logg.WithField(ctx, "ref_id", m.RefID), "billing.grant.zero_credits")
		return nil
	}
	applied, err := p.ledger.GrantWithTx(ctx, tx, m)
	if err != nil {
		return err
	}
	if applied {
		p.metrics.AddGranted(m.Reason.String(), m.Amount)
	} else {
		p.logg.Info(p.logg.WithField(ctx, "ref_id", m.RefID), "billing.grant.already_applied")
	}
	return nil
}
