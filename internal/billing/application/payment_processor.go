package application

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// Outcome is the delivery decision for a payment event.
type Outcome string

const (
	OutcomeAck        Outcome = "ack"
	OutcomeRetry      Outcome = "retry"
	OutcomeDeadLetter Outcome = "dead_letter"
)

var ErrMissingPackage = sharedDomain.NewError(sharedDomain.ErrInvalid, "payment does not reference a package")

// PaymentProcessor applies confirmed payments to subscriptions and roles.
type PaymentProcessor struct {
	uow          sharedApplication.UnitOfWork
	ledger       domain.PaymentLedger
	catalog      domain.PackageCatalog
	identity     domain.IdentityProvider
	upserter     *Upserter
	outbox       outbox.Repository
	synchronizer *Synchronizer
	retry        sharedApplication.RetryPolicy
	logger       *slog.Logger
	metrics      observability.Metrics
	now          func() time.Time
}

// NewPaymentProcessor creates a new PaymentProcessor.
func NewPaymentProcessor(
	uow sharedApplication.UnitOfWork,
	ledger domain.PaymentLedger,
	catalog domain.PackageCatalog,
	identity domain.IdentityProvider,
	upserter *Upserter,
	outboxRepo outbox.Repository,
	synchronizer *Synchronizer,
	logger *slog.Logger,
	metrics observability.Metrics,
) *PaymentProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &PaymentProcessor{
		uow:          uow,
		ledger:       ledger,
		catalog:      catalog,
		identity:     identity,
		upserter:     upserter,
		outbox:       outboxRepo,
		synchronizer: synchronizer,
		retry:        sharedApplication.DefaultRetryPolicy(),
		logger:       logger,
		metrics:      metrics,
		now:          time.Now,
	}
}

// ProcessPayment applies the payment once per transaction id. The payer must
// be a known user; otherwise nothing is written and the payment is retried.
// The ledger claim, subscription upsert and outbox events commit together; roles are
// reconciled afterwards, so a redelivered payment that was already applied
// still converges the user's roles. Invalid payments are dead-lettered and
// every other failure is retryable.
func (p *PaymentProcessor) ProcessPayment(ctx context.Context, evt domain.PaymentConfirmed) (Outcome, error) {
	span := observability.StartSpan(ctx, "process_payment", nil, p.metrics)
	logger := p.logger.With("transaction_id", evt.TransactionID, "user_id", evt.UserID)

	outcome, err := p.process(ctx, logger, evt)

	p.metrics.Counter(observability.MetricPaymentsProcessed, 1, observability.T("outcome", string(outcome)))
	p.metrics.Timing(observability.MetricPaymentDuration, span.End(err))

	switch outcome {
	case OutcomeAck:
		logger.InfoContext(ctx, "payment processed", "outcome", outcome)
	default:
		logger.WarnContext(ctx, "payment not processed", "outcome", outcome, "error", err)
	}
	return outcome, err
}

func (p *PaymentProcessor) process(ctx context.Context, logger *slog.Logger, evt domain.PaymentConfirmed) (Outcome, error) {
	if err := sharedApplication.Validate(evt); err != nil {
		return OutcomeDeadLetter, err
	}
	if evt.PackageID == nil {
		return OutcomeDeadLetter, ErrMissingPackage
	}

	now := p.now().UTC()
	var applied *UpsertResult
	err := sharedApplication.WithUnitOfWorkRetry(ctx, p.uow, p.retry, func(txCtx context.Context) error {
		applied = nil
		if err := p.requireUser(txCtx, evt.UserID); err != nil {
			return err
		}
		claimed, err := p.ledger.Claim(txCtx, domain.LedgerEntry{
			TransactionID: evt.TransactionID,
			UserID:        evt.UserID,
			PackageID:     evt.PackageID,
			ProcessedAt:   now,
		})
		if err != nil {
			return err
		}
		if !claimed {
			return nil
		}

		pkg, err := p.catalog.GetPackage(txCtx, *evt.PackageID)
		if err != nil {
			return err
		}
		if !pkg.Active {
			logger.WarnContext(txCtx, "payment for inactive package honored", "package_id", pkg.ID)
		}

		result, err := p.upserter.Upsert(txCtx, evt.UserID, pkg, now)
		if err != nil {
			return err
		}
		if err := p.ledger.Complete(txCtx, evt.TransactionID, result.Subscription.ID(), result.Outcome()); err != nil {
			return err
		}
		if err := recordEvents(txCtx, p.outbox, sharedApplication.TraceFor(ctx, evt.UserID), result.Retired, result.Subscription); err != nil {
			return err
		}
		applied = result
		return nil
	})
	if err != nil {
		return classify(err), err
	}

	if applied == nil {
		logger.InfoContext(ctx, "payment already applied")
	} else {
		p.recordUpsert(ctx, logger, applied)
	}

	if _, err := p.synchronizer.Reconcile(ctx, evt.UserID, now); err != nil {
		return classify(err), err
	}
	return OutcomeAck, nil
}

func (p *PaymentProcessor) requireUser(ctx context.Context, userID uuid.UUID) error {
	user, err := p.identity.FindUser(ctx, userID)
	if err != nil {
		return identityError("find user", err)
	}
	if user == nil || user.Deleted {
		return domain.ErrUserNotFound
	}
	return nil
}

func (p *PaymentProcessor) recordUpsert(ctx context.Context, logger *slog.Logger, result *UpsertResult) {
	if result.Retired != nil {
		p.metrics.Counter(observability.MetricSubscriptionsExpired, 1)
	}
	metric := observability.MetricSubscriptionsExtended
	if result.Created {
		metric = observability.MetricSubscriptionsActivated
	}
	p.metrics.Counter(metric, 1)

	logger.InfoContext(ctx, "subscription "+result.Outcome(),
		"subscription_id", result.Subscription.ID(),
		"package_id", result.Subscription.PackageID(),
		"end_date", result.Subscription.EndDate(),
	)
}

func classify(err error) Outcome {
	if errors.Is(err, sharedDomain.ErrInvalid) {
		return OutcomeDeadLetter
	}
	return OutcomeRetry
}
