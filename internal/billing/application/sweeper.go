package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// SweepResult summarizes one user's sweep.
type SweepResult struct {
	Expired int
	Changes domain.RoleChanges
}

// SweepAllResult summarizes a batch sweep.
type SweepAllResult struct {
	Users   int
	Expired int
	Failed  int
}

// Sweeper retires subscriptions whose end date has passed and re-syncs roles.
type Sweeper struct {
	uow           sharedApplication.UnitOfWork
	subscriptions domain.SubscriptionRepository
	outbox        outbox.Repository
	synchronizer  *Synchronizer
	retry         sharedApplication.RetryPolicy
	logger        *slog.Logger
	metrics       observability.Metrics
}

// NewSweeper creates a new Sweeper.
func NewSweeper(
	uow sharedApplication.UnitOfWork,
	subscriptions domain.SubscriptionRepository,
	outboxRepo outbox.Repository,
	synchronizer *Synchronizer,
	logger *slog.Logger,
	metrics observability.Metrics,
) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Sweeper{
		uow:           uow,
		subscriptions: subscriptions,
		outbox:        outboxRepo,
		synchronizer:  synchronizer,
		retry:         sharedApplication.DefaultRetryPolicy(),
		logger:        logger,
		metrics:       metrics,
	}
}

// Sweep expires the user's lapsed subscriptions, each in its own
// transaction, then reconciles roles against what was persisted. Roles are
// reconciled even when some expirations failed.
func (s *Sweeper) Sweep(ctx context.Context, userID uuid.UUID, now time.Time) (SweepResult, error) {
	subs, err := s.subscriptions.FindByUser(ctx, userID)
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	var errs error
	for _, sub := range subs {
		if !sub.IsLapsed(now) {
			continue
		}
		expired, err := s.expire(ctx, sub.ID(), now)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire subscription %s: %w", sub.ID(), err))
			continue
		}
		if expired {
			result.Expired++
		}
	}

	changes, err := s.synchronizer.Reconcile(ctx, userID, now)
	if err != nil {
		errs = multierr.Append(errs, err)
	}
	result.Changes = changes

	if result.Expired > 0 {
		s.metrics.Counter(observability.MetricSubscriptionsExpired, int64(result.Expired))
		s.logger.InfoContext(ctx, "lapsed subscriptions expired",
			"user_id", userID,
			"expired", result.Expired,
		)
	}
	return result, errs
}

func (s *Sweeper) expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	var expired bool
	err := sharedApplication.WithUnitOfWorkRetry(ctx, s.uow, s.retry, func(txCtx context.Context) error {
		expired = false
		sub, err := s.subscriptions.FindByID(txCtx, id)
		if err != nil {
			return err
		}
		if !sub.Expire(now) {
			return nil
		}
		if err := s.subscriptions.Save(txCtx, sub); err != nil {
			return err
		}
		expired = true
		return recordEvents(txCtx, s.outbox, sharedApplication.TraceFor(ctx, sub.UserID()), sub)
	})
	return expired, err
}

// SweepAll sweeps users holding lapsed subscriptions, batchSize users at a
// time, until none are left or a page yields only users that already failed.
func (s *Sweeper) SweepAll(ctx context.Context, now time.Time, batchSize int) (SweepAllResult, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	span := observability.StartSpan(ctx, "sweep_all", s.logger, s.metrics)

	var result SweepAllResult
	var errs error
	seen := make(map[uuid.UUID]struct{})
	for {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		users, err := s.subscriptions.ListUsersWithLapsed(ctx, now, batchSize)
		if err != nil {
			errs = multierr.Append(errs, err)
			break
		}

		progressed := false
		for _, userID := range users {
			if _, ok := seen[userID]; ok {
				continue
			}
			seen[userID] = struct{}{}
			progressed = true

			swept, err := s.Sweep(ctx, userID, now)
			result.Users++
			result.Expired += swept.Expired
			if err != nil {
				result.Failed++
				s.metrics.Counter(observability.MetricSweepErrors, 1)
				s.logger.WarnContext(ctx, "sweep failed", "user_id", userID, "error", err)
				errs = multierr.Append(errs, fmt.Errorf("sweep user %s: %w", userID, err))
			}
		}
		if !progressed || len(users) < batchSize {
			break
		}
	}

	s.metrics.Counter(observability.MetricSweepUsers, int64(result.Users))
	s.metrics.Timing(observability.MetricSweepDuration, span.End(errs))
	return result, errs
}
