package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// SubscribeCommand subscribes a user to a package without a payment.
type SubscribeCommand struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	PackageID uuid.UUID `json:"package_id" validate:"required"`
}

// RenewCommand extends one of the user's subscriptions.
type RenewCommand struct {
	UserID         uuid.UUID `json:"user_id" validate:"required"`
	SubscriptionID uuid.UUID `json:"subscription_id" validate:"required"`
	AdditionalDays int       `json:"additional_days" validate:"gt=0"`
}

// CancelCommand cancels one of the user's subscriptions.
type CancelCommand struct {
	UserID         uuid.UUID `json:"user_id" validate:"required"`
	SubscriptionID uuid.UUID `json:"subscription_id" validate:"required"`
}

// SubscriptionDTO is a subscription with its package details.
type SubscriptionDTO struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"user_id"`
	PackageID   uuid.UUID `json:"package_id"`
	PackageName string    `json:"package_name,omitempty"`
	Role        string    `json:"role,omitempty"`
	StartDate   time.Time `json:"start_date"`
	EndDate     time.Time `json:"end_date"`
	Status      string    `json:"status"`
	Active      bool      `json:"active"`
}

// SubscriptionService handles direct subscription commands.
type SubscriptionService struct {
	uow           sharedApplication.UnitOfWork
	subscriptions domain.SubscriptionRepository
	catalog       domain.PackageCatalog
	identity      domain.IdentityProvider
	upserter      *Upserter
	outbox        outbox.Repository
	synchronizer  *Synchronizer
	logger        *slog.Logger
	metrics       observability.Metrics
	now           func() time.Time
}

// NewSubscriptionService creates a new SubscriptionService.
func NewSubscriptionService(
	uow sharedApplication.UnitOfWork,
	subscriptions domain.SubscriptionRepository,
	catalog domain.PackageCatalog,
	identity domain.IdentityProvider,
	upserter *Upserter,
	outboxRepo outbox.Repository,
	synchronizer *Synchronizer,
	logger *slog.Logger,
	metrics observability.Metrics,
) *SubscriptionService {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &SubscriptionService{
		uow:           uow,
		subscriptions: subscriptions,
		catalog:       catalog,
		identity:      identity,
		upserter:      upserter,
		outbox:        outboxRepo,
		synchronizer:  synchronizer,
		logger:        logger,
		metrics:       metrics,
		now:           time.Now,
	}
}

// Subscribe creates or extends the user's subscription to an active package
// and grants its role.
func (s *SubscriptionService) Subscribe(ctx context.Context, cmd SubscribeCommand) (*SubscriptionDTO, error) {
	if err := sharedApplication.Validate(cmd); err != nil {
		return nil, err
	}

	pkg, err := s.catalog.GetPackage(ctx, cmd.PackageID)
	if err != nil {
		return nil, err
	}
	if !pkg.Active {
		return nil, domain.ErrPackageInactive
	}

	user, err := s.identity.FindUser(ctx, cmd.UserID)
	if err != nil {
		return nil, identityError("find user", err)
	}
	if user == nil || user.Deleted {
		return nil, domain.ErrUserNotFound
	}

	now := s.now().UTC()
	var result *UpsertResult
	err = sharedApplication.WithUnitOfWorkRetry(ctx, s.uow, sharedApplication.DefaultRetryPolicy(), func(txCtx context.Context) error {
		res, err := s.upserter.Upsert(txCtx, cmd.UserID, pkg, now)
		if err != nil {
			return err
		}
		result = res
		return recordEvents(txCtx, s.outbox, sharedApplication.TraceFor(ctx, cmd.UserID), res.Retired, res.Subscription)
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		s.metrics.Counter(observability.MetricSubscriptionsActivated, 1)
	} else {
		s.metrics.Counter(observability.MetricSubscriptionsExtended, 1)
	}
	s.reconcile(ctx, cmd.UserID, now)

	dto := toSubscriptionDTO(result.Subscription, pkg, now)
	return &dto, nil
}

// Renew adds days to one of the user's active subscriptions, counted from
// its current end date.
func (s *SubscriptionService) Renew(ctx context.Context, cmd RenewCommand) (*SubscriptionDTO, error) {
	if err := sharedApplication.Validate(cmd); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	var sub *domain.Subscription
	err := sharedApplication.WithUnitOfWorkRetry(ctx, s.uow, sharedApplication.DefaultRetryPolicy(), func(txCtx context.Context) error {
		found, err := s.findOwned(txCtx, cmd.UserID, cmd.SubscriptionID)
		if err != nil {
			return err
		}
		if err := found.Extend(time.Duration(cmd.AdditionalDays)*24*time.Hour, now); err != nil {
			return err
		}
		if err := s.subscriptions.Save(txCtx, found); err != nil {
			return err
		}
		sub = found
		return recordEvents(txCtx, s.outbox, sharedApplication.TraceFor(ctx, cmd.UserID), found)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Counter(observability.MetricSubscriptionsExtended, 1)
	dto := s.describe(ctx, sub, now)
	return &dto, nil
}

// Cancel cancels one of the user's active subscriptions and revokes any role
// no other active subscription still covers.
func (s *SubscriptionService) Cancel(ctx context.Context, cmd CancelCommand) error {
	if err := sharedApplication.Validate(cmd); err != nil {
		return err
	}

	now := s.now().UTC()
	err := sharedApplication.WithUnitOfWorkRetry(ctx, s.uow, sharedApplication.DefaultRetryPolicy(), func(txCtx context.Context) error {
		sub, err := s.findOwned(txCtx, cmd.UserID, cmd.SubscriptionID)
		if err != nil {
			return err
		}
		if err := sub.Cancel(now); err != nil {
			return err
		}
		if err := s.subscriptions.Save(txCtx, sub); err != nil {
			return err
		}
		return recordEvents(txCtx, s.outbox, sharedApplication.TraceFor(ctx, cmd.UserID), sub)
	})
	if err != nil {
		return err
	}

	s.metrics.Counter(observability.MetricSubscriptionsCancelled, 1)
	s.reconcile(ctx, cmd.UserID, now)
	return nil
}

// ListUserSubscriptions returns all of the user's subscriptions.
func (s *SubscriptionService) ListUserSubscriptions(ctx context.Context, userID uuid.UUID) ([]SubscriptionDTO, error) {
	subs, err := s.subscriptions.FindByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	packages, err := s.catalog.ListPackages(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]domain.Package, len(packages))
	for _, p := range packages {
		byID[p.ID] = p
	}

	now := s.now().UTC()
	dtos := make([]SubscriptionDTO, 0, len(subs))
	for _, sub := range subs {
		dtos = append(dtos, toSubscriptionDTO(sub, byID[sub.PackageID()], now))
	}
	return dtos, nil
}

func (s *SubscriptionService) findOwned(ctx context.Context, userID, subscriptionID uuid.UUID) (*domain.Subscription, error) {
	sub, err := s.subscriptions.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	if sub.UserID() != userID {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

// reconcile runs after the subscription change committed. A failure leaves
// roles stale until the next login or sweep.
func (s *SubscriptionService) reconcile(ctx context.Context, userID uuid.UUID, now time.Time) {
	if _, err := s.synchronizer.Reconcile(ctx, userID, now); err != nil {
		s.logger.WarnContext(ctx, "role reconciliation deferred", "user_id", userID, "error", err)
	}
}

func (s *SubscriptionService) describe(ctx context.Context, sub *domain.Subscription, now time.Time) SubscriptionDTO {
	pkg, err := s.catalog.GetPackage(ctx, sub.PackageID())
	if err != nil {
		pkg = domain.Package{ID: sub.PackageID()}
	}
	return toSubscriptionDTO(sub, pkg, now)
}

func toSubscriptionDTO(sub *domain.Subscription, pkg domain.Package, now time.Time) SubscriptionDTO {
	return SubscriptionDTO{
		ID:          sub.ID(),
		UserID:      sub.UserID(),
		PackageID:   sub.PackageID(),
		PackageName: pkg.Name,
		Role:        pkg.Role,
		StartDate:   sub.StartDate(),
		EndDate:     sub.EndDate(),
		Status:      string(sub.Status()),
		Active:      sub.IsActiveAt(now),
	}
}
