package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// Synchronizer makes a user's subscription-managed roles match their active
// subscriptions. It reads and writes the identity provider outside any
// subscription transaction; a failed run is repaired by the next one.
type Synchronizer struct {
	subscriptions domain.SubscriptionRepository
	catalog       domain.PackageCatalog
	identity      domain.IdentityProvider
	logger        *slog.Logger
	metrics       observability.Metrics
}

// NewSynchronizer creates a new Synchronizer.
func NewSynchronizer(
	subscriptions domain.SubscriptionRepository,
	catalog domain.PackageCatalog,
	identity domain.IdentityProvider,
	logger *slog.Logger,
	metrics observability.Metrics,
) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Synchronizer{
		subscriptions: subscriptions,
		catalog:       catalog,
		identity:      identity,
		logger:        logger,
		metrics:       metrics,
	}
}

// Reconcile applies the minimal role diff for the user as of now.
func (s *Synchronizer) Reconcile(ctx context.Context, userID uuid.UUID, now time.Time) (domain.RoleChanges, error) {
	subs, err := s.subscriptions.FindByUser(ctx, userID)
	if err != nil {
		return domain.RoleChanges{}, err
	}

	packages, err := s.catalog.ListPackages(ctx)
	if err != nil {
		return domain.RoleChanges{}, err
	}
	roles := domain.NewRoleMap(packages)

	required, unknown := roles.RequiredRoles(subs, now)
	for _, packageID := range unknown {
		s.logger.WarnContext(ctx, "active subscription references unknown package",
			"user_id", userID,
			"package_id", packageID,
		)
	}

	current, err := s.identity.GetRoles(ctx, userID)
	if err != nil {
		return domain.RoleChanges{}, identityError("get roles", err)
	}

	changes := roles.PlanRoleChanges(current, required)
	if changes.IsEmpty() {
		return changes, nil
	}

	if len(changes.Removed) > 0 {
		if err := s.identity.RemoveRoles(ctx, userID, changes.Removed); err != nil {
			return domain.RoleChanges{}, identityError("remove roles", err)
		}
		for _, role := range changes.Removed {
			s.metrics.Counter(observability.MetricRolesRevoked, 1, observability.T("role", role))
		}
	}
	for i, role := range changes.Added {
		if err := s.identity.AddRole(ctx, userID, role); err != nil {
			return domain.RoleChanges{Added: changes.Added[:i], Removed: changes.Removed}, identityError("add role", err)
		}
		s.metrics.Counter(observability.MetricRolesGranted, 1, observability.T("role", role))
	}

	s.logger.InfoContext(ctx, "entitlements reconciled",
		"user_id", userID,
		"added", changes.Added,
		"removed", changes.Removed,
	)
	return changes, nil
}

// identityError marks identity provider failures as transient unless they
// already carry a kind.
func identityError(op string, err error) error {
	for _, kind := range []error{sharedDomain.ErrNotFound, sharedDomain.ErrInvalid, sharedDomain.ErrConflict, sharedDomain.ErrTransient} {
		if errors.Is(err, kind) {
			return fmt.Errorf("identity provider %s: %w", op, err)
		}
	}
	return fmt.Errorf("identity provider %s: %w: %w", op, sharedDomain.ErrTransient, err)
}
