package application

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
)

// EntitlementService exposes role reconciliation to the login path.
type EntitlementService struct {
	sweeper  *Sweeper
	identity domain.IdentityProvider
	logger   *slog.Logger
	now      func() time.Time
}

// NewEntitlementService creates a new EntitlementService.
func NewEntitlementService(sweeper *Sweeper, identity domain.IdentityProvider, logger *slog.Logger) *EntitlementService {
	if logger == nil {
		logger = slog.Default()
	}
	return &EntitlementService{
		sweeper:  sweeper,
		identity: identity,
		logger:   logger,
		now:      time.Now,
	}
}

// ReconcileAndGetRoles sweeps and reconciles the user, then returns the
// roles the identity provider holds. A failed sweep is logged and the
// current roles are returned; only a failure to read roles is an error.
func (s *EntitlementService) ReconcileAndGetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	if _, err := s.sweeper.Sweep(ctx, userID, s.now().UTC()); err != nil {
		s.logger.WarnContext(ctx, "entitlement sweep failed, returning current roles",
			"user_id", userID,
			"error", err,
		)
	}

	roles, err := s.identity.GetRoles(ctx, userID)
	if err != nil {
		return nil, identityError("get roles", err)
	}
	sort.Strings(roles)
	return roles, nil
}
