package commands

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
)

// ActiveSubscriptionChecker reports whether a package still backs an active
// subscription.
type ActiveSubscriptionChecker interface {
	ExistsActiveForPackage(ctx context.Context, packageID uuid.UUID) (bool, error)
}

// DeletePackageCommand contains the data needed to delete a package.
type DeletePackageCommand struct {
	PackageID uuid.UUID
}

// DeletePackageHandler handles the DeletePackageCommand.
type DeletePackageHandler struct {
	packageRepo   domain.PackageRepository
	subscriptions ActiveSubscriptionChecker
	uow           sharedApplication.UnitOfWork
}

// NewDeletePackageHandler creates a new DeletePackageHandler.
func NewDeletePackageHandler(
	packageRepo domain.PackageRepository,
	subscriptions ActiveSubscriptionChecker,
	uow sharedApplication.UnitOfWork,
) *DeletePackageHandler {
	return &DeletePackageHandler{
		packageRepo:   packageRepo,
		subscriptions: subscriptions,
		uow:           uow,
	}
}

// Handle executes the DeletePackageCommand.
func (h *DeletePackageHandler) Handle(ctx context.Context, cmd DeletePackageCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if _, err := h.packageRepo.FindByID(txCtx, cmd.PackageID); err != nil {
			return err
		}

		inUse, err := h.subscriptions.ExistsActiveForPackage(txCtx, cmd.PackageID)
		if err != nil {
			return err
		}
		if inUse {
			return domain.ErrPackageInUse
		}

		return h.packageRepo.Delete(txCtx, cmd.PackageID)
	})
}
