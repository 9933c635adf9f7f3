package commands

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
)

// UpdatePackageCommand replaces the editable attributes of a package.
type UpdatePackageCommand struct {
	PackageID      uuid.UUID       `json:"package_id" validate:"required"`
	Name           string          `json:"name" validate:"required,max=200"`
	Description    string          `json:"description" validate:"max=2000"`
	Price          decimal.Decimal `json:"price" validate:"gt=0"`
	DurationDays   int             `json:"duration_days" validate:"gt=0"`
	AssociatedRole string          `json:"associated_role" validate:"required,max=100"`
	Status         string          `json:"status" validate:"required,oneof=active inactive"`
}

// UpdatePackageHandler handles the UpdatePackageCommand.
type UpdatePackageHandler struct {
	packageRepo   domain.PackageRepository
	subscriptions ActiveSubscriptionChecker
	uow           sharedApplication.UnitOfWork
}

// NewUpdatePackageHandler creates a new UpdatePackageHandler.
func NewUpdatePackageHandler(
	packageRepo domain.PackageRepository,
	subscriptions ActiveSubscriptionChecker,
	uow sharedApplication.UnitOfWork,
) *UpdatePackageHandler {
	return &UpdatePackageHandler{
		packageRepo:   packageRepo,
		subscriptions: subscriptions,
		uow:           uow,
	}
}

// Handle executes the UpdatePackageCommand. The role of a package that still
// backs an active subscription cannot change.
func (h *UpdatePackageHandler) Handle(ctx context.Context, cmd UpdatePackageCommand) error {
	if err := sharedApplication.Validate(cmd); err != nil {
		return err
	}

	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		pkg, err := h.packageRepo.FindByID(txCtx, cmd.PackageID)
		if err != nil {
			return err
		}

		if strings.TrimSpace(cmd.AssociatedRole) != pkg.AssociatedRole() {
			inUse, err := h.subscriptions.ExistsActiveForPackage(txCtx, pkg.ID())
			if err != nil {
				return err
			}
			if inUse {
				return domain.ErrPackageRoleInUse
			}
		}

		err = pkg.Update(domain.PackageSpec{
			Name:           cmd.Name,
			Description:    cmd.Description,
			Price:          cmd.Price,
			DurationDays:   cmd.DurationDays,
			AssociatedRole: cmd.AssociatedRole,
			Status:         domain.Status(cmd.Status),
		}, time.Now())
		if err != nil {
			return err
		}

		return h.packageRepo.Save(txCtx, pkg)
	})
}
