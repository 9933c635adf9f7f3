package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
)

// CreatePackageCommand contains the data needed to create a package.
type CreatePackageCommand struct {
	Name           string          `json:"name" validate:"required,max=200"`
	Description    string          `json:"description" validate:"max=2000"`
	Price          decimal.Decimal `json:"price" validate:"gt=0"`
	DurationDays   int             `json:"duration_days" validate:"gt=0"`
	AssociatedRole string          `json:"associated_role" validate:"required,max=100"`
	Status         string          `json:"status" validate:"omitempty,oneof=active inactive"`
}

func (c CreatePackageCommand) spec() domain.PackageSpec {
	return domain.PackageSpec{
		Name:           c.Name,
		Description:    c.Description,
		Price:          c.Price,
		DurationDays:   c.DurationDays,
		AssociatedRole: c.AssociatedRole,
		Status:         domain.Status(c.Status),
	}
}

// CreatePackageResult contains the result of creating a package.
type CreatePackageResult struct {
	PackageID uuid.UUID
}

// CreatePackageHandler handles the CreatePackageCommand.
type CreatePackageHandler struct {
	packageRepo domain.PackageRepository
	uow         sharedApplication.UnitOfWork
}

// NewCreatePackageHandler creates a new CreatePackageHandler.
func NewCreatePackageHandler(
	packageRepo domain.PackageRepository,
	uow sharedApplication.UnitOfWork,
) *CreatePackageHandler {
	return &CreatePackageHandler{
		packageRepo: packageRepo,
		uow:         uow,
	}
}

// Handle executes the CreatePackageCommand.
func (h *CreatePackageHandler) Handle(ctx context.Context, cmd CreatePackageCommand) (*CreatePackageResult, error) {
	if err := sharedApplication.Validate(cmd); err != nil {
		return nil, err
	}

	pkg, err := domain.NewPackage(cmd.spec(), time.Now())
	if err != nil {
		return nil, err
	}

	err = sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		return h.packageRepo.Save(txCtx, pkg)
	})
	if err != nil {
		return nil, err
	}

	return &CreatePackageResult{PackageID: pkg.ID()}, nil
}
