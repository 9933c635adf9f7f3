package commands

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
)

// PromotionFields are the editable attributes shared by create and update.
type PromotionFields struct {
	Description   string          `json:"description" validate:"max=500"`
	DiscountType  string          `json:"discount_type" validate:"required,oneof=percentage fixed_amount"`
	DiscountValue decimal.Decimal `json:"discount_value" validate:"gt=0"`
	ValidFrom     time.Time       `json:"valid_from" validate:"required"`
	ValidTo       time.Time       `json:"valid_to" validate:"required,gtfield=ValidFrom"`
}

func (f PromotionFields) spec() domain.PromotionSpec {
	return domain.PromotionSpec{
		Description:   f.Description,
		DiscountType:  domain.DiscountType(f.DiscountType),
		DiscountValue: f.DiscountValue,
		ValidFrom:     f.ValidFrom,
		ValidTo:       f.ValidTo,
	}
}

// CreatePromotionCommand contains the data needed to attach a promotion to a package.
type CreatePromotionCommand struct {
	PackageID uuid.UUID `json:"package_id" validate:"required"`
	PromotionFields
}

// CreatePromotionResult contains the result of creating a promotion.
type CreatePromotionResult struct {
	PromotionID uuid.UUID
}

// UpdatePromotionCommand replaces the editable attributes of a promotion.
type UpdatePromotionCommand struct {
	PromotionID uuid.UUID `json:"promotion_id" validate:"required"`
	PromotionFields
}

// DeletePromotionCommand contains the data needed to delete a promotion.
type DeletePromotionCommand struct {
	PromotionID uuid.UUID
}

// PromotionHandler handles promotion commands.
type PromotionHandler struct {
	packageRepo   domain.PackageRepository
	promotionRepo domain.PromotionRepository
	uow           sharedApplication.UnitOfWork
}

// NewPromotionHandler creates a new PromotionHandler.
func NewPromotionHandler(
	packageRepo domain.PackageRepository,
	promotionRepo domain.PromotionRepository,
	uow sharedApplication.UnitOfWork,
) *PromotionHandler {
	return &PromotionHandler{
		packageRepo:   packageRepo,
		promotionRepo: promotionRepo,
		uow:           uow,
	}
}

// Create executes the CreatePromotionCommand.
func (h *PromotionHandler) Create(ctx context.Context, cmd CreatePromotionCommand) (*CreatePromotionResult, error) {
	if err := sharedApplication.Validate(cmd); err != nil {
		return nil, err
	}

	var result *CreatePromotionResult
	err := sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		if _, err := h.packageRepo.FindByID(txCtx, cmd.PackageID); err != nil {
			return err
		}

		promotion, err := domain.NewPromotion(cmd.PackageID, cmd.spec(), time.Now())
		if err != nil {
			return err
		}
		if err := h.promotionRepo.Save(txCtx, promotion); err != nil {
			return err
		}

		result = &CreatePromotionResult{PromotionID: promotion.ID()}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Update executes the UpdatePromotionCommand.
func (h *PromotionHandler) Update(ctx context.Context, cmd UpdatePromotionCommand) error {
	if err := sharedApplication.Validate(cmd); err != nil {
		return err
	}

	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		promotion, err := h.promotionRepo.FindByID(txCtx, cmd.PromotionID)
		if err != nil {
			return err
		}
		if err := promotion.Update(cmd.spec(), time.Now()); err != nil {
			return err
		}
		return h.promotionRepo.Save(txCtx, promotion)
	})
}

// Delete executes the DeletePromotionCommand.
func (h *PromotionHandler) Delete(ctx context.Context, cmd DeletePromotionCommand) error {
	return sharedApplication.WithUnitOfWork(ctx, h.uow, func(txCtx context.Context) error {
		return h.promotionRepo.Delete(txCtx, cmd.PromotionID)
	})
}
