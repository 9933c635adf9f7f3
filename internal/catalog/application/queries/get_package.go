package queries

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
)

// GetPackageQuery contains the parameters for fetching a package.
type GetPackageQuery struct {
	PackageID uuid.UUID
}

// GetPackageHandler handles the GetPackageQuery.
type GetPackageHandler struct {
	packageRepo   domain.PackageRepository
	promotionRepo domain.PromotionRepository
}

// NewGetPackageHandler creates a new GetPackageHandler.
func NewGetPackageHandler(packageRepo domain.PackageRepository, promotionRepo domain.PromotionRepository) *GetPackageHandler {
	return &GetPackageHandler{packageRepo: packageRepo, promotionRepo: promotionRepo}
}

// Handle returns the package with its current effective price.
func (h *GetPackageHandler) Handle(ctx context.Context, query GetPackageQuery) (*PackageDTO, error) {
	pkg, err := h.packageRepo.FindByID(ctx, query.PackageID)
	if err != nil {
		return nil, err
	}

	promotions, err := h.promotionRepo.ListByPackage(ctx, pkg.ID())
	if err != nil {
		return nil, err
	}

	dto := toPackageDTO(pkg)
	applyBestPromotion(&dto, promotions, time.Now())
	return &dto, nil
}
