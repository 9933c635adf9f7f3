package queries

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
)

// ListPromotionsQuery contains the parameters for listing a package's promotions.
type ListPromotionsQuery struct {
	PackageID  uuid.UUID
	ActiveOnly bool
}

// ListPromotionsHandler handles the ListPromotionsQuery.
type ListPromotionsHandler struct {
	packageRepo   domain.PackageRepository
	promotionRepo domain.PromotionRepository
}

// NewListPromotionsHandler creates a new ListPromotionsHandler.
func NewListPromotionsHandler(packageRepo domain.PackageRepository, promotionRepo domain.PromotionRepository) *ListPromotionsHandler {
	return &ListPromotionsHandler{packageRepo: packageRepo, promotionRepo: promotionRepo}
}

// Handle executes the ListPromotionsQuery.
func (h *ListPromotionsHandler) Handle(ctx context.Context, query ListPromotionsQuery) ([]PromotionDTO, error) {
	if _, err := h.packageRepo.FindByID(ctx, query.PackageID); err != nil {
		return nil, err
	}

	promotions, err := h.promotionRepo.ListByPackage(ctx, query.PackageID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	dtos := make([]PromotionDTO, 0, len(promotions))
	for _, p := range promotions {
		if query.ActiveOnly && !p.IsActiveAt(now) {
			continue
		}
		dtos = append(dtos, toPromotionDTO(p, now))
	}
	return dtos, nil
}
