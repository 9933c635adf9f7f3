package queries

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
)

// PackageDTO is the read model for a package.
type PackageDTO struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	EffectivePrice decimal.Decimal `json:"effective_price"`
	DurationDays   int             `json:"duration_days"`
	AssociatedRole string          `json:"associated_role"`
	Status         string          `json:"status"`
	PromotionID    *uuid.UUID      `json:"promotion_id,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// PromotionDTO is the read model for a promotion.
type PromotionDTO struct {
	ID            uuid.UUID       `json:"id"`
	PackageID     uuid.UUID       `json:"package_id"`
	Description   string          `json:"description"`
	DiscountType  string          `json:"discount_type"`
	DiscountValue decimal.Decimal `json:"discount_value"`
	ValidFrom     time.Time       `json:"valid_from"`
	ValidTo       time.Time       `json:"valid_to"`
	Active        bool            `json:"active"`
}

func toPackageDTO(pkg *domain.Package) PackageDTO {
	return PackageDTO{
		ID:             pkg.ID(),
		Name:           pkg.Name(),
		Description:    pkg.Description(),
		Price:          pkg.Price(),
		EffectivePrice: pkg.Price(),
		DurationDays:   pkg.DurationDays(),
		AssociatedRole: pkg.AssociatedRole(),
		Status:         string(pkg.Status()),
		CreatedAt:      pkg.CreatedAt(),
		UpdatedAt:      pkg.UpdatedAt(),
	}
}

func toPromotionDTO(p *domain.Promotion, now time.Time) PromotionDTO {
	return PromotionDTO{
		ID:            p.ID(),
		PackageID:     p.PackageID(),
		Description:   p.Description(),
		DiscountType:  string(p.DiscountType()),
		DiscountValue: p.DiscountValue(),
		ValidFrom:     p.ValidFrom(),
		ValidTo:       p.ValidTo(),
		Active:        p.IsActiveAt(now),
	}
}

// applyBestPromotion sets the lowest price any promotion active at now yields.
func applyBestPromotion(dto *PackageDTO, promotions []*domain.Promotion, now time.Time) {
	for _, p := range promotions {
		if !p.IsActiveAt(now) {
			continue
		}
		price := p.Apply(dto.Price)
		if price.LessThan(dto.EffectivePrice) {
			id := p.ID()
			dto.EffectivePrice = price
			dto.PromotionID = &id
		}
	}
}
