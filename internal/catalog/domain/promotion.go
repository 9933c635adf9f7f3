package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

var (
	ErrPromotionNotFound   = sharedDomain.NewError(sharedDomain.ErrNotFound, "promotion not found")
	ErrInvalidDiscountType = sharedDomain.NewError(sharedDomain.ErrInvalid, "discount type must be percentage or fixed_amount")
	ErrInvalidDiscount     = sharedDomain.NewError(sharedDomain.ErrInvalid, "discount value must be greater than zero")
	ErrPercentageTooLarge  = sharedDomain.NewError(sharedDomain.ErrInvalid, "percentage discount cannot exceed 100")
	ErrInvalidValidity     = sharedDomain.NewError(sharedDomain.ErrInvalid, "promotion must start before it ends")
)

// DiscountType selects how a promotion reduces the price.
type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

var hundred = decimal.NewFromInt(100)

// PromotionSpec holds the editable attributes of a promotion.
type PromotionSpec struct {
	Description   string
	DiscountType  DiscountType
	DiscountValue decimal.Decimal
	ValidFrom     time.Time
	ValidTo       time.Time
}

func (s PromotionSpec) normalize() (PromotionSpec, error) {
	s.Description = strings.TrimSpace(s.Description)
	s.ValidFrom = s.ValidFrom.UTC()
	s.ValidTo = s.ValidTo.UTC()

	switch s.DiscountType {
	case DiscountPercentage, DiscountFixedAmount:
	default:
		return s, ErrInvalidDiscountType
	}
	if !s.DiscountValue.IsPositive() {
		return s, ErrInvalidDiscount
	}
	if s.DiscountType == DiscountPercentage && s.DiscountValue.GreaterThan(hundred) {
		return s, ErrPercentageTooLarge
	}
	if !s.ValidFrom.Before(s.ValidTo) {
		return s, ErrInvalidValidity
	}
	return s, nil
}

// Promotion is discount metadata attached to a package. It never affects
// entitlements.
type Promotion struct {
	sharedDomain.BaseEntity
	packageID uuid.UUID
	spec      PromotionSpec
}

// NewPromotion validates spec and creates a promotion for packageID.
func NewPromotion(packageID uuid.UUID, spec PromotionSpec, now time.Time) (*Promotion, error) {
	spec, err := spec.normalize()
	if err != nil {
		return nil, err
	}
	return &Promotion{
		BaseEntity: sharedDomain.NewBaseEntity(now),
		packageID:  packageID,
		spec:       spec,
	}, nil
}

// RehydratePromotion recreates a promotion from persisted state.
func RehydratePromotion(id, packageID uuid.UUID, spec PromotionSpec, createdAt, updatedAt time.Time) *Promotion {
	return &Promotion{
		BaseEntity: sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt),
		packageID:  packageID,
		spec:       spec,
	}
}

func (p *Promotion) PackageID() uuid.UUID           { return p.packageID }
func (p *Promotion) Description() string            { return p.spec.Description }
func (p *Promotion) DiscountType() DiscountType     { return p.spec.DiscountType }
func (p *Promotion) DiscountValue() decimal.Decimal { return p.spec.DiscountValue }
func (p *Promotion) ValidFrom() time.Time           { return p.spec.ValidFrom }
func (p *Promotion) ValidTo() time.Time             { return p.spec.ValidTo }
func (p *Promotion) Spec() PromotionSpec            { return p.spec }

// Update replaces the editable attributes.
func (p *Promotion) Update(spec PromotionSpec, now time.Time) error {
	spec, err := spec.normalize()
	if err != nil {
		return err
	}
	p.spec = spec
	p.Touch(now)
	return nil
}

// IsActiveAt reports whether t falls in [ValidFrom, ValidTo).
func (p *Promotion) IsActiveAt(t time.Time) bool {
	return !t.Before(p.spec.ValidFrom) && t.Before(p.spec.ValidTo)
}

// Apply returns the discounted price, never below zero.
func (p *Promotion) Apply(price decimal.Decimal) decimal.Decimal {
	var discounted decimal.Decimal
	switch p.spec.DiscountType {
	case DiscountPercentage:
		discounted = price.Sub(price.Mul(p.spec.DiscountValue).Div(hundred))
	default:
		discounted = price.Sub(p.spec.DiscountValue)
	}
	if discounted.IsNegative() {
		return decimal.Zero
	}
	return discounted.Round(2)
}
