package domain

import (
	"context"

	"github.com/google/uuid"
)

// PackageRepository defines the interface for package persistence.
type PackageRepository interface {
	Save(ctx context.Context, pkg *Package) error
	FindByID(ctx context.Context, id uuid.UUID) (*Package, error)
	List(ctx context.Context, onlyActive bool) ([]*Package, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// PromotionRepository defines the interface for promotion persistence.
type PromotionRepository interface {
	Save(ctx context.Context, promotion *Promotion) error
	FindByID(ctx context.Context, id uuid.UUID) (*Promotion, error)
	ListByPackage(ctx context.Context, packageID uuid.UUID) ([]*Promotion, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
