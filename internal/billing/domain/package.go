package domain

import (
	"context"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

var (
	ErrPackageNotFound = sharedDomain.NewError(sharedDomain.ErrNotFound, "package not found")
	ErrPackageInactive = sharedDomain.NewError(sharedDomain.ErrInvalid, "package is not available for purchase")
)

// Package is the billing view of a catalog package.
type Package struct {
	ID           uuid.UUID
	Name         string
	Role         string
	DurationDays int
	Active       bool
}

// Duration is the time one purchase adds.
func (p Package) Duration() time.Duration {
	return time.Duration(p.DurationDays) * 24 * time.Hour
}

// PackageCatalog resolves packages for billing.
type PackageCatalog interface {
	// GetPackage returns ErrPackageNotFound when the package does not exist.
	GetPackage(ctx context.Context, id uuid.UUID) (Package, error)
	// ListPackages returns every package, active or not.
	ListPackages(ctx context.Context) ([]Package, error)
}
