package acl

import (
	"context"
	"errors"

	"github.com/google/uuid"

	billingDomain "github.com/felixgeelhaar/keystone/internal/billing/domain"
	catalogDomain "github.com/felixgeelhaar/keystone/internal/catalog/domain"
)

// Ensure CatalogAdapter implements the billing PackageCatalog port.
var _ billingDomain.PackageCatalog = (*CatalogAdapter)(nil)

// CatalogAdapter exposes catalog packages to billing as billing Packages.
type CatalogAdapter struct {
	packages catalogDomain.PackageRepository
}

// NewCatalogAdapter creates a new catalog adapter.
func NewCatalogAdapter(packages catalogDomain.PackageRepository) *CatalogAdapter {
	return &CatalogAdapter{packages: packages}
}

func (a *CatalogAdapter) GetPackage(ctx context.Context, id uuid.UUID) (billingDomain.Package, error) {
	pkg, err := a.packages.FindByID(ctx, id)
	if errors.Is(err, catalogDomain.ErrPackageNotFound) {
		return billingDomain.Package{}, billingDomain.ErrPackageNotFound
	}
	if err != nil {
		return billingDomain.Package{}, err
	}
	return toBillingPackage(pkg), nil
}

func (a *CatalogAdapter) ListPackages(ctx context.Context) ([]billingDomain.Package, error) {
	pkgs, err := a.packages.List(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]billingDomain.Package, 0, len(pkgs))
	for _, p := range pkgs {
		out = append(out, toBillingPackage(p))
	}
	return out, nil
}

func toBillingPackage(p *catalogDomain.Package) billingDomain.Package {
	return billingDomain.Package{
		ID:           p.ID(),
		Name:         p.Name(),
		Role:         p.AssociatedRole(),
		DurationDays: p.DurationDays(),
		Active:       p.IsActive(),
	}
}
