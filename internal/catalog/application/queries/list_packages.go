package queries

import (
	"context"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
)

// ListPackagesQuery contains the parameters for listing packages.
type ListPackagesQuery struct {
	OnlyActive bool
}

// ListPackagesHandler handles the ListPackagesQuery.
type ListPackagesHandler struct {
	packageRepo domain.PackageRepository
}

// NewListPackagesHandler creates a new ListPackagesHandler.
func NewListPackagesHandler(packageRepo domain.PackageRepository) *ListPackagesHandler {
	return &ListPackagesHandler{packageRepo: packageRepo}
}

// Handle executes the ListPackagesQuery.
func (h *ListPackagesHandler) Handle(ctx context.Context, query ListPackagesQuery) ([]PackageDTO, error) {
	packages, err := h.packageRepo.List(ctx, query.OnlyActive)
	if err != nil {
		return nil, err
	}

	dtos := make([]PackageDTO, 0, len(packages))
	for _, pkg := range packages {
		dtos = append(dtos, toPackageDTO(pkg))
	}
	return dtos, nil
}
