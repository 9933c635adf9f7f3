package queries

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
)

type fakePackageRepo struct {
	packages []*domain.Package
}

func (r *fakePackageRepo) Save(context.Context, *domain.Package) error { return nil }

func (r *fakePackageRepo) FindByID(_ context.Context, id uuid.UUID) (*domain.Package, error) {
	for _, p := range r.packages {
		if p.ID() == id {
			return p, nil
		}
	}
	return nil, domain.ErrPackageNotFound
}

func (r *fakePackageRepo) List(_ context.Context, onlyActive bool) ([]*domain.Package, error) {
	var out []*domain.Package
	for _, p := range r.packages {
		if onlyActive && !p.IsActive() {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func (r *fakePackageRepo) Delete(context.Context, uuid.UUID) error { return nil }

type fakePromotionRepo struct {
	promotions []*domain.Promotion
}

func (r *fakePromotionRepo) Save(context.Context, *domain.Promotion) error { return nil }

func (r *fakePromotionRepo) FindByID(context.Context, uuid.UUID) (*domain.Promotion, error) {
	return nil, domain.ErrPromotionNotFound
}

func (r *fakePromotionRepo) ListByPackage(_ context.Context, packageID uuid.UUID) ([]*domain.Promotion, error) {
	var out []*domain.Promotion
	for _, p := range r.promotions {
		if p.PackageID() == packageID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *fakePromotionRepo) Delete(context.Context, uuid.UUID) error { return nil }

func mustPackage(t *testing.T, name string, status domain.Status) *domain.Package {
	t.Helper()
	pkg, err := domain.NewPackage(domain.PackageSpec{
		Name:           name,
		Price:          decimal.RequireFromString("100.00"),
		DurationDays:   30,
		AssociatedRole: name,
		Status:         status,
	}, time.Now())
	require.NoError(t, err)
	return pkg
}

func mustPromotion(t *testing.T, packageID uuid.UUID, kind domain.DiscountType, value int64, from, to time.Time) *domain.Promotion {
	t.Helper()
	p, err := domain.NewPromotion(packageID, domain.PromotionSpec{
		DiscountType:  kind,
		DiscountValue: decimal.NewFromInt(value),
		ValidFrom:     from,
		ValidTo:       to,
	}, time.Now())
	require.NoError(t, err)
	return p
}

func TestGetPackageHandler_AppliesBestActivePromotion(t *testing.T) {
	now := time.Now()
	pkg := mustPackage(t, "Coach", domain.StatusActive)
	tenPercent := mustPromotion(t, pkg.ID(), domain.DiscountPercentage, 10, now.Add(-time.Hour), now.Add(time.Hour))
	thirtyOff := mustPromotion(t, pkg.ID(), domain.DiscountFixedAmount, 30, now.Add(-time.Hour), now.Add(time.Hour))
	expired := mustPromotion(t, pkg.ID(), domain.DiscountPercentage, 90, now.Add(-48*time.Hour), now.Add(-24*time.Hour))

	handler := NewGetPackageHandler(
		&fakePackageRepo{packages: []*domain.Package{pkg}},
		&fakePromotionRepo{promotions: []*domain.Promotion{tenPercent, thirtyOff, expired}},
	)

	dto, err := handler.Handle(context.Background(), GetPackageQuery{PackageID: pkg.ID()})
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("100.00").Equal(dto.Price))
	assert.True(t, decimal.RequireFromString("70.00").Equal(dto.EffectivePrice))
	require.NotNil(t, dto.PromotionID)
	assert.Equal(t, thirtyOff.ID(), *dto.PromotionID)
}

func TestGetPackageHandler_NotFound(t *testing.T) {
	handler := NewGetPackageHandler(&fakePackageRepo{}, &fakePromotionRepo{})

	_, err := handler.Handle(context.Background(), GetPackageQuery{PackageID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrPackageNotFound)
}

func TestListPackagesHandler_FiltersInactive(t *testing.T) {
	repo := &fakePackageRepo{packages: []*domain.Package{
		mustPackage(t, "Coach", domain.StatusActive),
		mustPackage(t, "Legacy", domain.StatusInactive),
	}}
	handler := NewListPackagesHandler(repo)

	all, err := handler.Handle(context.Background(), ListPackagesQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	active, err := handler.Handle(context.Background(), ListPackagesQuery{OnlyActive: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Coach", active[0].Name)
	assert.Equal(t, "active", active[0].Status)
}

func TestListPromotionsHandler(t *testing.T) {
	now := time.Now()
	pkg := mustPackage(t, "Coach", domain.StatusActive)
	current := mustPromotion(t, pkg.ID(), domain.DiscountPercentage, 10, now.Add(-time.Hour), now.Add(time.Hour))
	upcoming := mustPromotion(t, pkg.ID(), domain.DiscountPercentage, 20, now.Add(time.Hour), now.Add(2*time.Hour))

	handler := NewListPromotionsHandler(
		&fakePackageRepo{packages: []*domain.Package{pkg}},
		&fakePromotionRepo{promotions: []*domain.Promotion{current, upcoming}},
	)

	all, err := handler.Handle(context.Background(), ListPromotionsQuery{PackageID: pkg.ID()})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.True(t, all[0].Active)
	assert.False(t, all[1].Active)

	active, err := handler.Handle(context.Background(), ListPromotionsQuery{PackageID: pkg.ID(), ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, current.ID(), active[0].ID)

	_, err = handler.Handle(context.Background(), ListPromotionsQuery{PackageID: uuid.New()})
	assert.ErrorIs(t, err, domain.ErrPackageNotFound)
}
