package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// packageSnapshot is the cached form of a package.
type packageSnapshot struct {
	ID             uuid.UUID       `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Price          decimal.Decimal `json:"price"`
	DurationDays   int             `json:"duration_days"`
	AssociatedRole string          `json:"associated_role"`
	Status         string          `json:"status"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func snapshotOf(p *domain.Package) packageSnapshot {
	return packageSnapshot{
		ID:             p.ID(),
		Name:           p.Name(),
		Description:    p.Description(),
		Price:          p.Price(),
		DurationDays:   p.DurationDays(),
		AssociatedRole: p.AssociatedRole(),
		Status:         string(p.Status()),
		CreatedAt:      p.CreatedAt(),
		UpdatedAt:      p.UpdatedAt(),
	}
}

func (s packageSnapshot) toDomain() (*domain.Package, error) {
	status, err := domain.ParseStatus(s.Status)
	if err != nil {
		return nil, err
	}
	return domain.RehydratePackage(s.ID, domain.PackageSpec{
		Name:           s.Name,
		Description:    s.Description,
		Price:          s.Price,
		DurationDays:   s.DurationDays,
		AssociatedRole: s.AssociatedRole,
		Status:         status,
	}, s.CreatedAt, s.UpdatedAt), nil
}

// CachedPackageRepository decorates a PackageRepository with a read-through
// cache on FindByID. Writes go to the inner repository first and then evict.
// Cache failures are logged and never fail the call.
type CachedPackageRepository struct {
	inner   domain.PackageRepository
	store   Store
	ttl     time.Duration
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewCachedPackageRepository wraps inner with store.
func NewCachedPackageRepository(
	inner domain.PackageRepository,
	store Store,
	ttl time.Duration,
	logger *slog.Logger,
	metrics observability.Metrics,
) *CachedPackageRepository {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &CachedPackageRepository{
		inner:   inner,
		store:   store,
		ttl:     ttl,
		logger:  logger,
		metrics: metrics,
	}
}

func packageKey(id uuid.UUID) string {
	return "package:" + id.String()
}

// FindByID serves from the cache when possible.
func (r *CachedPackageRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Package, error) {
	key := packageKey(id)

	if raw, ok, err := r.store.Get(ctx, key); err != nil {
		r.logger.WarnContext(ctx, "catalog cache read failed", "key", key, "error", err)
	} else if ok {
		var snap packageSnapshot
		if err := json.Unmarshal(raw, &snap); err == nil {
			if pkg, err := snap.toDomain(); err == nil {
				r.metrics.Counter(observability.MetricCatalogCacheHits, 1)
				return pkg, nil
			}
		}
		r.logger.WarnContext(ctx, "discarding corrupt catalog cache entry", "key", key)
	}
	r.metrics.Counter(observability.MetricCatalogCacheMisses, 1)

	pkg, err := r.inner.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(snapshotOf(pkg))
	if err == nil {
		err = r.store.Set(ctx, key, raw, r.ttl)
	}
	if err != nil {
		r.logger.WarnContext(ctx, "catalog cache write failed", "key", key, "error", err)
	}
	return pkg, nil
}

// Save persists the package and evicts its cache entry.
func (r *CachedPackageRepository) Save(ctx context.Context, pkg *domain.Package) error {
	if err := r.inner.Save(ctx, pkg); err != nil {
		return err
	}
	r.evict(ctx, pkg.ID())
	return nil
}

// Delete removes the package and evicts its cache entry.
func (r *CachedPackageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.evict(ctx, id)
	return nil
}

// List is not cached.
func (r *CachedPackageRepository) List(ctx context.Context, onlyActive bool) ([]*domain.Package, error) {
	return r.inner.List(ctx, onlyActive)
}

func (r *CachedPackageRepository) evict(ctx context.Context, id uuid.UUID) {
	if err := r.store.Delete(ctx, packageKey(id)); err != nil {
		r.logger.WarnContext(ctx, "catalog cache eviction failed", "package_id", id, "error", err)
	}
}

var _ domain.PackageRepository = (*CachedPackageRepository)(nil)
