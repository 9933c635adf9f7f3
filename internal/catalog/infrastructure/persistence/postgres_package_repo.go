package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
)

const packageColumns = `id, name, description, price::text, duration_days, associated_role, status, created_at, updated_at`

// PostgresPackageRepository handles persistence for packages using PostgreSQL.
type PostgresPackageRepository struct {
	conn database.Connection
}

// NewPostgresPackageRepository creates a new PostgresPackageRepository.
func NewPostgresPackageRepository(conn database.Connection) *PostgresPackageRepository {
	return &PostgresPackageRepository{conn: conn}
}

// Save inserts or updates a package.
func (r *PostgresPackageRepository) Save(ctx context.Context, pkg *domain.Package) error {
	query := `
		INSERT INTO service_packages (
			id, name, description, price, duration_days, associated_role, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			price = EXCLUDED.price,
			duration_days = EXCLUDED.duration_days,
			associated_role = EXCLUDED.associated_role,
			status = EXCLUDED.status,
			updated_at = EXCLUDED.updated_at
	`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		pkg.ID(),
		pkg.Name(),
		pkg.Description(),
		pkg.Price().String(),
		pkg.DurationDays(),
		pkg.AssociatedRole(),
		string(pkg.Status()),
		pkg.CreatedAt(),
		pkg.UpdatedAt(),
	)
	return database.Translate(err, "save package")
}

// FindByID retrieves a package by ID.
func (r *PostgresPackageRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM service_packages WHERE id = $1`
	pkg, err := scanPostgresPackage(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrPackageNotFound
	}
	if err != nil {
		return nil, database.Translate(err, "find package")
	}
	return pkg, nil
}

// List returns packages ordered by name.
func (r *PostgresPackageRepository) List(ctx context.Context, onlyActive bool) ([]*domain.Package, error) {
	query := `SELECT ` + packageColumns + ` FROM service_packages WHERE ($1 = FALSE OR status = 'active') ORDER BY name, id`
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, onlyActive)
	if err != nil {
		return nil, database.Translate(err, "list packages")
	}
	defer rows.Close()

	var packages []*domain.Package
	for rows.Next() {
		pkg, err := scanPostgresPackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// Delete removes a package.
func (r *PostgresPackageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `DELETE FROM service_packages WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err, "delete package")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrPackageNotFound
	}
	return nil
}

func scanPostgresPackage(row database.Row) (*domain.Package, error) {
	var (
		id                   uuid.UUID
		spec                 domain.PackageSpec
		price, status        string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &spec.Name, &spec.Description, &price, &spec.DurationDays,
		&spec.AssociatedRole, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return toPackage(id, spec, price, status, createdAt, updatedAt)
}

func toPackage(id uuid.UUID, spec domain.PackageSpec, price, status string, createdAt, updatedAt time.Time) (*domain.Package, error) {
	var err error
	if spec.Price, err = decimal.NewFromString(price); err != nil {
		return nil, err
	}
	if spec.Status, err = domain.ParseStatus(status); err != nil {
		return nil, err
	}
	return domain.RehydratePackage(id, spec, createdAt, updatedAt), nil
}

var _ domain.PackageRepository = (*PostgresPackageRepository)(nil)
