package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/sqlite"
)

const sqlitePackageColumns = `id, name, description, price, duration_days, associated_role, status, created_at, updated_at`

// SQLitePackageRepository handles persistence for packages using SQLite.
type SQLitePackageRepository struct {
	conn database.Connection
}

// NewSQLitePackageRepository creates a new SQLitePackageRepository.
func NewSQLitePackageRepository(conn database.Connection) *SQLitePackageRepository {
	return &SQLitePackageRepository{conn: conn}
}

// Save inserts or updates a package.
func (r *SQLitePackageRepository) Save(ctx context.Context, pkg *domain.Package) error {
	query := `
		INSERT INTO service_packages (
			id, name, description, price, duration_days, associated_role, status, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price,
			duration_days = excluded.duration_days,
			associated_role = excluded.associated_role,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		pkg.ID().String(),
		pkg.Name(),
		pkg.Description(),
		pkg.Price().String(),
		pkg.DurationDays(),
		pkg.AssociatedRole(),
		string(pkg.Status()),
		sqlite.FormatTime(pkg.CreatedAt()),
		sqlite.FormatTime(pkg.UpdatedAt()),
	)
	return database.Translate(err, "save package")
}

// FindByID retrieves a package by ID.
func (r *SQLitePackageRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Package, error) {
	query := `SELECT ` + sqlitePackageColumns + ` FROM service_packages WHERE id = ?`
	pkg, err := scanSQLitePackage(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, id.String()))
	if database.IsNoRows(err) {
		return nil, domain.ErrPackageNotFound
	}
	if err != nil {
		return nil, database.Translate(err, "find package")
	}
	return pkg, nil
}

// List returns packages ordered by name.
func (r *SQLitePackageRepository) List(ctx context.Context, onlyActive bool) ([]*domain.Package, error) {
	query := `SELECT ` + sqlitePackageColumns + ` FROM service_packages WHERE (? = 0 OR status = 'active') ORDER BY name, id`
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, onlyActive)
	if err != nil {
		return nil, database.Translate(err, "list packages")
	}
	defer rows.Close()

	var packages []*domain.Package
	for rows.Next() {
		pkg, err := scanSQLitePackage(rows)
		if err != nil {
			return nil, err
		}
		packages = append(packages, pkg)
	}
	return packages, rows.Err()
}

// Delete removes a package.
func (r *SQLitePackageRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `DELETE FROM service_packages WHERE id = ?`, id.String())
	if err != nil {
		return database.Translate(err, "delete package")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrPackageNotFound
	}
	return nil
}

func scanSQLitePackage(row database.Row) (*domain.Package, error) {
	var (
		id, price, status    string
		createdAt, updatedAt string
		spec                 domain.PackageSpec
	)
	err := row.Scan(&id, &spec.Name, &spec.Description, &price, &spec.DurationDays,
		&spec.AssociatedRole, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	pkgID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	created, err := sqlite.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	updated, err := sqlite.ParseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	return toPackage(pkgID, spec, price, status, created, updated)
}

var _ domain.PackageRepository = (*SQLitePackageRepository)(nil)
