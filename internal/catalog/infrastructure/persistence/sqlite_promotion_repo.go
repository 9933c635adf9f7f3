package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/sqlite"
)

const sqlitePromotionColumns = `id, package_id, description, discount_type, discount_value, valid_from, valid_to, created_at, updated_at`

// SQLitePromotionRepository handles persistence for promotions using SQLite.
type SQLitePromotionRepository struct {
	conn database.Connection
}

// NewSQLitePromotionRepository creates a new SQLitePromotionRepository.
func NewSQLitePromotionRepository(conn database.Connection) *SQLitePromotionRepository {
	return &SQLitePromotionRepository{conn: conn}
}

// Save inserts or updates a promotion.
func (r *SQLitePromotionRepository) Save(ctx context.Context, p *domain.Promotion) error {
	query := `
		INSERT INTO service_package_promotions (
			id, package_id, description, discount_type, discount_value, valid_from, valid_to, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			description = excluded.description,
			discount_type = excluded.discount_type,
			discount_value = excluded.discount_value,
			valid_from = excluded.valid_from,
			valid_to = excluded.valid_to,
			updated_at = excluded.updated_at
	`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		p.ID().String(),
		p.PackageID().String(),
		p.Description(),
		string(p.DiscountType()),
		p.DiscountValue().String(),
		sqlite.FormatTime(p.ValidFrom()),
		sqlite.FormatTime(p.ValidTo()),
		sqlite.FormatTime(p.CreatedAt()),
		sqlite.FormatTime(p.UpdatedAt()),
	)
	if database.IsForeignKeyViolation(err) {
		return domain.ErrPackageNotFound
	}
	return database.Translate(err, "save promotion")
}

// FindByID retrieves a promotion by ID.
func (r *SQLitePromotionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Promotion, error) {
	query := `SELECT ` + sqlitePromotionColumns + ` FROM service_package_promotions WHERE id = ?`
	p, err := scanSQLitePromotion(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, id.String()))
	if database.IsNoRows(err) {
		return nil, domain.ErrPromotionNotFound
	}
	if err != nil {
		return nil, database.Translate(err, "find promotion")
	}
	return p, nil
}

// ListByPackage returns the promotions of a package ordered by start.
func (r *SQLitePromotionRepository) ListByPackage(ctx context.Context, packageID uuid.UUID) ([]*domain.Promotion, error) {
	query := `SELECT ` + sqlitePromotionColumns + ` FROM service_package_promotions WHERE package_id = ? ORDER BY valid_from, id`
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, packageID.String())
	if err != nil {
		return nil, database.Translate(err, "list promotions")
	}
	defer rows.Close()

	var promotions []*domain.Promotion
	for rows.Next() {
		p, err := scanSQLitePromotion(rows)
		if err != nil {
			return nil, err
		}
		promotions = append(promotions, p)
	}
	return promotions, rows.Err()
}

// Delete removes a promotion.
func (r *SQLitePromotionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `DELETE FROM service_package_promotions WHERE id = ?`, id.String())
	if err != nil {
		return database.Translate(err, "delete promotion")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrPromotionNotFound
	}
	return nil
}

func scanSQLitePromotion(row database.Row) (*domain.Promotion, error) {
	var (
		id, packageID, discountType, value string
		validFrom, validTo                 string
		createdAt, updatedAt               string
		spec                               domain.PromotionSpec
	)
	err := row.Scan(&id, &packageID, &spec.Description, &discountType, &value,
		&validFrom, &validTo, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	promotionID, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	pkgID, err := uuid.Parse(packageID)
	if err != nil {
		return nil, err
	}
	if spec.ValidFrom, err = sqlite.ParseTime(validFrom); err != nil {
		return nil, err
	}
	if spec.ValidTo, err = sqlite.ParseTime(validTo); err != nil {
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
	return toPromotion(promotionID, pkgID, spec, discountType, value, created, updated)
}

var _ domain.PromotionRepository = (*SQLitePromotionRepository)(nil)
