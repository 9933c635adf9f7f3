package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/felixgeelhaar/keystone/internal/catalog/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
)

const promotionColumns = `id, package_id, description, discount_type, discount_value::text, valid_from, valid_to, created_at, updated_at`

// PostgresPromotionRepository handles persistence for promotions using PostgreSQL.
type PostgresPromotionRepository struct {
	conn database.Connection
}

// NewPostgresPromotionRepository creates a new PostgresPromotionRepository.
func NewPostgresPromotionRepository(conn database.Connection) *PostgresPromotionRepository {
	return &PostgresPromotionRepository{conn: conn}
}

// Save inserts or updates a promotion.
func (r *PostgresPromotionRepository) Save(ctx context.Context, p *domain.Promotion) error {
	query := `
		INSERT INTO service_package_promotions (
			id, package_id, description, discount_type, discount_value, valid_from, valid_to, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			valid_from = EXCLUDED.valid_from,
			valid_to = EXCLUDED.valid_to,
			updated_at = EXCLUDED.updated_at
	`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query,
		p.ID(),
		p.PackageID(),
		p.Description(),
		string(p.DiscountType()),
		p.DiscountValue().String(),
		p.ValidFrom(),
		p.ValidTo(),
		p.CreatedAt(),
		p.UpdatedAt(),
	)
	if database.IsForeignKeyViolation(err) {
		return domain.ErrPackageNotFound
	}
	return database.Translate(err, "save promotion")
}

// FindByID retrieves a promotion by ID.
func (r *PostgresPromotionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM service_package_promotions WHERE id = $1`
	p, err := scanPostgresPromotion(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrPromotionNotFound
	}
	if err != nil {
		return nil, database.Translate(err, "find promotion")
	}
	return p, nil
}

// ListByPackage returns the promotions of a package ordered by start.
func (r *PostgresPromotionRepository) ListByPackage(ctx context.Context, packageID uuid.UUID) ([]*domain.Promotion, error) {
	query := `SELECT ` + promotionColumns + ` FROM service_package_promotions WHERE package_id = $1 ORDER BY valid_from, id`
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, packageID)
	if err != nil {
		return nil, database.Translate(err, "list promotions")
	}
	defer rows.Close()

	var promotions []*domain.Promotion
	for rows.Next() {
		p, err := scanPostgresPromotion(rows)
		if err != nil {
			return nil, err
		}
		promotions = append(promotions, p)
	}
	return promotions, rows.Err()
}

// Delete removes a promotion.
func (r *PostgresPromotionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, `DELETE FROM service_package_promotions WHERE id = $1`, id)
	if err != nil {
		return database.Translate(err, "delete promotion")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrPromotionNotFound
	}
	return nil
}

func scanPostgresPromotion(row database.Row) (*domain.Promotion, error) {
	var (
		id, packageID        uuid.UUID
		spec                 domain.PromotionSpec
		discountType, value  string
		createdAt, updatedAt time.Time
	)
	err := row.Scan(&id, &packageID, &spec.Description, &discountType, &value,
		&spec.ValidFrom, &spec.ValidTo, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	return toPromotion(id, packageID, spec, discountType, value, createdAt, updatedAt)
}

func toPromotion(id, packageID uuid.UUID, spec domain.PromotionSpec, discountType, value string, createdAt, updatedAt time.Time) (*domain.Promotion, error) {
	var err error
	if spec.DiscountValue, err = decimal.NewFromString(value); err != nil {
		return nil, err
	}
	spec.DiscountType = domain.DiscountType(discountType)
	return domain.RehydratePromotion(id, packageID, spec, createdAt, updatedAt), nil
}

var _ domain.PromotionRepository = (*PostgresPromotionRepository)(nil)
