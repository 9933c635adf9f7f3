package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
)

const subscriptionColumns = `id, user_id, package_id, start_date, end_date, status, version, created_at, updated_at`

// PostgresSubscriptionRepository implements SubscriptionRepository with PostgreSQL.
type PostgresSubscriptionRepository struct {
	conn database.Connection
}

// NewPostgresSubscriptionRepository creates a new repository.
func NewPostgresSubscriptionRepository(conn database.Connection) *PostgresSubscriptionRepository {
	return &PostgresSubscriptionRepository{conn: conn}
}

// Save inserts a new subscription or updates an existing one at its read version.
func (r *PostgresSubscriptionRepository) Save(ctx context.Context, s *domain.Subscription) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	if s.IsNew() {
		query := `
			INSERT INTO subscriptions (` + subscriptionColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, 1, $7, $8)
		`
		_, err := exec.Exec(ctx, query,
			s.ID(), s.UserID(), s.PackageID(),
			s.StartDate(), s.EndDate(), string(s.Status()),
			s.CreatedAt(), s.UpdatedAt(),
		)
		if err != nil {
			return database.Translate(err, "insert subscription")
		}
		s.SetVersion(1)
		return nil
	}

	query := `
		UPDATE subscriptions
		SET end_date = $2, status = $3, updated_at = $4, version = version + 1
		WHERE id = $1 AND version = $5
	`
	result, err := exec.Exec(ctx, query, s.ID(), s.EndDate(), string(s.Status()), s.UpdatedAt(), s.Version())
	if err != nil {
		return database.Translate(err, "update subscription")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return sharedDomain.ErrConcurrentModification
	}
	s.SetVersion(s.Version() + 1)
	return nil
}

// FindByID returns a subscription by id.
func (r *PostgresSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1`
	s, err := scanPostgresSubscription(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, id))
	if database.IsNoRows(err) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, database.Translate(err, "find subscription")
	}
	return s, nil
}

// FindByUser returns all subscriptions of a user, newest first.
func (r *PostgresSubscriptionRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE user_id = $1 ORDER BY start_date DESC, id`
	return r.query(ctx, "list subscriptions", query, userID)
}

// FindActiveForUpdate locks the active subscription with the latest end date.
func (r *PostgresSubscriptionRepository) FindActiveForUpdate(ctx context.Context, userID, packageID uuid.UUID) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND package_id = $2 AND status = 'active'
		ORDER BY end_date DESC
		LIMIT 1
		FOR UPDATE
	`
	s, err := scanPostgresSubscription(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, userID, packageID))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Translate(err, "find active subscription")
	}
	return s, nil
}

// LockPair takes a transaction scoped advisory lock keyed by the pair. It
// also covers the first purchase, when there is no row to lock yet.
func (r *PostgresSubscriptionRepository) LockPair(ctx context.Context, userID, packageID uuid.UUID) error {
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`,
		userID.String()+":"+packageID.String(),
	)
	return database.Translate(err, "lock subscription pair")
}

// ExistsActiveForPackage reports whether any active subscription references the package.
func (r *PostgresSubscriptionRepository) ExistsActiveForPackage(ctx context.Context, packageID uuid.UUID) (bool, error) {
	var exists bool
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE package_id = $1 AND status = 'active')`,
		packageID,
	).Scan(&exists)
	if err != nil {
		return false, database.Translate(err, "check active subscriptions")
	}
	return exists, nil
}

// ListUsersWithLapsed returns users holding active subscriptions that ended before now.
func (r *PostgresSubscriptionRepository) ListUsersWithLapsed(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT DISTINCT user_id
		FROM subscriptions
		WHERE status = 'active' AND end_date < $1
		ORDER BY user_id
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, database.Translate(err, "list lapsed users")
	}
	defer rows.Close()

	var users []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func (r *PostgresSubscriptionRepository) query(ctx context.Context, op, query string, args ...any) ([]*domain.Subscription, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, query, args...)
	if err != nil {
		return nil, database.Translate(err, op)
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		s, err := scanPostgresSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

func scanPostgresSubscription(row database.Row) (*domain.Subscription, error) {
	var (
		id, userID, packageID uuid.UUID
		startDate, endDate    time.Time
		status                string
		version               int
		createdAt, updatedAt  time.Time
	)
	if err := row.Scan(&id, &userID, &packageID, &startDate, &endDate, &status, &version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateSubscription(id, userID, packageID, startDate, endDate, st, version, createdAt, updatedAt), nil
}

var _ domain.SubscriptionRepository = (*PostgresSubscriptionRepository)(nil)
