package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/sqlite"
)

// SQLiteSubscriptionRepository implements SubscriptionRepository with SQLite.
// SQLite serializes writers at the database level, so FindActiveForUpdate
// takes no row lock and LockPair is a no-op.
type SQLiteSubscriptionRepository struct {
	conn database.Connection
}

// NewSQLiteSubscriptionRepository creates a new repository.
func NewSQLiteSubscriptionRepository(conn database.Connection) *SQLiteSubscriptionRepository {
	return &SQLiteSubscriptionRepository{conn: conn}
}

// Save inserts a new subscription or updates an existing one at its read version.
func (r *SQLiteSubscriptionRepository) Save(ctx context.Context, s *domain.Subscription) error {
	exec := database.ExecutorFromContext(ctx, r.conn)

	if s.IsNew() {
		query := `
			INSERT INTO subscriptions (` + subscriptionColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)
		`
		_, err := exec.Exec(ctx, query,
			s.ID().String(), s.UserID().String(), s.PackageID().String(),
			sqlite.FormatTime(s.StartDate()), sqlite.FormatTime(s.EndDate()), string(s.Status()),
			sqlite.FormatTime(s.CreatedAt()), sqlite.FormatTime(s.UpdatedAt()),
		)
		if err != nil {
			return database.Translate(err, "insert subscription")
		}
		s.SetVersion(1)
		return nil
	}

	query := `
		UPDATE subscriptions
		SET end_date = ?, status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	result, err := exec.Exec(ctx, query,
		sqlite.FormatTime(s.EndDate()), string(s.Status()), sqlite.FormatTime(s.UpdatedAt()),
		s.ID().String(), s.Version(),
	)
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
func (r *SQLiteSubscriptionRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = ?`
	s, err := scanSQLiteSubscription(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, id.String()))
	if database.IsNoRows(err) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, database.Translate(err, "find subscription")
	}
	return s, nil
}

// FindByUser returns all subscriptions of a user, newest first.
func (r *SQLiteSubscriptionRepository) FindByUser(ctx context.Context, userID uuid.UUID) ([]*domain.Subscription, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = ? ORDER BY start_date DESC, id`,
		userID.String(),
	)
	if err != nil {
		return nil, database.Translate(err, "list subscriptions")
	}
	defer rows.Close()

	var subs []*domain.Subscription
	for rows.Next() {
		s, err := scanSQLiteSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, s)
	}
	return subs, rows.Err()
}

// FindActiveForUpdate returns the active subscription with the latest end date.
func (r *SQLiteSubscriptionRepository) FindActiveForUpdate(ctx context.Context, userID, packageID uuid.UUID) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = ? AND package_id = ? AND status = 'active'
		ORDER BY end_date DESC
		LIMIT 1
	`
	s, err := scanSQLiteSubscription(database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, userID.String(), packageID.String()))
	if database.IsNoRows(err) {
		return nil, nil
	}
	if err != nil {
		return nil, database.Translate(err, "find active subscription")
	}
	return s, nil
}

func (r *SQLiteSubscriptionRepository) LockPair(context.Context, uuid.UUID, uuid.UUID) error {
	return nil
}

// ExistsActiveForPackage reports whether any active subscription references the package.
func (r *SQLiteSubscriptionRepository) ExistsActiveForPackage(ctx context.Context, packageID uuid.UUID) (bool, error) {
	var exists int
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM subscriptions WHERE package_id = ? AND status = 'active')`,
		packageID.String(),
	).Scan(&exists)
	if err != nil {
		return false, database.Translate(err, "check active subscriptions")
	}
	return exists == 1, nil
}

// ListUsersWithLapsed returns users holding active subscriptions that ended before now.
func (r *SQLiteSubscriptionRepository) ListUsersWithLapsed(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).Query(ctx, `
		SELECT DISTINCT user_id
		FROM subscriptions
		WHERE status = 'active' AND end_date < ?
		ORDER BY user_id
		LIMIT ?
	`, sqlite.FormatTime(now), limit)
	if err != nil {
		return nil, database.Translate(err, "list lapsed users")
	}
	defer rows.Close()

	var users []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		users = append(users, id)
	}
	return users, rows.Err()
}

func scanSQLiteSubscription(row database.Row) (*domain.Subscription, error) {
	var (
		id, userID, packageID string
		startDate, endDate    string
		status                string
		version               int
		createdAt, updatedAt  string
	)
	if err := row.Scan(&id, &userID, &packageID, &startDate, &endDate, &status, &version, &createdAt, &updatedAt); err != nil {
		return nil, err
	}

	var ids [3]uuid.UUID
	for i, raw := range []string{id, userID, packageID} {
		parsed, err := uuid.Parse(raw)
		if err != nil {
			return nil, err
		}
		ids[i] = parsed
	}
	var times [4]time.Time
	for i, raw := range []string{startDate, endDate, createdAt, updatedAt} {
		parsed, err := sqlite.ParseTime(raw)
		if err != nil {
			return nil, err
		}
		times[i] = parsed
	}
	st, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	return domain.RehydrateSubscription(ids[0], ids[1], ids[2], times[0], times[1], st, version, times[2], times[3]), nil
}

var _ domain.SubscriptionRepository = (*SQLiteSubscriptionRepository)(nil)
