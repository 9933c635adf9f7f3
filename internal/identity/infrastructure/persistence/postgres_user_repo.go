package persistence

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/identity/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
)

const userColumns = `id, email, first_name, last_name, phone, birth_date, gender, password_hash, is_deleted, created_at, updated_at`

// PostgresUserRepository handles persistence for users using PostgreSQL.
type PostgresUserRepository struct {
	conn database.Connection
}

// NewPostgresUserRepository creates a new PostgresUserRepository.
func NewPostgresUserRepository(conn database.Connection) *PostgresUserRepository {
	return &PostgresUserRepository{conn: conn}
}

// Save inserts a new user or updates an existing one.
func (r *PostgresUserRepository) Save(ctx context.Context, user *domain.User) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	p := user.Profile()

	if user.IsNew() {
		query := `
			INSERT INTO users (` + userColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`
		_, err := exec.Exec(ctx, query,
			user.ID(),
			user.Email().String(),
			p.FirstName.String(),
			p.LastName.String(),
			p.Phone,
			dateOnly(p.BirthDate),
			string(p.Gender),
			user.PasswordHash(),
			user.IsDeleted(),
			user.CreatedAt(),
			user.UpdatedAt(),
		)
		if database.IsUniqueViolation(err) {
			return domain.ErrEmailTaken
		}
		if err != nil {
			return database.Translate(err, "insert user")
		}
		user.SetVersion(1)
		return nil
	}

	query := `
		UPDATE users SET
			first_name = $2, last_name = $3, phone = $4, birth_date = $5, gender = $6,
			password_hash = $7, is_deleted = $8, updated_at = $9
		WHERE id = $1
	`
	result, err := exec.Exec(ctx, query,
		user.ID(),
		p.FirstName.String(),
		p.LastName.String(),
		p.Phone,
		dateOnly(p.BirthDate),
		string(p.Gender),
		user.PasswordHash(),
		user.IsDeleted(),
		user.UpdatedAt(),
	)
	if err != nil {
		return database.Translate(err, "update user")
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// FindByID retrieves a user by their ID.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.find(ctx, query, id)
}

// FindByEmail retrieves a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.find(ctx, query, email.String())
}

// ExistsByEmail checks if a user with the given email exists.
func (r *PostgresUserRepository) ExistsByEmail(ctx context.Context, email domain.Email) (bool, error) {
	var exists bool
	err := database.ExecutorFromContext(ctx, r.conn).
		QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, email.String()).
		Scan(&exists)
	if err != nil {
		return false, database.Translate(err, "check user email")
	}
	return exists, nil
}

func (r *PostgresUserRepository) find(ctx context.Context, query string, arg any) (*domain.User, error) {
	var row userRow
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, arg).Scan(
		&row.id, &row.email, &row.firstName, &row.lastName, &row.phone, &row.birthDate,
		&row.gender, &row.passwordHash, &row.deleted, &row.createdAt, &row.updatedAt,
	)
	if database.IsNoRows(err) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, database.Translate(err, "find user")
	}
	return row.toDomain()
}

var _ domain.UserRepository = (*PostgresUserRepository)(nil)
