package persistence

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/identity/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/sqlite"
)

// SQLiteUserRepository handles persistence for users using SQLite.
type SQLiteUserRepository struct {
	conn database.Connection
}

// NewSQLiteUserRepository creates a new SQLiteUserRepository.
func NewSQLiteUserRepository(conn database.Connection) *SQLiteUserRepository {
	return &SQLiteUserRepository{conn: conn}
}

// Save inserts a new user or updates an existing one.
func (r *SQLiteUserRepository) Save(ctx context.Context, user *domain.User) error {
	exec := database.ExecutorFromContext(ctx, r.conn)
	p := user.Profile()

	if user.IsNew() {
		query := `
			INSERT INTO users (` + userColumns + `)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`
		_, err := exec.Exec(ctx, query,
			user.ID().String(),
			user.Email().String(),
			p.FirstName.String(),
			p.LastName.String(),
			p.Phone,
			formatBirthDate(p.BirthDate),
			string(p.Gender),
			user.PasswordHash(),
			user.IsDeleted(),
			sqlite.FormatTime(user.CreatedAt()),
			sqlite.FormatTime(user.UpdatedAt()),
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
			first_name = ?, last_name = ?, phone = ?, birth_date = ?, gender = ?,
			password_hash = ?, is_deleted = ?, updated_at = ?
		WHERE id = ?
	`
	result, err := exec.Exec(ctx, query,
		p.FirstName.String(),
		p.LastName.String(),
		p.Phone,
		formatBirthDate(p.BirthDate),
		string(p.Gender),
		user.PasswordHash(),
		user.IsDeleted(),
		sqlite.FormatTime(user.UpdatedAt()),
		user.ID().String(),
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
func (r *SQLiteUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return r.find(ctx, query, id.String())
}

// FindByEmail retrieves a user by their email address.
func (r *SQLiteUserRepository) FindByEmail(ctx context.Context, email domain.Email) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return r.find(ctx, query, email.String())
}

// ExistsByEmail checks if a user with the given email exists.
func (r *SQLiteUserRepository) ExistsByEmail(ctx context.Context, email domain.Email) (bool, error) {
	var count int
	err := database.ExecutorFromContext(ctx, r.conn).
		QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ?`, email.String()).
		Scan(&count)
	if err != nil {
		return false, database.Translate(err, "check user email")
	}
	return count > 0, nil
}

func (r *SQLiteUserRepository) find(ctx context.Context, query string, arg any) (*domain.User, error) {
	var (
		row                  userRow
		id                   string
		birthDate            sql.NullString
		createdAt, updatedAt string
	)
	err := database.ExecutorFromContext(ctx, r.conn).QueryRow(ctx, query, arg).Scan(
		&id, &row.email, &row.firstName, &row.lastName, &row.phone, &birthDate,
		&row.gender, &row.passwordHash, &row.deleted, &createdAt, &updatedAt,
	)
	if database.IsNoRows(err) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, database.Translate(err, "find user")
	}

	if row.id, err = uuid.Parse(id); err != nil {
		return nil, err
	}
	if birthDate.Valid && birthDate.String != "" {
		d, err := time.Parse(birthDateLayout, birthDate.String)
		if err != nil {
			return nil, err
		}
		row.birthDate = &d
	}
	if row.createdAt, err = sqlite.ParseTime(createdAt); err != nil {
		return nil, err
	}
	if row.updatedAt, err = sqlite.ParseTime(updatedAt); err != nil {
		return nil, err
	}
	return row.toDomain()
}

func formatBirthDate(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(birthDateLayout), Valid: true}
}

var _ domain.UserRepository = (*SQLiteUserRepository)(nil)
