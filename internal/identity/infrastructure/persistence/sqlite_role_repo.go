package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/identity/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/sqlite"
)

// SQLiteRoleRepository stores role assignments in user_roles.
type SQLiteRoleRepository struct {
	conn database.Connection
}

// NewSQLiteRoleRepository creates a new SQLiteRoleRepository.
func NewSQLiteRoleRepository(conn database.Connection) *SQLiteRoleRepository {
	return &SQLiteRoleRepository{conn: conn}
}

// ListRoles returns the user's roles in name order.
func (r *SQLiteRoleRepository) ListRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).
		Query(ctx, `SELECT role FROM user_roles WHERE user_id = ? ORDER BY role`, userID.String())
	if err != nil {
		return nil, database.Translate(err, "list roles")
	}
	defer rows.Close()
	return scanRoles(rows)
}

// AddRole grants a role.
func (r *SQLiteRoleRepository) AddRole(ctx context.Context, userID uuid.UUID, role string, grantedAt time.Time) error {
	query := `INSERT INTO user_roles (user_id, role, granted_at) VALUES (?, ?, ?) ON CONFLICT (user_id, role) DO NOTHING`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query, userID.String(), role, sqlite.FormatTime(grantedAt))
	if database.IsForeignKeyViolation(err) {
		return domain.ErrUserNotFound
	}
	return database.Translate(err, "add role")
}

// RemoveRoles revokes the given roles.
func (r *SQLiteRoleRepository) RemoveRoles(ctx context.Context, userID uuid.UUID, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	args := make([]any, 0, len(roles)+1)
	args = append(args, userID.String())
	for _, role := range roles {
		args = append(args, role)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(roles)), ", ")
	query := `DELETE FROM user_roles WHERE user_id = ? AND role IN (` + placeholders + `)`

	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query, args...)
	return database.Translate(err, "remove roles")
}

var _ domain.RoleRepository = (*SQLiteRoleRepository)(nil)
