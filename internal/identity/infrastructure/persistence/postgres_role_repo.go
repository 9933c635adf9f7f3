package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/identity/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
)

// PostgresRoleRepository stores role assignments in user_roles.
type PostgresRoleRepository struct {
	conn database.Connection
}

// NewPostgresRoleRepository creates a new PostgresRoleRepository.
func NewPostgresRoleRepository(conn database.Connection) *PostgresRoleRepository {
	return &PostgresRoleRepository{conn: conn}
}

// ListRoles returns the user's roles in name order.
func (r *PostgresRoleRepository) ListRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	rows, err := database.ExecutorFromContext(ctx, r.conn).
		Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1 ORDER BY role`, userID)
	if err != nil {
		return nil, database.Translate(err, "list roles")
	}
	defer rows.Close()
	return scanRoles(rows)
}

// AddRole grants a role.
func (r *PostgresRoleRepository) AddRole(ctx context.Context, userID uuid.UUID, role string, grantedAt time.Time) error {
	query := `
		INSERT INTO user_roles (user_id, role, granted_at) VALUES ($1, $2, $3)
		ON CONFLICT (user_id, role) DO NOTHING
	`
	_, err := database.ExecutorFromContext(ctx, r.conn).Exec(ctx, query, userID, role, grantedAt)
	if database.IsForeignKeyViolation(err) {
		return domain.ErrUserNotFound
	}
	return database.Translate(err, "add role")
}

// RemoveRoles revokes the given roles.
func (r *PostgresRoleRepository) RemoveRoles(ctx context.Context, userID uuid.UUID, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	_, err := database.ExecutorFromContext(ctx, r.conn).
		Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role = ANY($2)`, userID, roles)
	return database.Translate(err, "remove roles")
}

func scanRoles(rows database.Rows) ([]string, error) {
	roles := []string{}
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

var _ domain.RoleRepository = (*PostgresRoleRepository)(nil)
