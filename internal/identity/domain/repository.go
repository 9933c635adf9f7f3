package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserRepository defines the interface for user persistence.
type UserRepository interface {
	Save(ctx context.Context, user *User) error
	// FindByID returns ErrUserNotFound when no user has the id.
	FindByID(ctx context.Context, id uuid.UUID) (*User, error)
	// FindByEmail returns ErrUserNotFound when no user has the email.
	FindByEmail(ctx context.Context, email Email) (*User, error)
	ExistsByEmail(ctx context.Context, email Email) (bool, error)
}

// RoleRepository stores role assignments. Adding a held role and removing a
// missing one are no-ops.
type RoleRepository interface {
	ListRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	AddRole(ctx context.Context, userID uuid.UUID, role string, grantedAt time.Time) error
	RemoveRoles(ctx context.Context, userID uuid.UUID, roles []string) error
}
