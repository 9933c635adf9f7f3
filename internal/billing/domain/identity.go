package domain

import (
	"context"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

var ErrUserNotFound = sharedDomain.NewError(sharedDomain.ErrNotFound, "user not found")

// UserRef is the billing view of an identity.
type UserRef struct {
	ID      uuid.UUID
	Email   string
	Deleted bool
}

// IdentityProvider owns user role assignments. AddRole and RemoveRoles are
// idempotent.
type IdentityProvider interface {
	GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error)
	AddRole(ctx context.Context, userID uuid.UUID, role string) error
	RemoveRoles(ctx context.Context, userID uuid.UUID, roles []string) error
	// FindUser returns nil when no user has the id.
	FindUser(ctx context.Context, userID uuid.UUID) (*UserRef, error)
	// FindUserByEmail returns nil when no user has the email.
	FindUserByEmail(ctx context.Context, email string) (*UserRef, error)
}
