// Package application implements identity use cases: the role store seen by
// billing, login, registration and password reset.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	billingDomain "github.com/felixgeelhaar/keystone/internal/billing/domain"
	"github.com/felixgeelhaar/keystone/internal/identity/domain"
)

// Provider serves users and role assignments to the entitlement engine.
type Provider struct {
	users domain.UserRepository
	roles domain.RoleRepository
	now   func() time.Time
}

// NewProvider creates a Provider.
func NewProvider(users domain.UserRepository, roles domain.RoleRepository) *Provider {
	return &Provider{users: users, roles: roles, now: time.Now}
}

func (p *Provider) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	return p.roles.ListRoles(ctx, userID)
}

func (p *Provider) AddRole(ctx context.Context, userID uuid.UUID, role string) error {
	return p.roles.AddRole(ctx, userID, role, p.now().UTC())
}

func (p *Provider) RemoveRoles(ctx context.Context, userID uuid.UUID, roles []string) error {
	if len(roles) == 0 {
		return nil
	}
	return p.roles.RemoveRoles(ctx, userID, roles)
}

func (p *Provider) FindUser(ctx context.Context, userID uuid.UUID) (*billingDomain.UserRef, error) {
	user, err := p.users.FindByID(ctx, userID)
	return userRef(user, err)
}

// FindUserByEmail returns nil for a malformed email, since no user can hold it.
func (p *Provider) FindUserByEmail(ctx context.Context, email string) (*billingDomain.UserRef, error) {
	addr, err := domain.NewEmail(email)
	if err != nil {
		return nil, nil
	}
	user, err := p.users.FindByEmail(ctx, addr)
	return userRef(user, err)
}

func userRef(user *domain.User, err error) (*billingDomain.UserRef, error) {
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &billingDomain.UserRef{
		ID:      user.ID(),
		Email:   user.Email().String(),
		Deleted: user.IsDeleted(),
	}, nil
}

var _ billingDomain.IdentityProvider = (*Provider)(nil)
