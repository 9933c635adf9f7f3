package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

var (
	ErrUserNotFound       = sharedDomain.NewError(sharedDomain.ErrNotFound, "user not found")
	ErrEmailTaken         = sharedDomain.NewError(sharedDomain.ErrConflict, "email is already registered")
	ErrUserDeleted        = sharedDomain.NewError(sharedDomain.ErrConflict, "user is deleted")
	ErrEmptyPasswordHash  = sharedDomain.NewError(sharedDomain.ErrInvalid, "password hash cannot be empty")
	ErrInvalidCredentials = sharedDomain.NewError(sharedDomain.ErrInvalid, "invalid email or password")
)

// User is an account that can log in and hold roles. Role assignments are
// stored separately and owned by the entitlement synchronizer.
type User struct {
	sharedDomain.BaseAggregateRoot
	email        Email
	profile      Profile
	passwordHash string
	deleted      bool
}

// NewUser registers a user with an already hashed password.
func NewUser(email Email, profile Profile, passwordHash string, now time.Time) (*User, error) {
	if passwordHash == "" {
		return nil, ErrEmptyPasswordHash
	}
	u := &User{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now.UTC()),
		email:             email,
		profile:           profile,
		passwordHash:      passwordHash,
	}
	u.AddDomainEvent(NewUserRegistered(u, now.UTC()))
	return u, nil
}

// RehydrateUser recreates a user from persisted state.
func RehydrateUser(
	id uuid.UUID,
	email Email,
	profile Profile,
	passwordHash string,
	deleted bool,
	createdAt, updatedAt time.Time,
) *User {
	return &User{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), 1),
		email:        email,
		profile:      profile,
		passwordHash: passwordHash,
		deleted:      deleted,
	}
}

// Getters
func (u *User) Email() Email         { return u.email }
func (u *User) Profile() Profile     { return u.profile }
func (u *User) PasswordHash() string { return u.passwordHash }
func (u *User) IsDeleted() bool      { return u.deleted }

// FullName joins first and last name.
func (u *User) FullName() string {
	return u.profile.FirstName.String() + " " + u.profile.LastName.String()
}

// ChangePassword replaces the password hash.
func (u *User) ChangePassword(passwordHash string, now time.Time) error {
	if passwordHash == "" {
		return ErrEmptyPasswordHash
	}
	if u.deleted {
		return ErrUserDeleted
	}
	u.passwordHash = passwordHash
	u.Touch(now.UTC())
	return nil
}

// Delete soft-deletes the user.
func (u *User) Delete(now time.Time) {
	if u.deleted {
		return
	}
	u.deleted = true
	u.Touch(now.UTC())
}
