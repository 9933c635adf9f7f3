package domain

import (
	"time"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

const (
	AggregateType = "User"

	RoutingKeyUserRegistered = "identity.user.registered"
)

// UserRegistered is emitted when a verified registration creates a user.
type UserRegistered struct {
	sharedDomain.BaseEvent
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// NewUserRegistered creates a UserRegistered event.
func NewUserRegistered(u *User, now time.Time) *UserRegistered {
	return &UserRegistered{
		BaseEvent: sharedDomain.NewBaseEvent(u.ID(), AggregateType, RoutingKeyUserRegistered, now),
		Email:     u.email.String(),
		FirstName: u.profile.FirstName.String(),
		LastName:  u.profile.LastName.String(),
	}
}
