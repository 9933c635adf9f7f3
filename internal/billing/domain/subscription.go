package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

var (
	ErrSubscriptionNotFound  = sharedDomain.NewError(sharedDomain.ErrNotFound, "subscription not found or unauthorized")
	ErrSubscriptionNotActive = sharedDomain.NewError(sharedDomain.ErrConflict, "only active subscriptions can be changed")
	ErrInvalidExtension      = sharedDomain.NewError(sharedDomain.ErrInvalid, "extension must be positive")
	ErrInvalidStatus         = sharedDomain.NewError(sharedDomain.ErrInvalid, "subscription status must be active, expired or cancelled")
)

// Status is the lifecycle state of a subscription. Transitions only leave
// StatusActive.
type Status string

const (
	StatusActive    Status = "active"
	StatusExpired   Status = "expired"
	StatusCancelled Status = "cancelled"
)

// ParseStatus converts a stored status.
func ParseStatus(s string) (Status, error) {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusActive:
		return StatusActive, nil
	case StatusExpired:
		return StatusExpired, nil
	case StatusCancelled:
		return StatusCancelled, nil
	default:
		return "", ErrInvalidStatus
	}
}

// Subscription is a time-boxed holding of one package by one user.
type Subscription struct {
	sharedDomain.BaseAggregateRoot
	userID    uuid.UUID
	packageID uuid.UUID
	startDate time.Time
	endDate   time.Time
	status    Status
}

// NewSubscription starts a subscription at now that runs for the package duration.
func NewSubscription(userID uuid.UUID, pkg Package, now time.Time) *Subscription {
	now = now.UTC()
	s := &Subscription{
		BaseAggregateRoot: sharedDomain.NewBaseAggregateRoot(now),
		userID:            userID,
		packageID:         pkg.ID,
		startDate:         now,
		endDate:           now.Add(pkg.Duration()),
		status:            StatusActive,
	}
	s.AddDomainEvent(NewSubscriptionActivated(s, pkg, now))
	return s
}

// RehydrateSubscription recreates a subscription from persisted state.
func RehydrateSubscription(
	id, userID, packageID uuid.UUID,
	startDate, endDate time.Time,
	status Status,
	version int,
	createdAt, updatedAt time.Time,
) *Subscription {
	return &Subscription{
		BaseAggregateRoot: sharedDomain.RehydrateBaseAggregateRoot(
			sharedDomain.RehydrateBaseEntity(id, createdAt, updatedAt), version),
		userID:    userID,
		packageID: packageID,
		startDate: startDate.UTC(),
		endDate:   endDate.UTC(),
		status:    status,
	}
}

func (s *Subscription) UserID() uuid.UUID    { return s.userID }
func (s *Subscription) PackageID() uuid.UUID { return s.packageID }
func (s *Subscription) StartDate() time.Time { return s.startDate }
func (s *Subscription) EndDate() time.Time   { return s.endDate }
func (s *Subscription) Status() Status       { return s.status }

// IsActiveAt reports whether the subscription grants its role at t. A row
// still marked active whose end date has passed does not.
func (s *Subscription) IsActiveAt(t time.Time) bool {
	return s.status == StatusActive && !s.endDate.Before(t)
}

// IsLapsed reports whether the row is marked active but its end date is before t.
func (s *Subscription) IsLapsed(t time.Time) bool {
	return s.status == StatusActive && s.endDate.Before(t)
}

// Extend pushes the end date forward from the existing end date.
func (s *Subscription) Extend(by time.Duration, now time.Time) error {
	if by <= 0 {
		return ErrInvalidExtension
	}
	if s.status != StatusActive {
		return ErrSubscriptionNotActive
	}
	previous := s.endDate
	s.endDate = s.endDate.Add(by)
	s.Touch(now)
	s.AddDomainEvent(NewSubscriptionExtended(s, previous, now))
	return nil
}

// Expire marks a lapsed subscription expired. It reports whether anything changed.
func (s *Subscription) Expire(now time.Time) bool {
	if !s.IsLapsed(now) {
		return false
	}
	s.status = StatusExpired
	s.Touch(now)
	s.AddDomainEvent(NewSubscriptionExpired(s, now))
	return true
}

// Cancel ends an active subscription early.
func (s *Subscription) Cancel(now time.Time) error {
	if s.status != StatusActive {
		return ErrSubscriptionNotActive
	}
	s.status = StatusCancelled
	s.Touch(now)
	s.AddDomainEvent(NewSubscriptionCancelled(s, now))
	return nil
}
