package domain

import (
	"time"

	"github.com/google/uuid"

	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
)

const aggregateType = "Subscription"

// Routing keys for subscription events.
const (
	RoutingKeySubscriptionActivated = "billing.subscription.activated"
	RoutingKeySubscriptionExtended  = "billing.subscription.extended"
	RoutingKeySubscriptionExpired   = "billing.subscription.expired"
	RoutingKeySubscriptionCancelled = "billing.subscription.cancelled"
)

// SubscriptionActivated is emitted when a new subscription starts.
type SubscriptionActivated struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	PackageID      uuid.UUID `json:"package_id"`
	Role           string    `json:"role"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
}

// NewSubscriptionActivated creates a SubscriptionActivated event.
func NewSubscriptionActivated(s *Subscription, pkg Package, now time.Time) *SubscriptionActivated {
	return &SubscriptionActivated{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionActivated, now),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		PackageID:      s.PackageID(),
		Role:           pkg.Role,
		StartDate:      s.StartDate(),
		EndDate:        s.EndDate(),
	}
}

// SubscriptionExtended is emitted when a payment or renewal adds time.
type SubscriptionExtended struct {
	sharedDomain.BaseEvent
	SubscriptionID  uuid.UUID `json:"subscription_id"`
	UserID          uuid.UUID `json:"user_id"`
	PackageID       uuid.UUID `json:"package_id"`
	PreviousEndDate time.Time `json:"previous_end_date"`
	EndDate         time.Time `json:"end_date"`
}

// NewSubscriptionExtended creates a SubscriptionExtended event.
func NewSubscriptionExtended(s *Subscription, previous time.Time, now time.Time) *SubscriptionExtended {
	return &SubscriptionExtended{
		BaseEvent:       sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionExtended, now),
		SubscriptionID:  s.ID(),
		UserID:          s.UserID(),
		PackageID:       s.PackageID(),
		PreviousEndDate: previous,
		EndDate:         s.EndDate(),
	}
}

// SubscriptionExpired is emitted when a sweep retires a lapsed subscription.
type SubscriptionExpired struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	PackageID      uuid.UUID `json:"package_id"`
	EndDate        time.Time `json:"end_date"`
}

// NewSubscriptionExpired creates a SubscriptionExpired event.
func NewSubscriptionExpired(s *Subscription, now time.Time) *SubscriptionExpired {
	return &SubscriptionExpired{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionExpired, now),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		PackageID:      s.PackageID(),
		EndDate:        s.EndDate(),
	}
}

// SubscriptionCancelled is emitted when a user cancels.
type SubscriptionCancelled struct {
	sharedDomain.BaseEvent
	SubscriptionID uuid.UUID `json:"subscription_id"`
	UserID         uuid.UUID `json:"user_id"`
	PackageID      uuid.UUID `json:"package_id"`
}

// NewSubscriptionCancelled creates a SubscriptionCancelled event.
func NewSubscriptionCancelled(s *Subscription, now time.Time) *SubscriptionCancelled {
	return &SubscriptionCancelled{
		BaseEvent:      sharedDomain.NewBaseEvent(s.ID(), aggregateType, RoutingKeySubscriptionCancelled, now),
		SubscriptionID: s.ID(),
		UserID:         s.UserID(),
		PackageID:      s.PackageID(),
	}
}
