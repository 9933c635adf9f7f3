package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionRepository persists subscriptions. Save inserts new aggregates
// and updates existing ones only when the stored version matches, returning
// ErrConcurrentModification otherwise.
type SubscriptionRepository interface {
	Save(ctx context.Context, subscription *Subscription) error
	FindByID(ctx context.Context, id uuid.UUID) (*Subscription, error)
	FindByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error)
	// FindActiveForUpdate returns the active subscription for the pair with the
	// latest end date, locking it where the backend supports it. It returns nil
	// when there is none.
	FindActiveForUpdate(ctx context.Context, userID, packageID uuid.UUID) (*Subscription, error)
	// LockPair serializes writers of one (user, package) pair until the
	// surrounding transaction ends.
	LockPair(ctx context.Context, userID, packageID uuid.UUID) error
	ExistsActiveForPackage(ctx context.Context, packageID uuid.UUID) (bool, error)
	// ListUsersWithLapsed returns users owning active subscriptions that ended before now.
	ListUsersWithLapsed(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
}
