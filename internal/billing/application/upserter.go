package application

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
)

// UpsertResult describes what Upsert did.
type UpsertResult struct {
	Subscription *domain.Subscription
	Created      bool
	// Retired is a lapsed row for the pair that was expired instead of extended.
	Retired *domain.Subscription
}

// Outcome returns the ledger outcome for the result.
func (r UpsertResult) Outcome() string {
	if r.Created {
		return domain.LedgerOutcomeActivated
	}
	return domain.LedgerOutcomeExtended
}

// Upserter creates or extends the subscription for a (user, package) pair.
// It must run inside a unit of work.
type Upserter struct {
	subscriptions domain.SubscriptionRepository
}

// NewUpserter creates a new Upserter.
func NewUpserter(subscriptions domain.SubscriptionRepository) *Upserter {
	return &Upserter{subscriptions: subscriptions}
}

// Upsert extends the active subscription for the pair by one package
// duration, counted from its current end date, or starts a new one at now.
// An active row whose end date already passed is expired and replaced.
func (u *Upserter) Upsert(ctx context.Context, userID uuid.UUID, pkg domain.Package, now time.Time) (*UpsertResult, error) {
	if err := u.subscriptions.LockPair(ctx, userID, pkg.ID); err != nil {
		return nil, err
	}

	existing, err := u.subscriptions.FindActiveForUpdate(ctx, userID, pkg.ID)
	if err != nil {
		return nil, err
	}

	result := &UpsertResult{}
	if existing != nil && existing.IsLapsed(now) {
		existing.Expire(now)
		if err := u.subscriptions.Save(ctx, existing); err != nil {
			return nil, err
		}
		result.Retired = existing
		existing = nil
	}

	if existing != nil {
		if err := existing.Extend(pkg.Duration(), now); err != nil {
			return nil, err
		}
		result.Subscription = existing
	} else {
		result.Subscription = domain.NewSubscription(userID, pkg, now)
		result.Created = true
	}

	if err := u.subscriptions.Save(ctx, result.Subscription); err != nil {
		return nil, err
	}
	return result, nil
}
