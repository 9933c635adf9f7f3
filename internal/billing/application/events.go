package application

import (
	"context"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedApplication "github.com/felixgeelhaar/keystone/internal/shared/application"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
)

// recordEvents writes the pending events of the subscriptions to the outbox
// in the caller's transaction and clears them.
func recordEvents(ctx context.Context, repo outbox.Repository, metadata sharedDomain.EventMetadata, subs ...*domain.Subscription) error {
	var events []sharedDomain.DomainEvent
	for _, s := range subs {
		if s != nil {
			events = append(events, s.DomainEvents()...)
		}
	}
	if len(events) == 0 {
		return nil
	}

	sharedApplication.Stamp(events, metadata)
	msgs, err := outbox.NewMessages(events)
	if err != nil {
		return err
	}
	if err := repo.SaveBatch(ctx, msgs); err != nil {
		return err
	}
	for _, s := range subs {
		if s != nil {
			s.ClearDomainEvents()
		}
	}
	return nil
}
