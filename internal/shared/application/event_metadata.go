package application

import (
	"context"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// TraceFor builds the metadata for events raised by one command on behalf
// of userID. The correlation id continues the one on ctx when it is a UUID;
// otherwise a new chain starts. Every call gets its own causation id.
func TraceFor(ctx context.Context, userID uuid.UUID) domain.EventMetadata {
	correlationID, err := uuid.Parse(observability.CorrelationIDFromContext(ctx))
	if err != nil || correlationID == uuid.Nil {
		correlationID = uuid.New()
	}
	return domain.EventMetadata{
		CorrelationID: correlationID,
		CausationID:   uuid.New(),
		UserID:        userID,
	}
}

// Stamp attaches meta to every event that accepts metadata and returns
// events for chaining.
func Stamp(events []domain.DomainEvent, meta domain.EventMetadata) []domain.DomainEvent {
	for _, event := range events {
		if target, ok := event.(interface{ SetMetadata(domain.EventMetadata) }); ok {
			target.SetMetadata(meta)
		}
	}
	return events
}
