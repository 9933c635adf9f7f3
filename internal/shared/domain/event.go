package domain

import (
	"time"

	"github.com/google/uuid"
)

// DomainEvent is a fact raised by an aggregate. RoutingKey doubles as the
// event type on the bus.
type DomainEvent interface {
	EventID() uuid.UUID
	AggregateID() uuid.UUID
	AggregateType() string
	RoutingKey() string
	OccurredAt() time.Time
	Metadata() EventMetadata
}

// EventMetadata links an event to the request that caused it.
type EventMetadata struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	CausationID   uuid.UUID `json:"causation_id"`
	UserID        uuid.UUID `json:"user_id"`
}

// BaseEvent carries the envelope fields. Concrete events embed it and add
// exported payload fields, which are what gets serialized.
type BaseEvent struct {
	id        uuid.UUID
	aggregate uuid.UUID
	kind      string
	key       string
	at        time.Time
	meta      EventMetadata
}

// NewBaseEvent stamps a new event id; at is normalized to UTC.
func NewBaseEvent(aggregateID uuid.UUID, aggregateType, routingKey string, at time.Time) BaseEvent {
	return BaseEvent{
		id:        uuid.New(),
		aggregate: aggregateID,
		kind:      aggregateType,
		key:       routingKey,
		at:        at.UTC(),
	}
}

func (e BaseEvent) EventID() uuid.UUID      { return e.id }
func (e BaseEvent) AggregateID() uuid.UUID  { return e.aggregate }
func (e BaseEvent) AggregateType() string   { return e.kind }
func (e BaseEvent) RoutingKey() string      { return e.key }
func (e BaseEvent) OccurredAt() time.Time   { return e.at }
func (e BaseEvent) Metadata() EventMetadata { return e.meta }

func (e *BaseEvent) SetMetadata(meta EventMetadata) { e.meta = meta }
