package eventbus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// ErrUndecodable marks a delivery whose body is not valid JSON. It is never
// retried.
var ErrUndecodable = errors.New("undecodable message")

// EventConsumer is a subscriber on the bus. Handle returning an error wrapping
// domain.ErrInvalid is not retried.
type EventConsumer interface {
	// EventTypes lists the routing keys to subscribe to.
	EventTypes() []string
	Handle(ctx context.Context, event *ConsumedEvent) error
}

// ConsumedEvent is a delivery after decoding.
type ConsumedEvent struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
	Metadata      EventMetadata   `json:"metadata,omitempty"`
}

// EventMetadata mirrors the trace ids the outbox writes. External producers
// usually omit it.
type EventMetadata struct {
	UserID        uuid.UUID `json:"user_id,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
}

// DecodeEvent turns a raw delivery body into a ConsumedEvent. Bodies written
// by the outbox carry an envelope with a payload field; bodies from external
// producers are bare JSON objects and become the payload as-is.
func DecodeEvent(routingKey string, body []byte) (*ConsumedEvent, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: routing key %q", ErrUndecodable, routingKey)
	}

	event := &ConsumedEvent{}
	if err := json.Unmarshal(trimmed, event); err != nil || (event.EventID == uuid.Nil && len(event.Payload) == 0) {
		event = &ConsumedEvent{Payload: json.RawMessage(trimmed)}
	}

	if event.RoutingKey == "" {
		event.RoutingKey = routingKey
	}
	return event, nil
}

// scoped carries the event's trace ids into ctx so handler logs and the
// events they raise stay correlated with the original request.
func (e *ConsumedEvent) scoped(ctx context.Context) context.Context {
	if e.Metadata.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, e.Metadata.CorrelationID)
	}
	if e.Metadata.UserID != uuid.Nil {
		ctx = observability.WithUserID(ctx, e.Metadata.UserID.String())
	}
	return ctx
}

// Consumer is a broker subscription loop.
type Consumer interface {
	// Start blocks until ctx ends or the connection fails.
	Start(ctx context.Context) error
	RegisterConsumer(consumer EventConsumer)
	Close() error
}
