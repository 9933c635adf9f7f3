package eventbus_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// recordingConsumer keeps every event it sees and the correlation id that
// reached its context.
type recordingConsumer struct {
	mu           sync.Mutex
	eventTypes   []string
	events       []*eventbus.ConsumedEvent
	correlations []string
	err          error
}

func (c *recordingConsumer) EventTypes() []string { return c.eventTypes }

func (c *recordingConsumer) Handle(ctx context.Context, event *eventbus.ConsumedEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	c.correlations = append(c.correlations, observability.CorrelationIDFromContext(ctx))
	return c.err
}

func TestConsumerRegistry_Routes(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	payments := &recordingConsumer{eventTypes: []string{"payment.succeeded", "payment.service_package"}}
	audit := &recordingConsumer{eventTypes: []string{"payment.succeeded"}}

	registry.Register(payments)
	registry.Register(audit)

	assert.Equal(t, []string{"payment.service_package", "payment.succeeded"}, registry.RoutingKeys())
	assert.Equal(t, 3, registry.Len())
	assert.Len(t, registry.Handlers("payment.succeeded"), 2)
	assert.Len(t, registry.Handlers("payment.service_package"), 1)
	assert.Empty(t, registry.Handlers("billing.role.granted"))
}

func TestConsumerRegistry_Empty(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)

	assert.Zero(t, registry.Len())
	assert.Empty(t, registry.RoutingKeys())
	require.NoError(t, registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "payment.succeeded"}))
}

func TestConsumerRegistry_DispatchOnlyMatchingKey(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	payments := &recordingConsumer{eventTypes: []string{"payment.succeeded"}}
	other := &recordingConsumer{eventTypes: []string{"billing.subscription.activated"}}
	registry.Register(payments)
	registry.Register(other)

	event := &eventbus.ConsumedEvent{EventID: uuid.New(), RoutingKey: "payment.succeeded"}
	require.NoError(t, registry.Dispatch(context.Background(), event))

	require.Len(t, payments.events, 1)
	assert.Same(t, event, payments.events[0])
	assert.Empty(t, other.events)
}

func TestConsumerRegistry_DispatchRunsEveryConsumer(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	first := &recordingConsumer{eventTypes: []string{"payment.succeeded"}, err: errors.New("first")}
	second := &recordingConsumer{eventTypes: []string{"payment.succeeded"}}
	third := &recordingConsumer{eventTypes: []string{"payment.succeeded"}, err: errors.New("third")}
	registry.Register(first)
	registry.Register(second)
	registry.Register(third)

	err := registry.Dispatch(context.Background(), &eventbus.ConsumedEvent{RoutingKey: "payment.succeeded"})

	require.Error(t, err)
	assert.ErrorContains(t, err, "first")
	assert.ErrorContains(t, err, "third")
	assert.Len(t, first.events, 1)
	assert.Len(t, second.events, 1)
	assert.Len(t, third.events, 1)
}

func TestConsumerRegistry_DispatchCarriesTrace(t *testing.T) {
	registry := eventbus.NewConsumerRegistry(nil)
	consumer := &recordingConsumer{eventTypes: []string{"billing.subscription.activated"}}
	registry.Register(consumer)

	traced := &eventbus.ConsumedEvent{
		RoutingKey: "billing.subscription.activated",
		Metadata:   eventbus.EventMetadata{CorrelationID: "corr-42", UserID: uuid.New()},
	}
	require.NoError(t, registry.Dispatch(context.Background(), traced))

	ctx := observability.WithCorrelationID(context.Background(), "caller")
	require.NoError(t, registry.Dispatch(ctx, &eventbus.ConsumedEvent{RoutingKey: "billing.subscription.activated"}))

	assert.Equal(t, []string{"corr-42", "caller"}, consumer.correlations)
}
