package eventbus

import (
	"context"
	"log/slog"
	"sync"
)

// InProcessEventBus is an in-memory event bus for local mode (no RabbitMQ).
// Messages are delivered synchronously through the same retry and
// dead-letter path as the broker consumer.
type InProcessEventBus struct {
	dispatcher *RetryingDispatcher
	deadLetter *MemoryDeadLetters
	logger     *slog.Logger
	mu         sync.Mutex
}

// NewInProcessEventBus creates a new in-process event bus.
func NewInProcessEventBus(policy RetryPolicy, logger *slog.Logger) *InProcessEventBus {
	if logger == nil {
		logger = slog.Default()
	}
	sink := &MemoryDeadLetters{}
	return &InProcessEventBus{
		dispatcher: NewRetryingDispatcher(NewConsumerRegistry(logger), policy, sink, logger, nil),
		deadLetter: sink,
		logger:     logger,
	}
}

// RegisterConsumer registers an event consumer.
func (b *InProcessEventBus) RegisterConsumer(consumer EventConsumer) {
	b.dispatcher.Registry().Register(consumer)
}

// Publish delivers a message synchronously and reports how it was settled.
func (b *InProcessEventBus) Publish(ctx context.Context, routingKey string, payload []byte) error {
	_, err := b.Deliver(ctx, routingKey, payload)
	return err
}

// Deliver is Publish with the final disposition exposed.
func (b *InProcessEventBus) Deliver(ctx context.Context, routingKey string, payload []byte) (Disposition, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	disposition, err := b.dispatcher.Deliver(ctx, routingKey, payload)
	if err != nil {
		return "", err
	}
	b.logger.Debug("event delivered in-process",
		"routing_key", routingKey,
		"disposition", disposition,
	)
	return disposition, nil
}

// DeadLetters returns messages that were dead-lettered.
func (b *InProcessEventBus) DeadLetters() []FailedDelivery {
	return b.deadLetter.All()
}

// Close is a no-op for in-process bus.
func (b *InProcessEventBus) Close() error {
	return nil
}

// Registry exposes the routing table.
func (b *InProcessEventBus) Registry() *ConsumerRegistry {
	return b.dispatcher.Registry()
}

// MemoryDeadLetters collects dead-lettered deliveries in memory.
type MemoryDeadLetters struct {
	mu     sync.Mutex
	failed []FailedDelivery
}

// DeadLetter records the failed delivery.
func (m *MemoryDeadLetters) DeadLetter(_ context.Context, failed FailedDelivery) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failed = append(m.failed, failed)
	return nil
}

// All returns a copy of the recorded deliveries.
func (m *MemoryDeadLetters) All() []FailedDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FailedDelivery, len(m.failed))
	copy(out, m.failed)
	return out
}
