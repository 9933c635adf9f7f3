package eventbus

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"go.uber.org/multierr"
)

// ConsumerRegistry routes a decoded event to every consumer subscribed to its
// routing key.
type ConsumerRegistry struct {
	mu     sync.RWMutex
	routes map[string][]EventConsumer
	logger *slog.Logger
}

func NewConsumerRegistry(logger *slog.Logger) *ConsumerRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsumerRegistry{routes: map[string][]EventConsumer{}, logger: logger}
}

// Register subscribes consumer to each routing key it declares.
func (r *ConsumerRegistry) Register(consumer EventConsumer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range consumer.EventTypes() {
		r.routes[key] = append(r.routes[key], consumer)
	}
	r.logger.Debug("consumer registered", "routing_keys", consumer.EventTypes())
}

// Handlers returns the consumers subscribed to routingKey, in registration order.
func (r *ConsumerRegistry) Handlers(routingKey string) []EventConsumer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventConsumer(nil), r.routes[routingKey]...)
}

// RoutingKeys lists every key with at least one consumer, sorted. The broker
// consumer binds its queue to exactly these keys.
func (r *ConsumerRegistry) RoutingKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.routes))
	for key := range r.routes {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len counts subscriptions; a consumer on two keys counts twice.
func (r *ConsumerRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, consumers := range r.routes {
		n += len(consumers)
	}
	return n
}

// Dispatch hands event to each subscribed consumer. All consumers run; their
// errors are combined. An event nobody subscribes to is dropped.
func (r *ConsumerRegistry) Dispatch(ctx context.Context, event *ConsumedEvent) error {
	consumers := r.Handlers(event.RoutingKey)
	if len(consumers) == 0 {
		r.logger.DebugContext(ctx, "no consumer for routing key", "routing_key", event.RoutingKey)
		return nil
	}

	ctx = event.scoped(ctx)
	var errs error
	for _, consumer := range consumers {
		if err := consumer.Handle(ctx, event); err != nil {
			r.logger.WarnContext(ctx, "consumer failed",
				"routing_key", event.RoutingKey,
				"event_id", event.EventID,
				"error", err,
			)
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
