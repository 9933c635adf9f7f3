package eventbus

import "context"

// Publisher sends a serialized event to the broker under routingKey. A nil
// error means the broker accepted it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload []byte) error
	Close() error
}
