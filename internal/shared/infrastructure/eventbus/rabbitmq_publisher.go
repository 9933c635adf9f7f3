package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrPublishNacked is returned when the broker refuses a message.
var ErrPublishNacked = errors.New("publish not confirmed by broker")

// RabbitMQPublisher publishes on a confirm-mode channel. Publish returns only
// after the broker has taken responsibility for the message, so the outbox
// never marks a row published that the broker dropped.
type RabbitMQPublisher struct {
	session *amqpSession
	logger  *slog.Logger
	mu      sync.Mutex
}

// NewRabbitMQPublisher connects to url and declares exchange. An empty
// exchange means ExchangeName.
func NewRabbitMQPublisher(url, exchange string, logger *slog.Logger) (*RabbitMQPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if exchange == "" {
		exchange = ExchangeName
	}

	session, err := dialTopic(url, exchange)
	if err != nil {
		return nil, err
	}
	if err := session.channel.Confirm(false); err != nil {
		_ = session.close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	logger.Info("rabbitmq publisher connected", "exchange", exchange)
	return &RabbitMQPublisher{session: session, logger: logger}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg := persistent(payload, nil)
	msg.Timestamp = time.Now()
	confirm, err := p.session.channel.PublishWithDeferredConfirmWithContext(ctx,
		p.session.exchange, routingKey, false, false, msg)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm for %s: %w", routingKey, err)
	}
	if !acked {
		return fmt.Errorf("%w: %s", ErrPublishNacked, routingKey)
	}

	p.logger.DebugContext(ctx, "message published", "routing_key", routingKey, "bytes", len(payload))
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session.close()
}

var _ Publisher = (*RabbitMQPublisher)(nil)

// NoopPublisher drops everything. Local mode uses it when no broker is
// configured; outbox rows are then marked published without leaving the
// process.
type NoopPublisher struct {
	logger *slog.Logger
}

func NewNoopPublisher(logger *slog.Logger) *NoopPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &NoopPublisher{logger: logger}
}

func (p *NoopPublisher) Publish(ctx context.Context, routingKey string, payload []byte) error {
	p.logger.DebugContext(ctx, "publish skipped", "routing_key", routingKey, "bytes", len(payload))
	return nil
}

func (p *NoopPublisher) Close() error { return nil }

var _ Publisher = (*NoopPublisher)(nil)
