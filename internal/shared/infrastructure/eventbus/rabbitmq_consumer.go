package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/felixgeelhaar/keystone/pkg/observability"
)

const (
	// DefaultConsumerQueueName is the queue payment events are consumed from.
	DefaultConsumerQueueName = "identity-service-queue"

	// DefaultPaymentExchange is the topic exchange the payment service publishes to.
	DefaultPaymentExchange = "payments.events"

	// ErrorQueueSuffix names the dead-letter queue next to the consumer queue.
	ErrorQueueSuffix = "_error"

	headerOriginalRoutingKey = "x-original-routing-key"
)

// ErrConsumerRunning is returned by a second concurrent Start.
var ErrConsumerRunning = errors.New("consumer already running")

// RabbitMQConsumerConfig configures a RabbitMQConsumer.
type RabbitMQConsumerConfig struct {
	URL         string
	QueueName   string
	Exchange    string
	RetryPolicy RetryPolicy
	Logger      *slog.Logger
	Metrics     observability.Metrics
}

// RabbitMQConsumer drains one durable queue bound to the routing keys of its
// registered consumers. Deliveries are processed one at a time and acked only
// once they were handled or copied to the error queue.
type RabbitMQConsumer struct {
	session    *amqpSession
	queue      string
	errorQueue string
	registry   *ConsumerRegistry
	dispatcher *RetryingDispatcher
	logger     *slog.Logger

	mu      sync.Mutex
	running bool
	closed  chan struct{}
	once    sync.Once
}

// NewRabbitMQConsumer connects and declares the exchange, the queue and its
// error queue.
func NewRabbitMQConsumer(cfg RabbitMQConsumerConfig, registry *ConsumerRegistry) (*RabbitMQConsumer, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = DefaultConsumerQueueName
	}
	if cfg.Exchange == "" {
		cfg.Exchange = DefaultPaymentExchange
	}

	session, err := dialTopic(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	errorQueue := cfg.QueueName + ErrorQueueSuffix
	for _, name := range []string{cfg.QueueName, errorQueue} {
		if err := session.declareQueue(name); err != nil {
			_ = session.close()
			return nil, err
		}
	}

	c := &RabbitMQConsumer{
		session:    session,
		queue:      cfg.QueueName,
		errorQueue: errorQueue,
		registry:   registry,
		logger:     cfg.Logger.With("queue", cfg.QueueName),
		closed:     make(chan struct{}),
	}
	c.dispatcher = NewRetryingDispatcher(registry, cfg.RetryPolicy, c, cfg.Logger, cfg.Metrics)

	c.logger.Info("rabbitmq consumer connected", "exchange", cfg.Exchange, "error_queue", errorQueue)
	return c, nil
}

// RegisterConsumer adds consumer to the registry and binds the queue to its
// routing keys.
func (c *RabbitMQConsumer) RegisterConsumer(consumer EventConsumer) {
	c.registry.Register(consumer)

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range consumer.EventTypes() {
		if err := c.session.channel.QueueBind(c.queue, key, c.session.exchange, false, nil); err != nil {
			c.logger.Error("queue bind failed", "routing_key", key, "error", err)
		}
	}
}

// Start consumes until ctx ends, Close is called or the broker closes the
// delivery channel.
func (c *RabbitMQConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrConsumerRunning
	}
	c.running = true
	c.mu.Unlock()

	// prefetch 1: a message under retry holds the queue so order is kept
	if err := c.session.channel.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := c.session.channel.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}
	c.logger.Info("consuming", "routing_keys", c.registry.RoutingKeys())

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.closed:
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed by broker")
			}
			c.settle(ctx, d)
		}
	}
}

func (c *RabbitMQConsumer) settle(ctx context.Context, d amqp.Delivery) {
	started := time.Now()
	disposition, err := c.dispatcher.Deliver(ctx, d.RoutingKey, d.Body)
	if err != nil {
		c.logger.Error("delivery unsettled, requeueing", "routing_key", d.RoutingKey, "error", err)
		if nackErr := d.Nack(false, true); nackErr != nil {
			c.logger.Error("nack failed", "error", nackErr)
		}
		return
	}
	if err := d.Ack(false); err != nil {
		c.logger.Error("ack failed", "routing_key", d.RoutingKey, "error", err)
		return
	}
	c.logger.Debug("delivery settled",
		"routing_key", d.RoutingKey,
		"disposition", disposition,
		"duration_ms", time.Since(started).Milliseconds(),
	)
}

// DeadLetter copies failed to the error queue through the default exchange,
// with the failure recorded in headers.
func (c *RabbitMQConsumer) DeadLetter(ctx context.Context, failed FailedDelivery) error {
	headers := amqp.Table(failed.Headers())
	headers[headerOriginalRoutingKey] = failed.RoutingKey
	msg := persistent(failed.Body, headers)
	msg.Timestamp = time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.session.channel.PublishWithContext(ctx, "", c.errorQueue, false, false, msg); err != nil {
		return fmt.Errorf("publish to %s: %w", c.errorQueue, err)
	}
	return nil
}

// Close stops Start and tears down the connection.
func (c *RabbitMQConsumer) Close() error {
	c.once.Do(func() { close(c.closed) })

	c.mu.Lock()
	defer c.mu.Unlock()
	c.running = false
	return c.session.close()
}

var (
	_ Consumer       = (*RabbitMQConsumer)(nil)
	_ DeadLetterSink = (*RabbitMQConsumer)(nil)
)
