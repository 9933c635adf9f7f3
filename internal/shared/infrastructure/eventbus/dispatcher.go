package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// Header keys set on dead-lettered messages.
const (
	HeaderException     = "x-exception"
	HeaderAttempts      = "x-attempts"
	HeaderFirstFailedAt = "x-first-failed-at"
)

// Disposition is the final decision for a delivery.
type Disposition string

const (
	DispositionAck        Disposition = "ack"
	DispositionDeadLetter Disposition = "dead_letter"
)

// FailedDelivery is a message that exhausted its retries or failed permanently.
type FailedDelivery struct {
	RoutingKey    string
	Body          []byte
	Err           error
	Attempts      int
	FirstFailedAt time.Time
}

// Headers renders the failure details as message headers.
func (f FailedDelivery) Headers() map[string]any {
	return map[string]any{
		HeaderException:     f.Err.Error(),
		HeaderAttempts:      int32(f.Attempts),
		HeaderFirstFailedAt: f.FirstFailedAt.UTC().Format(time.RFC3339),
	}
}

// DeadLetterSink receives deliveries that will not be retried.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, failed FailedDelivery) error
}

// RetryingDispatcher decodes a delivery and dispatches it through the registry,
// retrying transient failures in-process according to the policy.
type RetryingDispatcher struct {
	registry *ConsumerRegistry
	policy   RetryPolicy
	sink     DeadLetterSink
	logger   *slog.Logger
	metrics  observability.Metrics
	sleep    func(ctx context.Context, d time.Duration) error
	now      func() time.Time
}

// NewRetryingDispatcher creates a dispatcher. metrics may be nil.
func NewRetryingDispatcher(registry *ConsumerRegistry, policy RetryPolicy, sink DeadLetterSink, logger *slog.Logger, metrics observability.Metrics) *RetryingDispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &RetryingDispatcher{
		registry: registry,
		policy:   policy,
		sink:     sink,
		logger:   logger,
		metrics:  metrics,
		sleep:    sleepContext,
		now:      time.Now,
	}
}

// Registry returns the consumer registry.
func (d *RetryingDispatcher) Registry() *ConsumerRegistry {
	return d.registry
}

// Deliver processes one message to a final disposition. A non-nil error means
// the message could not be settled (dead-letter publish failed or ctx ended)
// and must be requeued by the broker.
func (d *RetryingDispatcher) Deliver(ctx context.Context, routingKey string, body []byte) (Disposition, error) {
	event, err := DecodeEvent(routingKey, body)
	if err != nil {
		return d.deadLetter(ctx, FailedDelivery{
			RoutingKey:    routingKey,
			Body:          body,
			Err:           err,
			Attempts:      1,
			FirstFailedAt: d.now(),
		})
	}

	var firstFailedAt time.Time
	attempts := 0
	for {
		attempts++
		err = d.attempt(ctx, event)
		if err == nil {
			d.metrics.Counter(observability.MetricEventbusDeliveries, 1,
				observability.T("routing_key", routingKey),
				observability.T("outcome", string(DispositionAck)),
			)
			if attempts > 1 {
				d.logger.Info("delivery succeeded after retry",
					"routing_key", routingKey,
					"attempt", attempts,
				)
			}
			return DispositionAck, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}

		if firstFailedAt.IsZero() {
			firstFailedAt = d.now()
		}

		if IsPermanent(err) || attempts > d.policy.Limit {
			return d.deadLetter(ctx, FailedDelivery{
				RoutingKey:    routingKey,
				Body:          body,
				Err:           err,
				Attempts:      attempts,
				FirstFailedAt: firstFailedAt,
			})
		}

		delay := d.policy.Delay(attempts)
		d.logger.Warn("delivery failed, retrying",
			"routing_key", routingKey,
			"attempt", attempts,
			"retry_in", delay,
			"error", err,
		)
		d.metrics.Counter(observability.MetricEventbusRetries, 1, observability.T("routing_key", routingKey))

		if err := d.sleep(ctx, delay); err != nil {
			return "", err
		}
	}
}

func (d *RetryingDispatcher) attempt(ctx context.Context, event *ConsumedEvent) error {
	if d.policy.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.policy.AttemptTimeout)
		defer cancel()
	}
	return d.registry.Dispatch(ctx, event)
}

func (d *RetryingDispatcher) deadLetter(ctx context.Context, failed FailedDelivery) (Disposition, error) {
	d.logger.Error("dead-lettering message",
		"routing_key", failed.RoutingKey,
		"attempt", failed.Attempts,
		"error", failed.Err,
	)
	d.metrics.Counter(observability.MetricEventbusDeliveries, 1,
		observability.T("routing_key", failed.RoutingKey),
		observability.T("outcome", string(DispositionDeadLetter)),
	)

	if d.sink == nil {
		return "", errors.New("no dead-letter sink configured")
	}
	if err := d.sink.DeadLetter(ctx, failed); err != nil {
		return "", err
	}
	return DispositionDeadLetter, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
