package outbox

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/eventbus"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// ProcessorConfig tunes the relay loop.
type ProcessorConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// MaxRetries is the number of failed attempts after which a message is
	// dead-lettered.
	MaxRetries int
	// Retry spaces out attempts on a failing message.
	Retry   eventbus.RetryPolicy
	Metrics observability.Metrics
}

func DefaultProcessorConfig() ProcessorConfig {
	return ProcessorConfig{
		PollInterval: 100 * time.Millisecond,
		BatchSize:    100,
		MaxRetries:   5,
		Retry: eventbus.RetryPolicy{
			Interval:    time.Second,
			Backoff:     eventbus.BackoffExponential,
			MaxInterval: time.Minute,
		},
	}
}

func (c ProcessorConfig) withDefaults() ProcessorConfig {
	def := DefaultProcessorConfig()
	if c.PollInterval <= 0 {
		c.PollInterval = def.PollInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = def.BatchSize
	}
	if c.Retry.Interval <= 0 {
		c.Retry = def.Retry
	}
	if c.Metrics == nil {
		c.Metrics = observability.NoopMetrics{}
	}
	return c
}

// Processor relays outbox rows to the broker. Each message is published at
// least once; consumers deduplicate on the event id.
type Processor struct {
	repo      Repository
	publisher eventbus.Publisher
	config    ProcessorConfig
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	published atomic.Uint64
	failed    atomic.Uint64
	dead      atomic.Uint64

	statsMu       sync.Mutex
	lag           time.Duration
	lastProcessed time.Time
	lastErr       string
	lastErrAt     time.Time
}

// NewProcessor wires a relay over repo and publisher.
func NewProcessor(repo Repository, publisher eventbus.Publisher, config ProcessorConfig, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		repo:      repo,
		publisher: publisher,
		config:    config.withDefaults(),
		logger:    logger.With("component", "outbox"),
	}
}

// Start launches the polling loop. It returns immediately; the loop runs
// until Stop is called or ctx is cancelled. Starting a running processor is
// a no-op.
func (p *Processor) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		p.loop(loopCtx)
	}()

	p.logger.Info("outbox processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize,
		"max_retries", p.config.MaxRetries,
	)
	return nil
}

// Stop cancels the loop and waits for the in-flight batch to finish.
func (p *Processor) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	p.logger.Info("outbox processor stopped")
}

// IsRunning reports whether the loop is active.
func (p *Processor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

func (p *Processor) loop(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.ProcessOnce(ctx); err != nil && ctx.Err() == nil {
				p.logger.Error("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessOnce relays one batch of due messages synchronously.
func (p *Processor) ProcessOnce(ctx context.Context) error {
	batch, err := p.repo.GetUnpublished(ctx, p.config.BatchSize)
	if err != nil {
		p.noteError(err)
		return err
	}
	p.noteBatch(batch)

	for _, msg := range batch {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.relay(ctx, msg)
	}
	return nil
}

// relay publishes a single message and records the outcome on its row.
func (p *Processor) relay(ctx context.Context, msg *Message) {
	ctx = traced(ctx, msg.Trace())
	log := p.logger.With(
		"outbox_id", msg.ID,
		"event_id", msg.EventID,
		"routing_key", msg.RoutingKey,
	)
	tag := observability.T("routing_key", msg.RoutingKey)

	err := p.publish(ctx, msg)
	if err == nil {
		if markErr := p.repo.MarkPublished(ctx, msg.ID); markErr != nil {
			// The row stays pending and is published again on the next poll.
			log.ErrorContext(ctx, "mark published failed", "error", markErr)
			return
		}
		p.published.Add(1)
		p.config.Metrics.Counter(observability.MetricEventsPublished, 1, tag)
		log.DebugContext(ctx, "event published")
		return
	}

	p.noteError(err)
	p.config.Metrics.Counter(observability.MetricOutboxFailures, 1, tag)
	attempts := msg.RetryCount + 1

	if attempts >= p.config.MaxRetries {
		p.dead.Add(1)
		log.ErrorContext(ctx, "event dead-lettered", "attempts", attempts, "error", err)
		if markErr := p.repo.MarkDead(ctx, msg.ID, err.Error()); markErr != nil {
			log.ErrorContext(ctx, "mark dead failed", "error", markErr)
		}
		return
	}

	p.failed.Add(1)
	next := time.Now().Add(p.config.Retry.Delay(attempts))
	log.WarnContext(ctx, "event publish failed", "attempts", attempts, "next_retry_at", next, "error", err)
	if markErr := p.repo.MarkFailed(ctx, msg.ID, err.Error(), next); markErr != nil {
		log.ErrorContext(ctx, "mark failed failed", "error", markErr)
	}
}

func (p *Processor) publish(ctx context.Context, msg *Message) error {
	body, err := msg.Envelope()
	if err != nil {
		return err
	}
	return p.publisher.Publish(ctx, msg.RoutingKey, body)
}

func traced(ctx context.Context, meta domain.EventMetadata) context.Context {
	if meta.CorrelationID != uuid.Nil {
		ctx = observability.WithCorrelationID(ctx, meta.CorrelationID.String())
	}
	if meta.UserID != uuid.Nil {
		ctx = observability.WithUserID(ctx, meta.UserID.String())
	}
	return ctx
}

// Stats is a point-in-time view of the relay.
type Stats struct {
	IsRunning      bool   `json:"running"`
	PublishedCount uint64 `json:"published"`
	FailedCount    uint64 `json:"failed"`
	DeadCount      uint64 `json:"dead"`
	// LagSeconds is the age of the oldest pending message seen by the most
	// recent poll.
	LagSeconds      float64    `json:"lag_seconds"`
	LastError       string     `json:"last_error,omitempty"`
	LastErrorAt     *time.Time `json:"last_error_at,omitempty"`
	LastProcessedAt *time.Time `json:"last_processed_at,omitempty"`
}

// Lag is LagSeconds as a duration.
func (s Stats) Lag() time.Duration {
	return time.Duration(s.LagSeconds * float64(time.Second))
}

// GetStats snapshots the relay counters.
func (p *Processor) GetStats() Stats {
	s := Stats{
		IsRunning:      p.IsRunning(),
		PublishedCount: p.published.Load(),
		FailedCount:    p.failed.Load(),
		DeadCount:      p.dead.Load(),
	}

	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	s.LagSeconds = p.lag.Seconds()
	s.LastError = p.lastErr
	if !p.lastErrAt.IsZero() {
		at := p.lastErrAt
		s.LastErrorAt = &at
	}
	if !p.lastProcessed.IsZero() {
		at := p.lastProcessed
		s.LastProcessedAt = &at
	}
	return s
}

func (p *Processor) noteBatch(batch []*Message) {
	now := time.Now()
	var lag time.Duration
	for _, msg := range batch {
		if age := now.Sub(msg.CreatedAt); age > lag {
			lag = age
		}
	}

	p.statsMu.Lock()
	p.lastProcessed = now
	p.lag = lag
	p.statsMu.Unlock()
}

func (p *Processor) noteError(err error) {
	p.statsMu.Lock()
	p.lastErr = err.Error()
	p.lastErrAt = time.Now()
	p.statsMu.Unlock()
}
