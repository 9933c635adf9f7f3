package outbox_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

type subscriptionActivated struct {
	domain.BaseEvent
	PackageID uuid.UUID `json:"package_id"`
}

type published struct {
	routingKey string
	body       []byte
}

// fakePublisher fails the first failures calls and records the rest.
type fakePublisher struct {
	mu       sync.Mutex
	failures int
	err      error
	sent     []published
}

func (p *fakePublisher) Publish(_ context.Context, routingKey string, body []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return p.err
	}
	p.sent = append(p.sent, published{routingKey: routingKey, body: body})
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

func enqueue(t *testing.T, repo outbox.Repository, n int) []*outbox.Message {
	t.Helper()
	msgs := make([]*outbox.Message, n)
	for i := range msgs {
		event := &subscriptionActivated{
			BaseEvent: domain.NewBaseEvent(uuid.New(), "Subscription", "billing.subscription.activated", time.Now().Add(-time.Minute)),
			PackageID: uuid.New(),
		}
		event.SetMetadata(domain.EventMetadata{CorrelationID: uuid.New(), UserID: uuid.New()})
		msg, err := outbox.NewMessage(event)
		require.NoError(t, err)
		msgs[i] = msg
	}
	require.NoError(t, repo.SaveBatch(context.Background(), msgs))
	return msgs
}

func fastConfig(maxRetries int) outbox.ProcessorConfig {
	cfg := outbox.DefaultProcessorConfig()
	cfg.PollInterval = 5 * time.Millisecond
	cfg.MaxRetries = maxRetries
	cfg.Retry.Interval = time.Nanosecond
	cfg.Retry.MaxInterval = time.Nanosecond
	return cfg
}

func TestProcessor_ProcessOncePublishes(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	pub := &fakePublisher{}
	metrics := observability.NewInMemoryMetrics()
	cfg := fastConfig(3)
	cfg.Metrics = metrics
	msgs := enqueue(t, repo, 3)

	p := outbox.NewProcessor(repo, pub, cfg, nil)
	require.NoError(t, p.ProcessOnce(context.Background()))

	require.Equal(t, 3, pub.count())
	assert.Equal(t, "billing.subscription.activated", pub.sent[0].routingKey)
	assert.Contains(t, string(pub.sent[0].body), msgs[0].EventID.String())
	for _, msg := range repo.Messages() {
		assert.NotNil(t, msg.PublishedAt)
	}

	stats := p.GetStats()
	assert.Equal(t, uint64(3), stats.PublishedCount)
	assert.Zero(t, stats.FailedCount)
	assert.NotNil(t, stats.LastProcessedAt)
	assert.GreaterOrEqual(t, stats.LagSeconds, 59.0)
	assert.Equal(t, int64(3), metrics.GetCounter(observability.MetricEventsPublished,
		observability.T("routing_key", "billing.subscription.activated")))

	// Nothing is pending on the next poll, so lag drops to zero.
	require.NoError(t, p.ProcessOnce(context.Background()))
	assert.Equal(t, 3, pub.count())
	assert.Zero(t, p.GetStats().LagSeconds)
}

func TestProcessor_FailureSchedulesRetry(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	pub := &fakePublisher{failures: 1, err: errors.New("broker down")}
	metrics := observability.NewInMemoryMetrics()
	cfg := outbox.DefaultProcessorConfig()
	cfg.MaxRetries = 3
	cfg.Metrics = metrics
	enqueue(t, repo, 1)

	p := outbox.NewProcessor(repo, pub, cfg, nil)
	before := time.Now()
	require.NoError(t, p.ProcessOnce(context.Background()))

	msg := repo.Messages()[0]
	assert.Nil(t, msg.PublishedAt)
	assert.Equal(t, 1, msg.RetryCount)
	require.NotNil(t, msg.LastError)
	assert.Equal(t, "broker down", *msg.LastError)
	require.NotNil(t, msg.NextRetryAt)
	assert.WithinDuration(t, before.Add(time.Second), *msg.NextRetryAt, 500*time.Millisecond)

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats.FailedCount)
	assert.Equal(t, "broker down", stats.LastError)
	assert.NotNil(t, stats.LastErrorAt)
	assert.Equal(t, int64(1), metrics.GetCounter(observability.MetricOutboxFailures,
		observability.T("routing_key", "billing.subscription.activated")))

	// Backed off: the next poll skips it.
	require.NoError(t, p.ProcessOnce(context.Background()))
	assert.Zero(t, pub.count())
}

func TestProcessor_RetrySucceeds(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	pub := &fakePublisher{failures: 1, err: errors.New("timeout")}
	enqueue(t, repo, 1)

	p := outbox.NewProcessor(repo, pub, fastConfig(3), nil)
	require.NoError(t, p.ProcessOnce(context.Background()))
	time.Sleep(time.Millisecond)
	require.NoError(t, p.ProcessOnce(context.Background()))

	assert.Equal(t, 1, pub.count())
	assert.NotNil(t, repo.Messages()[0].PublishedAt)
	assert.Equal(t, uint64(1), p.GetStats().PublishedCount)
}

func TestProcessor_DeadLettersAfterMaxRetries(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	pub := &fakePublisher{failures: 10, err: errors.New("exchange missing")}
	enqueue(t, repo, 1)

	p := outbox.NewProcessor(repo, pub, fastConfig(2), nil)
	require.NoError(t, p.ProcessOnce(context.Background()))
	time.Sleep(time.Millisecond)
	require.NoError(t, p.ProcessOnce(context.Background()))

	msg := repo.Messages()[0]
	require.NotNil(t, msg.DeadLetteredAt)
	require.NotNil(t, msg.DeadLetterReason)
	assert.Equal(t, "exchange missing", *msg.DeadLetterReason)

	stats := p.GetStats()
	assert.Equal(t, uint64(1), stats.FailedCount)
	assert.Equal(t, uint64(1), stats.DeadCount)

	// Dead rows are never picked up again.
	time.Sleep(time.Millisecond)
	require.NoError(t, p.ProcessOnce(context.Background()))
	assert.Equal(t, uint64(1), p.GetStats().DeadCount)
}

func TestProcessor_RepositoryError(t *testing.T) {
	p := outbox.NewProcessor(failingRepo{outbox.NewInMemoryRepository()}, &fakePublisher{}, fastConfig(3), nil)

	err := p.ProcessOnce(context.Background())
	require.Error(t, err)
	assert.Equal(t, "db gone", p.GetStats().LastError)
}

type failingRepo struct {
	*outbox.InMemoryRepository
}

func (failingRepo) GetUnpublished(context.Context, int) ([]*outbox.Message, error) {
	return nil, errors.New("db gone")
}

func TestProcessor_StartStop(t *testing.T) {
	repo := outbox.NewInMemoryRepository()
	pub := &fakePublisher{}
	enqueue(t, repo, 2)

	p := outbox.NewProcessor(repo, pub, fastConfig(3), nil)
	assert.False(t, p.IsRunning())

	require.NoError(t, p.Start(context.Background()))
	require.NoError(t, p.Start(context.Background()))
	assert.True(t, p.IsRunning())
	assert.True(t, p.GetStats().IsRunning)

	require.Eventually(t, func() bool { return pub.count() == 2 }, time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop()
	assert.False(t, p.IsRunning())

	// A stopped processor can be started again.
	enqueue(t, repo, 1)
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return pub.count() == 3 }, time.Second, 5*time.Millisecond)
	p.Stop()
}

func TestProcessor_StopsWithContext(t *testing.T) {
	p := outbox.NewProcessor(outbox.NewInMemoryRepository(), &fakePublisher{}, fastConfig(3), nil)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()

	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return after context cancellation")
	}
}
