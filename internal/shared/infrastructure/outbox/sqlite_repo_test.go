package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/keystone/internal/shared/application"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/dbtest"
)

func newSQLiteMessage(routingKey string, createdAt time.Time) *Message {
	return &Message{
		EventID:       uuid.New(),
		AggregateType: "Subscription",
		AggregateID:   uuid.New(),
		EventType:     routingKey,
		RoutingKey:    routingKey,
		Payload:       json.RawMessage(`{"user_id":"u"}`),
		CreatedAt:     createdAt,
	}
}

func TestSQLiteRepository_SaveAndGetUnpublished(t *testing.T) {
	ctx := context.Background()
	repo := NewSQLiteRepository(dbtest.NewSQLite(t))
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	second := newSQLiteMessage("billing.subscription.extended", base.Add(time.Minute))
	first := newSQLiteMessage("billing.subscription.activated", base)
	first.Metadata = json.RawMessage(`{"correlation_id":"abc"}`)
	require.NoError(t, repo.Save(ctx, second))
	require.NoError(t, repo.Save(ctx, first))
	assert.NotZero(t, first.ID)

	msgs, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, first.EventID, msgs[0].EventID)
	assert.Equal(t, base, msgs[0].CreatedAt)
	assert.JSONEq(t, `{"correlation_id":"abc"}`, string(msgs[0].Metadata))
	assert.Nil(t, msgs[1].Metadata)
	assert.Equal(t, second.EventID, msgs[1].EventID)
}

func TestSQLiteRepository_RetryLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := NewSQLiteRepository(dbtest.NewSQLite(t))
	repo.now = func() time.Time { return now }

	msg := newSQLiteMessage("billing.subscription.activated", now)
	require.NoError(t, repo.Save(ctx, msg))

	require.NoError(t, repo.MarkFailed(ctx, msg.ID, "broker down", now.Add(time.Minute)))

	msgs, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "message should wait for its retry time")

	now = now.Add(2 * time.Minute)
	msgs, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, 1, msgs[0].RetryCount)
	require.NotNil(t, msgs[0].LastError)
	assert.Equal(t, "broker down", *msgs[0].LastError)

	require.NoError(t, repo.MarkDead(ctx, msg.ID, "max retries exceeded"))
	msgs, err = repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestSQLiteRepository_DeleteOld(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	repo := NewSQLiteRepository(dbtest.NewSQLite(t))
	repo.now = func() time.Time { return now }

	published := newSQLiteMessage("billing.subscription.activated", now)
	pending := newSQLiteMessage("billing.subscription.expired", now)
	require.NoError(t, repo.Save(ctx, published))
	require.NoError(t, repo.Save(ctx, pending))
	require.NoError(t, repo.MarkPublished(ctx, published.ID))

	deleted, err := repo.DeleteOld(ctx, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)

	deleted, err = repo.DeleteOld(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	msgs, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, pending.EventID, msgs[0].EventID)
}

func TestSQLiteRepository_SaveBatchJoinsTransaction(t *testing.T) {
	ctx := context.Background()
	conn := dbtest.NewSQLite(t)
	repo := NewSQLiteRepository(conn)
	uow := database.NewUnitOfWork(conn)

	err := application.WithUnitOfWork(ctx, uow, func(txCtx context.Context) error {
		msgs := []*Message{
			newSQLiteMessage("billing.subscription.activated", time.Now()),
			newSQLiteMessage("billing.subscription.extended", time.Now()),
		}
		if err := repo.SaveBatch(txCtx, msgs); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	msgs, err := repo.GetUnpublished(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, msgs, "rolled back batch must not be visible")
}
