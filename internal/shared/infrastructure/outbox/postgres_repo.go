package outbox

import (
	"context"
	"time"

	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
)

const (
	pgInsert = `INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type, routing_key, payload, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id`

	pgSelectDue = `SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key, payload, metadata,
       created_at, published_at, next_retry_at, retry_count, last_error, dead_lettered_at, dead_letter_reason
FROM outbox
WHERE published_at IS NULL AND dead_lettered_at IS NULL
  AND (next_retry_at IS NULL OR next_retry_at <= now())
ORDER BY created_at, id
LIMIT $1`

	pgMarkPublished = `UPDATE outbox SET published_at = now() WHERE id = $1`
	pgMarkFailed    = `UPDATE outbox SET retry_count = retry_count + 1, last_error = $2, next_retry_at = $3 WHERE id = $1`
	pgMarkDead      = `UPDATE outbox SET dead_lettered_at = now(), dead_letter_reason = $2 WHERE id = $1`
	pgDeleteOld     = `DELETE FROM outbox WHERE published_at < $1`
)

// PostgresRepository stores the outbox in PostgreSQL.
type PostgresRepository struct {
	conn database.Connection
}

func NewPostgresRepository(conn database.Connection) *PostgresRepository {
	return &PostgresRepository{conn: conn}
}

func (r *PostgresRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *PostgresRepository) Save(ctx context.Context, msg *Message) error {
	var metadata []byte
	if len(msg.Metadata) > 0 {
		metadata = msg.Metadata
	}
	err := r.exec(ctx).QueryRow(ctx, pgInsert,
		msg.EventID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.RoutingKey,
		[]byte(msg.Payload), metadata, msg.CreatedAt,
	).Scan(&msg.ID)
	return database.Translate(err, "insert outbox message")
}

func (r *PostgresRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	return saveBatch(ctx, r.conn, msgs, r.Save)
}

func (r *PostgresRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.exec(ctx).Query(ctx, pgSelectDue, limit)
	if err != nil {
		return nil, database.Translate(err, "query outbox")
	}
	defer rows.Close()

	var due []*Message
	for rows.Next() {
		msg, err := scanPostgresMessage(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, msg)
	}
	return due, rows.Err()
}

func scanPostgresMessage(row database.Row) (*Message, error) {
	msg := &Message{}
	var payload, metadata []byte
	if err := row.Scan(
		&msg.ID, &msg.EventID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.RoutingKey,
		&payload, &metadata,
		&msg.CreatedAt, &msg.PublishedAt, &msg.NextRetryAt, &msg.RetryCount,
		&msg.LastError, &msg.DeadLetteredAt, &msg.DeadLetterReason,
	); err != nil {
		return nil, err
	}
	msg.Payload, msg.Metadata = payload, metadata
	return msg, nil
}

func (r *PostgresRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx).Exec(ctx, pgMarkPublished, id)
	return database.Translate(err, "mark outbox published")
}

func (r *PostgresRepository) MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error {
	_, err := r.exec(ctx).Exec(ctx, pgMarkFailed, id, reason, nextRetryAt)
	return database.Translate(err, "mark outbox failed")
}

func (r *PostgresRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx).Exec(ctx, pgMarkDead, id, reason)
	return database.Translate(err, "mark outbox dead")
}

func (r *PostgresRepository) DeleteOld(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.exec(ctx).Exec(ctx, pgDeleteOld, cutoff)
	if err != nil {
		return 0, database.Translate(err, "purge outbox")
	}
	return res.RowsAffected()
}

// saveBatch writes msgs in the caller's transaction when there is one, and
// in a fresh one otherwise.
func saveBatch(ctx context.Context, conn database.Connection, msgs []*Message, save func(context.Context, *Message) error) error {
	if len(msgs) == 0 {
		return nil
	}
	uow := database.NewUnitOfWork(conn)
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return err
	}
	for _, msg := range msgs {
		if err := save(txCtx, msg); err != nil {
			_ = uow.Rollback(txCtx)
			return err
		}
	}
	return uow.Commit(txCtx)
}

var _ Repository = (*PostgresRepository)(nil)
