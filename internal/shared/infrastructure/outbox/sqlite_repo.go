package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database/sqlite"
)

// Timestamps are compared as text, so every value goes through
// sqlite.FormatTime to keep them sortable.
const (
	liteInsert = `INSERT INTO outbox (event_id, aggregate_type, aggregate_id, event_type, routing_key, payload, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	liteSelectDue = `SELECT id, event_id, aggregate_type, aggregate_id, event_type, routing_key, payload, metadata,
       created_at, published_at, next_retry_at, retry_count, last_error, dead_lettered_at, dead_letter_reason
FROM outbox
WHERE published_at IS NULL AND dead_lettered_at IS NULL
  AND (next_retry_at IS NULL OR next_retry_at <= ?)
ORDER BY created_at, id
LIMIT ?`

	liteMarkPublished = `UPDATE outbox SET published_at = ? WHERE id = ?`
	liteMarkFailed    = `UPDATE outbox SET retry_count = retry_count + 1, last_error = ?, next_retry_at = ? WHERE id = ?`
	liteMarkDead      = `UPDATE outbox SET dead_lettered_at = ?, dead_letter_reason = ? WHERE id = ?`
	liteDeleteOld     = `DELETE FROM outbox WHERE published_at IS NOT NULL AND published_at < ?`
)

// SQLiteRepository stores the outbox in the local-mode database.
type SQLiteRepository struct {
	conn database.Connection
	now  func() time.Time
}

func NewSQLiteRepository(conn database.Connection) *SQLiteRepository {
	return &SQLiteRepository{conn: conn, now: time.Now}
}

func (r *SQLiteRepository) exec(ctx context.Context) database.Executor {
	return database.ExecutorFromContext(ctx, r.conn)
}

func (r *SQLiteRepository) stamp() string {
	return sqlite.FormatTime(r.now())
}

func (r *SQLiteRepository) Save(ctx context.Context, msg *Message) error {
	metadata := sql.NullString{String: string(msg.Metadata), Valid: len(msg.Metadata) > 0}
	res, err := r.exec(ctx).Exec(ctx, liteInsert,
		msg.EventID.String(), msg.AggregateType, msg.AggregateID.String(), msg.EventType, msg.RoutingKey,
		string(msg.Payload), metadata, sqlite.FormatTime(msg.CreatedAt),
	)
	if err != nil {
		return database.Translate(err, "insert outbox message")
	}
	msg.ID, err = res.LastInsertId()
	return err
}

func (r *SQLiteRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	return saveBatch(ctx, r.conn, msgs, r.Save)
}

func (r *SQLiteRepository) GetUnpublished(ctx context.Context, limit int) ([]*Message, error) {
	rows, err := r.exec(ctx).Query(ctx, liteSelectDue, r.stamp(), limit)
	if err != nil {
		return nil, database.Translate(err, "query outbox")
	}
	defer rows.Close()

	var due []*Message
	for rows.Next() {
		msg, err := scanSQLiteMessage(rows)
		if err != nil {
			return nil, err
		}
		due = append(due, msg)
	}
	return due, rows.Err()
}

func (r *SQLiteRepository) MarkPublished(ctx context.Context, id int64) error {
	_, err := r.exec(ctx).Exec(ctx, liteMarkPublished, r.stamp(), id)
	return database.Translate(err, "mark outbox published")
}

func (r *SQLiteRepository) MarkFailed(ctx context.Context, id int64, reason string, next time.Time) error {
	_, err := r.exec(ctx).Exec(ctx, liteMarkFailed, reason, sqlite.FormatTime(next), id)
	return database.Translate(err, "mark outbox failed")
}

func (r *SQLiteRepository) MarkDead(ctx context.Context, id int64, reason string) error {
	_, err := r.exec(ctx).Exec(ctx, liteMarkDead, r.stamp(), reason, id)
	return database.Translate(err, "mark outbox dead")
}

func (r *SQLiteRepository) DeleteOld(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.exec(ctx).Exec(ctx, liteDeleteOld, sqlite.FormatTime(cutoff))
	if err != nil {
		return 0, database.Translate(err, "delete old outbox messages")
	}
	return res.RowsAffected()
}

// scanSQLiteMessage reads a row where ids and timestamps are stored as text.
func scanSQLiteMessage(row database.Row) (*Message, error) {
	msg := &Message{}
	var eventID, aggregateID, payload, created string
	var metadata, published, retryAt, dead, lastErr, deadReason sql.NullString
	if err := row.Scan(
		&msg.ID, &eventID, &msg.AggregateType, &aggregateID, &msg.EventType, &msg.RoutingKey,
		&payload, &metadata, &created, &published, &retryAt, &msg.RetryCount,
		&lastErr, &dead, &deadReason,
	); err != nil {
		return nil, err
	}

	var err error
	if msg.EventID, err = uuid.Parse(eventID); err != nil {
		return nil, err
	}
	if msg.AggregateID, err = uuid.Parse(aggregateID); err != nil {
		return nil, err
	}
	if msg.CreatedAt, err = sqlite.ParseTime(created); err != nil {
		return nil, err
	}
	for _, f := range []struct {
		dst **time.Time
		src sql.NullString
	}{{&msg.PublishedAt, published}, {&msg.NextRetryAt, retryAt}, {&msg.DeadLetteredAt, dead}} {
		if *f.dst, err = sqlite.ParseNullTime(f.src); err != nil {
			return nil, err
		}
	}

	msg.Payload = []byte(payload)
	if metadata.Valid {
		msg.Metadata = []byte(metadata.String)
	}
	msg.LastError = nullString(lastErr)
	msg.DeadLetterReason = nullString(deadReason)
	return msg, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

var _ Repository = (*SQLiteRepository)(nil)
