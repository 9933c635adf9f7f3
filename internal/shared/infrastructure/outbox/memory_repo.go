package outbox

import (
	"context"
	"sync"
	"time"
)

// InMemoryRepository keeps the outbox in process. Local runs and tests use it
// when no database-backed outbox is wired.
type InMemoryRepository struct {
	mu   sync.Mutex
	rows []*Message
	seq  int64
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

func (r *InMemoryRepository) Save(_ context.Context, msg *Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	msg.ID = r.seq
	r.rows = append(r.rows, msg)
	return nil
}

func (r *InMemoryRepository) SaveBatch(ctx context.Context, msgs []*Message) error {
	for _, msg := range msgs {
		if err := r.Save(ctx, msg); err != nil {
			return err
		}
	}
	return nil
}

// GetUnpublished returns pending rows whose retry time has passed, oldest first.
func (r *InMemoryRepository) GetUnpublished(_ context.Context, limit int) ([]*Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var due []*Message
	for _, msg := range r.rows {
		if len(due) == limit {
			break
		}
		pending := msg.PublishedAt == nil && msg.DeadLetteredAt == nil
		if pending && (msg.NextRetryAt == nil || !msg.NextRetryAt.After(now)) {
			due = append(due, msg)
		}
	}
	return due, nil
}

func (r *InMemoryRepository) MarkPublished(_ context.Context, id int64) error {
	r.update(id, func(msg *Message) {
		now := time.Now()
		msg.PublishedAt = &now
	})
	return nil
}

func (r *InMemoryRepository) MarkFailed(_ context.Context, id int64, reason string, nextRetryAt time.Time) error {
	r.update(id, func(msg *Message) {
		msg.RetryCount++
		msg.LastError = &reason
		msg.NextRetryAt = &nextRetryAt
	})
	return nil
}

func (r *InMemoryRepository) MarkDead(_ context.Context, id int64, reason string) error {
	r.update(id, func(msg *Message) {
		now := time.Now()
		msg.DeadLetteredAt = &now
		msg.DeadLetterReason = &reason
	})
	return nil
}

// DeleteOld drops published rows older than cutoff.
func (r *InMemoryRepository) DeleteOld(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var kept []*Message
	for _, msg := range r.rows {
		if msg.PublishedAt == nil || !msg.PublishedAt.Before(cutoff) {
			kept = append(kept, msg)
		}
	}
	deleted := int64(len(r.rows) - len(kept))
	r.rows = kept
	return deleted, nil
}

// Messages snapshots every stored row.
func (r *InMemoryRepository) Messages() []*Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Message(nil), r.rows...)
}

func (r *InMemoryRepository) update(id int64, fn func(*Message)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, msg := range r.rows {
		if msg.ID == id {
			fn(msg)
			return
		}
	}
}

var _ Repository = (*InMemoryRepository)(nil)
