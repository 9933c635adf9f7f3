package outbox

import (
	"context"
	"time"
)

// Repository persists outbox rows. Save and SaveBatch join the transaction
// carried by ctx, so events commit or roll back with the state change that
// raised them.
type Repository interface {
	Save(ctx context.Context, msg *Message) error
	SaveBatch(ctx context.Context, msgs []*Message) error

	// GetUnpublished returns up to limit rows that are neither published nor
	// dead and whose retry time has passed, oldest first.
	GetUnpublished(ctx context.Context, limit int) ([]*Message, error)

	MarkPublished(ctx context.Context, id int64) error
	// MarkFailed bumps the retry count and defers the row until nextRetryAt.
	MarkFailed(ctx context.Context, id int64, reason string, nextRetryAt time.Time) error
	MarkDead(ctx context.Context, id int64, reason string) error

	// DeleteOld purges rows published before cutoff.
	DeleteOld(ctx context.Context, cutoff time.Time) (int64, error)
}
