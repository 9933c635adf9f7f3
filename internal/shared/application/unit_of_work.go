package application

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/keystone/internal/shared/domain"
)

// UnitOfWork scopes a transaction to a context. Repositories called with the
// context returned by Begin take part in that transaction.
type UnitOfWork interface {
	Begin(ctx context.Context) (context.Context, error)
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// UnitOfWorkFunc is the body of a transaction.
type UnitOfWorkFunc func(ctx context.Context) error

// WithUnitOfWork runs fn in a transaction: committed when fn returns nil,
// rolled back when it returns an error or panics. A panic is re-raised after
// the rollback.
func WithUnitOfWork(ctx context.Context, uow UnitOfWork, fn UnitOfWorkFunc) (err error) {
	txCtx, err := uow.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if r := recover(); r != nil {
			_ = uow.Rollback(txCtx)
			panic(r)
		}
		_ = uow.Rollback(txCtx)
	}()

	if err := fn(txCtx); err != nil {
		return err
	}
	committed = true
	return uow.Commit(txCtx)
}

// RetryPolicy bounds re-runs of a unit of work after a retryable failure,
// typically a lost optimistic-lock race.
type RetryPolicy struct {
	Attempts int
	// Delay grows linearly with the attempt number.
	Delay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Attempts: 3, Delay: 20 * time.Millisecond}
}

// WithUnitOfWorkRetry re-runs fn, each time in a fresh transaction, while it
// fails with a retryable error and attempts remain. fn must re-read the state
// it depends on.
func WithUnitOfWorkRetry(ctx context.Context, uow UnitOfWork, policy RetryPolicy, fn UnitOfWorkFunc) error {
	attempts := max(policy.Attempts, 1)

	for attempt := 1; ; attempt++ {
		err := WithUnitOfWork(ctx, uow, fn)
		if err == nil || attempt >= attempts || !domain.IsRetryable(err) {
			return err
		}
		if err := pause(ctx, policy.Delay*time.Duration(attempt)); err != nil {
			return err
		}
	}
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
