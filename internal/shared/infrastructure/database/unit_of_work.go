package database

import (
	"context"
	"errors"
)

var errNoTransaction = errors.New("no transaction in context")

type txScopeKey struct{}

// txScope records the open transaction and whether this Begin opened it.
type txScope struct {
	tx    Transaction
	owner bool
}

func scopeFrom(ctx context.Context) (txScope, bool) {
	s, ok := ctx.Value(txScopeKey{}).(txScope)
	return s, ok && s.tx != nil
}

// ExecutorFromContext returns the transaction bound to ctx, or conn when no
// unit of work is open.
func ExecutorFromContext(ctx context.Context, conn Connection) Executor {
	if s, ok := scopeFrom(ctx); ok {
		return s.tx
	}
	return conn
}

// InTransaction reports whether ctx carries an open unit of work.
func InTransaction(ctx context.Context) bool {
	_, ok := scopeFrom(ctx)
	return ok
}

// UnitOfWork binds transactions to contexts for any Connection. A Begin inside
// an open unit joins it, and only the outermost Commit or Rollback finishes
// the transaction.
type UnitOfWork struct {
	conn Connection
}

// NewUnitOfWork creates a UnitOfWork over conn.
func NewUnitOfWork(conn Connection) *UnitOfWork {
	return &UnitOfWork{conn: conn}
}

// Begin opens a transaction or joins the one already in ctx.
func (u *UnitOfWork) Begin(ctx context.Context) (context.Context, error) {
	if s, ok := scopeFrom(ctx); ok {
		return context.WithValue(ctx, txScopeKey{}, txScope{tx: s.tx}), nil
	}
	tx, err := u.conn.BeginTx(ctx)
	if err != nil {
		return nil, Translate(err, "begin transaction")
	}
	return context.WithValue(ctx, txScopeKey{}, txScope{tx: tx, owner: true}), nil
}

// Commit finishes the transaction when ctx owns it.
func (u *UnitOfWork) Commit(ctx context.Context) error {
	s, ok := scopeFrom(ctx)
	if !ok {
		return errNoTransaction
	}
	if !s.owner {
		return nil
	}
	return Translate(s.tx.Commit(ctx), "commit")
}

// Rollback discards the transaction when ctx owns it.
func (u *UnitOfWork) Rollback(ctx context.Context) error {
	s, ok := scopeFrom(ctx)
	if !ok {
		return errNoTransaction
	}
	if !s.owner {
		return nil
	}
	return s.tx.Rollback(ctx)
}
