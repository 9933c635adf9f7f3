package database

import (
	"context"
	"database/sql"
)

// Row is a single result row, satisfied by pgx.Row and *sql.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows is a result cursor.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close() error
	Err() error
}

// Result reports what an Exec changed.
type Result interface {
	RowsAffected() (int64, error)
	LastInsertId() (int64, error)
}

// Executor runs statements. Repositories only ever see this interface, so
// they behave the same inside and outside a unit of work.
type Executor interface {
	Exec(ctx context.Context, query string, args ...any) (Result, error)
	QueryRow(ctx context.Context, query string, args ...any) Row
	Query(ctx context.Context, query string, args ...any) (Rows, error)
}

// Transaction is an Executor that must be finished exactly once.
type Transaction interface {
	Executor
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Connection is a pooled handle to one of the supported backends.
type Connection interface {
	Executor
	BeginTx(ctx context.Context) (Transaction, error)
	Close() error
	Ping(ctx context.Context) error
	Driver() Driver
}

// sqlRunner is the subset shared by *sql.DB and *sql.Tx.
type sqlRunner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLExecutor adapts a database/sql handle or transaction to Executor.
type SQLExecutor struct {
	runner sqlRunner
}

// NewSQLExecutor wraps r, which is usually a *sql.DB or *sql.Tx.
func NewSQLExecutor(r sqlRunner) SQLExecutor {
	return SQLExecutor{runner: r}
}

// Exec implements Executor.
func (e SQLExecutor) Exec(ctx context.Context, query string, args ...any) (Result, error) {
	return e.runner.ExecContext(ctx, query, args...)
}

// QueryRow implements Executor.
func (e SQLExecutor) QueryRow(ctx context.Context, query string, args ...any) Row {
	return e.runner.QueryRowContext(ctx, query, args...)
}

// Query implements Executor.
func (e SQLExecutor) Query(ctx context.Context, query string, args ...any) (Rows, error) {
	rows, err := e.runner.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
