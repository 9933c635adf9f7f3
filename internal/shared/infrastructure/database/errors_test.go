package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/felixgeelhaar/keystone/internal/shared/domain"
)

type fakeSQLiteError struct {
	code int
	msg  string
}

func (e *fakeSQLiteError) Error() string { return e.msg }
func (e *fakeSQLiteError) Code() int     { return e.code }

func TestIsNoRows(t *testing.T) {
	assert.True(t, IsNoRows(pgx.ErrNoRows))
	assert.True(t, IsNoRows(sql.ErrNoRows))
	assert.True(t, IsNoRows(fmt.Errorf("wrapped: %w", ErrNoRows)))
	assert.False(t, IsNoRows(nil))
	assert.False(t, IsNoRows(errors.New("boom")))
}

func TestIsUniqueViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"postgres unique", &pgconn.PgError{Code: "23505"}, true},
		{"postgres other", &pgconn.PgError{Code: "23503"}, false},
		{"sqlite extended unique", &fakeSQLiteError{code: 2067, msg: "constraint failed: UNIQUE constraint failed: users.email"}, true},
		{"sqlite primary key", &fakeSQLiteError{code: 1555, msg: "constraint failed: PRIMARY KEY constraint failed"}, true},
		{"sqlite not null", &fakeSQLiteError{code: 1299, msg: "NOT NULL constraint failed: users.email"}, false},
		{"plain", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsUniqueViolation(tt.err))
		})
	}
}

func TestIsForeignKeyViolation(t *testing.T) {
	assert.True(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23503"}))
	assert.False(t, IsForeignKeyViolation(&pgconn.PgError{Code: "23505"}))
	assert.True(t, IsForeignKeyViolation(&fakeSQLiteError{code: 787, msg: "constraint failed: FOREIGN KEY constraint failed"}))
	assert.False(t, IsForeignKeyViolation(nil))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"serialization failure", &pgconn.PgError{Code: "40001"}, true},
		{"deadlock", fmt.Errorf("exec: %w", &pgconn.PgError{Code: "40P01"}), true},
		{"lock not available", &pgconn.PgError{Code: "55P03"}, true},
		{"unique violation", &pgconn.PgError{Code: "23505"}, false},
		{"sqlite busy", &fakeSQLiteError{code: 5, msg: "database is locked"}, true},
		{"sqlite locked", &fakeSQLiteError{code: 262, msg: "database table is locked"}, true},
		{"sqlite constraint", &fakeSQLiteError{code: 19, msg: "constraint"}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestTranslate(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Translate(nil, "op"))
	})

	t.Run("retryable becomes transient", func(t *testing.T) {
		err := Translate(&pgconn.PgError{Code: "40001"}, "save subscription")
		assert.ErrorIs(t, err, domain.ErrTransient)
		assert.True(t, domain.IsRetryable(err))
		assert.Contains(t, err.Error(), "save subscription")
	})

	t.Run("unique violation becomes conflict", func(t *testing.T) {
		err := Translate(&pgconn.PgError{Code: "23505"}, "insert user")
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.False(t, domain.IsRetryable(err))
	})

	t.Run("context errors pass through", func(t *testing.T) {
		err := Translate(context.Canceled, "op")
		assert.Equal(t, context.Canceled, err)
	})

	t.Run("other errors are wrapped", func(t *testing.T) {
		base := errors.New("boom")
		err := Translate(base, "op")
		assert.ErrorIs(t, err, base)
		assert.NotErrorIs(t, err, domain.ErrTransient)
	})
}
