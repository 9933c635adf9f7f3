// Package migrations applies the embedded schema for each supported dialect.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/database"
)

//go:embed postgres/*.sql sqlite/*.sql
var migrationsFS embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

type sqlDBProvider interface {
	DB() *sql.DB
}

type poolProvider interface {
	Pool() *pgxpool.Pool
}

// Up applies all pending migrations for the connection's dialect.
func Up(ctx context.Context, conn database.Connection) error {
	return withGoose(conn, func(db *sql.DB, dir string) error {
		if err := goose.UpContext(ctx, db, dir); err != nil {
			return fmt.Errorf("goose up: %w", err)
		}
		return nil
	})
}

// Down rolls back the most recent migration.
func Down(ctx context.Context, conn database.Connection) error {
	return withGoose(conn, func(db *sql.DB, dir string) error {
		if err := goose.DownContext(ctx, db, dir); err != nil {
			return fmt.Errorf("goose down: %w", err)
		}
		return nil
	})
}

// Version returns the currently applied schema version.
func Version(ctx context.Context, conn database.Connection) (int64, error) {
	var version int64
	err := withGoose(conn, func(db *sql.DB, _ string) error {
		v, err := goose.GetDBVersionContext(ctx, db)
		if err != nil {
			return fmt.Errorf("get db version: %w", err)
		}
		version = v
		return nil
	})
	return version, err
}

func withGoose(conn database.Connection, fn func(db *sql.DB, dir string) error) error {
	db, dir, closeDB, err := openSQLDB(conn)
	if err != nil {
		return err
	}
	defer closeDB()

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(goose.NopLogger())
	dialect := "postgres"
	if conn.Driver() == database.DriverSQLite {
		dialect = "sqlite3"
	}
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	return fn(db, dir)
}

func openSQLDB(conn database.Connection) (*sql.DB, string, func(), error) {
	switch conn.Driver() {
	case database.DriverSQLite:
		p, ok := conn.(sqlDBProvider)
		if !ok {
			return nil, "", nil, fmt.Errorf("sqlite connection does not expose *sql.DB")
		}
		return p.DB(), "sqlite", func() {}, nil
	case database.DriverPostgres:
		p, ok := conn.(poolProvider)
		if !ok {
			return nil, "", nil, fmt.Errorf("postgres connection does not expose a pool")
		}
		db := stdlib.OpenDBFromPool(p.Pool())
		return db, "postgres", func() { _ = db.Close() }, nil
	default:
		return nil, "", nil, fmt.Errorf("unsupported driver: %s", conn.Driver())
	}
}
