package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config selects and tunes a connection.
type Config struct {
	// Driver is postgres, sqlite, or empty/"auto" to infer it from URL.
	Driver Driver
	// URL is the PostgreSQL connection string.
	URL string
	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string

	// Pool sizing, PostgreSQL only. Zero keeps the pgx defaults.
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type opener func(ctx context.Context, cfg Config) (Connection, error)

// Backends register themselves from the postgres and sqlite subpackages;
// a binary links only the drivers it imports.
var openers = map[Driver]opener{}

// RegisterPostgresDriver registers the PostgreSQL connection factory.
func RegisterPostgresDriver(fn func(ctx context.Context, cfg Config) (Connection, error)) {
	openers[DriverPostgres] = fn
}

// RegisterSQLiteDriver registers the SQLite connection factory.
func RegisterSQLiteDriver(fn func(ctx context.Context, cfg Config) (Connection, error)) {
	openers[DriverSQLite] = fn
}

// NewConnection opens a connection to the backend cfg resolves to.
func NewConnection(ctx context.Context, cfg Config) (Connection, error) {
	driver, err := ResolveDriver(cfg)
	if err != nil {
		return nil, err
	}
	open, ok := openers[driver]
	if !ok {
		return nil, fmt.Errorf("%s driver not registered", driver)
	}
	cfg.Driver = driver
	return open(ctx, cfg)
}

// EnsureDirectory creates the parent directory of a database file.
func EnsureDirectory(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
