package database

import (
	"fmt"
	"strings"
)

// Driver names a supported backend.
type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

func (d Driver) String() string {
	return string(d)
}

// ResolveDriver picks the backend for cfg. An explicit driver wins; "auto"
// or empty infers it from the URL, and no URL means the local SQLite file.
func ResolveDriver(cfg Config) (Driver, error) {
	switch cfg.Driver {
	case DriverPostgres, DriverSQLite:
		return cfg.Driver, nil
	case "", "auto":
	default:
		return "", fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	switch url := strings.ToLower(cfg.URL); {
	case url == "":
		return DriverSQLite, nil
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return DriverPostgres, nil
	case strings.HasPrefix(url, "file:"), strings.HasSuffix(url, ".db"), strings.HasSuffix(url, ".sqlite"):
		return DriverSQLite, nil
	}
	return "", fmt.Errorf("cannot infer database driver from URL %q", redactURL(cfg.URL))
}

// redactURL drops credentials so the URL can appear in errors and logs.
func redactURL(url string) string {
	scheme, rest, ok := strings.Cut(url, "://")
	if !ok {
		return url
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		rest = "***@" + rest[at+1:]
	}
	return scheme + "://" + rest
}
