package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveDriver(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want Driver
	}{
		{"explicit postgres ignores URL", Config{Driver: DriverPostgres}, DriverPostgres},
		{"explicit sqlite", Config{Driver: DriverSQLite, URL: "postgres://db"}, DriverSQLite},
		{"no URL means local file", Config{}, DriverSQLite},
		{"postgres scheme", Config{Driver: "auto", URL: "postgres://u:p@localhost:5432/keystone"}, DriverPostgres},
		{"postgresql scheme", Config{URL: "postgresql://localhost/keystone"}, DriverPostgres},
		{"file scheme", Config{URL: "file:/var/lib/keystone.db"}, DriverSQLite},
		{"sqlite suffix", Config{URL: "/tmp/keystone.sqlite"}, DriverSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDriver(tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveDriver_Rejects(t *testing.T) {
	_, err := ResolveDriver(Config{Driver: "oracle"})
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = ResolveDriver(Config{URL: "mysql://admin:hunter2@db/keystone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql://***@db/keystone")
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestNewConnection_UnregisteredDriver(t *testing.T) {
	saved := openers
	openers = map[Driver]opener{}
	t.Cleanup(func() { openers = saved })

	_, err := NewConnection(t.Context(), Config{Driver: DriverPostgres})
	assert.ErrorContains(t, err, "postgres driver not registered")
}
