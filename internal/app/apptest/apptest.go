// Package apptest builds local containers for adapter tests.
package apptest

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	internalApp "github.com/felixgeelhaar/keystone/internal/app"
	catalogCommands "github.com/felixgeelhaar/keystone/internal/catalog/application/commands"
	identityDomain "github.com/felixgeelhaar/keystone/internal/identity/domain"
	"github.com/felixgeelhaar/keystone/internal/identity/infrastructure/auth"
	"github.com/felixgeelhaar/keystone/pkg/config"
)

// Password is the password of users created by SeedUser.
const Password = "correct-horse"

// Config returns a local-mode configuration backed by a temporary SQLite file.
func Config(t testing.TB) *config.Config {
	t.Helper()
	return &config.Config{
		AppEnv:                     "test",
		LocalMode:                  true,
		DatabaseDriver:             "sqlite",
		SQLitePath:                 filepath.Join(t.TempDir(), "keystone.db"),
		CatalogCacheTTL:            time.Minute,
		PaymentRetryLimit:          1,
		PaymentRetryInterval:       time.Millisecond,
		PaymentRetryBackoff:        "fixed",
		PaymentHandlerTimeout:      10 * time.Second,
		LedgerRetention:            720 * time.Hour,
		SweepBatchSize:             10,
		OutboxPollInterval:         10 * time.Millisecond,
		OutboxBatchSize:            50,
		OutboxMaxRetries:           3,
		OutboxRetention:            24 * time.Hour,
		TokenSecret:                "token-secret",
		JWTSecret:                  "jwt-secret",
		JWTIssuer:                  "keystone",
		JWTTTL:                     time.Hour,
		ResetTokenTTL:              30 * time.Minute,
		IdentityBreakerMaxFailures: 5,
		IdentityBreakerTimeout:     time.Second,
	}
}

// NewContainer builds a migrated local container that is closed when the
// test ends.
func NewContainer(t testing.TB) *internalApp.Container {
	t.Helper()
	c, err := internalApp.NewContainer(context.Background(), Config(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// SeedPackage creates an active package.
func SeedPackage(t testing.TB, c *internalApp.Container, name, role string, days int) uuid.UUID {
	t.Helper()
	res, err := c.CreatePackageHandler.Handle(context.Background(), catalogCommands.CreatePackageCommand{
		Name:           name,
		Price:          decimal.RequireFromString("49.99"),
		DurationDays:   days,
		AssociatedRole: role,
	})
	require.NoError(t, err)
	return res.PackageID
}

// SeedUser stores a verified user whose password is Password.
func SeedUser(t testing.TB, c *internalApp.Container, email string) uuid.UUID {
	t.Helper()
	addr, err := identityDomain.NewEmail(email)
	require.NoError(t, err)
	first, _ := identityDomain.NewName("Test")
	last, _ := identityDomain.NewName("User")
	hash, err := auth.NewBcryptHasher(4).Hash(Password)
	require.NoError(t, err)

	user, err := identityDomain.NewUser(addr, identityDomain.Profile{FirstName: first, LastName: last}, hash, time.Now())
	require.NoError(t, err)
	require.NoError(t, c.UserRepo.Save(context.Background(), user))
	return user.ID()
}
