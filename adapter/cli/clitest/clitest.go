// Package clitest installs a local container as the CLI app for command tests.
package clitest

import (
	"testing"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	internalApp "github.com/felixgeelhaar/keystone/internal/app"
	"github.com/felixgeelhaar/keystone/internal/app/apptest"
)

// NewContainer builds a migrated local container, installs it as the CLI
// app and restores a nil app when the test ends.
func NewContainer(t testing.TB) *internalApp.Container {
	t.Helper()
	c := apptest.NewContainer(t)
	cli.SetApp(cli.NewApp(c))
	t.Cleanup(func() { cli.SetApp(nil) })
	return c
}
