package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/keystone/adapter/cli"
	cliAuth "github.com/felixgeelhaar/keystone/adapter/cli/auth"
	cliBilling "github.com/felixgeelhaar/keystone/adapter/cli/billing"
	cliCatalog "github.com/felixgeelhaar/keystone/adapter/cli/catalog"
	"github.com/felixgeelhaar/keystone/internal/app"
	"github.com/felixgeelhaar/keystone/pkg/config"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}

	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, "keystone-cli", cfg.LogLevel, cfg.LogFormat))
	cli.SetLogger(logger)

	code := run(ctx, cfg, logger)
	cancel()
	os.Exit(code)
}

// run keeps deferred cleanup ahead of os.Exit. Outside development a
// container failure is fatal; in development commands that need no
// database, such as version, still work.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) int {
	container, err := app.NewContainer(ctx, cfg, logger)
	switch {
	case err == nil:
		defer container.Close()
		cli.SetApp(cli.NewApp(container))
	case cfg.IsDevelopment():
		logger.Warn("container unavailable, database commands disabled", "error", err)
	default:
		logger.Error("failed to initialize container", "error", err)
		return 1
	}

	cli.AddCommand(cliCatalog.Cmd)
	cli.AddCommand(cliBilling.Cmd)
	cli.AddCommand(cliAuth.Cmd)

	if err := cli.Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
