// Command api serves the keystone HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/keystone/adapter/api"
	"github.com/felixgeelhaar/keystone/internal/app"
	"github.com/felixgeelhaar/keystone/pkg/config"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}
	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, "keystone-api", cfg.LogLevel, cfg.LogFormat))
	if !cfg.IsDevelopment() {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = serve(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("api failed", "error", err)
		os.Exit(1)
	}
	logger.Info("api stopped")
}

// serve blocks until ctx ends or the listener fails, then drains requests.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize container: %w", err)
	}
	defer container.Close()

	serverCfg := api.DefaultServerConfig()
	serverCfg.Addr = cfg.APIAddr
	server := api.NewServer(serverCfg, api.NewHandlers(container), logger)

	listenErr := make(chan error, 1)
	go func() { listenErr <- server.Start() }()

	var failure error
	select {
	case <-ctx.Done():
	case err := <-listenErr:
		if !errors.Is(err, http.ErrServerClosed) {
			failure = err
		}
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(drainCtx); err != nil {
		logger.Warn("api shutdown", "error", err)
	}
	return failure
}
