// Command worker consumes payment events, relays the outbox and runs the
// periodic expiry sweep.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/keystone/internal/app"
	"github.com/felixgeelhaar/keystone/pkg/config"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "invalid configuration:", err)
		os.Exit(2)
	}
	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, "keystone-worker", cfg.LogLevel, cfg.LogFormat))
	if !cfg.IsDevelopment() {
		if err := cfg.Validate(); err != nil {
			logger.Error("invalid configuration", "error", err)
			os.Exit(2)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Error("worker failed", "error", err)
		os.Exit(1)
	}
	logger.Info("worker stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("starting keystone worker", "version", cfg.AppVersion)
	container, err := app.NewContainer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initialize container: %w", err)
	}
	defer container.Close()

	consumer, err := container.NewPaymentConsumer()
	if err != nil {
		return fmt.Errorf("connect payment consumer: %w", err)
	}
	defer consumer.Close()

	// A consumer that stops on its own ends the worker so the supervisor
	// restarts it with a fresh connection.
	consumerErr := make(chan error, 1)
	go func() {
		if err := consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			consumerErr <- err
			cancel()
		}
	}()

	if cfg.OutboxProcessorEnabled {
		if err := container.OutboxProcessor.Start(ctx); err != nil {
			return fmt.Errorf("start outbox processor: %w", err)
		}
		defer container.OutboxProcessor.Stop()
		container.Health.Register("outbox", observability.LagProbe(func() time.Duration {
			return container.OutboxProcessor.GetStats().Lag()
		}, cfg.OutboxLagThreshold), false)
	} else {
		logger.Info("outbox processor disabled")
	}

	go container.Maintenance.RunEvery(ctx, cfg.SweepInterval)

	if cfg.WorkerHealthAddr != "" {
		serveOps(ctx, cfg.WorkerHealthAddr, container, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down worker")
	select {
	case err := <-consumerErr:
		return fmt.Errorf("payment consumer stopped: %w", err)
	default:
		return nil
	}
}

// serveOps exposes health, metrics and outbox stats until ctx ends.
func serveOps(ctx context.Context, addr string, container *app.Container, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", container.Health.Handler())
	mux.Handle("GET /metrics", container.Metrics.Handler())
	mux.HandleFunc("GET /outbox", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(container.OutboxProcessor.GetStats())
	})

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Info("ops server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("ops server failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("ops server shutdown", "error", err)
		}
	}()
}
