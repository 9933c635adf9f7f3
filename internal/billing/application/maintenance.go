package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.uber.org/multierr"

	"github.com/felixgeelhaar/keystone/internal/billing/domain"
	"github.com/felixgeelhaar/keystone/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// MaintenanceConfig configures the periodic maintenance job.
type MaintenanceConfig struct {
	SweepBatchSize  int
	LedgerRetention time.Duration
	OutboxRetention time.Duration
}

// MaintenanceResult reports what one maintenance run did.
type MaintenanceResult struct {
	Sweep         SweepAllResult
	LedgerPurged  int64
	OutboxDeleted int64
}

// Maintenance runs the periodic expiry sweep and retention cleanup.
type Maintenance struct {
	sweeper *Sweeper
	ledger  domain.PaymentLedger
	outbox  outbox.Repository
	config  MaintenanceConfig
	logger  *slog.Logger
	metrics observability.Metrics
}

// NewMaintenance creates a new Maintenance job.
func NewMaintenance(
	sweeper *Sweeper,
	ledger domain.PaymentLedger,
	outboxRepo outbox.Repository,
	config MaintenanceConfig,
	logger *slog.Logger,
	metrics observability.Metrics,
) *Maintenance {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	return &Maintenance{
		sweeper: sweeper,
		ledger:  ledger,
		outbox:  outboxRepo,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

// Run performs one maintenance pass. Every step runs even when an earlier
// one fails; the errors are combined.
func (m *Maintenance) Run(ctx context.Context, now time.Time) (MaintenanceResult, error) {
	var result MaintenanceResult
	var errs error

	sweep, err := m.sweeper.SweepAll(ctx, now, m.config.SweepBatchSize)
	result.Sweep = sweep
	errs = multierr.Append(errs, err)

	if m.config.LedgerRetention > 0 {
		purged, err := m.ledger.Purge(ctx, now.Add(-m.config.LedgerRetention))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("purge payment ledger: %w", err))
		}
		result.LedgerPurged = purged
		m.metrics.Counter(observability.MetricLedgerPurged, purged)
	}

	if m.outbox != nil && m.config.OutboxRetention > 0 {
		deleted, err := m.outbox.DeleteOld(ctx, now.Add(-m.config.OutboxRetention))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("clean outbox: %w", err))
		}
		result.OutboxDeleted = deleted
	}

	m.logger.InfoContext(ctx, "maintenance completed",
		"users_swept", result.Sweep.Users,
		"subscriptions_expired", result.Sweep.Expired,
		"sweep_failures", result.Sweep.Failed,
		"ledger_purged", result.LedgerPurged,
		"outbox_deleted", result.OutboxDeleted,
	)
	return result, errs
}

// RunEvery runs maintenance immediately and then on every tick until ctx is done.
func (m *Maintenance) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := m.Run(ctx, time.Now().UTC()); err != nil && ctx.Err() == nil {
			m.logger.ErrorContext(ctx, "maintenance failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
