package observability

import (
	"context"
	"log/slog"
	"time"
)

// Span times one operation such as a payment or a sweep pass and reports it
// once through End.
type Span struct {
	ctx     context.Context
	name    string
	start   time.Time
	logger  *slog.Logger
	metrics Metrics
	tags    []Tag
}

// StartSpan starts timing name. logger and metrics may be nil.
func StartSpan(ctx context.Context, name string, logger *slog.Logger, metrics Metrics, tags ...Tag) *Span {
	if metrics == nil {
		metrics = NoopMetrics{}
	}
	return &Span{
		ctx:     ctx,
		name:    name,
		start:   time.Now(),
		logger:  logger,
		metrics: metrics,
		tags:    append(tags, T("operation", name)),
	}
}

// End records the duration and outcome and returns the duration.
func (s *Span) End(err error) time.Duration {
	elapsed := time.Since(s.start)

	s.metrics.Timing(MetricOperationDuration, elapsed, s.tags...)
	s.metrics.Counter(MetricOperationTotal, 1, s.tags...)
	if err != nil {
		s.metrics.Counter(MetricOperationErrors, 1, s.tags...)
	}

	if s.logger != nil {
		if err != nil {
			s.logger.WarnContext(s.ctx, "operation failed", "operation", s.name, "duration_ms", elapsed.Milliseconds(), "error", err)
		} else {
			s.logger.DebugContext(s.ctx, "operation completed", "operation", s.name, "duration_ms", elapsed.Milliseconds())
		}
	}
	return elapsed
}
