package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"

	billingDomain "github.com/felixgeelhaar/keystone/internal/billing/domain"
	sharedDomain "github.com/felixgeelhaar/keystone/internal/shared/domain"
	"github.com/felixgeelhaar/keystone/pkg/observability"
)

// ErrIdentityUnavailable is returned while the breaker is open.
var ErrIdentityUnavailable = sharedDomain.NewError(sharedDomain.ErrTransient, "identity provider unavailable")

// BreakerConfig configures the identity circuit breaker.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures that opens the circuit.
	MaxFailures uint32
	// Timeout is how long the circuit stays open before probing.
	Timeout time.Duration
	// Interval clears the failure counts while closed. Zero never clears.
	Interval time.Duration
	// MaxRequests is the number of probes allowed while half-open.
	MaxRequests uint32
}

// BreakerProvider guards an IdentityProvider with a circuit breaker. Domain
// errors such as not-found do not count as failures.
type BreakerProvider struct {
	next    billingDomain.IdentityProvider
	breaker *gobreaker.CircuitBreaker[any]
}

// NewBreakerProvider wraps next.
func NewBreakerProvider(next billingDomain.IdentityProvider, cfg BreakerConfig, logger *slog.Logger, metrics observability.Metrics) *BreakerProvider {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NoopMetrics{}
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 5
	}
	if cfg.MaxRequests == 0 {
		cfg.MaxRequests = 1
	}

	settings := gobreaker.Settings{
		Name:        "identity",
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		IsSuccessful: countsAsSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
			metrics.Gauge(observability.MetricIdentityBreakerState, float64(to), observability.T("breaker", name))
		},
	}

	return &BreakerProvider{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
	}
}

// State returns the breaker state name.
func (b *BreakerProvider) State() string {
	return b.breaker.State().String()
}

func (b *BreakerProvider) GetRoles(ctx context.Context, userID uuid.UUID) ([]string, error) {
	v, err := b.execute("get roles", func() (any, error) { return b.next.GetRoles(ctx, userID) })
	if err != nil {
		return nil, err
	}
	return v.([]string), nil
}

func (b *BreakerProvider) AddRole(ctx context.Context, userID uuid.UUID, role string) error {
	_, err := b.execute("add role", func() (any, error) { return nil, b.next.AddRole(ctx, userID, role) })
	return err
}

func (b *BreakerProvider) RemoveRoles(ctx context.Context, userID uuid.UUID, roles []string) error {
	_, err := b.execute("remove roles", func() (any, error) { return nil, b.next.RemoveRoles(ctx, userID, roles) })
	return err
}

func (b *BreakerProvider) FindUser(ctx context.Context, userID uuid.UUID) (*billingDomain.UserRef, error) {
	v, err := b.execute("find user", func() (any, error) { return b.next.FindUser(ctx, userID) })
	if err != nil {
		return nil, err
	}
	return v.(*billingDomain.UserRef), nil
}

func (b *BreakerProvider) FindUserByEmail(ctx context.Context, email string) (*billingDomain.UserRef, error) {
	v, err := b.execute("find user by email", func() (any, error) { return b.next.FindUserByEmail(ctx, email) })
	if err != nil {
		return nil, err
	}
	return v.(*billingDomain.UserRef), nil
}

func (b *BreakerProvider) execute(op string, fn func() (any, error)) (any, error) {
	v, err := b.breaker.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", op, ErrIdentityUnavailable)
	}
	return v, err
}

// countsAsSuccess keeps caller mistakes and cancellations from tripping the
// breaker.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	for _, kind := range []error{
		sharedDomain.ErrNotFound,
		sharedDomain.ErrInvalid,
		sharedDomain.ErrConflict,
		context.Canceled,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

var _ billingDomain.IdentityProvider = (*BreakerProvider)(nil)
