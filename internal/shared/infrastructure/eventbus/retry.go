package eventbus

import (
	"errors"
	"time"

	"github.com/felixgeelhaar/keystone/internal/shared/domain"
)

// Backoff selects how the delay grows between retries.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy bounds in-process redelivery of a single message.
type RetryPolicy struct {
	// Limit is the number of retries after the first attempt.
	Limit       int
	Interval    time.Duration
	Backoff     Backoff
	MaxInterval time.Duration
	// AttemptTimeout bounds each handler invocation. Zero disables it.
	AttemptTimeout time.Duration
}

// DefaultRetryPolicy retries three times, one second apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Limit:       3,
		Interval:    time.Second,
		Backoff:     BackoffFixed,
		MaxInterval: 30 * time.Second,
	}
}

// Delay returns the wait before the given retry (1-based).
func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		retry = 1
	}
	if p.Backoff != BackoffExponential {
		return p.Interval
	}

	max := p.MaxInterval
	if max <= 0 {
		max = 30 * time.Second
	}
	delay := p.Interval
	for i := 1; i < retry; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	return delay
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	return errors.Is(err, domain.ErrInvalid) || errors.Is(err, ErrUndecodable)
}
