// Package retry retries transient provider failures with exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"time"

	"github.com/hyperjump/tutor/internal/apperr"
)

// Policy configures retry behavior.
type Policy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Jitter      bool
}

// DefaultPolicy provides sensible retry defaults.
var DefaultPolicy = Policy{
	MaxAttempts: 3,
	InitialWait: 500 * time.Millisecond,
	MaxWait:     10 * time.Second,
	Jitter:      true,
}

// NoRetry runs the operation exactly once.
var NoRetry = Policy{MaxAttempts: 1}

// Do calls f until it succeeds, returns a non-retryable error, or MaxAttempts is reached.
// Only errors for which apperr.IsRetryable holds are retried; auth, validation and
// configuration errors return immediately. A rate-limit RetryAfter hint replaces the
// computed wait when longer. The last error is returned.
func Do(ctx context.Context, p Policy, f func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.InitialWait

	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if err = f(ctx); err == nil {
			return nil
		}
		if !apperr.IsRetryable(err) || attempt == attempts-1 {
			return err
		}

		sleepDur := wait
		if p.Jitter {
			sleepDur = time.Duration(float64(wait) * (0.5 + rand.Float64()))
		}
		if hint := apperr.RetryAfterOf(err); hint > sleepDur {
			sleepDur = hint
		}
		if p.MaxWait > 0 && sleepDur > p.MaxWait {
			sleepDur = p.MaxWait
		}

		timer := time.NewTimer(sleepDur)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		wait *= 2
		if p.MaxWait > 0 && wait > p.MaxWait {
			wait = p.MaxWait
		}
	}
	return err
}
