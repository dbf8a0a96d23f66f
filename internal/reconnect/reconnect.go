// Package reconnect retries dropped real-time connections with a linear
// backoff.
package reconnect

import (
	"context"
	"errors"
	"time"

	"github.com/sethvargo/go-retry"
)

// ErrStop aborts a reconnect loop without further attempts.
var ErrStop = errors.New("reconnect stopped")

// Policy waits Step × n before attempt n, up to MaxAttempts attempts.
type Policy struct {
	MaxAttempts int
	Step        time.Duration
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: 5, Step: 3 * time.Second}
}

func (p Policy) Enabled() bool {
	return p.MaxAttempts > 0 && p.Step > 0
}

// Delay returns the wait before the given 1-based attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.Step * time.Duration(attempt)
}

func (p Policy) backoff() retry.Backoff {
	attempt := 1
	next := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return p.Delay(attempt), false
	})
	return retry.WithMaxRetries(uint64(p.MaxAttempts-1), next)
}

// Run calls fn until it succeeds, returns an error wrapping ErrStop, the
// attempts run out, or ctx is done. fn receives the 1-based attempt number.
func Run(ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) error) error {
	if !p.Enabled() {
		return ErrStop
	}

	select {
	case <-time.After(p.Delay(1)):
	case <-ctx.Done():
		return ctx.Err()
	}

	attempt := 0
	return retry.Do(ctx, p.backoff(), func(ctx context.Context) error {
		attempt++
		err := fn(ctx, attempt)
		if err == nil || errors.Is(err, ErrStop) {
			return err
		}
		return retry.RetryableError(err)
	})
}
