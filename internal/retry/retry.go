// Package retry runs remote calls under a bounded exponential backoff policy.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Policy retries a call up to Retries additional times after the first
// attempt. The n-th wait is BaseDelay * 2^(n-1), capped at MaxDelay when set.
type Policy struct {
	Retries   int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Clock     clockwork.Clock

	// OnRetry is called before each wait with the failed attempt number.
	OnRetry func(attempt int, wait time.Duration, err error)
}

// Attempts returns the total number of calls the policy allows.
func (p Policy) Attempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// Delay returns the wait after the given failed attempt (1-based).
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && (d > p.MaxDelay || d <= 0) {
		return p.MaxDelay
	}
	return d
}

// MaxTotalDelay is the sum of every wait when all attempts fail.
func (p Policy) MaxTotalDelay() time.Duration {
	var total time.Duration
	for i := 1; i < p.Attempts(); i++ {
		total += p.Delay(i)
	}
	return total
}

// Do calls fn until it succeeds, attempts run out, or ctx is done. The
// returned error wraps the last failure.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	attempts := p.Attempts()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = fn(ctx, attempt); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}

		wait := p.Delay(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, wait, err)
		}
		if !sleep(ctx, clock, wait) {
			return fmt.Errorf("retry aborted after %d attempts: %w", attempt, ctx.Err())
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}

func sleep(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
