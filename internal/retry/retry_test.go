package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPolicy_Delay(t *testing.T) {
	p := Policy{Retries: 3, BaseDelay: 2 * time.Second}
	assert.Equal(t, 4, p.Attempts())
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, 14*time.Second, p.MaxTotalDelay())

	capped := Policy{Retries: 5, BaseDelay: time.Second, MaxDelay: 3 * time.Second}
	assert.Equal(t, 3*time.Second, capped.Delay(4))
}

func TestPolicy_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Policy{Retries: 3, BaseDelay: time.Hour}.Do(context.Background(), func(context.Context, int) error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_BackoffOnFakeClock(t *testing.T) {
	clock := clockwork.NewFakeClock()
	boom := errors.New("boom")

	attempts := make(chan int, 10)
	p := Policy{Retries: 3, BaseDelay: 2 * time.Second, Clock: clock}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), func(_ context.Context, attempt int) error {
			attempts <- attempt
			return boom
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, wait := range []time.Duration{2 * time.Second, 4 * time.Second, 8 * time.Second} {
		<-attempts
		require.NoError(t, clock.BlockUntilContext(ctx, 1))

		// Just short of the wait nothing happens.
		clock.Advance(wait - time.Millisecond)
		select {
		case a := <-attempts:
			t.Fatalf("attempt %d fired before %v elapsed", a, wait)
		case <-time.After(20 * time.Millisecond):
		}
		clock.Advance(time.Millisecond)
	}

	assert.Equal(t, 4, <-attempts)
	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestPolicy_RecoversOnRetry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	var retried []int

	p := Policy{
		Retries:   3,
		BaseDelay: time.Second,
		Clock:     clock,
		OnRetry:   func(attempt int, _ time.Duration, _ error) { retried = append(retried, attempt) },
	}

	done := make(chan error, 1)
	go func() {
		done <- p.Do(context.Background(), func(_ context.Context, attempt int) error {
			if attempt < 2 {
				return errors.New("transient")
			}
			return nil
		})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)

	require.NoError(t, <-done)
	assert.Equal(t, []int{1}, retried)
}

func TestPolicy_ContextCancelAbortsWait(t *testing.T) {
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		done <- Policy{Retries: 3, BaseDelay: time.Minute, Clock: clock}.Do(ctx, func(context.Context, int) error {
			return errors.New("down")
		})
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	err := <-done
	assert.ErrorIs(t, err, context.Canceled)
}
