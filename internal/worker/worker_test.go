package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestWorkerPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(2, 10, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		pool.Submit(i)
	}

	// Stop drains the queue before returning.
	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(4, 100, processor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pool.Start(ctx)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			pool.Submit(n)
		}(i)
	}
	wg.Wait()
	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestWorkerPool_GracefulShutdown(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		time.Sleep(10 * time.Millisecond) // Simulate work
		processed.Add(1)
		return nil
	}

	pool := NewWorkerPool(2, 50, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		pool.Submit(i)
	}

	cancel()

	// Stop should wait for in-flight jobs
	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	t.Logf("processed %d jobs before shutdown", processed.Load())
}

func TestWorkerPool_OnError(t *testing.T) {
	var mu sync.Mutex
	var failed []int

	pool := NewWorkerPool(3, 10, func(ctx context.Context, job int) error {
		if job%2 == 1 {
			return errors.New("odd")
		}
		return nil
	})
	pool.OnError(func(job int, err error) {
		mu.Lock()
		failed = append(failed, job)
		mu.Unlock()
	})

	pool.Start(context.Background())
	for i := 0; i < 6; i++ {
		pool.Submit(i)
	}
	pool.Stop()

	if len(failed) != 3 {
		t.Errorf("expected 3 failed jobs, got %v", failed)
	}
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int64
	var processed atomic.Int64

	jobs := make([]string, 12)
	Run(context.Background(), 3, jobs, func(ctx context.Context, _ string) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		processed.Add(1)
		return nil
	})

	if processed.Load() != 12 {
		t.Errorf("expected 12 jobs processed, got %d", processed.Load())
	}
	if peak.Load() > 3 {
		t.Errorf("expected at most 3 concurrent jobs, got %d", peak.Load())
	}
}

func TestRun_NoJobs(t *testing.T) {
	Run(context.Background(), 4, nil, func(ctx context.Context, _ int) error {
		t.Error("processor must not run")
		return nil
	})
}
