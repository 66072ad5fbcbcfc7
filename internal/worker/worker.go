package worker

import (
	"context"
	"sync"
)

type ProcessFunc[J any] func(ctx context.Context, job J) error

// WorkerPool runs jobs of type J on a fixed number of goroutines. Stop closes
// the queue and waits for queued and in-flight jobs to finish.
type WorkerPool[J any] struct {
	numWorkers int
	jobs       chan J
	processor  ProcessFunc[J]
	onError    func(job J, err error)
	wg         sync.WaitGroup
}

func NewWorkerPool[J any](numWorkers int, bufferSize int, processor ProcessFunc[J]) *WorkerPool[J] {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &WorkerPool[J]{
		numWorkers: numWorkers,
		jobs:       make(chan J, bufferSize),
		processor:  processor,
	}
}

// OnError registers a callback for jobs whose processor returned an error.
// Must be called before Start.
func (wp *WorkerPool[J]) OnError(fn func(job J, err error)) {
	wp.onError = fn
}

func (wp *WorkerPool[J]) Start(ctx context.Context) {
	for i := 1; i <= wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool[J]) worker(ctx context.Context, id int) {
	defer wp.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-wp.jobs:
			if !ok {
				return
			}
			if err := wp.processor(ctx, job); err != nil && wp.onError != nil {
				wp.onError(job, err)
			}
		}
	}
}

func (wp *WorkerPool[J]) Submit(job J) {
	wp.jobs <- job
}

func (wp *WorkerPool[J]) Stop() {
	close(wp.jobs)
	wp.wg.Wait()
}

// Run processes every job on a pool of numWorkers and returns once all of
// them have been handled.
func Run[J any](ctx context.Context, numWorkers int, jobs []J, processor ProcessFunc[J]) {
	pool := NewWorkerPool(min(numWorkers, max(len(jobs), 1)), len(jobs), processor)
	pool.Start(ctx)
	for _, j := range jobs {
		pool.Submit(j)
	}
	pool.Stop()
}
