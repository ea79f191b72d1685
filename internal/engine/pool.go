package engine

import (
	"context"
	"errors"
	"sync"
)

type job func(ctx context.Context)

// workerPool bounds concurrent visits with a fixed worker set and a
// buffered queue so submission never deadlocks the coordinator. Workers
// drain the queue even after cancellation: an enqueued job always runs,
// and cancellation is observed inside the job via its context. That keeps
// the accepted-job/outcome accounting exact.
type workerPool struct {
	ctx    context.Context
	cancel context.CancelFunc
	jobs   chan job
	wg     sync.WaitGroup
}

func newWorkerPool(parent context.Context, concurrency, queueSize int) (*workerPool, error) {
	if concurrency <= 0 || queueSize <= 0 {
		return nil, errors.New("worker pool requires positive concurrency and queue size")
	}
	ctx, cancel := context.WithCancel(parent)
	pool := &workerPool{
		ctx:    ctx,
		cancel: cancel,
		jobs:   make(chan job, queueSize),
	}
	for i := 0; i < concurrency; i++ {
		pool.wg.Add(1)
		go func() {
			defer pool.wg.Done()
			for fn := range pool.jobs {
				fn(pool.ctx)
			}
		}()
	}
	return pool, nil
}

// submit schedules a job, rejecting if either context cancels first.
func (p *workerPool) submit(ctx context.Context, fn job) error {
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case <-ctx.Done():
		return ctx.Err()
	case p.jobs <- fn:
		return nil
	}
}

// close stops all workers after the queue drains.
func (p *workerPool) close() {
	close(p.jobs)
	p.wg.Wait()
	p.cancel()
}
