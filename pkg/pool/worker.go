package pool

import (
	"context"
	"sync"
	"sync/atomic"
)

// Task represents a unit of work.
type Task func(ctx context.Context) error

// WorkerPool runs tasks on a fixed number of workers. The pool size is the
// concurrency ceiling of a transfer run: each worker processes exactly one
// object at a time, and an object that blocks on network I/O occupies only
// its own slot.
type WorkerPool struct {
	workers     int
	tasks       chan Task
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	activeCount atomic.Int32
	totalTasks  atomic.Int64
	failedTasks atomic.Int64
}

// NewWorkerPool creates a pool with the given number of workers and starts
// them immediately.
func NewWorkerPool(ctx context.Context, workers int) *WorkerPool {
	poolCtx, cancel := context.WithCancel(ctx)

	wp := &WorkerPool{
		workers: workers,
		tasks:   make(chan Task, workers*2),
		ctx:     poolCtx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		wp.wg.Add(1)
		go wp.worker()
	}

	return wp
}

// worker processes tasks from the queue. Task errors are counted, never
// propagated: one object's failure must not cancel its siblings.
func (wp *WorkerPool) worker() {
	defer wp.wg.Done()

	for {
		select {
		case task, ok := <-wp.tasks:
			if !ok {
				return
			}

			wp.activeCount.Add(1)
			wp.totalTasks.Add(1)

			if err := task(wp.ctx); err != nil {
				wp.failedTasks.Add(1)
			}

			wp.activeCount.Add(-1)

		case <-wp.ctx.Done():
			return
		}
	}
}

// Submit queues a task. It blocks when the queue is full and returns false
// only if the pool has been shut down.
func (wp *WorkerPool) Submit(task Task) bool {
	select {
	case wp.tasks <- task:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// Drain closes the queue and waits for all queued and in-flight tasks to
// finish. This is the synchronization barrier between the transfer batch and
// reconciliation.
func (wp *WorkerPool) Drain() {
	close(wp.tasks)
	wp.wg.Wait()
}

// Shutdown cancels all workers immediately.
func (wp *WorkerPool) Shutdown() {
	wp.cancel()
	wp.wg.Wait()
}

// ActiveWorkers returns the number of currently active workers.
func (wp *WorkerPool) ActiveWorkers() int32 {
	return wp.activeCount.Load()
}

// Stats contains worker pool statistics.
type Stats struct {
	TotalWorkers  int
	ActiveWorkers int32
	TotalTasks    int64
	FailedTasks   int64
}

// Stats returns pool statistics.
func (wp *WorkerPool) Stats() Stats {
	return Stats{
		TotalWorkers:  wp.workers,
		ActiveWorkers: wp.activeCount.Load(),
		TotalTasks:    wp.totalTasks.Load(),
		FailedTasks:   wp.failedTasks.Load(),
	}
}
