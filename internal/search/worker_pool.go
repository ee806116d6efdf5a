package search

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
)

// ErrPoolClosed is returned when submitting to a pool after Close.
var ErrPoolClosed = errors.New("worker pool closed")

// WorkerPool runs candidate scoring jobs on a fixed set of goroutines shared
// by every search.
type WorkerPool struct {
	workers  int
	jobQueue chan func()
	once     sync.Once

	mu     sync.RWMutex
	closed bool

	submitted atomic.Int64
	completed atomic.Int64
}

// NewWorkerPool creates a new worker pool with the specified number of workers
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan func(), workers*2),
	}
}

// Start initializes and starts all workers in the pool
func (wp *WorkerPool) Start() {
	wp.once.Do(func() {
		for i := 0; i < wp.workers; i++ {
			go wp.worker()
		}
	})
}

func (wp *WorkerPool) worker() {
	for job := range wp.jobQueue {
		job()
		wp.completed.Add(1)
	}
}

// Submit queues a job, blocking while the queue is full. It gives up when ctx
// is done or the pool has been closed; the job is then never run.
func (wp *WorkerPool) Submit(ctx context.Context, job func()) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.jobQueue <- job:
		wp.submitted.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Workers returns the pool size.
func (wp *WorkerPool) Workers() int {
	return wp.workers
}

// Stats reports how many jobs were queued and finished.
func (wp *WorkerPool) Stats() (submitted, completed int64) {
	return wp.submitted.Load(), wp.completed.Load()
}

// Close stops accepting jobs. Queued jobs still run.
func (wp *WorkerPool) Close() {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if !wp.closed {
		wp.closed = true
		close(wp.jobQueue)
	}
}
