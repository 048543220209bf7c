// Package workerpool implements a fixed-size thread pool: a single FIFO job
// queue drained by N workers, grounded on restic's worker-goroutine-over-a-
// channel pattern, generalized from a single job type to an arbitrary
// fallible closure and built around an explicit submit/await_stop contract
// rather than an errgroup tied to a single ctx cancellation.
package workerpool

import (
	"runtime"
	"sync"

	"github.com/acquire-zarr/zarrstream/internal/zerrs"
	"github.com/acquire-zarr/zarrstream/internal/zlog"
)

// Job is a fallible unit of work. It returns an error to report failure;
// ErrorHandler receives that error on the worker goroutine, mirroring the
// source's err_msg-out-parameter convention.
type Job func() error

// ErrorHandler is invoked, on the worker goroutine, whenever a Job returns
// an error.
type ErrorHandler func(error)

// Pool is a fixed-size set of workers draining a single job queue.
type Pool struct {
	jobs    chan Job
	wg      sync.WaitGroup
	onError ErrorHandler
	log     zlog.Logger

	mu       sync.Mutex
	stopping bool
}

// New starts n workers (n <= 0 means runtime.NumCPU(), a "hardware
// concurrency" default, and never fewer than 1). queueDepth bounds the job queue; a small
// multiple of the worker count works well so that append() applies
// backpressure instead of growing memory without bound.
func New(n int, queueDepth int, onError ErrorHandler, log zlog.Logger) *Pool {
	if n <= 0 {
		n = runtime.NumCPU()
	}
	if n < 1 {
		n = 1
	}
	if queueDepth < n {
		queueDepth = n
	}
	if onError == nil {
		onError = func(error) {}
	}

	p := &Pool{
		jobs:    make(chan Job, queueDepth),
		onError: onError,
		log:     log.With("thread-pool"),
	}

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for job := range p.jobs {
		if err := job(); err != nil {
			p.onError(err)
		}
	}
}

// Submit enqueues job, blocking if the queue is full.
// It fails if the pool is shutting down.
func (p *Pool) Submit(job Job) error {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		return zerrs.InvalidArgument("thread pool is no longer accepting jobs")
	}
	p.mu.Unlock()

	// A second shutdown check could still race with a concurrent AwaitStop
	// closing the channel; callers are expected to stop submitting before
	// calling AwaitStop (the stream façade enforces this via its own state
	// machine), exactly as the source's EXPECT(is_accepting_jobs_) does.
	p.jobs <- job
	return nil
}

// AwaitStop stops accepting new jobs, drains whatever is already queued, and
// waits for all workers to exit.
func (p *Pool) AwaitStop() {
	p.mu.Lock()
	if p.stopping {
		p.mu.Unlock()
		p.wg.Wait()
		return
	}
	p.stopping = true
	close(p.jobs)
	p.mu.Unlock()

	p.wg.Wait()
	p.log.Debugf("thread pool drained")
}
