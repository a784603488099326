package pool

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

var (
	// ErrQueueFull signals backpressure: the pending-task queue is at
	// capacity and the submission was rejected, not queued.
	ErrQueueFull = errors.New("worker pool queue full")
	// ErrWorkerCrashed is returned to the submitter whose task panicked.
	ErrWorkerCrashed = errors.New("worker crashed")
	// ErrClosed is returned for submissions after Close.
	ErrClosed = errors.New("worker pool closed")
)

// Task is a unit of CPU-bound work.
type Task func() (any, error)

// Config sizes the pool. Zero values take defaults.
type Config struct {
	// Workers defaults to clamp(NumCPU-1, 2, 4).
	Workers int
	// QueueSize bounds pending tasks; defaults to 64.
	QueueSize int

	// OnCrash is invoked once per replaced worker. Optional.
	OnCrash func()
}

// DefaultWorkers returns clamp(NumCPU-1, 2, 4).
func DefaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 2 {
		n = 2
	}
	if n > 4 {
		n = 4
	}
	return n
}

type result struct {
	value any
	err   error
}

type job struct {
	task Task
	// reply is buffered so an abandoned submitter never blocks the worker.
	reply chan result
}

// Pool is a fixed-size worker pool with a bounded queue. Safe for
// concurrent use.
type Pool struct {
	cfg       Config
	queue     chan job
	done      chan struct{}
	wg        sync.WaitGroup
	crashed   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func New(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}

	p := &Pool{
		cfg:   cfg,
		queue: make(chan job, cfg.QueueSize),
		done:  make(chan struct{}),
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	return p
}

// Submit enqueues a task and waits for its result. It returns ErrQueueFull
// immediately when the queue is at capacity, and ctx.Err() if the caller
// gives up waiting; in the latter case the in-flight task is not preempted,
// it completes and its result is discarded.
func (p *Pool) Submit(ctx context.Context, task Task) (any, error) {
	if p.closed.Load() {
		return nil, ErrClosed
	}

	j := job{
		task:  task,
		reply: make(chan result, 1),
	}

	select {
	case p.queue <- j:
	default:
		return nil, ErrQueueFull
	}

	select {
	case res := <-j.reply:
		return res.value, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, ErrClosed
	}
}

// Workers returns the configured pool size.
func (p *Pool) Workers() int {
	return p.cfg.Workers
}

// Crashed reports how many workers have been replaced after a task panic.
func (p *Pool) Crashed() uint64 {
	return p.crashed.Load()
}

// Close stops the workers. Pending submissions receive ErrClosed.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		close(p.done)
		p.wg.Wait()
	})
}

func (p *Pool) worker() {
	defer p.wg.Done()

	for {
		select {
		case j := <-p.queue:
			if crashed := p.run(j); crashed {
				// Replace this worker so the pool never shrinks below its
				// configured size while running.
				p.crashed.Add(1)
				if p.cfg.OnCrash != nil {
					p.cfg.OnCrash()
				}
				p.wg.Add(1)
				go p.worker()
				return
			}
		case <-p.done:
			return
		}
	}
}

// run executes one task, converting a panic into a failed result for the
// submitter.
func (p *Pool) run(j job) (crashed bool) {
	defer func() {
		if r := recover(); r != nil {
			crashed = true
			j.reply <- result{err: fmt.Errorf("%w: %v", ErrWorkerCrashed, r)}
		}
	}()

	v, err := j.task()
	j.reply <- result{value: v, err: err}
	return false
}
