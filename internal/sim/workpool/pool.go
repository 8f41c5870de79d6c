// Package workpool runs jobs on a fixed set of goroutines and hands back
// futures that the caller polls. Jobs are not interruptible: once started
// they run to completion or failure.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	ErrClosed    = errors.New("workpool: closed")
	ErrSaturated = errors.New("workpool: queue full")
)

type Pool struct {
	name string
	ctx  context.Context

	jobs   chan func()
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool

	running   atomic.Int64
	completed atomic.Uint64
}

// New starts workers goroutines. queue bounds the number of jobs waiting for
// a worker; Submit never blocks.
func New(ctx context.Context, name string, workers, queue int) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queue < workers {
		queue = workers
	}
	p := &Pool{
		name: name,
		ctx:  ctx,
		jobs: make(chan func(), queue),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for job := range p.jobs {
				job()
			}
		}()
	}
	return p
}

func (p *Pool) Name() string { return p.name }

// Running is the number of jobs submitted and not yet finished.
func (p *Pool) Running() int { return int(p.running.Load()) }

func (p *Pool) Completed() uint64 { return p.completed.Load() }

// Close stops accepting work and waits for queued jobs to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pool) enqueue(job func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.jobs <- job:
		return nil
	default:
		return ErrSaturated
	}
}

// Future is the pending result of a submitted job.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

func resolved[T any](err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), err: err}
	close(f.done)
	return f
}

// Poll reports the result without blocking. ok is false while the job runs.
func (f *Future[T]) Poll() (val T, ok bool, err error) {
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		var zero T
		return zero, false, nil
	}
}

// Wait blocks until the job finishes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Submit schedules fn on the pool. A panic inside fn becomes the future's
// error. If the pool is closed or full the returned future is already failed.
func Submit[T any](p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	p.running.Add(1)
	job := func() {
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("%s: job panicked: %v", p.name, r)
			}
			p.running.Add(-1)
			p.completed.Add(1)
			close(f.done)
		}()
		f.val, f.err = fn(p.ctx)
	}
	if err := p.enqueue(job); err != nil {
		p.running.Add(-1)
		return resolved[T](fmt.Errorf("%s: %w", p.name, err))
	}
	return f
}
