// Package pool provides the bounded worker pool shared by health probes and
// remediation tasks.
//
// Tasks beyond the pool width start in submission order. Shutdown stops
// intake, lets running and queued tasks drain for a grace period, then discards
// whatever is still queued. Tasks already running are never interrupted.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrClosed is returned for tasks submitted after Shutdown began.
	ErrClosed = errors.New("pool is shut down")
	// ErrDiscarded is returned for queued tasks dropped at forced termination.
	ErrDiscarded = errors.New("task discarded before start")
	// ErrTimeout is returned by Future.Wait when the wait deadline passes first.
	ErrTimeout = errors.New("timed out waiting for task")
	// ErrGraceExceeded is returned by Shutdown when tasks outlived the grace period.
	ErrGraceExceeded = errors.New("pool did not drain within grace period")
)

// DefaultWidth is the number of tasks allowed to run at once.
const DefaultWidth = 10

// Pool runs submitted tasks with bounded concurrency.
type Pool struct {
	width int64
	sem   *semaphore.Weighted
	log   *zap.SugaredLogger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	// tail is closed once the most recently submitted task has acquired a
	// worker or been discarded.
	tail chan struct{}

	running atomic.Int64
	queued  atomic.Int64
}

// New creates a pool running at most width tasks at a time.
func New(width int, log *zap.SugaredLogger) *Pool {
	if width <= 0 {
		width = DefaultWidth
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		width:  int64(width),
		sem:    semaphore.NewWeighted(int64(width)),
		log:    log,
		ctx:    ctx,
		cancel: cancel,
	}
}

// With creates a pool, hands it to fn and always drains it afterwards.
func With(width int, grace time.Duration, log *zap.SugaredLogger, fn func(*Pool) error) (err error) {
	p := New(width, log)
	defer func() {
		if shutdownErr := p.Shutdown(grace); shutdownErr != nil && err == nil {
			err = shutdownErr
		}
	}()
	return fn(p)
}

// Width returns the configured concurrency.
func (p *Pool) Width() int {
	return int(p.width)
}

// Running returns the number of tasks currently executing.
func (p *Pool) Running() int {
	return int(p.running.Load())
}

// Queued returns the number of tasks waiting for a free worker.
func (p *Pool) Queued() int {
	return int(p.queued.Load())
}

// Submit schedules fn on p and returns a Future for its result. fn receives a
// context that is cancelled only when the pool is forcibly terminated. A panic
// inside fn is recovered and reported as the future's error.
func Submit[T any](p *Pool, fn func(ctx context.Context) T) *Future[T] {
	f := newFuture[T]()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		var zero T
		f.complete(zero, ErrClosed)
		return f
	}
	prev, turn := p.tail, make(chan struct{})
	p.tail = turn
	p.wg.Add(1)
	p.mu.Unlock()

	p.queued.Add(1)
	go func() {
		defer p.wg.Done()

		err := p.acquireAfter(prev)
		close(turn)
		if err != nil {
			p.queued.Add(-1)
			var zero T
			f.complete(zero, ErrDiscarded)
			return
		}
		p.queued.Add(-1)
		p.running.Add(1)
		defer func() {
			p.running.Add(-1)
			p.sem.Release(1)
		}()

		f.run(p.ctx, fn)
	}()
	return f
}

// acquireAfter takes a worker slot only after the task submitted before this
// one has taken its own.
func (p *Pool) acquireAfter(prev <-chan struct{}) error {
	if prev != nil {
		select {
		case <-prev:
		case <-p.ctx.Done():
			return p.ctx.Err()
		}
	}
	return p.sem.Acquire(p.ctx, 1)
}

// Go schedules a task with no result.
func (p *Pool) Go(fn func(ctx context.Context)) *Future[struct{}] {
	return Submit(p, func(ctx context.Context) struct{} {
		fn(ctx)
		return struct{}{}
	})
}

// Shutdown stops accepting tasks and waits up to grace for submitted tasks to
// finish. Tasks still queued after grace are discarded.
func (p *Pool) Shutdown(grace time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-drained:
		p.cancel()
		return nil
	case <-timer.C:
		queued := p.Queued()
		p.cancel()
		p.log.Warnw("Pool grace period exceeded, discarding queued tasks",
			"grace", grace, "queued", queued, "running", p.Running())
		return fmt.Errorf("%w: %d queued task(s) discarded", ErrGraceExceeded, queued)
	}
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	done  chan struct{}
	once  sync.Once
	value T
	err   error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

func (f *Future[T]) run(ctx context.Context, fn func(ctx context.Context) T) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			f.complete(zero, fmt.Errorf("task panicked: %v", r))
		}
	}()
	f.complete(fn(ctx), nil)
}

func (f *Future[T]) complete(value T, err error) {
	f.once.Do(func() {
		f.value = value
		f.err = err
		close(f.done)
	})
}

// Done is closed once the task has finished or was discarded.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the task finishes or timeout elapses. Timing out does not
// stop the task. A non-positive timeout waits indefinitely.
func (f *Future[T]) Wait(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		<-f.done
		return f.value, f.err
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		var zero T
		return zero, ErrTimeout
	}
}

// WaitContext blocks until the task finishes or ctx is done.
func (f *Future[T]) WaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
