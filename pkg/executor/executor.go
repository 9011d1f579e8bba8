// Package executor serializes operations against a shared resource.
//
// Every submitted task waits for the one before it to finish. Tasks run one at a time on a
// single worker goroutine, in submission order, so the resource they touch needs no lock
// of its own.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/cftbridge/internal/logging"
)

// ErrClosed is returned when submitting to a closed executor.
var ErrClosed = errors.New("executor closed")

// Func is the body of a task. ctx is the context the task was submitted with.
type Func func(ctx context.Context) error

// Future is the pending result of a submitted task.
type Future struct {
	name string
	done chan struct{}
	err  error
}

// Done is closed once the task has finished or was skipped.
func (f *Future) Done() <-chan struct{} { return f.done }

// Err returns the task result. It must only be called after Done is closed.
func (f *Future) Err() error { return f.err }

// Wait blocks until the task finishes or ctx ends. Giving up on the wait does not cancel
// the task itself.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *Future) finish(err error) {
	f.err = err
	close(f.done)
}

type task struct {
	ctx    context.Context
	fn     Func
	future *Future
}

// Executor runs tasks strictly one after another.
type Executor struct {
	mu      sync.Mutex
	queue   []*task
	running string
	closed  bool

	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// Option configures the Executor.
type Option func(*Executor)

// WithLogger configures a logger for task failures.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// New starts an executor with its worker goroutine.
func New(opts ...Option) *Executor {
	e := &Executor{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.run()
	return e
}

// Submit queues fn behind every task submitted before it.
func (e *Executor) Submit(ctx context.Context, name string, fn Func) *Future {
	f := &Future{name: name, done: make(chan struct{})}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		f.finish(fmt.Errorf("%s: %w", name, ErrClosed))
		return f
	}
	e.queue = append(e.queue, &task{ctx: ctx, fn: fn, future: f})
	e.mu.Unlock()

	select {
	case e.wake <- struct{}{}:
	default:
	}
	return f
}

// Do submits fn and waits for it.
func (e *Executor) Do(ctx context.Context, name string, fn Func) error {
	return e.Submit(ctx, name, fn).Wait(ctx)
}

// Running returns the name of the task currently executing, or "".
func (e *Executor) Running() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Pending returns the number of tasks waiting to start.
func (e *Executor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// Close stops accepting tasks, lets every queued task run, and waits for the worker to
// exit or ctx to end.
func (e *Executor) Close(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		select {
		case e.wake <- struct{}{}:
		default:
		}
	}
	e.mu.Unlock()

	select {
	case <-e.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Executor) next() (*task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return nil, e.closed
	}
	t := e.queue[0]
	e.queue[0] = nil
	e.queue = e.queue[1:]
	e.running = t.future.name
	return t, false
}

func (e *Executor) run() {
	defer close(e.done)
	for {
		t, stop := e.next()
		if stop {
			return
		}
		if t == nil {
			<-e.wake
			continue
		}

		err := e.execute(t)

		e.mu.Lock()
		e.running = ""
		e.mu.Unlock()

		if err != nil {
			e.logger.Debug("task failed", "task", t.future.name, "err", err)
		}
		t.future.finish(err)
	}
}

func (e *Executor) execute(t *task) (err error) {
	if err := t.ctx.Err(); err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("task panicked", "task", t.future.name, "panic", r)
			err = fmt.Errorf("%s: panic: %v", t.future.name, r)
		}
	}()
	return t.fn(t.ctx)
}
