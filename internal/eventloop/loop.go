package eventloop

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// Logger is the logging surface the loop needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Loop is the hub's single logical execution context.
//
// Transports, plugin callbacks, correlator timers and hardware fan-out all
// Post closures here; the closures run one at a time, in posting order, on
// the goroutine that called Run. State owned by the session registry, the
// dispatcher, the correlator and the device runtime is only touched from
// inside the loop, so none of them need their own locking for it.
//
// Thread Safety:
//   - Post, AfterFunc and Do are safe from any goroutine.
//   - Post never blocks: the queue is unbounded.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running bool
	stopped bool
	done    chan struct{}

	logger Logger
}

// New creates an idle loop. Call Run to start executing tasks.
func New() *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for recovered task panics.
func (l *Loop) SetLogger(logger Logger) {
	l.mu.Lock()
	l.logger = logger
	l.mu.Unlock()
}

// Post queues fn for execution on the loop. It returns false, and drops
// fn, once the loop has stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// AfterFunc posts fn to the loop after d elapses. Stopping the returned
// timer before it fires cancels the post.
func (l *Loop) AfterFunc(d time.Duration, fn func()) *time.Timer {
	return time.AfterFunc(d, func() { l.Post(fn) })
}

// Do runs fn on the loop and waits for it to finish.
//
// Use it from goroutines outside the loop (HTTP handlers, bootstrap) that
// need a consistent read of loop-owned state. Never call Do from a task
// running on the loop: it would wait on itself until ctx expires.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-finished:
		return nil
	case <-l.done:
		// The loop may have executed fn just before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return fmt.Errorf("eventloop: waiting for task: %w", ctx.Err())
	}
}

// Run executes queued tasks until ctx is cancelled. Tasks still queued at
// cancellation are executed before Run returns so shutdown work posted by
// components is not lost. A panicking task is recovered and logged.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	defer close(l.done)

	for {
		l.drain()

		select {
		case <-l.wake:
		case <-ctx.Done():
			l.mu.Lock()
			l.stopped = true
			l.mu.Unlock()
			l.drain()
			return nil
		}
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for i, fn := range batch {
			batch[i] = nil
			l.execute(fn)
		}
	}
}

func (l *Loop) execute(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.mu.Lock()
			logger := l.logger
			l.mu.Unlock()
			logger.Error("event loop task panicked", "panic", r, "stack", string(debug.Stack()))
		}
	}()

	fn()
}
