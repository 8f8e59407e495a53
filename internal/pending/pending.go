package pending

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind classifies a pending operation.
type Kind string

// Operation kinds.
const (
	DeviceSetup     Kind = "DeviceSetup"
	ActionExecution Kind = "ActionExecution"
	Discovery       Kind = "Discovery"
	Authentication  Kind = "Authentication"
)

// Kinds lists every kind, for metrics.
var Kinds = []Kind{DeviceSetup, ActionExecution, Discovery, Authentication}

// Operation is a call that will complete later.
type Operation struct {
	ID       string
	Kind     Kind
	ClientID string
	CallID   int
	Deadline time.Time
}

// Result completes an operation: Err on failure, otherwise Params is the
// success payload.
type Result struct {
	Params map[string]any
	Err    error
}

// Scheduler runs fn after d. *eventloop.Loop satisfies it, which puts
// deadline expiry on the loop.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) *time.Timer
}

// Metrics receives correlator gauges. *metrics.Metrics satisfies it.
type Metrics interface {
	SetPending(kind string, n int)
	OperationTimedOut(kind string)
}

// Logger is the logging surface the correlator needs.
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

type entry struct {
	op        Operation
	timer     *time.Timer
	onResolve func(Result)
	onTimeout func()

	// Set when the operation finished before OnResolve was registered.
	held *Result
	done bool
}

// Correlator parks calls that a plugin completes asynchronously and
// resumes them exactly once, by Resolve or by deadline.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Callbacks run on the
//     goroutine that resolved the operation, or on the Scheduler for
//     timeouts, and never under the correlator's lock.
type Correlator struct {
	sched   Scheduler
	metrics Metrics
	logger  Logger

	mu  sync.Mutex
	ops map[string]*entry
}

// New creates a Correlator whose deadlines run on sched.
func New(sched Scheduler) *Correlator {
	return &Correlator{
		sched:  sched,
		logger: noopLogger{},
		ops:    make(map[string]*entry),
	}
}

// SetLogger sets the logger.
func (c *Correlator) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetMetrics sets the gauge sink.
func (c *Correlator) SetMetrics(m Metrics) {
	c.metrics = m
}

// Begin registers a new operation and arms its deadline.
//
// Parameters:
//   - kind: What is being waited for
//   - clientID, callID: The call to resume
//   - timeout: Time until the operation resolves with ErrTimeout
//
// Returns:
//   - string: The operation id handed to the plugin
func (c *Correlator) Begin(kind Kind, clientID string, callID int, timeout time.Duration) string {
	id := uuid.NewString()
	e := &entry{op: Operation{
		ID:       id,
		Kind:     kind,
		ClientID: clientID,
		CallID:   callID,
		Deadline: time.Now().Add(timeout),
	}}

	c.mu.Lock()
	c.ops[id] = e
	e.timer = c.sched.AfterFunc(timeout, func() { c.expire(id) })
	c.mu.Unlock()

	c.logger.Debug("operation started", "operation_id", id, "kind", kind, "client_id", clientID, "timeout", timeout)
	c.updateGauge(kind)
	return id
}

// Resolve completes an operation. It returns false, and does nothing,
// if the operation is unknown, already resolved or expired.
func (c *Correlator) Resolve(id string, r Result) bool {
	c.mu.Lock()
	e, ok := c.ops[id]
	if !ok || e.done {
		c.mu.Unlock()
		c.logger.Warn("resolve for unknown or finished operation ignored", "operation_id", id)
		return false
	}
	e.done = true
	if e.timer != nil {
		e.timer.Stop()
	}
	fn := e.onResolve
	if fn != nil {
		delete(c.ops, id)
	} else {
		e.held = &r
	}
	c.mu.Unlock()

	c.logger.Debug("operation resolved", "operation_id", id, "kind", e.op.Kind, "error", r.Err)
	c.updateGauge(e.op.Kind)
	if fn != nil {
		fn(r)
	}
	return true
}

// OnResolve registers the resume callback. If the operation already
// finished, fn runs immediately with the held result. It returns false
// for unknown operations.
func (c *Correlator) OnResolve(id string, fn func(Result)) bool {
	c.mu.Lock()
	e, ok := c.ops[id]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("resume callback for unknown operation", "operation_id", id)
		return false
	}
	if e.held != nil {
		held := *e.held
		delete(c.ops, id)
		c.mu.Unlock()
		fn(held)
		return true
	}
	e.onResolve = fn
	c.mu.Unlock()
	return true
}

// OnTimeout registers cleanup that runs when the deadline passes, before
// the resume callback sees ErrTimeout.
func (c *Correlator) OnTimeout(id string, fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.ops[id]
	if !ok || e.done {
		return false
	}
	e.onTimeout = fn
	return true
}

// Get returns an unfinished operation.
func (c *Correlator) Get(id string) (Operation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.ops[id]
	if !ok || e.done {
		return Operation{}, false
	}
	return e.op, true
}

// Pending returns the number of unfinished operations.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.ops {
		if !e.done {
			n++
		}
	}
	return n
}

// PendingByKind returns unfinished operations per kind.
func (c *Correlator) PendingByKind() map[Kind]int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Kind]int)
	for _, e := range c.ops {
		if !e.done {
			out[e.op.Kind]++
		}
	}
	return out
}

func (c *Correlator) expire(id string) {
	c.mu.Lock()
	e, ok := c.ops[id]
	if !ok || e.done {
		// Resolved while the timer was being posted.
		c.mu.Unlock()
		return
	}
	e.done = true
	cleanup, fn := e.onTimeout, e.onResolve
	r := Result{Err: ErrTimeout}
	if fn != nil {
		delete(c.ops, id)
	} else {
		e.held = &r
	}
	c.mu.Unlock()

	c.logger.Warn("operation timed out", "operation_id", id, "kind", e.op.Kind, "client_id", e.op.ClientID)
	if c.metrics != nil {
		c.metrics.OperationTimedOut(string(e.op.Kind))
	}
	c.updateGauge(e.op.Kind)

	if cleanup != nil {
		cleanup()
	}
	if fn != nil {
		fn(r)
	}
}

func (c *Correlator) updateGauge(kind Kind) {
	if c.metrics == nil {
		return
	}
	c.mu.Lock()
	n := 0
	for _, e := range c.ops {
		if !e.done && e.op.Kind == kind {
			n++
		}
	}
	c.mu.Unlock()
	c.metrics.SetPending(string(kind), n)
}
