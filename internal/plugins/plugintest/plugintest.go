// Package plugintest runs a plugin inside a real integrations.Runtime
// for tests, with a hand-driven event loop.
package plugintest

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
)

// Loop queues posted work until Drain and holds timers until Fire.
type Loop struct {
	mu     sync.Mutex
	fns    []func()
	timers []func()
}

// Post implements the loop interfaces of the runtime and the broker.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
	return true
}

// AfterFunc records fn; it runs only when Fire is called.
func (l *Loop) AfterFunc(_ time.Duration, fn func()) *time.Timer {
	l.mu.Lock()
	l.timers = append(l.timers, fn)
	l.mu.Unlock()
	return time.NewTimer(time.Hour)
}

// Drain runs queued work, including work queued while draining.
func (l *Loop) Drain() {
	for {
		l.mu.Lock()
		if len(l.fns) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.fns[0]
		l.fns = l.fns[1:]
		l.mu.Unlock()
		fn()
	}
}

// Fire expires every recorded timer, then drains.
func (l *Loop) Fire() {
	l.mu.Lock()
	timers := l.timers
	l.timers = nil
	l.mu.Unlock()
	for _, fn := range timers {
		fn()
	}
	l.Drain()
}

// Recorder is an integrations.Observer that keeps every notification.
type Recorder struct {
	integrations.NopObserver

	Added  []integrations.Thing
	States []State
	Events []integrations.Event
}

// State is one recorded state change.
type State struct {
	ThingID     string
	StateTypeID string
	Value       any
}

// ThingAdded implements integrations.Observer.
func (r *Recorder) ThingAdded(t integrations.Thing) { r.Added = append(r.Added, t) }

// StateChanged implements integrations.Observer.
func (r *Recorder) StateChanged(t integrations.Thing, stateTypeID string, value any) {
	r.States = append(r.States, State{ThingID: t.ID, StateTypeID: stateTypeID, Value: value})
}

// EventTriggered implements integrations.Observer.
func (r *Recorder) EventTriggered(_ integrations.Thing, e integrations.Event) {
	r.Events = append(r.Events, e)
}

// Last returns the most recent value recorded for a thing's state.
func (r *Recorder) Last(thingID, stateTypeID string) (any, bool) {
	for i := len(r.States) - 1; i >= 0; i-- {
		s := r.States[i]
		if s.ThingID == thingID && s.StateTypeID == stateTypeID {
			return s.Value, true
		}
	}
	return nil, false
}

// Harness is a runtime hosting a single plugin.
type Harness struct {
	Loop     *Loop
	Ops      *pending.Correlator
	Runtime  *integrations.Runtime
	Recorder *Recorder
}

// New loads p into a fresh runtime whose broker is built from opts.
// A zero TickInterval is replaced so the timer resource is available.
func New(t *testing.T, p integrations.Plugin, opts hardware.Options) *Harness {
	t.Helper()
	h := &Harness{Loop: &Loop{}, Recorder: &Recorder{}}
	if opts.TickInterval <= 0 {
		opts.TickInterval = time.Second
	}
	h.Ops = pending.New(h.Loop)
	broker := hardware.NewBroker(h.Loop, opts)
	h.Runtime = integrations.New(h.Loop, h.Ops, broker, nil, integrations.Options{})
	h.Runtime.AddObserver(h.Recorder)
	if err := h.Runtime.LoadPlugin(p); err != nil {
		t.Fatalf("LoadPlugin() error = %v", err)
	}
	return h
}

// Outcome is a runtime call result with any deferred part resolved.
type Outcome struct {
	Params map[string]any
	Err    error
	// Done is false while a deferred operation is still pending.
	Done bool
}

// Track follows a runtime outcome. Deferred outcomes fill in once the
// operation resolves and the loop is drained.
func (h *Harness) Track(out integrations.Outcome, err error) *Outcome {
	res := &Outcome{}
	switch {
	case err != nil:
		res.Err, res.Done = err, true
	case !out.Pending():
		res.Params, res.Done = out.Params, true
	default:
		h.Ops.OnResolve(out.OperationID, func(r pending.Result) {
			res.Params, res.Err, res.Done = r.Params, r.Err, true
		})
	}
	return res
}

// Wait drains the loop until cond holds or the deadline passes. Use it
// when completions arrive from other goroutines.
func (h *Harness) Wait(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		h.Loop.Drain()
		if cond() {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Thing returns a thing by id, failing the test when it is missing.
func (h *Harness) Thing(t *testing.T, id string) integrations.Thing {
	t.Helper()
	thing, ok := h.Runtime.Thing(id)
	if !ok {
		t.Fatalf("thing %s not found", id)
	}
	return thing
}
