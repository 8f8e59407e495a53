package integrations

import "runtime/debug"

// Observer receives thing notifications on the event loop. Every value
// passed is a copy the observer may keep.
type Observer interface {
	ThingAdded(thing Thing)
	ThingRemoved(thingID string)
	ThingChanged(thing Thing)
	StateChanged(thing Thing, stateTypeID string, value any)
	EventTriggered(thing Thing, event Event)
}

// notify calls fn for every observer; a panicking observer is logged
// and skipped.
func (r *Runtime) notify(fn func(Observer)) {
	for _, o := range r.observers {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("observer panic recovered", "panic", rec, "stack", string(debug.Stack()))
				}
			}()
			fn(o)
		}()
	}
}

// NopObserver implements Observer with no-ops, for embedding in
// observers that care about a subset of notifications.
type NopObserver struct{}

func (NopObserver) ThingAdded(Thing)                {}
func (NopObserver) ThingRemoved(string)             {}
func (NopObserver) ThingChanged(Thing)              {}
func (NopObserver) StateChanged(Thing, string, any) {}
func (NopObserver) EventTriggered(Thing, Event)     {}
