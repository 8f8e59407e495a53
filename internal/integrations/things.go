package integrations

import (
	"reflect"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/pending"
)

// RemoveThing removes a thing and, depth-first, all of its children.
// Children are removed before their parent. An auto-created child can
// only go away with its parent and is refused with ThingIsChild.
//
// Returns:
//   - []string: Ids of every removed thing, in removal order
func (r *Runtime) RemoveThing(thingID string) ([]string, error) {
	t, ok := r.things[thingID]
	if !ok {
		return nil, ErrDeviceClassNotFound
	}
	if t.AutoCreated && t.ParentID != "" {
		return nil, ErrThingIsChild
	}
	var removed []string
	r.removeCascade(t, &removed)
	return removed, nil
}

func (r *Runtime) children(parentID string) []*Thing {
	var out []*Thing
	for _, t := range r.things {
		if t.ParentID == parentID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Runtime) removeCascade(t *Thing, removed *[]string) {
	r.cancelChildSetups(t.ID)
	for _, child := range r.children(t.ID) {
		r.removeCascade(child, removed)
	}
	r.removeOne(t)
	*removed = append(*removed, t.ID)
}

// cancelChildSetups rejects children of parentID whose setup is still
// pending and that are not yet in the arena. Their calls resolve with
// SetupFailed and the plugin is told to drop them.
func (r *Runtime) cancelChildSetups(parentID string) {
	var ids []string
	for id, st := range r.setups {
		if st.thing.ParentID == parentID && !st.committed {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		st := r.setups[id]
		delete(r.setups, id)
		r.logger.Info("pending child setup cancelled", "thing_id", id, "parent_id", parentID)
		r.abandonSetup(st, ErrSetupFailed)
		r.ops.Resolve(st.opID, pending.Result{Err: ErrSetupFailed})
	}
}

func (r *Runtime) removeOne(t *Thing) {
	if st, ok := r.setups[t.ID]; ok {
		delete(r.setups, t.ID)
		r.ops.Resolve(st.opID, pending.Result{Err: ErrSetupFailed})
	}

	if lp, ok := r.plugins[t.PluginID]; ok {
		thing := t.Copy()
		r.guardErr(t.PluginID, "ThingRemoved", func() error { //nolint:errcheck // panic already logged
			lp.plugin.ThingRemoved(thing)
			return nil
		})
	}

	if t.Status == StatusActive {
		r.transition(t, StatusRemoved)
	}
	r.dropFromArena(t.ID)
	r.forget(t.ID)

	r.logger.Info("thing removed", "thing_id", t.ID, "name", t.Name)
	id := t.ID
	r.notify(func(o Observer) { o.ThingRemoved(id) })
}

// EditThing renames a thing.
func (r *Runtime) EditThing(thingID, name string) error {
	t, ok := r.things[thingID]
	if !ok {
		return ErrDeviceClassNotFound
	}
	if name == "" {
		return ErrInvalidParameter
	}
	t.Name = name
	r.persist(t)
	r.notify(func(o Observer) { o.ThingChanged(t.Copy()) })
	return nil
}

// StateValue is one state of a thing.
type StateValue struct {
	StateTypeID string `json:"stateTypeId"`
	Value       any    `json:"value"`
}

// GetStateValue returns the current value of one state.
func (r *Runtime) GetStateValue(thingID, stateTypeID string) (any, error) {
	t, ok := r.things[thingID]
	if !ok {
		return nil, ErrDeviceClassNotFound
	}
	ce := r.classes[t.ThingClassID]
	if ce == nil || ce.class.StateType(stateTypeID) == nil {
		return nil, ErrStateTypeNotFound
	}
	return t.States[stateTypeID], nil
}

// GetStateValues returns every state of a thing in class order.
func (r *Runtime) GetStateValues(thingID string) ([]StateValue, error) {
	t, ok := r.things[thingID]
	if !ok {
		return nil, ErrDeviceClassNotFound
	}
	ce := r.classes[t.ThingClassID]
	if ce == nil {
		return nil, ErrDeviceClassNotFound
	}
	out := make([]StateValue, 0, len(ce.class.StateTypes))
	for _, st := range ce.class.StateTypes {
		out = append(out, StateValue{StateTypeID: st.ID, Value: t.States[st.ID]})
	}
	return out, nil
}

// stateChanged handles Host.StateChanged. Unchanged values are dropped.
func (r *Runtime) stateChanged(pluginID, thingID, stateTypeID string, value any) {
	t, ok := r.things[thingID]
	if !ok || t.PluginID != pluginID {
		r.logger.Debug("state change for unknown thing", "plugin", pluginID, "thing_id", thingID)
		return
	}
	ce := r.classes[t.ThingClassID]
	if ce == nil || ce.class.StateType(stateTypeID) == nil {
		r.logger.Warn("state change for unknown state type", "thing_id", thingID, "state_type_id", stateTypeID)
		return
	}
	value = normalizeNumber(value)
	if old, ok := t.States[stateTypeID]; ok && reflect.DeepEqual(old, value) {
		return
	}
	t.States[stateTypeID] = value
	thing := t.Copy()
	r.notify(func(o Observer) { o.StateChanged(thing, stateTypeID, value) })
}

// eventOccurred handles Host.EventOccurred.
func (r *Runtime) eventOccurred(pluginID, thingID, eventTypeID string, params ParamList) {
	t, ok := r.things[thingID]
	if !ok || t.PluginID != pluginID {
		r.logger.Debug("event for unknown thing", "plugin", pluginID, "thing_id", thingID)
		return
	}
	ce := r.classes[t.ThingClassID]
	if ce == nil || ce.class.EventType(eventTypeID) == nil {
		r.logger.Warn("event of unknown type", "thing_id", thingID, "event_type_id", eventTypeID)
		return
	}
	ev := Event{ThingID: thingID, EventTypeID: eventTypeID, Params: params.clone(), Timestamp: time.Now().UTC()}
	thing := t.Copy()
	r.notify(func(o Observer) { o.EventTriggered(thing, ev) })
}
