package integrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/pending"
)

// AddThingRequest is the input of AddThing.
type AddThingRequest struct {
	ThingClassID      string
	Name              string
	Params            ParamList
	ThingDescriptorID string

	// The call to resume if setup completes asynchronously.
	ClientID string
	CallID   int
}

// AddThing creates a thing and runs it through setup. The thing enters
// the arena only once setup succeeds. Success params carry "thingId".
func (r *Runtime) AddThing(req AddThingRequest) (Outcome, error) {
	classID := req.ThingClassID
	params := req.Params
	method := CreateUser
	var parentID string

	if req.ThingDescriptorID != "" {
		desc, ok := r.descriptors[req.ThingDescriptorID]
		if !ok {
			return Outcome{}, ErrThingDescriptorNotFound
		}
		classID = desc.ThingClassID
		params = mergeParams(desc.Params, req.Params)
		parentID = desc.ParentID
		method = CreateDiscovery
	}

	ce, ok := r.classes[classID]
	if !ok {
		return Outcome{}, ErrDeviceClassNotFound
	}
	if !ce.class.Supports(method) {
		return Outcome{}, ErrCreationMethodNotSupported
	}
	if parentID != "" {
		if _, ok := r.things[parentID]; !ok {
			parentID = ""
		}
	}

	thing, err := r.newThing(ce, req.Name, params, parentID, false)
	if err != nil {
		return Outcome{}, err
	}
	if _, ok := r.plugins[thing.PluginID]; !ok {
		return Outcome{}, ErrPluginNotFound
	}

	out, err := r.startSetup(thing, req.ClientID, req.CallID, false, false)
	if err == nil && req.ThingDescriptorID != "" {
		delete(r.descriptors, req.ThingDescriptorID)
	}
	return out, err
}

func (r *Runtime) newThing(ce *classEntry, name string, params ParamList, parentID string, auto bool) (*Thing, error) {
	built, err := ce.params.build(params)
	if err != nil {
		return nil, err
	}
	settings, err := ce.settings.build(nil)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = ce.class.DisplayName
	}
	if name == "" {
		name = ce.class.Name
	}
	return &Thing{
		ID:           uuid.NewString(),
		ThingClassID: ce.class.ID,
		PluginID:     ce.class.PluginID,
		Name:         name,
		Params:       built,
		Settings:     settings,
		States:       defaultStates(ce.class),
		ParentID:     parentID,
		AutoCreated:  auto,
		Status:       StatusCreated,
		CreatedAt:    time.Now().UTC(),
	}, nil
}

func defaultStates(class *ThingClass) map[string]any {
	states := make(map[string]any, len(class.StateTypes))
	for _, st := range class.StateTypes {
		states[st.ID] = normalizeNumber(st.DefaultValue)
	}
	return states
}

// mergeParams returns base with every param in override replacing or
// adding to it.
func mergeParams(base, override ParamList) ParamList {
	out := base.clone()
	for _, p := range override {
		replaced := false
		for i := range out {
			if out[i].ParamTypeID == p.ParamTypeID {
				out[i].Value = p.Value
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, p)
		}
	}
	return out
}

func (r *Runtime) transition(t *Thing, next SetupStatus) {
	if !t.Status.canMoveTo(next) {
		r.logger.Warn("illegal setup transition ignored",
			"thing_id", t.ID, "from", t.Status.String(), "to", next.String())
		return
	}
	t.Status = next
}

// startSetup drives a thing from Created through the plugin's SetupThing.
// committed things are already in the arena (restored at start-up) and
// stay there when setup fails.
func (r *Runtime) startSetup(t *Thing, clientID string, callID int, restoring, committed bool) (Outcome, error) {
	lp := r.plugins[t.PluginID]
	r.transition(t, StatusSettingUp)

	if missing := lp.access.Unavailable(); len(missing) > 0 {
		r.logger.Warn("thing needs unavailable hardware", "thing_id", t.ID, "resources", missing)
		r.reject(t, ErrHardwareNotAvailable, committed)
		return Outcome{}, ErrHardwareNotAvailable
	}

	info := &SetupInfo{Thing: t.Copy(), Restoring: restoring}
	res, err := r.guard(t.PluginID, "SetupThing", func() (Result, error) {
		return lp.plugin.SetupThing(info)
	})
	if err != nil {
		kind := setupKind(err)
		r.logger.Warn("thing setup failed", "thing_id", t.ID, "plugin", t.PluginID, "error", err)
		r.reject(t, kind, committed)
		return Outcome{}, kind
	}
	if res == Done {
		r.activate(t, committed)
		return Outcome{Params: map[string]any{"thingId": t.ID}}, nil
	}

	r.transition(t, StatusSettingUpAsync)
	opID := r.ops.Begin(pending.DeviceSetup, clientID, callID, r.opts.SetupTimeout)
	r.setups[t.ID] = &setupState{thing: t, opID: opID, committed: committed}
	thingID := t.ID
	r.ops.OnTimeout(opID, func() { r.setupTimedOut(thingID) })
	if clientID == "" {
		r.ops.OnResolve(opID, func(pending.Result) {})
	}
	r.logger.Debug("thing setup pending", "thing_id", t.ID, "operation_id", opID)
	return Outcome{OperationID: opID}, nil
}

// setupKind is the kind reported for a failed setup: the plugin's own
// ThingError, or SetupFailed.
func setupKind(err error) ThingError {
	var te ThingError
	if errors.As(err, &te) {
		return te
	}
	return ErrSetupFailed
}

func (r *Runtime) activate(t *Thing, committed bool) {
	r.transition(t, StatusActive)
	t.SetupError = ""
	if committed {
		r.logger.Info("thing restored", "thing_id", t.ID, "name", t.Name)
		r.notify(func(o Observer) { o.ThingChanged(t.Copy()) })
		return
	}
	r.addToArena(t)
	r.persist(t)
	r.logger.Info("thing added", "thing_id", t.ID, "name", t.Name, "class", t.ThingClassID)
	r.notify(func(o Observer) { o.ThingAdded(t.Copy()) })
}

func (r *Runtime) reject(t *Thing, kind ThingError, committed bool) {
	r.transition(t, StatusRejected)
	t.SetupError = kind
	if committed {
		r.notify(func(o Observer) { o.ThingChanged(t.Copy()) })
	}
}

// finishSetup handles Host.ThingSetupFinished.
func (r *Runtime) finishSetup(pluginID, thingID string, err error) {
	st, ok := r.setups[thingID]
	if !ok || st.thing.PluginID != pluginID {
		r.logger.Warn("setup finished for unknown thing", "plugin", pluginID, "thing_id", thingID)
		return
	}
	delete(r.setups, thingID)

	if err != nil {
		kind := setupKind(err)
		r.logger.Warn("thing setup failed", "thing_id", thingID, "plugin", pluginID, "error", err)
		r.reject(st.thing, kind, st.committed)
		r.ops.Resolve(st.opID, pending.Result{Err: kind})
		return
	}
	if parentID := st.thing.ParentID; parentID != "" {
		if _, ok := r.things[parentID]; !ok {
			r.logger.Warn("thing setup finished after its parent was removed", "thing_id", thingID, "parent_id", parentID)
			r.abandonSetup(st, ErrSetupFailed)
			r.ops.Resolve(st.opID, pending.Result{Err: ErrSetupFailed})
			return
		}
	}
	r.activate(st.thing, st.committed)
	r.ops.Resolve(st.opID, pending.Result{Params: map[string]any{"thingId": thingID}})
}

// setupTimedOut runs as the correlator's timeout cleanup, before the
// waiting call sees the timeout.
func (r *Runtime) setupTimedOut(thingID string) {
	st, ok := r.setups[thingID]
	if !ok {
		return
	}
	delete(r.setups, thingID)
	r.logger.Warn("thing setup timed out", "thing_id", thingID, "plugin", st.thing.PluginID)
	r.abandonSetup(st, ErrHardwareFailure)
}

// abandonSetup rejects a thing whose setup will not complete and tells
// its plugin to release it. The caller resolves the operation.
func (r *Runtime) abandonSetup(st *setupState, kind ThingError) {
	r.reject(st.thing, kind, st.committed)
	if lp, ok := r.plugins[st.thing.PluginID]; ok {
		thing := st.thing.Copy()
		r.guardErr(thing.PluginID, "ThingRemoved", func() error { //nolint:errcheck // panic already logged
			lp.plugin.ThingRemoved(thing)
			return nil
		})
	}
}

// autoThingsAppeared handles Host.AutoThingsAppeared.
func (r *Runtime) autoThingsAppeared(pluginID string, descs []ThingDescriptor) {
	for _, d := range descs {
		ce, ok := r.classes[d.ThingClassID]
		if !ok || ce.class.PluginID != pluginID {
			r.logger.Warn("auto thing of unknown class ignored", "plugin", pluginID, "class", d.ThingClassID)
			continue
		}
		if d.ParentID != "" {
			if _, ok := r.things[d.ParentID]; !ok {
				r.logger.Warn("auto thing with unknown parent ignored", "plugin", pluginID, "parent_id", d.ParentID)
				continue
			}
		}
		thing, err := r.newThing(ce, d.Title, d.Params, d.ParentID, true)
		if err != nil {
			r.logger.Warn("auto thing params rejected", "plugin", pluginID, "class", d.ThingClassID, "error", err)
			continue
		}
		if _, err := r.startSetup(thing, "", 0, false, false); err != nil {
			r.logger.Warn("auto thing setup failed", "plugin", pluginID, "class", d.ThingClassID, "error", err)
		}
	}
}

// Restore loads stored things and sets each up again, parents first.
// Things whose class is no longer loaded stay in the store untouched.
func (r *Runtime) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	stored, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("loading things: %w", err)
	}

	restored := 0
	for i := range stored {
		t := stored[i]
		ce, ok := r.classes[t.ThingClassID]
		if !ok {
			r.logger.Warn("stored thing's class not loaded, skipping", "thing_id", t.ID, "class", t.ThingClassID)
			continue
		}
		if t.ParentID != "" {
			if _, ok := r.things[t.ParentID]; !ok {
				r.logger.Warn("stored thing's parent missing, skipping", "thing_id", t.ID, "parent_id", t.ParentID)
				continue
			}
		}
		if built, err := ce.params.build(t.Params); err == nil {
			t.Params = built
		}
		if settings, err := ce.settings.build(t.Settings); err == nil {
			t.Settings = settings
		}
		t.PluginID = ce.class.PluginID
		t.States = defaultStates(ce.class)
		t.Status = StatusCreated

		thing := &t
		r.addToArena(thing)
		restored++
		if _, err := r.startSetup(thing, "", 0, true, true); err != nil {
			r.logger.Warn("restored thing setup failed", "thing_id", thing.ID, "error", err)
		}
	}

	r.logger.Info("things restored", "count", restored, "stored", len(stored))
	return nil
}
