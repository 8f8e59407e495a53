package integrations

import (
	"reflect"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/pending"
)

// ExecuteActionRequest is the input of ExecuteAction.
type ExecuteActionRequest struct {
	ThingID      string
	ActionTypeID string
	Params       ParamList

	ClientID string
	CallID   int
}

// ExecuteAction runs an action on a thing.
//
// Checks run in this order: thing exists (DeviceClassNotFound), setup
// complete (SetupFailed), action type exists (ActionTypeNotFound, or
// ParameterNotWritable for a read-only state), params build and verify
// (MissingParameter, InvalidParameter), plugin loaded (PluginNotFound).
// No operation is started unless every check passes.
func (r *Runtime) ExecuteAction(req ExecuteActionRequest) (Outcome, error) {
	t, ok := r.things[req.ThingID]
	if !ok {
		return Outcome{}, ErrDeviceClassNotFound
	}
	if !t.SetupComplete() {
		return Outcome{}, ErrSetupFailed
	}
	ce := r.classes[t.ThingClassID]
	if ce == nil {
		return Outcome{}, ErrDeviceClassNotFound
	}
	schema, ok := ce.actions[req.ActionTypeID]
	if !ok {
		if st := ce.class.StateType(req.ActionTypeID); st != nil && !st.Writable {
			return Outcome{}, ErrParameterNotWritable
		}
		return Outcome{}, ErrActionTypeNotFound
	}
	params, err := schema.build(req.Params)
	if err != nil {
		return Outcome{}, err
	}
	lp, ok := r.plugins[t.PluginID]
	if !ok {
		return Outcome{}, ErrPluginNotFound
	}

	info := &ActionInfo{
		ActionID:     uuid.NewString(),
		Thing:        t.Copy(),
		ActionTypeID: req.ActionTypeID,
		Params:       params,
	}
	res, err := r.guard(t.PluginID, "ExecuteAction", func() (Result, error) {
		return lp.plugin.ExecuteAction(info)
	})
	if err != nil {
		r.logger.Debug("action failed", "thing_id", t.ID, "action_type_id", req.ActionTypeID, "error", err)
		return Outcome{}, Kind(err)
	}
	if res == Done {
		return Outcome{Params: map[string]any{}}, nil
	}

	opID := r.ops.Begin(pending.ActionExecution, req.ClientID, req.CallID, r.opts.ActionTimeout)
	actionID := info.ActionID
	r.actions[actionID] = opID
	r.ops.OnTimeout(opID, func() { delete(r.actions, actionID) })
	return Outcome{OperationID: opID}, nil
}

// finishAction handles Host.ActionExecutionFinished.
func (r *Runtime) finishAction(pluginID, actionID string, err error) {
	opID, ok := r.actions[actionID]
	if !ok {
		r.logger.Warn("action finished for unknown action", "plugin", pluginID, "action_id", actionID)
		return
	}
	delete(r.actions, actionID)

	result := pending.Result{Params: map[string]any{}}
	if err != nil {
		result.Err = Kind(err)
	}
	r.ops.Resolve(opID, result)
}

// DiscoverThingsRequest is the input of DiscoverThings.
type DiscoverThingsRequest struct {
	ThingClassID string
	Params       ParamList

	ClientID string
	CallID   int
}

// DiscoverThings asks the class's plugin to look for things. Results
// arrive through Host.ThingsDiscovered and carry "thingDescriptors".
func (r *Runtime) DiscoverThings(req DiscoverThingsRequest) (Outcome, error) {
	ce, ok := r.classes[req.ThingClassID]
	if !ok {
		return Outcome{}, ErrDeviceClassNotFound
	}
	if !ce.class.Supports(CreateDiscovery) {
		return Outcome{}, ErrCreationMethodNotSupported
	}
	params, err := ce.discovery.build(req.Params)
	if err != nil {
		return Outcome{}, err
	}
	lp, ok := r.plugins[ce.class.PluginID]
	if !ok {
		return Outcome{}, ErrPluginNotFound
	}

	info := &DiscoveryInfo{ThingClassID: req.ThingClassID, Params: params}
	res, err := r.guard(lp.desc.ID, "DiscoverThings", func() (Result, error) {
		return lp.plugin.DiscoverThings(info)
	})
	if err != nil {
		return Outcome{}, Kind(err)
	}
	if res == Done {
		return Outcome{Params: map[string]any{"thingDescriptors": []ThingDescriptor{}}}, nil
	}

	classID := req.ThingClassID
	opID := r.ops.Begin(pending.Discovery, req.ClientID, req.CallID, r.opts.DiscoveryTimeout)
	r.discoveries[classID] = append(r.discoveries[classID], opID)
	r.ops.OnTimeout(opID, func() { r.dropDiscovery(classID, opID) })
	return Outcome{OperationID: opID}, nil
}

func (r *Runtime) dropDiscovery(classID, opID string) {
	ops := r.discoveries[classID]
	for i, id := range ops {
		if id == opID {
			ops = append(ops[:i], ops[i+1:]...)
			break
		}
	}
	if len(ops) == 0 {
		delete(r.discoveries, classID)
	} else {
		r.discoveries[classID] = ops
	}
}

// thingsDiscovered handles Host.ThingsDiscovered: results are cached for
// AddThing and resolve every discovery waiting on the class.
func (r *Runtime) thingsDiscovered(pluginID, classID string, descs []ThingDescriptor) {
	ce, ok := r.classes[classID]
	if !ok || ce.class.PluginID != pluginID {
		r.logger.Warn("discovery results for unknown class", "plugin", pluginID, "class", classID)
		return
	}

	out := make([]ThingDescriptor, 0, len(descs))
	for _, d := range descs {
		if d.ID == "" {
			d.ID = uuid.NewString()
		}
		if d.ThingClassID == "" {
			d.ThingClassID = classID
		}
		d.Params = d.Params.clone()
		d.ThingID = r.matchExisting(d)
		r.descriptors[d.ID] = d
		out = append(out, d)
	}

	ops := r.discoveries[classID]
	delete(r.discoveries, classID)
	r.logger.Debug("things discovered", "class", classID, "count", len(out), "waiting", len(ops))
	for _, opID := range ops {
		r.ops.Resolve(opID, pending.Result{Params: map[string]any{"thingDescriptors": out}})
	}
}

// matchExisting returns the id of a configured thing of the same class
// whose params equal the descriptor's, so clients can offer to
// reconfigure instead of adding a duplicate.
func (r *Runtime) matchExisting(d ThingDescriptor) string {
	want := d.Params.Map()
	for _, t := range r.things {
		if t.ThingClassID != d.ThingClassID || len(want) == 0 {
			continue
		}
		have := t.Params.Map()
		match := true
		for k, v := range want {
			if !reflect.DeepEqual(normalizeNumber(v), have[k]) {
				match = false
				break
			}
		}
		if match {
			return t.ID
		}
	}
	return ""
}
