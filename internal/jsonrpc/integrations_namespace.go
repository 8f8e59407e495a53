package jsonrpc

import (
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
)

type integrationsHandlers struct {
	rt *integrations.Runtime
}

// NewIntegrationsNamespace exposes the device runtime over RPC.
func NewIntegrationsNamespace(rt *integrations.Runtime) *Namespace {
	h := &integrationsHandlers{rt: rt}
	thingID := map[string]any{"thingId": uuidString()}

	return &Namespace{
		Name: "Integrations",
		Methods: map[string]*Method{
			"GetPlugins": {
				Description: "Lists the loaded plugins.",
				Handler:     h.getPlugins,
			},
			"GetVendors": {
				Description: "Lists the vendors of every loaded plugin.",
				Handler:     h.getVendors,
			},
			"GetThingClasses": {
				Description: "Lists thing classes, optionally filtered by vendor or ids.",
				Params: object(nil, map[string]any{
					"vendorId":      typed("string"),
					"thingClassIds": map[string]any{"type": "array", "items": typed("string")},
				}),
				Handler: h.getThingClasses,
			},
			"GetThings": {
				Description: "Lists configured things, or one thing by id.",
				Params:      object(nil, thingID),
				Handler:     h.getThings,
			},
			"AddThing": {
				Description: "Adds a thing of a class, or from a discovered thing descriptor.",
				Params: object(nil, map[string]any{
					"thingClassId":      typed("string"),
					"name":              typed("string"),
					"thingParams":       paramList(),
					"thingDescriptorId": typed("string"),
				}),
				Returns: object(nil, map[string]any{"thingId": typed("string")}),
				Handler: h.addThing,
			},
			"RemoveThing": {
				Description: "Removes a thing and all of its children.",
				Params:      object([]string{"thingId"}, thingID),
				Handler:     h.removeThing,
			},
			"EditThing": {
				Description: "Renames a thing.",
				Params: object([]string{"thingId", "name"}, map[string]any{
					"thingId": uuidString(),
					"name":    map[string]any{"type": "string", "minLength": 1},
				}),
				Handler: h.editThing,
			},
			"ExecuteAction": {
				Description: "Executes an action on a thing.",
				Params: object([]string{"thingId", "actionTypeId"}, map[string]any{
					"thingId":      uuidString(),
					"actionTypeId": typed("string"),
					"params":       paramList(),
				}),
				Handler: h.executeAction,
			},
			"DiscoverThings": {
				Description: "Discovers things of a class.",
				Params: object([]string{"thingClassId"}, map[string]any{
					"thingClassId":    typed("string"),
					"discoveryParams": paramList(),
				}),
				Returns: object(nil, map[string]any{"thingDescriptors": typed("array")}),
				Handler: h.discoverThings,
			},
			"GetStateValue": {
				Description: "Returns one state value of a thing.",
				Params: object([]string{"thingId", "stateTypeId"}, map[string]any{
					"thingId":     uuidString(),
					"stateTypeId": typed("string"),
				}),
				Handler: h.getStateValue,
			},
			"GetStateValues": {
				Description: "Returns every state value of a thing.",
				Params:      object([]string{"thingId"}, thingID),
				Handler:     h.getStateValues,
			},
		},
		Notifications: map[string]map[string]any{
			"StateChanged":   {"thingId": "string", "stateTypeId": "string", "value": "any"},
			"ThingAdded":     {"thing": "Thing"},
			"ThingRemoved":   {"thingId": "string"},
			"ThingChanged":   {"thing": "Thing"},
			"EventTriggered": {"event": "Event"},
		},
	}
}

// toParamList converts a decoded params array. The schema has already
// checked its shape.
func toParamList(v any) integrations.ParamList {
	items, _ := v.([]any)
	out := make(integrations.ParamList, 0, len(items))
	for _, item := range items {
		m, _ := item.(map[string]any)
		id, _ := m["paramTypeId"].(string)
		out = append(out, integrations.Param{ParamTypeID: id, Value: m["value"]})
	}
	return out
}

func outcome(o integrations.Outcome, err error) Reply {
	if err != nil {
		return Failure(err)
	}
	if o.Pending() {
		return Deferred(o.OperationID)
	}
	return Success(o.Params)
}

func (h *integrationsHandlers) getPlugins(_ *Call, _ map[string]any) Reply {
	plugins := h.rt.Plugins()
	list := make([]map[string]any, 0, len(plugins))
	for _, p := range plugins {
		list = append(list, map[string]any{
			"id":          p.ID,
			"name":        p.Name,
			"displayName": p.DisplayName,
		})
	}
	return Success(map[string]any{"plugins": list})
}

func (h *integrationsHandlers) getVendors(_ *Call, _ map[string]any) Reply {
	vendors := h.rt.Vendors()
	if vendors == nil {
		vendors = []integrations.Vendor{}
	}
	return Success(map[string]any{"vendors": vendors})
}

func (h *integrationsHandlers) getThingClasses(_ *Call, params map[string]any) Reply {
	vendorID, _ := params["vendorId"].(string)
	var ids []string
	if raw, ok := params["thingClassIds"].([]any); ok {
		for _, v := range raw {
			if s, ok := v.(string); ok {
				ids = append(ids, s)
			}
		}
	}
	classes := h.rt.ThingClasses(vendorID, ids)
	if classes == nil {
		classes = []integrations.ThingClass{}
	}
	return Success(map[string]any{"thingClasses": classes})
}

func (h *integrationsHandlers) getThings(_ *Call, params map[string]any) Reply {
	if id, ok := params["thingId"].(string); ok {
		t, found := h.rt.Thing(id)
		if !found {
			return Failure(integrations.ErrDeviceClassNotFound)
		}
		return Success(map[string]any{"things": []integrations.Thing{t}})
	}
	things := h.rt.Things()
	if things == nil {
		things = []integrations.Thing{}
	}
	return Success(map[string]any{"things": things})
}

func (h *integrationsHandlers) addThing(call *Call, params map[string]any) Reply {
	req := integrations.AddThingRequest{
		Params:   toParamList(params["thingParams"]),
		ClientID: call.ClientID,
		CallID:   call.ID,
	}
	req.ThingClassID, _ = params["thingClassId"].(string)
	req.Name, _ = params["name"].(string)
	req.ThingDescriptorID, _ = params["thingDescriptorId"].(string)
	if req.ThingClassID == "" && req.ThingDescriptorID == "" {
		return Fail(KindInvalidParams)
	}
	return outcome(h.rt.AddThing(req))
}

func (h *integrationsHandlers) removeThing(_ *Call, params map[string]any) Reply {
	id, _ := params["thingId"].(string)
	removed, err := h.rt.RemoveThing(id)
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"removedThingIds": removed})
}

func (h *integrationsHandlers) editThing(_ *Call, params map[string]any) Reply {
	id, _ := params["thingId"].(string)
	name, _ := params["name"].(string)
	if err := h.rt.EditThing(id, name); err != nil {
		return Failure(err)
	}
	return Success(nil)
}

func (h *integrationsHandlers) executeAction(call *Call, params map[string]any) Reply {
	req := integrations.ExecuteActionRequest{
		Params:   toParamList(params["params"]),
		ClientID: call.ClientID,
		CallID:   call.ID,
	}
	req.ThingID, _ = params["thingId"].(string)
	req.ActionTypeID, _ = params["actionTypeId"].(string)
	return outcome(h.rt.ExecuteAction(req))
}

func (h *integrationsHandlers) discoverThings(call *Call, params map[string]any) Reply {
	req := integrations.DiscoverThingsRequest{
		Params:   toParamList(params["discoveryParams"]),
		ClientID: call.ClientID,
		CallID:   call.ID,
	}
	req.ThingClassID, _ = params["thingClassId"].(string)
	return outcome(h.rt.DiscoverThings(req))
}

func (h *integrationsHandlers) getStateValue(_ *Call, params map[string]any) Reply {
	id, _ := params["thingId"].(string)
	stateTypeID, _ := params["stateTypeId"].(string)
	value, err := h.rt.GetStateValue(id, stateTypeID)
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"value": value})
}

func (h *integrationsHandlers) getStateValues(_ *Call, params map[string]any) Reply {
	id, _ := params["thingId"].(string)
	values, err := h.rt.GetStateValues(id)
	if err != nil {
		return Failure(err)
	}
	return Success(map[string]any{"values": values})
}

// Notifier turns runtime changes into Integrations notifications. It
// runs on the event loop, where the runtime notifies observers.
type Notifier struct {
	d *Dispatcher
}

// NewNotifier creates the Integrations notification emitter.
func NewNotifier(d *Dispatcher) *Notifier { return &Notifier{d: d} }

// ThingAdded implements integrations.Observer.
func (n *Notifier) ThingAdded(thing integrations.Thing) {
	n.d.Notify("Integrations.ThingAdded", map[string]any{"thing": thing})
}

// ThingRemoved implements integrations.Observer.
func (n *Notifier) ThingRemoved(thingID string) {
	n.d.Notify("Integrations.ThingRemoved", map[string]any{"thingId": thingID})
}

// ThingChanged implements integrations.Observer.
func (n *Notifier) ThingChanged(thing integrations.Thing) {
	n.d.Notify("Integrations.ThingChanged", map[string]any{"thing": thing})
}

// StateChanged implements integrations.Observer.
func (n *Notifier) StateChanged(thing integrations.Thing, stateTypeID string, value any) {
	n.d.Notify("Integrations.StateChanged", map[string]any{
		"thingId":     thing.ID,
		"stateTypeId": stateTypeID,
		"value":       value,
	})
}

// EventTriggered implements integrations.Observer.
func (n *Notifier) EventTriggered(_ integrations.Thing, event integrations.Event) {
	n.d.Notify("Integrations.EventTriggered", map[string]any{"event": event})
}
