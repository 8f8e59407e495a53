package integrations

import "github.com/nerrad567/gray-logic-hub/internal/hardware"

// pluginHost is the Host handed to one plugin. Every callback is posted
// to the loop tagged with the plugin id, so a plugin can only touch its
// own things.
type pluginHost struct {
	runtime  *Runtime
	pluginID string
	access   *hardware.Access
	logger   Logger
}

func (h *pluginHost) post(fn func()) {
	if !h.runtime.loop.Post(fn) {
		h.logger.Warn("event loop stopped, plugin callback dropped", "plugin", h.pluginID)
	}
}

func (h *pluginHost) ThingSetupFinished(thingID string, err error) {
	h.post(func() { h.runtime.finishSetup(h.pluginID, thingID, err) })
}

func (h *pluginHost) ActionExecutionFinished(actionID string, err error) {
	h.post(func() { h.runtime.finishAction(h.pluginID, actionID, err) })
}

func (h *pluginHost) ThingsDiscovered(thingClassID string, descriptors []ThingDescriptor) {
	h.post(func() { h.runtime.thingsDiscovered(h.pluginID, thingClassID, descriptors) })
}

func (h *pluginHost) AutoThingsAppeared(descriptors []ThingDescriptor) {
	h.post(func() { h.runtime.autoThingsAppeared(h.pluginID, descriptors) })
}

func (h *pluginHost) StateChanged(thingID, stateTypeID string, value any) {
	h.post(func() { h.runtime.stateChanged(h.pluginID, thingID, stateTypeID, value) })
}

func (h *pluginHost) EventOccurred(thingID, eventTypeID string, params ParamList) {
	h.post(func() { h.runtime.eventOccurred(h.pluginID, thingID, eventTypeID, params) })
}

func (h *pluginHost) Hardware() *hardware.Access { return h.access }

func (h *pluginHost) Logger() Logger { return h.logger }
