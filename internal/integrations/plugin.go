package integrations

import (
	"github.com/nerrad567/gray-logic-hub/internal/hardware"
)

// Result is how a plugin completed a request.
type Result int

const (
	// Done means the request finished synchronously.
	Done Result = iota
	// Async means the plugin will report completion through the Host.
	Async
)

// SetupInfo is handed to Plugin.SetupThing.
type SetupInfo struct {
	Thing Thing
	// Restoring is set when the thing is being set up again at start-up.
	Restoring bool
}

// ActionInfo is handed to Plugin.ExecuteAction. An Async action is
// completed with Host.ActionExecutionFinished(ActionID, err).
type ActionInfo struct {
	ActionID     string
	Thing        Thing
	ActionTypeID string
	Params       ParamList
}

// DiscoveryInfo is handed to Plugin.DiscoverThings. Results are reported
// with Host.ThingsDiscovered(ThingClassID, ...).
type DiscoveryInfo struct {
	ThingClassID string
	Params       ParamList
}

// Plugin is a hardware integration.
//
// Every method is called on the event loop and must not block. Work that
// takes time returns Async and reports back through the Host, whose
// methods are safe from any goroutine. A plugin may additionally
// implement hardware.TickConsumer, hardware.BLEConsumer or
// hardware.DiscoveryConsumer to receive the feeds it declared.
type Plugin interface {
	Descriptor() PluginDescriptor
	Init(host Host) error

	// SetupThing returns (Done, nil) on success, (_, err) on failure and
	// (Async, nil) when Host.ThingSetupFinished will follow.
	SetupThing(info *SetupInfo) (Result, error)
	ThingRemoved(thing Thing)
	ExecuteAction(info *ActionInfo) (Result, error)
	DiscoverThings(info *DiscoveryInfo) (Result, error)
}

// Host is the runtime surface a plugin calls back into. Every call is
// marshalled onto the event loop.
type Host interface {
	ThingSetupFinished(thingID string, err error)
	ActionExecutionFinished(actionID string, err error)
	ThingsDiscovered(thingClassID string, descriptors []ThingDescriptor)
	AutoThingsAppeared(descriptors []ThingDescriptor)
	StateChanged(thingID, stateTypeID string, value any)
	EventOccurred(thingID, eventTypeID string, params ParamList)

	// Hardware returns the plugin's scoped broker access.
	Hardware() *hardware.Access
	Logger() Logger
}
