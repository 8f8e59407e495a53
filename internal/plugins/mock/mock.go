package mock

import (
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/integrations"
)

// Plugin simulates devices. Async work completes on the next tick of
// the shared timer.
//
// Thread Safety:
//   - Not safe for concurrent use. The runtime and the broker call it
//     only on the event loop.
type Plugin struct {
	host integrations.Host

	counters map[string]float64 // thing id -> counter, for active mock things

	// Work due on the next tick.
	setups    []string
	actions   []string
	discovery []discoveryRequest
}

type discoveryRequest struct {
	count int
}

// New creates the mock plugin.
func New() *Plugin {
	return &Plugin{counters: make(map[string]float64)}
}

// Descriptor implements integrations.Plugin.
func (p *Plugin) Descriptor() integrations.PluginDescriptor { return descriptor() }

// Init implements integrations.Plugin.
func (p *Plugin) Init(host integrations.Host) error {
	p.host = host
	return nil
}

// SetupThing implements integrations.Plugin.
func (p *Plugin) SetupThing(info *integrations.SetupInfo) (integrations.Result, error) {
	t := info.Thing
	switch t.ThingClassID {
	case MockClassID:
		if broken, _ := t.Params.Value(ParamBroken); broken == true {
			return integrations.Done, integrations.ErrSetupFailed
		}
		if async, _ := t.Params.Value(ParamAsync); async == true {
			p.setups = append(p.setups, t.ID)
			return integrations.Async, nil
		}
		p.counters[t.ID] = 0
	case ParentClassID:
		if !info.Restoring {
			p.host.AutoThingsAppeared([]integrations.ThingDescriptor{{
				ThingClassID: ChildClassID,
				ParentID:     t.ID,
				Title:        t.Name + " child",
			}})
		}
	}
	return integrations.Done, nil
}

// ThingRemoved implements integrations.Plugin.
func (p *Plugin) ThingRemoved(thing integrations.Thing) {
	delete(p.counters, thing.ID)
	p.setups = slices.DeleteFunc(p.setups, func(id string) bool { return id == thing.ID })
}

// ExecuteAction implements integrations.Plugin.
func (p *Plugin) ExecuteAction(info *integrations.ActionInfo) (integrations.Result, error) {
	id := info.Thing.ID
	switch info.ActionTypeID {
	case ActionPower:
		v, _ := info.Params.Value(ActionParamPower)
		p.host.StateChanged(id, StatePower, v)
	case ActionBrightness:
		v, _ := info.Params.Value(ActionParamBright)
		p.host.StateChanged(id, StateBrightness, v)
	case ActionPress:
		p.host.EventOccurred(id, EventPressed, nil)
	case ActionFail:
		return integrations.Done, integrations.ErrHardwareFailure
	case ActionAsync:
		p.actions = append(p.actions, info.ActionID)
		return integrations.Async, nil
	case ActionTimeout:
		return integrations.Async, nil
	default:
		return integrations.Done, integrations.ErrActionTypeNotFound
	}
	return integrations.Done, nil
}

// DiscoverThings implements integrations.Plugin.
func (p *Plugin) DiscoverThings(info *integrations.DiscoveryInfo) (integrations.Result, error) {
	if info.ThingClassID != MockClassID {
		return integrations.Done, integrations.ErrCreationMethodNotSupported
	}
	count, _ := info.Params.Value(DiscoveryParamResultCount)
	n, _ := count.(float64)
	p.discovery = append(p.discovery, discoveryRequest{count: int(n)})
	return integrations.Async, nil
}

// OnTick implements hardware.TickConsumer.
func (p *Plugin) OnTick(time.Time) {
	for _, id := range p.setups {
		p.counters[id] = 0
		p.host.ThingSetupFinished(id, nil)
	}
	p.setups = nil

	for _, id := range p.actions {
		p.host.ActionExecutionFinished(id, nil)
	}
	p.actions = nil

	for _, req := range p.discovery {
		descs := make([]integrations.ThingDescriptor, 0, req.count)
		for i := 0; i < req.count; i++ {
			descs = append(descs, integrations.ThingDescriptor{
				ThingClassID: MockClassID,
				Title:        fmt.Sprintf("Mock device %d", i+1),
				Description:  "Discovered mock device",
				Params: integrations.ParamList{
					{ParamTypeID: ParamAsync, Value: false},
					{ParamTypeID: ParamBroken, Value: false},
				},
			})
		}
		p.host.ThingsDiscovered(MockClassID, descs)
	}
	p.discovery = nil

	ids := make([]string, 0, len(p.counters))
	for id := range p.counters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		p.counters[id]++
		p.host.StateChanged(id, StateCounter, p.counters[id])
	}
}
