// Package netdevice integrates HTTP relay devices: a relay exposed as
// GET /relay/0, switched with GET /relay/0?turn=on|off, both answering
// {"ison": bool}. Devices are found through the shared mDNS feed.
package netdevice

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sort"
	"strconv"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
)

// Plugin, vendor and class ids.
const (
	PluginID     = "4b8e5710-f644-4df9-a8ba-5b28e7f5775d"
	VendorID     = "c134ac6b-8db7-4f08-ab0a-378f8694a2da"
	RelayClassID = "14e95347-e9c9-4b9f-a72d-0d09dcb9b9a0"
)

// Param, state and action ids.
const (
	ParamHost = "3852324f-729b-488a-b46b-6b1a6c72bbb5"
	ParamPort = "77670d06-2b9d-4f19-b7d6-b8d929d6e509"
	ParamPoll = "ee4c0cfc-1fad-451b-8650-21144603c1d5"

	StateConnected = "13998589-d20a-4213-89c5-ee10a008dff8"
	StatePower     = "656caca6-310f-439f-a784-59df65a4d902"
	ActionPower    = StatePower
	ActionParamPow = "9516799b-ad01-4f98-958b-49ef80c599f8"
)

// serviceType is the mDNS service the relay devices announce.
const serviceType = "_http._tcp"

// relayStatus is the device's reply to every relay request.
type relayStatus struct {
	IsOn *bool `json:"ison"`
}

// Plugin drives relays through the broker's shared HTTP client.
//
// Thread Safety:
//   - Not safe for concurrent use. Every call, including HTTP reply
//     callbacks, arrives on the event loop.
type Plugin struct {
	host   integrations.Host
	net    *hardware.NetworkClient
	logger integrations.Logger

	devices  map[string]*device
	services map[string]hardware.ServiceEntry // by instance name
}

type device struct {
	thingID  string
	baseURL  string
	poll     int
	ticks    int
	inFlight bool
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{
		devices:  make(map[string]*device),
		services: make(map[string]hardware.ServiceEntry),
	}
}

// Descriptor implements integrations.Plugin.
func (p *Plugin) Descriptor() integrations.PluginDescriptor {
	return integrations.PluginDescriptor{
		ID:          PluginID,
		Name:        "netdevice",
		DisplayName: "HTTP relay devices",
		Vendors:     []integrations.Vendor{{ID: VendorID, Name: "generic", DisplayName: "Generic"}},
		Resources:   []hardware.Resource{hardware.Network, hardware.Timer, hardware.Discovery},
		ThingClasses: []integrations.ThingClass{{
			ID:            RelayClassID,
			VendorID:      VendorID,
			Name:          "httpRelay",
			DisplayName:   "HTTP relay",
			CreateMethods: []integrations.CreateMethod{integrations.CreateUser, integrations.CreateDiscovery},
			ParamTypes: []integrations.ParamType{
				{ID: ParamHost, Name: "host", Type: integrations.TypeString},
				{ID: ParamPort, Name: "port", Type: integrations.TypeInt, DefaultValue: 80, MinValue: 1, MaxValue: 65535},
				{ID: ParamPoll, Name: "poll", Type: integrations.TypeInt, DefaultValue: 10, MinValue: 1, MaxValue: 3600},
			},
			StateTypes: []integrations.StateType{
				{ID: StateConnected, Name: "connected", Type: integrations.TypeBool, DefaultValue: false},
				{ID: StatePower, Name: "power", Type: integrations.TypeBool, DefaultValue: false, Writable: true},
			},
			ActionTypes: []integrations.ActionType{
				{ID: ActionPower, Name: "power", ParamTypes: []integrations.ParamType{
					{ID: ActionParamPow, Name: "power", Type: integrations.TypeBool},
				}},
			},
		}},
	}
}

// Init implements integrations.Plugin.
func (p *Plugin) Init(host integrations.Host) error {
	p.host = host
	p.logger = host.Logger()
	client, err := host.Hardware().Network()
	if err != nil {
		return fmt.Errorf("netdevice: %w", err)
	}
	p.net = client
	return nil
}

// SetupThing implements integrations.Plugin. The relay is probed once;
// setup finishes when it answers.
func (p *Plugin) SetupThing(info *integrations.SetupInfo) (integrations.Result, error) {
	t := info.Thing
	host := t.Params.String(ParamHost)
	if host == "" {
		return integrations.Done, fmt.Errorf("%w: empty host", integrations.ErrInvalidParameter)
	}
	port, _ := t.Params.Value(ParamPort)
	poll, _ := t.Params.Value(ParamPoll)
	d := &device{
		thingID: t.ID,
		baseURL: "http://" + net.JoinHostPort(host, strconv.Itoa(toInt(port))),
		poll:    toInt(poll),
	}
	p.devices[t.ID] = d

	p.request(d, "", func(st relayStatus, err error) {
		if _, ok := p.devices[d.thingID]; !ok {
			return
		}
		if err != nil {
			delete(p.devices, d.thingID)
			p.host.ThingSetupFinished(d.thingID, fmt.Errorf("%w: %v", integrations.ErrHardwareFailure, err))
			return
		}
		p.host.ThingSetupFinished(d.thingID, nil)
		p.apply(d, st)
	})
	return integrations.Async, nil
}

// ThingRemoved implements integrations.Plugin.
func (p *Plugin) ThingRemoved(thing integrations.Thing) {
	delete(p.devices, thing.ID)
}

// ExecuteAction implements integrations.Plugin.
func (p *Plugin) ExecuteAction(info *integrations.ActionInfo) (integrations.Result, error) {
	d, ok := p.devices[info.Thing.ID]
	if !ok {
		return integrations.Done, integrations.ErrDeviceClassNotFound
	}
	if info.ActionTypeID != ActionPower {
		return integrations.Done, integrations.ErrActionTypeNotFound
	}
	turn := "off"
	if on, _ := info.Params.Value(ActionParamPow); on == true {
		turn = "on"
	}

	actionID := info.ActionID
	p.request(d, "?turn="+turn, func(st relayStatus, err error) {
		if err != nil {
			p.markDisconnected(d)
			p.host.ActionExecutionFinished(actionID, fmt.Errorf("%w: %v", integrations.ErrHardwareFailure, err))
			return
		}
		p.apply(d, st)
		p.host.ActionExecutionFinished(actionID, nil)
	})
	return integrations.Async, nil
}

// DiscoverThings implements integrations.Plugin. Results come from the
// services already seen on the mDNS feed.
func (p *Plugin) DiscoverThings(info *integrations.DiscoveryInfo) (integrations.Result, error) {
	names := make([]string, 0, len(p.services))
	for name := range p.services {
		names = append(names, name)
	}
	sort.Strings(names)

	descs := make([]integrations.ThingDescriptor, 0, len(names))
	for _, name := range names {
		svc := p.services[name]
		host := svc.HostName
		if len(svc.IPv4) > 0 {
			host = svc.IPv4[0].String()
		}
		descs = append(descs, integrations.ThingDescriptor{
			ThingClassID: RelayClassID,
			Title:        svc.Instance,
			Description:  net.JoinHostPort(host, strconv.Itoa(svc.Port)),
			Params: integrations.ParamList{
				{ParamTypeID: ParamHost, Value: host},
				{ParamTypeID: ParamPort, Value: svc.Port},
			},
		})
	}
	p.host.ThingsDiscovered(info.ThingClassID, descs)
	return integrations.Async, nil
}

// OnTick implements hardware.TickConsumer. Each device is polled every
// poll ticks unless a request to it is still in flight.
func (p *Plugin) OnTick(time.Time) {
	ids := make([]string, 0, len(p.devices))
	for id := range p.devices {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		d := p.devices[id]
		d.ticks++
		if d.ticks < d.poll || d.inFlight {
			continue
		}
		d.ticks = 0
		p.request(d, "", func(st relayStatus, err error) {
			if err != nil {
				p.logger.Debug("relay poll failed", "thing_id", d.thingID, "error", err)
				p.markDisconnected(d)
				return
			}
			p.apply(d, st)
		})
	}
}

// OnServiceDiscovered implements hardware.DiscoveryConsumer.
func (p *Plugin) OnServiceDiscovered(svc hardware.ServiceEntry) {
	if svc.Service != serviceType {
		return
	}
	p.services[svc.Instance] = svc
}

// OnServiceRemoved implements hardware.DiscoveryConsumer.
func (p *Plugin) OnServiceRemoved(svc hardware.ServiceEntry) {
	delete(p.services, svc.Instance)
}

// request sends GET /relay/0<query> and decodes the reply on the loop.
func (p *Plugin) request(d *device, query string, fn func(relayStatus, error)) {
	d.inFlight = true
	reply := p.net.Get(context.Background(), d.baseURL+"/relay/0"+query)
	reply.OnFinished(func(resp *hardware.Response, err error) {
		d.inFlight = false
		if err != nil {
			fn(relayStatus{}, err)
			return
		}
		if resp.StatusCode != 200 {
			fn(relayStatus{}, fmt.Errorf("status %d", resp.StatusCode))
			return
		}
		var st relayStatus
		if err := json.Unmarshal(resp.Body, &st); err != nil {
			fn(relayStatus{}, fmt.Errorf("decoding reply: %w", err))
			return
		}
		if st.IsOn == nil {
			fn(relayStatus{}, fmt.Errorf("reply has no ison field"))
			return
		}
		fn(st, nil)
	})
}

func (p *Plugin) apply(d *device, st relayStatus) {
	if _, ok := p.devices[d.thingID]; !ok {
		return
	}
	p.host.StateChanged(d.thingID, StateConnected, true)
	p.host.StateChanged(d.thingID, StatePower, *st.IsOn)
}

func (p *Plugin) markDisconnected(d *device) {
	if _, ok := p.devices[d.thingID]; !ok {
		return
	}
	p.host.StateChanged(d.thingID, StateConnected, false)
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	}
	return 0
}
