// Package blebeacon tracks the presence of Bluetooth LE beacons (tags,
// phones, wearables) seen by the hub's shared BLE scanner.
package blebeacon

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
)

// Plugin, vendor and class ids.
const (
	PluginID      = "0e2a7c64-6a3b-4c56-9d0b-50b6b1c7e2f1"
	VendorID      = "b2d3f5e1-8c0a-4a8e-9a1c-6f35d2a1e9c4"
	BeaconClassID = "1f6d3a2e-5b7c-4e8f-a0d1-2c3b4a5f6e7d"
)

// Param, state and event ids.
const (
	ParamAddress         = "7a1e2b3c-4d5e-4f60-8a9b-0c1d2e3f4a5b"
	ParamPresenceTimeout = "8b2f3c4d-5e6f-4a71-9b0c-1d2e3f4a5b6c"

	StatePresent = "9c3a4d5e-6f70-4b82-8c1d-2e3f4a5b6c7d"
	StateRSSI    = "ad4b5e6f-7081-4c93-9d2e-3f4a5b6c7d8e"

	EventEntered = "be5c6f70-8192-4da4-8e3f-4a5b6c7d8e9f"
	EventLeft    = "cf6d7081-92a3-4eb5-9f4a-5b6c7d8e9fa0"
)

// recentWindow is how far back discovery looks for advertisers.
const recentWindow = time.Minute

type sighting struct {
	name string
	rssi int16
	at   time.Time
}

type beacon struct {
	thingID  string
	address  string
	timeout  time.Duration
	present  bool
	lastSeen time.Time
}

// Plugin reports a beacon present while it keeps advertising and absent
// once it has been silent for its presence timeout.
//
// Thread Safety:
//   - Not safe for concurrent use. Advertisements and ticks arrive on
//     the event loop like every other plugin call.
type Plugin struct {
	host integrations.Host
	now  func() time.Time

	beacons map[string]*beacon  // by thing id
	seen    map[string]sighting // by address
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{
		now:     time.Now,
		beacons: make(map[string]*beacon),
		seen:    make(map[string]sighting),
	}
}

// Descriptor implements integrations.Plugin.
func (p *Plugin) Descriptor() integrations.PluginDescriptor {
	return integrations.PluginDescriptor{
		ID:          PluginID,
		Name:        "blebeacon",
		DisplayName: "Bluetooth LE presence",
		Vendors:     []integrations.Vendor{{ID: VendorID, Name: "generic", DisplayName: "Generic"}},
		Resources:   []hardware.Resource{hardware.BluetoothLE, hardware.Timer},
		ThingClasses: []integrations.ThingClass{{
			ID:            BeaconClassID,
			VendorID:      VendorID,
			Name:          "bleBeacon",
			DisplayName:   "BLE beacon",
			CreateMethods: []integrations.CreateMethod{integrations.CreateUser, integrations.CreateDiscovery},
			ParamTypes: []integrations.ParamType{
				{ID: ParamAddress, Name: "address", Type: integrations.TypeString},
				{ID: ParamPresenceTimeout, Name: "presenceTimeout", Type: integrations.TypeInt, DefaultValue: 30, MinValue: 5, MaxValue: 3600},
			},
			StateTypes: []integrations.StateType{
				{ID: StatePresent, Name: "present", Type: integrations.TypeBool, DefaultValue: false},
				{ID: StateRSSI, Name: "rssi", Type: integrations.TypeInt, DefaultValue: 0, Unit: "dBm"},
			},
			EventTypes: []integrations.EventType{
				{ID: EventEntered, Name: "entered"},
				{ID: EventLeft, Name: "left"},
			},
		}},
	}
}

// Init implements integrations.Plugin.
func (p *Plugin) Init(host integrations.Host) error {
	p.host = host
	return nil
}

// SetupThing implements integrations.Plugin.
func (p *Plugin) SetupThing(info *integrations.SetupInfo) (integrations.Result, error) {
	t := info.Thing
	addr := normalizeAddress(t.Params.String(ParamAddress))
	if !validAddress(addr) {
		return integrations.Done, fmt.Errorf("%w: bad address %q", integrations.ErrInvalidParameter, t.Params.String(ParamAddress))
	}
	timeout, _ := t.Params.Value(ParamPresenceTimeout)
	secs, _ := timeout.(float64)
	p.beacons[t.ID] = &beacon{
		thingID: t.ID,
		address: addr,
		timeout: time.Duration(secs) * time.Second,
	}
	if s, ok := p.seen[addr]; ok {
		p.observe(p.beacons[t.ID], s)
	}
	return integrations.Done, nil
}

// ThingRemoved implements integrations.Plugin.
func (p *Plugin) ThingRemoved(thing integrations.Thing) {
	delete(p.beacons, thing.ID)
}

// ExecuteAction implements integrations.Plugin. Beacons have no actions.
func (p *Plugin) ExecuteAction(*integrations.ActionInfo) (integrations.Result, error) {
	return integrations.Done, integrations.ErrActionTypeNotFound
}

// DiscoverThings implements integrations.Plugin. It proposes every
// device heard within the last minute, strongest signal first.
func (p *Plugin) DiscoverThings(info *integrations.DiscoveryInfo) (integrations.Result, error) {
	cutoff := p.now().Add(-recentWindow)
	addrs := make([]string, 0, len(p.seen))
	for addr, s := range p.seen {
		if s.at.After(cutoff) {
			addrs = append(addrs, addr)
		}
	}
	sort.Slice(addrs, func(i, j int) bool {
		a, b := p.seen[addrs[i]], p.seen[addrs[j]]
		if a.rssi != b.rssi {
			return a.rssi > b.rssi
		}
		return addrs[i] < addrs[j]
	})

	descs := make([]integrations.ThingDescriptor, 0, len(addrs))
	for _, addr := range addrs {
		s := p.seen[addr]
		title := s.name
		if title == "" {
			title = addr
		}
		descs = append(descs, integrations.ThingDescriptor{
			ThingClassID: BeaconClassID,
			Title:        title,
			Description:  fmt.Sprintf("%s (%d dBm)", addr, s.rssi),
			Params:       integrations.ParamList{{ParamTypeID: ParamAddress, Value: addr}},
		})
	}
	p.host.ThingsDiscovered(info.ThingClassID, descs)
	return integrations.Async, nil
}

// OnAdvertisement implements hardware.BLEConsumer.
func (p *Plugin) OnAdvertisement(adv hardware.Advertisement) {
	addr := normalizeAddress(adv.Address)
	s := sighting{name: adv.Name, rssi: adv.RSSI, at: p.now()}
	if s.name == "" {
		s.name = p.seen[addr].name
	}
	p.seen[addr] = s

	for _, b := range p.sorted() {
		if b.address == addr {
			p.observe(b, s)
		}
	}
}

// OnTick implements hardware.TickConsumer. Silent beacons leave, and
// sightings too old for discovery are forgotten.
func (p *Plugin) OnTick(now time.Time) {
	for _, b := range p.sorted() {
		if b.present && now.Sub(b.lastSeen) >= b.timeout {
			b.present = false
			p.host.StateChanged(b.thingID, StatePresent, false)
			p.host.EventOccurred(b.thingID, EventLeft, nil)
		}
	}
	for addr, s := range p.seen {
		if now.Sub(s.at) > recentWindow && !p.tracked(addr) {
			delete(p.seen, addr)
		}
	}
}

func (p *Plugin) observe(b *beacon, s sighting) {
	b.lastSeen = s.at
	p.host.StateChanged(b.thingID, StateRSSI, int(s.rssi))
	if !b.present {
		b.present = true
		p.host.StateChanged(b.thingID, StatePresent, true)
		p.host.EventOccurred(b.thingID, EventEntered, nil)
	}
}

func (p *Plugin) tracked(addr string) bool {
	for _, b := range p.beacons {
		if b.address == addr {
			return true
		}
	}
	return false
}

func (p *Plugin) sorted() []*beacon {
	out := make([]*beacon, 0, len(p.beacons))
	for _, b := range p.beacons {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].thingID < out[j].thingID })
	return out
}

func normalizeAddress(addr string) string {
	return strings.ToUpper(strings.TrimSpace(addr))
}

// validAddress accepts the colon-separated MAC form "AA:BB:CC:DD:EE:FF".
func validAddress(addr string) bool {
	parts := strings.Split(addr, ":")
	if len(parts) != 6 {
		return false
	}
	for _, part := range parts {
		if len(part) != 2 || strings.Trim(part, "0123456789ABCDEF") != "" {
			return false
		}
	}
	return true
}
