package integrations

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

const (
	vendorID      = "vendor-acme"
	lampClassID   = "class-lamp"
	bridgeClassID = "class-bridge"
	bulbClassID   = "class-bulb"

	paramHost = "param-host"
	paramPort = "param-port"

	statePower     = "state-power"
	stateReachable = "state-reachable"
	eventPressed   = "event-pressed"
	actionPower    = "state-power"
	actionBlink    = "action-blink"
	paramPowerVal  = "param-power"
	paramBlinkN    = "param-count"
)

var errDeviceOffline = errors.New("device offline")

// queueLoop collects posted work until the test drains it.
type queueLoop struct {
	mu  sync.Mutex
	fns []func()
}

func (l *queueLoop) Post(fn func()) bool {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
	return true
}

func (l *queueLoop) drain() {
	for {
		l.mu.Lock()
		if len(l.fns) == 0 {
			l.mu.Unlock()
			return
		}
		fn := l.fns[0]
		l.fns = l.fns[1:]
		l.mu.Unlock()
		fn()
	}
}

// manualScheduler captures deadline callbacks so tests fire them by hand.
type manualScheduler struct {
	fns []func()
}

func (s *manualScheduler) AfterFunc(_ time.Duration, fn func()) *time.Timer {
	s.fns = append(s.fns, fn)
	return time.NewTimer(time.Hour)
}

func (s *manualScheduler) fireAll() {
	fns := s.fns
	s.fns = nil
	for _, fn := range fns {
		fn()
	}
}

// fakePlugin is a scriptable plugin. Zero values complete synchronously.
type fakePlugin struct {
	desc PluginDescriptor
	host Host

	setupResult   Result
	setupErr      error
	actionResult  Result
	actionErr     error
	discoverAsync bool
	panicOn       string

	setups  []SetupInfo
	actions []ActionInfo
	removed []string
}

func newFakePlugin() *fakePlugin {
	return &fakePlugin{desc: PluginDescriptor{
		ID:      "plugin-fake",
		Name:    "fake",
		Vendors: []Vendor{{ID: vendorID, Name: "acme", DisplayName: "Acme"}},
		ThingClasses: []ThingClass{
			{
				ID:            lampClassID,
				VendorID:      vendorID,
				Name:          "lamp",
				DisplayName:   "Lamp",
				CreateMethods: []CreateMethod{CreateUser, CreateDiscovery},
				ParamTypes: []ParamType{
					{ID: paramHost, Name: "host", Type: TypeString},
					{ID: paramPort, Name: "port", Type: TypeInt, DefaultValue: 80, MinValue: 1, MaxValue: 65535},
				},
				StateTypes: []StateType{
					{ID: statePower, Name: "power", Type: TypeBool, DefaultValue: false, Writable: true},
					{ID: stateReachable, Name: "reachable", Type: TypeBool, DefaultValue: false},
				},
				EventTypes: []EventType{{ID: eventPressed, Name: "pressed"}},
				ActionTypes: []ActionType{
					{ID: actionPower, Name: "power", ParamTypes: []ParamType{{ID: paramPowerVal, Name: "power", Type: TypeBool}}},
					{ID: actionBlink, Name: "blink", ParamTypes: []ParamType{{ID: paramBlinkN, Name: "count", Type: TypeInt, DefaultValue: 3}}},
				},
			},
			{
				ID:            bridgeClassID,
				VendorID:      vendorID,
				Name:          "bridge",
				CreateMethods: []CreateMethod{CreateUser},
			},
			{
				ID:            bulbClassID,
				VendorID:      vendorID,
				Name:          "bulb",
				CreateMethods: []CreateMethod{CreateAuto},
				StateTypes:    []StateType{{ID: statePower, Name: "power", Type: TypeBool, DefaultValue: false}},
			},
		},
	}}
}

func (p *fakePlugin) Descriptor() PluginDescriptor { return p.desc }

func (p *fakePlugin) Init(host Host) error {
	p.host = host
	return nil
}

func (p *fakePlugin) SetupThing(info *SetupInfo) (Result, error) {
	if p.panicOn == "setup" {
		panic("setup exploded")
	}
	p.setups = append(p.setups, *info)
	return p.setupResult, p.setupErr
}

func (p *fakePlugin) ThingRemoved(thing Thing) {
	p.removed = append(p.removed, thing.ID)
}

func (p *fakePlugin) ExecuteAction(info *ActionInfo) (Result, error) {
	if p.panicOn == "action" {
		panic("action exploded")
	}
	p.actions = append(p.actions, *info)
	return p.actionResult, p.actionErr
}

func (p *fakePlugin) DiscoverThings(*DiscoveryInfo) (Result, error) {
	if p.discoverAsync {
		return Async, nil
	}
	return Done, nil
}

// recordingObserver remembers every notification.
type recordingObserver struct {
	added   []string
	removed []string
	changed []string
	states  []StateValue
	events  []Event
}

func (o *recordingObserver) ThingAdded(t Thing)     { o.added = append(o.added, t.ID) }
func (o *recordingObserver) ThingRemoved(id string) { o.removed = append(o.removed, id) }
func (o *recordingObserver) ThingChanged(t Thing)   { o.changed = append(o.changed, t.ID) }
func (o *recordingObserver) StateChanged(_ Thing, id string, v any) {
	o.states = append(o.states, StateValue{StateTypeID: id, Value: v})
}
func (o *recordingObserver) EventTriggered(_ Thing, e Event) { o.events = append(o.events, e) }

type harness struct {
	loop   *queueLoop
	sched  *manualScheduler
	ops    *pending.Correlator
	rt     *Runtime
	plugin *fakePlugin
	obs    *recordingObserver
}

func newHarness(t *testing.T, store Store, broker Broker) *harness {
	t.Helper()
	h := &harness{
		loop:   &queueLoop{},
		sched:  &manualScheduler{},
		plugin: newFakePlugin(),
		obs:    &recordingObserver{},
	}
	h.ops = pending.New(h.sched)
	if broker == nil {
		broker = hardware.NewBroker(h.loop, hardware.Options{})
	}
	h.rt = New(h.loop, h.ops, broker, store, Options{})
	h.rt.AddObserver(h.obs)
	if err := h.rt.LoadPlugin(h.plugin); err != nil {
		t.Fatalf("LoadPlugin() error = %v", err)
	}
	return h
}

// addLamp adds a lamp synchronously and returns its id.
func (h *harness) addLamp(t *testing.T) string {
	t.Helper()
	out, err := h.rt.AddThing(AddThingRequest{
		ThingClassID: lampClassID,
		Name:         "Desk lamp",
		Params:       ParamList{{ParamTypeID: paramHost, Value: "10.0.0.5"}},
	})
	if err != nil {
		t.Fatalf("AddThing() error = %v", err)
	}
	id, _ := out.Params["thingId"].(string)
	if id == "" {
		t.Fatalf("AddThing() params = %v", out.Params)
	}
	return id
}

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "things.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if _, err := db.Migrate(context.Background(), migrations.FS); err != nil {
		t.Fatalf("applying migrations: %v", err)
	}
	return NewSQLiteStore(db.DB)
}
