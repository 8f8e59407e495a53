package jsonrpc

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/hardware"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
	"github.com/nerrad567/gray-logic-hub/internal/session"
	"github.com/nerrad567/gray-logic-hub/migrations"
)

const (
	lampClassID = "class-lamp"
	statePower  = "state-power"
	actionPower = "state-power"
	paramPower  = "param-power"
)

// testLoop queues posted work and captures timers so tests fire them
// by hand.
type testLoop struct {
	mu     sync.Mutex
	fns    []func()
	timers []func()
}

func (l *testLoop) Post(fn func()) bool {
	l.mu.Lock()
	l.fns = append(l.fns, fn)
	l.mu.Unlock()
	return true
}

func (l *testLoop) AfterFunc(_ time.Duration, fn func()) *time.Timer {
	l.mu.Lock()
	l.timers = append(l.timers, fn)
	l.mu.Unlock()
	return time.NewTimer(time.Hour)
}

func (l *testLoop) drain() {
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

// fireTimers runs every captured timer callback, then drains.
func (l *testLoop) fireTimers() {
	l.mu.Lock()
	timers := l.timers
	l.timers = nil
	l.mu.Unlock()
	for _, fn := range timers {
		fn()
	}
	l.drain()
}

// fakeTransport records what the dispatcher writes.
type fakeTransport struct {
	mu         sync.Mutex
	sent       map[string][][]byte
	terminated []string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{sent: make(map[string][][]byte)}
}

func (f *fakeTransport) Name() string                { return "fake" }
func (f *fakeTransport) Start(context.Context) error { return nil }
func (f *fakeTransport) Stop() error                 { return nil }

func (f *fakeTransport) Send(id string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent[id] = append(f.sent[id], data)
}

func (f *fakeTransport) SendMulti(ids []string, data []byte) {
	for _, id := range ids {
		f.Send(id, data)
	}
}

func (f *fakeTransport) Terminate(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.terminated = append(f.terminated, id)
}

func (f *fakeTransport) messages(t *testing.T, id string) []map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, 0, len(f.sent[id]))
	for _, raw := range f.sent[id] {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("client %s received invalid JSON %q: %v", id, raw, err)
		}
		out = append(out, m)
	}
	return out
}

func (f *fakeTransport) wasTerminated(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, got := range f.terminated {
		if got == id {
			return true
		}
	}
	return false
}

// lampPlugin is a single-class plugin whose setup and actions can be
// made async.
type lampPlugin struct {
	host        integrations.Host
	setupAsync  bool
	setupIDs    []string
	actionAsync bool
	actionIDs   []string
}

func (p *lampPlugin) Descriptor() integrations.PluginDescriptor {
	return integrations.PluginDescriptor{
		ID:      "plugin-lamp",
		Name:    "lamp",
		Vendors: []integrations.Vendor{{ID: "vendor-acme", Name: "acme"}},
		ThingClasses: []integrations.ThingClass{{
			ID:       lampClassID,
			VendorID: "vendor-acme",
			Name:     "lamp",
			StateTypes: []integrations.StateType{
				{ID: statePower, Name: "power", Type: integrations.TypeBool, DefaultValue: false, Writable: true},
			},
			ActionTypes: []integrations.ActionType{{
				ID:         actionPower,
				Name:       "power",
				ParamTypes: []integrations.ParamType{{ID: paramPower, Name: "power", Type: integrations.TypeBool}},
			}},
		}},
	}
}

func (p *lampPlugin) Init(host integrations.Host) error {
	p.host = host
	return nil
}

func (p *lampPlugin) SetupThing(info *integrations.SetupInfo) (integrations.Result, error) {
	p.setupIDs = append(p.setupIDs, info.Thing.ID)
	if p.setupAsync {
		return integrations.Async, nil
	}
	return integrations.Done, nil
}

func (p *lampPlugin) ThingRemoved(integrations.Thing) {}

func (p *lampPlugin) ExecuteAction(info *integrations.ActionInfo) (integrations.Result, error) {
	p.actionIDs = append(p.actionIDs, info.ActionID)
	if p.actionAsync {
		return integrations.Async, nil
	}
	if v, ok := info.Params.Value(paramPower); ok {
		p.host.StateChanged(info.Thing.ID, statePower, v)
	}
	return integrations.Done, nil
}

func (p *lampPlugin) DiscoverThings(*integrations.DiscoveryInfo) (integrations.Result, error) {
	return integrations.Done, nil
}

type harness struct {
	loop      *testLoop
	transport *fakeTransport
	registry  *session.Registry
	ops       *pending.Correlator
	d         *Dispatcher
	rt        *integrations.Runtime
	plugin    *lampPlugin
	nextID    int
}

type harnessOptions struct {
	dispatcher Options
	session    session.Options
	auth       Authenticator
}

func newHarness(t *testing.T, opts harnessOptions) *harness {
	t.Helper()
	h := &harness{
		loop:      &testLoop{},
		transport: newFakeTransport(),
		plugin:    &lampPlugin{},
	}
	h.registry = session.NewRegistry(opts.session)
	h.ops = pending.New(h.loop)
	h.d = New(h.loop, h.registry, h.ops, opts.dispatcher)

	broker := hardware.NewBroker(h.loop, hardware.Options{})
	h.rt = integrations.New(h.loop, h.ops, broker, nil, integrations.Options{})
	if err := h.rt.LoadPlugin(h.plugin); err != nil {
		t.Fatalf("LoadPlugin() error = %v", err)
	}
	h.rt.AddObserver(NewNotifier(h.d))

	jsonrpcNS := NewJSONRPCNamespace(h.d, JSONRPCOptions{
		Server: ServerInfo{Name: "test hub", UUID: "hub-uuid", Version: "1.2.3", Locale: "en_GB"},
		Auth:   opts.auth,
	})
	if err := h.d.Register(jsonrpcNS); err != nil {
		t.Fatalf("Register(JSONRPC) error = %v", err)
	}
	if err := h.d.Register(NewIntegrationsNamespace(h.rt)); err != nil {
		t.Fatalf("Register(Integrations) error = %v", err)
	}
	return h
}

func (h *harness) connect(id string) {
	h.d.ClientConnected(h.transport, id)
	h.loop.drain()
}

// send delivers a raw frame and drains the loop.
func (h *harness) send(client, frame string) {
	h.d.DataAvailable(client, []byte(frame))
	h.loop.drain()
}

// call sends a request and returns its call id.
func (h *harness) call(t *testing.T, client, method string, params map[string]any, token string) int {
	t.Helper()
	h.nextID++
	req := map[string]any{"id": h.nextID, "method": method}
	if params != nil {
		req["params"] = params
	}
	if token != "" {
		req["token"] = token
	}
	raw, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("encoding request: %v", err)
	}
	h.send(client, string(raw))
	return h.nextID
}

// response returns the response to callID, failing if there is not
// exactly one.
func (h *harness) response(t *testing.T, client string, callID int) map[string]any {
	t.Helper()
	var found []map[string]any
	for _, m := range h.transport.messages(t, client) {
		if id, ok := m["id"].(float64); ok && int(id) == callID {
			found = append(found, m)
		}
	}
	if len(found) != 1 {
		t.Fatalf("client %s: %d responses for call %d, want 1 (all: %v)",
			client, len(found), callID, h.transport.messages(t, client))
	}
	return found[0]
}

// waitResponse drains the loop until callID is answered.
func (h *harness) waitResponse(t *testing.T, client string, callID int) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		h.loop.drain()
		for _, m := range h.transport.messages(t, client) {
			if id, ok := m["id"].(float64); ok && int(id) == callID {
				return m
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("no response to call %d", callID)
	return nil
}

func (h *harness) notifications(t *testing.T, client, name string) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, m := range h.transport.messages(t, client) {
		if m["notification"] == name {
			out = append(out, m)
		}
	}
	return out
}

// addLamp adds a lamp over RPC and returns its id.
func (h *harness) addLamp(t *testing.T, client, token string) string {
	t.Helper()
	id := h.call(t, client, "Integrations.AddThing", map[string]any{
		"thingClassId": lampClassID,
		"name":         "Desk lamp",
	}, token)
	resp := h.response(t, client, id)
	params, _ := resp["params"].(map[string]any)
	thingID, _ := params["thingId"].(string)
	if resp["status"] != "success" || thingID == "" {
		t.Fatalf("AddThing response = %v", resp)
	}
	return thingID
}

func wantError(t *testing.T, resp map[string]any, kind string) {
	t.Helper()
	if resp["status"] != "error" || resp["error"] != kind {
		t.Errorf("response = %v, want error %s", resp, kind)
	}
}

func wantSuccess(t *testing.T, resp map[string]any) map[string]any {
	t.Helper()
	if resp["status"] != "success" {
		t.Fatalf("response = %v, want success", resp)
	}
	params, _ := resp["params"].(map[string]any)
	return params
}

// testAuth returns a loaded auth.Manager on a fresh database.
func testAuth(t *testing.T) *auth.Manager {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "hub.db"),
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
	m := auth.NewManager(auth.NewUserRepository(db.DB), auth.NewTokenRepository(db.DB), auth.Options{
		Secret: []byte("test-secret-key-for-jwt-signing-32b"),
	})
	if err := m.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return m
}

func clientName(i int) string { return fmt.Sprintf("client-%d", i) }
