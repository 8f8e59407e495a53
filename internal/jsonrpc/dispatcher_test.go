package jsonrpc

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/session"
)

func TestDispatcher_SyncCall(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.connect("a")

	id := h.call(t, "a", "JSONRPC.Version", nil, "")
	params := wantSuccess(t, h.response(t, "a", id))
	if params["version"] != "1.2.3" || params["protocolVersion"] != ProtocolVersion {
		t.Errorf("Version params = %v", params)
	}
}

func TestDispatcher_UnrecoverableIDTerminates(t *testing.T) {
	tests := []struct {
		name  string
		frame string
	}{
		{"not json", `{"id": 1, "method": `},
		{"missing id", `{"method":"JSONRPC.Version"}`},
		{"string id", `{"id":"7","method":"JSONRPC.Version"}`},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, harnessOptions{})
			client := clientName(i)
			h.connect(client)
			h.send(client, tt.frame)

			resp := h.response(t, client, -1)
			wantError(t, resp, KindInvalidRequest)
			if !h.transport.wasTerminated(client) {
				t.Error("client was not terminated")
			}
		})
	}
}

func TestDispatcher_ProtocolErrors(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.connect("a")

	tests := []struct {
		name   string
		frame  string
		callID int
		want   string
	}{
		{"no namespace", `{"id":10,"method":"Version"}`, 10, KindInvalidMethod},
		{"unknown namespace", `{"id":11,"method":"Rules.GetRules"}`, 11, KindNoSuchNamespace},
		{"unknown method", `{"id":12,"method":"JSONRPC.Reboot"}`, 12, KindNoSuchMethod},
		{"params not object", `{"id":13,"method":"JSONRPC.Version","params":[1,2]}`, 13, KindInvalidParams},
		{"schema violation", `{"id":14,"method":"Integrations.EditThing","params":{"thingId":"x","name":5}}`, 14, KindInvalidParams},
		{"missing required", `{"id":15,"method":"Integrations.RemoveThing","params":{}}`, 15, KindInvalidParams},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.send("a", tt.frame)
			wantError(t, h.response(t, "a", tt.callID), tt.want)
		})
	}
	if h.transport.wasTerminated("a") {
		t.Error("client terminated for recoverable errors")
	}
}

func TestDispatcher_UnknownClientFramesIgnored(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.send("ghost", `{"id":1,"method":"JSONRPC.Version"}`)
	if msgs := h.transport.messages(t, "ghost"); len(msgs) != 0 {
		t.Errorf("ghost received %v", msgs)
	}
}

func TestDispatcher_HandshakeRequired(t *testing.T) {
	h := newHarness(t, harnessOptions{dispatcher: Options{RequireHello: true}})

	h.connect("rude")
	id := h.call(t, "rude", "JSONRPC.Version", nil, "")
	wantError(t, h.response(t, "rude", id), KindHandshakeRequired)
	if !h.transport.wasTerminated("rude") {
		t.Error("client calling before Hello was not terminated")
	}

	h.connect("polite")
	id = h.call(t, "polite", "JSONRPC.Hello", map[string]any{"locale": "de_DE"}, "")
	params := wantSuccess(t, h.response(t, "polite", id))
	if params["locale"] != "de_DE" || params["uuid"] != "hub-uuid" {
		t.Errorf("Hello params = %v", params)
	}
	id = h.call(t, "polite", "JSONRPC.Version", nil, "")
	wantSuccess(t, h.response(t, "polite", id))

	h.connect("silent")
	h.loop.fireTimers()
	if !h.transport.wasTerminated("silent") {
		t.Error("client that never said Hello was not terminated")
	}
	if h.transport.wasTerminated("polite") {
		t.Error("client that said Hello was terminated")
	}
}

func TestDispatcher_RateLimit(t *testing.T) {
	h := newHarness(t, harnessOptions{session: session.Options{RequestsPerMinute: 1, Burst: 1}})
	h.connect("a")

	first := h.call(t, "a", "JSONRPC.Version", nil, "")
	second := h.call(t, "a", "JSONRPC.Version", nil, "")
	wantSuccess(t, h.response(t, "a", first))
	wantError(t, h.response(t, "a", second), KindRateLimited)
}

func TestDispatcher_HandlerPanic(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	err := h.d.Register(&Namespace{
		Name: "Broken",
		Methods: map[string]*Method{
			"Explode": {Handler: func(*Call, map[string]any) Reply { panic("boom") }},
		},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	h.connect("a")

	id := h.call(t, "a", "Broken.Explode", nil, "")
	wantError(t, h.response(t, "a", id), KindInternalError)

	id = h.call(t, "a", "JSONRPC.Version", nil, "")
	wantSuccess(t, h.response(t, "a", id))
}

func TestDispatcher_RegisterDuplicate(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	if err := h.d.Register(&Namespace{Name: "JSONRPC"}); err == nil {
		t.Error("Register() accepted a duplicate namespace")
	}
}

func TestDispatcher_AsyncActionResumes(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.connect("a")
	thingID := h.addLamp(t, "a", "")

	h.plugin.actionAsync = true
	id := h.call(t, "a", "Integrations.ExecuteAction", map[string]any{
		"thingId":      thingID,
		"actionTypeId": actionPower,
		"params":       []any{map[string]any{"paramTypeId": paramPower, "value": true}},
	}, "")
	for _, m := range h.transport.messages(t, "a") {
		if m["id"] == float64(id) {
			t.Fatalf("response sent before the action finished: %v", m)
		}
	}

	h.plugin.host.ActionExecutionFinished(h.plugin.actionIDs[0], nil)
	h.loop.drain()
	wantSuccess(t, h.response(t, "a", id))

	// A late second completion must not produce another response.
	h.plugin.host.ActionExecutionFinished(h.plugin.actionIDs[0], nil)
	h.loop.fireTimers()
	h.response(t, "a", id)
}

func TestDispatcher_AsyncTimeoutIsHardwareFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.connect("a")
	thingID := h.addLamp(t, "a", "")

	h.plugin.actionAsync = true
	id := h.call(t, "a", "Integrations.ExecuteAction", map[string]any{
		"thingId":      thingID,
		"actionTypeId": actionPower,
		"params":       []any{map[string]any{"paramTypeId": paramPower, "value": false}},
	}, "")
	h.loop.fireTimers()
	wantError(t, h.response(t, "a", id), "HardwareFailure")

	h.plugin.host.ActionExecutionFinished(h.plugin.actionIDs[0], nil)
	h.loop.drain()
	h.response(t, "a", id)
}

func TestDispatcher_AsyncSetupFailure(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.connect("a")

	h.plugin.setupAsync = true
	id := h.call(t, "a", "Integrations.AddThing", map[string]any{
		"thingClassId": lampClassID,
		"name":         "Porch lamp",
	}, "")
	for _, m := range h.transport.messages(t, "a") {
		if m["id"] == float64(id) {
			t.Fatalf("response sent before setup finished: %v", m)
		}
	}
	if h.ops.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", h.ops.Pending())
	}

	h.plugin.host.ThingSetupFinished(h.plugin.setupIDs[0], errors.New("lamp offline"))
	h.loop.drain()
	wantError(t, h.response(t, "a", id), "SetupFailed")

	// A second report changes nothing on the wire.
	h.plugin.host.ThingSetupFinished(h.plugin.setupIDs[0], nil)
	h.loop.fireTimers()
	h.response(t, "a", id)
	if h.ops.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", h.ops.Pending())
	}
}

func TestDispatcher_AsyncSetupTimeout(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.connect("a")

	h.plugin.setupAsync = true
	id := h.call(t, "a", "Integrations.AddThing", map[string]any{"thingClassId": lampClassID}, "")
	h.loop.fireTimers()
	wantError(t, h.response(t, "a", id), "HardwareFailure")
	if h.ops.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", h.ops.Pending())
	}
	if len(h.rt.Things()) != 0 {
		t.Error("timed-out thing entered the arena")
	}
}

func TestDispatcher_DeferredResponseDroppedAfterDisconnect(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.connect("a")
	thingID := h.addLamp(t, "a", "")

	h.plugin.actionAsync = true
	h.call(t, "a", "Integrations.ExecuteAction", map[string]any{
		"thingId":      thingID,
		"actionTypeId": actionPower,
		"params":       []any{map[string]any{"paramTypeId": paramPower, "value": true}},
	}, "")
	before := len(h.transport.messages(t, "a"))

	h.d.ClientDisconnected("a")
	h.loop.drain()
	h.plugin.host.ActionExecutionFinished(h.plugin.actionIDs[0], nil)
	h.loop.drain()

	if after := len(h.transport.messages(t, "a")); after != before {
		t.Errorf("departed client received %d more messages", after-before)
	}
	if h.ops.Pending() != 0 {
		t.Errorf("Pending() = %d after completion", h.ops.Pending())
	}
}

func TestDispatcher_DomainErrorKinds(t *testing.T) {
	h := newHarness(t, harnessOptions{})
	h.connect("a")
	thingID := h.addLamp(t, "a", "")

	id := h.call(t, "a", "Integrations.ExecuteAction", map[string]any{
		"thingId": "missing", "actionTypeId": actionPower,
	}, "")
	wantError(t, h.response(t, "a", id), "DeviceClassNotFound")

	id = h.call(t, "a", "Integrations.ExecuteAction", map[string]any{
		"thingId": thingID, "actionTypeId": "nope",
	}, "")
	wantError(t, h.response(t, "a", id), "ActionTypeNotFound")

	id = h.call(t, "a", "Integrations.ExecuteAction", map[string]any{
		"thingId": thingID, "actionTypeId": actionPower,
	}, "")
	wantError(t, h.response(t, "a", id), "MissingParameter")

	id = h.call(t, "a", "Integrations.AddThing", map[string]any{"thingClassId": "class-unknown"}, "")
	wantError(t, h.response(t, "a", id), "DeviceClassNotFound")
}
