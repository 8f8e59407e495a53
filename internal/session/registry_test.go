package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
)

// fakeTransport records what it was asked to send.
type fakeTransport struct {
	name string

	mu         sync.Mutex
	sent       map[string][][]byte
	multiCalls [][]string
	terminated []string
}

func newFakeTransport(name string) *fakeTransport {
	return &fakeTransport{name: name, sent: make(map[string][][]byte)}
}

func (f *fakeTransport) Name() string                { return f.name }
func (f *fakeTransport) Start(context.Context) error { return nil }
func (f *fakeTransport) Stop() error                 { return nil }
func (f *fakeTransport) Terminate(id string)         { f.terminated = append(f.terminated, id) }
func (f *fakeTransport) Send(id string, data []byte) { f.sent[id] = append(f.sent[id], data) }
func (f *fakeTransport) SendMulti(ids []string, data []byte) {
	f.multiCalls = append(f.multiCalls, append([]string(nil), ids...))
	for _, id := range ids {
		f.sent[id] = append(f.sent[id], data)
	}
}

// fakeValidator accepts exactly one token.
type fakeValidator struct {
	hasUsers bool
	valid    string
}

func (v *fakeValidator) HasUsers() bool { return v.hasUsers }
func (v *fakeValidator) ValidateToken(token string) (auth.Identity, error) {
	if token == v.valid && token != "" {
		return auth.Identity{Username: "darren", TokenID: "tok-1"}, nil
	}
	return auth.Identity{}, auth.ErrTokenInvalid
}

func TestRegistry_RegisterAndRoute(t *testing.T) {
	r := NewRegistry(Options{})
	tcp := newFakeTransport("tcp")

	s := r.RegisterClient(tcp, "c1")
	if s.ID != "c1" || s.Transport != tcp || s.ConnectedAt.IsZero() {
		t.Errorf("session = %+v", s)
	}

	got, ok := r.TransportFor("c1")
	if !ok || got != tcp {
		t.Errorf("TransportFor() = %v, %v", got, ok)
	}

	r.Send("c1", []byte("hello"))
	r.Send("gone", []byte("dropped"))
	if len(tcp.sent["c1"]) != 1 || len(tcp.sent["gone"]) != 0 {
		t.Errorf("sent = %v", tcp.sent)
	}

	r.Terminate("c1")
	if len(tcp.terminated) != 1 {
		t.Errorf("terminated = %v", tcp.terminated)
	}

	if !r.UnregisterClient("c1") {
		t.Error("UnregisterClient() = false for live client")
	}
	if r.UnregisterClient("c1") {
		t.Error("UnregisterClient() = true twice")
	}
	if _, ok := r.TransportFor("c1"); ok {
		t.Error("TransportFor() found an unregistered client")
	}
}

func TestRegistry_BroadcastGroupsByTransport(t *testing.T) {
	r := NewRegistry(Options{})
	tcp, ws := newFakeTransport("tcp"), newFakeTransport("websocket")
	r.RegisterClient(tcp, "a")
	r.RegisterClient(tcp, "b")
	r.RegisterClient(ws, "c")

	r.Broadcast([]string{"a", "b", "c", "missing"}, []byte("n"))

	if len(tcp.multiCalls) != 1 || len(tcp.multiCalls[0]) != 2 {
		t.Errorf("tcp SendMulti calls = %v, want one call with 2 ids", tcp.multiCalls)
	}
	if len(ws.multiCalls) != 1 || ws.multiCalls[0][0] != "c" {
		t.Errorf("ws SendMulti calls = %v", ws.multiCalls)
	}

	counts := r.CountByTransport()
	if counts["tcp"] != 2 || counts["websocket"] != 1 || r.Count() != 3 {
		t.Errorf("counts = %v, Count() = %d", counts, r.Count())
	}
}

func TestRegistry_Subscribers(t *testing.T) {
	r := NewRegistry(Options{})
	tr := newFakeTransport("tcp")
	for _, id := range []string{"a", "b", "c"} {
		r.RegisterClient(tr, id)
	}

	if err := r.SetNotificationNamespaces("a", []string{"Integrations"}); err != nil {
		t.Fatalf("SetNotificationNamespaces() error = %v", err)
	}
	if err := r.SetNotificationNamespaces("b", []string{"Integrations", "JSONRPC"}); err != nil {
		t.Fatalf("SetNotificationNamespaces() error = %v", err)
	}
	if err := r.SetNotificationNamespaces("zzz", nil); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("unknown client error = %v", err)
	}

	subs := r.Subscribers("Integrations")
	sort.Strings(subs)
	if len(subs) != 2 || subs[0] != "a" || subs[1] != "b" {
		t.Errorf("Subscribers(Integrations) = %v", subs)
	}

	s, _ := r.Get("b")
	if ns := s.Namespaces(); len(ns) != 2 || ns[0] != "Integrations" {
		t.Errorf("Namespaces() = %v", ns)
	}

	// Replacing subscriptions drops the old set.
	if err := r.SetNotificationNamespaces("a", nil); err != nil {
		t.Fatalf("SetNotificationNamespaces() error = %v", err)
	}
	if subs := r.Subscribers("Integrations"); len(subs) != 1 {
		t.Errorf("Subscribers after unsubscribe = %v", subs)
	}
}

func TestRegistry_Authorize(t *testing.T) {
	tests := []struct {
		name     string
		required bool
		hasUsers bool
		method   string
		token    string
		wantErr  bool
	}{
		{"auth disabled", false, true, "Integrations.GetThings", "", false},
		{"setup: hello exempt", true, false, "JSONRPC.Hello", "", false},
		{"setup: create user exempt", true, false, "JSONRPC.CreateUser", "", false},
		{"setup: authenticate not exempt", true, false, "JSONRPC.Authenticate", "", true},
		{"setup: other call needs token", true, false, "Integrations.GetThings", "", true},
		{"login: authenticate exempt", true, true, "JSONRPC.Authenticate", "", false},
		{"login: introspect exempt", true, true, "JSONRPC.Introspect", "", false},
		{"login: create user needs token", true, true, "JSONRPC.CreateUser", "", true},
		{"login: bad token", true, true, "Integrations.GetThings", "forged", true},
		{"login: good token", true, true, "Integrations.GetThings", "good", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry(Options{
				AuthenticationRequired: tt.required,
				Validator:              &fakeValidator{hasUsers: tt.hasUsers, valid: "good"},
			})
			s := r.RegisterClient(newFakeTransport("tcp"), "c")

			err := r.Authorize(s, tt.method, tt.token)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Authorize() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnauthorized) {
				t.Errorf("error = %v, want ErrUnauthorized", err)
			}
			if tt.token == "good" && s.Username() != "darren" {
				t.Errorf("Username() = %q after valid token", s.Username())
			}
		})
	}
}

func TestSession_RateLimit(t *testing.T) {
	r := NewRegistry(Options{RequestsPerMinute: 1, Burst: 2})
	s := r.RegisterClient(newFakeTransport("tcp"), "c")

	if !s.Allow() || !s.Allow() {
		t.Fatal("burst of 2 not allowed")
	}
	if s.Allow() {
		t.Error("third call inside a minute allowed")
	}

	unlimited := NewRegistry(Options{}).RegisterClient(newFakeTransport("tcp"), "u")
	for range 100 {
		if !unlimited.Allow() {
			t.Fatal("unlimited session was limited")
		}
	}
}
