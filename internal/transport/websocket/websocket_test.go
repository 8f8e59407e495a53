package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

type event struct {
	kind string
	id   string
	data string
}

type chanHandler struct {
	events chan event
}

func newChanHandler() *chanHandler { return &chanHandler{events: make(chan event, 64)} }

func (h *chanHandler) ClientConnected(_ transport.Transport, id string) {
	h.events <- event{kind: "connected", id: id}
}
func (h *chanHandler) DataAvailable(id string, frame []byte) {
	h.events <- event{kind: "data", id: id, data: string(frame)}
}
func (h *chanHandler) ClientDisconnected(id string) {
	h.events <- event{kind: "disconnected", id: id}
}

func (h *chanHandler) next(t *testing.T, kind string) event {
	t.Helper()
	select {
	case ev := <-h.events:
		if ev.kind != kind {
			t.Fatalf("event = %+v, want %s", ev, kind)
		}
		return ev
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for %s", kind)
	}
	return event{}
}

func setup(t *testing.T) (*Transport, *chanHandler, string) {
	t.Helper()
	h := newChanHandler()
	tr := New(Options{PingInterval: time.Second, PongTimeout: time.Second}, h)
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	srv := httptest.NewServer(tr)
	t.Cleanup(func() {
		tr.Stop() //nolint:errcheck // test cleanup
		srv.Close()
	})
	return tr, h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestTransport_RoundTrip(t *testing.T) {
	tr, h, url := setup(t)
	conn := dial(t, url)

	id := h.next(t, "connected").id

	if err := conn.WriteMessage(websocket.TextMessage, []byte(` {"id":1,"method":"JSONRPC.Hello"} `)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	ev := h.next(t, "data")
	if ev.id != id || ev.data != `{"id":1,"method":"JSONRPC.Hello"}` {
		t.Errorf("data event = %+v", ev)
	}

	tr.Send(id, []byte(`{"id":1,"status":"success"}`))
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(msg) != `{"id":1,"status":"success"}` {
		t.Errorf("message = %q", msg)
	}
	if tr.ClientCount() != 1 {
		t.Errorf("ClientCount() = %d, want 1", tr.ClientCount())
	}
}

func TestTransport_IgnoresBinaryAndBlankFrames(t *testing.T) {
	_, h, url := setup(t)
	conn := dial(t, url)
	h.next(t, "connected")

	conn.WriteMessage(websocket.BinaryMessage, []byte(`{"id":9}`))
	conn.WriteMessage(websocket.TextMessage, []byte("   "))
	conn.WriteMessage(websocket.TextMessage, []byte(`{"id":2}`))

	if ev := h.next(t, "data"); ev.data != `{"id":2}` {
		t.Errorf("data = %q, want only the text frame", ev.data)
	}
}

func TestTransport_TerminateFlushesThenCloses(t *testing.T) {
	tr, h, url := setup(t)
	conn := dial(t, url)
	id := h.next(t, "connected").id

	tr.Send(id, []byte(`{"id":-1,"status":"error"}`))
	tr.Terminate(id)

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(msg) != `{"id":-1,"status":"error"}` {
		t.Errorf("message = %q", msg)
	}
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Error("expected connection to close after terminate")
	}
	h.next(t, "disconnected")
}

func TestTransport_ClientCloseReportsDisconnect(t *testing.T) {
	tr, h, url := setup(t)
	conn := dial(t, url)
	id := h.next(t, "connected").id

	conn.Close()
	if ev := h.next(t, "disconnected"); ev.id != id {
		t.Errorf("disconnected id = %q, want %q", ev.id, id)
	}

	// Sends to a gone client are dropped silently.
	tr.Send(id, []byte(`{}`))
	if tr.ClientCount() != 0 {
		t.Errorf("ClientCount() = %d, want 0", tr.ClientCount())
	}
}

func TestTransport_RejectsWhenStopped(t *testing.T) {
	tr := New(Options{}, newChanHandler())
	rec := httptest.NewRecorder()
	tr.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}
}
