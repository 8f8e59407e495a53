package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-hub/internal/infrastructure/metrics"
)

func newTestServer(t *testing.T, deps Deps) *httptest.Server {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logging.Discard()
	}
	s, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, body
}

func TestNewRequiresLogger(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() without logger succeeded")
	}
	_, err := New(Deps{Logger: logging.Discard(), WebSocket: http.NotFoundHandler()})
	if err == nil {
		t.Error("New() with websocket but no path succeeded")
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, Deps{Version: "1.2.3"})

	resp, body := get(t, srv.URL+"/api/v1/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
	var got map[string]any
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got["status"] != "ok" || got["version"] != "1.2.3" {
		t.Errorf("body = %v", got)
	}
}

func TestStatus(t *testing.T) {
	srv := newTestServer(t, Deps{
		Version: "1.2.3",
		Status: func(context.Context) (HubStatus, error) {
			return HubStatus{
				Server:            ServerInfo{Name: "hall", UUID: "6c3c1d52-1a4a-4a3f-9b1e-7f2f4d1c2b3a"},
				Clients:           map[string]int{"tcp": 2, "websocket": 1},
				Things:            5,
				PendingOperations: map[string]int{"action": 1},
				MQTT:              MQTTStatus{Enabled: true, Connected: true},
			}, nil
		},
	})

	resp, body := get(t, srv.URL+"/api/v1/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var got Status
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatal(err)
	}
	if got.Version != "1.2.3" || got.Things != 5 || got.Clients["tcp"] != 2 || got.Server.Name != "hall" {
		t.Errorf("status = %+v", got)
	}
	if !got.MQTT.Connected || got.PendingOperations["action"] != 1 {
		t.Errorf("status = %+v", got)
	}
	if got.Runtime.Goroutines == 0 {
		t.Error("runtime metrics not filled in")
	}
}

func TestStatusUnavailable(t *testing.T) {
	tests := []struct {
		name   string
		status StatusFunc
	}{
		{"no provider", nil},
		{"provider fails", func(context.Context) (HubStatus, error) {
			return HubStatus{}, errors.New("event loop stopped")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, Deps{Status: tt.status})
			resp, body := get(t, srv.URL+"/api/v1/status")
			if resp.StatusCode != http.StatusServiceUnavailable {
				t.Errorf("status = %d, want 503", resp.StatusCode)
			}
			var e Error
			if err := json.Unmarshal(body, &e); err != nil || e.Code != ErrCodeUnavailable {
				t.Errorf("body = %s", body)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ClientConnected("tcp")
	srv := newTestServer(t, Deps{Metrics: m.Handler()})

	resp, body := get(t, srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(string(body), "glhub_") {
		t.Errorf("metrics body has no hub metrics:\n%s", body)
	}

	bare := newTestServer(t, Deps{})
	if resp, _ := get(t, bare.URL+"/metrics"); resp.StatusCode != http.StatusNotFound {
		t.Errorf("/metrics without handler status = %d, want 404", resp.StatusCode)
	}
}

func TestWebSocketMount(t *testing.T) {
	var hit bool
	ws := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hit = true
		w.WriteHeader(http.StatusTeapot)
	})
	srv := newTestServer(t, Deps{WebSocket: ws, WebSocketPath: "/ws"})

	resp, _ := get(t, srv.URL+"/ws")
	if !hit || resp.StatusCode != http.StatusTeapot {
		t.Errorf("websocket handler not reached (status %d)", resp.StatusCode)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, Deps{Config: config.APIConfig{
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://panel.local"}},
	}})

	tests := []struct {
		origin string
		want   string
	}{
		{"http://panel.local", "http://panel.local"},
		{"http://evil.example", ""},
	}
	for _, tt := range tests {
		req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/health", nil)
		req.Header.Set("Origin", tt.origin)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNoContent {
			t.Errorf("preflight status = %d, want 204", resp.StatusCode)
		}
		if got := resp.Header.Get("Access-Control-Allow-Origin"); got != tt.want {
			t.Errorf("origin %s: allow-origin = %q, want %q", tt.origin, got, tt.want)
		}
	}
}

func TestNotFound(t *testing.T) {
	srv := newTestServer(t, Deps{})
	resp, body := get(t, srv.URL+"/api/v1/devices")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
	var e Error
	if err := json.Unmarshal(body, &e); err != nil || e.Code != ErrCodeNotFound {
		t.Errorf("body = %s", body)
	}
}

func TestRecovery(t *testing.T) {
	s, err := New(Deps{Logger: logging.Discard()})
	if err != nil {
		t.Fatal(err)
	}
	h := s.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestStartClose(t *testing.T) {
	s, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		Logger: logging.Discard(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := s.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start succeeded")
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	resp, _ := get(t, fmt.Sprintf("http://%s/api/v1/health", s.Addr()))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
