package websocket

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

// Name is the transport label used in logs and metrics.
const Name = "websocket"

// Defaults applied when Options leave a field zero.
const (
	defaultPingInterval   = 30 * time.Second
	defaultPongTimeout    = 10 * time.Second
	defaultMaxMessageSize = 1 << 20
)

// Options configures the WebSocket transport.
type Options struct {
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxMessageSize int64

	// CheckOrigin overrides origin checking; nil accepts every origin
	// (CORS is enforced by the API router).
	CheckOrigin func(r *http.Request) bool

	Logger transport.Logger
}

// Transport carries JSON-RPC over WebSocket text frames, one JSON object
// per frame. It is an http.Handler; mount it on the API router.
type Transport struct {
	opts     Options
	handler  transport.Handler
	logger   transport.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*client
	running bool
	wg      sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	out  *transport.Outbox
}

// New creates a WebSocket transport that reports clients to handler.
func New(opts Options, handler transport.Handler) *Transport {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = defaultMaxMessageSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = transport.NoopLogger{}
	}
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}

	return &Transport{
		opts:    opts,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[string]*client),
	}
}

// Name implements transport.Transport.
func (t *Transport) Name() string { return Name }

// Start enables upgrades. Listening is done by the HTTP server.
func (t *Transport) Start(context.Context) error {
	t.mu.Lock()
	t.running = true
	t.mu.Unlock()
	t.logger.Info("websocket transport ready")
	return nil
}

// Stop refuses new upgrades and closes every client.
func (t *Transport) Stop() error {
	t.mu.Lock()
	t.running = false
	clients := make([]*client, 0, len(t.clients))
	for _, c := range t.clients {
		clients = append(clients, c)
	}
	t.mu.Unlock()

	for _, c := range clients {
		c.out.Close()
		c.conn.Close() //nolint:errcheck // Unblocks readPump
	}
	t.wg.Wait()
	t.logger.Info("websocket transport stopped")
	return nil
}

// ServeHTTP upgrades the request and runs the client until it leaves.
func (t *Transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	t.mu.RLock()
	running := t.running
	t.mu.RUnlock()
	if !running {
		http.Error(w, "websocket transport not running", http.StatusServiceUnavailable)
		return
	}

	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		t.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{id: uuid.NewString(), conn: conn, out: transport.NewOutbox()}

	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		conn.Close() //nolint:errcheck // Raced with Stop
		return
	}
	t.clients[c.id] = c
	t.wg.Add(2)
	t.mu.Unlock()

	t.logger.Info("client connected", "transport", Name, "client_id", c.id, "remote", r.RemoteAddr)
	t.handler.ClientConnected(t, c.id)

	go t.writePump(c)
	go t.readPump(c)
}

func (t *Transport) readPump(c *client) {
	defer t.wg.Done()
	defer func() {
		c.out.Close()
		c.conn.Close() //nolint:errcheck // Connection is finished

		t.mu.Lock()
		delete(t.clients, c.id)
		t.mu.Unlock()

		t.logger.Info("client disconnected", "transport", Name, "client_id", c.id)
		t.handler.ClientDisconnected(c.id)
	}()

	deadline := t.opts.PingInterval + t.opts.PongTimeout
	c.conn.SetReadLimit(t.opts.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // Best-effort deadline on setup
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.logger.Warn("websocket read error", "client_id", c.id, "error", err)
			}
			return
		}
		// Any traffic proves liveness, even from clients that ignore pings.
		c.conn.SetReadDeadline(time.Now().Add(deadline)) //nolint:errcheck // Best-effort deadline reset

		if msgType != websocket.TextMessage {
			t.logger.Debug("ignoring non-text websocket frame", "client_id", c.id)
			continue
		}
		frame := bytes.TrimSpace(data)
		if len(frame) == 0 {
			continue
		}
		t.handler.DataAvailable(c.id, frame)
	}
}

func (t *Transport) writePump(c *client) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close() //nolint:errcheck // Ends readPump
	}()

	for {
		select {
		case <-c.out.Ready():
			msgs, closing := c.out.Drain()
			for _, msg := range msgs {
				c.conn.SetWriteDeadline(time.Now().Add(t.opts.PongTimeout)) //nolint:errcheck // Write error caught below
				if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					return
				}
			}
			if closing {
				c.conn.SetWriteDeadline(time.Now().Add(t.opts.PongTimeout)) //nolint:errcheck // Best-effort close frame
				closure := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
				c.conn.WriteMessage(websocket.CloseMessage, closure) //nolint:errcheck // Best-effort close frame
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(t.opts.PongTimeout)) //nolint:errcheck // Ping error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send implements transport.Transport.
func (t *Transport) Send(clientID string, data []byte) {
	t.mu.RLock()
	c, ok := t.clients[clientID]
	t.mu.RUnlock()
	if !ok {
		t.logger.Debug("send to unknown client dropped", "transport", Name, "client_id", clientID)
		return
	}
	c.out.Push(data)
}

// SendMulti implements transport.Transport.
func (t *Transport) SendMulti(clientIDs []string, data []byte) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, id := range clientIDs {
		if c, ok := t.clients[id]; ok {
			c.out.Push(data)
		}
	}
}

// Terminate implements transport.Transport.
func (t *Transport) Terminate(clientID string) {
	t.mu.RLock()
	c, ok := t.clients[clientID]
	t.mu.RUnlock()
	if ok {
		c.out.Close()
	}
}

// ClientCount returns the number of connected clients.
func (t *Transport) ClientCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}
