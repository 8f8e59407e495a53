package cloud

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

// Name is the transport label used in logs and metrics.
const Name = "cloud"

const (
	defaultAuthTimeout = 10 * time.Second
	defaultDialTimeout = 15 * time.Second
)

// Dialer opens the raw connection to the relay. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options configures the cloud relay tunnel.
type Options struct {
	// Relay is the relay's host:port.
	Relay string
	// Token authenticates this hub to the relay.
	Token string

	// ServerUUID and ServerName identify the hub to the relay.
	ServerUUID string
	ServerName string

	// TLS wraps the tunnel when non-nil.
	TLS    *tls.Config
	Dialer Dialer

	// Reconnect backoff. MaxAttempts 0 retries forever.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	MaxAttempts  int

	AuthTimeout time.Duration

	// MaxBufferSize bounds an unterminated message of one remote peer.
	MaxBufferSize int

	// OnConnectionChange is called when the tunnel goes up or down.
	OnConnectionChange func(connected bool)

	Logger transport.Logger
}

type peer struct {
	id      string
	relayID string
	framer  *transport.Framer
}

// Transport keeps one outbound tunnel to a cloud relay and presents each
// remote peer behind it as an ordinary client.
//
// Thread Safety:
//   - Send, SendMulti, Terminate and the accessors are safe for
//     concurrent use. Handler calls come from the tunnel reader only.
type Transport struct {
	opts    Options
	handler transport.Handler
	logger  transport.Logger

	mu        sync.Mutex
	out       *transport.Outbox
	peers     map[string]*peer
	byRelay   map[string]*peer
	connected bool
	cancel    context.CancelFunc
	done      chan struct{}
	stopOnce  sync.Once
}

// New creates a cloud tunnel transport that reports peers to handler.
func New(opts Options, handler transport.Handler) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = transport.NoopLogger{}
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = defaultAuthTimeout
	}
	if opts.MaxBufferSize <= 0 {
		opts.MaxBufferSize = transport.DefaultMaxBufferSize
	}
	if opts.Dialer == nil {
		opts.Dialer = &net.Dialer{Timeout: defaultDialTimeout}
	}
	return &Transport{
		opts:    opts,
		handler: handler,
		logger:  logger,
		peers:   make(map[string]*peer),
		byRelay: make(map[string]*peer),
	}
}

// Name implements transport.Transport.
func (t *Transport) Name() string { return Name }

// Start launches the tunnel. It returns immediately: an unreachable relay
// is retried in the background and never fails start-up.
func (t *Transport) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.done = make(chan struct{})
	done := t.done
	t.mu.Unlock()

	go t.run(ctx, done)
	return nil
}

// Stop closes the tunnel and reports every remote peer disconnected.
func (t *Transport) Stop() error {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		cancel, done := t.cancel, t.done
		t.mu.Unlock()
		if cancel == nil {
			return
		}
		cancel()
		<-done
		t.logger.Info("cloud transport stopped")
	})
	return nil
}

func (t *Transport) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	b := newBackoff(t.opts.InitialDelay, t.opts.MaxDelay)
	failures := 0
	for {
		established, err := t.session(ctx)
		if ctx.Err() != nil {
			return
		}
		if established {
			b.reset()
			failures = 0
		}
		failures++
		if t.opts.MaxAttempts > 0 && failures >= t.opts.MaxAttempts {
			t.logger.Error("cloud tunnel giving up", "error", ErrGaveUp, "attempts", failures, "last_error", err)
			return
		}

		delay := b.next()
		t.logger.Warn("cloud tunnel down, reconnecting", "relay", t.opts.Relay, "error", err, "retry_in", delay)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

// session runs one tunnel connection until it fails. established reports
// whether authentication succeeded.
func (t *Transport) session(ctx context.Context) (established bool, err error) {
	conn, err := t.dial(ctx)
	if err != nil {
		return false, err
	}
	stop := context.AfterFunc(ctx, func() {
		conn.Close() //nolint:errcheck // Unblocks the reader on shutdown
	})
	defer stop()
	defer conn.Close() //nolint:errcheck // Tunnel finished

	reader := bufio.NewReader(conn)
	if err := t.authenticate(conn, reader); err != nil {
		return false, err
	}

	out := transport.NewOutbox()
	t.mu.Lock()
	t.out = out
	t.connected = true
	t.mu.Unlock()
	t.notifyConnection(true)
	t.logger.Info("cloud tunnel established", "relay", t.opts.Relay)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		t.writeLoop(conn, out)
	}()

	err = t.readLoop(reader)

	conn.Close() //nolint:errcheck // Stops the writer
	out.Close()
	<-writerDone

	t.mu.Lock()
	t.out = nil
	t.connected = false
	gone := make([]*peer, 0, len(t.peers))
	for _, p := range t.peers {
		gone = append(gone, p)
	}
	t.peers = make(map[string]*peer)
	t.byRelay = make(map[string]*peer)
	t.mu.Unlock()

	for _, p := range gone {
		t.handler.ClientDisconnected(p.id)
	}
	t.notifyConnection(false)
	return true, err
}

func (t *Transport) dial(ctx context.Context) (net.Conn, error) {
	conn, err := t.opts.Dialer.DialContext(ctx, "tcp", t.opts.Relay)
	if err != nil {
		return nil, fmt.Errorf("dialing relay %s: %w", t.opts.Relay, err)
	}
	if t.opts.TLS == nil {
		return conn, nil
	}

	cfg := t.opts.TLS.Clone()
	if cfg.ServerName == "" {
		if host, _, err := net.SplitHostPort(t.opts.Relay); err == nil {
			cfg.ServerName = host
		}
	}
	tc := tls.Client(conn, cfg)
	hctx, cancel := context.WithTimeout(ctx, t.opts.AuthTimeout)
	defer cancel()
	if err := tc.HandshakeContext(hctx); err != nil {
		conn.Close() //nolint:errcheck // Handshake failed
		return nil, fmt.Errorf("tls handshake with relay: %w", err)
	}
	return tc, nil
}

func (t *Transport) authenticate(conn net.Conn, reader *bufio.Reader) error {
	nonce := uuid.NewString()
	req, err := json.Marshal(envelope{
		Type:  typeAuth,
		Token: t.opts.Token,
		Nonce: nonce,
		UUID:  t.opts.ServerUUID,
		Name:  t.opts.ServerName,
	})
	if err != nil {
		return fmt.Errorf("encoding auth request: %w", err)
	}

	conn.SetDeadline(time.Now().Add(t.opts.AuthTimeout)) //nolint:errcheck // Read error reports a failed deadline
	defer conn.SetDeadline(time.Time{})                  //nolint:errcheck // Best-effort reset

	if _, err := conn.Write(transport.EncodeLine(req)); err != nil {
		return fmt.Errorf("sending auth request: %w", err)
	}
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return fmt.Errorf("reading auth reply: %w", err)
	}

	var reply envelope
	if err := json.Unmarshal(line, &reply); err != nil {
		return fmt.Errorf("%w: malformed reply: %w", ErrAuthenticationFailed, err)
	}
	if reply.Type != typeAuthenticated || reply.Nonce != nonce || !reply.Success {
		return ErrAuthenticationFailed
	}
	return nil
}

func (t *Transport) readLoop(reader *bufio.Reader) error {
	scanner := bufio.NewScanner(reader)
	// A JSON-escaped payload can be much larger than its raw bytes.
	scanner.Buffer(make([]byte, 0, 4096), 8*t.opts.MaxBufferSize+4096)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var env envelope
		if err := json.Unmarshal(line, &env); err != nil {
			t.logger.Warn("malformed envelope from relay", "error", err)
			continue
		}
		t.handleEnvelope(env)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading tunnel: %w", err)
	}
	return ErrTunnelClosed
}

func (t *Transport) handleEnvelope(env envelope) {
	switch env.Type {
	case typeConnected:
		if env.Peer == "" {
			return
		}
		t.mu.Lock()
		if _, exists := t.byRelay[env.Peer]; exists {
			t.mu.Unlock()
			return
		}
		p := &peer{
			id:      uuid.NewString(),
			relayID: env.Peer,
			framer:  transport.NewFramer(t.opts.MaxBufferSize),
		}
		t.peers[p.id] = p
		t.byRelay[p.relayID] = p
		t.mu.Unlock()

		t.logger.Info("client connected", "transport", Name, "client_id", p.id, "remote", env.Peer)
		t.handler.ClientConnected(t, p.id)

	case typeData:
		t.mu.Lock()
		p, ok := t.byRelay[env.Peer]
		t.mu.Unlock()
		if !ok {
			t.logger.Debug("data for unknown peer dropped", "peer", env.Peer)
			return
		}
		frames, err := p.framer.Feed([]byte(env.Payload))
		for _, frame := range frames {
			t.handler.DataAvailable(p.id, frame)
		}
		if err != nil {
			t.logger.Warn("client exceeded buffer limit, terminating", "transport", Name, "client_id", p.id)
			t.Terminate(p.id)
		}

	case typeDisconnected:
		if p := t.removeRelayPeer(env.Peer); p != nil {
			t.logger.Info("client disconnected", "transport", Name, "client_id", p.id)
			t.handler.ClientDisconnected(p.id)
		}

	default:
		t.logger.Debug("ignoring relay envelope", "type", env.Type)
	}
}

func (t *Transport) writeLoop(conn net.Conn, out *transport.Outbox) {
	for range out.Ready() {
		msgs, closing := out.Drain()
		for _, msg := range msgs {
			if _, err := conn.Write(msg); err != nil {
				t.logger.Debug("tunnel write failed", "error", err)
				conn.Close() //nolint:errcheck // Reader notices and reconnects
				return
			}
		}
		if closing {
			return
		}
	}
}

func (t *Transport) removeRelayPeer(relayID string) *peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byRelay[relayID]
	if !ok {
		return nil
	}
	delete(t.byRelay, relayID)
	delete(t.peers, p.id)
	return p
}

func (t *Transport) push(env envelope) bool {
	line, err := json.Marshal(env)
	if err != nil {
		t.logger.Error("encoding tunnel envelope", "error", err)
		return false
	}
	t.mu.Lock()
	out := t.out
	t.mu.Unlock()
	if out == nil {
		return false
	}
	return out.Push(transport.EncodeLine(line))
}

func (t *Transport) relayID(clientID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.peers[clientID]
	if !ok {
		return "", false
	}
	return p.relayID, true
}

// Send implements transport.Transport.
func (t *Transport) Send(clientID string, data []byte) {
	relayID, ok := t.relayID(clientID)
	if !ok {
		t.logger.Debug("send to unknown client dropped", "transport", Name, "client_id", clientID)
		return
	}
	t.push(envelope{Type: typeData, Peer: relayID, Payload: string(transport.EncodeLine(data))})
}

// SendMulti implements transport.Transport.
func (t *Transport) SendMulti(clientIDs []string, data []byte) {
	for _, id := range clientIDs {
		t.Send(id, data)
	}
}

// Terminate queues a disconnect request behind any data already queued
// for the peer, then reports the peer disconnected. Frames already read
// for the peer may still arrive after ClientDisconnected.
func (t *Transport) Terminate(clientID string) {
	t.mu.Lock()
	p, ok := t.peers[clientID]
	if ok {
		delete(t.peers, clientID)
		delete(t.byRelay, p.relayID)
	}
	t.mu.Unlock()
	if !ok {
		return
	}

	t.push(envelope{Type: typeDisconnect, Peer: p.relayID})
	t.logger.Info("client disconnected", "transport", Name, "client_id", clientID, "reason", "terminated")
	t.handler.ClientDisconnected(clientID)
}

// IsConnected reports whether the tunnel is authenticated and up.
func (t *Transport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// ClientCount returns the number of remote peers.
func (t *Transport) ClientCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.peers)
}

func (t *Transport) notifyConnection(up bool) {
	if t.opts.OnConnectionChange != nil {
		t.opts.OnConnectionChange(up)
	}
}
