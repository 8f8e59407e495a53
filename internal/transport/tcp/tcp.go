package tcp

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

// Name is the transport label used in logs and metrics.
const Name = "tcp"

// handshakeTimeout bounds the TLS handshake of an accepted connection.
const handshakeTimeout = 10 * time.Second

// Options configures a TCP transport.
type Options struct {
	Host string
	Port int

	// TLS enables TLS when non-nil (see LoadTLSConfig).
	TLS *tls.Config

	// MaxBufferSize bounds an unterminated inbound message.
	MaxBufferSize int

	// Advertiser, when set, announces the listening port (mDNS).
	Advertiser Advertiser

	Logger transport.Logger
}

// Transport serves newline-delimited JSON-RPC over TCP, optionally TLS.
type Transport struct {
	opts    Options
	handler transport.Handler
	logger  transport.Logger

	mu       sync.Mutex
	listener net.Listener
	clients  *transport.StreamSet
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a TCP transport that reports clients to handler.
func New(opts Options, handler transport.Handler) *Transport {
	logger := opts.Logger
	if logger == nil {
		logger = transport.NoopLogger{}
	}
	t := &Transport{opts: opts, handler: handler, logger: logger}
	t.clients = transport.NewStreamSet(t, handler, transport.StreamOptions{
		MaxBufferSize: opts.MaxBufferSize,
		Logger:        logger,
	})
	return t
}

// Name implements transport.Transport.
func (t *Transport) Name() string { return Name }

// Start opens the listener and begins accepting clients.
func (t *Transport) Start(ctx context.Context) error {
	addr := net.JoinHostPort(t.opts.Host, strconv.Itoa(t.opts.Port))
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp transport: listening on %s: %w", addr, err)
	}
	if t.opts.TLS != nil {
		ln = tls.NewListener(ln, t.opts.TLS)
	}

	t.mu.Lock()
	t.listener = ln
	t.mu.Unlock()

	if t.opts.Advertiser != nil {
		if err := t.opts.Advertiser.Advertise(t.Port()); err != nil {
			// mDNS is a convenience; clients can still connect by address.
			t.logger.Warn("mdns advertisement failed", "error", err)
		}
	}

	t.logger.Info("tcp transport listening", "address", ln.Addr().String(), "tls", t.opts.TLS != nil)

	t.wg.Add(1)
	go t.acceptLoop(ctx, ln)
	return nil
}

func (t *Transport) acceptLoop(ctx context.Context, ln net.Listener) {
	defer t.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.logger.Warn("tcp accept failed", "error", err)
			continue
		}

		if tc, ok := conn.(*tls.Conn); ok {
			t.wg.Add(1)
			go func() {
				defer t.wg.Done()
				hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
				defer cancel()
				if err := tc.HandshakeContext(hctx); err != nil {
					t.logger.Warn("tls handshake failed", "remote", conn.RemoteAddr().String(), "error", err)
					conn.Close() //nolint:errcheck // Dropping failed handshake
					return
				}
				t.serve(conn)
			}()
			continue
		}
		t.serve(conn)
	}
}

func (t *Transport) serve(conn net.Conn) {
	if _, err := t.clients.Serve(conn, conn.RemoteAddr().String()); err != nil {
		t.logger.Debug("connection rejected", "error", err)
	}
}

// Port returns the bound port, useful when Options.Port is 0.
func (t *Transport) Port() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.listener == nil {
		return 0
	}
	if addr, ok := t.listener.Addr().(*net.TCPAddr); ok {
		return addr.Port
	}
	return 0
}

// Stop closes the listener and every client.
func (t *Transport) Stop() error {
	t.stopOnce.Do(func() {
		if t.opts.Advertiser != nil {
			t.opts.Advertiser.Shutdown()
		}
		t.mu.Lock()
		ln := t.listener
		t.mu.Unlock()
		if ln != nil {
			ln.Close() //nolint:errcheck // Unblocks Accept
		}
		t.wg.Wait()
		t.clients.CloseAll()
		t.logger.Info("tcp transport stopped")
	})
	return nil
}

// Send implements transport.Transport.
func (t *Transport) Send(clientID string, data []byte) { t.clients.Send(clientID, data) }

// SendMulti implements transport.Transport.
func (t *Transport) SendMulti(clientIDs []string, data []byte) { t.clients.SendMulti(clientIDs, data) }

// Terminate implements transport.Transport.
func (t *Transport) Terminate(clientID string) { t.clients.Terminate(clientID) }

// ClientCount returns the number of connected clients.
func (t *Transport) ClientCount() int { return t.clients.Count() }

// LoadTLSConfig builds a server TLS config (TLS 1.2 minimum) from PEM files.
func LoadTLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("loading tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
