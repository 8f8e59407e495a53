package bluetooth

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/nerrad567/gray-logic-hub/internal/transport"
)

// Name is the transport label used in logs and metrics.
const Name = "bluetooth"

// ServiceUUID identifies the hub's RFCOMM JSON-RPC service.
const ServiceUUID = "997936b5-d2cd-4c57-b41b-c6048320cd2b"

// Acceptor yields incoming RFCOMM streams.
//
// Accept blocks until a peer connects and returns ErrAcceptorClosed once
// Close has been called.
type Acceptor interface {
	Accept() (conn io.ReadWriteCloser, remote string, err error)
	Close() error
}

// Options configures the Bluetooth transport.
type Options struct {
	// Acceptor supplies connections. When nil, Start registers a BlueZ
	// profile using ServiceName and Channel.
	Acceptor Acceptor

	ServiceName string
	Channel     uint16

	// MaxBufferSize bounds an unterminated inbound message.
	MaxBufferSize int

	Logger transport.Logger
}

// Transport serves newline-delimited JSON-RPC over Bluetooth RFCOMM.
type Transport struct {
	opts    Options
	handler transport.Handler
	logger  transport.Logger

	mu       sync.Mutex
	acceptor Acceptor
	clients  *transport.StreamSet
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates a Bluetooth transport that reports clients to handler.
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

// Start registers the RFCOMM service (unless an Acceptor was given) and
// begins accepting peers.
func (t *Transport) Start(ctx context.Context) error {
	acc := t.opts.Acceptor
	if acc == nil {
		var err error
		acc, err = NewBlueZAcceptor(ctx, BlueZOptions{
			ServiceName: t.opts.ServiceName,
			Channel:     t.opts.Channel,
			Logger:      t.logger,
		})
		if err != nil {
			return err
		}
	}

	t.mu.Lock()
	t.acceptor = acc
	t.mu.Unlock()

	t.logger.Info("bluetooth transport listening", "service_uuid", ServiceUUID)

	t.wg.Add(1)
	go t.acceptLoop(acc)
	return nil
}

func (t *Transport) acceptLoop(acc Acceptor) {
	defer t.wg.Done()
	for {
		conn, remote, err := acc.Accept()
		if err != nil {
			if errors.Is(err, ErrAcceptorClosed) {
				return
			}
			t.logger.Warn("rfcomm accept failed", "error", err)
			continue
		}
		if _, err := t.clients.Serve(conn, remote); err != nil {
			t.logger.Debug("connection rejected", "remote", remote, "error", err)
		}
	}
}

// Stop unregisters the service and closes every client.
func (t *Transport) Stop() error {
	t.stopOnce.Do(func() {
		t.mu.Lock()
		acc := t.acceptor
		t.mu.Unlock()
		if acc != nil {
			if err := acc.Close(); err != nil {
				t.logger.Warn("closing rfcomm acceptor", "error", err)
			}
		}
		t.wg.Wait()
		t.clients.CloseAll()
		t.logger.Info("bluetooth transport stopped")
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
