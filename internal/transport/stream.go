package transport

import (
	"errors"
	"io"
	"sync"

	"github.com/google/uuid"
)

const readChunkSize = 4096

// StreamOptions configures a StreamSet.
type StreamOptions struct {
	// MaxBufferSize bounds an unterminated inbound message (bytes).
	MaxBufferSize int

	Logger Logger
}

// StreamSet runs newline-delimited JSON clients over arbitrary byte
// streams. The TCP and Bluetooth transports hand it each accepted
// connection; it owns the per-client reader, writer, Framer and Outbox.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type StreamSet struct {
	owner   Transport
	handler Handler
	max     int
	logger  Logger

	mu      sync.RWMutex
	clients map[string]*streamClient
	closed  bool
	wg      sync.WaitGroup
}

type streamClient struct {
	id     string
	remote string
	rwc    io.ReadWriteCloser
	out    *Outbox
	closed sync.Once
}

// NewStreamSet creates a StreamSet whose clients are reported to handler
// as belonging to owner.
func NewStreamSet(owner Transport, handler Handler, opts StreamOptions) *StreamSet {
	logger := opts.Logger
	if logger == nil {
		logger = NoopLogger{}
	}
	return &StreamSet{
		owner:   owner,
		handler: handler,
		max:     opts.MaxBufferSize,
		logger:  logger,
		clients: make(map[string]*streamClient),
	}
}

// Serve adopts rwc as a new client and returns its id. The reader and
// writer run on their own goroutines; ClientConnected is delivered
// before Serve returns. remote is used for logging only.
func (s *StreamSet) Serve(rwc io.ReadWriteCloser, remote string) (string, error) {
	c := &streamClient{
		id:     uuid.NewString(),
		remote: remote,
		rwc:    rwc,
		out:    NewOutbox(),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		rwc.Close() //nolint:errcheck // Rejected connection
		return "", ErrNotRunning
	}
	s.clients[c.id] = c
	s.wg.Add(2)
	s.mu.Unlock()

	s.logger.Info("client connected", "transport", s.owner.Name(), "client_id", c.id, "remote", remote)
	s.handler.ClientConnected(s.owner, c.id)

	go s.writeLoop(c)
	go s.readLoop(c)
	return c.id, nil
}

func (s *StreamSet) readLoop(c *streamClient) {
	defer s.wg.Done()

	framer := NewFramer(s.max)
	buf := make([]byte, readChunkSize)
	for {
		n, err := c.rwc.Read(buf)
		if n > 0 {
			frames, ferr := framer.Feed(buf[:n])
			for _, frame := range frames {
				s.handler.DataAvailable(c.id, frame)
			}
			if errors.Is(ferr, ErrBufferOverflow) {
				s.logger.Warn("client exceeded buffer limit, terminating",
					"transport", s.owner.Name(), "client_id", c.id, "limit", framer.max)
				c.out.Close()
			}
		}
		if err != nil {
			// A peer that only closed its write side still gets the
			// replies already queued; the writer closes after draining.
			if !errors.Is(err, io.EOF) {
				s.logger.Debug("client read ended", "transport", s.owner.Name(), "client_id", c.id, "error", err)
				c.close()
			}
			break
		}
	}

	c.out.Close()

	s.mu.Lock()
	delete(s.clients, c.id)
	s.mu.Unlock()

	s.logger.Info("client disconnected", "transport", s.owner.Name(), "client_id", c.id)
	s.handler.ClientDisconnected(c.id)
}

func (s *StreamSet) writeLoop(c *streamClient) {
	defer s.wg.Done()

	for range c.out.Ready() {
		msgs, closing := c.out.Drain()
		for _, msg := range msgs {
			if _, err := c.rwc.Write(msg); err != nil {
				s.logger.Debug("client write failed", "transport", s.owner.Name(), "client_id", c.id, "error", err)
				c.close()
				return
			}
		}
		if closing {
			c.close()
			return
		}
	}
}

func (c *streamClient) close() {
	c.closed.Do(func() {
		c.rwc.Close() //nolint:errcheck // Peer may already be gone
	})
}

// Send queues data (newline terminated) for one client.
func (s *StreamSet) Send(clientID string, data []byte) {
	s.mu.RLock()
	c, ok := s.clients[clientID]
	s.mu.RUnlock()
	if !ok {
		s.logger.Debug("send to unknown client dropped", "transport", s.owner.Name(), "client_id", clientID)
		return
	}
	c.out.Push(EncodeLine(data))
}

// SendMulti queues the same data for several clients.
func (s *StreamSet) SendMulti(clientIDs []string, data []byte) {
	line := EncodeLine(data)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range clientIDs {
		if c, ok := s.clients[id]; ok {
			c.out.Push(line)
		}
	}
}

// Terminate flushes and closes one client.
func (s *StreamSet) Terminate(clientID string) {
	s.mu.RLock()
	c, ok := s.clients[clientID]
	s.mu.RUnlock()
	if ok {
		c.out.Close()
	}
}

// Count returns the number of connected clients.
func (s *StreamSet) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// CloseAll closes every client immediately, refuses new ones and waits
// for all reader and writer goroutines to exit.
func (s *StreamSet) CloseAll() {
	s.mu.Lock()
	s.closed = true
	clients := make([]*streamClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.out.Close()
		c.close()
	}
	s.wg.Wait()
}
