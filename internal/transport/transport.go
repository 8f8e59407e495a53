package transport

import "context"

// Transport is one way for clients to reach the hub: TCP, WebSocket,
// Bluetooth RFCOMM or the cloud relay tunnel.
//
// A transport assigns every connection a client id (a UUID string),
// frames its inbound bytes into whole JSON messages and reports
// lifecycle and data through a Handler. Nothing above the session layer
// branches on the concrete transport.
//
// Thread Safety:
//   - Send, SendMulti and Terminate are safe from any goroutine and
//     never block on the network.
type Transport interface {
	// Name labels the transport in logs and metrics ("tcp", "websocket", ...).
	Name() string

	// Start begins accepting clients. It returns once listening.
	Start(ctx context.Context) error

	// Stop closes every client connection and releases the listener.
	Stop() error

	// Send queues data for one client. Unknown ids are ignored.
	Send(clientID string, data []byte)

	// SendMulti queues the same data for several clients.
	SendMulti(clientIDs []string, data []byte)

	// Terminate flushes what is already queued for the client, then
	// closes its connection. ClientDisconnected follows.
	Terminate(clientID string)
}

// Handler receives connection events from a Transport.
//
// For each client the calls arrive in order: one ClientConnected, any
// number of DataAvailable, one ClientDisconnected. Calls come from
// transport goroutines; implementations must hand them to the event loop.
type Handler interface {
	ClientConnected(t Transport, clientID string)
	DataAvailable(clientID string, frame []byte)
	ClientDisconnected(clientID string)
}

// Logger is the logging surface transports need.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NoopLogger discards everything. Transports use it when no logger is set.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

// DefaultMaxBufferSize bounds an unterminated inbound message.
const DefaultMaxBufferSize = 10 * 1024
