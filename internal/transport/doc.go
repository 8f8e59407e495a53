// Package transport defines how clients reach the Gray Logic Hub.
//
// Four transports implement Transport: tcp (optionally TLS), websocket,
// bluetooth (RFCOMM) and cloud (a relay tunnel carrying many remote
// peers). They differ in how bytes move but look identical to the
// session layer: a client id, a stream of complete JSON messages in, and
// Send/Terminate out.
//
// Shared building blocks:
//   - Framer splits byte streams at "}\n{" boundaries and bounds partial
//     messages (ErrBufferOverflow).
//   - Outbox is the unbounded per-connection write queue whose Close
//     flushes before the connection is closed.
//   - StreamSet runs reader/writer goroutines for io.ReadWriteCloser
//     clients (TCP and Bluetooth).
package transport
