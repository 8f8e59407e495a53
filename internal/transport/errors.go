package transport

import "errors"

var (
	// ErrBufferOverflow means a client sent more than the buffer limit
	// without completing a message. The client is terminated.
	ErrBufferOverflow = errors.New("transport: inbound buffer overflow")

	// ErrNotRunning is returned when sending on a stopped transport.
	ErrNotRunning = errors.New("transport: not running")
)
