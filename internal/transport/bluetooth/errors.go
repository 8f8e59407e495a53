package bluetooth

import "errors"

var (
	// ErrAcceptorClosed is returned by Accept after Close.
	ErrAcceptorClosed = errors.New("bluetooth: acceptor closed")

	// ErrBlueZUnavailable means the system bus or BlueZ could not be reached.
	ErrBlueZUnavailable = errors.New("bluetooth: bluez unavailable")
)
