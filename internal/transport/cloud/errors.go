package cloud

import "errors"

var (
	// ErrAuthenticationFailed means the relay rejected the token or
	// answered with the wrong nonce.
	ErrAuthenticationFailed = errors.New("cloud: relay authentication failed")

	// ErrTunnelClosed means the relay closed the tunnel.
	ErrTunnelClosed = errors.New("cloud: tunnel closed")

	// ErrGaveUp is logged when MaxAttempts consecutive connects failed.
	ErrGaveUp = errors.New("cloud: reconnect attempts exhausted")
)
