package session

import "errors"

var (
	// ErrUnknownClient is returned for a client id with no session.
	ErrUnknownClient = errors.New("session: unknown client")

	// ErrUnauthorized means the call needs a valid token and has none.
	ErrUnauthorized = errors.New("session: unauthorized")
)
