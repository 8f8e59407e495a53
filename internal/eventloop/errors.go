package eventloop

import "errors"

var (
	// ErrStopped is returned by Do when the loop is not running or has stopped.
	ErrStopped = errors.New("eventloop: stopped")

	// ErrAlreadyRunning is returned by a second concurrent Run.
	ErrAlreadyRunning = errors.New("eventloop: already running")
)
