package pending

import "errors"

// ErrTimeout is the result of an operation whose deadline passed before
// it was resolved.
var ErrTimeout = errors.New("pending: operation timed out")
