package jsonrpc

import (
	"errors"

	"github.com/nerrad567/gray-logic-hub/internal/auth"
	"github.com/nerrad567/gray-logic-hub/internal/integrations"
	"github.com/nerrad567/gray-logic-hub/internal/pending"
)

// Protocol error kinds, reported in the "error" field of a response.
const (
	KindInvalidRequest    = "InvalidRequest"
	KindInvalidMethod     = "InvalidMethod"
	KindNoSuchNamespace   = "NoSuchNamespace"
	KindNoSuchMethod      = "NoSuchMethod"
	KindInvalidParams     = "InvalidParams"
	KindUnauthorized      = "Unauthorized"
	KindHandshakeRequired = "HandshakeRequired"
	KindRateLimited       = "RateLimited"
	KindInternalError     = "InternalError"

	KindInvalidUsername = "InvalidUsername"
	KindBadPassword     = "BadPassword"
	KindDuplicateUser   = "DuplicateUser"
	KindTokenNotFound   = "TokenNotFound"
)

// Error is a failure reply of a given kind.
type Error struct {
	Kind string
}

func (e *Error) Error() string { return "jsonrpc: " + e.Kind }

// ErrDuplicateNamespace is returned when a namespace is registered twice.
var ErrDuplicateNamespace = errors.New("jsonrpc: namespace already registered")

// kindOf maps a handler or operation error to its wire kind.
func kindOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var te integrations.ThingError
	if errors.As(err, &te) {
		return string(te)
	}
	switch {
	case errors.Is(err, pending.ErrTimeout):
		return string(integrations.ErrHardwareFailure)
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired):
		return KindUnauthorized
	case errors.Is(err, auth.ErrInvalidUsername):
		return KindInvalidUsername
	case errors.Is(err, auth.ErrBadPassword):
		return KindBadPassword
	case errors.Is(err, auth.ErrUsernameExists):
		return KindDuplicateUser
	case errors.Is(err, auth.ErrTokenNotFound):
		return KindTokenNotFound
	}
	return KindInternalError
}
