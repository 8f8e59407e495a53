package hardware

import "errors"

var (
	// ErrNotDeclared means a plugin used a resource missing from its descriptor.
	ErrNotDeclared = errors.New("hardware: resource not declared by plugin")

	// ErrUnavailable means the resource is declared but not present on this hub.
	ErrUnavailable = errors.New("hardware: resource unavailable")

	// ErrAlreadyRegistered is returned when a plugin id registers twice.
	ErrAlreadyRegistered = errors.New("hardware: plugin already registered")

	// ErrUnknownResource is returned for resource names the broker does not know.
	ErrUnknownResource = errors.New("hardware: unknown resource")
)
