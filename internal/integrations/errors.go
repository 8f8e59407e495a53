package integrations

import "errors"

// ThingError is a domain error kind reported to clients by name.
//
// Plugins return these from ExecuteAction, SetupThing and DiscoverThings;
// any other error is reported as HardwareFailure.
type ThingError string

// Error implements error.
func (e ThingError) Error() string { return string(e) }

// Domain error kinds.
const (
	ErrDeviceClassNotFound        ThingError = "DeviceClassNotFound"
	ErrActionTypeNotFound         ThingError = "ActionTypeNotFound"
	ErrStateTypeNotFound          ThingError = "StateTypeNotFound"
	ErrHardwareNotAvailable       ThingError = "HardwareNotAvailable"
	ErrHardwareFailure            ThingError = "HardwareFailure"
	ErrInvalidParameter           ThingError = "InvalidParameter"
	ErrMissingParameter           ThingError = "MissingParameter"
	ErrParameterNotWritable       ThingError = "ParameterNotWritable"
	ErrSetupFailed                ThingError = "SetupFailed"
	ErrPluginNotFound             ThingError = "PluginNotFound"
	ErrThingIsChild               ThingError = "ThingIsChild"
	ErrThingDescriptorNotFound    ThingError = "ThingDescriptorNotFound"
	ErrCreationMethodNotSupported ThingError = "CreationMethodNotSupported"
)

// Kind maps err to the wire error kind. Errors that are not a
// ThingError become HardwareFailure.
func Kind(err error) ThingError {
	var te ThingError
	if errors.As(err, &te) {
		return te
	}
	return ErrHardwareFailure
}

var (
	// ErrPluginExists is returned when two loaded plugins share an id.
	ErrPluginExists = errors.New("integrations: plugin already loaded")

	// ErrInvalidDescriptor is returned for a malformed plugin descriptor.
	ErrInvalidDescriptor = errors.New("integrations: invalid plugin descriptor")

	// ErrThingNotFound is returned by the store for an unknown thing id.
	ErrThingNotFound = errors.New("integrations: thing not found")
)
