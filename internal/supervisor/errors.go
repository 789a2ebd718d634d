package supervisor

import "errors"

var (
	// ErrUnknownDeviceType is returned when a device type is not in the registry.
	ErrUnknownDeviceType = errors.New("unknown device type")
)
