package statefile

import "errors"

var (
	// ErrDeviceNotFound is returned when a device ID has no entry in the file.
	ErrDeviceNotFound = errors.New("device not found in status file")
)
