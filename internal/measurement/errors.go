package measurement

import "errors"

var (
	// ErrNoSamples is returned when a device has no samples stored.
	ErrNoSamples = errors.New("no samples for device")
)
