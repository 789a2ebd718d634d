package measurement

import (
	"context"
	"time"
)

// Sample is one reading taken by a device worker.
type Sample struct {
	// ID is the auto-incremented primary key for the sample row.
	ID int64 `json:"id"`

	// DeviceID is the device the sample belongs to.
	DeviceID string `json:"device_id"`

	// Timestamp is when the reading was taken (UTC).
	Timestamp time.Time `json:"timestamp"`

	// Voltage in volts.
	Voltage float64 `json:"voltage"`

	// Current in amperes.
	Current float64 `json:"current"`

	// Power in watts, derived from voltage and current.
	Power float64 `json:"power"`

	// Kwh is the device's cumulative energy counter in kilowatt-hours.
	// It never decreases across a device's samples.
	Kwh float64 `json:"kwh"`

	// CreatedAt is when the row was written (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// Store persists and retrieves measurement samples.
//
// Implementations must be safe for concurrent use and return samples
// ordered newest first.
type Store interface {
	// Insert appends a sample.
	Insert(ctx context.Context, sample Sample) error

	// Latest returns the most recent sample for a device, or ErrNoSamples.
	Latest(ctx context.Context, deviceID string) (Sample, error)

	// List returns recent samples for a device, newest first.
	// Implementations may clamp limit bounds.
	List(ctx context.Context, deviceID string, limit, offset int) ([]Sample, error)

	// CountForDevice returns the number of samples stored for a device.
	CountForDevice(ctx context.Context, deviceID string) (int64, error)

	// Count returns the number of samples stored across all devices.
	Count(ctx context.Context) (int64, error)

	// DeleteForDevice removes every sample for a device, returning how
	// many rows were deleted.
	DeleteForDevice(ctx context.Context, deviceID string) (int64, error)

	// DistinctDevices returns the IDs of devices that have samples,
	// sorted ascending.
	DistinctDevices(ctx context.Context) ([]string, error)
}
