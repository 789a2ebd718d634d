// Package settings loads and saves the shared device settings file.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Bounds for the measurement interval in seconds.
const (
	DefaultMeasurementInterval = 5
	MinMeasurementInterval     = 1
	MaxMeasurementInterval     = 300
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// Settings holds behaviour shared by every device worker. The supervisor
// reads it when spawning workers; the file can be edited between spawns
// to change the cadence of the whole fleet.
type Settings struct {
	// MeasurementInterval is the pause between samples in seconds.
	MeasurementInterval int `json:"measurement_interval"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{MeasurementInterval: DefaultMeasurementInterval}
}

// ClampInterval forces an interval in seconds into the supported range.
func ClampInterval(seconds int) int {
	if seconds < MinMeasurementInterval {
		return MinMeasurementInterval
	}
	if seconds > MaxMeasurementInterval {
		return MaxMeasurementInterval
	}
	return seconds
}

// Load reads the settings file at path. A missing file yields the
// defaults; out-of-range intervals are clamped rather than rejected.
func Load(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, fmt.Errorf("reading settings file: %w", err)
	}

	if err := json.Unmarshal(data, &s); err != nil {
		return Default(), fmt.Errorf("parsing settings file: %w", err)
	}

	s.MeasurementInterval = ClampInterval(s.MeasurementInterval)
	return s, nil
}

// Save writes the settings file at path, clamping values into range first.
func Save(path string, s Settings) error {
	s.MeasurementInterval = ClampInterval(s.MeasurementInterval)

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding settings file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPermissions); err != nil {
		return fmt.Errorf("creating settings directory: %w", err)
	}
	if err := os.WriteFile(path, data, filePermissions); err != nil {
		return fmt.Errorf("writing settings file: %w", err)
	}
	return nil
}
