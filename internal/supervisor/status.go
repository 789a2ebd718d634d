package supervisor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/wattfleet/core/internal/statefile"
)

// DeviceInfo is the control-plane view of one device. Status reflects
// live reality, not the persisted field: a tracked worker that has
// exited reports stopped even before the document catches up.
type DeviceInfo struct {
	DeviceID   string    `json:"device_id"`
	DeviceType string    `json:"device_type"`
	Label      string    `json:"label"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`

	// PID is the worker's process id, 0 when not running.
	PID int `json:"pid,omitempty"`

	// Registered reports whether the device has been registered with
	// the remote telemetry platform.
	Registered bool `json:"registered"`
}

// FleetStats summarises the fleet for the control plane.
type FleetStats struct {
	Devices int            `json:"devices"`
	Running int            `json:"running"`
	ByType  map[string]int `json:"by_type"`
	Samples int64          `json:"samples"`
}

// DeviceStatus returns the current view of one device. The second
// return value is false when the device does not exist or the status
// document cannot be read.
func (s *Supervisor) DeviceStatus(deviceID string) (DeviceInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.status.Load()
	if err != nil {
		s.logger.Error("loading status file", "error", err)
		return DeviceInfo{}, false
	}
	entry, ok := doc.Devices[deviceID]
	if !ok {
		return DeviceInfo{}, false
	}
	return s.deviceInfoLocked(deviceID, entry), true
}

// ListDevices returns the current view of every device, sorted by
// device id. Returns nil when the status document cannot be read.
func (s *Supervisor) ListDevices() []DeviceInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.status.Load()
	if err != nil {
		s.logger.Error("loading status file", "error", err)
		return nil
	}

	infos := make([]DeviceInfo, 0, len(doc.Devices))
	for deviceID, entry := range doc.Devices {
		infos = append(infos, s.deviceInfoLocked(deviceID, entry))
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].DeviceID < infos[j].DeviceID })
	return infos
}

// Stats returns fleet-wide counts for the control plane.
func (s *Supervisor) Stats(ctx context.Context) (FleetStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.status.Load()
	if err != nil {
		return FleetStats{}, fmt.Errorf("loading status file: %w", err)
	}

	stats := FleetStats{
		Devices: len(doc.Devices),
		ByType:  make(map[string]int),
	}
	for deviceID, entry := range doc.Devices {
		stats.ByType[entry.DeviceType]++
		if h, ok := s.workers[deviceID]; ok && h.IsAlive() {
			stats.Running++
		}
	}

	samples, err := s.samples.Count(ctx)
	if err != nil {
		return FleetStats{}, fmt.Errorf("counting samples: %w", err)
	}
	stats.Samples = samples
	return stats, nil
}

// deviceInfoLocked builds one device's view from its record and any
// tracked worker handle. Caller must hold s.mu.
func (s *Supervisor) deviceInfoLocked(deviceID string, entry statefile.DeviceEntry) DeviceInfo {
	info := DeviceInfo{
		DeviceID:   deviceID,
		DeviceType: entry.DeviceType,
		Status:     entry.Status,
		CreatedAt:  entry.CreatedAt,
		Registered: entry.CumulocityRegistered,
	}
	if spec, ok := s.registry.ByID(entry.DeviceType); ok {
		info.Label = spec.Label
	}

	// A tracked handle is authoritative over the persisted field.
	if h, ok := s.workers[deviceID]; ok {
		if h.IsAlive() {
			info.Status = statefile.StatusActive
			info.PID = h.PID()
		} else {
			info.Status = statefile.StatusStopped
		}
	}
	return info
}
