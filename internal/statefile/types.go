package statefile

import "time"

// Device lifecycle status values stored in the document.
const (
	StatusActive  = "active"
	StatusStopped = "stopped"
)

// Document is the on-disk layout of the status file.
type Document struct {
	Counters map[string]int         `json:"counters"`
	Devices  map[string]DeviceEntry `json:"devices"`
}

// DeviceEntry records one simulated device. The cumulocity fields are
// written by the device's worker after a successful platform registration
// and stay absent until then.
type DeviceEntry struct {
	DeviceType             string     `json:"device_type"`
	Status                 string     `json:"status"`
	CreatedAt              time.Time  `json:"created_at"`
	CumulocityRegistered   bool       `json:"cumulocity_registered,omitempty"`
	CumulocityDeviceName   string     `json:"cumulocity_device_name,omitempty"`
	CumulocityRegisteredAt *time.Time `json:"cumulocity_registered_at,omitempty"`
}

// NewDocument returns an empty document with initialised maps.
func NewDocument() *Document {
	return &Document{
		Counters: make(map[string]int),
		Devices:  make(map[string]DeviceEntry),
	}
}

// MigrateCounterKeys rewrites counters keyed by legacy display labels
// ("Heat Pump") to their type IDs ("heatpump"). Earlier builds keyed the
// counter map by label, so both forms can coexist in one file; when they
// do, the merged value takes the higher count so already-allocated IDs
// stay unique. Keys that resolve to no known label are left untouched.
// Reports whether the document changed.
func (d *Document) MigrateCounterKeys(idForLabel func(label string) (string, bool)) bool {
	changed := false
	for key, count := range d.Counters {
		id, ok := idForLabel(key)
		if !ok || id == key {
			continue
		}
		if count > d.Counters[id] {
			d.Counters[id] = count
		}
		delete(d.Counters, key)
		changed = true
	}
	return changed
}
