package devicetype

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Range is an inclusive interval for a generated electrical value.
type Range struct {
	Min float64
	Max float64
}

// Spec describes one device variant.
type Spec struct {
	// ID is the short type identifier used as the device-id prefix and
	// as the counter key in the status file (e.g. "pv").
	ID string

	// Label is the display name, also used when registering the device
	// with the remote platform (e.g. "PV", "Heat Pump").
	Label string

	// Voltage and Current bound the generated readings. Power is always
	// derived as voltage × current, never generated independently.
	Voltage Range
	Current Range
}

// Registry holds the known device variants.
//
// All methods are safe for concurrent use. The built-in variants are
// present from construction; Register adds more.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec // keyed by Spec.ID
}

// NewRegistry returns a registry seeded with the built-in variants:
// PV inverter, heat pump, and grid-tie meter.
func NewRegistry() *Registry {
	r := &Registry{specs: make(map[string]Spec)}

	// Ranges reflect plausible single-phase European installations.
	builtins := []Spec{
		{
			ID:      "pv",
			Label:   "PV",
			Voltage: Range{Min: 200, Max: 250},
			Current: Range{Min: 5, Max: 15},
		},
		{
			ID:      "heatpump",
			Label:   "Heat Pump",
			Voltage: Range{Min: 220, Max: 240},
			Current: Range{Min: 8, Max: 20},
		},
		{
			ID:      "maingrid",
			Label:   "Main Grid",
			Voltage: Range{Min: 230, Max: 240},
			Current: Range{Min: 10, Max: 50},
		},
	}
	for _, s := range builtins {
		r.specs[s.ID] = s
	}

	return r
}

// Register adds a variant to the registry.
//
// The ID must be non-empty lowercase without digits (digits would make
// device-id prefix resolution ambiguous) and not already taken.
func (r *Registry) Register(spec Spec) error {
	if spec.ID == "" {
		return fmt.Errorf("registering device type: empty id")
	}
	if strings.ContainsAny(spec.ID, "0123456789") {
		return fmt.Errorf("registering device type %q: id must not contain digits", spec.ID)
	}
	if spec.ID != strings.ToLower(spec.ID) {
		return fmt.Errorf("registering device type %q: id must be lowercase", spec.ID)
	}
	if spec.Label == "" {
		return fmt.Errorf("registering device type %q: empty label", spec.ID)
	}
	if spec.Voltage.Min > spec.Voltage.Max || spec.Current.Min > spec.Current.Max {
		return fmt.Errorf("registering device type %q: inverted range", spec.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.specs[spec.ID]; exists {
		return fmt.Errorf("registering device type %q: already registered", spec.ID)
	}
	r.specs[spec.ID] = spec
	return nil
}

// ByID looks up a variant by its type identifier (e.g. "pv").
func (r *Registry) ByID(id string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	spec, ok := r.specs[id]
	return spec, ok
}

// ByLabel looks up a variant by its display label (e.g. "Heat Pump").
//
// Labels appear as counter keys in status files written by older
// builds, so this lookup also serves the counter migration.
func (r *Registry) ByLabel(label string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, spec := range r.specs {
		if spec.Label == label {
			return spec, true
		}
	}
	return Spec{}, false
}

// FromDeviceID resolves a device identifier ("pv001") to its variant by
// longest matching ID prefix.
func (r *Registry) FromDeviceID(deviceID string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best Spec
	found := false
	for _, spec := range r.specs {
		if strings.HasPrefix(deviceID, spec.ID) {
			if !found || len(spec.ID) > len(best.ID) {
				best = spec
				found = true
			}
		}
	}
	return best, found
}

// Specs returns all registered variants sorted by ID.
func (r *Registry) Specs() []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Spec, 0, len(r.specs))
	for _, spec := range r.specs {
		out = append(out, spec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
