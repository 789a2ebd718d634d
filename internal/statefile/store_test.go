package statefile

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "device_status.json"))
}

func TestStore_Load_MissingFile(t *testing.T) {
	store := testStore(t)

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Counters == nil || doc.Devices == nil {
		t.Fatal("Load() returned document with nil maps")
	}
	if len(doc.Counters) != 0 || len(doc.Devices) != 0 {
		t.Errorf("Load() = %+v, want empty document", doc)
	}
}

func TestStore_Load_InvalidJSON(t *testing.T) {
	store := testStore(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if _, err := store.Load(); err == nil {
		t.Error("Load() error = nil, want parse error")
	}
}

func TestStore_Reset_ReplacesCorruptFile(t *testing.T) {
	store := testStore(t)
	if err := os.WriteFile(store.Path(), []byte("{not json"), 0600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	if err := store.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load() after Reset error = %v", err)
	}
	if len(doc.Counters) != 0 || len(doc.Devices) != 0 {
		t.Errorf("Load() after Reset = %+v, want empty document", doc)
	}
}

func TestStore_Load_EmptyObject(t *testing.T) {
	store := testStore(t)
	if err := os.WriteFile(store.Path(), []byte("{}"), 0600); err != nil {
		t.Fatalf("writing file: %v", err)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Counters == nil || doc.Devices == nil {
		t.Error("Load() returned document with nil maps")
	}
}

func TestStore_Update_Persists(t *testing.T) {
	store := testStore(t)

	err := store.Update(func(doc *Document) error {
		doc.Counters["pv"] = 3
		doc.Devices["pv003"] = DeviceEntry{
			DeviceType: "pv",
			Status:     StatusActive,
			CreatedAt:  time.Date(2025, 7, 12, 9, 0, 0, 0, time.UTC),
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	// A fresh store at the same path sees the write.
	doc, err := NewStore(store.Path()).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Counters["pv"] != 3 {
		t.Errorf("Counters[pv] = %d, want 3", doc.Counters["pv"])
	}
	entry, ok := doc.Devices["pv003"]
	if !ok {
		t.Fatal("Devices[pv003] missing after Update")
	}
	if entry.DeviceType != "pv" || entry.Status != StatusActive {
		t.Errorf("entry = %+v, want pv/active", entry)
	}
}

func TestStore_Update_FnErrorLeavesFileUnchanged(t *testing.T) {
	store := testStore(t)

	if err := store.Update(func(doc *Document) error {
		doc.Counters["pv"] = 1
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	wantErr := errors.New("nope")
	err := store.Update(func(doc *Document) error {
		doc.Counters["pv"] = 99
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Update() error = %v, want %v", err, wantErr)
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if doc.Counters["pv"] != 1 {
		t.Errorf("Counters[pv] = %d, want 1 (failed update must not persist)", doc.Counters["pv"])
	}
}

func TestStore_MarkRegistered(t *testing.T) {
	store := testStore(t)

	if err := store.Update(func(doc *Document) error {
		doc.Devices["pv001"] = DeviceEntry{
			DeviceType: "pv",
			Status:     StatusActive,
			CreatedAt:  time.Now().UTC(),
		}
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	if _, ok, err := store.Registered("pv001"); err != nil || ok {
		t.Fatalf("Registered() = %v, %v; want false, nil before registration", ok, err)
	}

	at := time.Date(2025, 7, 12, 10, 30, 0, 0, time.UTC)
	if err := store.MarkRegistered("pv001", "iot_sim_pv001", at); err != nil {
		t.Fatalf("MarkRegistered() error = %v", err)
	}

	name, ok, err := store.Registered("pv001")
	if err != nil {
		t.Fatalf("Registered() error = %v", err)
	}
	if !ok {
		t.Fatal("Registered() = false after MarkRegistered")
	}
	if name != "iot_sim_pv001" {
		t.Errorf("name = %q, want %q", name, "iot_sim_pv001")
	}

	doc, err := store.Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	entry := doc.Devices["pv001"]
	if entry.CumulocityRegisteredAt == nil || !entry.CumulocityRegisteredAt.Equal(at) {
		t.Errorf("CumulocityRegisteredAt = %v, want %v", entry.CumulocityRegisteredAt, at)
	}
}

func TestStore_MarkRegistered_UnknownDevice(t *testing.T) {
	store := testStore(t)

	err := store.MarkRegistered("pv999", "iot_sim_pv999", time.Now())
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("MarkRegistered() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestStore_Registered_UnknownDevice(t *testing.T) {
	store := testStore(t)

	name, ok, err := store.Registered("pv999")
	if err != nil {
		t.Fatalf("Registered() error = %v", err)
	}
	if ok || name != "" {
		t.Errorf("Registered() = %q, %v; want empty, false", name, ok)
	}
}

func TestStore_FileShape(t *testing.T) {
	store := testStore(t)

	at := time.Date(2025, 7, 12, 10, 30, 0, 0, time.UTC)
	if err := store.Update(func(doc *Document) error {
		doc.Counters["pv"] = 2
		doc.Devices["pv001"] = DeviceEntry{
			DeviceType:             "pv",
			Status:                 StatusStopped,
			CreatedAt:              at,
			CumulocityRegistered:   true,
			CumulocityDeviceName:   "iot_sim_pv001",
			CumulocityRegisteredAt: &at,
		}
		doc.Devices["pv002"] = DeviceEntry{
			DeviceType: "pv",
			Status:     StatusActive,
			CreatedAt:  at,
		}
		return nil
	}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatalf("reading file: %v", err)
	}

	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("parsing file: %v", err)
	}

	var registered map[string]any
	if err := json.Unmarshal(raw["devices"]["pv001"], &registered); err != nil {
		t.Fatalf("parsing entry: %v", err)
	}
	for _, key := range []string{"device_type", "status", "created_at",
		"cumulocity_registered", "cumulocity_device_name", "cumulocity_registered_at"} {
		if _, ok := registered[key]; !ok {
			t.Errorf("registered entry missing key %q", key)
		}
	}

	var unregistered map[string]any
	if err := json.Unmarshal(raw["devices"]["pv002"], &unregistered); err != nil {
		t.Fatalf("parsing entry: %v", err)
	}
	for _, key := range []string{"cumulocity_registered", "cumulocity_device_name", "cumulocity_registered_at"} {
		if _, ok := unregistered[key]; ok {
			t.Errorf("unregistered entry has key %q, want omitted", key)
		}
	}
}
