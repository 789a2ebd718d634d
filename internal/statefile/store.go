package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	dirPermissions  = 0750
	filePermissions = 0600
)

// Store reads and writes the status file. Every mutation rewrites the
// whole file; the mutex serialises read-modify-write cycles within this
// process.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a store for the status file at path. The file is
// created on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the status file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the current document. A missing file yields an empty
// document rather than an error.
func (s *Store) Load() (*Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load()
}

// Update applies fn to the current document and writes the result back.
// The whole cycle runs under the store lock, so fn must not call back
// into the store. If fn returns an error the file is left unchanged.
func (s *Store) Update(fn func(*Document) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.save(doc)
}

// Reset replaces the status file with an empty document. The recovery
// path for an unreadable file: log, reset, carry on with nothing.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.save(NewDocument())
}

// Registered reports whether deviceID has a platform registration on
// record, returning the registered device name when it does.
func (s *Store) Registered(deviceID string) (string, bool, error) {
	doc, err := s.Load()
	if err != nil {
		return "", false, err
	}

	entry, ok := doc.Devices[deviceID]
	if !ok || !entry.CumulocityRegistered {
		return "", false, nil
	}
	return entry.CumulocityDeviceName, true, nil
}

// MarkRegistered records a successful platform registration for deviceID.
// The device entry must already exist; registration never creates devices.
func (s *Store) MarkRegistered(deviceID, name string, at time.Time) error {
	return s.Update(func(doc *Document) error {
		entry, ok := doc.Devices[deviceID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrDeviceNotFound, deviceID)
		}
		entry.CumulocityRegistered = true
		entry.CumulocityDeviceName = name
		entry.CumulocityRegisteredAt = &at
		doc.Devices[deviceID] = entry
		return nil
	})
}

func (s *Store) load() (*Document, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading status file: %w", err)
	}

	doc := NewDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("parsing status file: %w", err)
	}
	if doc.Counters == nil {
		doc.Counters = make(map[string]int)
	}
	if doc.Devices == nil {
		doc.Devices = make(map[string]DeviceEntry)
	}
	return doc, nil
}

func (s *Store) save(doc *Document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding status file: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), dirPermissions); err != nil {
		return fmt.Errorf("creating status file directory: %w", err)
	}
	if err := os.WriteFile(s.path, data, filePermissions); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	return nil
}
