package supervisor

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/wattfleet/core/internal/devicetype"
	"github.com/wattfleet/core/internal/process"
	"github.com/wattfleet/core/internal/settings"
	"github.com/wattfleet/core/internal/statefile"
)

// purgeTimeout bounds the sample purge during DeleteDevice.
const purgeTimeout = 10 * time.Second

// Config holds the supervisor's spawn settings.
type Config struct {
	// WorkerBinary is the executable spawned for device workers,
	// normally the daemon's own binary re-executed in worker mode.
	WorkerBinary string

	// ConfigPath is the application config file handed to workers
	// via --config. Empty means the worker falls back to its own
	// config resolution.
	ConfigPath string

	// SettingsFile is the sampling settings document. It is read
	// fresh before each spawn, so an interval edit applies to every
	// worker started afterward without touching running ones.
	SettingsFile string
}

// Logger defines the logging interface used by the Supervisor.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// SampleStore is the slice of the measurement store the supervisor
// uses: purging a deleted device's samples and counting the fleet's.
type SampleStore interface {
	DeleteForDevice(ctx context.Context, deviceID string) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// workerHandle is the slice of process.Handle the supervisor drives.
type workerHandle interface {
	IsAlive() bool
	PID() int
	Terminate()
}

// spawnFunc launches one worker process. Tests substitute a fake.
type spawnFunc func(cfg process.Config, logger process.Logger) (workerHandle, error)

func defaultSpawn(cfg process.Config, logger process.Logger) (workerHandle, error) {
	return process.Spawn(cfg, logger)
}

// Supervisor manages the lifecycle of every simulated device.
//
// All public methods are safe for concurrent use. Operations are
// serialized under one mutex, including the bounded wait inside a
// worker termination; a stop can therefore delay other operations by
// up to the termination grace periods.
type Supervisor struct {
	config   Config
	registry *devicetype.Registry
	status   *statefile.Store
	samples  SampleStore
	logger   Logger
	spawn    spawnFunc

	mu      sync.Mutex
	workers map[string]workerHandle
}

// New creates a supervisor over the given registry, status document,
// and sample store. Call Reconcile before using it.
func New(cfg Config, registry *devicetype.Registry, status *statefile.Store, samples SampleStore) *Supervisor {
	return &Supervisor{
		config:   cfg,
		registry: registry,
		status:   status,
		samples:  samples,
		logger:   noopLogger{},
		spawn:    defaultSpawn,
		workers:  make(map[string]workerHandle),
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	s.logger = logger
}

// Reconcile brings the persisted status document in line with a fresh
// daemon start: counters keyed by legacy display labels are migrated
// to type ids, and records still marked active are demoted to stopped,
// since no worker process survives a daemon restart.
//
// An unreadable document is logged and replaced with an empty one
// rather than blocking startup.
func (s *Supervisor) Reconcile() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	migrated := false
	demoted := 0
	err := s.status.Update(func(doc *statefile.Document) error {
		migrated = doc.MigrateCounterKeys(func(label string) (string, bool) {
			spec, ok := s.registry.ByLabel(label)
			return spec.ID, ok
		})
		for id, entry := range doc.Devices {
			if entry.Status == statefile.StatusActive {
				entry.Status = statefile.StatusStopped
				doc.Devices[id] = entry
				demoted++
			}
		}
		return nil
	})
	if err != nil {
		s.logger.Error("status file unreadable, resetting", "path", s.status.Path(), "error", err)
		if resetErr := s.status.Reset(); resetErr != nil {
			return fmt.Errorf("resetting status file: %w", resetErr)
		}
		return nil
	}

	if migrated {
		s.logger.Info("migrated legacy counter keys in status file")
	}
	if demoted > 0 {
		s.logger.Info("demoted stale active devices to stopped", "count", demoted)
	}
	return nil
}

// AddDevice allocates the next identifier for a device type and
// records the device as stopped. Identifiers are the type id plus a
// zero-padded per-type counter ("pv001", "pv002", ...); the counter
// is persisted and never reused, so deleting pv002 does not free its
// number.
func (s *Supervisor) AddDevice(typeID string) (string, error) {
	spec, ok := s.registry.ByID(typeID)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownDeviceType, typeID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deviceID string
	err := s.status.Update(func(doc *statefile.Document) error {
		doc.Counters[spec.ID]++
		deviceID = fmt.Sprintf("%s%03d", spec.ID, doc.Counters[spec.ID])
		doc.Devices[deviceID] = statefile.DeviceEntry{
			DeviceType: spec.ID,
			Status:     statefile.StatusStopped,
			CreatedAt:  time.Now().UTC(),
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("adding device: %w", err)
	}

	s.logger.Info("device added", "device_id", deviceID, "device_type", spec.ID)
	return deviceID, nil
}

// StartDevice spawns a worker process for a device. Returns false if
// the device is unknown, already running, or the spawn fails; the
// persisted status stays stopped in every failure case.
func (s *Supervisor) StartDevice(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.workers[deviceID]; ok {
		if h.IsAlive() {
			s.logger.Warn("device already running", "device_id", deviceID, "pid", h.PID())
			return false
		}
		// The worker died on its own; drop the stale handle and respawn.
		delete(s.workers, deviceID)
	}

	doc, err := s.status.Load()
	if err != nil {
		s.logger.Error("loading status file", "device_id", deviceID, "error", err)
		return false
	}
	entry, ok := doc.Devices[deviceID]
	if !ok {
		s.logger.Warn("starting unknown device", "device_id", deviceID)
		return false
	}
	spec, ok := s.registry.ByID(entry.DeviceType)
	if !ok {
		s.logger.Error("device record has unknown type",
			"device_id", deviceID,
			"device_type", entry.DeviceType,
		)
		return false
	}

	cfg, err := settings.Load(s.config.SettingsFile)
	if err != nil {
		s.logger.Warn("loading device settings, using defaults", "error", err)
		cfg = settings.Default()
	}

	args := []string{
		"worker",
		"--device", deviceID,
		"--type", spec.ID,
		"--interval", strconv.Itoa(cfg.MeasurementInterval),
	}
	if s.config.ConfigPath != "" {
		args = append(args, "--config", s.config.ConfigPath)
	}

	h, err := s.spawn(process.Config{
		Name:   deviceID,
		Binary: s.config.WorkerBinary,
		Args:   args,
	}, s.logger)
	if err != nil {
		s.logger.Error("spawning worker", "device_id", deviceID, "error", err)
		return false
	}

	s.workers[deviceID] = h
	s.setStatusLocked(deviceID, statefile.StatusActive)

	s.logger.Info("device started",
		"device_id", deviceID,
		"device_type", spec.ID,
		"interval", cfg.MeasurementInterval,
		"pid", h.PID(),
	)
	return true
}

// StopDevice terminates a device's worker process and marks the
// record stopped. Stopping a device with no tracked worker returns
// false but still forces the persisted status to stopped, healing any
// divergence between the document and reality. Never fails outward.
func (s *Supervisor) StopDevice(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.workers[deviceID]
	if !ok {
		s.setStatusLocked(deviceID, statefile.StatusStopped)
		s.logger.Debug("stop requested for device with no worker", "device_id", deviceID)
		return false
	}

	delete(s.workers, deviceID)
	h.Terminate()
	s.setStatusLocked(deviceID, statefile.StatusStopped)

	s.logger.Info("device stopped", "device_id", deviceID)
	return true
}

// DeleteDevice stops a device's worker if one is tracked, removes its
// record, and purges its stored samples. Idempotent: deleting an
// unknown id succeeds.
func (s *Supervisor) DeleteDevice(deviceID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if h, ok := s.workers[deviceID]; ok {
		delete(s.workers, deviceID)
		h.Terminate()
	}

	err := s.status.Update(func(doc *statefile.Document) error {
		delete(doc.Devices, deviceID)
		return nil
	})
	if err != nil {
		s.logger.Warn("removing device record", "device_id", deviceID, "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()
	removed, err := s.samples.DeleteForDevice(ctx, deviceID)
	if err != nil {
		s.logger.Warn("purging device samples", "device_id", deviceID, "error", err)
	} else if removed > 0 {
		s.logger.Info("purged device samples", "device_id", deviceID, "count", removed)
	}

	s.logger.Info("device deleted", "device_id", deviceID)
	return true
}

// Cleanup terminates every tracked worker and marks the records
// stopped. Called on daemon shutdown.
func (s *Supervisor) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.workers) == 0 {
		return
	}
	s.logger.Info("stopping all workers", "count", len(s.workers))

	for deviceID, h := range s.workers {
		h.Terminate()
		s.setStatusLocked(deviceID, statefile.StatusStopped)
	}
	s.workers = make(map[string]workerHandle)
}

// setStatusLocked rewrites one record's status field. Best effort: a
// persist failure is logged, the operation that caused it proceeds.
// Caller must hold s.mu.
func (s *Supervisor) setStatusLocked(deviceID, status string) {
	err := s.status.Update(func(doc *statefile.Document) error {
		entry, ok := doc.Devices[deviceID]
		if !ok {
			return nil
		}
		entry.Status = status
		doc.Devices[deviceID] = entry
		return nil
	})
	if err != nil {
		s.logger.Warn("persisting device status",
			"device_id", deviceID,
			"status", status,
			"error", err,
		)
	}
}
