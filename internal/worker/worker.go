package worker

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/wattfleet/core/internal/devicetype"
	"github.com/wattfleet/core/internal/measurement"
	"github.com/wattfleet/core/internal/uplink"
)

const (
	// defaultInterval is used when the configured interval is missing.
	defaultInterval = 5 * time.Second

	// insertTimeout bounds one sample write.
	insertTimeout = 5 * time.Second

	// persistFailureAlarmThreshold is the consecutive persist-failure
	// count at which the worker raises a platform alarm.
	persistFailureAlarmThreshold = 3

	// storageAlarmType is the alarm raised for failing sample storage.
	storageAlarmType = "c8y_StorageAlarm"
)

// Config binds a worker to its device.
type Config struct {
	// DeviceID is the device this worker samples for.
	DeviceID string

	// Interval is the pause between samples.
	Interval time.Duration
}

// Logger defines the logging interface used by the worker.
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

// SampleStore is the slice of the measurement store the worker uses.
type SampleStore interface {
	Insert(ctx context.Context, sample measurement.Sample) error
	Latest(ctx context.Context, deviceID string) (measurement.Sample, error)
}

// Uplink is the telemetry surface the worker drives. Satisfied by
// *uplink.Session. A nil Uplink runs the loop offline.
type Uplink interface {
	SendMeasurement(m uplink.Measurement) error
	SendAlarm(alarmType, text, severity string) error
}

// Mirror receives a copy of every persisted sample. Satisfied by the
// InfluxDB client; nil disables mirroring.
type Mirror interface {
	WriteSample(deviceID, deviceType string, voltage, current, power, kwh float64, ts time.Time)
}

// Worker runs the sampling loop for one device.
type Worker struct {
	config  Config
	spec    devicetype.Spec
	samples SampleStore
	uplink  Uplink
	mirror  Mirror
	logger  Logger

	rng *rand.Rand
	now func() time.Time

	// after paces the loop between iterations.
	after func(d time.Duration) <-chan time.Time

	// persistFailures counts consecutive failed sample writes.
	persistFailures int
}

// New creates a worker for one device. spec supplies the value ranges
// for generated readings; up may be nil for offline operation.
func New(cfg Config, spec devicetype.Spec, samples SampleStore, up Uplink) *Worker {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	return &Worker{
		config:  cfg,
		spec:    spec,
		samples: samples,
		uplink:  up,
		logger:  noopLogger{},
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:     time.Now,
		after:   time.After,
	}
}

// SetLogger sets the logger for the worker.
func (w *Worker) SetLogger(logger Logger) {
	w.logger = logger
}

// SetMirror sets the optional time-series mirror.
func (w *Worker) SetMirror(m Mirror) {
	w.mirror = m
}

// Run executes the sampling loop until ctx is cancelled.
//
// Each iteration generates a reading, persists it, and forwards it.
// Persist and forward failures are logged and the loop continues; only
// a failure to read the device's previous sample at startup is fatal,
// because the energy counter cannot resume without it.
func (w *Worker) Run(ctx context.Context) error {
	var (
		base     float64
		prevAt   time.Time
		havePrev bool
	)
	prev, err := w.samples.Latest(ctx, w.config.DeviceID)
	switch {
	case err == nil:
		base, prevAt, havePrev = prev.Kwh, prev.Timestamp, true
	case errors.Is(err, measurement.ErrNoSamples):
	default:
		return fmt.Errorf("loading previous sample: %w", err)
	}

	w.logger.Info("sampling loop starting",
		"device_id", w.config.DeviceID,
		"device_type", w.spec.ID,
		"interval", w.config.Interval,
		"kwh", base,
	)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		at := w.now().UTC()
		reading := w.spec.Generate(w.rng)

		// The first sample has no predecessor; charge it one full
		// configured interval so fixed-rate runs accumulate linearly
		// from sample one.
		window := w.config.Interval
		if havePrev {
			if elapsed := at.Sub(prevAt); elapsed > 0 {
				window = elapsed
			}
		}
		kwh := energyAfter(base, reading.Power, window)

		sample := measurement.Sample{
			DeviceID:  w.config.DeviceID,
			Timestamp: at,
			Voltage:   reading.Voltage,
			Current:   reading.Current,
			Power:     reading.Power,
			Kwh:       kwh,
		}

		if err := w.persist(ctx, sample); err != nil {
			w.logger.Error("persisting sample",
				"device_id", w.config.DeviceID,
				"error", err,
			)
			w.persistFailures++
			if w.persistFailures == persistFailureAlarmThreshold {
				w.raiseStorageAlarm(err)
			}
		} else {
			w.persistFailures = 0
			base, prevAt, havePrev = kwh, at, true
			w.forward(sample)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-w.after(w.config.Interval):
		}
	}
}

// persist writes one sample with a bounded timeout.
func (w *Worker) persist(ctx context.Context, sample measurement.Sample) error {
	insertCtx, cancel := context.WithTimeout(ctx, insertTimeout)
	defer cancel()
	return w.samples.Insert(insertCtx, sample)
}

// forward hands a persisted sample to the mirror and the uplink.
func (w *Worker) forward(sample measurement.Sample) {
	if w.mirror != nil {
		w.mirror.WriteSample(
			sample.DeviceID, w.spec.ID,
			sample.Voltage, sample.Current, sample.Power, sample.Kwh,
			sample.Timestamp,
		)
	}

	if w.uplink == nil {
		return
	}
	err := w.uplink.SendMeasurement(uplink.Measurement{
		Timestamp: sample.Timestamp,
		Voltage:   sample.Voltage,
		Current:   sample.Current,
		Power:     sample.Power,
		Kwh:       sample.Kwh,
	})
	if err != nil {
		// Offline is routine while the session reconnects; anything
		// else deserves attention.
		if errors.Is(err, uplink.ErrNotConnected) {
			w.logger.Debug("uplink offline, sample not forwarded",
				"device_id", w.config.DeviceID,
			)
		} else {
			w.logger.Warn("forwarding sample",
				"device_id", w.config.DeviceID,
				"error", err,
			)
		}
	}
}

// raiseStorageAlarm reports persistent storage trouble to the platform.
// Raised once per failure streak.
func (w *Worker) raiseStorageAlarm(cause error) {
	if w.uplink == nil {
		return
	}
	text := fmt.Sprintf("Measurement storage failing: %v", cause)
	if err := w.uplink.SendAlarm(storageAlarmType, text, uplink.SeverityMinor); err != nil {
		w.logger.Warn("raising storage alarm",
			"device_id", w.config.DeviceID,
			"error", err,
		)
	}
}
