// wattfleet - Virtual Energy Device Fleet
//
// This is the main entry point for the wattfleet simulator. One binary
// serves two roles:
//   - Daemon (default): owns the fleet. Reconciles persisted device
//     state on startup, supervises device worker processes, and tears
//     the fleet down on shutdown.
//   - Worker ("wattfleet worker --device pv001 ..."): a single
//     simulated device. Samples voltage/current/power on an interval,
//     persists to SQLite, and forwards to the platform uplink and the
//     optional InfluxDB mirror.
//
// The daemon spawns workers by re-executing its own binary in worker
// mode, so a deployment is exactly one executable.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/wattfleet/core/migrations"

	"github.com/wattfleet/core/internal/devicetype"
	"github.com/wattfleet/core/internal/infrastructure/config"
	"github.com/wattfleet/core/internal/infrastructure/database"
	"github.com/wattfleet/core/internal/infrastructure/influxdb"
	"github.com/wattfleet/core/internal/infrastructure/logging"
	"github.com/wattfleet/core/internal/measurement"
	"github.com/wattfleet/core/internal/statefile"
	"github.com/wattfleet/core/internal/supervisor"
	"github.com/wattfleet/core/internal/uplink"
	"github.com/wattfleet/core/internal/worker"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// workerCommand selects worker mode when given as the first argument.
const workerCommand = "worker"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	// This is the Go pattern for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Worker mode: one simulated device, normally spawned by the daemon
	if len(os.Args) > 1 && os.Args[1] == workerCommand {
		if err := runWorker(ctx, os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// Run the daemon
	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the daemon logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting wattfleet",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Resolve the worker binary: re-execute ourselves unless overridden
	workerBinary := cfg.Fleet.WorkerBinary
	if workerBinary == "" {
		workerBinary, err = os.Executable()
		if err != nil {
			return fmt.Errorf("locating worker binary: %w", err)
		}
	}

	// Build the fleet supervisor
	registry := devicetype.NewRegistry()
	status := statefile.NewStore(cfg.Fleet.StatusFile)
	samples := measurement.NewSQLiteStore(db.DB)

	sup := supervisor.New(supervisor.Config{
		WorkerBinary: workerBinary,
		ConfigPath:   configPath,
		SettingsFile: cfg.Fleet.DeviceSettingsFile,
	}, registry, status, samples)
	sup.SetLogger(log)
	defer func() {
		log.Info("stopping device workers")
		sup.Cleanup()
	}()

	// Reconcile persisted device state: stale active records are
	// demoted and legacy counter keys migrated before any worker runs
	if reconcileErr := sup.Reconcile(); reconcileErr != nil {
		return fmt.Errorf("reconciling device state: %w", reconcileErr)
	}

	stats, err := sup.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading fleet stats: %w", err)
	}
	log.Info("fleet reconciled",
		"devices", stats.Devices,
		"samples", stats.Samples,
		"status_file", status.Path(),
	)

	// Verify infrastructure is healthy
	if err := healthCheck(ctx, db); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred calls run in reverse order:
	// 1. Device workers (supervisor cleanup)
	// 2. Database

	log.Info("wattfleet stopped")
	return nil
}

// runWorker is the worker-mode logic: one simulated device sampling
// until the context is cancelled.
//
// The daemon passes --device, --type, --interval and --config when it
// spawns a worker; --type is advisory and the device id prefix is the
// durable binding, so a worker started by hand can omit it.
func runWorker(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet(workerCommand, flag.ContinueOnError)
	deviceID := flags.String("device", "", "device identifier, e.g. pv001")
	typeID := flags.String("type", "", "device type id (pv, heatpump, maingrid)")
	interval := flags.Int("interval", 0, "seconds between samples (0 means default)")
	configFlag := flags.String("config", "", "path to the YAML config file")
	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("parsing worker flags: %w", err)
	}
	if *deviceID == "" {
		return errors.New("worker mode requires --device")
	}

	configPath := *configFlag
	if configPath == "" {
		configPath = getConfigPath()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version).With("device_id", *deviceID)
	log.Info("starting device worker",
		"version", version,
		"type", *typeID,
		"interval", *interval,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	// Safe to run alongside the daemon and sibling workers: applied
	// versions are tracked, and WAL plus the busy timeout serialise
	// the writes
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}

	registry := devicetype.NewRegistry()
	spec, ok := registry.ByID(*typeID)
	if !ok {
		spec, ok = registry.FromDeviceID(*deviceID)
	}
	if !ok {
		return fmt.Errorf("no device type for %q", *deviceID)
	}

	samples := measurement.NewSQLiteStore(db.DB)

	up, closeUplink := connectUplink(*deviceID, spec, cfg, log)
	defer closeUplink()

	w := worker.New(worker.Config{
		DeviceID: *deviceID,
		Interval: time.Duration(*interval) * time.Second,
	}, spec, samples, up)
	w.SetLogger(log)

	if mirror := connectMirror(cfg, log); mirror != nil {
		defer func() {
			if closeErr := mirror.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		w.SetMirror(mirror)
	}

	err = w.Run(ctx)
	log.Info("device worker stopped")
	return err
}

// getConfigPath returns the configuration file path.
// Uses WATTFLEET_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("WATTFLEET_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// healthCheck verifies infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - db: Database connection to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, db *database.DB) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// connectUplink builds the platform session for a device, or returns a
// nil uplink when the feature is disabled or its settings are broken.
//
// Uplink trouble never stops a worker: connect and registration
// failures are logged and the session retries inline on later sends,
// so the device keeps sampling offline. The returned func disconnects
// the session (a no-op when there is none).
func connectUplink(deviceID string, spec devicetype.Spec, cfg *config.Config, log *logging.Logger) (worker.Uplink, func()) {
	settings, err := uplink.LoadSettings(cfg.Fleet.UplinkSettingsFile)
	if err != nil {
		log.Warn("unreadable uplink settings, running offline", "error", err)
		return nil, func() {}
	}
	if !settings.Enabled {
		log.Info("uplink disabled, samples stay local")
		return nil, func() {}
	}

	// Registration records live in the shared device-status file, so a
	// device registers on the platform at most once across restarts.
	session := uplink.NewSession(deviceID, settings, statefile.NewStore(cfg.Fleet.StatusFile), log)

	if connErr := session.Connect(); connErr != nil {
		log.Warn("uplink connect failed, continuing offline", "error", connErr)
		return session, session.Disconnect
	}

	if regErr := session.Register(spec.ID, settings.DeviceName(deviceID), false); regErr != nil {
		log.Warn("registering device on platform", "error", regErr)
	}

	return session, session.Disconnect
}

// connectMirror opens the optional time-series mirror.
//
// The mirror is best effort: when InfluxDB cannot be reached the
// worker logs and keeps sampling, since SQLite remains the system of
// record. Returns nil when disabled or unavailable.
func connectMirror(cfg *config.Config, log *logging.Logger) *influxdb.Client {
	if !cfg.InfluxDB.Enabled {
		return nil
	}

	mirror, err := influxdb.Connect(cfg.InfluxDB)
	if err != nil {
		log.Warn("InfluxDB mirror unavailable", "error", err)
		return nil
	}
	mirror.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB mirror connected",
		"url", cfg.InfluxDB.URL,
		"bucket", cfg.InfluxDB.Bucket,
	)

	return mirror
}
