package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the wattfleet daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
//
// The runtime JSON documents (device status, sampling settings, uplink
// settings) are NOT part of this file; Config only carries their paths.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	Fleet    FleetConfig    `yaml:"fleet"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// FleetConfig contains paths to the fleet's runtime state documents and
// the worker spawn settings.
type FleetConfig struct {
	// StatusFile is the persisted device-status document. It holds the
	// per-type ID counters, every device record, and the remote
	// registration records. Shared with worker processes.
	StatusFile string `yaml:"status_file"`

	// DeviceSettingsFile holds the global sampling settings.
	DeviceSettingsFile string `yaml:"device_settings_file"`

	// UplinkSettingsFile holds the telemetry uplink settings.
	UplinkSettingsFile string `yaml:"uplink_settings_file"`

	// WorkerBinary overrides the executable spawned for device workers.
	// Empty means re-execute the running binary in worker mode.
	WorkerBinary string `yaml:"worker_binary"`
}

// InfluxDBConfig contains settings for the optional time-series mirror.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// A .env file in the working directory is loaded first if present, so
// local development can keep tokens out of the shell profile.
//
// Environment variables follow the pattern: WATTFLEET_SECTION_KEY
// For example: WATTFLEET_DATABASE_PATH, WATTFLEET_INFLUXDB_TOKEN
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Best effort; absence of a .env file is the normal case.
	_ = godotenv.Load()

	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/wattfleet.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Fleet: FleetConfig{
			StatusFile:         "./data/device_status.json",
			DeviceSettingsFile: "./data/device_settings.json",
			UplinkSettingsFile: "./data/mqtt_settings.json",
		},
		InfluxDB: InfluxDBConfig{
			Enabled:       false,
			URL:           "http://localhost:8086",
			Bucket:        "wattfleet",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WATTFLEET_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Database
	if v := os.Getenv("WATTFLEET_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// Fleet state documents
	if v := os.Getenv("WATTFLEET_STATUS_FILE"); v != "" {
		cfg.Fleet.StatusFile = v
	}
	if v := os.Getenv("WATTFLEET_DEVICE_SETTINGS_FILE"); v != "" {
		cfg.Fleet.DeviceSettingsFile = v
	}
	if v := os.Getenv("WATTFLEET_UPLINK_SETTINGS_FILE"); v != "" {
		cfg.Fleet.UplinkSettingsFile = v
	}

	// InfluxDB
	if v := os.Getenv("WATTFLEET_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("WATTFLEET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Database.BusyTimeout < 0 {
		errs = append(errs, "database.busy_timeout must not be negative")
	}

	// Fleet validation
	if c.Fleet.StatusFile == "" {
		errs = append(errs, "fleet.status_file is required")
	}
	if c.Fleet.DeviceSettingsFile == "" {
		errs = append(errs, "fleet.device_settings_file is required")
	}
	if c.Fleet.UplinkSettingsFile == "" {
		errs = append(errs, "fleet.uplink_settings_file is required")
	}

	// InfluxDB validation only matters when the mirror is on
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Org == "" {
			errs = append(errs, "influxdb.org is required when influxdb.enabled is true")
		}
		if c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.bucket is required when influxdb.enabled is true")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
