package uplink

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Broker port defaults. The TLS port overrides broker_port whenever
// use_ssl is set, matching how the platform exposes its endpoints.
const (
	defaultBrokerPort = 1883
	tlsBrokerPort     = 8883
)

// DefaultDevicePrefix is prepended to device IDs to form the name the
// device registers under on the platform.
const DefaultDevicePrefix = "iot_sim_"

const settingsFilePermissions = 0o600

// Settings mirrors mqtt_settings.json. A missing file or missing keys
// fall back to defaults with the uplink disabled, so a fresh install
// runs fully offline until a broker is configured.
type Settings struct {
	Enabled    bool   `json:"enabled"`
	BrokerHost string `json:"broker_host"`
	BrokerPort int    `json:"broker_port"`
	Username   string `json:"username"`
	Password   string `json:"password"`
	Tenant     string `json:"tenant"`
	UseSSL     bool   `json:"use_ssl"`

	// TLS material. CACertPath is the broker CA bundle; the client
	// cert/key pair is only needed for mutual TLS and may be empty.
	CACertPath     string `json:"ca_cert_path,omitempty"`
	ClientCertPath string `json:"client_cert_path,omitempty"`
	ClientKeyPath  string `json:"client_key_path,omitempty"`

	// DevicePrefix namespaces simulated devices on the platform so they
	// are easy to find (and bulk-delete) in the device inventory.
	DevicePrefix string `json:"device_prefix"`
}

// DefaultSettings returns the disabled, unconfigured defaults.
func DefaultSettings() Settings {
	return Settings{
		Enabled:      false,
		BrokerPort:   defaultBrokerPort,
		DevicePrefix: DefaultDevicePrefix,
	}
}

// LoadSettings reads uplink settings from the given JSON file.
//
// A missing file is not an error: defaults are returned so devices run
// without an uplink. Keys absent from the file keep their defaults.
//
// Returns:
//   - Settings: Parsed settings, normalised
//   - error: If the file exists but cannot be read or parsed
func LoadSettings(path string) (Settings, error) {
	settings := DefaultSettings()

	data, err := os.ReadFile(path) //nolint:gosec // Path comes from our own config
	if err != nil {
		if os.IsNotExist(err) {
			return settings, nil
		}
		return settings, fmt.Errorf("reading uplink settings: %w", err)
	}

	if err := json.Unmarshal(data, &settings); err != nil {
		return settings, fmt.Errorf("parsing uplink settings: %w", err)
	}

	return normalise(settings), nil
}

// SaveSettings writes settings to the given path as indented JSON,
// creating parent directories as needed.
func SaveSettings(path string, settings Settings) error {
	settings = normalise(settings)

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding uplink settings: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating uplink settings directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, settingsFilePermissions); err != nil {
		return fmt.Errorf("writing uplink settings: %w", err)
	}

	return nil
}

// normalise backfills zero values that would otherwise produce an
// unusable configuration.
func normalise(settings Settings) Settings {
	if settings.BrokerPort <= 0 {
		settings.BrokerPort = defaultBrokerPort
	}
	if settings.DevicePrefix == "" {
		settings.DevicePrefix = DefaultDevicePrefix
	}
	return settings
}

// EffectivePort returns the port used for the connection. TLS always
// uses the platform TLS port regardless of broker_port.
func (s Settings) EffectivePort() int {
	if s.UseSSL {
		return tlsBrokerPort
	}
	return s.BrokerPort
}

// BrokerURL returns the broker URL in the scheme://host:port form paho
// expects, with ssl:// when TLS is enabled.
func (s Settings) BrokerURL() string {
	scheme := "tcp"
	if s.UseSSL {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.BrokerHost, s.EffectivePort())
}

// EffectiveUsername returns the tenant-qualified username the platform
// expects ("tenant/user"), or the bare username when no tenant is set.
func (s Settings) EffectiveUsername() string {
	if s.Tenant != "" && s.Username != "" {
		return s.Tenant + "/" + s.Username
	}
	return s.Username
}

// DeviceName returns the platform inventory name for a device ID.
func (s Settings) DeviceName(deviceID string) string {
	return s.DevicePrefix + deviceID
}
