package uplink

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// Connection constants.
const (
	// connectTimeout is the maximum time Connect blocks waiting for the
	// broker to accept or reject the connection.
	connectTimeout = 10 * time.Second

	// publishTimeout is the maximum time to wait for an acknowledged
	// publish (registration, operation status).
	publishTimeout = 5 * time.Second

	// disconnectQuiesce is the time allowed for in-flight messages to
	// drain on disconnect.
	disconnectQuiesce = 1000 // milliseconds

	// keepAlive is the MQTT keepalive interval.
	keepAlive = 60 * time.Second

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// QoS levels by intent. Telemetry is fire-and-forget; registration and
// operation status updates wait for broker acknowledgment.
const (
	qosAtMostOnce  byte = 0
	qosAtLeastOnce byte = 1
)

// clientID returns the broker client identifier for a device. The
// timestamp suffix keeps a restarted worker from colliding with its
// previous session on the broker.
func clientID(deviceID string, now time.Time) string {
	return fmt.Sprintf("%s_%d", deviceID, now.Unix())
}

// buildClientOptions creates paho MQTT options from uplink settings.
//
// Auto-reconnect and connect-retry are deliberately disabled: the
// session runs its own reconnection loop so it can count attempts and
// give up terminally, which paho's built-in retry cannot do.
func buildClientOptions(settings Settings, id string) (*pahomqtt.ClientOptions, error) {
	if settings.BrokerHost == "" {
		return nil, fmt.Errorf("%w: broker host not configured", ErrConnectionFailed)
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(settings.BrokerURL())
	opts.SetClientID(id)

	if settings.Username != "" {
		opts.SetUsername(settings.EffectiveUsername())
		opts.SetPassword(settings.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(connectTimeout)
	opts.SetKeepAlive(keepAlive)

	if settings.UseSSL {
		tlsConfig, err := buildTLSConfig(settings)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	return opts, nil
}

// buildTLSConfig assembles the TLS configuration from the settings'
// certificate paths. Without a CA path the system roots are used.
func buildTLSConfig(settings Settings) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion: tlsMinVersion,
	}

	if settings.CACertPath != "" {
		pem, err := os.ReadFile(settings.CACertPath) //nolint:gosec // Path comes from our own config
		if err != nil {
			return nil, fmt.Errorf("reading CA certificate: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%w: no certificates parsed from %s", ErrConnectionFailed, settings.CACertPath)
		}
		tlsConfig.RootCAs = pool
	}

	if settings.ClientCertPath != "" && settings.ClientKeyPath != "" {
		cert, err := tls.LoadX509KeyPair(settings.ClientCertPath, settings.ClientKeyPath)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}
