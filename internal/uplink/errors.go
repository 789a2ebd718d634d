package uplink

import (
	"errors"
	"fmt"

	"github.com/eclipse/paho.mqtt.golang/packets"
)

// Domain-specific errors for uplink operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrDisabled is returned when the uplink is disabled in settings.
	ErrDisabled = errors.New("uplink: disabled in settings")

	// ErrNotConnected is returned when attempting operations on a
	// disconnected session.
	ErrNotConnected = errors.New("uplink: not connected")

	// ErrConnectTimeout is returned when the broker does not answer the
	// connect attempt within the connect timeout.
	ErrConnectTimeout = errors.New("uplink: connect timeout")

	// ErrConnectionFailed is returned when a connection attempt fails
	// for a reason other than an explicit broker rejection.
	ErrConnectionFailed = errors.New("uplink: connection failed")

	// ErrPublishFailed is returned when a publish operation fails or
	// times out waiting for acknowledgment.
	ErrPublishFailed = errors.New("uplink: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("uplink: subscribe failed")

	// Broker CONNACK rejection reasons, mapped from the MQTT return
	// codes so callers can distinguish configuration problems (bad
	// credentials) from transient ones (server unavailable).
	ErrProtocolMismatch  = errors.New("uplink: broker rejected protocol version")
	ErrClientIDRejected  = errors.New("uplink: broker rejected client identifier")
	ErrServerUnavailable = errors.New("uplink: broker unavailable")
	ErrBadCredentials    = errors.New("uplink: bad username or password")
	ErrNotAuthorized     = errors.New("uplink: not authorized")
)

// classifyConnectError maps a paho connect error onto one of the
// rejection sentinels above, falling back to ErrConnectionFailed for
// network-level failures.
func classifyConnectError(err error) error {
	switch {
	case errors.Is(err, packets.ErrorRefusedBadProtocolVersion):
		return fmt.Errorf("%w: %w", ErrProtocolMismatch, err)
	case errors.Is(err, packets.ErrorRefusedIDRejected):
		return fmt.Errorf("%w: %w", ErrClientIDRejected, err)
	case errors.Is(err, packets.ErrorRefusedServerUnavailable):
		return fmt.Errorf("%w: %w", ErrServerUnavailable, err)
	case errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword):
		return fmt.Errorf("%w: %w", ErrBadCredentials, err)
	case errors.Is(err, packets.ErrorRefusedNotAuthorised):
		return fmt.Errorf("%w: %w", ErrNotAuthorized, err)
	default:
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
}
