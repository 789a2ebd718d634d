package uplink

import (
	"fmt"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// ConnState is the session's view of the broker connection.
type ConnState int

const (
	StateDisconnected ConnState = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name for logs.
func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// RegistrationStore records which devices have already been registered
// on the platform, keyed by device ID. It is what makes registration
// happen at most once per device across worker restarts.
//
// Implemented by statefile.Store.
type RegistrationStore interface {
	// Registered reports whether a registration record exists and the
	// name the device was registered under.
	Registered(deviceID string) (name string, ok bool, err error)

	// MarkRegistered persists the registration record.
	MarkRegistered(deviceID, name string, at time.Time) error
}

// Logger interface for session logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Session is one device's connection to the platform.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - Subscriptions are restored automatically after a reconnect.
type Session struct {
	deviceID string
	settings Settings
	store    RegistrationStore
	logger   Logger

	// newClient builds the underlying MQTT client.
	newClient func(*pahomqtt.ClientOptions) pahomqtt.Client

	// Backoff tuning for the reconnection loop.
	reconnectBase time.Duration
	reconnectMax  time.Duration
	maxReconnects int

	// restartDelay is the simulated duration of a restart operation.
	restartDelay time.Duration

	mu                sync.Mutex
	client            pahomqtt.Client
	state             ConnState
	registered        bool
	autoReconnect     bool
	reconnecting      bool
	lastMessageAt     time.Time
	lastHeartbeatAt   time.Time
	lastInlineAttempt time.Time

	// subs tracks active subscriptions for re-subscription on reconnect.
	subs map[string]pahomqtt.MessageHandler

	// stop ends the heartbeat loop and aborts reconnect backoff waits.
	stop chan struct{}
}

// NewSession creates a session for one device. The session starts
// disconnected; call Connect to go online.
//
// store may be nil, which disables the registration record: every
// Register call then publishes. logger may be nil.
func NewSession(deviceID string, settings Settings, store RegistrationStore, logger Logger) *Session {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Session{
		deviceID:      deviceID,
		settings:      settings,
		store:         store,
		logger:        logger,
		newClient:     pahomqtt.NewClient,
		reconnectBase: reconnectBaseDelay,
		reconnectMax:  reconnectMaxDelay,
		maxReconnects: maxReconnectAttempts,
		restartDelay:  defaultRestartDelay,
		autoReconnect: true,
		subs:          make(map[string]pahomqtt.MessageHandler),
	}
}

// Connect establishes the broker connection.
//
// It blocks for at most the connect timeout. On broker rejection the
// returned error wraps the matching rejection sentinel (for example
// ErrBadCredentials); a silent broker yields ErrConnectTimeout.
// Connecting an already connected session is a no-op. A successful
// call re-arms automatic reconnection, including after a give-up.
func (s *Session) Connect() error {
	if !s.settings.Enabled {
		return ErrDisabled
	}

	s.mu.Lock()
	if s.state == StateConnected {
		s.mu.Unlock()
		return nil
	}
	s.state = StateConnecting
	s.mu.Unlock()

	if err := s.connectBroker(); err != nil {
		s.mu.Lock()
		s.state = StateDisconnected
		s.lastInlineAttempt = time.Now()
		s.mu.Unlock()
		return err
	}

	s.logger.Info("uplink connected",
		"device_id", s.deviceID,
		"broker", s.settings.BrokerURL(),
	)
	return nil
}

// connectBroker performs one connection attempt: build options, create
// a fresh client, wait for the broker's answer.
func (s *Session) connectBroker() error {
	opts, err := buildClientOptions(s.settings, clientID(s.deviceID, time.Now()))
	if err != nil {
		return err
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		s.handleConnect()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		s.handleConnectionLost(err)
	})

	client := s.newClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("%w after %v", ErrConnectTimeout, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return classifyConnectError(err)
	}

	// Mark connected here rather than in the OnConnect callback: the
	// callback runs asynchronously and may not have fired yet.
	s.mu.Lock()
	s.client = client
	s.state = StateConnected
	s.autoReconnect = true
	if s.stop == nil {
		s.stop = make(chan struct{})
		go s.heartbeatLoop(s.stop)
	}
	s.mu.Unlock()

	s.restoreSubscriptions()
	return nil
}

// handleConnect runs on every successful connection, including
// reconnects with a fresh client, and restores tracked subscriptions.
func (s *Session) handleConnect() {
	s.mu.Lock()
	s.state = StateConnected
	s.mu.Unlock()

	s.restoreSubscriptions()
}

// handleConnectionLost runs when an established connection drops. It
// starts the background reconnection loop unless one is already
// running or reconnection is disabled.
func (s *Session) handleConnectionLost(err error) {
	s.mu.Lock()
	s.state = StateDisconnected
	launch := s.autoReconnect && !s.reconnecting
	if launch {
		s.reconnecting = true
	}
	s.mu.Unlock()

	s.logger.Warn("uplink connection lost",
		"device_id", s.deviceID,
		"error", err,
	)

	if launch {
		go s.reconnectLoop()
	}
}

// restoreSubscriptions re-subscribes to all tracked topics.
func (s *Session) restoreSubscriptions() {
	s.mu.Lock()
	client := s.client
	subs := make(map[string]pahomqtt.MessageHandler, len(s.subs))
	for topic, handler := range s.subs {
		subs[topic] = handler
	}
	s.mu.Unlock()

	if client == nil {
		return
	}
	for topic, handler := range subs {
		// Re-subscribe (ignore errors, the next reconnect retries).
		client.Subscribe(topic, qosAtLeastOnce, handler)
	}
}

// subscribe adds a tracked subscription and subscribes on the live
// client, waiting for the broker to confirm it.
func (s *Session) subscribe(topic string, handler pahomqtt.MessageHandler) error {
	s.mu.Lock()
	s.subs[topic] = handler
	client := s.client
	connected := s.state == StateConnected
	s.mu.Unlock()

	if client == nil || !connected {
		return ErrNotConnected
	}

	token := client.Subscribe(topic, qosAtLeastOnce, handler)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout subscribing to %s", ErrSubscribeFailed, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// publish sends one payload. Acknowledged publishes wait for the
// broker; fire-and-forget publishes return as soon as the message is
// handed to the client.
func (s *Session) publish(topic, payload string, qos byte, wait bool) error {
	s.mu.Lock()
	client := s.client
	connected := s.state == StateConnected
	s.mu.Unlock()

	if client == nil || !connected {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, false, payload)
	if wait {
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, publishTimeout)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("%w: %w", ErrPublishFailed, err)
		}
	}

	s.mu.Lock()
	s.lastMessageAt = time.Now()
	s.mu.Unlock()
	return nil
}

// Disconnect closes the connection and disables reconnection.
//
// The in-memory connected and registered flags are reset; the durable
// registration record is untouched, so a later session for the same
// device will not re-register.
func (s *Session) Disconnect() {
	s.mu.Lock()
	s.autoReconnect = false
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	client := s.client
	s.client = nil
	s.state = StateDisconnected
	s.registered = false
	s.mu.Unlock()

	if client != nil {
		client.Disconnect(disconnectQuiesce)
	}

	s.logger.Info("uplink disconnected", "device_id", s.deviceID)
}

// IsConnected returns the current connection state, consulting both
// the session flag and the underlying client.
func (s *Session) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateConnected && s.client != nil && s.client.IsConnected()
}

// IsRegistered reports whether this session has confirmed the device's
// platform registration, either by publishing it or by finding the
// durable record.
func (s *Session) IsRegistered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registered
}

// State returns the session's connection state flag.
func (s *Session) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
