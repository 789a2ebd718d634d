package uplink

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"
)

// =============================================================================
// Test Doubles
// =============================================================================

// fakeToken implements pahomqtt.Token with a canned result.
type fakeToken struct {
	err      error
	timedOut bool
}

func (t *fakeToken) Wait() bool                     { return !t.timedOut }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.timedOut }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishRecord struct {
	topic   string
	payload string
	qos     byte
}

// fakeClient implements pahomqtt.Client against in-memory state.
type fakeClient struct {
	mu          sync.Mutex
	connectErr  error
	connectHang bool
	publishErr  error
	connected   bool
	connects    int
	disconnects int
	published   []publishRecord
	handlers    map[string]pahomqtt.MessageHandler
}

func newFakeClient() *fakeClient {
	return &fakeClient{handlers: make(map[string]pahomqtt.MessageHandler)}
}

func (c *fakeClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) IsConnectionOpen() bool { return c.IsConnected() }

func (c *fakeClient) Connect() pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects++
	if c.connectHang {
		return &fakeToken{timedOut: true}
	}
	if c.connectErr != nil {
		return &fakeToken{err: c.connectErr}
	}
	c.connected = true
	return &fakeToken{}
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.disconnects++
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return &fakeToken{err: c.publishErr}
	}
	var body string
	switch p := payload.(type) {
	case string:
		body = p
	case []byte:
		body = string(p)
	}
	c.published = append(c.published, publishRecord{topic: topic, payload: body, qos: qos})
	return &fakeToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, callback pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[topic] = callback
	return &fakeToken{}
}

func (c *fakeClient) SubscribeMultiple(map[string]byte, pahomqtt.MessageHandler) pahomqtt.Token {
	return &fakeToken{}
}

func (c *fakeClient) Unsubscribe(...string) pahomqtt.Token { return &fakeToken{} }

func (c *fakeClient) AddRoute(string, pahomqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() pahomqtt.ClientOptionsReader {
	return pahomqtt.ClientOptionsReader{}
}

func (c *fakeClient) setConnectErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connectErr = err
}

func (c *fakeClient) setPublishErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

func (c *fakeClient) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

func (c *fakeClient) disconnectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnects
}

func (c *fakeClient) payloads(topic string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, rec := range c.published {
		if rec.topic == topic {
			out = append(out, rec.payload)
		}
	}
	return out
}

func (c *fakeClient) records(topic string) []publishRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []publishRecord
	for _, rec := range c.published {
		if rec.topic == topic {
			out = append(out, rec)
		}
	}
	return out
}

func (c *fakeClient) handler(topic string) pahomqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[topic]
}

// clientFactory hands out fake clients in order, repeating the last
// one once the list is exhausted.
type clientFactory struct {
	mu      sync.Mutex
	clients []*fakeClient
	calls   int
}

func (f *clientFactory) next(*pahomqtt.ClientOptions) pahomqtt.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.clients) {
		idx = len(f.clients) - 1
	}
	f.calls++
	return f.clients[idx]
}

func (f *clientFactory) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeMessage implements pahomqtt.Message for command handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeRegistrationStore is an in-memory RegistrationStore.
type fakeRegistrationStore struct {
	mu        sync.Mutex
	names     map[string]string
	readErr   error
	markCalls int
}

func newFakeRegistrationStore() *fakeRegistrationStore {
	return &fakeRegistrationStore{names: make(map[string]string)}
}

func (f *fakeRegistrationStore) Registered(deviceID string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return "", false, f.readErr
	}
	name, ok := f.names[deviceID]
	return name, ok, nil
}

func (f *fakeRegistrationStore) MarkRegistered(deviceID, name string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	f.names[deviceID] = name
	return nil
}

func (f *fakeRegistrationStore) markCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.markCalls
}

// =============================================================================
// Test Helpers
// =============================================================================

func testSettings() Settings {
	s := DefaultSettings()
	s.Enabled = true
	s.BrokerHost = "mqtt.example.com"
	s.Username = "simulator"
	s.Password = "secret"
	s.Tenant = "t1234"
	return s
}

// newTestSession wires a session to a single fake client.
func newTestSession(t *testing.T, store RegistrationStore) (*Session, *fakeClient) {
	t.Helper()

	client := newFakeClient()
	s := NewSession("pv001", testSettings(), store, nil)
	s.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client { return client }
	t.Cleanup(s.Disconnect)
	return s, client
}

func sessionAutoReconnect(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.autoReconnect
}

func sessionLastMessageAt(s *Session) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessageAt
}

func sessionLastHeartbeatAt(s *Session) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastHeartbeatAt
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestSessionConnect(t *testing.T) {
	s, _ := newTestSession(t, nil)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !s.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if got := s.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
}

func TestSessionConnect_Disabled(t *testing.T) {
	s := NewSession("pv001", DefaultSettings(), nil, nil)
	calls := 0
	s.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client {
		calls++
		return newFakeClient()
	}

	err := s.Connect()
	if !errors.Is(err, ErrDisabled) {
		t.Fatalf("Connect() error = %v, want ErrDisabled", err)
	}
	if calls != 0 {
		t.Errorf("client factory called %d times, want 0", calls)
	}
}

func TestSessionConnect_NoHost(t *testing.T) {
	settings := testSettings()
	settings.BrokerHost = ""
	s := NewSession("pv001", settings, nil, nil)

	err := s.Connect()
	if !errors.Is(err, ErrConnectionFailed) {
		t.Fatalf("Connect() error = %v, want ErrConnectionFailed", err)
	}
	if got := s.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}

func TestSessionConnect_Timeout(t *testing.T) {
	s, client := newTestSession(t, nil)
	client.connectHang = true

	err := s.Connect()
	if !errors.Is(err, ErrConnectTimeout) {
		t.Fatalf("Connect() error = %v, want ErrConnectTimeout", err)
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true after timeout, want false")
	}
}

func TestSessionConnect_BrokerRejection(t *testing.T) {
	tests := []struct {
		name       string
		connectErr error
		want       error
	}{
		{"bad protocol version", packets.ErrorRefusedBadProtocolVersion, ErrProtocolMismatch},
		{"client id rejected", packets.ErrorRefusedIDRejected, ErrClientIDRejected},
		{"server unavailable", packets.ErrorRefusedServerUnavailable, ErrServerUnavailable},
		{"bad credentials", packets.ErrorRefusedBadUsernameOrPassword, ErrBadCredentials},
		{"not authorized", packets.ErrorRefusedNotAuthorised, ErrNotAuthorized},
		{"network failure", errors.New("dial tcp: connection refused"), ErrConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, client := newTestSession(t, nil)
			client.setConnectErr(tt.connectErr)

			err := s.Connect()
			if !errors.Is(err, tt.want) {
				t.Errorf("Connect() error = %v, want %v", err, tt.want)
			}
			if s.IsConnected() {
				t.Error("IsConnected() = true after rejection, want false")
			}
		})
	}
}

func TestSessionConnect_AlreadyConnected(t *testing.T) {
	client := newFakeClient()
	calls := 0
	s := NewSession("pv001", testSettings(), nil, nil)
	s.newClient = func(*pahomqtt.ClientOptions) pahomqtt.Client {
		calls++
		return client
	}
	t.Cleanup(s.Disconnect)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("second Connect() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("client factory called %d times, want 1", calls)
	}
}

// =============================================================================
// Registration Tests
// =============================================================================

func TestSessionRegister(t *testing.T) {
	store := newFakeRegistrationStore()
	s, client := newTestSession(t, store)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	records := client.records("s/ud/pv001")
	if len(records) != 1 {
		t.Fatalf("registration publishes = %d, want 1", len(records))
	}
	if records[0].payload != "100,iot_sim_pv001,pv" {
		t.Errorf("registration payload = %q, want %q", records[0].payload, "100,iot_sim_pv001,pv")
	}
	if records[0].qos != 1 {
		t.Errorf("registration qos = %d, want 1", records[0].qos)
	}

	if name, ok, _ := store.Registered("pv001"); !ok || name != "iot_sim_pv001" {
		t.Errorf("store record = (%q, %v), want (%q, true)", name, ok, "iot_sim_pv001")
	}
	if client.handler(topicDownstream) == nil {
		t.Error("no operations subscription after Register()")
	}
	if !s.IsRegistered() {
		t.Error("IsRegistered() = false, want true")
	}
}

func TestSessionRegister_SecondCallSkipsPublish(t *testing.T) {
	store := newFakeRegistrationStore()
	s, client := newTestSession(t, store)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("second Register() error = %v", err)
	}

	if got := len(client.records("s/ud/pv001")); got != 1 {
		t.Errorf("registration publishes = %d, want 1", got)
	}
	if got := store.markCount(); got != 1 {
		t.Errorf("MarkRegistered calls = %d, want 1", got)
	}
}

func TestSessionRegister_RecordSharedAcrossSessions(t *testing.T) {
	store := newFakeRegistrationStore()

	first, _ := newTestSession(t, store)
	if err := first.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := first.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	first.Disconnect()

	second, client := newTestSession(t, store)
	if err := second.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := second.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if got := len(client.records("s/ud/pv001")); got != 0 {
		t.Errorf("registration publishes = %d, want 0 for recorded device", got)
	}
	if client.handler(topicDownstream) == nil {
		t.Error("no operations subscription for already registered device")
	}
	if !second.IsRegistered() {
		t.Error("IsRegistered() = false, want true")
	}
}

func TestSessionRegister_Force(t *testing.T) {
	store := newFakeRegistrationStore()
	store.names["pv001"] = "iot_sim_pv001"

	s, client := newTestSession(t, store)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", true); err != nil {
		t.Fatalf("Register(force) error = %v", err)
	}

	if got := len(client.records("s/ud/pv001")); got != 1 {
		t.Errorf("registration publishes = %d, want 1 with force", got)
	}
	if got := store.markCount(); got != 1 {
		t.Errorf("MarkRegistered calls = %d, want 1", got)
	}
}

func TestSessionRegister_NotConnected(t *testing.T) {
	s, _ := newTestSession(t, newFakeRegistrationStore())

	err := s.Register("pv", "iot_sim_pv001", false)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Register() error = %v, want ErrNotConnected", err)
	}
}

func TestSessionRegister_StoreReadErrorRegistersAnyway(t *testing.T) {
	store := newFakeRegistrationStore()
	store.readErr = errors.New("status file corrupt")

	s, client := newTestSession(t, store)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if got := len(client.records("s/ud/pv001")); got != 1 {
		t.Errorf("registration publishes = %d, want 1 despite read error", got)
	}
}

func TestSessionRegister_PublishFailure(t *testing.T) {
	store := newFakeRegistrationStore()
	s, client := newTestSession(t, store)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	client.setPublishErr(errors.New("broker rejected publish"))

	err := s.Register("pv", "iot_sim_pv001", false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("Register() error = %v, want ErrPublishFailed", err)
	}
	if s.IsRegistered() {
		t.Error("IsRegistered() = true after failed publish, want false")
	}
	if got := store.markCount(); got != 0 {
		t.Errorf("MarkRegistered calls = %d, want 0", got)
	}
	if !s.IsConnected() {
		t.Error("IsConnected() = false, registration failure must not disconnect")
	}
}

// =============================================================================
// Publish Tests
// =============================================================================

func TestSessionSendMeasurement(t *testing.T) {
	s, client := newTestSession(t, nil)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	m := Measurement{
		Timestamp: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Voltage:   231.5,
		Current:   9.8,
		Power:     2268.7,
		Kwh:       1.5,
	}
	if err := s.SendMeasurement(m); err != nil {
		t.Fatalf("SendMeasurement() error = %v", err)
	}

	records := client.records(topicUpstream)
	if len(records) != 4 {
		t.Fatalf("upstream publishes = %d, want 4", len(records))
	}

	prefixes := []string{
		"200,c8y_Voltage,231.5,V,",
		"200,c8y_Current,9.8,A,",
		"200,c8y_Power,2268.7,W,",
		"200,c8y_EnergyConsumption,1.5,kWh,",
	}
	for i, want := range prefixes {
		if !strings.HasPrefix(records[i].payload, want) {
			t.Errorf("payload[%d] = %q, want prefix %q", i, records[i].payload, want)
		}
		if records[i].qos != 0 {
			t.Errorf("payload[%d] qos = %d, want 0", i, records[i].qos)
		}
	}

	if sessionLastMessageAt(s).IsZero() {
		t.Error("lastMessageAt not updated by SendMeasurement()")
	}
}

func TestSessionSendMeasurement_NotConnected(t *testing.T) {
	s, client := newTestSession(t, nil)
	client.setConnectErr(packets.ErrorRefusedServerUnavailable)

	err := s.SendMeasurement(Measurement{Timestamp: time.Now()})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendMeasurement() error = %v, want ErrNotConnected", err)
	}

	// The failed send burns the one inline reconnect attempt.
	if got := client.connectCount(); got != 1 {
		t.Errorf("inline reconnect attempts = %d, want 1", got)
	}

	// A second send inside the cooldown must not retry the broker.
	if err := s.SendMeasurement(Measurement{Timestamp: time.Now()}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendMeasurement() error = %v, want ErrNotConnected", err)
	}
	if got := client.connectCount(); got != 1 {
		t.Errorf("inline reconnect attempts = %d, want 1 after cooldown", got)
	}
}

func TestSessionSendMeasurement_AfterDisconnect(t *testing.T) {
	s, client := newTestSession(t, nil)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.Disconnect()

	err := s.SendMeasurement(Measurement{Timestamp: time.Now()})
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendMeasurement() error = %v, want ErrNotConnected", err)
	}
	// Explicit disconnect disables the inline reconnect as well.
	if got := client.connectCount(); got != 1 {
		t.Errorf("connect attempts = %d, want 1", got)
	}
}

func TestSessionSendAlarm(t *testing.T) {
	s, client := newTestSession(t, nil)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := s.SendAlarm("c8y_PersistFailure", "database unavailable", SeverityMajor); err != nil {
		t.Fatalf("SendAlarm() error = %v", err)
	}

	payloads := client.payloads(topicUpstream)
	want := "301,c8y_PersistFailure,database unavailable,MAJOR"
	if len(payloads) != 1 || payloads[0] != want {
		t.Errorf("alarm payloads = %v, want [%q]", payloads, want)
	}
}

func TestSessionSendAlarm_NotConnected(t *testing.T) {
	s, _ := newTestSession(t, nil)

	if err := s.SendAlarm("c8y_PersistFailure", "database unavailable", ""); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendAlarm() error = %v, want ErrNotConnected", err)
	}
}

// =============================================================================
// Heartbeat Tests
// =============================================================================

func TestSessionHeartbeat(t *testing.T) {
	s, client := newTestSession(t, nil)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Nothing has been sent, so a heartbeat is overdue.
	s.maybeHeartbeat(time.Now())

	payloads := client.payloads(topicUpstream)
	want := "400,c8y_Heartbeat,Device heartbeat"
	if len(payloads) != 1 || payloads[0] != want {
		t.Fatalf("heartbeat payloads = %v, want [%q]", payloads, want)
	}
	if sessionLastHeartbeatAt(s).IsZero() {
		t.Error("lastHeartbeatAt not updated")
	}
}

func TestSessionHeartbeat_SuppressedByTraffic(t *testing.T) {
	s, client := newTestSession(t, nil)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := s.SendMeasurement(Measurement{Timestamp: time.Now()}); err != nil {
		t.Fatalf("SendMeasurement() error = %v", err)
	}
	s.maybeHeartbeat(time.Now())

	for _, payload := range client.payloads(topicUpstream) {
		if strings.HasPrefix(payload, "400,") {
			t.Errorf("heartbeat %q published despite recent traffic", payload)
		}
	}
}

func TestSessionHeartbeat_NotConnected(t *testing.T) {
	s, client := newTestSession(t, nil)

	s.maybeHeartbeat(time.Now())

	if got := len(client.payloads(topicUpstream)); got != 0 {
		t.Errorf("upstream publishes = %d, want 0 while disconnected", got)
	}
}

// =============================================================================
// Disconnect Tests
// =============================================================================

func TestSessionDisconnect(t *testing.T) {
	s, client := newTestSession(t, newFakeRegistrationStore())
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	s.Disconnect()

	if s.IsConnected() {
		t.Error("IsConnected() = true after Disconnect(), want false")
	}
	if s.IsRegistered() {
		t.Error("IsRegistered() = true after Disconnect(), want false")
	}
	if sessionAutoReconnect(s) {
		t.Error("autoReconnect = true after Disconnect(), want false")
	}
	if got := client.disconnectCount(); got != 1 {
		t.Errorf("client disconnects = %d, want 1", got)
	}
}

func TestSessionDisconnect_NeverConnected(t *testing.T) {
	s, _ := newTestSession(t, nil)

	s.Disconnect()

	if s.IsConnected() {
		t.Error("IsConnected() = true, want false")
	}
}

// =============================================================================
// Reconnection Tests
// =============================================================================

func TestSessionReconnect_AfterConnectionLost(t *testing.T) {
	good := newFakeClient()
	bad := newFakeClient()
	bad.connectErr = errors.New("connection refused")
	recovered := newFakeClient()
	factory := &clientFactory{clients: []*fakeClient{good, bad, recovered}}

	s := NewSession("pv001", testSettings(), newFakeRegistrationStore(), nil)
	s.newClient = factory.next
	s.reconnectBase = time.Millisecond
	s.reconnectMax = 4 * time.Millisecond
	t.Cleanup(s.Disconnect)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	s.handleConnectionLost(errors.New("broker went away"))

	waitFor(t, 2*time.Second, func() bool {
		return s.IsConnected() && factory.callCount() == 3
	}, "session did not reconnect")

	// The operations subscription must survive onto the new client.
	waitFor(t, 2*time.Second, func() bool {
		return recovered.handler(topicDownstream) != nil
	}, "subscriptions not restored after reconnect")
}

func TestSessionReconnect_GivesUpAfterMaxAttempts(t *testing.T) {
	good := newFakeClient()
	bad := newFakeClient()
	bad.connectErr = errors.New("connection refused")
	factory := &clientFactory{clients: []*fakeClient{good, bad}}

	s := NewSession("pv001", testSettings(), nil, nil)
	s.newClient = factory.next
	s.reconnectBase = time.Millisecond
	s.reconnectMax = 2 * time.Millisecond
	s.maxReconnects = 3
	t.Cleanup(s.Disconnect)

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.handleConnectionLost(errors.New("broker went away"))

	waitFor(t, 2*time.Second, func() bool {
		return !sessionAutoReconnect(s)
	}, "session did not give up")

	if got := factory.callCount(); got != 4 {
		t.Errorf("connect attempts = %d, want 4 (initial + 3 retries)", got)
	}
	if s.IsConnected() {
		t.Error("IsConnected() = true after give-up, want false")
	}

	// After the give-up, sends fail fast without touching the broker.
	if err := s.SendMeasurement(Measurement{Timestamp: time.Now()}); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("SendMeasurement() error = %v, want ErrNotConnected", err)
	}
	if got := factory.callCount(); got != 4 {
		t.Errorf("connect attempts = %d after send, want 4", got)
	}

	// An explicit Connect revives the session and re-arms reconnection.
	bad.setConnectErr(nil)
	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() after give-up error = %v", err)
	}
	if !s.IsConnected() {
		t.Error("IsConnected() = false after revive, want true")
	}
	if !sessionAutoReconnect(s) {
		t.Error("autoReconnect = false after revive, want true")
	}
}

func TestSessionReconnect_StoppedByDisconnect(t *testing.T) {
	good := newFakeClient()
	bad := newFakeClient()
	bad.connectErr = errors.New("connection refused")
	factory := &clientFactory{clients: []*fakeClient{good, bad}}

	s := NewSession("pv001", testSettings(), nil, nil)
	s.newClient = factory.next
	s.reconnectBase = 50 * time.Millisecond
	s.reconnectMax = 50 * time.Millisecond

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	s.handleConnectionLost(errors.New("broker went away"))
	s.Disconnect()

	time.Sleep(200 * time.Millisecond)

	if got := factory.callCount(); got != 1 {
		t.Errorf("connect attempts = %d, want 1 (loop stopped before retrying)", got)
	}
}

// =============================================================================
// Command Tests
// =============================================================================

func TestSessionRestartCommand(t *testing.T) {
	s, client := newTestSession(t, newFakeRegistrationStore())
	s.restartDelay = time.Millisecond

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handler := client.handler(topicDownstream)
	if handler == nil {
		t.Fatal("no operations handler subscribed")
	}
	handler(nil, &fakeMessage{topic: topicDownstream, payload: []byte("510,iot_sim_pv001")})

	waitFor(t, 2*time.Second, func() bool {
		payloads := client.payloads(topicUpstream)
		var sawExecuting bool
		for _, p := range payloads {
			if p == "501,c8y_Restart" {
				sawExecuting = true
			}
			if p == "503,c8y_Restart" {
				return sawExecuting
			}
		}
		return false
	}, "restart lifecycle did not complete")
}

func TestSessionIgnoresUnknownCommand(t *testing.T) {
	s, client := newTestSession(t, newFakeRegistrationStore())
	s.restartDelay = time.Millisecond

	if err := s.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	if err := s.Register("pv", "iot_sim_pv001", false); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	handler := client.handler(topicDownstream)
	handler(nil, &fakeMessage{topic: topicDownstream, payload: []byte("511,iot_sim_pv001,ls -la")})

	time.Sleep(50 * time.Millisecond)

	for _, payload := range client.payloads(topicUpstream) {
		if strings.HasPrefix(payload, "501,") || strings.HasPrefix(payload, "503,") {
			t.Errorf("operation status %q published for unsupported command", payload)
		}
	}
}

// =============================================================================
// State Tests
// =============================================================================

func TestConnStateString(t *testing.T) {
	tests := []struct {
		state ConnState
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
		{ConnState(99), "disconnected"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("ConnState(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
	}
}
