package mqtt

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err error
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type publishRecord struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

// fakeConn stands in for a paho client. Connect flips the connected flag
// and fires the configured OnConnect handler, like the real client does.
type fakeConn struct {
	mu           sync.Mutex
	opts         *paho.ClientOptions
	connected    bool
	disconnected bool
	published    []publishRecord
	connectErr   error
}

func (f *fakeConn) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeConn) IsConnectionOpen() bool { return f.IsConnected() }

func (f *fakeConn) Connect() paho.Token {
	if f.connectErr != nil {
		return &fakeToken{err: f.connectErr}
	}
	f.mu.Lock()
	f.connected = true
	onConnect := f.opts.OnConnect
	f.mu.Unlock()
	if onConnect != nil {
		onConnect(f)
	}
	return &fakeToken{}
}

func (f *fakeConn) Disconnect(quiesce uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	f.disconnected = true
}

func (f *fakeConn) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	var body string
	switch v := payload.(type) {
	case string:
		body = v
	case []byte:
		body = string(v)
	}
	f.mu.Lock()
	f.published = append(f.published, publishRecord{topic, qos, retained, body})
	f.mu.Unlock()
	return &fakeToken{}
}

func (f *fakeConn) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return &fakeToken{}
}

func (f *fakeConn) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &fakeToken{}
}

func (f *fakeConn) Unsubscribe(...string) paho.Token { return &fakeToken{} }

func (f *fakeConn) AddRoute(string, paho.MessageHandler) {}

func (f *fakeConn) OptionsReader() paho.ClientOptionsReader {
	return paho.NewOptionsReader(f.opts)
}

func (f *fakeConn) records() []publishRecord {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]publishRecord, len(f.published))
	copy(out, f.published)
	return out
}

func newTestClient(t *testing.T, cfg Config) (*Client, *fakeConn) {
	t.Helper()

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	conn := &fakeConn{}
	c.newConn = func(opts *paho.ClientOptions) paho.Client {
		conn.opts = opts
		return conn
	}
	return c, conn
}

func TestNewValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"MissingBroker", Config{DeviceName: "greenhouse"}},
		{"MissingIdentity", Config{BrokerURI: "tcp://broker:1883"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("New() error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestDefaultsFromMAC(t *testing.T) {
	c, err := New(Config{BrokerURI: "tcp://broker:1883", MAC: "AABBCCDDEEFF"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if c.cfg.DeviceName != "esp32-aabbccddeeff" {
		t.Errorf("DeviceName = %q, want esp32-aabbccddeeff", c.cfg.DeviceName)
	}
	if c.BaseTopic() != "esp-basecamp/esp32-aabbccddeeff" {
		t.Errorf("BaseTopic() = %q", c.BaseTopic())
	}
	if c.AvailabilityTopic() != "esp-basecamp/esp32-aabbccddeeff/state" {
		t.Errorf("AvailabilityTopic() = %q", c.AvailabilityTopic())
	}
}

func TestClientIDCarriesRandomSuffix(t *testing.T) {
	c, err := New(Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	id := c.ClientID()
	if !strings.HasPrefix(id, "greenhouse-") {
		t.Errorf("ClientID() = %q, want greenhouse- prefix", id)
	}
	if len(id) != len("greenhouse-")+8 {
		t.Errorf("ClientID() = %q, want 8 char suffix", id)
	}

	c2, _ := New(Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})
	if c2.ClientID() == id {
		t.Error("two clients produced the same ID")
	}
}

func TestConnectConfiguresWill(t *testing.T) {
	c, conn := newTestClient(t, Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !conn.opts.WillEnabled {
		t.Error("will not enabled")
	}
	if conn.opts.WillTopic != "esp-basecamp/greenhouse/state" {
		t.Errorf("WillTopic = %q", conn.opts.WillTopic)
	}
	if string(conn.opts.WillPayload) != PayloadOffline {
		t.Errorf("WillPayload = %q, want %q", conn.opts.WillPayload, PayloadOffline)
	}
	if !conn.opts.WillRetained {
		t.Error("will not retained")
	}
	if !conn.opts.AutoReconnect {
		t.Error("auto reconnect not enabled")
	}
}

func TestConnectPublishesBirthBeforeCallbacks(t *testing.T) {
	c, conn := newTestClient(t, Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})

	var duringCallback []publishRecord
	c.OnConnect(func() {
		duringCallback = conn.records()
	})

	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if len(duringCallback) != 1 {
		t.Fatalf("callback saw %d publishes, want 1 (birth)", len(duringCallback))
	}
	birth := duringCallback[0]
	if birth.topic != c.AvailabilityTopic() {
		t.Errorf("birth topic = %q, want %q", birth.topic, c.AvailabilityTopic())
	}
	if birth.payload != PayloadOnline {
		t.Errorf("birth payload = %q, want %q", birth.payload, PayloadOnline)
	}
	if !birth.retained {
		t.Error("birth not retained")
	}
}

func TestConnectError(t *testing.T) {
	c, conn := newTestClient(t, Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})
	conn.connectErr = errors.New("connection refused")

	err := c.Connect()
	if err == nil {
		t.Fatal("Connect() succeeded, want error")
	}
	if !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("error %v does not carry the cause", err)
	}
}

func TestPublishTopicComposition(t *testing.T) {
	c, conn := newTestClient(t, Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if err := c.Publish("21.5", false, "temperature"); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.Publish("hello", false, ""); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if err := c.PublishTo("some/other/topic", "x", true); err != nil {
		t.Fatalf("PublishTo() error = %v", err)
	}

	recs := conn.records()
	// First record is the availability birth.
	if len(recs) != 4 {
		t.Fatalf("got %d publishes, want 4", len(recs))
	}
	if recs[1].topic != "esp-basecamp/greenhouse/temperature" {
		t.Errorf("suffixed topic = %q", recs[1].topic)
	}
	if recs[2].topic != "esp-basecamp/greenhouse" {
		t.Errorf("bare topic = %q", recs[2].topic)
	}
	if recs[3].topic != "some/other/topic" || !recs[3].retained {
		t.Errorf("absolute topic = %q retained %v", recs[3].topic, recs[3].retained)
	}
}

func TestPublishStatus(t *testing.T) {
	c, conn := newTestClient(t, Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	report := StatusReport{Mode: "client", IP: "10.0.0.9", FirmwareVersion: "1.2.3"}
	if err := c.PublishStatus(report); err != nil {
		t.Fatalf("PublishStatus() error = %v", err)
	}

	recs := conn.records()
	last := recs[len(recs)-1]
	if last.topic != "esp-basecamp/greenhouse/status" {
		t.Errorf("status topic = %q", last.topic)
	}
	if !last.retained {
		t.Error("status not retained")
	}

	var decoded StatusReport
	if err := json.Unmarshal([]byte(last.payload), &decoded); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if decoded.DeviceName != "greenhouse" {
		t.Errorf("device = %q, want default filled in", decoded.DeviceName)
	}
	if decoded.Mode != "client" || decoded.IP != "10.0.0.9" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestPublishBeforeConnect(t *testing.T) {
	c, _ := newTestClient(t, Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})

	if err := c.Publish("x", false, ""); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestClosePublishesOffline(t *testing.T) {
	c, conn := newTestClient(t, Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	c.Close()

	recs := conn.records()
	last := recs[len(recs)-1]
	if last.topic != c.AvailabilityTopic() || last.payload != PayloadOffline {
		t.Errorf("last publish = %+v, want offline marker", last)
	}
	if !last.retained {
		t.Error("offline marker not retained")
	}
	if !conn.disconnected {
		t.Error("connection not disconnected")
	}

	if err := c.Publish("x", false, ""); !errors.Is(err, ErrClientClosed) {
		t.Errorf("Publish() after Close error = %v, want ErrClientClosed", err)
	}

	// Second Close is a no-op.
	c.Close()
}

func TestHADiscoveryDisabledWithoutPrefix(t *testing.T) {
	c, conn := newTestClient(t, Config{BrokerURI: "tcp://broker:1883", DeviceName: "greenhouse"})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	before := len(conn.records())
	if err := c.PublishHADiscovery(HAEntity{StateTopicSuffix: "temperature"}); err != nil {
		t.Fatalf("PublishHADiscovery() error = %v", err)
	}
	if len(conn.records()) != before {
		t.Error("discovery published despite empty prefix")
	}
}

func TestHADiscoverySensor(t *testing.T) {
	c, conn := newTestClient(t, Config{
		BrokerURI:         "tcp://broker:1883",
		DeviceName:        "greenhouse",
		MAC:               "aabbccddeeff",
		HADiscoveryPrefix: "homeassistant",
	})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	entity := HAEntity{
		UnitOfMeasurement: "°C",
		DeviceClass:       "temperature",
		ExpireAfter:       120,
		StateTopicSuffix:  "temperature",
	}
	if err := c.PublishHADiscovery(entity); err != nil {
		t.Fatalf("PublishHADiscovery() error = %v", err)
	}

	recs := conn.records()
	last := recs[len(recs)-1]
	wantTopic := "homeassistant/sensor/esp32_aabbccddeeff_temperature/config"
	if last.topic != wantTopic {
		t.Errorf("topic = %q, want %q", last.topic, wantTopic)
	}
	if !last.retained {
		t.Error("discovery config not retained")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(last.payload), &doc); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if doc["unique_id"] != "esp32_aabbccddeeff_temperature" {
		t.Errorf("unique_id = %v", doc["unique_id"])
	}
	if doc["state_topic"] != "esp-basecamp/greenhouse/temperature" {
		t.Errorf("state_topic = %v", doc["state_topic"])
	}
	if doc["unit_of_measurement"] != "°C" {
		t.Errorf("unit_of_measurement = %v", doc["unit_of_measurement"])
	}
	if doc["device_class"] != "temperature" {
		t.Errorf("device_class = %v", doc["device_class"])
	}
	if doc["expire_after"] != float64(120) {
		t.Errorf("expire_after = %v", doc["expire_after"])
	}
	device, ok := doc["device"].(map[string]any)
	if !ok {
		t.Fatal("device object missing")
	}
	if device["name"] != "greenhouse" {
		t.Errorf("device name = %v", device["name"])
	}
}

func TestHADiscoveryBinarySensor(t *testing.T) {
	c, conn := newTestClient(t, Config{
		BrokerURI:         "tcp://broker:1883",
		DeviceName:        "greenhouse",
		MAC:               "aabbccddeeff",
		HADiscoveryPrefix: "homeassistant",
	})
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Without a value template the payloads are literal 1/0.
	if err := c.PublishHADiscovery(HAEntity{Binary: true, StateTopicSuffix: "motion"}); err != nil {
		t.Fatalf("PublishHADiscovery() error = %v", err)
	}

	recs := conn.records()
	last := recs[len(recs)-1]
	if !strings.HasPrefix(last.topic, "homeassistant/binary_sensor/") {
		t.Errorf("topic = %q, want binary_sensor path", last.topic)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(last.payload), &doc); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if doc["payload_on"] != float64(1) || doc["payload_off"] != float64(0) {
		t.Errorf("payload_on/off = %v/%v, want 1/0", doc["payload_on"], doc["payload_off"])
	}

	// With a template the payloads become JSON booleans.
	entity := HAEntity{Binary: true, StateTopicSuffix: "motion", ValueTemplate: "{{ value_json.motion }}"}
	if err := c.PublishHADiscovery(entity); err != nil {
		t.Fatalf("PublishHADiscovery() error = %v", err)
	}
	recs = conn.records()
	last = recs[len(recs)-1]
	if err := json.Unmarshal([]byte(last.payload), &doc); err != nil {
		t.Fatalf("payload not JSON: %v", err)
	}
	if doc["payload_on"] != true || doc["payload_off"] != false {
		t.Errorf("payload_on/off = %v/%v, want true/false", doc["payload_on"], doc["payload_off"])
	}
}
