// Package mqtt publishes device status to an MQTT broker.
//
// The client mirrors the device's availability through a retained topic:
// a birth message "online" is published on every (re)connect and the broker
// holds a last-will "offline" that fires when the device drops off the
// network. Status snapshots and Home Assistant discovery documents are
// published beneath a per-device base topic.
package mqtt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

var (
	// ErrInvalidConfig indicates the client configuration is unusable.
	ErrInvalidConfig = errors.New("mqtt: invalid configuration")

	// ErrNotConnected indicates a publish was attempted before Connect.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrClientClosed indicates the client has been closed.
	ErrClientClosed = errors.New("mqtt: client closed")
)

const (
	// DefaultBaseTopicPrefix is the topic namespace used when no base
	// topic is configured. The full default base topic is
	// "<prefix>/<device name>".
	DefaultBaseTopicPrefix = "esp-basecamp"

	// DefaultConnectTimeout bounds the initial broker handshake.
	DefaultConnectTimeout = 30 * time.Second

	// AvailabilityTopicSuffix is appended to the base topic for the
	// retained online/offline availability marker.
	AvailabilityTopicSuffix = "state"

	// StatusTopicSuffix is appended to the base topic for status
	// snapshot publishes.
	StatusTopicSuffix = "status"

	// PayloadOnline marks the device available.
	PayloadOnline = "online"

	// PayloadOffline marks the device unavailable. Also the last-will
	// payload the broker publishes if the connection dies.
	PayloadOffline = "offline"
)

// Config configures a Client.
type Config struct {
	// BrokerURI is the broker address, e.g. "tcp://broker.local:1883".
	BrokerURI string

	// DeviceName identifies this device in topics and client IDs.
	// Defaults to "esp32-<MAC>" when empty.
	DeviceName string

	// MAC is the primary interface hardware address without delimiters,
	// e.g. "aabbccddeeff". Used for the device name fallback and for
	// Home Assistant unique IDs.
	MAC string

	// BaseTopic overrides the default "esp-basecamp/<device name>".
	BaseTopic string

	// Username and Password are optional broker credentials.
	Username string
	Password string

	// HADiscoveryPrefix enables Home Assistant MQTT discovery publishing
	// under the given prefix (typically "homeassistant"). Empty disables
	// discovery.
	HADiscoveryPrefix string

	// ConnectTimeout bounds the initial connect. Defaults to 30s.
	ConnectTimeout time.Duration

	// Logger receives structured log output. Defaults to a discarding
	// logger when nil.
	Logger *slog.Logger
}

// Validate checks the configuration for missing fields.
func (c *Config) Validate() error {
	if c.BrokerURI == "" {
		return fmt.Errorf("%w: BrokerURI is required", ErrInvalidConfig)
	}
	if c.DeviceName == "" && c.MAC == "" {
		return fmt.Errorf("%w: DeviceName or MAC is required", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.DeviceName == "" {
		c.DeviceName = "esp32-" + strings.ToLower(c.MAC)
	}
	if c.BaseTopic == "" {
		c.BaseTopic = DefaultBaseTopicPrefix + "/" + c.DeviceName
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// StatusReport is a snapshot published to the status topic.
type StatusReport struct {
	DeviceName      string `json:"device"`
	Mode            string `json:"mode"`
	IP              string `json:"ip,omitempty"`
	FirmwareVersion string `json:"fw,omitempty"`
}

// Client wraps an MQTT connection with availability semantics.
type Client struct {
	cfg      Config
	logger   *slog.Logger
	clientID string

	mu        sync.Mutex
	conn      paho.Client
	callbacks []func()
	closed    bool

	// newConn builds the underlying connection from prepared options.
	// Tests substitute a fake here.
	newConn func(*paho.ClientOptions) paho.Client
}

// New creates a Client from the given configuration.
// Call Connect to establish the broker session.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// A fresh suffix per process keeps restarted devices from fighting
	// over the broker session.
	clientID := cfg.DeviceName + "-" + uuid.NewString()[:8]

	return &Client{
		cfg:      cfg,
		logger:   cfg.Logger,
		clientID: clientID,
		newConn:  paho.NewClient,
	}, nil
}

// ClientID returns the broker client identifier.
func (c *Client) ClientID() string { return c.clientID }

// BaseTopic returns the topic all publishes are rooted under.
func (c *Client) BaseTopic() string { return c.cfg.BaseTopic }

// AvailabilityTopic returns the retained online/offline topic.
func (c *Client) AvailabilityTopic() string {
	return c.cfg.BaseTopic + "/" + AvailabilityTopicSuffix
}

// OnConnect registers a callback fired after every successful (re)connect,
// once the availability birth message has been published.
func (c *Client) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callbacks = append(c.callbacks, fn)
}

// Connect establishes the broker session and publishes the availability
// birth message.
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.cfg.BrokerURI)
	opts.SetClientID(c.clientID)
	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(c.cfg.ConnectTimeout)
	opts.SetWill(c.AvailabilityTopic(), PayloadOffline, 0, true)
	opts.SetOnConnectHandler(func(conn paho.Client) {
		c.logger.Info("mqtt connected", "broker", c.cfg.BrokerURI, "client_id", c.clientID)
		token := conn.Publish(c.AvailabilityTopic(), 0, true, PayloadOnline)
		token.Wait()
		if err := token.Error(); err != nil {
			c.logger.Warn("publishing availability", "error", err)
		}

		c.mu.Lock()
		callbacks := make([]func(), len(c.callbacks))
		copy(callbacks, c.callbacks)
		c.mu.Unlock()
		for _, fn := range callbacks {
			fn()
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		c.logger.Warn("mqtt connection lost", "error", err)
	})

	conn := c.newConn(opts)
	c.conn = conn
	c.mu.Unlock()

	token := conn.Connect()
	if !token.WaitTimeout(c.cfg.ConnectTimeout) {
		return fmt.Errorf("mqtt: connect to %s timed out", c.cfg.BrokerURI)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connecting to %s: %w", c.cfg.BrokerURI, err)
	}
	return nil
}

// IsConnected reports whether the broker session is up.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	return conn != nil && conn.IsConnected()
}

// Publish sends a message under the base topic. A non-empty topicSuffix is
// appended as "<base>/<suffix>".
func (c *Client) Publish(message string, retain bool, topicSuffix string) error {
	topic := c.cfg.BaseTopic
	if topicSuffix != "" {
		topic += "/" + topicSuffix
	}
	return c.PublishTo(topic, message, retain)
}

// PublishTo sends a message to an absolute topic.
func (c *Client) PublishTo(topic, message string, retain bool) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return ErrClientClosed
	}
	if conn == nil {
		return ErrNotConnected
	}

	c.logger.Debug("publishing", "topic", topic, "retain", retain, "bytes", len(message))
	token := conn.Publish(topic, 0, retain, message)
	token.Wait()
	return token.Error()
}

// PublishJSON marshals v and publishes it under the base topic.
func (c *Client) PublishJSON(v any, retain bool, topicSuffix string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("mqtt: encoding payload: %w", err)
	}
	return c.Publish(string(data), retain, topicSuffix)
}

// PublishStatus publishes a retained status snapshot.
func (c *Client) PublishStatus(report StatusReport) error {
	if report.DeviceName == "" {
		report.DeviceName = c.cfg.DeviceName
	}
	return c.PublishJSON(report, true, StatusTopicSuffix)
}

// Close publishes the offline marker and disconnects. The broker's stored
// last-will is redundant after a clean shutdown, so the marker is published
// explicitly here.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return
	}
	if conn.IsConnected() {
		token := conn.Publish(c.AvailabilityTopic(), 0, true, PayloadOffline)
		token.WaitTimeout(time.Second)
	}
	conn.Disconnect(250)
}
