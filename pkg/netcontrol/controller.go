package netcontrol

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultAPNamePrefix is prepended to the hardware address when no access
// point name has been set. Companion setup apps scan for this SSID prefix.
const DefaultAPNamePrefix = "ESP32_"

// Controller owns the client-vs-setup-mode decision and tracks connectivity.
//
// Construct with New, register callbacks, then call Begin exactly once per
// boot session. All methods are safe for concurrent use.
type Controller struct {
	mu sync.RWMutex

	backend Backend

	// Session state, fixed after Begin.
	mode     Mode
	essid    string
	password string
	hostname string
	apName   string

	// Connectivity flag. Written only by the event pump.
	connected atomic.Bool

	// Context for the pump and reconnect goroutines.
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Channel to coalesce reconnect requests.
	reconnectCh chan struct{}

	// Callbacks
	onConnect         func()
	onDisconnect      func()
	onAPStationJoined func(station net.HardwareAddr)
}

// New creates a controller driving the given backend.
func New(backend Backend) *Controller {
	ctx, cancel := context.WithCancel(context.Background())

	return &Controller{
		backend:     backend,
		mode:        ModeUninitialized,
		ctx:         ctx,
		cancel:      cancel,
		reconnectCh: make(chan struct{}, 1),
	}
}

// Begin selects the operation mode and starts the backend.
//
// If configuredFlag equals "true" (case-insensitive) the controller enters
// client mode and starts an asynchronous connection attempt to essid with
// password, advertising hostname. Any other value enters access point mode:
// apSecret non-empty brings up a protected network, empty an open one.
// Backends without access point capability always take the client path.
//
// Begin never blocks on connectivity; observe progress via IsConnected.
// The returned error reflects backend faults only, never configuration
// ambiguity.
func (c *Controller) Begin(essid, password, configuredFlag, hostname, apSecret string) error {
	c.mu.Lock()

	if c.ctx.Err() != nil {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.mode != ModeUninitialized {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	if c.backend == nil {
		c.mu.Unlock()
		return ErrNoBackend
	}

	c.essid = essid
	c.password = password
	c.hostname = hostname

	apBackend, apCapable := c.backend.(AccessPointBackend)

	var err error
	if strings.EqualFold(configuredFlag, "true") || !apCapable {
		c.mode = ModeClient
		err = c.backend.StartStation(StationConfig{
			ESSID:    essid,
			Password: password,
			Hostname: hostname,
		})
	} else {
		c.mode = ModeAccessPoint
		if c.apName == "" {
			c.apName = DefaultAPNamePrefix + c.hardwareMACLocked("")
		}
		err = apBackend.StartAccessPoint(AccessPointConfig{
			Name:   c.apName,
			Secret: apSecret,
		})
	}
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("starting network backend: %w", err)
	}

	c.wg.Add(2)
	go c.eventPump()
	go c.reconnectLoop()

	return nil
}

// IsConnected reports the latest event-driven connectivity state.
func (c *Controller) IsConnected() bool {
	return c.connected.Load()
}

// OperationMode returns the mode selected at Begin.
func (c *Controller) OperationMode() Mode {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.mode
}

// IP returns the station address, or nil if none is assigned yet.
func (c *Controller) IP() net.IP {
	return c.backend.StationIP()
}

// SoftAPIP returns the access point address, or nil if not applicable.
func (c *Controller) SoftAPIP() net.IP {
	if ap, ok := c.backend.(AccessPointBackend); ok {
		return ap.AccessPointIP()
	}
	return nil
}

// SetAPName overrides the advertised access point name.
// Must be called before Begin to take effect.
func (c *Controller) SetAPName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apName = name
}

// APName returns the access point name, deriving the default from the
// hardware address if none has been set.
func (c *Controller) APName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.apName == "" {
		return DefaultAPNamePrefix + c.hardwareMACLocked("")
	}
	return c.apName
}

// HardwareMACAddress formats the burned-in link-layer address with the
// given delimiter between hex groups.
func (c *Controller) HardwareMACAddress(delimiter string) string {
	return formatHardwareAddr(c.backend.HardwareAddr(), delimiter)
}

// SoftwareMACAddress formats the currently active link-layer address with
// the given delimiter between hex groups.
func (c *Controller) SoftwareMACAddress(delimiter string) string {
	return formatHardwareAddr(c.backend.ActiveHardwareAddr(), delimiter)
}

// Hostname returns the hostname passed to Begin.
func (c *Controller) Hostname() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hostname
}

// OnConnect sets a callback invoked on every address acquisition.
// Must be set before Begin.
func (c *Controller) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = fn
}

// OnDisconnect sets a callback invoked on every link loss.
// Must be set before Begin.
func (c *Controller) OnDisconnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = fn
}

// OnAPStationJoined sets a callback invoked when a client joins the setup
// access point. Must be set before Begin.
func (c *Controller) OnAPStationJoined(fn func(station net.HardwareAddr)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAPStationJoined = fn
}

// Close stops the event pump and the backend. The controller cannot be
// reused afterwards.
func (c *Controller) Close() error {
	c.cancel()
	err := c.backend.Close()
	c.wg.Wait()
	return err
}

// hardwareMACLocked formats the burned-in address without taking the lock.
func (c *Controller) hardwareMACLocked(delimiter string) string {
	return formatHardwareAddr(c.backend.HardwareAddr(), delimiter)
}

// eventPump is the sole writer of the connected flag. It runs until the
// backend closes its event stream or the controller is closed.
func (c *Controller) eventPump() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-c.backend.Events():
			if !ok {
				return
			}
			c.handleEvent(ev)
		}
	}
}

func (c *Controller) handleEvent(ev Event) {
	c.mu.RLock()
	mode := c.mode
	onConnect := c.onConnect
	onDisconnect := c.onDisconnect
	onAPStationJoined := c.onAPStationJoined
	c.mu.RUnlock()

	switch ev.Type {
	case EventAddressAcquired:
		c.connected.Store(true)
		if onConnect != nil {
			onConnect()
		}

	case EventLinkLost:
		c.connected.Store(false)
		if onDisconnect != nil {
			onDisconnect()
		}
		if mode == ModeClient {
			c.triggerReconnect()
		}

	case EventAPStationJoined:
		if onAPStationJoined != nil {
			onAPStationJoined(ev.Station)
		}
	}
}

// triggerReconnect signals that a reconnect should be requested.
func (c *Controller) triggerReconnect() {
	select {
	case c.reconnectCh <- struct{}{}:
	default:
		// Already pending
	}
}

// reconnectLoop forwards coalesced reconnect requests to the backend.
// There is deliberately no backoff and no attempt cap.
func (c *Controller) reconnectLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-c.reconnectCh:
			if c.connected.Load() {
				continue
			}
			// Errors are not fatal here: the device stays offline and the
			// next link event triggers another request.
			_ = c.backend.Reconnect()
		}
	}
}
