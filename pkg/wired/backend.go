// Package wired implements the ethernet network backend.
//
// Wired links have no credentials and no access point capability, so the
// backend is deliberately small: it watches the interface carrier state
// through sysfs and the address through interface inspection, and turns
// transitions into link events. Selecting this backend forces the network
// controller into client mode for the whole boot.
package wired

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/basecamp-iot/basecamp-go/pkg/netcontrol"
)

// Backend errors.
var (
	ErrInvalidConfig  = errors.New("invalid wired configuration")
	ErrBackendClosed  = errors.New("wired backend closed")
	ErrAlreadyStarted = errors.New("wired backend already started")
)

// Config configures the wired backend.
type Config struct {
	// Interface is the ethernet interface name, for example "eth0".
	Interface string

	// CarrierPath is the file reporting link carrier ("1" when a cable
	// is plugged in and the peer is up). Defaults to the sysfs carrier
	// attribute of the interface.
	CarrierPath string

	// PollInterval is how often carrier and address are checked.
	// Defaults to 1s.
	PollInterval time.Duration

	// AddressSource looks up the current interface address. Overridable
	// for tests; defaults to interface inspection.
	AddressSource func(interfaceName string) (net.IP, error)

	// SetHostname applies the host name a station attempt carries. The
	// default sets the kernel host name, which DHCP clients advertise
	// when requesting a lease; that needs privileges, and failures are
	// logged rather than fatal. Overridable for tests and for systems
	// where the host name is managed elsewhere.
	SetHostname func(name string) error

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a config for the given interface with defaults
// applied.
func DefaultConfig(interfaceName string) Config {
	return Config{
		Interface:    interfaceName,
		CarrierPath:  fmt.Sprintf("/sys/class/net/%s/carrier", interfaceName),
		PollInterval: time.Second,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.Interface == "" || c.PollInterval <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Backend watches an ethernet interface and reports link transitions.
type Backend struct {
	cfg    Config
	logger *slog.Logger

	events chan netcontrol.Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	started   bool
	up        bool
	stationIP net.IP
	hwAddr    net.HardwareAddr
}

// New creates a wired backend. The interface must exist.
func New(cfg Config) (*Backend, error) {
	if cfg.CarrierPath == "" {
		cfg.CarrierPath = fmt.Sprintf("/sys/class/net/%s/carrier", cfg.Interface)
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = time.Second
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.AddressSource == nil {
		cfg.AddressSource = netcontrol.InterfaceIPv4
	}
	if cfg.SetHostname == nil {
		cfg.SetHostname = func(name string) error {
			return unix.Sethostname([]byte(name))
		}
	}

	b := &Backend{
		cfg:    cfg,
		logger: logger,
		events: make(chan netcontrol.Event, 16),
		done:   make(chan struct{}),
	}

	if iface, err := net.InterfaceByName(cfg.Interface); err == nil {
		b.hwAddr = iface.HardwareAddr
	} else {
		logger.Debug("interface lookup", "interface", cfg.Interface, "error", err)
	}

	return b, nil
}

// StartStation begins watching the link. The credentials in cfg are
// meaningless on a wired link and are ignored; the host name is applied
// so the DHCP client advertises it, same as on wireless.
func (b *Backend) StartStation(cfg netcontrol.StationConfig) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBackendClosed
	}
	if b.started {
		return ErrAlreadyStarted
	}
	b.started = true

	if cfg.Hostname != "" {
		if err := b.cfg.SetHostname(cfg.Hostname); err != nil {
			b.logger.Warn("applying host name", "hostname", cfg.Hostname, "error", err)
		}
	}

	b.wg.Add(1)
	go b.pollLoop()

	b.logger.Debug("link watch started", "interface", b.cfg.Interface)
	return nil
}

// Reconnect is a no-op: a wired link recovers on its own when the carrier
// returns.
func (b *Backend) Reconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBackendClosed
	}
	return nil
}

// StationIP returns the interface address, or nil if none is assigned.
func (b *Backend) StationIP() net.IP {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stationIP
}

// HardwareAddr returns the link-layer address captured at startup.
func (b *Backend) HardwareAddr() net.HardwareAddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hwAddr
}

// ActiveHardwareAddr returns the current link-layer address of the
// interface, falling back to the startup capture.
func (b *Backend) ActiveHardwareAddr() net.HardwareAddr {
	if iface, err := net.InterfaceByName(b.cfg.Interface); err == nil && len(iface.HardwareAddr) > 0 {
		return iface.HardwareAddr
	}
	return b.HardwareAddr()
}

// Events returns the link event stream.
func (b *Backend) Events() <-chan netcontrol.Event {
	return b.events
}

// Close stops the watch and closes the event stream.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
	close(b.events)
	return nil
}

// pollLoop drives the link state machine: up requires carrier and an
// address, everything else is down.
func (b *Backend) pollLoop() {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.done:
			return
		case <-ticker.C:
		}

		carrier := b.readCarrier()
		var ip net.IP
		if carrier {
			found, err := b.cfg.AddressSource(b.cfg.Interface)
			if err != nil {
				b.logger.Debug("address poll", "interface", b.cfg.Interface, "error", err)
			} else {
				ip = found
			}
		}

		b.apply(carrier, ip)
	}
}

func (b *Backend) apply(carrier bool, ip net.IP) {
	nowUp := carrier && ip != nil

	b.mu.Lock()
	wasUp := b.up
	b.up = nowUp
	if nowUp {
		b.stationIP = ip
	} else {
		b.stationIP = nil
	}
	b.mu.Unlock()

	switch {
	case nowUp && !wasUp:
		b.logger.Debug("link up", "interface", b.cfg.Interface, "ip", ip.String())
		b.emit(netcontrol.Event{Type: netcontrol.EventAddressAcquired, Addr: ip})
	case !nowUp && wasUp:
		reason := "address lost"
		if !carrier {
			reason = "carrier lost"
		}
		b.logger.Debug("link down", "interface", b.cfg.Interface, "reason", reason)
		b.emit(netcontrol.Event{Type: netcontrol.EventLinkLost, Reason: reason})
	}
}

// readCarrier reports link carrier. Any read failure counts as no
// carrier: the attribute returns an error while the interface is down.
func (b *Backend) readCarrier() bool {
	data, err := os.ReadFile(b.cfg.CarrierPath)
	if err != nil {
		return false
	}
	return strings.TrimSpace(string(data)) == "1"
}

func (b *Backend) emit(event netcontrol.Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

// Compile-time interface satisfaction check. Backend intentionally does
// not implement AccessPointBackend.
var _ netcontrol.Backend = (*Backend)(nil)
