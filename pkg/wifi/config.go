package wifi

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"time"
)

// Configuration errors.
var (
	ErrInvalidConfig  = errors.New("invalid wifi configuration")
	ErrCommandFailed  = errors.New("wpa_supplicant command failed")
	ErrBackendClosed  = errors.New("wifi backend closed")
	ErrInvalidChannel = errors.New("access point channel out of range")
)

// DefaultCtrlDir is where wpa_supplicant exposes per-interface control
// sockets on most distributions.
const DefaultCtrlDir = "/var/run/wpa_supplicant"

// Config configures the wireless backend.
type Config struct {
	// Interface is the wireless interface name, for example "wlan0".
	Interface string

	// CtrlDir is the wpa_supplicant control socket directory. The
	// interface socket is expected at CtrlDir/Interface.
	// Defaults to DefaultCtrlDir.
	CtrlDir string

	// ClientSocketDir holds the local reply sockets. Defaults to the
	// system temporary directory.
	ClientSocketDir string

	// AccessPointAddr is the address provisioned for the interface while
	// the setup access point is up. Defaults to 192.168.4.1.
	AccessPointAddr net.IP

	// AccessPointChannel is the 2.4 GHz channel for the setup access
	// point. Defaults to 6.
	AccessPointChannel int

	// PollInterval is how often the interface is checked for an address
	// after association. Defaults to 500ms.
	PollInterval time.Duration

	// CommandTimeout bounds each control command round trip.
	// Defaults to 3s.
	CommandTimeout time.Duration

	// AddressSource looks up the current interface address. Overridable
	// for tests and unusual platforms; defaults to interface inspection.
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
		Interface:          interfaceName,
		CtrlDir:            DefaultCtrlDir,
		ClientSocketDir:    os.TempDir(),
		AccessPointAddr:    net.IPv4(192, 168, 4, 1),
		AccessPointChannel: 6,
		PollInterval:       500 * time.Millisecond,
		CommandTimeout:     3 * time.Second,
	}
}

// Validate checks if the config is valid.
func (c *Config) Validate() error {
	if c.Interface == "" {
		return ErrInvalidConfig
	}
	if c.AccessPointChannel < 1 || c.AccessPointChannel > 14 {
		return ErrInvalidChannel
	}
	if c.PollInterval <= 0 || c.CommandTimeout <= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// applyDefaults fills zero-value fields so a partially specified config
// still works.
func (c *Config) applyDefaults() {
	if c.CtrlDir == "" {
		c.CtrlDir = DefaultCtrlDir
	}
	if c.ClientSocketDir == "" {
		c.ClientSocketDir = os.TempDir()
	}
	if c.AccessPointAddr == nil {
		c.AccessPointAddr = net.IPv4(192, 168, 4, 1)
	}
	if c.AccessPointChannel == 0 {
		c.AccessPointChannel = 6
	}
	if c.PollInterval == 0 {
		c.PollInterval = 500 * time.Millisecond
	}
	if c.CommandTimeout == 0 {
		c.CommandTimeout = 3 * time.Second
	}
}
