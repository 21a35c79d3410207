package netcontrol

import (
	"errors"
	"net"
)

// Controller errors.
var (
	ErrAlreadyStarted = errors.New("network controller already started")
	ErrClosed         = errors.New("network controller closed")
	ErrNoBackend      = errors.New("no network backend configured")
)

// Mode represents the network operation mode for the current boot session.
type Mode uint8

const (
	// ModeUninitialized indicates Begin has not been called yet.
	ModeUninitialized Mode = iota

	// ModeClient indicates the device joins an existing network as a station.
	ModeClient

	// ModeAccessPoint indicates the device advertises its own setup network.
	ModeAccessPoint
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeUninitialized:
		return "UNINITIALIZED"
	case ModeClient:
		return "CLIENT"
	case ModeAccessPoint:
		return "ACCESS_POINT"
	default:
		return "UNKNOWN"
	}
}

// EventType classifies link events delivered by a backend.
type EventType uint8

const (
	// EventAddressAcquired indicates the station obtained a network address.
	EventAddressAcquired EventType = iota

	// EventLinkLost indicates the station lost its link or address.
	EventLinkLost

	// EventAPStationJoined indicates a client joined the setup access point.
	EventAPStationJoined

	// EventAPStationLeft indicates a client left the setup access point.
	EventAPStationLeft
)

// String returns a human-readable event name.
func (t EventType) String() string {
	switch t {
	case EventAddressAcquired:
		return "ADDRESS_ACQUIRED"
	case EventLinkLost:
		return "LINK_LOST"
	case EventAPStationJoined:
		return "AP_STATION_JOINED"
	case EventAPStationLeft:
		return "AP_STATION_LEFT"
	default:
		return "UNKNOWN"
	}
}

// Event is a link event delivered by a backend on its own goroutine.
type Event struct {
	// Type classifies the event.
	Type EventType

	// Addr is the acquired address (EventAddressAcquired only).
	Addr net.IP

	// Station is the peer link-layer address (AP join/leave events only).
	Station net.HardwareAddr

	// Reason carries backend-specific detail, if any.
	Reason string
}

// StationConfig parameterizes the client (station) side of a backend.
type StationConfig struct {
	// ESSID of the network to join. Unused by wired backends.
	ESSID string

	// Password for the network. Unused by wired backends.
	Password string

	// Hostname advertised to the network (DHCP).
	Hostname string
}

// AccessPointConfig parameterizes the setup access point.
type AccessPointConfig struct {
	// Name is the advertised network name.
	Name string

	// Secret protects the access point (WPA2). Empty means an open network.
	Secret string
}

// Backend drives the platform network stack on behalf of the Controller.
// Implementations deliver link events on their own goroutine via Events;
// the channel is closed by Close.
type Backend interface {
	// StartStation begins an asynchronous attempt to join a network.
	// It must not block until connectivity is established.
	StartStation(cfg StationConfig) error

	// Reconnect requests a new connection attempt after link loss.
	// The request is asynchronous; the backend keeps retrying on its own.
	Reconnect() error

	// StationIP returns the station address, or nil if none is assigned yet.
	StationIP() net.IP

	// HardwareAddr returns the burned-in link-layer address.
	HardwareAddr() net.HardwareAddr

	// ActiveHardwareAddr returns the currently active link-layer address.
	// Same as HardwareAddr unless the platform allows overriding it.
	ActiveHardwareAddr() net.HardwareAddr

	// Events returns the link event stream.
	Events() <-chan Event

	// Close releases backend resources and closes the event stream.
	Close() error
}

// AccessPointBackend is implemented by backends that can advertise a setup
// access point. The station side stays usable alongside the access point so
// the controller can observe clients joining during setup.
type AccessPointBackend interface {
	Backend

	// StartAccessPoint brings up the setup access point.
	StartAccessPoint(cfg AccessPointConfig) error

	// AccessPointIP returns the access point address, or nil if not up yet.
	AccessPointIP() net.IP
}
