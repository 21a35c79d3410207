package basecamp

import (
	"errors"
	"net"

	"github.com/basecamp-iot/basecamp-go/pkg/netcontrol"
)

// Orchestrator errors.
var (
	ErrInvalidConfig  = errors.New("basecamp: invalid configuration")
	ErrAlreadyStarted = errors.New("basecamp: already started")
	ErrNotStarted     = errors.New("basecamp: not started")
)

// State represents the orchestrator lifecycle state.
type State uint8

const (
	// StateIdle - created but Begin has not been called.
	StateIdle State = iota

	// StateStarting - boot sequence in progress.
	StateStarting

	// StateRunning - boot sequence complete, collaborators running.
	StateRunning

	// StateRestarting - a restart has been requested and is being
	// executed. Terminal on real hardware.
	StateRestarting

	// StateStopping - shutting down.
	StateStopping

	// StateStopped - shut down.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateStarting:
		return "STARTING"
	case StateRunning:
		return "RUNNING"
	case StateRestarting:
		return "RESTARTING"
	case StateStopping:
		return "STOPPING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// EventType classifies orchestrator events.
type EventType uint8

const (
	// EventModeSelected - the network operation mode for this boot has
	// been decided.
	EventModeSelected EventType = iota

	// EventConnected - the device acquired a network address.
	EventConnected

	// EventDisconnected - the device lost its link.
	EventDisconnected

	// EventSetupClientJoined - a client joined the setup access point.
	EventSetupClientJoined

	// EventRestartRequested - a collaborator or the escalation policy
	// asked for a restart.
	EventRestartRequested
)

// String returns the event type name.
func (t EventType) String() string {
	switch t {
	case EventModeSelected:
		return "MODE_SELECTED"
	case EventConnected:
		return "CONNECTED"
	case EventDisconnected:
		return "DISCONNECTED"
	case EventSetupClientJoined:
		return "SETUP_CLIENT_JOINED"
	case EventRestartRequested:
		return "RESTART_REQUESTED"
	default:
		return "UNKNOWN"
	}
}

// Event is delivered to registered handlers on orchestrator transitions.
type Event struct {
	// Type classifies the event.
	Type EventType

	// Mode is the operation mode (EventModeSelected only).
	Mode netcontrol.Mode

	// IP is the acquired address (EventConnected only).
	IP net.IP

	// Station is the joined client address (EventSetupClientJoined only).
	Station net.HardwareAddr

	// Reason carries detail, for example the restart reason.
	Reason string
}

// EventHandler receives orchestrator events. Handlers are invoked from
// the network event pump and must not block.
type EventHandler func(Event)

// Status is a point-in-time snapshot of the device state.
type Status struct {
	// DeviceName is the configured device name, possibly empty.
	DeviceName string

	// Hostname is the cleaned host name advertised on the network.
	Hostname string

	// Mode is the operation mode selected at boot.
	Mode netcontrol.Mode

	// Connected reports whether the device currently holds an address.
	Connected bool

	// IP is the station address, nil when none is assigned.
	IP net.IP

	// SoftAPIP is the access point address, nil outside setup mode.
	SoftAPIP net.IP

	// HardwareMAC is the burned-in address, colon delimited.
	HardwareMAC string

	// SoftwareMAC is the active address, colon delimited.
	SoftwareMAC string

	// APName is the setup access point name.
	APName string

	// FirmwareVersion is the running firmware version.
	FirmwareVersion string

	// BootCount is the current unhealthy-boot counter value.
	BootCount uint32
}
