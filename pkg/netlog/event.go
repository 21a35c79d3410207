package netlog

import (
	"time"

	"github.com/google/uuid"

	"github.com/basecamp-iot/basecamp-go/pkg/bootguard"
)

// Event represents a network-lifecycle event captured by the agent.
// CBOR encoding uses integer keys for compactness.
type Event struct {
	// Timestamp when the event occurred (nanosecond precision).
	Timestamp time.Time `cbor:"1,keyasint"`

	// BootID uniquely identifies the process run that emitted the event
	// (UUID, regenerated on every start).
	BootID string `cbor:"2,keyasint"`

	// Category classifies the event type.
	Category Category `cbor:"3,keyasint"`

	// DeviceName is the configured device name, when one is set.
	DeviceName string `cbor:"4,keyasint,omitempty"`

	// Type-specific payload (one of these will be set).
	State      *StateEvent      `cbor:"5,keyasint,omitempty"` // Lifecycle and mode transitions
	Network    *NetworkEvent    `cbor:"6,keyasint,omitempty"` // Address and station facts
	Escalation *EscalationEvent `cbor:"7,keyasint,omitempty"` // Boot-resilience decisions
	Error      *ErrorEventData  `cbor:"8,keyasint,omitempty"` // Errors at any stage
}

// NewBootID returns a fresh boot-session identifier. The agent generates
// one at startup and stamps it on every event until the next restart, so
// readers can group a log by process run.
func NewBootID() string {
	return uuid.NewString()
}

// Category classifies the event type.
type Category uint8

const (
	// CategoryState indicates a lifecycle or mode transition.
	CategoryState Category = 0
	// CategoryNetwork indicates an address or station event.
	CategoryNetwork Category = 1
	// CategoryEscalation indicates a boot-resilience decision.
	CategoryEscalation Category = 2
	// CategoryError indicates an error event.
	CategoryError Category = 3
)

// String returns the category name.
func (c Category) String() string {
	switch c {
	case CategoryState:
		return "STATE"
	case CategoryNetwork:
		return "NETWORK"
	case CategoryEscalation:
		return "ESCALATION"
	case CategoryError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// StateEvent captures lifecycle and mode transitions.
type StateEvent struct {
	// Entity being changed.
	Entity StateEntity `cbor:"1,keyasint"`

	// OldState is the previous state (may be empty).
	OldState string `cbor:"2,keyasint,omitempty"`

	// NewState is the new state.
	NewState string `cbor:"3,keyasint"`

	// Reason for the change (if available).
	Reason string `cbor:"4,keyasint,omitempty"`
}

// StateEntity indicates what entity changed state.
type StateEntity uint8

const (
	// StateEntityAgent indicates an agent lifecycle change (starting,
	// running, shutting down).
	StateEntityAgent StateEntity = 0
	// StateEntityMode indicates the network operation mode chosen for
	// this boot.
	StateEntityMode StateEntity = 1
	// StateEntityConnectivity indicates an address-level connectivity
	// change.
	StateEntityConnectivity StateEntity = 2
	// StateEntityService indicates a collaborator service change
	// (MQTT, updates, web interface).
	StateEntityService StateEntity = 3
)

// String returns the state entity name.
func (s StateEntity) String() string {
	switch s {
	case StateEntityAgent:
		return "AGENT"
	case StateEntityMode:
		return "MODE"
	case StateEntityConnectivity:
		return "CONNECTIVITY"
	case StateEntityService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// NetworkEvent captures address and station facts.
type NetworkEvent struct {
	// Interface is the network interface name.
	Interface string `cbor:"1,keyasint,omitempty"`

	// ESSID is the wireless network name, for wireless events.
	ESSID string `cbor:"2,keyasint,omitempty"`

	// IP is the acquired address.
	IP string `cbor:"3,keyasint,omitempty"`

	// MAC is the local hardware address.
	MAC string `cbor:"4,keyasint,omitempty"`

	// StationMAC is the hardware address of a station that joined the
	// local access point.
	StationMAC string `cbor:"5,keyasint,omitempty"`
}

// EscalationEvent captures a boot-resilience decision.
type EscalationEvent struct {
	// Cause is the reset cause that triggered the check.
	Cause bootguard.Cause `cbor:"1,keyasint"`

	// Count is the consecutive unhealthy boot count, including this boot.
	Count uint32 `cbor:"2,keyasint"`

	// Action is the recovery escalation decided on.
	Action bootguard.Escalation `cbor:"3,keyasint"`

	// RestartRequested indicates the agent will restart to apply the
	// escalation.
	RestartRequested bool `cbor:"4,keyasint,omitempty"`
}

// ErrorEventData captures errors at any stage.
type ErrorEventData struct {
	// Message is the error message.
	Message string `cbor:"1,keyasint"`

	// Context describes what operation was being performed.
	Context string `cbor:"2,keyasint,omitempty"`
}
