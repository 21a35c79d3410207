package netlog

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/basecamp-iot/basecamp-go/pkg/bootguard"
)

func TestNewBootID(t *testing.T) {
	first := NewBootID()
	second := NewBootID()

	if _, err := uuid.Parse(first); err != nil {
		t.Errorf("NewBootID() = %q, not a valid UUID: %v", first, err)
	}
	if first == second {
		t.Errorf("two boot IDs are equal: %q", first)
	}
}

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		want     string
	}{
		{CategoryState, "STATE"},
		{CategoryNetwork, "NETWORK"},
		{CategoryEscalation, "ESCALATION"},
		{CategoryError, "ERROR"},
		{Category(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.category.String(); got != tt.want {
			t.Errorf("Category(%d).String() = %q, want %q", tt.category, got, tt.want)
		}
	}
}

func TestStateEntityString(t *testing.T) {
	tests := []struct {
		entity StateEntity
		want   string
	}{
		{StateEntityAgent, "AGENT"},
		{StateEntityMode, "MODE"},
		{StateEntityConnectivity, "CONNECTIVITY"},
		{StateEntityService, "SERVICE"},
		{StateEntity(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		if got := tt.entity.String(); got != tt.want {
			t.Errorf("StateEntity(%d).String() = %q, want %q", tt.entity, got, tt.want)
		}
	}
}

func TestEncodeDecodeStateEvent(t *testing.T) {
	event := Event{
		Timestamp:  time.Now().UTC(),
		BootID:     "boot-1234",
		Category:   CategoryState,
		DeviceName: "garden-sensor",
		State: &StateEvent{
			Entity:   StateEntityMode,
			OldState: "",
			NewState: "CLIENT",
			Reason:   "credentials configured",
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}

	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.BootID != event.BootID {
		t.Errorf("BootID: got %q, want %q", decoded.BootID, event.BootID)
	}
	if decoded.Category != CategoryState {
		t.Errorf("Category: got %v, want %v", decoded.Category, CategoryState)
	}
	if decoded.DeviceName != event.DeviceName {
		t.Errorf("DeviceName: got %q, want %q", decoded.DeviceName, event.DeviceName)
	}
	if decoded.State == nil {
		t.Fatal("State payload is nil")
	}
	if decoded.State.NewState != "CLIENT" {
		t.Errorf("State.NewState: got %q, want %q", decoded.State.NewState, "CLIENT")
	}
	if decoded.State.Reason != event.State.Reason {
		t.Errorf("State.Reason: got %q, want %q", decoded.State.Reason, event.State.Reason)
	}
	if !decoded.Timestamp.Equal(event.Timestamp) {
		t.Errorf("Timestamp: got %v, want %v", decoded.Timestamp, event.Timestamp)
	}
}

func TestEncodeDecodeNetworkEvent(t *testing.T) {
	event := Event{
		Timestamp: time.Now().UTC(),
		BootID:    "boot-5678",
		Category:  CategoryNetwork,
		Network: &NetworkEvent{
			Interface: "wlan0",
			ESSID:     "homenet",
			IP:        "192.168.4.20",
			MAC:       "AA:BB:CC:DD:EE:FF",
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.Network == nil {
		t.Fatal("Network payload is nil")
	}
	if decoded.Network.IP != "192.168.4.20" {
		t.Errorf("Network.IP: got %q, want %q", decoded.Network.IP, "192.168.4.20")
	}
	if decoded.Network.StationMAC != "" {
		t.Errorf("Network.StationMAC: got %q, want empty", decoded.Network.StationMAC)
	}
}

func TestEncodeDecodeEscalationEvent(t *testing.T) {
	event := Event{
		Timestamp: time.Now().UTC(),
		BootID:    "boot-9",
		Category:  CategoryEscalation,
		Escalation: &EscalationEvent{
			Cause:            bootguard.CausePowerOn,
			Count:            4,
			Action:           bootguard.EscalationNetworkReset,
			RestartRequested: true,
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.Escalation == nil {
		t.Fatal("Escalation payload is nil")
	}
	if decoded.Escalation.Cause != bootguard.CausePowerOn {
		t.Errorf("Escalation.Cause: got %v, want %v", decoded.Escalation.Cause, bootguard.CausePowerOn)
	}
	if decoded.Escalation.Count != 4 {
		t.Errorf("Escalation.Count: got %d, want 4", decoded.Escalation.Count)
	}
	if decoded.Escalation.Action != bootguard.EscalationNetworkReset {
		t.Errorf("Escalation.Action: got %v, want %v", decoded.Escalation.Action, bootguard.EscalationNetworkReset)
	}
	if !decoded.Escalation.RestartRequested {
		t.Error("Escalation.RestartRequested: got false, want true")
	}
}

func TestEncodeDecodeErrorEvent(t *testing.T) {
	event := Event{
		Timestamp: time.Now().UTC(),
		BootID:    "boot-err",
		Category:  CategoryError,
		Error: &ErrorEventData{
			Message: "association timed out",
			Context: "wifi connect",
		},
	}

	data, err := EncodeEvent(event)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	decoded, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}

	if decoded.Error == nil {
		t.Fatal("Error payload is nil")
	}
	if decoded.Error.Message != event.Error.Message {
		t.Errorf("Error.Message: got %q, want %q", decoded.Error.Message, event.Error.Message)
	}
	if decoded.Error.Context != event.Error.Context {
		t.Errorf("Error.Context: got %q, want %q", decoded.Error.Context, event.Error.Context)
	}
}

func TestDecodeGarbage(t *testing.T) {
	if _, err := DecodeEvent([]byte{0xff, 0x00, 0x13}); err == nil {
		t.Error("DecodeEvent on garbage succeeded, want error")
	}
}
