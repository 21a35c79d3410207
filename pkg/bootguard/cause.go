package bootguard

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Cause is a hardware reset cause code. The numeric values follow the
// platform convention: 1 for a power cycle, 16 for an external reset line.
type Cause int

const (
	// CauseUnknown means no reset cause could be determined.
	CauseUnknown Cause = 0

	// CausePowerOn is a cold boot after power loss.
	CausePowerOn Cause = 1

	// CauseSoftwareRestart is a restart requested by the running agent.
	CauseSoftwareRestart Cause = 12

	// CauseExternalReset is a reset-button press or external reset line.
	CauseExternalReset Cause = 16
)

// Suspicious reports whether the cause indicates an uncontrolled boot.
// Power cycles and external resets are the two causes that feed the
// unhealthy-boot counter; everything else is treated as intentional.
func (c Cause) Suspicious() bool {
	return c == CausePowerOn || c == CauseExternalReset
}

// String returns a human-readable cause name.
func (c Cause) String() string {
	switch c {
	case CausePowerOn:
		return "POWER_ON"
	case CauseSoftwareRestart:
		return "SOFTWARE"
	case CauseExternalReset:
		return "EXTERNAL_RESET"
	case CauseUnknown:
		return "UNKNOWN"
	default:
		return "CODE_" + strconv.Itoa(int(c))
	}
}

// CauseSource reports the reset cause of the current boot.
type CauseSource interface {
	// ResetCause returns the cause for the current boot. Implementations
	// that cannot determine a cause return CauseUnknown, which is not
	// suspicious: the device must not escalate on missing information.
	ResetCause() Cause
}

// StaticCauseSource always reports a fixed cause. Intended for tests and
// platforms without any reset-cause facility.
type StaticCauseSource Cause

// ResetCause returns the fixed cause.
func (s StaticCauseSource) ResetCause() Cause {
	return Cause(s)
}

// FileCauseSource reads an integer cause code from a file exported by the
// board support package (for example a sysfs attribute or a file written
// by an early-boot script).
type FileCauseSource struct {
	// Path of the file holding the decimal cause code.
	Path string
}

// ResetCause parses the cause file. A missing or malformed file yields
// CauseUnknown.
func (f FileCauseSource) ResetCause() Cause {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return CauseUnknown
	}

	code, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return CauseUnknown
	}
	return Cause(code)
}

// MarkerCauseSource derives the reset cause from an intent-marker file on
// boards whose BSP does not expose one. The agent arms the marker
// immediately before every restart it initiates; a boot that finds the
// marker is therefore intentional, and a boot without it was a power
// cycle or an external reset.
type MarkerCauseSource struct {
	// Path of the marker file.
	Path string
}

// Arm creates the marker file. Call it right before requesting a restart.
func (m MarkerCauseSource) Arm() error {
	if err := os.MkdirAll(filepath.Dir(m.Path), 0755); err != nil {
		return err
	}
	return os.WriteFile(m.Path, []byte("1\n"), 0644)
}

// ResetCause consumes the marker: if present it is removed and the boot
// reports as a software restart, otherwise as a power cycle.
func (m MarkerCauseSource) ResetCause() Cause {
	if _, err := os.Stat(m.Path); err != nil {
		return CausePowerOn
	}
	_ = os.Remove(m.Path)
	return CauseSoftwareRestart
}

// Compile-time interface satisfaction checks.
var (
	_ CauseSource = StaticCauseSource(0)
	_ CauseSource = FileCauseSource{}
	_ CauseSource = MarkerCauseSource{}
)
