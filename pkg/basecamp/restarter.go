package basecamp

import (
	"fmt"
	"os/exec"

	"golang.org/x/sys/unix"
)

// Restarter executes the device restart that applies an escalation, a
// saved configuration or an installed update. The orchestrator flushes
// all persisted state and arms the restart intent marker before calling
// Restart, so implementations only need to bring the system down.
type Restarter interface {
	// Restart reboots the device. On success it does not return on real
	// hardware; an error means the restart could not be initiated.
	Restart() error
}

// RebootRestarter restarts through the kernel reboot syscall. Needs
// CAP_SYS_BOOT; the usual deployment runs the agent as a privileged
// system service.
type RebootRestarter struct{}

// Restart syncs filesystems and reboots.
func (RebootRestarter) Restart() error {
	unix.Sync()
	if err := unix.Reboot(unix.LINUX_REBOOT_CMD_RESTART); err != nil {
		return fmt.Errorf("reboot: %w", err)
	}
	return nil
}

// CommandRestarter restarts by running an external command, for
// deployments where an init system should mediate the reboot
// (for example "systemctl reboot").
type CommandRestarter struct {
	// Name is the command to run.
	Name string

	// Args are the command arguments.
	Args []string
}

// Restart runs the configured command.
func (c CommandRestarter) Restart() error {
	if err := exec.Command(c.Name, c.Args...).Run(); err != nil {
		return fmt.Errorf("restart command %q: %w", c.Name, err)
	}
	return nil
}

// Compile-time interface satisfaction checks.
var (
	_ Restarter = RebootRestarter{}
	_ Restarter = CommandRestarter{}
)
