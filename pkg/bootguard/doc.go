// Package bootguard breaks the device out of configuration-induced boot
// loops without human intervention.
//
// The Tracker runs once per boot, synchronously, before any networking
// starts. It reads the hardware reset cause, maintains a persisted counter
// of consecutive unhealthy boots, and applies an escalating recovery policy:
//
//	count reaches 3 while unconfigured -> wipe persisted state, restart
//	count exceeds 3                    -> force setup mode, restart
//	otherwise                          -> persist the count, boot normally
//
// A reset cause is suspicious when it is a power cycle or an external reset
// trigger; anything else (notably a software-initiated restart) counts as
// intentional and resets the counter. A successful network address
// acquisition later in the boot is the strongest healthy signal and resets
// the counter too, via MarkHealthy.
//
// The Tracker never restarts the device itself. Escalation paths flush all
// pending writes and return a Result with RestartRequested set; the caller
// performs the restart after its own cleanup. This keeps the policy
// testable without a reboot.
//
// Storage faults are absorbed rather than surfaced: a counter that cannot
// be read counts as zero and a write that fails is dropped. The tracker is
// the recovery mechanism; it must not itself keep the device from booting.
package bootguard
