// Package netcontrol decides, at every boot, whether the device joins an
// existing network as a client or advertises itself as a setup access point,
// and tracks connectivity from that point on.
//
// The Controller owns the mode decision and drives a platform Backend
// (wifi, wired, or a test fake). The mode is fixed for the lifetime of a
// boot session; changing it requires a restart.
//
// # Mode Selection
//
//	Uninitialized --(configured flag == "true")--> Client
//	Uninitialized --(anything else)-------------> AccessPoint
//
// The configured flag is compared case-insensitively. Missing or malformed
// configuration degrades to AccessPoint mode, the safe default: the device
// must never fail to boot because of a bad flag. Backends without access
// point capability (wired links) always take the client path; they need no
// credentials to join their network.
//
// # Connectivity
//
// Connectivity is event driven. The backend delivers link events on its own
// goroutine; the controller's event pump is the sole writer of the connected
// flag, and IsConnected returns lock-free snapshots. There is no polling.
//
// # Reconnection
//
// On link loss in client mode the controller immediately requests a
// reconnect from the backend. There is no backoff and no attempt cap: the
// device retries indefinitely. Escaping a permanently bad configuration is
// the job of the boot escalation policy (package bootguard), not of this
// retry path.
package netcontrol
