// Package discovery implements mDNS/DNS-SD advertising for devices.
//
// A device announces one of two service types depending on its mode:
//
// # Setup Discovery (_basecamp-setup._tcp)
//
// Advertised while the device runs its setup access point and waits for
// network credentials. The instance name is the access point name, so a
// companion app sees the same identifier in its WiFi scan and its mDNS
// browse. TXT records include: mac (hardware address), ap (access point
// name), and optionally name (device name) and fw (firmware version).
//
// # Operational Discovery (_basecamp._tcp)
//
// Advertised once the device is connected to its configured network. The
// instance name is the device name. TXT records include: mac (hardware
// address), name (device name), and optionally fw (firmware version).
//
// Both services point at the device's web interface port. The orchestrator
// switches between them as the device moves from setup to operational mode;
// TXT records of the operational service can be refreshed in place after a
// rename or firmware update.
package discovery
