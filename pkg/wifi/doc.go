// Package wifi implements the wireless network backend on top of a
// wpa_supplicant control interface.
//
// The backend speaks the wpa_supplicant control protocol over unix
// datagram sockets: one socket for synchronous commands, one attached
// socket for unsolicited events. Station attempts are configured as
// supplicant network blocks; the setup access point uses a mode=2 network
// block on the same interface, so station credentials survive while the
// access point is up and AP-STA-CONNECTED events arrive on the same
// monitor stream.
//
// Address management stays with the platform: a DHCP client acquires the
// station address and the access point address is provisioned statically
// alongside the DHCP server for the setup network. The backend observes
// the interface until an address appears and reports it as an event.
//
// WPA2 pre-shared keys are derived from the passphrase locally and handed
// to wpa_supplicant in raw hex, which keeps passphrases with quoting
// hazards out of the control protocol.
package wifi
