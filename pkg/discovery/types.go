package discovery

import (
	"errors"
	"net"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceTypeSetup is the service type advertised while the device runs
	// its setup access point and waits for credentials.
	ServiceTypeSetup = "_basecamp-setup._tcp"

	// ServiceTypeOperational is the service type advertised once the device
	// is connected to its configured network.
	ServiceTypeOperational = "_basecamp._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// DefaultPort is the port advertised when the info does not carry one.
	// It matches the default web interface port.
	DefaultPort = 80
)

// TXT record key constants.
const (
	// TXTKeyMAC carries the primary interface hardware address.
	TXTKeyMAC = "mac"

	// TXTKeyDeviceName carries the configured device name.
	TXTKeyDeviceName = "name"

	// TXTKeyFirmware carries the running firmware version.
	TXTKeyFirmware = "fw"

	// TXTKeyAPName carries the setup access point name.
	TXTKeyAPName = "ap"
)

// Limits.
const (
	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63

	// MaxTXTRecordSize is the maximum total TXT record size.
	MaxTXTRecordSize = 400
)

// DefaultTTL is the default DNS record TTL for advertised services.
const DefaultTTL = 120 * time.Second

// Discovery errors.
var (
	ErrMissingRequired     = errors.New("missing required field")
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
)

// SetupInfo contains information for advertising a device in setup mode.
// The instance name is the access point name so that a companion app scanning
// for devices sees the same identifier in its WiFi and mDNS listings.
type SetupInfo struct {
	// APName is the setup access point name (e.g. "ESP32_AABBCC").
	APName string

	// MAC is the primary interface hardware address.
	MAC string

	// DeviceName is the configured device name, if any.
	DeviceName string

	// FirmwareVersion is the running firmware version, if known.
	FirmwareVersion string

	// Port is the setup web interface port.
	Port uint16

	// Host is the hostname to advertise.
	Host string
}

// Validate checks that the SetupInfo carries everything needed to advertise.
func (i *SetupInfo) Validate() error {
	if i.APName == "" {
		return ErrMissingRequired
	}
	if i.MAC == "" {
		return ErrMissingRequired
	}
	if _, err := net.ParseMAC(i.MAC); err != nil {
		return ErrInvalidTXTRecord
	}
	return nil
}

// OperationalInfo contains information for advertising a connected device.
// The instance name is the device name.
type OperationalInfo struct {
	// DeviceName is the configured device name.
	DeviceName string

	// MAC is the primary interface hardware address.
	MAC string

	// FirmwareVersion is the running firmware version, if known.
	FirmwareVersion string

	// Port is the service port.
	Port uint16

	// Host is the hostname to advertise.
	Host string
}

// Validate checks that the OperationalInfo carries everything needed to
// advertise.
func (i *OperationalInfo) Validate() error {
	if i.DeviceName == "" {
		return ErrMissingRequired
	}
	if i.MAC == "" {
		return ErrMissingRequired
	}
	if _, err := net.ParseMAC(i.MAC); err != nil {
		return ErrInvalidTXTRecord
	}
	return nil
}
