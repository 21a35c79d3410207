package discovery

import (
	"context"
	"time"
)

// Advertiser provides mDNS service advertising capabilities.
// A device advertises at most one setup service and one operational service;
// the two can coexist briefly while the device transitions between modes.
type Advertiser interface {
	// AdvertiseSetup starts advertising the setup service. Any previous
	// setup advertisement is replaced.
	AdvertiseSetup(ctx context.Context, info *SetupInfo) error

	// StopSetup stops advertising the setup service.
	StopSetup() error

	// AdvertiseOperational starts advertising the operational service. Any
	// previous operational advertisement is replaced.
	AdvertiseOperational(ctx context.Context, info *OperationalInfo) error

	// UpdateOperational updates TXT records for the operational service.
	UpdateOperational(info *OperationalInfo) error

	// StopOperational stops advertising the operational service.
	StopOperational() error

	// StopAll stops all advertisements.
	StopAll()
}

// AdvertiserConfig configures advertiser behavior.
type AdvertiserConfig struct {
	// Interface specifies which network interface to use.
	// Empty string means all interfaces.
	Interface string

	// TTL is the DNS record TTL.
	// Default: 120 seconds.
	TTL time.Duration
}

// DefaultAdvertiserConfig returns the default advertiser configuration.
func DefaultAdvertiserConfig() AdvertiserConfig {
	return AdvertiserConfig{
		Interface: "",
		TTL:       DefaultTTL,
	}
}
