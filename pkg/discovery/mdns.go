package discovery

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// MDNSAdvertiser implements the Advertiser interface using zeroconf.
type MDNSAdvertiser struct {
	config AdvertiserConfig

	mu sync.Mutex

	// Active services
	setupServer       *zeroconf.Server
	operationalServer *zeroconf.Server
}

// NewMDNSAdvertiser creates a new mDNS advertiser.
func NewMDNSAdvertiser(config AdvertiserConfig) (*MDNSAdvertiser, error) {
	return &MDNSAdvertiser{
		config: config,
	}, nil
}

// getInterfaces returns the network interfaces to use for advertising.
// Returns nil to use all interfaces.
func (a *MDNSAdvertiser) getInterfaces() []net.Interface {
	if a.config.Interface == "" {
		return nil
	}

	iface, err := net.InterfaceByName(a.config.Interface)
	if err != nil {
		return nil
	}
	return []net.Interface{*iface}
}

// serverOptions returns zeroconf server options based on config.
func (a *MDNSAdvertiser) serverOptions() []zeroconf.ServerOption {
	var opts []zeroconf.ServerOption
	if a.config.TTL > 0 {
		opts = append(opts, zeroconf.TTL(uint32(a.config.TTL.Seconds())))
	}
	return opts
}

// AdvertiseSetup starts advertising the setup service.
// The instance name is the access point name.
func (a *MDNSAdvertiser) AdvertiseSetup(ctx context.Context, info *SetupInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Stop existing if any
	if a.setupServer != nil {
		a.setupServer.Shutdown()
		a.setupServer = nil
	}

	instanceName := truncateInstanceName(info.APName)

	// Build TXT records
	txtRecords := EncodeSetupTXT(info)
	txtStrings := TXTRecordsToStrings(txtRecords)

	// Determine port
	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	// Get interfaces (nil means all interfaces)
	ifaces := a.getInterfaces()

	server, err := zeroconf.Register(
		instanceName,
		ServiceTypeSetup,
		Domain,
		port,
		txtStrings,
		ifaces,
		a.serverOptions()...,
	)
	if err != nil {
		return fmt.Errorf("failed to register setup service: %w", err)
	}

	a.setupServer = server
	return nil
}

// StopSetup stops advertising the setup service.
func (a *MDNSAdvertiser) StopSetup() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.setupServer != nil {
		a.setupServer.Shutdown()
		a.setupServer = nil
	}
	return nil
}

// AdvertiseOperational starts advertising the operational service.
// The instance name is the device name.
func (a *MDNSAdvertiser) AdvertiseOperational(ctx context.Context, info *OperationalInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Stop existing if any
	if a.operationalServer != nil {
		a.operationalServer.Shutdown()
		a.operationalServer = nil
	}

	instanceName := truncateInstanceName(info.DeviceName)

	// Build TXT records
	txtRecords := EncodeOperationalTXT(info)
	txtStrings := TXTRecordsToStrings(txtRecords)

	// Determine port
	port := int(info.Port)
	if port == 0 {
		port = DefaultPort
	}

	// Get interfaces (nil means all interfaces)
	ifaces := a.getInterfaces()

	server, err := zeroconf.Register(
		instanceName,
		ServiceTypeOperational,
		Domain,
		port,
		txtStrings,
		ifaces,
		a.serverOptions()...,
	)
	if err != nil {
		return fmt.Errorf("failed to register operational service: %w", err)
	}

	a.operationalServer = server
	return nil
}

// UpdateOperational updates TXT records for the operational service.
func (a *MDNSAdvertiser) UpdateOperational(info *OperationalInfo) error {
	if err := info.Validate(); err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.operationalServer == nil {
		return ErrNotFound
	}

	txtRecords := EncodeOperationalTXT(info)
	txtStrings := TXTRecordsToStrings(txtRecords)
	a.operationalServer.SetText(txtStrings)

	return nil
}

// StopOperational stops advertising the operational service.
func (a *MDNSAdvertiser) StopOperational() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.operationalServer == nil {
		return ErrNotFound
	}

	a.operationalServer.Shutdown()
	a.operationalServer = nil
	return nil
}

// StopAll stops all advertisements.
func (a *MDNSAdvertiser) StopAll() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.setupServer != nil {
		a.setupServer.Shutdown()
		a.setupServer = nil
	}
	if a.operationalServer != nil {
		a.operationalServer.Shutdown()
		a.operationalServer = nil
	}
}

// truncateInstanceName clips a name to the DNS label limit.
func truncateInstanceName(name string) string {
	if len(name) > MaxInstanceNameLen {
		return name[:MaxInstanceNameLen]
	}
	return name
}

// Ensure MDNSAdvertiser implements Advertiser interface.
var _ Advertiser = (*MDNSAdvertiser)(nil)
