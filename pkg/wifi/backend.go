package wifi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/basecamp-iot/basecamp-go/pkg/netcontrol"
)

// Supplicant event prefixes handled by the monitor.
const (
	eventConnected     = "CTRL-EVENT-CONNECTED"
	eventDisconnected  = "CTRL-EVENT-DISCONNECTED"
	eventTerminating   = "CTRL-EVENT-TERMINATING"
	eventAPEnabled     = "AP-ENABLED"
	eventAPDisabled    = "AP-DISABLED"
	eventStationJoined = "AP-STA-CONNECTED"
	eventStationLeft   = "AP-STA-DISCONNECTED"
)

// Backend drives a wireless interface through wpa_supplicant. It
// implements both the station and access point sides of the network
// controller contract.
type Backend struct {
	cfg    Config
	logger *slog.Logger

	cmd     *ctrlConn
	monitor *ctrlConn

	events chan netcontrol.Event
	done   chan struct{}
	wg     sync.WaitGroup

	mu         sync.Mutex
	closed     bool
	apActive   bool
	associated bool
	stationIP  net.IP
	apIP       net.IP
	pollCancel context.CancelFunc
	hwAddr     net.HardwareAddr
}

// New connects to the wpa_supplicant control socket for the configured
// interface and starts the event monitor.
func New(cfg Config) (*Backend, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.AddressSource == nil {
		cfg.AddressSource = netcontrol.InterfaceIPv4
	}
	if cfg.SetHostname == nil {
		cfg.SetHostname = setKernelHostname
	}

	socket := filepath.Join(cfg.CtrlDir, cfg.Interface)

	cmd, err := dialCtrl(socket, cfg.ClientSocketDir, cfg.CommandTimeout)
	if err != nil {
		return nil, err
	}
	reply, err := cmd.request("PING")
	if err != nil {
		_ = cmd.close()
		return nil, err
	}
	if reply != "PONG" {
		_ = cmd.close()
		return nil, fmt.Errorf("%w: PING replied %q", ErrCommandFailed, reply)
	}

	monitor, err := dialCtrl(socket, cfg.ClientSocketDir, cfg.CommandTimeout)
	if err != nil {
		_ = cmd.close()
		return nil, err
	}
	if err := monitor.requestOK("ATTACH"); err != nil {
		_ = monitor.close()
		_ = cmd.close()
		return nil, err
	}

	b := &Backend{
		cfg:     cfg,
		logger:  logger,
		cmd:     cmd,
		monitor: monitor,
		events:  make(chan netcontrol.Event, 16),
		done:    make(chan struct{}),
	}

	// Best-effort capture: the socket dial above already proved the
	// supplicant side of the interface exists.
	if iface, err := net.InterfaceByName(cfg.Interface); err == nil {
		b.hwAddr = iface.HardwareAddr
	} else {
		logger.Debug("interface lookup", "interface", cfg.Interface, "error", err)
	}

	b.wg.Add(1)
	go b.monitorLoop()

	return b, nil
}

// StartStation configures a supplicant network block for the given
// credentials and selects it. Association and address acquisition proceed
// asynchronously; the outcome arrives as events.
func (b *Backend) StartStation(cfg netcontrol.StationConfig) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBackendClosed
	}
	b.mu.Unlock()

	id, err := b.addNetwork()
	if err != nil {
		return err
	}

	settings := [][2]string{
		{"ssid", strconv.Quote(cfg.ESSID)},
		{"scan_ssid", "1"},
	}
	if cfg.Password == "" {
		settings = append(settings, [2]string{"key_mgmt", "NONE"})
	} else {
		// Raw hex keeps passphrase quoting out of the control protocol.
		settings = append(settings, [2]string{"psk", DerivePSK(cfg.ESSID, cfg.Password)})
	}
	if cfg.Hostname != "" {
		// The DHCP client advertises the kernel host name when it requests
		// a lease, so apply it before association. The id_str entry merely
		// labels the network block in supplicant listings.
		if err := b.cfg.SetHostname(cfg.Hostname); err != nil {
			b.logger.Warn("applying host name", "hostname", cfg.Hostname, "error", err)
		}
		settings = append(settings, [2]string{"id_str", strconv.Quote(cfg.Hostname)})
	}
	if err := b.setNetwork(id, settings); err != nil {
		return err
	}

	if err := b.cmd.requestOK("SELECT_NETWORK " + id); err != nil {
		return err
	}

	b.mu.Lock()
	b.apActive = false
	b.mu.Unlock()

	b.logger.Debug("station attempt started", "essid", cfg.ESSID, "network_id", id)
	return nil
}

// StartAccessPoint brings up the setup access point as a mode=2 network
// block on the same interface.
func (b *Backend) StartAccessPoint(cfg netcontrol.AccessPointConfig) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBackendClosed
	}
	b.mu.Unlock()

	id, err := b.addNetwork()
	if err != nil {
		return err
	}

	settings := [][2]string{
		{"ssid", strconv.Quote(cfg.Name)},
		{"mode", "2"},
		{"frequency", strconv.Itoa(channelFrequency(b.cfg.AccessPointChannel))},
	}
	if cfg.Secret == "" {
		settings = append(settings, [2]string{"key_mgmt", "NONE"})
	} else {
		settings = append(settings,
			[2]string{"key_mgmt", "WPA-PSK"},
			[2]string{"proto", "RSN"},
			[2]string{"pairwise", "CCMP"},
			[2]string{"psk", DerivePSK(cfg.Name, cfg.Secret)},
		)
	}
	if err := b.setNetwork(id, settings); err != nil {
		return err
	}

	if err := b.cmd.requestOK("SELECT_NETWORK " + id); err != nil {
		return err
	}

	b.mu.Lock()
	b.apActive = true
	b.mu.Unlock()

	b.logger.Debug("access point selected", "name", cfg.Name, "network_id", id,
		"protected", cfg.Secret != "")
	return nil
}

// Reconnect nudges the supplicant after link loss. The supplicant retries
// on its own as well; the explicit request covers the disconnected-idle
// state.
func (b *Backend) Reconnect() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrBackendClosed
	}
	b.mu.Unlock()

	return b.cmd.requestOK("RECONNECT")
}

// StationIP returns the station address, or nil if none is assigned yet.
func (b *Backend) StationIP() net.IP {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stationIP
}

// AccessPointIP returns the access point address, or nil if the access
// point is not up.
func (b *Backend) AccessPointIP() net.IP {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.apIP
}

// HardwareAddr returns the link-layer address captured at startup.
func (b *Backend) HardwareAddr() net.HardwareAddr {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hwAddr
}

// ActiveHardwareAddr returns the current link-layer address of the
// interface, falling back to the startup capture.
func (b *Backend) ActiveHardwareAddr() net.HardwareAddr {
	if iface, err := net.InterfaceByName(b.cfg.Interface); err == nil && len(iface.HardwareAddr) > 0 {
		return iface.HardwareAddr
	}
	return b.HardwareAddr()
}

// Events returns the link event stream.
func (b *Backend) Events() <-chan netcontrol.Event {
	return b.events
}

// Close detaches from the supplicant and releases all resources. The
// event stream is closed once in-flight events are drained.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	if b.pollCancel != nil {
		b.pollCancel()
		b.pollCancel = nil
	}
	b.mu.Unlock()

	close(b.done)

	// Polite; the supplicant also prunes dead sockets on its own.
	_ = b.monitor.send("DETACH")

	monErr := b.monitor.close()
	cmdErr := b.cmd.close()
	b.wg.Wait()
	close(b.events)

	return errors.Join(monErr, cmdErr)
}

// addNetwork clears previous network blocks and creates a fresh one,
// returning its id.
func (b *Backend) addNetwork() (string, error) {
	if err := b.cmd.requestOK("REMOVE_NETWORK all"); err != nil {
		return "", err
	}

	id, err := b.cmd.request("ADD_NETWORK")
	if err != nil {
		return "", err
	}
	if id == "" || strings.HasPrefix(id, "FAIL") {
		return "", fmt.Errorf("%w: ADD_NETWORK replied %q", ErrCommandFailed, id)
	}
	return id, nil
}

// setNetwork applies settings to a network block in order.
func (b *Backend) setNetwork(id string, settings [][2]string) error {
	for _, setting := range settings {
		cmd := fmt.Sprintf("SET_NETWORK %s %s %s", id, setting[0], setting[1])
		if err := b.cmd.requestOK(cmd); err != nil {
			return err
		}
	}
	return nil
}

// monitorLoop dispatches unsolicited supplicant events until the socket
// closes.
func (b *Backend) monitorLoop() {
	defer b.wg.Done()

	for {
		line, err := b.monitor.readEvent()
		if err != nil {
			select {
			case <-b.done:
			default:
				b.logger.Debug("monitor read", "error", err)
			}
			return
		}
		if !isUnsolicited(line) {
			continue
		}
		b.handleEvent(stripPriority(line))
	}
}

func (b *Backend) handleEvent(line string) {
	switch {
	case strings.HasPrefix(line, eventConnected):
		b.onAssociated()
	case strings.HasPrefix(line, eventDisconnected), strings.HasPrefix(line, eventTerminating):
		b.onLinkDown(line)
	case strings.HasPrefix(line, eventAPEnabled):
		b.onAccessPointUp()
	case strings.HasPrefix(line, eventAPDisabled):
		b.mu.Lock()
		b.apIP = nil
		b.mu.Unlock()
	case strings.HasPrefix(line, eventStationJoined):
		if mac := trailingMAC(line); mac != nil {
			b.logger.Debug("station joined", "station", mac.String())
			b.emit(netcontrol.Event{Type: netcontrol.EventAPStationJoined, Station: mac})
		}
	case strings.HasPrefix(line, eventStationLeft):
		if mac := trailingMAC(line); mac != nil {
			b.emit(netcontrol.Event{Type: netcontrol.EventAPStationLeft, Station: mac})
		}
	}
}

// onAssociated starts the address poll after a station association. In
// access point mode the same supplicant event signals the access point
// being up.
func (b *Backend) onAssociated() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	if b.apActive {
		b.apIP = b.cfg.AccessPointAddr
		b.mu.Unlock()
		b.logger.Debug("access point up", "interface", b.cfg.Interface)
		return
	}
	b.associated = true
	if b.pollCancel != nil {
		b.pollCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.pollCancel = cancel
	b.wg.Add(1)
	b.mu.Unlock()

	b.logger.Debug("association complete", "interface", b.cfg.Interface)
	go b.pollAddress(ctx)
}

func (b *Backend) onAccessPointUp() {
	b.mu.Lock()
	b.apIP = b.cfg.AccessPointAddr
	b.mu.Unlock()
	b.logger.Debug("access point up", "interface", b.cfg.Interface)
}

func (b *Backend) onLinkDown(line string) {
	b.mu.Lock()
	wasAssociated := b.associated
	hadAddr := b.stationIP != nil
	b.associated = false
	b.stationIP = nil
	if b.pollCancel != nil {
		b.pollCancel()
		b.pollCancel = nil
	}
	b.mu.Unlock()

	// Repeated disconnect events during retry cycles stay internal; only
	// a real transition surfaces.
	if !wasAssociated && !hadAddr {
		return
	}
	b.emit(netcontrol.Event{Type: netcontrol.EventLinkLost, Reason: disconnectReason(line)})
}

// pollAddress watches the interface until an address appears, then
// reports it and exits.
func (b *Backend) pollAddress(ctx context.Context) {
	defer b.wg.Done()

	ticker := time.NewTicker(b.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case <-ticker.C:
		}

		ip, err := b.cfg.AddressSource(b.cfg.Interface)
		if err != nil {
			b.logger.Debug("address poll", "interface", b.cfg.Interface, "error", err)
			continue
		}
		if ip == nil {
			continue
		}

		b.mu.Lock()
		b.stationIP = ip
		b.mu.Unlock()

		b.logger.Debug("address acquired", "interface", b.cfg.Interface, "ip", ip.String())
		b.emit(netcontrol.Event{Type: netcontrol.EventAddressAcquired, Addr: ip})
		return
	}
}

func (b *Backend) emit(event netcontrol.Event) {
	select {
	case b.events <- event:
	case <-b.done:
	}
}

// setKernelHostname is the default hostname applier.
func setKernelHostname(name string) error {
	return unix.Sethostname([]byte(name))
}

// channelFrequency maps a 2.4 GHz channel number to its center frequency
// in MHz.
func channelFrequency(channel int) int {
	if channel == 14 {
		return 2484
	}
	return 2407 + 5*channel
}

// disconnectReason extracts the reason token from a disconnect event, if
// present.
func disconnectReason(line string) string {
	for _, field := range strings.Fields(line) {
		if strings.HasPrefix(field, "reason=") {
			return field
		}
	}
	return ""
}

// trailingMAC parses the station address field of AP-STA events.
func trailingMAC(line string) net.HardwareAddr {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return nil
	}
	mac, err := net.ParseMAC(fields[1])
	if err != nil {
		return nil
	}
	return mac
}

// Compile-time interface satisfaction checks.
var (
	_ netcontrol.Backend            = (*Backend)(nil)
	_ netcontrol.AccessPointBackend = (*Backend)(nil)
)
