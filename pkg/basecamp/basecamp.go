package basecamp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/basecamp-iot/basecamp-go/pkg/bootguard"
	"github.com/basecamp-iot/basecamp-go/pkg/captive"
	"github.com/basecamp-iot/basecamp-go/pkg/config"
	"github.com/basecamp-iot/basecamp-go/pkg/discovery"
	"github.com/basecamp-iot/basecamp-go/pkg/mqtt"
	"github.com/basecamp-iot/basecamp-go/pkg/netcontrol"
	"github.com/basecamp-iot/basecamp-go/pkg/netlog"
	"github.com/basecamp-iot/basecamp-go/pkg/ota"
	"github.com/basecamp-iot/basecamp-go/pkg/prefs"
	"github.com/basecamp-iot/basecamp-go/pkg/sntp"
	"github.com/basecamp-iot/basecamp-go/pkg/version"
	"github.com/basecamp-iot/basecamp-go/pkg/webui"
)

// File names inside the data directory.
const (
	// ConfigFileName is the configuration store file.
	ConfigFileName = "basecamp.json"

	// IntentMarkerName is the restart intent marker armed before every
	// software-initiated restart.
	IntentMarkerName = "restart.intent"
)

// Config configures a Basecamp.
type Config struct {
	// DataDir is the agent data directory: configuration file,
	// preference namespaces, staged updates, intent marker. Required.
	DataDir string

	// Backend is the network backend driven by the mode controller.
	// Required.
	Backend netcontrol.Backend

	// Causes reports the reset cause of the current boot. Defaults to
	// the intent marker in the data directory, which reads armed
	// restarts as intentional and everything else as a power cycle.
	Causes bootguard.CauseSource

	// Restarter executes requested restarts. Defaults to the kernel
	// reboot syscall.
	Restarter Restarter

	// FirmwareVersion is the running firmware version. Defaults to the
	// build-time version.
	FirmwareVersion string

	// FixedAPSecret sets the setup access point secret instead of
	// generating one. Secrets below the platform minimum are refused
	// with a logged warning and a generated secret is used instead.
	FixedAPSecret string

	// OpenSetupNetwork runs the setup access point without encryption.
	// The persisted secret is still provisioned for later use.
	OpenSetupNetwork bool

	// WebUIMode controls when the setup interface runs.
	WebUIMode webui.EnableMode

	// WebUIAddr is the setup interface listen address. Defaults to the
	// web interface default.
	WebUIAddr string

	// CaptiveDNSAddr is the captive DNS listen address for setup mode.
	// Defaults to the standard DNS port.
	CaptiveDNSAddr string

	// UpdateManifestURL enables the firmware updater when non-empty.
	UpdateManifestURL string

	// InstallPath is where verified updates are installed. Required
	// when UpdateManifestURL is set.
	InstallPath string

	// NTPServer overrides the time sync server.
	NTPServer string

	// DisableTimeSync turns off time synchronization.
	DisableTimeSync bool

	// DisableDiscovery turns off mDNS advertising.
	DisableDiscovery bool

	// Events receives lifecycle events for the machine-readable log.
	// Defaults to discarding.
	Events netlog.Logger

	// Logger receives operational logs. Defaults to discarding.
	Logger *slog.Logger
}

// Validate checks the configuration for missing fields.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: DataDir is required", ErrInvalidConfig)
	}
	if c.Backend == nil {
		return fmt.Errorf("%w: Backend is required", ErrInvalidConfig)
	}
	if c.UpdateManifestURL != "" && c.InstallPath == "" {
		return fmt.Errorf("%w: InstallPath is required with UpdateManifestURL", ErrInvalidConfig)
	}
	return nil
}

// Basecamp orchestrates the device boot sequence and its collaborators.
type Basecamp struct {
	cfg    Config
	logger *slog.Logger
	events netlog.Logger
	bootID string

	store   *config.Store
	prefs   *prefs.Store
	tracker *bootguard.Tracker
	marker  bootguard.MarkerCauseSource
	ctrl    *netcontrol.Controller

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	restartCh  chan string
	onlineOnce sync.Once

	// mu guards everything below. The collaborator pointers are written
	// by Begin, the event pump and the online-services goroutine, and
	// cleared by stopCollaborators.
	mu         sync.RWMutex
	state      State
	hostname   string
	deviceName string
	handlers   []EventHandler
	web        *webui.Server
	dns        *captive.DNSRedirector
	broker     *mqtt.Client
	updater    *ota.Updater
	timeSync   *sntp.Synchronizer
	advertiser *discovery.MDNSAdvertiser
}

// New creates a Basecamp from cfg. Call Begin to run the boot sequence.
func New(cfg Config) (*Basecamp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Restarter == nil {
		cfg.Restarter = RebootRestarter{}
	}
	if cfg.FirmwareVersion == "" {
		cfg.FirmwareVersion = version.Current
	}
	if cfg.Events == nil {
		cfg.Events = netlog.NoopLogger{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	marker := bootguard.MarkerCauseSource{
		Path: filepath.Join(cfg.DataDir, IntentMarkerName),
	}
	if cfg.Causes == nil {
		cfg.Causes = marker
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Basecamp{
		cfg:       cfg,
		logger:    logger,
		events:    cfg.Events,
		bootID:    netlog.NewBootID(),
		store:     config.NewStore(filepath.Join(cfg.DataDir, ConfigFileName)),
		prefs:     prefs.NewStore(cfg.DataDir),
		marker:    marker,
		ctx:       ctx,
		cancel:    cancel,
		restartCh: make(chan string, 1),
		state:     StateIdle,
	}, nil
}

// OnEvent registers a handler for orchestrator events.
func (b *Basecamp) OnEvent(handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, handler)
}

// State returns the orchestrator lifecycle state.
func (b *Basecamp) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Store returns the configuration store. Valid after Begin.
func (b *Basecamp) Store() *config.Store {
	return b.store
}

// Controller returns the network mode controller. Valid after Begin.
func (b *Basecamp) Controller() *netcontrol.Controller {
	return b.ctrl
}

// Begin runs the boot sequence: configuration load, resilience check,
// access point secret provisioning, network mode selection, collaborator
// startup. It never blocks waiting for connectivity.
//
// When the resilience check requests a restart, Begin executes it and
// returns without starting any networking; on real hardware that call
// does not return.
func (b *Basecamp) Begin(ctx context.Context) error {
	b.mu.Lock()
	if b.state != StateIdle {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.state = StateStarting
	b.mu.Unlock()

	if err := b.store.Load(); err != nil {
		// A corrupt file must not keep the device from booting into
		// setup mode; the resilience escalation will wipe it if the
		// problem persists.
		b.logger.Warn("loading configuration", "error", err)
		b.logError(err, "loading configuration")
	}

	deviceName := b.store.Get(config.KeyDeviceName)
	hostname := CleanHostname(deviceName)

	b.mu.Lock()
	b.deviceName = deviceName
	b.hostname = hostname
	b.mu.Unlock()

	tracker, err := bootguard.New(bootguard.Config{
		Prefs:  b.prefs,
		Config: b.store,
		Causes: b.cfg.Causes,
		Wiper:  bootguard.DirWiper{Dir: b.cfg.DataDir},
		Logger: b.logger,
	})
	if err != nil {
		return err
	}
	b.tracker = tracker

	result := tracker.CheckResetReason()
	b.logEscalation(result)

	if result.RestartRequested {
		b.logger.Warn("boot escalation requested restart",
			"escalation", result.Escalation.String(),
			"cause", result.Cause.String(),
			"count", result.Count)
		b.restart("escalation: " + result.Escalation.String())
		return nil
	}

	apSecret := b.provisionAPSecret()
	setupSecret := apSecret
	if b.cfg.OpenSetupNetwork {
		setupSecret = ""
	}

	b.ctrl = netcontrol.New(b.cfg.Backend)
	b.ctrl.OnConnect(b.handleConnect)
	b.ctrl.OnDisconnect(b.handleDisconnect)
	b.ctrl.OnAPStationJoined(b.handleStationJoined)

	err = b.ctrl.Begin(
		b.store.Get(config.KeyWifiESSID),
		b.store.Get(config.KeyWifiPassword),
		b.store.Get(config.KeyWifiConfigured),
		hostname,
		setupSecret,
	)
	if err != nil {
		return fmt.Errorf("basecamp: starting network: %w", err)
	}

	mode := b.ctrl.OperationMode()
	b.logger.Info("operation mode selected",
		"mode", mode.String(),
		"hostname", hostname)
	b.logState(netlog.StateEntityMode, "", mode.String(), "")
	b.emit(Event{Type: EventModeSelected, Mode: mode})

	b.startWebUI(mode)
	if mode == netcontrol.ModeAccessPoint {
		b.startSetupServices()
	}

	b.wg.Add(1)
	go b.restartLoop()

	b.mu.Lock()
	b.state = StateRunning
	b.mu.Unlock()
	return nil
}

// provisionAPSecret decides the persisted setup access point secret,
// saving it when it changes. A fixed secret below the platform minimum is
// refused; a missing secret is generated.
func (b *Basecamp) provisionAPSecret() string {
	secret := b.store.Get(config.KeyAccessPointSecret)

	if fixed := b.cfg.FixedAPSecret; fixed != "" {
		if len(fixed) < netcontrol.MinimumSecretLength {
			b.logger.Warn("fixed access point secret below minimum length, using a generated one",
				"length", len(fixed),
				"minimum", netcontrol.MinimumSecretLength)
		} else {
			secret = fixed
		}
	}
	if secret == "" {
		secret = netcontrol.GenerateRandomSecret(netcontrol.MinimumSecretLength)
		b.logger.Info("generated access point secret")
	}

	if secret != b.store.Get(config.KeyAccessPointSecret) {
		b.store.Set(config.KeyAccessPointSecret, secret)
		if err := b.store.Save(); err != nil {
			b.logger.Warn("persisting access point secret", "error", err)
		}
	}
	return secret
}

// RequestRestart asks the orchestrator to restart the device. The request
// is asynchronous and coalesces with any pending one.
func (b *Basecamp) RequestRestart(reason string) {
	b.emit(Event{Type: EventRestartRequested, Reason: reason})
	select {
	case b.restartCh <- reason:
	default:
		// A restart is already pending.
	}
}

// restartLoop waits for a restart request and executes it.
func (b *Basecamp) restartLoop() {
	defer b.wg.Done()

	select {
	case <-b.ctx.Done():
	case reason := <-b.restartCh:
		b.logger.Info("restart requested", "reason", reason)
		b.stopCollaborators(context.Background())
		b.restart(reason)
	}
}

// restart arms the intent marker so the next boot reads as intentional,
// flushes pending configuration writes and invokes the restarter.
// Everything is logged before the restart it precedes.
func (b *Basecamp) restart(reason string) {
	b.mu.Lock()
	prev := b.state
	b.state = StateRestarting
	b.mu.Unlock()

	b.logState(netlog.StateEntityAgent, prev.String(), StateRestarting.String(), reason)

	if b.store.Tainted() {
		if err := b.store.Save(); err != nil {
			b.logger.Warn("flushing configuration before restart", "error", err)
		}
	}
	if err := b.marker.Arm(); err != nil {
		b.logger.Warn("arming restart intent marker", "error", err)
	}

	b.logger.Info("restarting device", "reason", reason)
	if err := b.cfg.Restarter.Restart(); err != nil {
		b.logger.Error("restart failed", "error", err)
		b.logError(err, "restart")
	}
}

// handleConnect runs on the network event pump for every address
// acquisition. The first one starts the online collaborators.
func (b *Basecamp) handleConnect() {
	ip := b.ctrl.IP()
	b.logger.Info("network connected", "ip", ipString(ip))
	b.tracker.MarkHealthy()

	b.logNetwork(netlog.NetworkEvent{
		ESSID: b.store.Get(config.KeyWifiESSID),
		IP:    ipString(ip),
		MAC:   b.ctrl.SoftwareMACAddress(":"),
	})
	b.emit(Event{Type: EventConnected, IP: ip})

	b.onlineOnce.Do(func() {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.startOnlineServices()
		}()
	})

	if web := b.webSnapshot(); web != nil {
		web.PushStatus()
	}
	b.publishStatus()
}

// handleDisconnect runs on the network event pump for every link loss.
func (b *Basecamp) handleDisconnect() {
	b.logger.Info("network disconnected")
	b.logState(netlog.StateEntityConnectivity, "connected", "disconnected", "")
	b.emit(Event{Type: EventDisconnected})
	if web := b.webSnapshot(); web != nil {
		web.PushStatus()
	}
}

// handleStationJoined runs when a client joins the setup access point.
func (b *Basecamp) handleStationJoined(station net.HardwareAddr) {
	b.logger.Info("setup client joined", "station", station.String())
	b.logNetwork(netlog.NetworkEvent{StationMAC: station.String()})
	b.emit(Event{Type: EventSetupClientJoined, Station: station})
}

// startWebUI starts the setup interface when the enable mode allows it
// for the given operation mode.
func (b *Basecamp) startWebUI(mode netcontrol.Mode) {
	switch b.cfg.WebUIMode {
	case webui.EnableNever:
		return
	case webui.EnableAccessPointOnly:
		if mode != netcontrol.ModeAccessPoint {
			return
		}
	}

	cfg := webui.DefaultConfig(b.store)
	if b.cfg.WebUIAddr != "" {
		cfg.Addr = b.cfg.WebUIAddr
	}
	cfg.Status = b.webStatus
	cfg.OnSave = func() { b.RequestRestart("configuration saved") }
	cfg.Logger = b.logger

	web, err := webui.New(cfg)
	if err != nil {
		b.logger.Warn("creating setup interface", "error", err)
		return
	}
	if err := web.Start(); err != nil {
		b.logger.Warn("starting setup interface", "error", err)
		b.logError(err, "setup interface")
		return
	}
	b.mu.Lock()
	b.web = web
	b.mu.Unlock()
	b.logService("webui", "started")
}

// startSetupServices brings up the access point collaborators: captive
// DNS and setup-mode advertising.
func (b *Basecamp) startSetupServices() {
	apIP := b.ctrl.SoftAPIP()
	if apIP != nil {
		cfg := captive.DefaultConfig(apIP)
		if b.cfg.CaptiveDNSAddr != "" {
			cfg.Addr = b.cfg.CaptiveDNSAddr
		}
		cfg.Logger = b.logger

		dns, err := captive.New(cfg)
		if err == nil {
			err = dns.Start()
		}
		if err != nil {
			b.logger.Warn("starting captive dns", "error", err)
			b.logError(err, "captive dns")
		} else {
			b.mu.Lock()
			b.dns = dns
			b.mu.Unlock()
			b.logService("captive-dns", "started")
		}
	} else {
		b.logger.Warn("no access point address yet, captive dns not started")
	}

	if b.cfg.DisableDiscovery {
		return
	}
	adv, err := discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
	if err != nil {
		b.logger.Warn("creating advertiser", "error", err)
		return
	}
	b.mu.Lock()
	b.advertiser = adv
	b.mu.Unlock()

	info := &discovery.SetupInfo{
		APName:          b.ctrl.APName(),
		MAC:             b.ctrl.HardwareMACAddress(":"),
		DeviceName:      b.deviceNameSnapshot(),
		FirmwareVersion: b.cfg.FirmwareVersion,
		Port:            b.webPort(),
	}
	if err := adv.AdvertiseSetup(b.ctx, info); err != nil {
		b.logger.Warn("advertising setup service", "error", err)
	} else {
		b.logService("mdns-setup", "started")
	}
}

// startOnlineServices brings up the collaborators that need an upstream
// network: MQTT, update polling, time sync, operational advertising.
// Runs once, on the first address acquisition.
func (b *Basecamp) startOnlineServices() {
	b.startMQTT()
	b.startUpdater()
	b.startTimeSync()
	b.startOperationalAdvertising()
}

// activeFlag reports whether an opt-out flag enables its collaborator.
// Anything but a case-insensitive "false" counts as active, matching the
// configuration convention of the companion setup tools.
func (b *Basecamp) activeFlag(key config.Key) bool {
	return !strings.EqualFold(b.store.Get(key), "false")
}

func (b *Basecamp) startMQTT() {
	host := b.store.Get(config.KeyMQTTHost)
	if host == "" || !b.activeFlag(config.KeyMQTTActive) {
		return
	}

	client, err := mqtt.New(mqtt.Config{
		BrokerURI:         host,
		DeviceName:        b.deviceNameSnapshot(),
		MAC:               b.ctrl.HardwareMACAddress(""),
		Username:          b.store.Get(config.KeyMQTTUser),
		Password:          b.store.Get(config.KeyMQTTPassword),
		HADiscoveryPrefix: b.store.Get(config.KeyHADiscoveryPrefix),
		Logger:            b.logger,
	})
	if err != nil {
		b.logger.Warn("creating mqtt client", "error", err)
		return
	}
	if err := client.Connect(); err != nil {
		b.logger.Warn("connecting to mqtt broker", "error", err)
		b.logError(err, "mqtt connect")
		return
	}
	b.mu.Lock()
	b.broker = client
	b.mu.Unlock()
	b.logService("mqtt", "started")
	b.publishStatus()
}

func (b *Basecamp) startUpdater() {
	if b.cfg.UpdateManifestURL == "" || !b.activeFlag(config.KeyOTAActive) {
		return
	}

	updater, err := ota.New(ota.Config{
		ManifestURL:    b.cfg.UpdateManifestURL,
		CurrentVersion: b.cfg.FirmwareVersion,
		DataDir:        b.cfg.DataDir,
		Applier:        &ota.RenameApplier{InstallPath: b.cfg.InstallPath},
		Password:       b.store.Get(config.KeyOTAPassword),
		OnApplied: func(newVersion string) {
			b.RequestRestart("update installed: " + newVersion)
		},
		Logger: b.logger,
	})
	if err != nil {
		b.logger.Warn("creating updater", "error", err)
		return
	}
	b.mu.Lock()
	b.updater = updater
	b.mu.Unlock()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		updater.Run(b.ctx)
	}()
	b.logService("ota", "started")
}

func (b *Basecamp) startTimeSync() {
	if b.cfg.DisableTimeSync {
		return
	}

	cfg := sntp.DefaultConfig()
	if b.cfg.NTPServer != "" {
		cfg.Server = b.cfg.NTPServer
	}
	cfg.Clock = sntp.SystemClock{}
	cfg.Logger = b.logger

	syncer, err := sntp.New(cfg)
	if err != nil {
		b.logger.Warn("creating time synchronizer", "error", err)
		return
	}
	b.mu.Lock()
	b.timeSync = syncer
	b.mu.Unlock()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		_ = syncer.Run(b.ctx)
	}()
	b.logService("sntp", "started")
}

func (b *Basecamp) startOperationalAdvertising() {
	if b.cfg.DisableDiscovery {
		return
	}
	b.mu.Lock()
	adv := b.advertiser
	if adv == nil {
		var err error
		adv, err = discovery.NewMDNSAdvertiser(discovery.DefaultAdvertiserConfig())
		if err != nil {
			b.mu.Unlock()
			b.logger.Warn("creating advertiser", "error", err)
			return
		}
		b.advertiser = adv
	}
	b.mu.Unlock()

	name := b.deviceNameSnapshot()
	if name == "" {
		name = b.hostnameSnapshot()
	}
	info := &discovery.OperationalInfo{
		DeviceName:      name,
		MAC:             b.ctrl.HardwareMACAddress(":"),
		FirmwareVersion: b.cfg.FirmwareVersion,
		Port:            b.webPort(),
	}
	if err := adv.AdvertiseOperational(b.ctx, info); err != nil {
		b.logger.Warn("advertising operational service", "error", err)
	} else {
		b.logService("mdns-operational", "started")
	}
}

// publishStatus sends a status snapshot to the broker, when one is up.
func (b *Basecamp) publishStatus() {
	b.mu.RLock()
	broker := b.broker
	b.mu.RUnlock()
	if broker == nil {
		return
	}

	status := b.Status()
	err := broker.PublishStatus(mqtt.StatusReport{
		DeviceName:      status.DeviceName,
		Mode:            status.Mode.String(),
		IP:              ipString(status.IP),
		FirmwareVersion: status.FirmwareVersion,
	})
	if err != nil {
		b.logger.Debug("publishing status", "error", err)
	}
}

// Status returns a snapshot of the device state.
func (b *Basecamp) Status() Status {
	status := Status{
		DeviceName:      b.deviceNameSnapshot(),
		Hostname:        b.hostnameSnapshot(),
		FirmwareVersion: b.cfg.FirmwareVersion,
	}
	if b.ctrl != nil {
		status.Mode = b.ctrl.OperationMode()
		status.Connected = b.ctrl.IsConnected()
		status.IP = b.ctrl.IP()
		status.SoftAPIP = b.ctrl.SoftAPIP()
		status.HardwareMAC = b.ctrl.HardwareMACAddress(":")
		status.SoftwareMAC = b.ctrl.SoftwareMACAddress(":")
		status.APName = b.ctrl.APName()
	}
	if b.tracker != nil {
		status.BootCount = b.tracker.Count()
	}
	return status
}

// SystemInfo renders a human-readable device summary for the operator
// console and the boot log.
func (b *Basecamp) SystemInfo() string {
	status := b.Status()

	var sb strings.Builder
	fmt.Fprintf(&sb, "Device name:      %s\n", orDash(status.DeviceName))
	fmt.Fprintf(&sb, "Hostname:         %s\n", status.Hostname)
	fmt.Fprintf(&sb, "Firmware:         %s\n", status.FirmwareVersion)
	fmt.Fprintf(&sb, "Mode:             %s\n", status.Mode.String())
	fmt.Fprintf(&sb, "Connected:        %t\n", status.Connected)
	fmt.Fprintf(&sb, "Hardware MAC:     %s\n", status.HardwareMAC)
	fmt.Fprintf(&sb, "Software MAC:     %s\n", status.SoftwareMAC)
	fmt.Fprintf(&sb, "IP:               %s\n", orDash(ipString(status.IP)))
	if status.Mode == netcontrol.ModeAccessPoint {
		fmt.Fprintf(&sb, "AP IP:            %s\n", orDash(ipString(status.SoftAPIP)))
		fmt.Fprintf(&sb, "AP name:          %s\n", status.APName)
		fmt.Fprintf(&sb, "AP secret:        %s\n", orDash(b.store.Get(config.KeyAccessPointSecret)))
	}
	fmt.Fprintf(&sb, "Boot counter:     %d\n", status.BootCount)
	return sb.String()
}

// Shutdown stops all collaborators and the network controller.
func (b *Basecamp) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.state == StateStopped || b.state == StateStopping {
		b.mu.Unlock()
		return nil
	}
	b.state = StateStopping
	b.mu.Unlock()

	b.logState(netlog.StateEntityAgent, StateRunning.String(), StateStopping.String(), "shutdown")

	b.cancel()
	b.stopCollaborators(ctx)

	var err error
	if b.ctrl != nil {
		err = b.ctrl.Close()
	}
	b.wg.Wait()

	b.mu.Lock()
	b.state = StateStopped
	b.mu.Unlock()
	return err
}

// stopCollaborators shuts down everything except the network controller.
// Best-effort; used by both Shutdown and the restart path.
func (b *Basecamp) stopCollaborators(ctx context.Context) {
	b.mu.Lock()
	broker := b.broker
	adv := b.advertiser
	dns := b.dns
	web := b.web
	b.broker = nil
	b.advertiser = nil
	b.dns = nil
	b.web = nil
	b.mu.Unlock()

	if broker != nil {
		broker.Close()
	}
	if adv != nil {
		adv.StopAll()
	}
	if dns != nil {
		if err := dns.Close(); err != nil {
			b.logger.Debug("closing captive dns", "error", err)
		}
	}
	if web != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := web.Shutdown(shutdownCtx); err != nil {
			b.logger.Debug("closing setup interface", "error", err)
		}
		cancel()
	}
}

// webStatus adapts the orchestrator status for the setup interface.
func (b *Basecamp) webStatus() webui.StatusData {
	status := b.Status()
	return webui.StatusData{
		DeviceName: status.DeviceName,
		Mode:       status.Mode.String(),
		Connected:  status.Connected,
		IP:         ipString(status.IP),
		SoftAPIP:   ipString(status.SoftAPIP),
		MAC:        status.HardwareMAC,
		APName:     status.APName,
		Version:    status.FirmwareVersion,
	}
}

func (b *Basecamp) webPort() uint16 {
	web := b.webSnapshot()
	if web == nil {
		return discovery.DefaultPort
	}
	if port := web.Port(); port != 0 {
		return port
	}
	return discovery.DefaultPort
}

func (b *Basecamp) webSnapshot() *webui.Server {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.web
}

func (b *Basecamp) deviceNameSnapshot() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.deviceName
}

func (b *Basecamp) hostnameSnapshot() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.hostname
}

// emit delivers an event to all registered handlers.
func (b *Basecamp) emit(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, len(b.handlers))
	copy(handlers, b.handlers)
	b.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
}

func (b *Basecamp) newLogEvent(category netlog.Category) netlog.Event {
	return netlog.Event{
		Timestamp:  time.Now(),
		BootID:     b.bootID,
		Category:   category,
		DeviceName: b.deviceNameSnapshot(),
	}
}

func (b *Basecamp) logState(entity netlog.StateEntity, oldState, newState, reason string) {
	event := b.newLogEvent(netlog.CategoryState)
	event.State = &netlog.StateEvent{
		Entity:   entity,
		OldState: oldState,
		NewState: newState,
		Reason:   reason,
	}
	b.events.Log(event)
}

func (b *Basecamp) logService(name, state string) {
	event := b.newLogEvent(netlog.CategoryState)
	event.State = &netlog.StateEvent{
		Entity:   netlog.StateEntityService,
		NewState: state,
		Reason:   name,
	}
	b.events.Log(event)
}

func (b *Basecamp) logNetwork(payload netlog.NetworkEvent) {
	event := b.newLogEvent(netlog.CategoryNetwork)
	event.Network = &payload
	b.events.Log(event)
}

func (b *Basecamp) logEscalation(result bootguard.Result) {
	event := b.newLogEvent(netlog.CategoryEscalation)
	event.Escalation = &netlog.EscalationEvent{
		Cause:            result.Cause,
		Count:            result.Count,
		Action:           result.Escalation,
		RestartRequested: result.RestartRequested,
	}
	b.events.Log(event)
}

func (b *Basecamp) logError(err error, context string) {
	event := b.newLogEvent(netlog.CategoryError)
	event.Error = &netlog.ErrorEventData{
		Message: err.Error(),
		Context: context,
	}
	b.events.Log(event)
}

func ipString(ip net.IP) string {
	if ip == nil {
		return ""
	}
	return ip.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
