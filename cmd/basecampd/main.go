// Command basecampd is the device network bootstrap agent.
//
// The agent decides the network operation mode at boot (client or setup
// access point), runs the boot-resilience escalation, and manages the
// setup web interface, captive DNS, mDNS advertising, MQTT reporting,
// firmware updates and time sync for the selected mode.
//
// Usage:
//
//	basecampd [flags]
//
// Flags:
//
//	-config string      Daemon configuration file (YAML)
//	-data string        Data directory (default "/var/lib/basecamp")
//	-backend string     Network backend: wifi, wired (default "wifi")
//	-iface string       Network interface (default "wlan0")
//	-ap-secret string   Fixed setup access point secret
//	-open-ap            Run the setup access point without encryption
//	-webui string       Setup interface policy: always, setup, never (default "always")
//	-webui-addr string  Setup interface listen address (default ":80")
//	-manifest string    Firmware update manifest URL
//	-install string     Firmware install path
//	-ntp string         NTP server (default "pool.ntp.org")
//	-no-timesync        Disable time synchronization
//	-no-mdns            Disable mDNS advertising
//	-cause-file string  File with the numeric reset cause of this boot
//	-restart-cmd string Restart command (default: kernel reboot syscall)
//	-log-level string   Log level: debug, info, warn, error (default "info")
//	-log-format string  Log format: text, json (default "text")
//	-interactive        Run the operator console on stdin
//
// Examples:
//
//	# WiFi device with defaults
//	basecampd -iface wlan0
//
//	# Wired device with a config file and JSON logs
//	basecampd -config /etc/basecamp/daemon.yaml -backend wired -log-format json
//
//	# Development: open setup AP, console, verbose logs
//	basecampd -data ./devdata -open-ap -interactive -log-level debug
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/yaml.v3"

	"github.com/basecamp-iot/basecamp-go/cmd/basecampd/interactive"
	"github.com/basecamp-iot/basecamp-go/pkg/basecamp"
	"github.com/basecamp-iot/basecamp-go/pkg/bootguard"
	"github.com/basecamp-iot/basecamp-go/pkg/netcontrol"
	"github.com/basecamp-iot/basecamp-go/pkg/netlog"
	"github.com/basecamp-iot/basecamp-go/pkg/version"
	"github.com/basecamp-iot/basecamp-go/pkg/webui"
	"github.com/basecamp-iot/basecamp-go/pkg/wifi"
	"github.com/basecamp-iot/basecamp-go/pkg/wired"
)

// EventLogName is the machine-readable event log inside the data
// directory, read by basecamp-log.
const EventLogName = "events.cblog"

// Config holds the daemon configuration. YAML fields mirror the flags.
type Config struct {
	DataDir          string `yaml:"dataDir"`
	Backend          string `yaml:"backend"`
	Interface        string `yaml:"interface"`
	APSecret         string `yaml:"apSecret"`
	OpenAP           bool   `yaml:"openAp"`
	WebUI            string `yaml:"webui"`
	WebUIAddr        string `yaml:"webuiAddr"`
	CaptiveDNSAddr   string `yaml:"captiveDnsAddr"`
	ManifestURL      string `yaml:"manifestUrl"`
	InstallPath      string `yaml:"installPath"`
	NTPServer        string `yaml:"ntpServer"`
	NoTimeSync       bool   `yaml:"noTimeSync"`
	NoMDNS           bool   `yaml:"noMdns"`
	CauseFile        string `yaml:"causeFile"`
	RestartCmd       string `yaml:"restartCmd"`
	LogLevel         string `yaml:"logLevel"`
	LogFormat        string `yaml:"logFormat"`
	Interactive      bool   `yaml:"-"`
	ConfigFile       string `yaml:"-"`
}

var config = Config{
	DataDir:   "/var/lib/basecamp",
	Backend:   "wifi",
	Interface: "wlan0",
	WebUI:     "always",
	LogLevel:  "info",
	LogFormat: "text",
}

func init() {
	flag.StringVar(&config.ConfigFile, "config", "", "Daemon configuration file (YAML)")
	flag.StringVar(&config.DataDir, "data", config.DataDir, "Data directory")
	flag.StringVar(&config.Backend, "backend", config.Backend, "Network backend: wifi, wired")
	flag.StringVar(&config.Interface, "iface", config.Interface, "Network interface")
	flag.StringVar(&config.APSecret, "ap-secret", "", "Fixed setup access point secret")
	flag.BoolVar(&config.OpenAP, "open-ap", false, "Run the setup access point without encryption")
	flag.StringVar(&config.WebUI, "webui", config.WebUI, "Setup interface policy: always, setup, never")
	flag.StringVar(&config.WebUIAddr, "webui-addr", "", "Setup interface listen address")
	flag.StringVar(&config.ManifestURL, "manifest", "", "Firmware update manifest URL")
	flag.StringVar(&config.InstallPath, "install", "", "Firmware install path")
	flag.StringVar(&config.NTPServer, "ntp", "", "NTP server")
	flag.BoolVar(&config.NoTimeSync, "no-timesync", false, "Disable time synchronization")
	flag.BoolVar(&config.NoMDNS, "no-mdns", false, "Disable mDNS advertising")
	flag.StringVar(&config.CauseFile, "cause-file", "", "File with the numeric reset cause of this boot")
	flag.StringVar(&config.RestartCmd, "restart-cmd", "", "Restart command (default: kernel reboot syscall)")
	flag.StringVar(&config.LogLevel, "log-level", config.LogLevel, "Log level: debug, info, warn, error")
	flag.StringVar(&config.LogFormat, "log-format", config.LogFormat, "Log format: text, json")
	flag.BoolVar(&config.Interactive, "interactive", false, "Run the operator console on stdin")
}

func main() {
	flag.Parse()

	if config.ConfigFile != "" {
		if err := loadConfigFile(config.ConfigFile); err != nil {
			fmt.Fprintf(os.Stderr, "basecampd: %v\n", err)
			os.Exit(1)
		}
	}
	if err := validateConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "basecampd: %v\n", err)
		os.Exit(1)
	}

	logger, err := setupLogging(config.LogLevel, config.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "basecampd: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(config.DataDir, 0o755); err != nil {
		logger.Error("creating data directory", "error", err)
		os.Exit(1)
	}

	events, eventFile, err := setupEventLog(logger)
	if err != nil {
		logger.Error("opening event log", "error", err)
		os.Exit(1)
	}
	if eventFile != nil {
		defer eventFile.Close()
	}

	backend, err := buildBackend(logger)
	if err != nil {
		logger.Error("starting network backend", "error", err)
		os.Exit(1)
	}

	cfg := basecamp.Config{
		DataDir:           config.DataDir,
		Backend:           backend,
		FixedAPSecret:     config.APSecret,
		OpenSetupNetwork:  config.OpenAP,
		WebUIMode:         webUIMode(config.WebUI),
		WebUIAddr:         config.WebUIAddr,
		CaptiveDNSAddr:    config.CaptiveDNSAddr,
		UpdateManifestURL: config.ManifestURL,
		InstallPath:       config.InstallPath,
		NTPServer:         config.NTPServer,
		DisableTimeSync:   config.NoTimeSync,
		DisableDiscovery:  config.NoMDNS,
		Events:            events,
		Logger:            logger,
	}
	if config.CauseFile != "" {
		cfg.Causes = bootguard.FileCauseSource{Path: config.CauseFile}
	}
	if config.RestartCmd != "" {
		parts := strings.Fields(config.RestartCmd)
		cfg.Restarter = basecamp.CommandRestarter{Name: parts[0], Args: parts[1:]}
	}

	b, err := basecamp.New(cfg)
	if err != nil {
		logger.Error("creating agent", "error", err)
		os.Exit(1)
	}

	logger.Info("basecampd starting",
		"version", version.Current,
		"backend", config.Backend,
		"interface", config.Interface,
		"data", config.DataDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := b.Begin(ctx); err != nil {
		logger.Error("boot sequence failed", "error", err)
		os.Exit(1)
	}
	if b.State() == basecamp.StateRestarting {
		// The resilience check decided to restart; with an external
		// restart command the process just exits.
		return
	}

	if config.Interactive {
		console, err := interactive.New(b, logger)
		if err != nil {
			logger.Error("starting console", "error", err)
			os.Exit(1)
		}
		go console.Run(ctx, cancel)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down")
	}

	if err := b.Shutdown(context.Background()); err != nil {
		logger.Warn("shutdown", "error", err)
	}
}

// loadConfigFile layers the YAML file under any explicitly set flags:
// file values replace the defaults, then the flags given on the command
// line win again.
func loadConfigFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}

	fileConfig := config
	if err := yaml.Unmarshal(data, &fileConfig); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	explicit := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	merged := fileConfig
	if explicit["data"] {
		merged.DataDir = config.DataDir
	}
	if explicit["backend"] {
		merged.Backend = config.Backend
	}
	if explicit["iface"] {
		merged.Interface = config.Interface
	}
	if explicit["ap-secret"] {
		merged.APSecret = config.APSecret
	}
	if explicit["open-ap"] {
		merged.OpenAP = config.OpenAP
	}
	if explicit["webui"] {
		merged.WebUI = config.WebUI
	}
	if explicit["webui-addr"] {
		merged.WebUIAddr = config.WebUIAddr
	}
	if explicit["manifest"] {
		merged.ManifestURL = config.ManifestURL
	}
	if explicit["install"] {
		merged.InstallPath = config.InstallPath
	}
	if explicit["ntp"] {
		merged.NTPServer = config.NTPServer
	}
	if explicit["no-timesync"] {
		merged.NoTimeSync = config.NoTimeSync
	}
	if explicit["no-mdns"] {
		merged.NoMDNS = config.NoMDNS
	}
	if explicit["cause-file"] {
		merged.CauseFile = config.CauseFile
	}
	if explicit["restart-cmd"] {
		merged.RestartCmd = config.RestartCmd
	}
	if explicit["log-level"] {
		merged.LogLevel = config.LogLevel
	}
	if explicit["log-format"] {
		merged.LogFormat = config.LogFormat
	}

	merged.Interactive = config.Interactive
	merged.ConfigFile = config.ConfigFile
	config = merged
	return nil
}

func validateConfig() error {
	switch config.Backend {
	case "wifi", "wired":
	default:
		return fmt.Errorf("unknown backend: %s", config.Backend)
	}
	switch config.WebUI {
	case "always", "setup", "never":
	default:
		return fmt.Errorf("unknown webui policy: %s", config.WebUI)
	}
	if config.ManifestURL != "" && config.InstallPath == "" {
		return fmt.Errorf("-manifest requires -install")
	}
	return nil
}

func setupLogging(level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	switch format {
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}
}

// setupEventLog opens the CBOR event log and tees debug-level copies of
// every event into the operational log.
func setupEventLog(logger *slog.Logger) (netlog.Logger, *netlog.FileLogger, error) {
	file, err := netlog.NewFileLogger(filepath.Join(config.DataDir, EventLogName))
	if err != nil {
		return nil, nil, err
	}
	return netlog.NewMultiLogger(file, netlog.NewSlogAdapter(logger)), file, nil
}

func buildBackend(logger *slog.Logger) (netcontrol.Backend, error) {
	switch config.Backend {
	case "wifi":
		cfg := wifi.DefaultConfig(config.Interface)
		cfg.Logger = logger
		return wifi.New(cfg)
	case "wired":
		cfg := wired.DefaultConfig(config.Interface)
		cfg.Logger = logger
		return wired.New(cfg)
	default:
		return nil, fmt.Errorf("unknown backend: %s", config.Backend)
	}
}

func webUIMode(policy string) webui.EnableMode {
	switch policy {
	case "setup":
		return webui.EnableAccessPointOnly
	case "never":
		return webui.EnableNever
	default:
		return webui.EnableAlways
	}
}
