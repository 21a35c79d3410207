// Package webui serves the device setup interface.
//
// The server offers a single-page HTML form for the network and service
// credentials, a JSON status endpoint, and a WebSocket that pushes status
// snapshots on connectivity changes and on a periodic tick. Submitting the
// form persists the configuration, marks the device as configured and
// requests a restart through a callback; the next boot then joins the
// configured network.
//
// In setup mode the page is reached through the captive DNS redirect, so
// every hostname a client tries lands on the form.
package webui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/basecamp-iot/basecamp-go/pkg/config"
)

// Server errors.
var (
	ErrInvalidConfig  = errors.New("webui: invalid configuration")
	ErrAlreadyStarted = errors.New("webui: server already started")
	ErrServerClosed   = errors.New("webui: server closed")
)

// Defaults used when Config fields are zero.
const (
	DefaultAddr         = ":80"
	DefaultPushInterval = 5 * time.Second
)

// EnableMode controls when the orchestrator runs the setup interface.
type EnableMode uint8

const (
	// EnableAlways runs the interface in every operation mode.
	EnableAlways EnableMode = iota

	// EnableAccessPointOnly runs the interface only while the device is in
	// setup access point mode.
	EnableAccessPointOnly

	// EnableNever disables the interface entirely.
	EnableNever
)

// String returns the mode name.
func (m EnableMode) String() string {
	switch m {
	case EnableAlways:
		return "ALWAYS"
	case EnableAccessPointOnly:
		return "ACCESS_POINT_ONLY"
	case EnableNever:
		return "NEVER"
	default:
		return "UNKNOWN"
	}
}

// StatusData is the status snapshot served over the JSON endpoint and the
// WebSocket push.
type StatusData struct {
	DeviceName string `json:"deviceName,omitempty"`
	Mode       string `json:"mode"`
	Connected  bool   `json:"connected"`
	IP         string `json:"ip,omitempty"`
	SoftAPIP   string `json:"softApIp,omitempty"`
	MAC        string `json:"mac,omitempty"`
	APName     string `json:"apName,omitempty"`
	Version    string `json:"version,omitempty"`
}

// StatusFunc supplies the current status snapshot.
type StatusFunc func() StatusData

// Config configures a Server.
type Config struct {
	// Addr is the listen address. Defaults to DefaultAddr.
	Addr string

	// Store is the configuration store the form writes to. Required.
	Store *config.Store

	// Status supplies status snapshots. When nil, the status endpoints
	// serve zero values.
	Status StatusFunc

	// OnSave is invoked after a successful configuration save. The
	// orchestrator uses it to request the restart that applies the new
	// configuration.
	OnSave func()

	// PushInterval is the period of unsolicited WebSocket status pushes.
	// Defaults to DefaultPushInterval.
	PushInterval time.Duration

	// Logger receives request and lifecycle logs. When nil, logging is
	// disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the default address and push period.
func DefaultConfig(store *config.Store) Config {
	return Config{
		Addr:         DefaultAddr,
		Store:        store,
		PushInterval: DefaultPushInterval,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("%w: no configuration store", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.PushInterval == 0 {
		c.PushInterval = DefaultPushInterval
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Server is the setup interface HTTP server.
type Server struct {
	cfg    Config
	logger *slog.Logger

	mux     *http.ServeMux
	httpSrv *http.Server
	hub     *hub
	done    chan struct{}

	mu      sync.Mutex
	ln      net.Listener
	started bool
	closed  bool

	wg sync.WaitGroup
}

// New creates a Server from cfg. Call Start to begin serving.
func New(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		mux:    http.NewServeMux(),
		hub:    newHub(),
		done:   make(chan struct{}),
	}
	s.registerRoutes()
	s.httpSrv = &http.Server{Handler: s.mux}
	return s, nil
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.ln = ln
	s.started = true
	s.mu.Unlock()

	s.logger.Info("setup interface listening", "addr", ln.Addr().String())

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("setup interface terminated", "error", err)
		}
	}()
	go s.pushLoop()

	return nil
}

// Port returns the bound TCP port, or 0 before Start.
func (s *Server) Port() uint16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return 0
	}
	if addr, ok := s.ln.Addr().(*net.TCPAddr); ok {
		return uint16(addr.Port)
	}
	return 0
}

// PushStatus broadcasts the current status to every WebSocket client.
func (s *Server) PushStatus() {
	s.hub.broadcast(s.statusData())
}

// Shutdown stops the server. Safe to call more than once and before Start.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	started := s.started
	s.mu.Unlock()

	close(s.done)

	var err error
	if started {
		err = s.httpSrv.Shutdown(ctx)
	}
	// Shutdown leaves hijacked connections alone; the hub owns those.
	s.hub.closeAll()
	s.wg.Wait()
	return err
}

// pushLoop broadcasts status snapshots on every interval tick.
func (s *Server) pushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.PushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.hub.broadcast(s.statusData())
		}
	}
}

func (s *Server) statusData() StatusData {
	if s.cfg.Status == nil {
		return StatusData{}
	}
	return s.cfg.Status()
}
