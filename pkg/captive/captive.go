// Package captive implements the DNS side of the setup captive portal.
//
// While the device runs its setup access point, every DNS lookup a client
// makes is answered with the access point's own address. Phones and laptops
// probing for connectivity then land on the setup web interface no matter
// which hostname they asked for.
//
// Only A queries are redirected. AAAA queries get an empty answer so that
// dual-stack clients fall back to IPv4 instead of timing out, and all other
// query types are refused.
package captive

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/miekg/dns"
)

var (
	// ErrInvalidConfig indicates the redirector configuration is unusable.
	ErrInvalidConfig = errors.New("captive: invalid configuration")

	// ErrAlreadyStarted indicates Start was called twice.
	ErrAlreadyStarted = errors.New("captive: server already started")

	// ErrServerClosed indicates the redirector has been closed.
	ErrServerClosed = errors.New("captive: server closed")
)

const (
	// DefaultAddr is the standard DNS listen address.
	DefaultAddr = ":53"

	// DefaultTTL is the answer TTL in seconds. Short enough that clients
	// re-resolve promptly once the device leaves setup mode.
	DefaultTTL = 60
)

// Config configures a DNSRedirector.
type Config struct {
	// Addr is the UDP listen address. Defaults to ":53".
	Addr string

	// RedirectIP is the IPv4 address returned for every A query.
	// Typically the soft access point address.
	RedirectIP net.IP

	// TTL is the answer TTL in seconds. Defaults to 60.
	TTL uint32

	// Logger receives structured log output. Defaults to a discarding
	// logger when nil.
	Logger *slog.Logger
}

// DefaultConfig returns a configuration redirecting to the given address.
func DefaultConfig(redirectIP net.IP) Config {
	return Config{
		Addr:       DefaultAddr,
		RedirectIP: redirectIP,
		TTL:        DefaultTTL,
	}
}

// Validate checks the configuration for missing or invalid fields.
func (c *Config) Validate() error {
	if c.RedirectIP == nil {
		return fmt.Errorf("%w: RedirectIP is required", ErrInvalidConfig)
	}
	if c.RedirectIP.To4() == nil {
		return fmt.Errorf("%w: RedirectIP must be IPv4", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Addr == "" {
		c.Addr = DefaultAddr
	}
	if c.TTL == 0 {
		c.TTL = DefaultTTL
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// DNSRedirector answers every A query with a fixed IPv4 address.
type DNSRedirector struct {
	cfg        Config
	logger     *slog.Logger
	redirectIP net.IP

	mu      sync.Mutex
	server  *dns.Server
	conn    net.PacketConn
	started bool
	closed  bool

	wg sync.WaitGroup
}

// New creates a DNSRedirector from the given configuration.
// Call Start to begin serving.
func New(cfg Config) (*DNSRedirector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	return &DNSRedirector{
		cfg:        cfg,
		logger:     cfg.Logger,
		redirectIP: cfg.RedirectIP.To4(),
	}, nil
}

// Start binds the UDP socket and begins answering queries. It does not
// return until the server is accepting queries, so Close always finds a
// running server to shut down.
func (r *DNSRedirector) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return ErrServerClosed
	}
	if r.started {
		return ErrAlreadyStarted
	}

	conn, err := net.ListenPacket("udp", r.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", r.cfg.Addr, err)
	}

	started := make(chan struct{})
	failed := make(chan error, 1)

	r.conn = conn
	r.server = &dns.Server{
		PacketConn:        conn,
		Handler:           r,
		NotifyStartedFunc: func() { close(started) },
	}
	r.started = true

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		err := r.server.ActivateAndServe()
		if err == nil {
			return
		}
		select {
		case <-started:
			// The server died after coming up. Close sets the closed
			// flag before shutting down, so anything else is worth a
			// warning.
			r.mu.Lock()
			closed := r.closed
			r.mu.Unlock()
			if !closed {
				r.logger.Warn("dns server terminated", "error", err)
			}
		default:
			failed <- err
		}
	}()

	// Shutdown against a server that has not reached its read loop yet is
	// a silent no-op in miekg/dns, which would leave the goroutine serving
	// forever. Wait until the loop is live before reporting success.
	select {
	case <-started:
	case err := <-failed:
		conn.Close()
		r.conn = nil
		r.server = nil
		r.started = false
		return fmt.Errorf("starting dns server: %w", err)
	}

	r.logger.Info("captive dns listening",
		"addr", conn.LocalAddr().String(),
		"redirect", r.redirectIP.String())
	return nil
}

// Addr returns the bound listen address, or nil before Start.
func (r *DNSRedirector) Addr() net.Addr {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn == nil {
		return nil
	}
	return r.conn.LocalAddr()
}

// ServeDNS implements dns.Handler.
func (r *DNSRedirector) ServeDNS(w dns.ResponseWriter, req *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(req)
	m.Authoritative = true

	if len(req.Question) == 0 {
		m.Rcode = dns.RcodeRefused
		_ = w.WriteMsg(m)
		return
	}

	q := req.Question[0]
	switch q.Qtype {
	case dns.TypeA:
		m.Answer = append(m.Answer, &dns.A{
			Hdr: dns.RR_Header{
				Name:   q.Name,
				Rrtype: dns.TypeA,
				Class:  dns.ClassINET,
				Ttl:    r.cfg.TTL,
			},
			A: r.redirectIP,
		})
	case dns.TypeAAAA:
		// Empty NOERROR answer. The portal has no IPv6 address and a
		// refusal here makes some clients give up on the name entirely.
	default:
		m.Rcode = dns.RcodeRefused
	}

	if err := w.WriteMsg(m); err != nil {
		r.logger.Debug("writing dns reply", "name", q.Name, "error", err)
	}
}

// Close stops the server and releases the socket. Safe to call multiple
// times and before Start.
func (r *DNSRedirector) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	server := r.server
	r.mu.Unlock()

	var err error
	if server != nil {
		err = server.Shutdown()
	}
	r.wg.Wait()
	return err
}

// Ensure DNSRedirector implements the dns handler interface.
var _ dns.Handler = (*DNSRedirector)(nil)
