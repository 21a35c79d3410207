// Package sntp keeps the local clock aligned with an NTP server.
//
// Devices in the field often boot without a battery backed RTC, so the
// wall clock starts at the epoch until a network sync happens. TLS
// handshakes, log timestamps and update manifests all need a sane clock,
// which makes time sync part of bringing the network up rather than an
// optional extra.
//
// A Synchronizer polls a single server, records the measured offset and
// optionally steps the clock through a Clock implementation when the
// offset exceeds a threshold. With a nil Clock the synchronizer is
// observe-only, which is also the mode the tests run in.
package sntp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/beevik/ntp"
	"golang.org/x/sys/unix"
)

// Errors returned by the sntp package.
var (
	ErrInvalidConfig   = errors.New("sntp: invalid configuration")
	ErrInvalidResponse = errors.New("sntp: invalid server response")
)

// Defaults used when Config fields are zero.
const (
	DefaultServer       = "pool.ntp.org"
	DefaultQueryTimeout = 5 * time.Second
	DefaultInterval     = time.Hour

	// DefaultStepThreshold matches ntpd's canonical step threshold.
	DefaultStepThreshold = 128 * time.Millisecond
)

// Clock applies a measured offset to the local clock.
type Clock interface {
	// Step adjusts the clock by offset in a single jump. A positive
	// offset means the local clock is behind the server.
	Step(offset time.Duration) error
}

// SystemClock steps the system wall clock. Setting the clock requires
// CAP_SYS_TIME, so this is only usable when the process runs privileged.
type SystemClock struct{}

// Step implements Clock by setting CLOCK_REALTIME to now+offset.
func (SystemClock) Step(offset time.Duration) error {
	ts := unix.NsecToTimespec(time.Now().Add(offset).UnixNano())
	if err := unix.ClockSettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return fmt.Errorf("set clock: %w", err)
	}
	return nil
}

var _ Clock = (*SystemClock)(nil)

// QueryFunc performs one SNTP query against server.
type QueryFunc func(server string, timeout time.Duration) (*ntp.Response, error)

func defaultQuery(server string, timeout time.Duration) (*ntp.Response, error) {
	return ntp.QueryWithOptions(server, ntp.QueryOptions{Timeout: timeout})
}

// Config configures a Synchronizer.
type Config struct {
	// Server is the NTP server to poll. Defaults to DefaultServer.
	Server string

	// QueryTimeout bounds a single query. Defaults to DefaultQueryTimeout.
	QueryTimeout time.Duration

	// Interval is the polling period for Run. Defaults to DefaultInterval.
	Interval time.Duration

	// StepThreshold is the minimum absolute offset that triggers a clock
	// step. Defaults to DefaultStepThreshold.
	StepThreshold time.Duration

	// Clock applies offsets to the local clock. When nil, offsets are
	// recorded but never applied.
	Clock Clock

	// Query overrides the SNTP query implementation. Used by tests.
	Query QueryFunc

	// Logger receives sync events. When nil, logging is disabled.
	Logger *slog.Logger
}

// DefaultConfig returns a Config with the default server and timings.
func DefaultConfig() Config {
	return Config{
		Server:        DefaultServer,
		QueryTimeout:  DefaultQueryTimeout,
		Interval:      DefaultInterval,
		StepThreshold: DefaultStepThreshold,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.QueryTimeout < 0 {
		return fmt.Errorf("%w: negative query timeout", ErrInvalidConfig)
	}
	if c.Interval < 0 {
		return fmt.Errorf("%w: negative interval", ErrInvalidConfig)
	}
	if c.StepThreshold < 0 {
		return fmt.Errorf("%w: negative step threshold", ErrInvalidConfig)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Server == "" {
		c.Server = DefaultServer
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = DefaultQueryTimeout
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.StepThreshold == 0 {
		c.StepThreshold = DefaultStepThreshold
	}
	if c.Query == nil {
		c.Query = defaultQuery
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// Synchronizer polls an NTP server and tracks the measured clock offset.
type Synchronizer struct {
	cfg    Config
	logger *slog.Logger

	mu         sync.Mutex
	lastOffset time.Duration
	lastSync   time.Time
	synced     bool
}

// New creates a Synchronizer from cfg.
func New(cfg Config) (*Synchronizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &Synchronizer{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Sync performs one query, records the measured offset and steps the
// clock when the offset exceeds the configured threshold. It returns the
// measured offset.
func (s *Synchronizer) Sync(ctx context.Context) (time.Duration, error) {
	type result struct {
		resp *ntp.Response
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		resp, err := s.cfg.Query(s.cfg.Server, s.cfg.QueryTimeout)
		ch <- result{resp: resp, err: err}
	}()

	var res result
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res = <-ch:
	}
	if res.err != nil {
		return 0, fmt.Errorf("query %s: %w", s.cfg.Server, res.err)
	}
	if err := res.resp.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidResponse, err)
	}

	offset := res.resp.ClockOffset

	s.mu.Lock()
	s.lastOffset = offset
	s.lastSync = time.Now()
	s.synced = true
	s.mu.Unlock()

	if s.cfg.Clock != nil && absDuration(offset) > s.cfg.StepThreshold {
		if err := s.cfg.Clock.Step(offset); err != nil {
			return offset, fmt.Errorf("step clock: %w", err)
		}
		s.logger.Info("clock stepped",
			"server", s.cfg.Server,
			"offset", offset)
	} else {
		s.logger.Debug("clock offset measured",
			"server", s.cfg.Server,
			"offset", offset)
	}
	return offset, nil
}

// LastOffset returns the most recently measured offset. The second
// return value is false until the first successful sync.
func (s *Synchronizer) LastOffset() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastOffset, s.synced
}

// LastSync returns the time of the most recent successful sync. The
// second return value is false until the first successful sync.
func (s *Synchronizer) LastSync() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSync, s.synced
}

// Run syncs immediately and then on every interval tick until ctx is
// cancelled. Query failures are logged and retried on the next tick.
func (s *Synchronizer) Run(ctx context.Context) error {
	if _, err := s.Sync(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Warn("time sync failed", "error", err)
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := s.Sync(ctx); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				s.logger.Warn("time sync failed", "error", err)
			}
		}
	}
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
