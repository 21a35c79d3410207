package bootguard

import (
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/basecamp-iot/basecamp-go/pkg/config"
	"github.com/basecamp-iot/basecamp-go/pkg/prefs"
)

// Tracker errors.
var (
	ErrInvalidConfig = errors.New("invalid tracker configuration")
)

// Defaults for the persisted counter location.
const (
	// DefaultNamespace is the preference namespace holding the counter.
	DefaultNamespace = "basecamp"

	// DefaultCounterKey is the key of the unhealthy-boot counter.
	DefaultCounterKey = "bootcounter"
)

// Escalation thresholds, in consecutive unhealthy boots. The wipe fires
// when the count exceeds recoveryBootLimit while the device is already in
// setup mode; the network reset fires when the count exceeds
// unhealthyBootLimit regardless of mode. Checked in that order of
// severity at count time: the network reset takes precedence once its
// threshold is crossed.
const (
	unhealthyBootLimit = 3
	recoveryBootLimit  = 2
)

// Escalation identifies the recovery action a boot check decided on.
type Escalation uint8

const (
	// EscalationNone - boot normally.
	EscalationNone Escalation = iota

	// EscalationNetworkReset - the stored network credentials are the
	// likely culprit; the configured flag has been cleared so the next
	// boot enters setup mode.
	EscalationNetworkReset

	// EscalationStorageWipe - the device is already in setup mode and
	// still failing; all persisted state has been wiped.
	EscalationStorageWipe
)

// String returns the escalation name.
func (e Escalation) String() string {
	switch e {
	case EscalationNone:
		return "NONE"
	case EscalationNetworkReset:
		return "NETWORK_RESET"
	case EscalationStorageWipe:
		return "STORAGE_WIPE"
	default:
		return "UNKNOWN"
	}
}

// Result reports the outcome of the boot check.
type Result struct {
	// Cause is the reset cause of the current boot.
	Cause Cause

	// Count is the number of consecutive unhealthy boots observed,
	// including this one. Zero when the cause was not suspicious.
	Count uint32

	// Escalation is the recovery action taken, if any.
	Escalation Escalation

	// RestartRequested is set when the caller must restart the device so
	// the escalation takes effect. The Tracker has already flushed every
	// persisted write by the time it returns.
	RestartRequested bool
}

// Config configures a Tracker.
type Config struct {
	// Prefs holds the persisted boot counter.
	Prefs *prefs.Store

	// Config is the device configuration store. The network-reset
	// escalation clears its configured flag.
	Config *config.Store

	// Causes reports the reset cause of the current boot.
	Causes CauseSource

	// Wiper executes the storage-wipe escalation. Optional; without one
	// the wipe step only resets the counter.
	Wiper Wiper

	// Namespace is the preference namespace for the counter.
	// Defaults to DefaultNamespace.
	Namespace string

	// CounterKey is the preference key for the counter.
	// Defaults to DefaultCounterKey.
	CounterKey string

	// Logger is the optional logger for debug output.
	// If nil, logging is disabled.
	Logger *slog.Logger
}

// Validate checks if the tracker config is valid.
func (c *Config) Validate() error {
	if c.Prefs == nil || c.Config == nil || c.Causes == nil {
		return ErrInvalidConfig
	}
	return nil
}

// Tracker maintains the unhealthy-boot counter and the escalation policy.
type Tracker struct {
	prefs      *prefs.Store
	config     *config.Store
	causes     CauseSource
	wiper      Wiper
	namespace  string
	counterKey string
	logger     *slog.Logger

	// lastCount is the counter value most recently read or written,
	// served by Count when the namespace is held by another handle.
	lastCount atomic.Uint32
}

// New creates a tracker.
func New(cfg Config) (*Tracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.CounterKey == "" {
		cfg.CounterKey = DefaultCounterKey
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Tracker{
		prefs:      cfg.Prefs,
		config:     cfg.Config,
		causes:     cfg.Causes,
		wiper:      cfg.Wiper,
		namespace:  cfg.Namespace,
		counterKey: cfg.CounterKey,
		logger:     logger,
	}, nil
}

// CheckResetReason runs the boot check. Call it exactly once per boot,
// before any networking starts, so that an escalation restart can never
// race with network state changes.
//
// The counter is read, modified, and written under a single exclusive
// preference handle that is flushed and released on every path, including
// the ones that request a restart. The check never fails: storage faults
// read as a zero counter and writes are best-effort.
func (t *Tracker) CheckResetReason() Result {
	cause := t.causes.ResetCause()
	result := Result{Cause: cause}

	err := t.prefs.Update(t.namespace, func(h *prefs.Handle) error {
		if !cause.Suspicious() {
			// An intentional boot: whatever came before no longer counts.
			t.logger.Debug("intentional boot", "cause", cause.String())
			h.PutUint(t.counterKey, 0)
			t.lastCount.Store(0)
			return nil
		}

		count := h.GetUint(t.counterKey, 0) + 1
		result.Count = count
		t.logger.Info("unhealthy boot", "cause", cause.String(), "count", count)

		switch {
		case count > unhealthyBootLimit:
			// Too many bad boots: the stored network credentials are the
			// likely culprit. Force setup mode on the next boot.
			result.Escalation = EscalationNetworkReset
			result.RestartRequested = true
			t.config.Set(config.KeyWifiConfigured, "false")
			if err := t.config.Save(); err != nil {
				t.logger.Warn("saving forced unconfigure", "error", err)
			}
			h.PutUint(t.counterKey, 0)
			t.lastCount.Store(0)

		case count > recoveryBootLimit && t.unconfigured():
			// Already in setup mode and still failing: the persisted
			// state itself may be corrupt.
			result.Escalation = EscalationStorageWipe
			result.RestartRequested = true
			if t.wiper != nil {
				if err := t.wiper.Wipe(); err != nil {
					t.logger.Warn("wiping storage", "error", err)
				}
			}
			// The closing flush recreates the counter file the wipe
			// removed.
			h.PutUint(t.counterKey, 0)
			t.lastCount.Store(0)

		default:
			h.PutUint(t.counterKey, count)
			t.lastCount.Store(count)
		}
		return nil
	})
	if err != nil {
		t.logger.Warn("boot counter check", "error", err)
	}

	return result
}

// MarkHealthy resets the counter to zero. Call it when the device acquires
// a network address, the strongest signal that the current configuration
// works. Idempotent; storage faults are absorbed.
func (t *Tracker) MarkHealthy() {
	err := t.prefs.Update(t.namespace, func(h *prefs.Handle) error {
		previous := h.GetUint(t.counterKey, 0)
		if previous != 0 {
			t.logger.Debug("boot counter cleared", "previous", previous)
		}
		h.PutUint(t.counterKey, 0)
		return nil
	})
	if err != nil {
		t.logger.Warn("clearing boot counter", "error", err)
		return
	}
	t.lastCount.Store(0)
}

// unconfigured reports whether the configuration store says the network
// has been explicitly unconfigured. An absent flag does not count: a
// factory-fresh device must climb through the network-reset escalation
// before a wipe is warranted.
func (t *Tracker) unconfigured() bool {
	return strings.EqualFold(t.config.Get(config.KeyWifiConfigured), "false")
}

// Count reads the persisted counter without modifying it, for status and
// diagnostics output. When the namespace is held by a concurrent update
// the last observed value is returned; storage faults read as zero.
func (t *Tracker) Count() uint32 {
	var count uint32
	err := t.prefs.Update(t.namespace, func(h *prefs.Handle) error {
		count = h.GetUint(t.counterKey, 0)
		return nil
	})
	if errors.Is(err, prefs.ErrNamespaceBusy) {
		t.logger.Debug("boot counter namespace busy, using last observed value")
		return t.lastCount.Load()
	}
	if err != nil {
		t.logger.Warn("reading boot counter", "error", err)
		return 0
	}
	t.lastCount.Store(count)
	return count
}
