package netlog

import (
	"context"
	"log/slog"
)

// SlogAdapter writes lifecycle events to an slog.Logger.
// Useful for development when you want to see agent events in console.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("boot_id", event.BootID),
		slog.String("category", event.Category.String()),
	}

	if event.DeviceName != "" {
		attrs = append(attrs, slog.String("device", event.DeviceName))
	}

	// Add type-specific attributes
	switch {
	case event.State != nil:
		attrs = append(attrs,
			slog.String("entity", event.State.Entity.String()),
			slog.String("old_state", event.State.OldState),
			slog.String("new_state", event.State.NewState),
		)
		if event.State.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.State.Reason))
		}
	case event.Network != nil:
		if event.Network.Interface != "" {
			attrs = append(attrs, slog.String("interface", event.Network.Interface))
		}
		if event.Network.ESSID != "" {
			attrs = append(attrs, slog.String("essid", event.Network.ESSID))
		}
		if event.Network.IP != "" {
			attrs = append(attrs, slog.String("ip", event.Network.IP))
		}
		if event.Network.MAC != "" {
			attrs = append(attrs, slog.String("mac", event.Network.MAC))
		}
		if event.Network.StationMAC != "" {
			attrs = append(attrs, slog.String("station_mac", event.Network.StationMAC))
		}
	case event.Escalation != nil:
		attrs = append(attrs,
			slog.String("cause", event.Escalation.Cause.String()),
			slog.Uint64("count", uint64(event.Escalation.Count)),
			slog.String("action", event.Escalation.Action.String()),
			slog.Bool("restart", event.Escalation.RestartRequested),
		)
	case event.Error != nil:
		attrs = append(attrs,
			slog.String("error_msg", event.Error.Message),
			slog.String("error_context", event.Error.Context),
		)
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "lifecycle", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
