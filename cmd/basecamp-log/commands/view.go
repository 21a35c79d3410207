// Package commands implements the basecamp-log CLI commands.
package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/basecamp-iot/basecamp-go/pkg/netlog"
)

// FilterOptions carries the raw filter flag values shared by the view and
// filter commands.
type FilterOptions struct {
	Category  string
	BootID    string
	Device    string
	TimeStart string
	TimeEnd   string
}

// BuildFilter parses the raw options into a netlog filter.
func BuildFilter(opts FilterOptions) (netlog.Filter, error) {
	var filter netlog.Filter
	filter.BootID = opts.BootID
	filter.DeviceName = opts.Device

	if opts.Category != "" {
		c, err := ParseCategoryFlag(opts.Category)
		if err != nil {
			return netlog.Filter{}, err
		}
		filter.Category = &c
	}
	if opts.TimeStart != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeStart)
		if err != nil {
			return netlog.Filter{}, fmt.Errorf("invalid time-start: %w", err)
		}
		filter.TimeStart = &t
	}
	if opts.TimeEnd != "" {
		t, err := time.Parse(time.RFC3339, opts.TimeEnd)
		if err != nil {
			return netlog.Filter{}, fmt.Errorf("invalid time-end: %w", err)
		}
		filter.TimeEnd = &t
	}
	return filter, nil
}

// ParseCategoryFlag converts a category flag value to a netlog category.
func ParseCategoryFlag(s string) (netlog.Category, error) {
	switch strings.ToLower(s) {
	case "state":
		return netlog.CategoryState, nil
	case "network":
		return netlog.CategoryNetwork, nil
	case "escalation":
		return netlog.CategoryEscalation, nil
	case "error":
		return netlog.CategoryError, nil
	default:
		return 0, fmt.Errorf("unknown category: %s (supported: state, network, escalation, error)", s)
	}
}

// RunView prints matching events in human-readable form.
func RunView(path string, filter netlog.Filter, w io.Writer) error {
	reader, err := netlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		formatEvent(w, event)
	}
	return nil
}

// formatEvent writes a human-readable representation of the event to w.
func formatEvent(w io.Writer, event netlog.Event) {
	// Header line: timestamp [boot:id] CATEGORY Label
	ts := event.Timestamp.UTC().Format("2006-01-02T15:04:05.000000Z")
	boot := shortenBootID(event.BootID)

	fmt.Fprintf(w, "%s [boot:%s] %-10s %s\n", ts, boot, event.Category.String(), eventLabel(event))

	if event.DeviceName != "" {
		fmt.Fprintf(w, "  Device: %s\n", event.DeviceName)
	}

	switch {
	case event.State != nil:
		formatStateDetails(w, event.State)
	case event.Network != nil:
		formatNetworkDetails(w, event.Network)
	case event.Escalation != nil:
		formatEscalationDetails(w, event.Escalation)
	case event.Error != nil:
		formatErrorDetails(w, event.Error)
	}

	fmt.Fprintln(w) // Blank line between events
}

// eventLabel returns the short type label for the header line.
func eventLabel(event netlog.Event) string {
	switch {
	case event.State != nil:
		return event.State.Entity.String()
	case event.Network != nil:
		if event.Network.StationMAC != "" {
			return "StationJoined"
		}
		return "Address"
	case event.Escalation != nil:
		return event.Escalation.Action.String()
	case event.Error != nil:
		return "Error"
	default:
		return "Unknown"
	}
}

// shortenBootID returns the first 8 characters of the boot ID.
func shortenBootID(id string) string {
	if len(id) >= 8 {
		return id[:8]
	}
	return id
}

func formatStateDetails(w io.Writer, state *netlog.StateEvent) {
	if state.OldState != "" {
		fmt.Fprintf(w, "  Transition: %s -> %s\n", state.OldState, state.NewState)
	} else {
		fmt.Fprintf(w, "  State: %s\n", state.NewState)
	}
	if state.Reason != "" {
		fmt.Fprintf(w, "  Reason: %s\n", state.Reason)
	}
}

func formatNetworkDetails(w io.Writer, network *netlog.NetworkEvent) {
	if network.Interface != "" {
		fmt.Fprintf(w, "  Interface: %s\n", network.Interface)
	}
	if network.ESSID != "" {
		fmt.Fprintf(w, "  ESSID: %s\n", network.ESSID)
	}
	if network.IP != "" {
		fmt.Fprintf(w, "  IP: %s\n", network.IP)
	}
	if network.MAC != "" {
		fmt.Fprintf(w, "  MAC: %s\n", network.MAC)
	}
	if network.StationMAC != "" {
		fmt.Fprintf(w, "  Station: %s\n", network.StationMAC)
	}
}

func formatEscalationDetails(w io.Writer, esc *netlog.EscalationEvent) {
	fmt.Fprintf(w, "  Cause: %s\n", esc.Cause.String())
	fmt.Fprintf(w, "  Count: %d\n", esc.Count)
	if esc.RestartRequested {
		fmt.Fprintln(w, "  Restart: requested")
	}
}

func formatErrorDetails(w io.Writer, errEvent *netlog.ErrorEventData) {
	fmt.Fprintf(w, "  Message: %s\n", errEvent.Message)
	if errEvent.Context != "" {
		fmt.Fprintf(w, "  Context: %s\n", errEvent.Context)
	}
}
