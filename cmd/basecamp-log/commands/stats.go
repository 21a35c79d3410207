package commands

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/basecamp-iot/basecamp-go/pkg/netlog"
)

// Stats holds aggregate statistics about a log file.
type Stats struct {
	TotalEvents       int
	EventsByCategory  map[netlog.Category]int
	Boots             map[string]*BootStats
	Escalations       int
	RestartsRequested int
	Errors            int
	TimeRange         struct {
		Start time.Time
		End   time.Time
	}
}

// BootStats holds statistics for a single boot session.
type BootStats struct {
	FirstSeen   time.Time
	LastSeen    time.Time
	Events      int
	DeviceName  string
	Escalations int
	Connects    int
}

// RunStats analyzes the log file and prints statistics.
func RunStats(path string, w io.Writer) error {
	reader, err := netlog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	stats := &Stats{
		EventsByCategory: make(map[netlog.Category]int),
		Boots:            make(map[string]*BootStats),
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		stats.TotalEvents++
		stats.EventsByCategory[event.Category]++

		if stats.TimeRange.Start.IsZero() || event.Timestamp.Before(stats.TimeRange.Start) {
			stats.TimeRange.Start = event.Timestamp
		}
		if event.Timestamp.After(stats.TimeRange.End) {
			stats.TimeRange.End = event.Timestamp
		}

		boot, ok := stats.Boots[event.BootID]
		if !ok {
			boot = &BootStats{
				FirstSeen: event.Timestamp,
				LastSeen:  event.Timestamp,
			}
			stats.Boots[event.BootID] = boot
		}
		boot.Events++
		if event.Timestamp.Before(boot.FirstSeen) {
			boot.FirstSeen = event.Timestamp
		}
		if event.Timestamp.After(boot.LastSeen) {
			boot.LastSeen = event.Timestamp
		}
		if event.DeviceName != "" && boot.DeviceName == "" {
			boot.DeviceName = event.DeviceName
		}

		if event.Escalation != nil {
			stats.Escalations++
			boot.Escalations++
			if event.Escalation.RestartRequested {
				stats.RestartsRequested++
			}
		}
		if event.Network != nil && event.Network.IP != "" {
			boot.Connects++
		}
		if event.Error != nil {
			stats.Errors++
		}
	}

	printStats(w, stats)
	return nil
}

func printStats(w io.Writer, stats *Stats) {
	fmt.Fprintln(w, "=== Basecamp Lifecycle Log Statistics ===")
	fmt.Fprintln(w)

	if stats.TotalEvents > 0 {
		fmt.Fprintf(w, "Time Range: %s to %s\n",
			stats.TimeRange.Start.Format(time.RFC3339),
			stats.TimeRange.End.Format(time.RFC3339))
		fmt.Fprintf(w, "Duration:   %s\n", stats.TimeRange.End.Sub(stats.TimeRange.Start).Round(time.Second))
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "Total Events: %d\n", stats.TotalEvents)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Events by Category:")
	for _, c := range []netlog.Category{
		netlog.CategoryState,
		netlog.CategoryNetwork,
		netlog.CategoryEscalation,
		netlog.CategoryError,
	} {
		if n := stats.EventsByCategory[c]; n > 0 {
			fmt.Fprintf(w, "  %-12s %d\n", c.String(), n)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Boot Sessions: %d\n", len(stats.Boots))

	// Sort boots by first-seen time for a stable listing.
	ids := make([]string, 0, len(stats.Boots))
	for id := range stats.Boots {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return stats.Boots[ids[i]].FirstSeen.Before(stats.Boots[ids[j]].FirstSeen)
	})

	for _, id := range ids {
		boot := stats.Boots[id]
		fmt.Fprintf(w, "  [%s] %d events, %s",
			shortenBootID(id), boot.Events,
			boot.LastSeen.Sub(boot.FirstSeen).Round(time.Second))
		if boot.DeviceName != "" {
			fmt.Fprintf(w, ", device %s", boot.DeviceName)
		}
		if boot.Connects > 0 {
			fmt.Fprintf(w, ", %d connects", boot.Connects)
		}
		if boot.Escalations > 0 {
			fmt.Fprintf(w, ", %d escalations", boot.Escalations)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Escalations: %d (%d requested a restart)\n", stats.Escalations, stats.RestartsRequested)
	fmt.Fprintf(w, "Errors:      %d\n", stats.Errors)
}
