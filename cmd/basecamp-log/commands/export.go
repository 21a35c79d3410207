package commands

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/basecamp-iot/basecamp-go/pkg/netlog"
)

// RunExport exports the log file to the specified format.
func RunExport(path, format, output string) error {
	reader, err := netlog.NewReader(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	var w io.Writer = os.Stdout
	if output != "" {
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		w = f
	}

	switch format {
	case "jsonl":
		return exportJSONL(reader, w)
	case "csv":
		return exportCSV(reader, w)
	default:
		return fmt.Errorf("unknown format: %s (supported: jsonl, csv)", format)
	}
}

func exportJSONL(reader *netlog.Reader, w io.Writer) error {
	encoder := json.NewEncoder(w)
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to encode event: %w", err)
		}
	}
	return nil
}

func exportCSV(reader *netlog.Reader, w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{"timestamp", "boot_id", "category", "device", "type", "detail"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}

		record := []string{
			event.Timestamp.UTC().Format(time.RFC3339Nano),
			event.BootID,
			event.Category.String(),
			event.DeviceName,
			eventLabel(event),
			eventDetail(event),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
	}
	return nil
}

// eventDetail renders a one-cell summary of the payload.
func eventDetail(event netlog.Event) string {
	switch {
	case event.State != nil:
		s := event.State
		if s.OldState != "" {
			return fmt.Sprintf("%s->%s", s.OldState, s.NewState)
		}
		return s.NewState
	case event.Network != nil:
		n := event.Network
		if n.StationMAC != "" {
			return n.StationMAC
		}
		return n.IP
	case event.Escalation != nil:
		e := event.Escalation
		return fmt.Sprintf("%s count=%d", e.Cause.String(), e.Count)
	case event.Error != nil:
		return event.Error.Message
	default:
		return ""
	}
}
