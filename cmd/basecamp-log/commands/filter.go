package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/basecamp-iot/basecamp-go/pkg/netlog"
)

// RunFilter reads the log file, keeps events matching the options and
// writes them to a new CBOR log file.
func RunFilter(path, output string, opts FilterOptions) error {
	filter, err := BuildFilter(opts)
	if err != nil {
		return err
	}

	reader, err := netlog.NewFilteredReader(path, filter)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer reader.Close()

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer out.Close()

	encoder := netlog.NewEncoder(out)
	kept := 0
	for {
		event, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read event: %w", err)
		}
		if err := encoder.Encode(event); err != nil {
			return fmt.Errorf("failed to write event: %w", err)
		}
		kept++
	}

	fmt.Printf("Wrote %d events to %s\n", kept, output)
	return nil
}
