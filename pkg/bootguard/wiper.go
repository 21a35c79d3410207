package bootguard

import (
	"errors"
	"os"
	"path/filepath"
)

// Wiper destroys persisted application state during the most severe
// escalation step.
type Wiper interface {
	// Wipe removes all persisted state. Implementations are best-effort:
	// they remove as much as possible and report the collected errors.
	Wipe() error
}

// DirWiper wipes the agent data directory: the configuration file, the
// preference namespaces, staged update artifacts, everything. The
// directory itself is kept so the agent can repopulate it immediately.
type DirWiper struct {
	// Dir is the data directory to empty.
	Dir string
}

// Wipe removes every entry under Dir. Entries that cannot be removed are
// skipped; their errors are joined into the return value.
func (w DirWiper) Wipe() error {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var errs []error
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(w.Dir, entry.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Compile-time interface satisfaction check.
var _ Wiper = DirWiper{}
