package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Store holds the device configuration. It is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	path    string
	memOnly bool
	values  map[Key]string
	tainted bool
}

// NewStore creates a store persisted at path. Call Load before first use.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		values: make(map[Key]string),
	}
}

// NewMemory creates a memory-only store: Load and Save are no-ops.
func NewMemory() *Store {
	return &Store{
		memOnly: true,
		values:  make(map[Key]string),
	}
}

// Load reads the configuration file, replacing the in-memory values.
// A missing file loads as an empty store.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.memOnly {
		return nil
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.values = make(map[Key]string)
		return nil
	}
	if err != nil {
		return err
	}

	values := make(map[Key]string)
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}

	s.values = values
	s.tainted = false
	return nil
}

// Save writes the configuration to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.memOnly {
		s.tainted = false
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}

	if err := os.WriteFile(s.path, data, 0644); err != nil {
		return err
	}

	s.tainted = false
	return nil
}

// Get returns the value for key, or "" when the key is absent.
func (s *Store) Get(key Key) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// Set stores a value. Setting a key to its current value does not taint
// the store.
func (s *Store) Set(key Key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if current, ok := s.values[key]; ok && current == value {
		return
	}
	s.values[key] = value
	s.tainted = true
}

// IsSet reports whether key exists with a non-empty value.
func (s *Store) IsSet(key Key) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key] != ""
}

// Keys returns all present keys in sorted order.
func (s *Store) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]Key, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

// Tainted reports whether there are unsaved changes.
func (s *Store) Tainted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tainted
}

// Reset clears the configuration, keeping only the listed keys, and saves.
func (s *Store) Reset(preserve ...Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	preserved := make(map[Key]string)
	for _, key := range preserve {
		if v, ok := s.values[key]; ok {
			preserved[key] = v
		}
	}

	s.values = preserved
	s.tainted = true
	return s.saveLocked()
}

// Path returns the backing file path, or "" for memory-only stores.
func (s *Store) Path() string {
	return s.path
}
