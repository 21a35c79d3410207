package prefs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fxamacker/cbor/v2"
)

// Store errors.
var (
	ErrNamespaceBusy = errors.New("preferences namespace already open")
	ErrHandleClosed  = errors.New("preferences handle closed")
)

// fileExt is appended to the namespace to build the file name.
const fileExt = ".prefs"

// Store manages namespaced preference files under a single directory.
type Store struct {
	mu   sync.Mutex
	dir  string
	open map[string]bool
}

// NewStore creates a store rooted at dir. The directory is created lazily
// on the first flush.
func NewStore(dir string) *Store {
	return &Store{
		dir:  dir,
		open: make(map[string]bool),
	}
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Open acquires the exclusive handle for a namespace, loading its current
// contents. A missing or undecodable file yields an empty namespace.
// The handle must be released with Close.
func (s *Store) Open(namespace string) (*Handle, error) {
	s.mu.Lock()
	if s.open[namespace] {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNamespaceBusy, namespace)
	}
	s.open[namespace] = true
	s.mu.Unlock()

	h := &Handle{
		store:     s,
		namespace: namespace,
		values:    make(map[string]uint32),
	}

	data, err := os.ReadFile(s.path(namespace))
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		s.release(namespace)
		return nil, err
	}

	// A file that does not decode is treated as empty; the next flush
	// rewrites it.
	var values map[string]uint32
	if err := cbor.Unmarshal(data, &values); err == nil && values != nil {
		h.values = values
	}

	return h, nil
}

// Update opens the namespace, runs fn, and closes the handle on every exit
// path, flushing pending writes even when fn fails.
func (s *Store) Update(namespace string, fn func(*Handle) error) error {
	h, err := s.Open(namespace)
	if err != nil {
		return err
	}

	fnErr := fn(h)
	closeErr := h.Close()

	if fnErr != nil {
		return fnErr
	}
	return closeErr
}

func (s *Store) path(namespace string) string {
	return filepath.Join(s.dir, namespace+fileExt)
}

func (s *Store) release(namespace string) {
	s.mu.Lock()
	delete(s.open, namespace)
	s.mu.Unlock()
}

// Handle is the exclusive accessor for one namespace. It is not safe for
// concurrent use; the namespace exclusivity makes sharing unnecessary.
type Handle struct {
	store     *Store
	namespace string
	values    map[string]uint32
	dirty     bool
	closed    bool
}

// GetUint returns the value for key, or def if the key is absent or the
// handle is closed.
func (h *Handle) GetUint(key string, def uint32) uint32 {
	if h.closed {
		return def
	}
	if v, ok := h.values[key]; ok {
		return v
	}
	return def
}

// PutUint buffers a value for key. The write reaches disk on Close.
func (h *Handle) PutUint(key string, value uint32) {
	if h.closed {
		return
	}
	h.values[key] = value
	h.dirty = true
}

// Close flushes pending writes and releases the namespace.
// Closing an already-closed handle returns nil.
func (h *Handle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	defer h.store.release(h.namespace)

	if !h.dirty {
		return nil
	}

	if err := os.MkdirAll(h.store.dir, 0755); err != nil {
		return err
	}

	data, err := cbor.Marshal(h.values)
	if err != nil {
		return err
	}

	return os.WriteFile(h.store.path(h.namespace), data, 0644)
}
