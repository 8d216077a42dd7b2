// Package position persists the "what was playing and where" snapshot so the
// bot can resume after a crash or restart. The artifact is a single JSON file
// replaced atomically on every save.
package position

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/hudhaifi/murattal/pkg/logging"
)

// ErrCorruptState indicates the persisted artifact exists but cannot be
// parsed. Callers degrade to a fresh start instead of failing startup.
var ErrCorruptState = errors.New("position: corrupt state artifact")

// Record is the durable playback snapshot.
type Record struct {
	Reciter       string  `json:"reciter"`
	TrackID       string  `json:"track_id"`
	OffsetSeconds float64 `json:"offset_seconds"`
	QueueMode     string  `json:"queue_mode"`
	ShuffleSeed   int64   `json:"shuffle_seed,omitempty"`
	SavedAt       int64   `json:"saved_at"` // epoch seconds
}

// Store reads and writes the position artifact. At most one writer holds the
// internal lock at a time; Save is atomic from the perspective of a
// concurrent Load because the file is swapped via rename, never mutated in
// place.
type Store struct {
	path   string
	logger logging.Logger
	mu     sync.Mutex
}

// NewStore creates a store backed by the file at path, creating parent
// directories as needed.
func NewStore(path string, logger logging.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("position: store path cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "position: create directory %s", dir)
		}
	}

	return &Store{path: path, logger: logger}, nil
}

// Load returns the saved record, or (nil, nil) when no prior record exists.
// An unparseable artifact returns an error wrapping ErrCorruptState.
func (s *Store) Load() (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "position: read %s", s.path)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(ErrCorruptState, "parse %s: %v", s.path, err)
	}

	if rec.TrackID == "" {
		return nil, errors.Wrapf(ErrCorruptState, "parse %s: missing track_id", s.path)
	}

	return &rec, nil
}

// Save writes the record via write-to-temp-then-rename. It is idempotent and
// safe to call frequently.
func (s *Store) Save(rec *Record) error {
	if rec == nil {
		return errors.New("position: cannot save nil record")
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "position: marshal record")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "position: write %s", tmp)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return errors.Wrapf(err, "position: rename %s", tmp)
	}

	return nil
}

// Clear removes the artifact. Missing files are not an error.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "position: remove %s", s.path)
	}
	return nil
}
