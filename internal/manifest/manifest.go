package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Artifact identifies the published columnar output for one source.
type Artifact struct {
	Prefix   string `json:"prefix"`
	Segments int    `json:"segments"`
	Rows     int64  `json:"rows"`
}

// Entry records the sync state for one dump file.
type Entry struct {
	// Signature is the remote identity marker (Last-Modified or ETag) the
	// published artifact was derived from.
	Signature  string    `json:"source_signature"`
	LastSynced time.Time `json:"last_synced"`
	Artifact   Artifact  `json:"artifact"`
}

// Store provides thread-safe access to the sync manifest file.
type Store struct {
	path    string
	mu      sync.RWMutex
	entries map[string]Entry
}

// Open loads the manifest at path, treating a missing file as empty.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("manifest path required")
	}

	s := &Store{path: path, entries: make(map[string]Entry)}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.entries); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return s, nil
}

// Path returns the manifest file location.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the entry for the given source name if present.
func (s *Store) Lookup(source string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[source]
	return entry, ok
}

// Sources returns all recorded source names in sorted order.
func (s *Store) Sources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Commit atomically replaces the entry for source and persists the whole
// manifest. Callers must invoke it only after the artifact is durably
// published; a failed persist leaves the in-memory state rolled back.
func (s *Store) Commit(source string, entry Entry) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return errors.New("source name required")
	}
	if entry.LastSynced.IsZero() {
		entry.LastSynced = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	previous, existed := s.entries[source]
	s.entries[source] = entry
	if err := s.saveLocked(); err != nil {
		if existed {
			s.entries[source] = previous
		} else {
			delete(s.entries, source)
		}
		return err
	}
	return nil
}

func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	data = append(data, '\n')

	// Replace atomically via temp file + rename so a crash mid-write cannot
	// corrupt the previous manifest.
	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp manifest: %w", err)
	}
	return nil
}
