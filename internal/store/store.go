// Package store persists instance records on the local filesystem. Each
// instance owns one directory under the store root containing a single JSON
// record plus, while a mutating command runs, a lock file. Records are
// written atomically so a crash never leaves a half-written record behind.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/logging"
)

// Lister is the narrow read surface consumed by components that only need
// to enumerate records (the port allocator, list output).
type Lister interface {
	List() ([]*Record, error)
}

// Store is a file-backed instance record store. The root directory is
// created lazily on first save.
type Store struct {
	root   string
	logger *logging.Logger
	mu     sync.RWMutex
}

// New creates a Store rooted at the given directory. A nil logger is
// replaced with a no-op logger.
func New(root string, logger *logging.Logger) *Store {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Store{root: root, logger: logger}
}

// Root returns the store's root directory.
func (s *Store) Root() string {
	return s.root
}

// Dir returns the directory that holds the named instance's files.
func (s *Store) Dir(name string) string {
	return filepath.Join(s.root, name)
}

// Save persists a record atomically under <root>/<name>/record.json.
func (s *Store) Save(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Name == "" {
		return fmt.Errorf("record name cannot be empty")
	}

	dir := s.Dir(rec.Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create instance directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return atomicWriteFile(filepath.Join(dir, RecordFileName), data, 0644)
}

// Load retrieves the record for the named instance. A missing record is a
// NotFoundError; an unparseable one wraps ErrRecordCorrupted.
func (s *Store) Load(name string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(name)
}

func (s *Store) load(name string) (*Record, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir(name), RecordFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("instance", name)
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrRecordCorrupted, err)
	}

	if rec.Name != name {
		return nil, fmt.Errorf("%w: record name %q does not match directory %q",
			errors.ErrRecordCorrupted, rec.Name, name)
	}

	return &rec, nil
}

// List returns every readable record, sorted by name. Entries that are not
// directories or whose record cannot be read are skipped with a warning.
func (s *Store) List() ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read store directory: %w", err)
	}

	var records []*Record
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		rec, err := s.load(entry.Name())
		if err != nil {
			s.logger.Warn("skipping unreadable record",
				"instance", entry.Name(),
				"error", err.Error(),
			)
			continue
		}
		records = append(records, rec)
	}

	return records, nil
}

// Delete removes the named instance's directory and everything in it.
// Returns NotFoundError if the instance has no directory.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.Dir(name)
	if _, err := os.Stat(dir); err != nil {
		if os.IsNotExist(err) {
			return errors.NewNotFoundError("instance", name)
		}
		return fmt.Errorf("failed to check instance directory: %w", err)
	}

	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to delete instance directory: %w", err)
	}
	return nil
}

// Exists checks whether a record exists without loading it.
func (s *Store) Exists(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, err := os.Stat(filepath.Join(s.Dir(name), RecordFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check record existence: %w", err)
	}
	return true, nil
}

// Lock acquires the per-instance lock, creating the instance directory if
// needed. Callers must Release the returned lock.
func (s *Store) Lock(name string) (*Lock, error) {
	dir := s.Dir(name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create instance directory: %w", err)
	}
	return AcquireLock(dir, name, s.logger)
}

// atomicWriteFile writes data to a file atomically by writing to a temporary
// file first, then renaming. This ensures the target file is never in a
// partially-written state.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)

	// Create temp file in same directory to ensure atomic rename
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Clean up temp file on any error
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	// Write data
	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	// Sync to disk
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// Set permissions
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	success = true
	return nil
}
