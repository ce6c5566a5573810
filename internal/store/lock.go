package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/grokbox/grokbox/internal/errors"
	"github.com/grokbox/grokbox/internal/logging"
)

// LockFileName is the name of the lock file within an instance directory.
const LockFileName = "instance.lock"

// Lock represents an acquired per-instance lock. Mutating commands (start,
// destroy) hold it for their whole run so two invocations on the same name
// cannot interleave.
type Lock struct {
	Instance   string    `json:"instance"`
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	AcquiredAt time.Time `json:"acquired_at"`

	// Internal fields (not serialized)
	lockFile string
	logger   *logging.Logger
}

// AcquireLock attempts to acquire an exclusive lock on the instance
// directory. Returns ErrRecordLocked if another live process holds it; a
// lock whose owning process is gone is taken over. The logger parameter is
// optional and can be nil.
func AcquireLock(instanceDir, name string, logger *logging.Logger) (*Lock, error) {
	lockPath := filepath.Join(instanceDir, LockFileName)

	// Check for existing lock
	if existing, err := ReadLock(lockPath); err == nil {
		// Lock file exists - check if the process is still alive
		if isProcessAlive(existing.PID) {
			if logger != nil {
				logger.Error("failed to acquire lock",
					"instance", name,
					"holder_pid", existing.PID,
					"holder_host", existing.Hostname,
				)
			}
			return nil, fmt.Errorf("%w: held by PID %d on %s", errors.ErrRecordLocked, existing.PID, existing.Hostname)
		}
		// Stale lock - take it over
		oldPID := existing.PID
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to remove stale lock: %w", err)
		}
		if logger != nil {
			logger.Warn("stale lock cleaned",
				"instance", name,
				"old_pid", oldPID,
			)
		}
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	lock := &Lock{
		Instance:   name,
		PID:        os.Getpid(),
		Hostname:   hostname,
		AcquiredAt: time.Now(),
		lockFile:   lockPath,
		logger:     logger,
	}

	data, err := json.MarshalIndent(lock, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal lock: %w", err)
	}

	// Use O_EXCL to fail if file already exists (race condition protection)
	f, err := os.OpenFile(lockPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			// Another process beat us to it - re-read and report
			if existing, readErr := ReadLock(lockPath); readErr == nil {
				return nil, fmt.Errorf("%w: held by PID %d on %s", errors.ErrRecordLocked, existing.PID, existing.Hostname)
			}
			return nil, errors.ErrRecordLocked
		}
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(data); err != nil {
		os.Remove(lockPath)
		return nil, fmt.Errorf("failed to write lock file: %w", err)
	}

	if logger != nil {
		logger.Debug("instance lock acquired",
			"instance", name,
			"pid", lock.PID,
		)
	}

	return lock, nil
}

// Release releases the lock by removing the lock file. Safe to call
// multiple times; never removes a lock owned by another process.
func (l *Lock) Release() error {
	if l == nil || l.lockFile == "" {
		return nil
	}

	existing, err := ReadLock(l.lockFile)
	if err != nil {
		// Lock file doesn't exist or can't be read - nothing to do
		return nil
	}

	if existing.PID != l.PID {
		// Not our lock - don't remove it
		return nil
	}

	if err := os.Remove(l.lockFile); err != nil {
		return err
	}

	if l.logger != nil {
		l.logger.Debug("instance lock released",
			"instance", l.Instance,
		)
	}

	return nil
}

// ReadLock reads a lock file and returns the Lock info.
func ReadLock(lockPath string) (*Lock, error) {
	data, err := os.ReadFile(lockPath)
	if err != nil {
		return nil, err
	}

	var lock Lock
	if err := json.Unmarshal(data, &lock); err != nil {
		return nil, fmt.Errorf("failed to parse lock file: %w", err)
	}
	lock.lockFile = lockPath

	return &lock, nil
}

// IsLocked checks if an instance directory is currently locked by a live
// process. Returns the lock info if locked.
func IsLocked(instanceDir string) (*Lock, bool) {
	lock, err := ReadLock(filepath.Join(instanceDir, LockFileName))
	if err != nil {
		return nil, false
	}

	if !isProcessAlive(lock.PID) {
		// Stale lock
		return lock, false
	}

	return lock, true
}

// isProcessAlive checks if a process with the given PID is still running.
func isProcessAlive(pid int) bool {
	// On Unix, sending signal 0 checks if process exists without affecting it
	process, err := os.FindProcess(pid)
	if err != nil {
		return false
	}

	err = process.Signal(syscall.Signal(0))
	return err == nil
}
