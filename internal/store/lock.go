package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	terrors "github.com/wwaihoe/TailorED/internal/errors"
)

// LockFileName is created inside the data directory.
const LockFileName = ".tailored.lock"

// DataDirLock gives one process exclusive ownership of a data directory.
// The in-memory lexical index and registry are only correct if nobody
// else writes to the passage store behind our back.
type DataDirLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewDataDirLock prepares a lock on dir; nothing is acquired yet.
func NewDataDirLock(dir string) *DataDirLock {
	p := filepath.Join(dir, LockFileName)
	return &DataDirLock{path: p, flock: flock.New(p)}
}

// TryLock acquires the lock without blocking. A held lock is reported
// as ERR_205_STORE_LOCKED.
func (l *DataDirLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	ok, err := l.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !ok {
		return terrors.New(terrors.ErrCodeStoreLocked, "data directory is in use by another process", nil).
			WithDetail("lock", l.path).
			WithSuggestion("stop the running tailored daemon or use `tailored` commands through it")
	}
	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not held.
func (l *DataDirLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// Path returns the lock file path.
func (l *DataDirLock) Path() string {
	return l.path
}
