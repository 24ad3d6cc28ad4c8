package datadir

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// LockFileName is the session lock inside the data directory.
const LockFileName = "session.lock"

// FileLock is a cross-process exclusive lock on <dir>/session.lock.
type FileLock struct {
	path   string
	flock  *flock.Flock
	locked bool
}

// NewFileLock creates an unlocked lock for dir.
func NewFileLock(dir string) *FileLock {
	path := filepath.Join(dir, LockFileName)
	return &FileLock{path: path, flock: flock.New(path)}
}

// TryLock acquires the lock without blocking. A lock held elsewhere is
// reported as a retryable ErrCodeLockHeld error.
func (l *FileLock) TryLock() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return moderr.IOError("create lock directory", err).WithDetail("path", l.path)
	}

	acquired, err := l.flock.TryLock()
	if err != nil {
		return moderr.IOError("acquire session lock", err).WithDetail("path", l.path)
	}
	if !acquired {
		return moderr.New(moderr.ErrCodeLockHeld, "another session holds the data directory", nil).
			WithDetail("path", l.path).
			WithSuggestion("Stop the other indexmode session for this directory")
	}

	l.locked = true
	return nil
}

// Unlock releases the lock. Safe to call when not locked.
func (l *FileLock) Unlock() error {
	if !l.locked {
		return nil
	}
	l.locked = false
	if err := l.flock.Unlock(); err != nil {
		return moderr.IOError("release session lock", err).WithDetail("path", l.path)
	}
	return nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// IsLocked reports whether this lock is held.
func (l *FileLock) IsLocked() bool { return l.locked }
