// Package datadir manages the per-project data directory: a session lock
// that keeps one session per directory, and the marker recording that the
// initial index pass has not completed yet.
package datadir

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// MarkerFileName marks an index pass that has started but not completed.
const MarkerFileName = "index.incomplete"

// Dir is an open, locked data directory.
type Dir struct {
	path string
	lock *FileLock
}

// Open creates path if needed and takes the session lock, retrying while
// another session holds it.
func Open(ctx context.Context, path string, retry moderr.RetryConfig) (*Dir, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, moderr.IOError("create data directory", err).WithDetail("path", path)
	}

	lock := NewFileLock(path)
	if err := moderr.Retry(ctx, retry, lock.TryLock); err != nil {
		return nil, err
	}

	slog.Debug("data directory opened", slog.String("path", path))
	return &Dir{path: path, lock: lock}, nil
}

// Path returns the directory path.
func (d *Dir) Path() string { return d.path }

func (d *Dir) markerPath() string { return filepath.Join(d.path, MarkerFileName) }

// Incomplete reports whether a previous index pass did not finish.
func (d *Dir) Incomplete() bool {
	_, err := os.Stat(d.markerPath())
	return err == nil
}

// MarkIncomplete records that an index pass has started.
func (d *Dir) MarkIncomplete() error {
	stamp := []byte(time.Now().UTC().Format(time.RFC3339) + "\n")
	if err := os.WriteFile(d.markerPath(), stamp, 0o644); err != nil {
		return moderr.IOError("write incomplete-index marker", err).WithDetail("path", d.markerPath())
	}
	return nil
}

// MarkComplete removes the marker. Removing a missing marker is not an error.
func (d *Dir) MarkComplete() error {
	err := os.Remove(d.markerPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return moderr.IOError("remove incomplete-index marker", err).WithDetail("path", d.markerPath())
	}
	return nil
}

// Close releases the session lock.
func (d *Dir) Close() error {
	return d.lock.Unlock()
}
