package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/queue"
)

// Target receives refresh work. *mode.Coordinator implements it.
type Target interface {
	SuspendAndRun(ctx context.Context, reason string, activity func(ctx context.Context) error) error
	QueueTask(task queue.Task) error
}

// Source yields batches. *Watcher implements it.
type Source interface {
	Root() string
	Batches() <-chan []FileEvent
	Done()
}

// TaskFactory builds the task that rescans paths relative to the root.
type TaskFactory func(paths []string) queue.Task

// RefreshReason labels the suspension held while a batch is refreshed.
const RefreshReason = "refresh"

// Refresher runs each batch as a heavy activity: background tasks are
// suspended while the batch is expanded into concrete paths, then a rescan
// task for those paths is queued.
type Refresher struct {
	source  Source
	target  Target
	factory TaskFactory
	exclude []string
}

// NewRefresher creates a refresher. exclude is applied while expanding
// created directories.
func NewRefresher(source Source, target Target, factory TaskFactory, exclude []string) *Refresher {
	return &Refresher{source: source, target: target, factory: factory, exclude: exclude}
}

// Run handles batches until the source closes or ctx is done.
func (r *Refresher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-r.source.Batches():
			if !ok {
				return nil
			}
			err := r.Refresh(ctx, batch)
			r.source.Done()
			if err != nil && !moderr.IsCanceled(err) && !moderr.IsDisposed(err) {
				slog.Error("refresh failed", moderr.FormatForLog(err)...)
			}
		}
	}
}

// Refresh processes one batch.
func (r *Refresher) Refresh(ctx context.Context, batch []FileEvent) error {
	var paths []string
	err := r.target.SuspendAndRun(ctx, RefreshReason, func(ctx context.Context) error {
		var err error
		paths, err = r.expand(ctx, batch)
		return err
	})
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return nil
	}

	slog.Debug("queueing rescan", slog.Int("events", len(batch)), slog.Int("paths", len(paths)))
	return r.target.QueueTask(r.factory(paths))
}

// expand resolves a batch into file paths. A created directory may already
// hold files that were written before it was watched, so it is walked.
func (r *Refresher) expand(ctx context.Context, batch []FileEvent) ([]string, error) {
	seen := make(map[string]struct{}, len(batch))
	for _, ev := range batch {
		if err := ctx.Err(); err != nil {
			return nil, moderr.CanceledError(err)
		}
		if !ev.IsDir {
			seen[ev.Path] = struct{}{}
			continue
		}
		if ev.Operation != OpCreate {
			continue
		}
		dir := filepath.Join(r.source.Root(), ev.Path)
		_ = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return nil
			}
			rel, relErr := filepath.Rel(r.source.Root(), path)
			if relErr != nil {
				return nil
			}
			if excluded(r.exclude, rel) {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() {
				seen[rel] = struct{}{}
			}
			return nil
		})
	}

	paths := make([]string, 0, len(seen))
	for p := range seen {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}
