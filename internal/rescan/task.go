package rescan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/Aman-CERP/indexmode/internal/async"
	"github.com/Aman-CERP/indexmode/internal/queue"
)

// Task rescans a set of paths below Root, or the whole tree when Full.
// Pending rescans of the same root merge into one task covering the union.
type Task struct {
	id      string
	root    string
	full    bool
	paths   map[string]struct{}
	catalog *Catalog
	exclude []string

	onComplete []func()
	disposed   sync.Once
}

// Options configures a rescan task.
type Options struct {
	Root    string
	Catalog *Catalog
	// Exclude lists directory or file base names skipped during a full walk.
	Exclude []string
	// OnComplete runs after a successful (not canceled) run.
	OnComplete func()
}

// NewFull creates a task rescanning the whole tree.
func NewFull(opts Options) *Task {
	t := newTask(opts)
	t.full = true
	return t
}

// NewPaths creates a task rescanning the given paths, relative to Root.
func NewPaths(opts Options, paths ...string) *Task {
	t := newTask(opts)
	for _, p := range paths {
		t.paths[filepath.Clean(p)] = struct{}{}
	}
	return t
}

func newTask(opts Options) *Task {
	t := &Task{
		id:      "rescan-" + uuid.NewString()[:8],
		root:    opts.Root,
		paths:   make(map[string]struct{}),
		catalog: opts.Catalog,
		exclude: opts.Exclude,
	}
	if opts.OnComplete != nil {
		t.onComplete = append(t.onComplete, opts.OnComplete)
	}
	return t
}

// ID implements queue.Task.
func (t *Task) ID() string { return t.id }

// Full reports whether the task rescans the whole tree.
func (t *Task) Full() bool { return t.full }

// Paths returns the explicit paths to rescan, sorted.
func (t *Task) Paths() []string {
	paths := make([]string, 0, len(t.paths))
	for p := range t.paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// TryMergeWith implements queue.Task. Rescans of the same root and catalog
// merge; a full rescan absorbs any path rescan.
func (t *Task) TryMergeWith(older queue.Task) queue.Task {
	o, ok := older.(*Task)
	if !ok || o.root != t.root || o.catalog != t.catalog {
		return nil
	}

	merged := newTask(Options{Root: t.root, Catalog: t.catalog, Exclude: t.exclude})
	merged.full = t.full || o.full
	if !merged.full {
		for p := range o.paths {
			merged.paths[p] = struct{}{}
		}
		for p := range t.paths {
			merged.paths[p] = struct{}{}
		}
	}
	merged.onComplete = append(append(merged.onComplete, o.onComplete...), t.onComplete...)
	return merged
}

// Run implements queue.Task.
func (t *Task) Run(_ context.Context, p *async.Indicator) error {
	var err error
	if t.full {
		err = t.runFull(p)
	} else {
		err = t.runPaths(p)
	}
	if err != nil {
		return err
	}
	for _, fn := range t.onComplete {
		fn()
	}
	return nil
}

func (t *Task) runPaths(p *async.Indicator) error {
	paths := t.Paths()
	for i, rel := range paths {
		if err := p.CheckCanceled(); err != nil {
			return err
		}
		p.SetText(rel)
		p.SetFraction(float64(i) / float64(len(paths)))
		t.refresh(rel)
	}
	p.SetFraction(1)
	return nil
}

func (t *Task) runFull(p *async.Indicator) error {
	p.SetText("scanning " + t.root)
	seen := make(map[string]struct{})
	err := filepath.WalkDir(t.root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := p.CheckCanceled(); err != nil {
			return err
		}
		if walkErr != nil {
			slog.Debug("skipping unreadable path", slog.String("path", path), slog.String("error", walkErr.Error()))
			return nil
		}
		if path != t.root && t.excluded(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(t.root, path)
		if err != nil {
			return nil
		}
		seen[rel] = struct{}{}
		t.refresh(rel)
		return nil
	})
	if err != nil {
		return err
	}

	for _, rel := range t.catalog.Paths() {
		if _, ok := seen[rel]; !ok {
			t.catalog.Remove(rel)
		}
	}
	p.SetFraction(1)
	slog.Info("full rescan complete", slog.String("root", t.root), slog.Int("files", len(seen)))
	return nil
}

// refresh brings the catalog entry for rel in line with the file system.
func (t *Task) refresh(rel string) {
	info, err := os.Stat(filepath.Join(t.root, rel))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		// A vanished directory takes its catalogued contents with it.
		t.catalog.RemoveTree(rel)
	case err != nil:
		slog.Warn("failed to stat file", slog.String("path", rel), slog.String("error", err.Error()))
	case info.IsDir():
		// Directory events are followed by events for their contents.
	default:
		t.catalog.Put(Entry{Path: rel, Size: info.Size(), ModTime: info.ModTime()})
	}
}

func (t *Task) excluded(name string) bool {
	for _, pattern := range t.exclude {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// Dispose implements queue.Task.
func (t *Task) Dispose() {
	t.disposed.Do(func() {
		slog.Debug("rescan task disposed", slog.String("task", t.id))
	})
}

// String implements fmt.Stringer.
func (t *Task) String() string {
	if t.full {
		return fmt.Sprintf("%s(full %s)", t.id, t.root)
	}
	return fmt.Sprintf("%s(%d paths)", t.id, len(t.paths))
}
