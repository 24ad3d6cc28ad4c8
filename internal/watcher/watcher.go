package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// Watcher watches a directory tree with fsnotify and emits debounced batches.
type Watcher struct {
	root      string
	opts      Options
	fsw       *fsnotify.Watcher
	debouncer *Debouncer
	errors    chan error

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a watcher for root. Directories are registered when Run starts.
func New(root string, opts Options) (*Watcher, error) {
	opts = opts.WithDefaults()

	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, moderr.IOError("resolve watch root", err).WithDetail("path", root)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, moderr.IOError("stat watch root", err).WithDetail("path", abs)
	}
	if !info.IsDir() {
		return nil, moderr.ValidationError("watch root is not a directory", nil).WithDetail("path", abs)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, moderr.IOError("create fsnotify watcher", err)
	}

	return &Watcher{
		root:      abs,
		opts:      opts,
		fsw:       fsw,
		debouncer: NewDebouncer(opts.Debounce, opts.Buffer, opts.Signal),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// Root returns the absolute watched directory.
func (w *Watcher) Root() string { return w.root }

// Batches returns debounced change batches. Each received batch must be
// acknowledged with Done.
func (w *Watcher) Batches() <-chan []FileEvent { return w.debouncer.Output() }

// Done acknowledges one batch from Batches.
func (w *Watcher) Done() { w.debouncer.Done() }

// Errors returns non-fatal watcher errors. Errors are dropped when nobody reads.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Run registers the tree and processes notifications until ctx is done or
// Stop is called.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.Stop()

	select {
	case <-w.stopCh:
		return nil
	default:
	}
	if err := w.addRecursive(w.root); err != nil {
		return moderr.IOError("add directories to watcher", err).WithDetail("path", w.root)
	}
	slog.Info("watching for changes", slog.String("root", w.root), slog.Int("dirs", len(w.fsw.WatchList())))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			w.handle(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	rel, err := filepath.Rel(w.root, event.Name)
	if err != nil || rel == "." || excluded(w.opts.Exclude, rel) {
		return
	}

	isDir := false
	if info, err := os.Stat(event.Name); err == nil {
		isDir = info.IsDir()
	}

	var op Operation
	switch {
	case event.Has(fsnotify.Create):
		op = OpCreate
		if isDir {
			if err := w.addRecursive(event.Name); err != nil {
				w.emitError(err)
			}
		}
	case event.Has(fsnotify.Write):
		op = OpModify
	case event.Has(fsnotify.Remove):
		op = OpDelete
	case event.Has(fsnotify.Rename):
		op = OpRename
	default:
		// chmod only
		return
	}

	w.debouncer.Add(FileEvent{Path: rel, Operation: op, IsDir: isDir, Timestamp: time.Now()})
}

// addRecursive registers dir and every non-excluded directory below it.
func (w *Watcher) addRecursive(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("skipping unreadable directory", slog.String("path", path), slog.String("error", err.Error()))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		rel, _ := filepath.Rel(w.root, path)
		if excluded(w.opts.Exclude, rel) {
			return filepath.SkipDir
		}
		return w.fsw.Add(path)
	})
}

func (w *Watcher) emitError(err error) {
	slog.Warn("watcher error", slog.String("error", err.Error()))
	select {
	case w.errors <- err:
	default:
	}
}

// Stop stops watching and closes Batches. Safe to call multiple times.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		if err := w.fsw.Close(); err != nil {
			slog.Debug("fsnotify close failed", slog.String("error", err.Error()))
		}
		w.debouncer.Stop()
	})
}
