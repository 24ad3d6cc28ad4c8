package cmd

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/indexmode/internal/async"
	"github.com/Aman-CERP/indexmode/internal/config"
	"github.com/Aman-CERP/indexmode/internal/datadir"
	"github.com/Aman-CERP/indexmode/internal/edt"
	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/idle"
	"github.com/Aman-CERP/indexmode/internal/metrics"
	"github.com/Aman-CERP/indexmode/internal/mode"
	"github.com/Aman-CERP/indexmode/internal/output"
	"github.com/Aman-CERP/indexmode/internal/queue"
	"github.com/Aman-CERP/indexmode/internal/rescan"
	"github.com/Aman-CERP/indexmode/internal/watcher"
)

// sessionStatus is served on /status and printed by the status command.
type sessionStatus struct {
	Root         string      `json:"root"`
	Mode         mode.Status `json:"mode"`
	Files        int         `json:"files"`
	Scanning     bool        `json:"scanning"`
	IdlePending  int         `json:"idle_pending"`
	IdleRuns     int         `json:"idle_runs"`
	IndexPending bool        `json:"index_incomplete"`
}

// session wires one project's coordinator, idle scheduler, watcher and
// metrics server around a single dispatch loop.
type session struct {
	root    string
	cfg     *config.Config
	out     *output.Writer
	dir     *datadir.Dir
	catalog *rescan.Catalog

	loop     *edt.Loop
	coord    *mode.Coordinator
	scanning *async.Flag
	idle     *idle.Scheduler

	mu       sync.Mutex
	idleRuns int
}

func newSession(ctx context.Context, root string, cfg *config.Config, out *output.Writer) (*session, error) {
	dir, err := datadir.Open(ctx, cfg.ResolveDataDir(root), moderr.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}

	s := &session{
		root:     root,
		cfg:      cfg,
		out:      out,
		dir:      dir,
		catalog:  rescan.NewCatalog(),
		loop:     edt.New(),
		scanning: async.NewFlag(false),
	}

	startDumb := cfg.Scheduler.StartDumb || dir.Incomplete()
	var initial queue.Task
	if startDumb {
		if err := dir.MarkIncomplete(); err != nil {
			_ = dir.Close()
			return nil, err
		}
		initial = rescan.NewFull(s.rescanOptions(s.markComplete))
	}

	order, err := queue.ParseOrder(cfg.Scheduler.QueueOrder)
	if err != nil {
		_ = dir.Close()
		return nil, err
	}

	s.coord, err = mode.NewCoordinator(mode.Options{
		Dispatcher:         s.loop,
		Order:              order,
		StartDumb:          startDumb,
		InitialTask:        initial,
		CancelPollInterval: cfg.CancelPollInterval(),
		CancelWaitTimeout:  cfg.CancelWaitTimeout(),
		TraceHistory:       cfg.Scheduler.TraceHistory,
	})
	if err != nil {
		_ = dir.Close()
		return nil, err
	}
	s.idle = idle.NewScheduler(s.loop, s.coord, s.scanning)
	return s, nil
}

func (s *session) rescanOptions(onComplete func()) rescan.Options {
	return rescan.Options{
		Root:       s.root,
		Catalog:    s.catalog,
		Exclude:    s.cfg.Watch.Exclude,
		OnComplete: onComplete,
	}
}

func (s *session) markComplete() {
	if err := s.dir.MarkComplete(); err != nil {
		slog.Warn("failed to clear incomplete-index marker", moderr.FormatForLog(err)...)
	}
}

// announceReady reports the catalog size every time the session goes idle.
func (s *session) announceReady(ctx context.Context) error {
	s.mu.Lock()
	s.idleRuns++
	s.mu.Unlock()
	s.out.Successf("index ready: %d files", s.catalog.Len())
	return nil
}

// onModeChange prints transitions and re-arms the ready announcement for
// the next idle period.
func (s *session) onModeChange(ctx context.Context) func(mode.Event) {
	return func(ev mode.Event) {
		s.out.Mode(ev.Dumb, ev.Counter)
		if ev.Entered() {
			s.idle.RemoveOwner("ready")
			s.idle.RunWhenIdleFor(ctx, "ready", s.announceReady)
		}
	}
}

func (s *session) status() any {
	s.mu.Lock()
	runs := s.idleRuns
	s.mu.Unlock()
	return sessionStatus{
		Root:         s.root,
		Mode:         s.coord.Status(),
		Files:        s.catalog.Len(),
		Scanning:     s.scanning.Get(),
		IdlePending:  s.idle.Pending(),
		IdleRuns:     runs,
		IndexPending: s.dir.Incomplete(),
	}
}

// run blocks until ctx is done or a component fails, then shuts down.
func (s *session) run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return s.loop.Run(gctx) })

	unsubscribe := s.coord.Subscribe(s.onModeChange(gctx))
	s.out.Mode(s.coord.IsDumb(), s.coord.State().Counter)
	s.idle.RunWhenIdleFor(gctx, "ready", s.announceReady)
	s.coord.Start()

	if s.cfg.Watch.Enabled {
		w, err := watcher.New(s.root, watcher.Options{
			Debounce: s.cfg.WatchDebounce(),
			Buffer:   s.cfg.Watch.Buffer,
			Exclude:  s.cfg.Watch.Exclude,
			Signal:   s.scanning,
		})
		if err != nil {
			unsubscribe()
			s.shutdown()
			_ = g.Wait()
			return err
		}
		r := watcher.NewRefresher(w, s.coord, func(paths []string) queue.Task {
			return rescan.NewPaths(s.rescanOptions(nil), paths...)
		}, s.cfg.Watch.Exclude)
		g.Go(func() error { return w.Run(gctx) })
		g.Go(func() error { return r.Run(gctx) })
	}

	if s.cfg.Metrics.Enabled {
		srv := metrics.NewServer(s.cfg.Metrics.Addr, s.status)
		g.Go(func() error { return srv.Run(gctx) })
		slog.Info("metrics server enabled", slog.String("addr", s.cfg.Metrics.Addr))
	}

	g.Go(func() error {
		<-gctx.Done()
		unsubscribe()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

func (s *session) shutdown() {
	_ = s.idle.Close()
	if err := s.coord.Close(); err != nil {
		slog.Warn("coordinator close failed", moderr.FormatForLog(err)...)
	}
	_ = s.loop.Close()
	if err := s.dir.Close(); err != nil {
		slog.Warn("data directory close failed", moderr.FormatForLog(err)...)
	}
}
