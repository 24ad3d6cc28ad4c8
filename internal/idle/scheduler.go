// Package idle runs callbacks once the session is idle: smart, and with no
// file scan in progress.
package idle

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/metrics"
	"github.com/Aman-CERP/indexmode/internal/mode"
)

// ModeSource reports the smart/dumb mode. *mode.Coordinator implements it.
type ModeSource interface {
	IsDumb() bool
	Subscribe(fn func(mode.Event)) func()
}

// ScanningSource reports whether a scan is in progress. *async.Flag implements it.
type ScanningSource interface {
	Get() bool
	Subscribe(fn func(bool)) func()
}

// Callback is deferred work. It runs on the dispatch goroutine with the
// context it was registered with.
type Callback func(ctx context.Context) error

// Registration is a queued callback.
type Registration struct {
	id    string
	seq   uint64
	owner string
	ctx   context.Context
	fn    Callback
	s     *Scheduler
}

// ID returns the registration's unique id.
func (r *Registration) ID() string { return r.id }

// Owner returns the owner the callback was registered for.
func (r *Registration) Owner() string { return r.owner }

// Remove drops the callback without running it. It returns false if the
// callback already ran or was removed.
func (r *Registration) Remove() bool {
	return r.s.remove(r)
}

// Scheduler queues callbacks until the session is idle and drains them in
// FIFO order on the dispatch goroutine.
type Scheduler struct {
	dispatcher mode.Dispatcher
	mode       ModeSource
	scanning   ScanningSource

	mu      sync.Mutex
	pending []*Registration
	nextSeq uint64
	closed  bool
	unsubs  []func()

	draining  atomic.Bool
	scheduled atomic.Bool
}

// NewScheduler creates a scheduler and subscribes it to both signals.
// scanning may be nil when no scan signal exists.
func NewScheduler(dispatcher mode.Dispatcher, modeSrc ModeSource, scanning ScanningSource) *Scheduler {
	s := &Scheduler{
		dispatcher: dispatcher,
		mode:       modeSrc,
		scanning:   scanning,
	}
	s.unsubs = append(s.unsubs, modeSrc.Subscribe(func(mode.Event) { s.OnSignalChanged() }))
	if scanning != nil {
		s.unsubs = append(s.unsubs, scanning.Subscribe(func(bool) { s.OnSignalChanged() }))
	}
	return s
}

// IsIdle reports whether the session is smart and not scanning.
func (s *Scheduler) IsIdle() bool {
	if s.mode.IsDumb() {
		return false
	}
	return s.scanning == nil || !s.scanning.Get()
}

// RunWhenIdle runs fn once the session is idle.
func (s *Scheduler) RunWhenIdle(ctx context.Context, fn Callback) *Registration {
	return s.RunWhenIdleFor(ctx, "", fn)
}

// RunWhenIdleFor is RunWhenIdle with an owner, so every callback of the owner
// can be dropped together with RemoveOwner. Called on the dispatch goroutine
// while idle and with nothing queued, fn runs immediately.
func (s *Scheduler) RunWhenIdleFor(ctx context.Context, owner string, fn Callback) *Registration {
	reg := &Registration{id: uuid.NewString(), owner: owner, ctx: ctx, fn: fn, s: s}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		slog.Debug("idle callback dropped after close", slog.String("owner", owner))
		return reg
	}
	fast := len(s.pending) == 0 && !s.draining.Load() && s.dispatcher.IsDispatchThread() && s.IsIdle()
	if !fast {
		s.nextSeq++
		reg.seq = s.nextSeq
		s.pending = append(s.pending, reg)
		metrics.IdleCallbacksPending.Set(float64(len(s.pending)))
	}
	s.mu.Unlock()

	if fast {
		// Registrations made by fn queue for a later drain.
		s.draining.Store(true)
		defer s.draining.Store(false)
		_ = s.invoke(reg)
		return reg
	}
	s.OnSignalChanged()
	return reg
}

// OnSignalChanged schedules a drain on the dispatch goroutine if the session
// is idle. It never runs callbacks inline.
func (s *Scheduler) OnSignalChanged() {
	if !s.IsIdle() || s.Pending() == 0 {
		return
	}
	if !s.scheduled.CompareAndSwap(false, true) {
		return
	}
	if err := s.dispatcher.InvokeLater(s.drain); err != nil {
		s.scheduled.Store(false)
		slog.Debug("idle drain not scheduled", slog.String("error", err.Error()))
	}
}

// drain runs the callbacks queued before it started, re-checking idleness
// before each one. Callbacks queued while draining wait for the next drain.
func (s *Scheduler) drain() {
	s.scheduled.Store(false)
	s.draining.Store(true)
	defer s.draining.Store(false)

	s.mu.Lock()
	limit := s.nextSeq
	s.mu.Unlock()

	for s.IsIdle() {
		reg := s.pop(limit)
		if reg == nil {
			break
		}
		if err := s.invoke(reg); moderr.IsCanceled(err) {
			slog.Info("idle drain stopped by cancellation", slog.Int("remaining", s.Pending()))
			return
		}
	}

	// Work queued during the drain gets its own pass.
	s.OnSignalChanged()
}

func (s *Scheduler) pop(limit uint64) *Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 || s.pending[0].seq > limit {
		return nil
	}
	reg := s.pending[0]
	s.pending[0] = nil
	s.pending = s.pending[1:]
	metrics.IdleCallbacksPending.Set(float64(len(s.pending)))
	return reg
}

func (s *Scheduler) invoke(reg *Registration) (err error) {
	if reg.ctx != nil && reg.ctx.Err() != nil {
		slog.Debug("idle callback dropped, context done",
			slog.String("id", reg.id), slog.String("owner", reg.owner))
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("idle callback panicked",
				slog.String("id", reg.id),
				slog.String("owner", reg.owner),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			metrics.IdleCallbacksExecutedTotal.WithLabelValues(metrics.ResultPanic).Inc()
			err = nil
		}
	}()

	ctx := reg.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	err = reg.fn(ctx)
	switch {
	case err == nil:
		metrics.IdleCallbacksExecutedTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	case moderr.IsCanceled(err):
		metrics.IdleCallbacksExecutedTotal.WithLabelValues(metrics.ResultCanceled).Inc()
	default:
		wrapped := moderr.New(moderr.ErrCodeCallbackFailed,
			fmt.Sprintf("idle callback %s failed", reg.id), err).WithDetail("owner", reg.owner)
		slog.Error("idle callback failed", moderr.FormatForLog(wrapped)...)
		metrics.IdleCallbacksExecutedTotal.WithLabelValues(metrics.ResultError).Inc()
		err = nil
	}
	return err
}

func (s *Scheduler) remove(reg *Registration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, r := range s.pending {
		if r == reg {
			s.pending = append(s.pending[:i], s.pending[i+1:]...)
			metrics.IdleCallbacksPending.Set(float64(len(s.pending)))
			return true
		}
	}
	return false
}

// RemoveOwner drops every pending callback registered for owner and returns
// how many were removed.
func (s *Scheduler) RemoveOwner(owner string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.pending[:0]
	removed := 0
	for _, r := range s.pending {
		if r.owner == owner {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	for i := len(kept); i < len(s.pending); i++ {
		s.pending[i] = nil
	}
	s.pending = kept
	metrics.IdleCallbacksPending.Set(float64(len(s.pending)))
	return removed
}

// Pending returns the number of queued callbacks.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Close unsubscribes from both signals and drops pending callbacks.
func (s *Scheduler) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	dropped := len(s.pending)
	s.pending = nil
	unsubs := s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	metrics.IdleCallbacksPending.Set(0)
	if dropped > 0 {
		slog.Debug("idle callbacks dropped on close", slog.Int("count", dropped))
	}
	return nil
}
