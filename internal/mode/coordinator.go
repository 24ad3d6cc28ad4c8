package mode

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Aman-CERP/indexmode/internal/async"
	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/executor"
	"github.com/Aman-CERP/indexmode/internal/logging"
	"github.com/Aman-CERP/indexmode/internal/metrics"
	"github.com/Aman-CERP/indexmode/internal/queue"
)

// Dispatcher runs functions on the single goroutine allowed to change the
// mode. *edt.Loop implements it.
type Dispatcher interface {
	InvokeLater(fn func()) error
	IsDispatchThread() bool
}

// TransitionHook runs inside the boundary on every smart/dumb crossing.
// Returning an error rolls the transition back.
type TransitionHook func(entering bool) error

// Trace records why the session last entered dumb mode.
type Trace struct {
	Generation int64     `json:"generation"`
	Reason     string    `json:"reason"`
	Stack      string    `json:"stack,omitempty"`
	At         time.Time `json:"at"`
}

// Options configures a Coordinator.
type Options struct {
	Dispatcher Dispatcher
	Order      queue.Order

	// StartDumb seeds the session as not yet indexed. It stays dumb until
	// InitialTask (if any) and every task queued before it has drained.
	StartDumb   bool
	InitialTask queue.Task

	Hook               TransitionHook
	CancelPollInterval time.Duration
	CancelWaitTimeout  time.Duration
	TraceHistory       int
}

// Status is a point-in-time view of the coordinator.
type Status struct {
	State     State             `json:"state"`
	Holds     int               `json:"holds"`
	Executor  executor.Snapshot `json:"executor"`
	LastTrace *Trace            `json:"last_trace,omitempty"`
}

// Coordinator owns the session's mode and feeds tasks to the background
// executor. Mode changes happen only on the dispatch goroutine.
//
// Every accepted task holds one unit of the dumb counter, taken before the
// task is enqueued and released once the executor reports a drain covering
// its receipt.
type Coordinator struct {
	dispatcher Dispatcher
	executor   *executor.QueueExecutor
	boundary   Boundary
	publisher  *Publisher
	hook       TransitionHook
	traces     *lru.Cache[int64, Trace]
	state      atomic.Pointer[State]

	pollInterval  time.Duration
	cancelTimeout time.Duration

	// holds is only touched on the dispatch goroutine after construction.
	holds   []queue.Receipt
	nholds  atomic.Int32
	lastGen atomic.Int64

	scopeMu     sync.Mutex
	scope       context.Context
	scopeCancel context.CancelFunc

	// deferred holds submissions handed to the dispatcher that have not run
	// yet. Close disposes whatever the dispatcher never got to.
	deferredMu sync.Mutex
	deferred   map[*deferredSubmission]struct{}

	disposed atomic.Bool
}

// NewCoordinator creates a coordinator. Call Start to begin executing seeded work.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Dispatcher == nil {
		return nil, moderr.ValidationError("coordinator requires a dispatcher", nil)
	}
	if opts.CancelPollInterval <= 0 {
		opts.CancelPollInterval = 10 * time.Millisecond
	}
	if opts.TraceHistory <= 0 {
		opts.TraceHistory = 32
	}
	traces, err := lru.New[int64, Trace](opts.TraceHistory)
	if err != nil {
		return nil, moderr.InternalError("failed to create trace history", err)
	}

	c := &Coordinator{
		dispatcher:    opts.Dispatcher,
		publisher:     NewPublisher(),
		hook:          opts.Hook,
		traces:        traces,
		pollInterval:  opts.CancelPollInterval,
		cancelTimeout: opts.CancelWaitTimeout,
		deferred:      make(map[*deferredSubmission]struct{}),
	}
	c.executor = executor.NewQueueExecutor(executor.Options{
		Name:     "dumb-mode",
		Order:    opts.Order,
		Listener: drainListener{c},
	})
	c.scope, c.scopeCancel = context.WithCancel(context.Background())

	initial := Smart
	if opts.StartDumb {
		initial = Seeded(1)
		var receipt queue.Receipt
		if opts.InitialTask != nil {
			r, err := c.executor.AddTask(opts.InitialTask)
			if err != nil {
				return nil, err
			}
			receipt = r
		}
		c.holds = append(c.holds, receipt)
		c.nholds.Store(1)
		c.traces.Add(0, Trace{Reason: "session started before indexing completed", At: time.Now()})
	}
	c.state.Store(&initial)
	metrics.ModeDumb.Set(metrics.BoolToFloat(initial.Dumb))
	metrics.ModeDumbCounter.Set(float64(initial.Counter))
	return c, nil
}

// Start begins draining seeded work.
func (c *Coordinator) Start() {
	if c.State().Dumb {
		c.executor.StartBackgroundProcess()
	}
}

// QueueTask submits task for background execution, entering dumb mode until
// it has run. Called off the dispatch goroutine, the submission is deferred
// to it; if the coordinator is reset or closed before then, the task is
// disposed instead.
func (c *Coordinator) QueueTask(task queue.Task) error {
	if c.disposed.Load() {
		task.Dispose()
		return moderr.DisposedError("mode coordinator")
	}

	scope := c.currentScope()
	reason := "queue task " + task.ID()
	if c.dispatcher.IsDispatchThread() {
		return c.queueOnDispatch(scope, task, reason)
	}

	d := c.deferSubmission(task)
	err := c.dispatcher.InvokeLater(func() {
		if !c.claimDeferred(d) {
			return
		}
		if err := c.queueOnDispatch(scope, task, reason); err != nil && !moderr.IsCanceled(err) {
			slog.Error("deferred task submission failed", moderr.FormatForLog(err)...)
		}
	})
	if err != nil {
		if c.claimDeferred(d) {
			task.Dispose()
		}
		return err
	}
	return nil
}

type deferredSubmission struct {
	task queue.Task
}

func (c *Coordinator) deferSubmission(task queue.Task) *deferredSubmission {
	d := &deferredSubmission{task: task}
	c.deferredMu.Lock()
	c.deferred[d] = struct{}{}
	c.deferredMu.Unlock()
	return d
}

// claimDeferred removes d from the deferred set. Only the caller that gets
// true may submit or dispose the task.
func (c *Coordinator) claimDeferred(d *deferredSubmission) bool {
	c.deferredMu.Lock()
	defer c.deferredMu.Unlock()
	if _, ok := c.deferred[d]; !ok {
		return false
	}
	delete(c.deferred, d)
	return true
}

func (c *Coordinator) disposeDeferred() int {
	c.deferredMu.Lock()
	pending := c.deferred
	c.deferred = make(map[*deferredSubmission]struct{})
	c.deferredMu.Unlock()

	for d := range pending {
		d.task.Dispose()
	}
	return len(pending)
}

func (c *Coordinator) queueOnDispatch(scope context.Context, task queue.Task, reason string) error {
	if c.disposed.Load() {
		task.Dispose()
		return moderr.DisposedError("mode coordinator")
	}
	if err := scope.Err(); err != nil {
		slog.Debug("dropping task queued before reset", slog.String("task", task.ID()))
		task.Dispose()
		return moderr.CanceledError(err)
	}

	if err := c.Increment(reason); err != nil {
		task.Dispose()
		return err
	}
	receipt, err := c.executor.AddTask(task)
	if err != nil {
		if derr := c.Decrement(); derr != nil {
			slog.Error("failed to roll back dumb counter", moderr.FormatForLog(derr)...)
		}
		return err
	}
	c.holds = append(c.holds, receipt)
	c.nholds.Store(int32(len(c.holds)))
	c.executor.StartBackgroundProcess()
	return nil
}

// SubmitTask queues task and returns a handle that reports when it has left
// the system.
func (c *Coordinator) SubmitTask(task queue.Task) (*Submission, error) {
	st := newSubmittedTask(task)
	if err := c.QueueTask(st); err != nil {
		return nil, err
	}
	return &Submission{task: st, c: c}, nil
}

// CancelTask cancels a pending or running task. It returns false when the
// task is not known to the executor (for example, still being submitted).
func (c *Coordinator) CancelTask(task queue.Task) bool {
	ok := c.executor.CancelTask(task)
	if ok {
		// A drain report releases the canceled task's hold.
		c.executor.StartBackgroundProcess()
	}
	return ok
}

// IsDumb reports whether the session is dumb. Off the dispatch goroutine the
// answer may be stale by the time it is used; use RunReadAction to act on a
// stable view.
func (c *Coordinator) IsDumb() bool {
	return c.state.Load().Dumb
}

// State returns the current mode state.
func (c *Coordinator) State() State {
	return *c.state.Load()
}

// RunReadAction runs fn with a state no transition can change until fn returns.
func (c *Coordinator) RunReadAction(fn func(State)) {
	c.boundary.Read(func() { fn(*c.state.Load()) })
}

// Subscribe registers an observer for smart/dumb transitions.
func (c *Coordinator) Subscribe(fn func(Event)) func() {
	return c.publisher.Subscribe(fn)
}

// Updates returns a channel carrying the latest transition event.
func (c *Coordinator) Updates() (<-chan Event, func()) {
	return c.publisher.Updates()
}

// Increment adds one unit of dumb work. A smart session becomes dumb inside
// the boundary and an event is published. Dispatch goroutine only.
func (c *Coordinator) Increment(reason string) error {
	if err := c.checkDispatch("Increment"); err != nil {
		return err
	}
	prev := *c.state.Load()
	next := prev.Increment()
	return c.transition(prev, next, reason)
}

// Decrement removes one unit of dumb work. The last unit makes the session
// smart inside the boundary and an event is published. Dispatch goroutine only.
func (c *Coordinator) Decrement() error {
	if err := c.checkDispatch("Decrement"); err != nil {
		return err
	}
	prev := *c.state.Load()
	next, err := prev.Decrement()
	if err != nil {
		logging.Invariant("dumb counter decremented below zero", slog.String("state", prev.String()))
		return err
	}
	return c.transition(prev, next, "")
}

func (c *Coordinator) transition(prev, next State, reason string) error {
	if !prev.Crosses(next) {
		c.state.Store(&next)
		metrics.ModeDumbCounter.Set(float64(next.Counter))
		return nil
	}

	err := c.boundary.Exclusive(func() (err error) {
		c.state.Store(&next)
		defer func() {
			if r := recover(); r != nil {
				c.state.Store(&prev)
				panic(r)
			}
			if err != nil {
				c.state.Store(&prev)
			}
		}()
		if c.hook != nil {
			if err := c.hook(next.Dumb); err != nil {
				return err
			}
		}
		if next.Dumb {
			c.traces.Add(next.Generation, Trace{
				Generation: next.Generation,
				Reason:     reason,
				Stack:      string(debug.Stack()),
				At:         time.Now(),
			})
			c.lastGen.Store(next.Generation)
		}
		return nil
	})
	if err != nil {
		slog.Error("mode transition rolled back",
			slog.String("from", prev.String()),
			slog.String("to", next.String()),
			slog.String("error", err.Error()))
		return moderr.New(moderr.ErrCodeTransitionFailed,
			fmt.Sprintf("transition %s -> %s failed", prev, next), err)
	}

	direction := "exit_dumb"
	if next.Dumb {
		direction = "enter_dumb"
	}
	metrics.ModeTransitionsTotal.WithLabelValues(direction).Inc()
	metrics.ModeDumb.Set(metrics.BoolToFloat(next.Dumb))
	metrics.ModeDumbCounter.Set(float64(next.Counter))
	slog.Info("mode changed",
		slog.Bool("dumb", next.Dumb),
		slog.Int64("generation", next.Generation),
		slog.String("reason", reason))

	c.publisher.Publish(Event{Dumb: next.Dumb, Counter: next.Counter, Generation: next.Generation})
	return nil
}

// releaseHolds drops every hold covered by drained. Dispatch goroutine only.
func (c *Coordinator) releaseHolds(drained queue.Receipt) {
	kept := c.holds[:0]
	released := 0
	for _, r := range c.holds {
		if r <= drained {
			released++
			continue
		}
		kept = append(kept, r)
	}
	c.holds = kept
	c.nholds.Store(int32(len(c.holds)))

	for i := 0; i < released; i++ {
		if err := c.Decrement(); err != nil {
			slog.Error("failed to release dumb hold", moderr.FormatForLog(err)...)
			return
		}
	}
}

// CompleteTasksSynchronously drains the queue on the calling goroutine. It
// returns false without doing anything when the background worker is
// already running.
func (c *Coordinator) CompleteTasksSynchronously() bool {
	if c.disposed.Load() {
		return false
	}
	return c.executor.RunInline()
}

// CancelAllTasksAndWait cancels pending and running tasks, polls until the
// worker has stopped, then resets the scheduling scope so submissions
// deferred before the call are dropped. A zero CancelWaitTimeout waits until
// ctx is done.
func (c *Coordinator) CancelAllTasksAndWait(ctx context.Context) error {
	removed := c.executor.CancelAllTasks()
	slog.Info("canceling all background tasks", slog.Int("pending", removed))

	var timeout <-chan time.Time
	if c.cancelTimeout > 0 {
		timer := time.NewTimer(c.cancelTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for c.executor.IsRunning() {
		select {
		case <-ctx.Done():
			return moderr.CanceledError(ctx.Err())
		case <-timeout:
			return moderr.New(moderr.ErrCodeTimeout, "background task did not stop in time", nil).
				WithDetail("timeout", c.cancelTimeout.String()).
				WithSuggestion("the running task may not check for cancellation")
		case <-ticker.C:
		}
	}

	c.resetScope()
	c.executor.StartBackgroundProcess()
	return nil
}

// WaitForSmartMode blocks until the session is smart, timeout elapses, or ctx
// is done, and reports whether it is smart. On the dispatch goroutine it
// never blocks.
func (c *Coordinator) WaitForSmartMode(ctx context.Context, timeout time.Duration) bool {
	if !c.IsDumb() {
		return true
	}
	if c.dispatcher.IsDispatchThread() {
		return false
	}

	updates, cancel := c.publisher.Updates()
	defer cancel()
	if !c.IsDumb() {
		return true
	}

	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		select {
		case _, ok := <-updates:
			if !c.IsDumb() {
				return true
			}
			if !ok {
				return false
			}
		case <-deadline:
			return !c.IsDumb()
		case <-ctx.Done():
			return !c.IsDumb()
		}
	}
}

// SuspendAndRun pauses background work for the duration of activity.
func (c *Coordinator) SuspendAndRun(ctx context.Context, reason string, activity func(ctx context.Context) error) error {
	return c.executor.SuspendAndRun(ctx, reason, activity)
}

// SuspendQueue stops picking up new tasks; the running one completes.
func (c *Coordinator) SuspendQueue() {
	c.executor.SuspendQueue()
}

// ResumeQueue resumes picking up tasks.
func (c *Coordinator) ResumeQueue() {
	c.executor.ResumeQueue()
}

// ExecutorRunning is the observable "background worker running" signal.
func (c *Coordinator) ExecutorRunning() *async.Flag {
	return c.executor.Running()
}

// DumbStartTrace returns the trace recorded when generation gen entered dumb mode.
func (c *Coordinator) DumbStartTrace(gen int64) (Trace, bool) {
	return c.traces.Get(gen)
}

// LastDumbStartTrace returns the most recent dumb-start trace.
func (c *Coordinator) LastDumbStartTrace() (Trace, bool) {
	return c.traces.Peek(c.lastGen.Load())
}

// Status returns the coordinator's current state for reporting.
func (c *Coordinator) Status() Status {
	s := Status{
		State:    c.State(),
		Holds:    int(c.nholds.Load()),
		Executor: c.executor.Snapshot(),
	}
	if t, ok := c.LastDumbStartTrace(); ok {
		t.Stack = ""
		s.LastTrace = &t
	}
	return s
}

// Close cancels all work and rejects further submissions.
func (c *Coordinator) Close() error {
	if !c.disposed.CompareAndSwap(false, true) {
		return nil
	}
	c.scopeMu.Lock()
	c.scopeCancel()
	c.scopeMu.Unlock()
	if n := c.disposeDeferred(); n > 0 {
		slog.Debug("deferred submissions dropped on close", slog.Int("count", n))
	}
	err := c.executor.Close()
	c.publisher.Close()
	return err
}

func (c *Coordinator) currentScope() context.Context {
	c.scopeMu.Lock()
	defer c.scopeMu.Unlock()
	return c.scope
}

func (c *Coordinator) resetScope() {
	c.scopeMu.Lock()
	defer c.scopeMu.Unlock()
	c.scopeCancel()
	c.scope, c.scopeCancel = context.WithCancel(context.Background())
}

func (c *Coordinator) checkDispatch(op string) error {
	if c.dispatcher.IsDispatchThread() {
		return nil
	}
	logging.Invariant(op + " called off the dispatch goroutine")
	return moderr.New(moderr.ErrCodeWrongThread, op+" must run on the dispatch goroutine", nil)
}

// drainListener adapts the executor's drain bracket to hold accounting.
type drainListener struct {
	c *Coordinator
}

func (l drainListener) BeforeFirstTask() bool {
	return !l.c.disposed.Load()
}

func (l drainListener) AfterLastTask(drained *queue.Receipt) {
	if drained == nil {
		return
	}
	r := *drained
	if l.c.dispatcher.IsDispatchThread() {
		l.c.releaseHolds(r)
		return
	}
	if err := l.c.dispatcher.InvokeLater(func() { l.c.releaseHolds(r) }); err != nil {
		slog.Debug("drain report dropped", slog.String("error", err.Error()))
	}
}
