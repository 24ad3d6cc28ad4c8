package executor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Aman-CERP/indexmode/internal/async"
	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/logging"
	"github.com/Aman-CERP/indexmode/internal/metrics"
	"github.com/Aman-CERP/indexmode/internal/queue"
	"github.com/Aman-CERP/indexmode/internal/suspend"
)

// Listener brackets each drain cycle. Calls always alternate; returning false
// from BeforeFirstTask suppresses the matching AfterLastTask.
type Listener interface {
	BeforeFirstTask() bool
	// AfterLastTask reports the receipt the queue was drained to, or nil when
	// the cycle ended early (suspended or disposed) with work still pending.
	AfterLastTask(drained *queue.Receipt)
}

// Options configures a QueueExecutor.
type Options struct {
	Name     string
	Order    queue.Order
	Listener Listener
}

// Snapshot is a point-in-time view of the executor for status reporting.
type Snapshot struct {
	Running     bool            `json:"running"`
	State       string          `json:"state"`
	Suspended   bool            `json:"suspended"`
	QueueLength int             `json:"queue_length"`
	Pending     []string        `json:"pending,omitempty"`
	CurrentTask string          `json:"current_task,omitempty"`
	Progress    *async.Snapshot `json:"progress,omitempty"`
	Suspensions []string        `json:"suspensions,omitempty"`
	Generation  int64           `json:"generation"`
}

// QueueExecutor drains a MergingQueue one task at a time on a single
// goroutine, under suspension stack control.
type QueueExecutor struct {
	name     string
	queue    *queue.MergingQueue
	single   *SingleTaskExecutor
	stack    *suspend.Stack
	listener Listener
	running  *async.Flag
	ctx      context.Context
	cancel   context.CancelFunc

	suspended atomic.Bool
	disposed  atomic.Bool
	inCycle   atomic.Bool

	mu      sync.Mutex
	current *queue.QueuedTask

	// cancelEpoch counts CancelAllTasks calls. A task extracted before a
	// call but started after it is canceled on start.
	cancelEpoch uint64
}

// NewQueueExecutor creates an idle executor.
func NewQueueExecutor(opts Options) *QueueExecutor {
	if opts.Name == "" {
		opts.Name = "background"
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &QueueExecutor{
		name:     opts.Name,
		queue:    queue.NewMergingQueue(ctx, opts.Order),
		stack:    suspend.NewStack(),
		listener: opts.Listener,
		running:  async.NewFlag(false),
		ctx:      ctx,
		cancel:   cancel,
	}
	e.single = NewSingleTaskExecutor(e.drain)
	e.running.Subscribe(func(v bool) { metrics.ExecutorRunning.Set(metrics.BoolToFloat(v)) })
	return e
}

// AddTask enqueues task without starting the executor.
func (e *QueueExecutor) AddTask(task queue.Task) (queue.Receipt, error) {
	if e.disposed.Load() {
		task.Dispose()
		return 0, moderr.DisposedError(e.name + " executor")
	}
	r, err := e.queue.AddTask(task)
	metrics.QueueLength.Set(float64(e.queue.Len()))
	return r, err
}

// LatestReceipt returns the receipt of the most recently added task.
func (e *QueueExecutor) LatestReceipt() queue.Receipt {
	return e.queue.LatestReceipt()
}

// StartBackgroundProcess starts draining on a new goroutine unless a drain is
// already running or requested. It reports whether this call started it.
func (e *QueueExecutor) StartBackgroundProcess() bool {
	if e.disposed.Load() {
		return false
	}
	return e.single.TryStart(func(run func()) { go run() })
}

// RunInline drains the queue on the calling goroutine. It returns false
// without doing anything when a background drain is already running.
func (e *QueueExecutor) RunInline() bool {
	if e.disposed.Load() {
		return false
	}
	return e.single.TryStart(func(run func()) { run() })
}

func (e *QueueExecutor) drain() {
	notify := e.beforeFirstTask()
	e.running.Set(true)

	var drained *queue.Receipt
	for !e.disposed.Load() && !e.suspended.Load() {
		e.mu.Lock()
		epoch := e.cancelEpoch
		e.mu.Unlock()

		r := e.queue.LatestReceipt()
		qt := e.queue.ExtractNextTask()
		metrics.QueueLength.Set(float64(e.queue.Len()))
		if qt == nil {
			drained = &r
			break
		}
		e.runTask(qt, epoch)
	}

	e.running.Set(false)
	if notify {
		e.afterLastTask(drained)
	}
}

func (e *QueueExecutor) runTask(qt *queue.QueuedTask, epoch uint64) {
	e.mu.Lock()
	e.current = qt
	if e.cancelEpoch != epoch {
		qt.Indicator.Cancel()
	}
	e.mu.Unlock()

	detach, err := e.stack.Attach(qt.Indicator)
	if err != nil {
		detach = func() {}
	}

	start := time.Now()
	result := e.execute(qt)
	elapsed := time.Since(start)

	detach()
	e.mu.Lock()
	e.current = nil
	e.mu.Unlock()
	qt.Indicator.Release()
	qt.Task.Dispose()

	metrics.TasksExecutedTotal.WithLabelValues(result).Inc()
	metrics.TaskDuration.Observe(elapsed.Seconds())
}

// execute runs one task and isolates its failure from the drain loop.
func (e *QueueExecutor) execute(qt *queue.QueuedTask) (result string) {
	taskID := qt.Task.ID()
	defer func() {
		if r := recover(); r != nil {
			slog.Error("task panicked",
				slog.String("executor", e.name),
				slog.String("task", taskID),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			result = metrics.ResultPanic
		}
	}()

	slog.Debug("task started", slog.String("executor", e.name), slog.String("task", taskID),
		slog.Int64("receipt", int64(qt.Receipt)))

	err := qt.Task.Run(qt.Indicator.Context(), qt.Indicator)
	switch {
	case err == nil:
		slog.Debug("task finished", slog.String("executor", e.name), slog.String("task", taskID))
		return metrics.ResultSuccess
	case moderr.IsCanceled(err):
		slog.Info("task canceled", slog.String("executor", e.name), slog.String("task", taskID))
		return metrics.ResultCanceled
	default:
		wrapped := moderr.New(moderr.ErrCodeTaskFailed, fmt.Sprintf("task %s failed", taskID), err)
		slog.Error("task failed", moderr.FormatForLog(wrapped)...)
		return metrics.ResultError
	}
}

func (e *QueueExecutor) beforeFirstTask() (notify bool) {
	if e.listener == nil {
		return false
	}
	if e.inCycle.Swap(true) {
		logging.Invariant("drain listener fired twice in a row", slog.String("executor", e.name),
			slog.String("call", "BeforeFirstTask"))
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("drain listener panicked", slog.String("executor", e.name), slog.Any("panic", r))
			notify = false
		}
		if !notify {
			e.inCycle.Store(false)
		}
	}()
	return e.listener.BeforeFirstTask()
}

func (e *QueueExecutor) afterLastTask(drained *queue.Receipt) {
	if !e.inCycle.Swap(false) {
		logging.Invariant("drain listener fired twice in a row", slog.String("executor", e.name),
			slog.String("call", "AfterLastTask"))
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("drain listener panicked", slog.String("executor", e.name), slog.Any("panic", r))
		}
	}()
	e.listener.AfterLastTask(drained)
}

// SuspendQueue stops the drain loop after the in-flight task finishes.
func (e *QueueExecutor) SuspendQueue() {
	e.suspended.Store(true)
}

// ResumeQueue lifts SuspendQueue and restarts draining.
func (e *QueueExecutor) ResumeQueue() {
	if e.suspended.CompareAndSwap(true, false) {
		e.StartBackgroundProcess()
	}
}

// IsQueueSuspended reports whether SuspendQueue is in effect.
func (e *QueueExecutor) IsQueueSuspended() bool {
	return e.suspended.Load()
}

// SuspendAndRun pauses the running task (and any task started meanwhile)
// for the duration of activity.
func (e *QueueExecutor) SuspendAndRun(ctx context.Context, reason string, activity func(ctx context.Context) error) error {
	tok := e.stack.Push(reason)
	metrics.SuspensionsActive.Set(float64(e.stack.Len()))
	defer func() {
		tok.Release()
		metrics.SuspensionsActive.Set(float64(e.stack.Len()))
	}()
	return activity(ctx)
}

// CancelAllTasks disposes pending tasks, cancels the running one, and
// force-resumes it so a suspended task can observe the cancellation.
// It returns the number of pending tasks removed.
func (e *QueueExecutor) CancelAllTasks() int {
	n := e.queue.CancelAllTasks()
	metrics.QueueLength.Set(float64(e.queue.Len()))

	e.mu.Lock()
	e.cancelEpoch++
	if e.current != nil {
		e.current.Indicator.Cancel()
	}
	e.mu.Unlock()

	e.stack.ForceResume()
	return n
}

// CancelTask cancels task whether it is pending or running.
// It returns false when the task is unknown to the executor.
func (e *QueueExecutor) CancelTask(task queue.Task) bool {
	if e.queue.CancelTask(task) {
		metrics.QueueLength.Set(float64(e.queue.Len()))
		return true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current != nil && e.current.Task == task {
		e.current.Indicator.Cancel()
		return true
	}
	return false
}

// IsRunning reports whether a drain is in progress.
func (e *QueueExecutor) IsRunning() bool {
	return e.single.IsRunning()
}

// Running is the observable counterpart of IsRunning.
func (e *QueueExecutor) Running() *async.Flag {
	return e.running
}

// Generation counts completed drain runs.
func (e *QueueExecutor) Generation() int64 {
	return e.single.Generation()
}

// Snapshot returns the executor's current state.
func (e *QueueExecutor) Snapshot() Snapshot {
	s := Snapshot{
		Running:     e.single.IsRunning(),
		State:       e.single.State().String(),
		Suspended:   e.suspended.Load(),
		QueueLength: e.queue.Len(),
		Pending:     e.queue.PendingIDs(),
		Suspensions: e.stack.Reasons(),
		Generation:  e.single.Generation(),
	}
	e.mu.Lock()
	if e.current != nil {
		s.CurrentTask = e.current.Task.ID()
		progress := e.current.Indicator.Snapshot()
		s.Progress = &progress
	}
	e.mu.Unlock()
	return s
}

// Close disposes pending tasks, cancels the running one, and rejects
// further work. Every indicator handed out derives from the executor's
// context, so a task extracted but not yet started is canceled too.
func (e *QueueExecutor) Close() error {
	if !e.disposed.CompareAndSwap(false, true) {
		return nil
	}
	e.cancel()
	e.stack.ForceResume()
	return e.queue.Close()
}
