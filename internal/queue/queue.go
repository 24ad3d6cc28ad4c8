package queue

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/indexmode/internal/async"
	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// Order is the tie-break between pending tasks of equal priority.
type Order int

const (
	// OrderFIFO runs the oldest task first.
	OrderFIFO Order = iota
	// OrderLIFO runs the newest task first.
	OrderLIFO
)

// ParseOrder converts a configuration value into an Order.
func ParseOrder(s string) (Order, error) {
	switch s {
	case "", "fifo":
		return OrderFIFO, nil
	case "lifo":
		return OrderLIFO, nil
	default:
		return OrderFIFO, moderr.ValidationError("unknown queue order "+s, nil)
	}
}

// String returns the configuration name of the order.
func (o Order) String() string {
	if o == OrderLIFO {
		return "lifo"
	}
	return "fifo"
}

// MergingQueue is a thread-safe queue of pending tasks.
//
// A new task is offered every pending task, newest first; each successful
// merge removes the pending task and the merged result takes the new slot.
type MergingQueue struct {
	ctx     context.Context
	mu      sync.Mutex
	order   Order
	pending []*QueuedTask
	latest  Receipt
	closed  bool
}

// NewMergingQueue creates an empty queue. Indicators of queued tasks are
// derived from ctx, so canceling it cancels every task handed out.
func NewMergingQueue(ctx context.Context, order Order) *MergingQueue {
	return &MergingQueue{ctx: ctx, order: order}
}

// AddTask enqueues task and returns its submission receipt. After Close the
// task is disposed and ErrAlreadyDisposed is returned.
func (q *MergingQueue) AddTask(task Task) (Receipt, error) {
	var disposed []Task

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		task.Dispose()
		return 0, moderr.DisposedError("task queue")
	}

	current := task
	for i := len(q.pending) - 1; i >= 0; i-- {
		older := q.pending[i]
		merged := current.TryMergeWith(older.Task)
		if merged == nil {
			continue
		}
		if merged != older.Task {
			disposed = append(disposed, older.Task)
		}
		if merged != current && current != older.Task {
			disposed = append(disposed, current)
		}
		older.Indicator.Release()
		q.pending = append(q.pending[:i], q.pending[i+1:]...)
		current = merged
	}

	q.latest++
	receipt := q.latest
	q.pending = append(q.pending, &QueuedTask{
		Task:      current,
		Indicator: async.NewIndicator(q.ctx),
		Receipt:   receipt,
	})
	q.mu.Unlock()

	for _, t := range disposed {
		slog.Debug("task merged away", slog.String("task", t.ID()), slog.String("into", current.ID()))
		t.Dispose()
	}
	return receipt, nil
}

// ExtractNextTask removes and returns the next task to run, or nil when the
// queue is empty. The caller owns the returned task and must dispose it.
func (q *MergingQueue) ExtractNextTask() *QueuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return nil
	}

	best := 0
	bestPriority := priorityOf(q.pending[0].Task)
	for i := 1; i < len(q.pending); i++ {
		p := priorityOf(q.pending[i].Task)
		if p > bestPriority || (p == bestPriority && q.order == OrderLIFO) {
			best, bestPriority = i, p
		}
	}

	next := q.pending[best]
	q.pending = append(q.pending[:best], q.pending[best+1:]...)
	return next
}

// IsEmpty reports whether no task is pending.
func (q *MergingQueue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending) == 0
}

// Len returns the number of pending tasks.
func (q *MergingQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// LatestReceipt returns the receipt of the most recent AddTask.
func (q *MergingQueue) LatestReceipt() Receipt {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.latest
}

// PendingIDs returns the ids of pending tasks in insertion order.
func (q *MergingQueue) PendingIDs() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	ids := make([]string, len(q.pending))
	for i, qt := range q.pending {
		ids[i] = qt.Task.ID()
	}
	return ids
}

// CancelAllTasks cancels and disposes every pending task.
// It returns the number of tasks removed.
func (q *MergingQueue) CancelAllTasks() int {
	q.mu.Lock()
	removed := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, qt := range removed {
		qt.Indicator.Cancel()
		qt.Indicator.Release()
		qt.Task.Dispose()
	}
	return len(removed)
}

// CancelTask removes a pending task and disposes it. It returns false when
// the task is not pending (already extracted, merged, or never added).
func (q *MergingQueue) CancelTask(task Task) bool {
	q.mu.Lock()
	var found *QueuedTask
	for i, qt := range q.pending {
		if qt.Task == task {
			found = qt
			q.pending = append(q.pending[:i], q.pending[i+1:]...)
			break
		}
	}
	q.mu.Unlock()

	if found == nil {
		return false
	}
	found.Indicator.Cancel()
	found.Indicator.Release()
	found.Task.Dispose()
	return true
}

// Close disposes every pending task and rejects further additions.
func (q *MergingQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.CancelAllTasks()
	return nil
}
