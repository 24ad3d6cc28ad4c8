// Package queue holds pending background tasks, merges compatible ones, and
// hands them out one at a time together with a monotonic submission receipt.
package queue

import (
	"context"
	"sync"

	"github.com/Aman-CERP/indexmode/internal/async"
)

// Task is a unit of background work.
//
// Ownership passes to the queue on AddTask. Every task is disposed exactly
// once: after it runs, or when it is merged away, canceled, or the queue closes.
type Task interface {
	// ID identifies the task in logs.
	ID() string

	// Run performs the work. Implementations poll p.CheckCanceled at safe
	// points; returning its error marks the run as canceled.
	Run(ctx context.Context, p *async.Indicator) error

	// TryMergeWith attempts to combine this (newer) task with an older
	// pending one. It returns the task that replaces both, which may be
	// either argument or a new task, or nil to keep both. It must not block.
	TryMergeWith(older Task) Task

	// Dispose releases resources held by the task.
	Dispose()
}

// Prioritized is implemented by tasks that should run ahead of others.
// Higher values run first; tasks without it have priority 0.
type Prioritized interface {
	Priority() int
}

// Receipt is a snapshot of the submission counter. A drain that reports
// receipt r has executed or disposed every task added with a receipt <= r.
type Receipt int64

// QueuedTask is a task extracted from the queue, ready to run.
type QueuedTask struct {
	Task      Task
	Indicator *async.Indicator
	Receipt   Receipt
}

// FuncTask adapts a function into a task that never merges.
type FuncTask struct {
	id        string
	fn        func(ctx context.Context, p *async.Indicator) error
	onDispose func()
	once      sync.Once
}

// NewFuncTask creates a non-mergeable task running fn.
func NewFuncTask(id string, fn func(ctx context.Context, p *async.Indicator) error) *FuncTask {
	return &FuncTask{id: id, fn: fn}
}

// OnDispose registers fn to run when the task is disposed.
func (t *FuncTask) OnDispose(fn func()) *FuncTask {
	t.onDispose = fn
	return t
}

// ID implements Task.
func (t *FuncTask) ID() string { return t.id }

// Run implements Task.
func (t *FuncTask) Run(ctx context.Context, p *async.Indicator) error {
	if t.fn == nil {
		return nil
	}
	return t.fn(ctx, p)
}

// TryMergeWith implements Task. Function tasks never merge.
func (t *FuncTask) TryMergeWith(Task) Task { return nil }

// Dispose implements Task.
func (t *FuncTask) Dispose() {
	t.once.Do(func() {
		if t.onDispose != nil {
			t.onDispose()
		}
	})
}

func priorityOf(t Task) int {
	if p, ok := t.(Prioritized); ok {
		return p.Priority()
	}
	return 0
}
