package mode

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/Aman-CERP/indexmode/internal/async"
	"github.com/Aman-CERP/indexmode/internal/queue"
)

// Submission tracks a task queued with SubmitTask.
type Submission struct {
	task *submittedTask
	c    *Coordinator
}

// Done is closed once the task has left the system: it ran, or was merged
// into another task, canceled, or dropped on shutdown.
func (s *Submission) Done() <-chan struct{} {
	return s.task.done
}

// Ran reports whether the task's Run was invoked. Valid after Done.
func (s *Submission) Ran() bool {
	return s.task.ran.Load()
}

// Err returns the error returned by Run, if it ran. Valid after Done.
func (s *Submission) Err() error {
	if v := s.task.err.Load(); v != nil {
		return *v
	}
	return nil
}

// Wait blocks until Done or ctx is done.
func (s *Submission) Wait(ctx context.Context) error {
	select {
	case <-s.task.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel cancels the task. It returns false when the task is no longer
// pending or running.
func (s *Submission) Cancel() bool {
	return s.c.CancelTask(s.task)
}

// submittedTask wraps a task so its completion can be observed. It merges
// through to the wrapped task.
type submittedTask struct {
	queue.Task
	done chan struct{}
	once sync.Once
	ran  atomic.Bool
	err  atomic.Pointer[error]
}

func newSubmittedTask(t queue.Task) *submittedTask {
	return &submittedTask{Task: t, done: make(chan struct{})}
}

func (s *submittedTask) Run(ctx context.Context, p *async.Indicator) error {
	s.ran.Store(true)
	err := s.Task.Run(ctx, p)
	if err != nil {
		s.err.Store(&err)
	}
	return err
}

func (s *submittedTask) TryMergeWith(older queue.Task) queue.Task {
	inner := older
	if o, ok := older.(*submittedTask); ok {
		inner = o.Task
	}
	merged := s.Task.TryMergeWith(inner)
	switch {
	case merged == nil:
		return nil
	case merged == s.Task:
		return s
	case merged == inner:
		return older
	default:
		return merged
	}
}

func (s *submittedTask) Dispose() {
	s.once.Do(func() {
		s.Task.Dispose()
		close(s.done)
	})
}
