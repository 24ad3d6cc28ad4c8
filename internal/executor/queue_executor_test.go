package executor

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexmode/internal/async"
	"github.com/Aman-CERP/indexmode/internal/queue"
)

// recordingListener records the drain bracket calls.
type recordingListener struct {
	mu      sync.Mutex
	events  []string
	drained []*queue.Receipt
	allow   bool
}

func (l *recordingListener) BeforeFirstTask() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "before")
	return l.allow
}

func (l *recordingListener) AfterLastTask(drained *queue.Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, "after")
	l.drained = append(l.drained, drained)
}

func (l *recordingListener) snapshot() ([]string, []*queue.Receipt) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...), append([]*queue.Receipt(nil), l.drained...)
}

func recordTask(id string, mu *sync.Mutex, order *[]string) *queue.FuncTask {
	return queue.NewFuncTask(id, func(context.Context, *async.Indicator) error {
		mu.Lock()
		*order = append(*order, id)
		mu.Unlock()
		return nil
	})
}

func waitIdle(t *testing.T, e *QueueExecutor) {
	t.Helper()
	require.Eventually(t, func() bool { return !e.IsRunning() }, 2*time.Second, time.Millisecond)
}

func TestQueueExecutor_DrainsInOrderAndReportsReceipt(t *testing.T) {
	l := &recordingListener{allow: true}
	e := NewQueueExecutor(Options{Name: "test", Listener: l})
	defer e.Close()

	var mu sync.Mutex
	var order []string
	for _, id := range []string{"a", "b", "c"} {
		_, err := e.AddTask(recordTask(id, &mu, &order))
		require.NoError(t, err)
	}

	// When: the background process runs
	require.True(t, e.StartBackgroundProcess())
	waitIdle(t, e)

	// Then: tasks ran in submission order and the drain reported the last receipt
	mu.Lock()
	assert.Equal(t, []string{"a", "b", "c"}, order)
	mu.Unlock()
	events, drained := l.snapshot()
	assert.Equal(t, []string{"before", "after"}, events)
	require.Len(t, drained, 1)
	require.NotNil(t, drained[0])
	assert.Equal(t, e.LatestReceipt(), *drained[0])
}

func TestQueueExecutor_ListenerFalseSuppressesAfter(t *testing.T) {
	l := &recordingListener{allow: false}
	e := NewQueueExecutor(Options{Listener: l})
	defer e.Close()

	require.True(t, e.RunInline())

	events, _ := l.snapshot()
	assert.Equal(t, []string{"before"}, events)
}

func TestQueueExecutor_TaskFailuresAreIsolated(t *testing.T) {
	e := NewQueueExecutor(Options{})
	defer e.Close()

	var ran atomic.Int32
	disposed := make(chan string, 4)
	tasks := []*queue.FuncTask{
		queue.NewFuncTask("fails", func(context.Context, *async.Indicator) error { return errors.New("bad") }),
		queue.NewFuncTask("panics", func(context.Context, *async.Indicator) error { panic("boom") }),
		queue.NewFuncTask("cancels", func(_ context.Context, p *async.Indicator) error {
			p.Cancel()
			return p.CheckCanceled()
		}),
		queue.NewFuncTask("ok", func(context.Context, *async.Indicator) error { ran.Add(1); return nil }),
	}
	for _, task := range tasks {
		id := task.ID()
		task.OnDispose(func() { disposed <- id })
		_, err := e.AddTask(task)
		require.NoError(t, err)
	}

	require.True(t, e.RunInline())

	assert.Equal(t, int32(1), ran.Load(), "later tasks still run")
	assert.Len(t, disposed, 4, "every task is disposed after running")
}

func TestQueueExecutor_RunInlineNoopWhileBackgroundRunning(t *testing.T) {
	e := NewQueueExecutor(Options{})
	defer e.Close()

	entered := make(chan struct{})
	release := make(chan struct{})
	_, err := e.AddTask(queue.NewFuncTask("slow", func(context.Context, *async.Indicator) error {
		close(entered)
		<-release
		return nil
	}))
	require.NoError(t, err)
	require.True(t, e.StartBackgroundProcess())
	<-entered

	// When: a synchronous drain is requested while the worker runs
	assert.False(t, e.RunInline())

	close(release)
	waitIdle(t, e)
}

func TestQueueExecutor_SuspendQueueStopsAfterCurrentTask(t *testing.T) {
	l := &recordingListener{allow: true}
	e := NewQueueExecutor(Options{Listener: l})
	defer e.Close()

	var mu sync.Mutex
	var order []string
	_, _ = e.AddTask(queue.NewFuncTask("first", func(context.Context, *async.Indicator) error {
		e.SuspendQueue()
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		return nil
	}))
	_, _ = e.AddTask(recordTask("second", &mu, &order))

	// When: the first task suspends the queue
	require.True(t, e.RunInline())

	// Then: the drain stops early and reports no drained receipt
	mu.Lock()
	assert.Equal(t, []string{"first"}, order)
	mu.Unlock()
	_, drained := l.snapshot()
	require.Len(t, drained, 1)
	assert.Nil(t, drained[0])
	assert.True(t, e.IsQueueSuspended())

	// When: resumed
	e.ResumeQueue()
	waitIdle(t, e)

	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, order)
	mu.Unlock()
}

func TestQueueExecutor_SuspendAndRunPausesRunningTask(t *testing.T) {
	e := NewQueueExecutor(Options{})
	defer e.Close()

	entered := make(chan struct{})
	proceed := make(chan struct{})
	var checkedAt atomic.Int64
	_, _ = e.AddTask(queue.NewFuncTask("worker", func(_ context.Context, p *async.Indicator) error {
		close(entered)
		<-proceed
		if err := p.CheckCanceled(); err != nil {
			return err
		}
		checkedAt.Store(time.Now().UnixNano())
		return nil
	}))
	require.True(t, e.StartBackgroundProcess())
	<-entered

	// When: a heavy activity runs while the task is in flight
	var activityEnded atomic.Int64
	err := e.SuspendAndRun(context.Background(), "refresh", func(context.Context) error {
		close(proceed)
		snap := e.Snapshot()
		require.NotNil(t, snap.Progress)
		assert.True(t, snap.Progress.Suspended)
		assert.Equal(t, "refresh", snap.Progress.SuspendedReason)
		time.Sleep(20 * time.Millisecond)
		activityEnded.Store(time.Now().UnixNano())
		return nil
	})
	require.NoError(t, err)
	waitIdle(t, e)

	// Then: the task's cancellation check waited for the activity to finish
	assert.GreaterOrEqual(t, checkedAt.Load(), activityEnded.Load())
}

func TestQueueExecutor_CancelAllTasks(t *testing.T) {
	e := NewQueueExecutor(Options{})
	defer e.Close()

	entered := make(chan struct{})
	var canceled atomic.Bool
	_, _ = e.AddTask(queue.NewFuncTask("long", func(_ context.Context, p *async.Indicator) error {
		close(entered)
		for {
			if err := p.CheckCanceled(); err != nil {
				canceled.Store(true)
				return err
			}
			time.Sleep(time.Millisecond)
		}
	}))
	var pendingRan atomic.Bool
	_, _ = e.AddTask(queue.NewFuncTask("pending", func(context.Context, *async.Indicator) error {
		pendingRan.Store(true)
		return nil
	}))
	require.True(t, e.StartBackgroundProcess())
	<-entered

	// Given: the running task is also suspended
	tok := e.stack.Push("refresh")
	defer tok.Release()

	// When
	n := e.CancelAllTasks()

	// Then: the pending task is dropped and the running one observes cancellation
	assert.Equal(t, 1, n)
	waitIdle(t, e)
	assert.True(t, canceled.Load())
	assert.False(t, pendingRan.Load())
}

func TestQueueExecutor_CancelAllTasksReachesExtractedTask(t *testing.T) {
	e := NewQueueExecutor(Options{})
	defer e.Close()

	var canceled atomic.Bool
	_, _ = e.AddTask(queue.NewFuncTask("next", func(_ context.Context, p *async.Indicator) error {
		err := p.CheckCanceled()
		canceled.Store(err != nil)
		return err
	}))

	// Given: the drain loop has extracted a task but not started it yet
	e.mu.Lock()
	epoch := e.cancelEpoch
	e.mu.Unlock()
	qt := e.queue.ExtractNextTask()
	require.NotNil(t, qt)

	// When: everything is canceled inside that window
	assert.Equal(t, 0, e.CancelAllTasks())

	// Then: the task starts already canceled
	e.runTask(qt, epoch)
	assert.True(t, canceled.Load())
}

func TestQueueExecutor_CancelAllTasksAfterQueueEmpties(t *testing.T) {
	for i := 0; i < 200; i++ {
		e := NewQueueExecutor(Options{})

		release := make(chan struct{})
		started := make(chan struct{})
		_, _ = e.AddTask(queue.NewFuncTask("first", func(context.Context, *async.Indicator) error {
			close(started)
			<-release
			return nil
		}))
		result := make(chan bool, 1)
		_, _ = e.AddTask(queue.NewFuncTask("second", func(ctx context.Context, _ *async.Indicator) error {
			select {
			case <-ctx.Done():
				result <- true
			case <-time.After(2 * time.Second):
				result <- false
			}
			return nil
		}))
		require.True(t, e.StartBackgroundProcess())
		<-started

		// When: cancellation lands right after the second task leaves the queue
		close(release)
		for !e.queue.IsEmpty() {
			runtime.Gosched()
		}
		e.CancelAllTasks()

		// Then: the second task is always canceled
		require.True(t, <-result, "iteration %d", i)
		waitIdle(t, e)
		require.NoError(t, e.Close())
	}
}

func TestQueueExecutor_CloseCancelsExtractedTask(t *testing.T) {
	e := NewQueueExecutor(Options{})
	_, _ = e.AddTask(queue.NewFuncTask("next", nil))
	qt := e.queue.ExtractNextTask()
	require.NotNil(t, qt)
	require.False(t, qt.Indicator.IsCanceled())

	require.NoError(t, e.Close())

	assert.True(t, qt.Indicator.IsCanceled())
	qt.Indicator.Release()
}

func TestQueueExecutor_CancelTask(t *testing.T) {
	e := NewQueueExecutor(Options{})
	defer e.Close()

	pending := queue.NewFuncTask("p", nil)
	_, _ = e.AddTask(pending)

	assert.True(t, e.CancelTask(pending))
	assert.False(t, e.CancelTask(pending))
	assert.Equal(t, 0, e.Snapshot().QueueLength)
}

func TestQueueExecutor_RunningFlag(t *testing.T) {
	e := NewQueueExecutor(Options{})
	defer e.Close()

	var mu sync.Mutex
	var transitions []bool
	e.Running().Subscribe(func(v bool) {
		mu.Lock()
		transitions = append(transitions, v)
		mu.Unlock()
	})

	require.True(t, e.RunInline())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []bool{true, false}, transitions)
}

func TestQueueExecutor_ClosedRejectsWork(t *testing.T) {
	e := NewQueueExecutor(Options{})
	pending := make(chan struct{}, 1)
	_, _ = e.AddTask(queue.NewFuncTask("p", nil).OnDispose(func() { pending <- struct{}{} }))

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())

	assert.Len(t, pending, 1)
	_, err := e.AddTask(queue.NewFuncTask("late", nil))
	assert.Error(t, err)
	assert.False(t, e.StartBackgroundProcess())
	assert.False(t, e.RunInline())
}
