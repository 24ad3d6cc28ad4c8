package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexmode/internal/async"
	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/queue"
)

type fakeTarget struct {
	mu        sync.Mutex
	reasons   []string
	queued    []queue.Task
	suspended bool
	queueErr  error
}

func (f *fakeTarget) SuspendAndRun(ctx context.Context, reason string, activity func(ctx context.Context) error) error {
	f.mu.Lock()
	f.reasons = append(f.reasons, reason)
	f.suspended = true
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.suspended = false
		f.mu.Unlock()
	}()
	return activity(ctx)
}

func (f *fakeTarget) QueueTask(task queue.Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.suspended {
		panic("task queued while refresh still suspends the queue")
	}
	if f.queueErr != nil {
		return f.queueErr
	}
	f.queued = append(f.queued, task)
	return nil
}

func (f *fakeTarget) Queued() []queue.Task {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.Task(nil), f.queued...)
}

type fakeSource struct {
	root    string
	batches chan []FileEvent
	mu      sync.Mutex
	done    int
}

func (f *fakeSource) Root() string                { return f.root }
func (f *fakeSource) Batches() <-chan []FileEvent { return f.batches }
func (f *fakeSource) Done() {
	f.mu.Lock()
	f.done++
	f.mu.Unlock()
}

func (f *fakeSource) DoneCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.done
}

type pathTask struct {
	*queue.FuncTask
	paths []string
}

func pathFactory(paths []string) queue.Task {
	return &pathTask{
		FuncTask: queue.NewFuncTask("rescan", func(context.Context, *async.Indicator) error { return nil }),
		paths:    paths,
	}
}

func TestRefresher_Refresh_QueuesFilePaths(t *testing.T) {
	// Given a refresher over a fake target
	target := &fakeTarget{}
	r := NewRefresher(&fakeSource{root: t.TempDir()}, target, pathFactory, nil)

	// When a batch of file events is refreshed
	err := r.Refresh(context.Background(), []FileEvent{
		{Path: "b.go", Operation: OpModify},
		{Path: "a.go", Operation: OpCreate},
		{Path: "gone.go", Operation: OpDelete},
	})

	// Then one suspended refresh ran and one task covers the sorted paths
	require.NoError(t, err)
	assert.Equal(t, []string{RefreshReason}, target.reasons)
	queued := target.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, []string{"a.go", "b.go", "gone.go"}, queued[0].(*pathTask).paths)
}

func TestRefresher_Refresh_ExpandsCreatedDirectory(t *testing.T) {
	// Given a directory that appeared with files already inside
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pkg", "node_modules"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "a.go"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "pkg", "node_modules", "m.js"), []byte("x"), 0o644))
	target := &fakeTarget{}
	r := NewRefresher(&fakeSource{root: root}, target, pathFactory, []string{"node_modules"})

	// When the directory creation is refreshed
	err := r.Refresh(context.Background(), []FileEvent{{Path: "pkg", Operation: OpCreate, IsDir: true}})

	// Then its non-excluded files are queued
	require.NoError(t, err)
	queued := target.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, []string{filepath.Join("pkg", "a.go")}, queued[0].(*pathTask).paths)
}

func TestRefresher_Refresh_DirectoryModifyOnly_QueuesNothing(t *testing.T) {
	target := &fakeTarget{}
	r := NewRefresher(&fakeSource{root: t.TempDir()}, target, pathFactory, nil)

	err := r.Refresh(context.Background(), []FileEvent{{Path: "pkg", Operation: OpModify, IsDir: true}})

	require.NoError(t, err)
	assert.Empty(t, target.Queued())
	assert.Len(t, target.reasons, 1, "the refresh activity still ran")
}

func TestRefresher_Refresh_CanceledContext(t *testing.T) {
	// Given a canceled context
	target := &fakeTarget{}
	r := NewRefresher(&fakeSource{root: t.TempDir()}, target, pathFactory, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// When a batch is refreshed
	err := r.Refresh(ctx, []FileEvent{{Path: "a.go", Operation: OpModify}})

	// Then it reports cancellation and queues nothing
	require.Error(t, err)
	assert.True(t, moderr.IsCanceled(err))
	assert.Empty(t, target.Queued())
}

func TestRefresher_Run_AcknowledgesEveryBatch(t *testing.T) {
	// Given a source with two batches, one of which fails to queue
	source := &fakeSource{root: t.TempDir(), batches: make(chan []FileEvent, 2)}
	target := &fakeTarget{queueErr: moderr.DisposedError("coordinator")}
	r := NewRefresher(source, target, pathFactory, nil)
	source.batches <- []FileEvent{{Path: "a.go", Operation: OpModify}}
	source.batches <- []FileEvent{{Path: "b.go", Operation: OpModify}}
	close(source.batches)

	// When the refresher runs to completion
	done := make(chan error, 1)
	go func() { done <- r.Run(context.Background()) }()

	// Then it returns after acknowledging both batches
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
	assert.Equal(t, 2, source.DoneCount())
}
