package async

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

func TestNewIndicator(t *testing.T) {
	// Given/When: a fresh indicator
	p := NewIndicator(context.Background())
	defer p.Release()

	// Then: it is running and not canceled
	assert.False(t, p.IsCanceled())
	assert.False(t, p.IsSuspended())
	assert.Empty(t, p.SuspendedReason())
	assert.NoError(t, p.CheckCanceled())
}

func TestIndicator_Cancel(t *testing.T) {
	p := NewIndicator(context.Background())
	defer p.Release()

	p.Cancel()

	assert.True(t, p.IsCanceled())
	err := p.CheckCanceled()
	require.Error(t, err)
	assert.True(t, moderr.IsCanceled(err))
}

func TestIndicator_ParentCancelPropagates(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	p := NewIndicator(parent)
	defer p.Release()

	cancel()

	assert.True(t, p.IsCanceled())
	assert.True(t, moderr.IsCanceled(p.CheckCanceled()))
}

func TestIndicator_SuspendBlocksUntilResume(t *testing.T) {
	p := NewIndicator(context.Background())
	defer p.Release()

	// Given: a suspended indicator
	p.Suspend("refresh")
	assert.True(t, p.IsSuspended())
	assert.Equal(t, "refresh", p.SuspendedReason())

	// When: a task polls CheckCanceled
	var returned atomic.Bool
	done := make(chan error, 1)
	go func() {
		err := p.CheckCanceled()
		returned.Store(true)
		done <- err
	}()

	// Then: it blocks until resumed
	time.Sleep(20 * time.Millisecond)
	assert.False(t, returned.Load())

	p.Resume()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("CheckCanceled did not return after Resume")
	}
	assert.False(t, p.IsSuspended())
	assert.Empty(t, p.SuspendedReason())
}

func TestIndicator_CancelWakesSuspendedWaiter(t *testing.T) {
	p := NewIndicator(context.Background())
	defer p.Release()
	p.Suspend("refresh")

	done := make(chan error, 1)
	go func() { done <- p.CheckCanceled() }()

	p.Cancel()

	select {
	case err := <-done:
		assert.True(t, moderr.IsCanceled(err))
	case <-time.After(time.Second):
		t.Fatal("CheckCanceled did not return after Cancel")
	}
}

func TestIndicator_SuspendReplacesReason(t *testing.T) {
	p := NewIndicator(context.Background())
	defer p.Release()

	p.Suspend("A")
	p.Suspend("B")

	assert.Equal(t, "B", p.SuspendedReason())
}

func TestIndicator_Snapshot(t *testing.T) {
	p := NewIndicator(context.Background())
	defer p.Release()

	p.SetText("scanning")
	p.SetFraction(1.5)
	p.Suspend("paused")

	snap := p.Snapshot()
	assert.Equal(t, "scanning", snap.Text)
	assert.InDelta(t, 1.0, snap.Fraction, 0.0001)
	assert.True(t, snap.Suspended)
	assert.Equal(t, "paused", snap.SuspendedReason)
	assert.False(t, snap.Canceled)

	p.SetFraction(-1)
	assert.InDelta(t, 0.0, p.Snapshot().Fraction, 0.0001)
}

func TestIndicator_ConcurrentAccess(t *testing.T) {
	p := NewIndicator(context.Background())
	defer p.Release()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			p.Suspend("x")
			p.Resume()
		}()
		go func() {
			defer wg.Done()
			_ = p.Snapshot()
			_ = p.IsSuspended()
		}()
	}
	wg.Wait()

	p.Resume()
	assert.NoError(t, p.CheckCanceled())
}
