// Package edt provides the single dispatch goroutine that owns every mode
// transition. Work submitted from other goroutines is marshalled onto it with
// InvokeLater or InvokeAndWait.
package edt

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// Loop is a FIFO dispatch loop executing submitted functions one at a time
// on the goroutine that called Run.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	closed  bool
	wake    chan struct{}
	closeCh chan struct{}
	stopped chan struct{}

	closeOnce sync.Once
	started   atomic.Bool
	goid      atomic.Uint64
}

// New creates a loop. Nothing runs until Run is called.
func New() *Loop {
	return &Loop{
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
		stopped: make(chan struct{}),
	}
}

// Run executes submitted functions until ctx is done or Close is called.
// Functions still queued at that point are discarded. Run may be called once.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return moderr.InternalError("dispatch loop already running", nil)
	}

	l.goid.Store(goroutineID())
	defer func() {
		l.goid.Store(0)
		l.markClosed()
		close(l.stopped)
	}()

	for {
		for {
			fn := l.pop()
			if fn == nil {
				break
			}
			l.execute(fn)
		}

		select {
		case <-l.wake:
		case <-l.closeCh:
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// InvokeLater queues fn to run on the dispatch goroutine. It never blocks.
func (l *Loop) InvokeLater(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return moderr.ErrLoopClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// InvokeAndWait runs fn on the dispatch goroutine and waits for it to finish.
// Called from the dispatch goroutine itself, fn runs inline. A panic in fn is
// returned as an internal error.
func (l *Loop) InvokeAndWait(ctx context.Context, fn func()) error {
	if l.IsDispatchThread() {
		return l.call(fn)
	}

	done := make(chan error, 1)
	if err := l.InvokeLater(func() { done <- l.call(fn) }); err != nil {
		return err
	}

	select {
	case err := <-done:
		return err
	case <-l.stopped:
		select {
		case err := <-done:
			return err
		default:
			return moderr.ErrLoopClosed
		}
	case <-ctx.Done():
		return moderr.CanceledError(ctx.Err())
	}
}

// IsDispatchThread reports whether the caller is running on the dispatch goroutine.
func (l *Loop) IsDispatchThread() bool {
	id := l.goid.Load()
	return id != 0 && id == goroutineID()
}

// Pending returns the number of queued functions.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Close stops the loop. Further submissions fail with ErrLoopClosed.
func (l *Loop) Close() error {
	l.closeOnce.Do(func() {
		l.markClosed()
		close(l.closeCh)
	})
	return nil
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.stopped
}

func (l *Loop) markClosed() {
	l.mu.Lock()
	l.closed = true
	l.queue = nil
	l.mu.Unlock()
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// execute runs fn, logging instead of propagating a panic so one bad
// submission cannot take the dispatch goroutine down.
func (l *Loop) execute(fn func()) {
	_ = l.call(fn)
}

func (l *Loop) call(fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("dispatch function panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			err = moderr.InternalError(fmt.Sprintf("dispatch function panicked: %v", r), nil)
		}
	}()
	fn()
	return nil
}

// goroutineID parses the current goroutine's id out of its stack header,
// which starts with "goroutine NNN [".
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
