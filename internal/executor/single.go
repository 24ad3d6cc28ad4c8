// Package executor runs background work on at most one goroutine at a time.
//
// SingleTaskExecutor is the lock-free single-flight core. QueueExecutor builds
// the task drain loop on top of it.
package executor

import "sync/atomic"

// State is the run state of a SingleTaskExecutor.
type State int32

const (
	Stopped State = iota
	Starting
	Running
	Stopping
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	default:
		return "unknown"
	}
}

// SingleTaskExecutor guarantees that body never runs concurrently with itself
// and that it runs at least once after the last TryStart call returns.
//
// Transitions are compare-and-swap only; no lock is held while body runs:
//
//	Stopped  -> Starting  won by one TryStart caller
//	Starting -> Running   right before body
//	Running  -> Stopping  right after body
//	Stopping -> Starting  if a start was requested while body ran
//	Stopping -> Stopped   otherwise; Generation increments
type SingleTaskExecutor struct {
	body              func()
	state             atomic.Int32
	continueRequested atomic.Bool
	generation        atomic.Int64
}

// NewSingleTaskExecutor creates an executor for body.
func NewSingleTaskExecutor(body func()) *SingleTaskExecutor {
	return &SingleTaskExecutor{body: body}
}

// TryStart requests a run. It returns true when this call won the start and
// handed the run loop to launch; launch decides the goroutine, for example
// `go run()` for background work or `run()` to drain inline. A false return
// means another caller already owns the request and will pick up the work.
func (e *SingleTaskExecutor) TryStart(launch func(run func())) bool {
	if !e.continueRequested.CompareAndSwap(false, true) {
		return false
	}
	if !e.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
		// The active run sees the flag before it stops.
		return false
	}
	launch(e.run)
	return true
}

func (e *SingleTaskExecutor) run() {
	completed := false
	defer func() {
		if !completed {
			// body panicked: leave the executor startable and let the panic go on.
			e.continueRequested.Store(false)
			e.state.Store(int32(Stopped))
			e.generation.Add(1)
		}
	}()

	for {
		e.continueRequested.Store(false)
		e.state.Store(int32(Running))
		e.body()
		e.state.Store(int32(Stopping))

		if e.continueRequested.Load() && e.state.CompareAndSwap(int32(Stopping), int32(Starting)) {
			continue
		}
		e.state.Store(int32(Stopped))
		e.generation.Add(1)

		// A request that raced with the store above would otherwise be lost.
		if e.continueRequested.Load() && e.state.CompareAndSwap(int32(Stopped), int32(Starting)) {
			continue
		}
		completed = true
		return
	}
}

// State returns the current run state.
func (e *SingleTaskExecutor) State() State {
	return State(e.state.Load())
}

// IsRunning reports whether a run is in progress (any state but Stopped).
func (e *SingleTaskExecutor) IsRunning() bool {
	return e.State() != Stopped
}

// Generation counts completed runs.
func (e *SingleTaskExecutor) Generation() int64 {
	return e.generation.Load()
}
