package watcher

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Debouncer coalesces rapid file events into batches. Events for the same
// path within the window merge as follows:
//   - CREATE + MODIFY = CREATE
//   - CREATE + DELETE = nothing
//   - MODIFY + DELETE = DELETE
//   - DELETE + CREATE = MODIFY
//
// The debouncer also tracks batches handed out but not yet acknowledged with
// Done, and keeps the scanning signal raised until both are empty.
type Debouncer struct {
	window time.Duration
	signal Signal

	mu       sync.Mutex
	pending  map[string]*pendingEvent
	inFlight int
	timer    *time.Timer
	output   chan []FileEvent
	stopped  bool
}

type pendingEvent struct {
	event   FileEvent
	firstOp Operation
}

// NewDebouncer creates a debouncer emitting at most buffer undelivered
// batches. signal may be nil.
func NewDebouncer(window time.Duration, buffer int, signal Signal) *Debouncer {
	if buffer <= 0 {
		buffer = 1
	}
	return &Debouncer{
		window:  window,
		signal:  signal,
		pending: make(map[string]*pendingEvent),
		output:  make(chan []FileEvent, buffer),
	}
}

// Add adds an event to be debounced.
func (d *Debouncer) Add(event FileEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	if existing, ok := d.pending[event.Path]; ok {
		if merged, keep := coalesce(existing.firstOp, existing.event, event); keep {
			existing.event = merged
		} else {
			delete(d.pending, event.Path)
		}
	} else {
		d.pending[event.Path] = &pendingEvent{event: event, firstOp: event.Operation}
	}

	d.publishLocked()
	d.scheduleLocked()
}

// coalesce merges next into existing. keep is false when the two cancel out.
func coalesce(first Operation, existing, next FileEvent) (merged FileEvent, keep bool) {
	switch {
	case first == OpCreate && next.Operation == OpModify:
		return existing, true
	case first == OpCreate && next.Operation == OpDelete:
		return FileEvent{}, false
	case first == OpDelete && next.Operation == OpCreate:
		next.Operation = OpModify
		return next, true
	default:
		return next, true
	}
}

func (d *Debouncer) scheduleLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// flush emits all pending events as one batch, sorted by path.
func (d *Debouncer) flush() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || len(d.pending) == 0 {
		d.publishLocked()
		return
	}

	events := make([]FileEvent, 0, len(d.pending))
	for _, pe := range d.pending {
		events = append(events, pe.event)
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Path < events[j].Path })

	select {
	case d.output <- events:
		d.pending = make(map[string]*pendingEvent)
		d.inFlight++
	default:
		// Refresher is behind. Keep the events and try again later.
		slog.Warn("debouncer output full, deferring batch", slog.Int("batch_size", len(events)))
		d.scheduleLocked()
	}
	d.publishLocked()
}

// Done acknowledges that a batch received from Output has been handled.
func (d *Debouncer) Done() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.inFlight > 0 {
		d.inFlight--
	}
	d.publishLocked()
}

// Pending returns the number of paths waiting for the next batch.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Busy reports whether events are pending or a batch is unacknowledged.
func (d *Debouncer) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.busyLocked()
}

func (d *Debouncer) busyLocked() bool {
	return !d.stopped && (len(d.pending) > 0 || d.inFlight > 0)
}

// publishLocked pushes the busy state to the signal. Signal listeners must
// not call back into the debouncer.
func (d *Debouncer) publishLocked() {
	if d.signal != nil {
		d.signal.Set(d.busyLocked())
	}
}

// Output returns the channel of debounced batches.
func (d *Debouncer) Output() <-chan []FileEvent {
	return d.output
}

// Stop stops the debouncer, drops pending events, lowers the signal and
// closes the output channel. Safe to call multiple times.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = make(map[string]*pendingEvent)
	d.publishLocked()
	close(d.output)
}
