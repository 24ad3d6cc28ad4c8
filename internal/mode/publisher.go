package mode

import (
	"log/slog"
	"runtime/debug"
	"slices"
	"sync"
)

// Event is published once per smart/dumb crossing.
type Event struct {
	Dumb       bool  `json:"dumb"`
	Counter    int   `json:"counter"`
	Generation int64 `json:"generation"`
}

// Entered reports whether the event is a smart-to-dumb transition.
func (e Event) Entered() bool { return e.Dumb }

// Publisher fans mode events out to observers and channel subscribers.
//
// An event older than the last published one is dropped. Observers run on
// the publishing goroutine; once a newer event has been published (for
// example by an observer that caused another transition), delivery of the
// older one stops. Channel subscribers hold at most the latest event.
type Publisher struct {
	mu        sync.Mutex
	last      int64
	published bool
	next      uint64
	observers map[uint64]func(Event)
	channels  map[uint64]chan Event
	closed    bool
}

// NewPublisher creates a publisher with no subscribers.
func NewPublisher() *Publisher {
	return &Publisher{
		observers: make(map[uint64]func(Event)),
		channels:  make(map[uint64]chan Event),
	}
}

// Publish delivers ev. It returns false when ev was not newer than the last
// published event.
func (p *Publisher) Publish(ev Event) bool {
	p.mu.Lock()
	if p.closed || (p.published && ev.Generation <= p.last) {
		p.mu.Unlock()
		return false
	}
	p.last = ev.Generation
	p.published = true

	for _, ch := range p.channels {
		offerLatest(ch, ev)
	}
	ids := make([]uint64, 0, len(p.observers))
	for id := range p.observers {
		ids = append(ids, id)
	}
	p.mu.Unlock()
	slices.Sort(ids)

	for _, id := range ids {
		p.mu.Lock()
		fn, ok := p.observers[id]
		stale := p.last != ev.Generation
		p.mu.Unlock()
		if stale {
			slog.Debug("mode event superseded during delivery", slog.Int64("generation", ev.Generation))
			break
		}
		if ok {
			notify(fn, ev)
		}
	}
	return true
}

// LastGeneration returns the generation of the last published event.
func (p *Publisher) LastGeneration() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// Subscribe registers fn and returns its unsubscribe func. Observers are
// notified in subscription order.
func (p *Publisher) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	id := p.next
	p.next++
	p.observers[id] = fn
	p.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.mu.Lock()
			delete(p.observers, id)
			p.mu.Unlock()
		})
	}
}

// Updates returns a channel holding the latest unread event and a cancel
// func that closes it.
func (p *Publisher) Updates() (<-chan Event, func()) {
	ch := make(chan Event, 1)

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := p.next
	p.next++
	p.channels[id] = ch
	p.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if _, ok := p.channels[id]; ok {
				delete(p.channels, id)
				close(ch)
			}
		})
	}
}

// Close closes every channel subscription and drops observers.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.closed = true
	for id, ch := range p.channels {
		delete(p.channels, id)
		close(ch)
	}
	p.observers = make(map[uint64]func(Event))
}

// offerLatest replaces any unread event in ch with ev.
func offerLatest(ch chan Event, ev Event) {
	for {
		select {
		case ch <- ev:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

func notify(fn func(Event), ev Event) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("mode observer panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	fn(ev)
}
