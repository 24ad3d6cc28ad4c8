package async

import "sync"

// Flag is a boolean that notifies subscribers when its value changes.
// Listeners run on the goroutine calling Set, after the value is stored, and
// must not block.
type Flag struct {
	mu    sync.Mutex
	value bool
	subs  map[uint64]func(bool)
	next  uint64
}

// NewFlag creates a flag with the given initial value.
func NewFlag(initial bool) *Flag {
	return &Flag{value: initial, subs: make(map[uint64]func(bool))}
}

// Get returns the current value.
func (f *Flag) Get() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.value
}

// Set stores v and notifies subscribers if the value changed.
// It returns whether the value changed.
func (f *Flag) Set(v bool) bool {
	f.mu.Lock()
	if f.value == v {
		f.mu.Unlock()
		return false
	}
	f.value = v
	listeners := make([]func(bool), 0, len(f.subs))
	for _, fn := range f.subs {
		listeners = append(listeners, fn)
	}
	f.mu.Unlock()

	for _, fn := range listeners {
		fn(v)
	}
	return true
}

// Subscribe registers fn for value changes and returns its unsubscribe func.
func (f *Flag) Subscribe(fn func(bool)) func() {
	f.mu.Lock()
	id := f.next
	f.next++
	f.subs[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.subs, id)
			f.mu.Unlock()
		})
	}
}
