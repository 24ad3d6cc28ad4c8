package mode

import "sync"

// Boundary serializes smart/dumb transitions against readers of committed
// index state. Transitions take it exclusively; read actions share it.
type Boundary struct {
	mu sync.RWMutex
}

// Exclusive runs fn with no concurrent readers or transitions.
func (b *Boundary) Exclusive(fn func() error) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fn()
}

// Read runs fn while no transition is in progress.
func (b *Boundary) Read(fn func()) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fn()
}
