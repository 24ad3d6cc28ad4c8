// Package mode tracks whether the session has a usable index (smart) or not
// (dumb) and coordinates the background tasks that move it between the two.
package mode

import (
	"fmt"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// State is an immutable snapshot of the reentrant dumb/smart flag.
// Dumb == (Counter > 0) always holds; Generation increases on every change.
type State struct {
	Dumb       bool  `json:"dumb"`
	Counter    int   `json:"counter"`
	Generation int64 `json:"generation"`
}

// Smart is the initial state of a session that starts indexed.
var Smart = State{}

// Seeded returns the initial state of a session that starts with n units of
// outstanding work.
func Seeded(n int) State {
	if n <= 0 {
		return Smart
	}
	return State{Dumb: true, Counter: n}
}

// Increment returns the state with one more unit of dumb work.
func (s State) Increment() State {
	return State{Dumb: true, Counter: s.Counter + 1, Generation: s.Generation + 1}
}

// Decrement returns the state with one unit of dumb work less.
// Decrementing a smart state is an invariant violation.
func (s State) Decrement() (State, error) {
	if s.Counter <= 0 {
		return s, moderr.InvariantError("dumb counter decremented below zero")
	}
	c := s.Counter - 1
	return State{Dumb: c > 0, Counter: c, Generation: s.Generation + 1}, nil
}

// Crosses reports whether moving to next flips between smart and dumb.
func (s State) Crosses(next State) bool {
	return s.Dumb != next.Dumb
}

// String implements fmt.Stringer.
func (s State) String() string {
	name := "smart"
	if s.Dumb {
		name = "dumb"
	}
	return fmt.Sprintf("%s(counter=%d, gen=%d)", name, s.Counter, s.Generation)
}
