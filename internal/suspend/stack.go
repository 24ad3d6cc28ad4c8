// Package suspend layers a LIFO stack of pause requests over one attached
// suspension primitive, so nested heavy activities can pause the background
// worker without stepping on each other.
package suspend

import (
	"log/slog"
	"sync"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
	"github.com/Aman-CERP/indexmode/internal/logging"
)

// Suspender is the primitive the stack drives. *async.Indicator implements it.
type Suspender interface {
	Suspend(reason string)
	Resume()
	IsSuspended() bool
	SuspendedReason() string
}

// Token is one pause request. Release it when the activity ends.
type Token struct {
	stack    *Stack
	reason   string
	released bool
}

// Reason returns the reason the token was pushed with.
func (t *Token) Reason() string { return t.reason }

// Release removes the request. Releasing twice is a no-op.
func (t *Token) Release() {
	t.stack.release(t)
}

// Stack is a LIFO list of pause reasons.
//
// While the stack owns the attached primitive's suspension, the primitive's
// reason is always the top entry. A primitive that was already suspended by
// someone else is left alone.
type Stack struct {
	mu       sync.Mutex
	entries  []*Token
	attached Suspender
	owned    bool
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{}
}

// Push records reason and suspends the attached primitive with it.
func (s *Stack) Push(reason string) *Token {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := &Token{stack: s, reason: reason}
	s.entries = append(s.entries, t)

	if s.attached != nil && (s.owned || !s.attached.IsSuspended()) {
		s.attached.Suspend(reason)
		s.owned = true
	}
	return t
}

func (s *Stack) release(t *Token) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.released {
		return
	}
	t.released = true

	idx := -1
	for i, e := range s.entries {
		if e == t {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}
	wasTop := idx == len(s.entries)-1
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)

	if !wasTop || s.attached == nil || !s.owned {
		return
	}
	if s.attached.SuspendedReason() != t.reason {
		// Someone else re-labelled the suspension; leave it to them.
		s.owned = false
		return
	}

	s.attached.Resume()
	s.owned = false
	if n := len(s.entries); n > 0 {
		s.attached.Suspend(s.entries[n-1].reason)
		s.owned = true
	}
}

// Attach connects p for the duration of one execution cycle and suspends it
// immediately if the stack is non-empty. Only one primitive may be attached
// at a time. The returned func detaches p.
func (s *Stack) Attach(p Suspender) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached != nil {
		err := moderr.New(moderr.ErrCodeAlreadyAttached, "suspension primitive already attached", nil)
		logging.Invariant("suspension stack attach while attached")
		return nil, err
	}

	s.attached = p
	s.owned = false
	if n := len(s.entries); n > 0 && !p.IsSuspended() {
		p.Suspend(s.entries[n-1].reason)
		s.owned = true
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.attached == p {
				s.attached = nil
				s.owned = false
			}
		})
	}, nil
}

// ForceResume resumes the attached primitive if the stack suspended it.
// Entries stay on the stack and apply again to the next attached primitive.
func (s *Stack) ForceResume() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached != nil && s.owned {
		slog.Debug("force-resuming suspended task", slog.Int("entries", len(s.entries)))
		s.attached.Resume()
		s.owned = false
	}
}

// Reasons returns the pending reasons, bottom first.
func (s *Stack) Reasons() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	reasons := make([]string, len(s.entries))
	for i, e := range s.entries {
		reasons[i] = e.reason
	}
	return reasons
}

// Len returns the number of pending requests.
func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
