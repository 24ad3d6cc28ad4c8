package async

import (
	"context"
	"sync"
	"time"

	moderr "github.com/Aman-CERP/indexmode/internal/errors"
)

// Snapshot is an immutable copy of an indicator's state.
type Snapshot struct {
	Text            string  `json:"text,omitempty"`
	Fraction        float64 `json:"fraction"`
	Canceled        bool    `json:"canceled"`
	Suspended       bool    `json:"suspended"`
	SuspendedReason string  `json:"suspended_reason,omitempty"`
	ElapsedSeconds  int     `json:"elapsed_seconds"`
}

// Indicator tracks the progress of one running task and carries its
// cancellation and suspension state. Tasks poll CheckCanceled at safe points:
// it blocks while the indicator is suspended and fails once it is canceled.
type Indicator struct {
	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool

	mu        sync.Mutex
	cond      *sync.Cond
	suspended bool
	reason    string
	text      string
	fraction  float64
	startTime time.Time
}

// NewIndicator creates an indicator canceled together with parent.
func NewIndicator(parent context.Context) *Indicator {
	ctx, cancel := context.WithCancel(parent)
	p := &Indicator{
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
	p.cond = sync.NewCond(&p.mu)
	// Wake suspended waiters on cancellation.
	p.stop = context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.cond.Broadcast()
		p.mu.Unlock()
	})
	return p
}

// Context returns the context canceled together with the indicator.
func (p *Indicator) Context() context.Context {
	return p.ctx
}

// Cancel cancels the indicator. Suspended waiters return immediately.
func (p *Indicator) Cancel() {
	p.cancel()
}

// IsCanceled reports whether the indicator was canceled.
func (p *Indicator) IsCanceled() bool {
	return p.ctx.Err() != nil
}

// CheckCanceled blocks while the indicator is suspended and returns a
// cancellation error once it has been canceled.
func (p *Indicator) CheckCanceled() error {
	p.mu.Lock()
	for p.suspended && p.ctx.Err() == nil {
		p.cond.Wait()
	}
	p.mu.Unlock()

	if err := p.ctx.Err(); err != nil {
		return moderr.CanceledError(err)
	}
	return nil
}

// Suspend pauses the indicator, recording reason. Suspending an already
// suspended indicator replaces the reason.
func (p *Indicator) Suspend(reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = true
	p.reason = reason
}

// Resume lifts the suspension and wakes waiters.
func (p *Indicator) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.suspended = false
	p.reason = ""
	p.cond.Broadcast()
}

// IsSuspended reports whether the indicator is suspended.
func (p *Indicator) IsSuspended() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.suspended
}

// SuspendedReason returns the current suspension reason, or "" when running.
func (p *Indicator) SuspendedReason() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reason
}

// SetText updates the human-readable progress text.
func (p *Indicator) SetText(text string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.text = text
}

// SetFraction updates completion in [0,1]. Out-of-range values are clamped.
func (p *Indicator) SetFraction(fraction float64) {
	switch {
	case fraction < 0:
		fraction = 0
	case fraction > 1:
		fraction = 1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fraction = fraction
}

// Snapshot returns an immutable copy of the current state.
func (p *Indicator) Snapshot() Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Snapshot{
		Text:            p.text,
		Fraction:        p.fraction,
		Canceled:        p.ctx.Err() != nil,
		Suspended:       p.suspended,
		SuspendedReason: p.reason,
		ElapsedSeconds:  int(time.Since(p.startTime).Seconds()),
	}
}

// Release frees the resources tied to the parent context. The indicator
// counts as canceled afterwards.
func (p *Indicator) Release() {
	p.stop()
	p.cancel()
}
