// Package pause coordinates the process-wide halt of turn generation
// that protects the shared completion provider.
package pause

import (
	"sync"
	"time"

	"github.com/vchat-meme-blip/polymarket-cafe/internal/clock"
)

// State is a point-in-time view of the controller.
type State struct {
	Paused bool      `json:"paused"`
	Until  time.Time `json:"until,omitempty"`
	Reason string    `json:"reason,omitempty"`
}

// Remaining is how long the pause still has to run at now.
func (s State) Remaining(now time.Time) time.Duration {
	if !s.Paused || !now.Before(s.Until) {
		return 0
	}
	return s.Until.Sub(now)
}

// Controller holds the paused flag and resume deadline. When the
// deadline passes, or Resume is called, the resume handler runs once.
type Controller struct {
	clock clock.Clock

	mu       sync.Mutex
	state    State
	timer    *clock.Timer
	epoch    uint64
	onResume func()
}

// New returns an unpaused controller.
func New(c clock.Clock) *Controller {
	return &Controller{clock: c}
}

// SetResumeHandler registers f to run after every pause ends. f runs
// without the controller lock held.
func (p *Controller) SetResumeHandler(f func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResume = f
}

// Pause halts generation for at least d. started is true only when the
// controller was not already paused; an active pause is extended when
// the new deadline is later and otherwise left alone.
func (p *Controller) Pause(d time.Duration, reason string) (until time.Time, started bool) {
	return p.PauseUntil(p.clock.Now().Add(d), reason)
}

// PauseUntil is Pause with an absolute deadline.
func (p *Controller) PauseUntil(until time.Time, reason string) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	active := p.state.Paused && now.Before(p.state.Until)
	if active && !until.After(p.state.Until) {
		return p.state.Until, false
	}

	p.state = State{Paused: true, Until: until, Reason: reason}
	p.armLocked(until.Sub(now))
	return until, !active
}

// Resume ends the pause immediately. It reports whether a pause was in
// effect.
func (p *Controller) Resume() bool {
	p.mu.Lock()
	if !p.state.Paused {
		p.mu.Unlock()
		return false
	}
	p.timer.Stop()
	p.timer = nil
	p.epoch++
	p.state = State{}
	handler := p.onResume
	p.mu.Unlock()

	if handler != nil {
		handler()
	}
	return true
}

// State returns the current state. An expired pause whose timer has
// not yet fired reads as not paused.
func (p *Controller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.Paused && !p.clock.Now().Before(p.state.Until) {
		return State{}
	}
	return p.state
}

// Active reports whether a pause is in effect and how long remains.
func (p *Controller) Active() (bool, time.Duration) {
	s := p.State()
	return s.Paused, s.Remaining(p.clock.Now())
}

func (p *Controller) armLocked(d time.Duration) {
	p.timer.Stop()
	p.epoch++
	epoch := p.epoch
	p.timer = p.clock.AfterFunc(d, func() { p.expire(epoch) })
}

func (p *Controller) expire(epoch uint64) {
	p.mu.Lock()
	if epoch != p.epoch || !p.state.Paused {
		p.mu.Unlock()
		return
	}
	p.timer = nil
	p.state = State{}
	handler := p.onResume
	p.mu.Unlock()

	if handler != nil {
		handler()
	}
}
