// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0
//
// Derived from bureau lib/clock/fake.go: Advance steps to each deadline
// and the helpers Pending and NextDeadline were added.

package clock

import (
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called.
//
// FakeClock is safe for concurrent use by multiple goroutines.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// FakeClock is a deterministic Clock for testing.
//
// AfterFunc callbacks are invoked synchronously during Advance in
// deadline order. A callback registered with d <= 0 fires on the next
// Advance call (including Advance(0)), never inside AfterFunc itself,
// so callers may hold their own locks while scheduling.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	seq     uint64
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	seq      uint64

	// callback is set for AfterFunc waiters, channel for tickers.
	callback func()
	channel  chan time.Time
	interval time.Duration

	stopped bool
	fired   bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// AfterFunc schedules f to be called once the clock has been advanced
// by at least d.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d < 0 {
		d = 0
	}
	c.seq++
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		seq:      c.seq,
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			return true
		},
	}
}

// NewTicker returns a Ticker that fires every d of fake time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	c.seq++
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		seq:      c.seq,
		channel:  channel,
		interval: d,
	}
	c.waiters = append(c.waiters, waiter)

	return &Ticker{
		C: channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Advance moves the clock forward by d and fires every timer whose
// deadline falls within the new time, in deadline order. Before each
// timer fires the clock is stepped to its deadline, so Now inside a
// callback reports the deadline and timers registered by callbacks are
// measured from it. Follow-ups due within the advance fire in the same
// call.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()

	for {
		waiter, at := c.nextExpired(target)
		if waiter == nil {
			break
		}
		if waiter.callback != nil {
			waiter.callback()
			continue
		}
		select {
		case waiter.channel <- at:
		default:
		}
	}

	c.mu.Lock()
	if c.current.Before(target) {
		c.current = target
	}
	c.mu.Unlock()
}

// Pending returns the number of AfterFunc callbacks that have neither
// fired nor been stopped.
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, waiter := range c.waiters {
		if waiter.callback != nil && !waiter.stopped && !waiter.fired {
			n++
		}
	}
	return n
}

// NextDeadline reports how far in the future the earliest pending
// AfterFunc callback is due.
func (c *FakeClock) NextDeadline() (time.Duration, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var next time.Time
	found := false
	for _, waiter := range c.waiters {
		if waiter.callback == nil || waiter.stopped || waiter.fired {
			continue
		}
		if !found || waiter.deadline.Before(next) {
			next = waiter.deadline
			found = true
		}
	}
	if !found {
		return 0, false
	}
	return next.Sub(c.current), true
}

// nextExpired removes the earliest waiter due by target, steps the
// clock to its deadline and returns it with the fire time. Tickers are
// rescheduled rather than removed.
func (c *FakeClock) nextExpired(target time.Time) (*fakeWaiter, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		next  *fakeWaiter
		index int
	)
	remaining := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			remaining = append(remaining, waiter)
		}
	}
	c.waiters = remaining

	for i, waiter := range c.waiters {
		if waiter.deadline.After(target) {
			continue
		}
		if next == nil || waiter.deadline.Before(next.deadline) ||
			(waiter.deadline.Equal(next.deadline) && waiter.seq < next.seq) {
			next, index = waiter, i
		}
	}
	if next == nil {
		return nil, time.Time{}
	}

	at := next.deadline
	if at.After(c.current) {
		c.current = at
	}
	if next.interval > 0 {
		next.deadline = next.deadline.Add(next.interval)
	} else {
		next.fired = true
		c.waiters = append(c.waiters[:index], c.waiters[index+1:]...)
	}
	return next, c.current
}
