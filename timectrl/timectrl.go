package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source used by the scanner. Components that sleep or
// timestamp depend on it instead of the time package so tests can run
// without wall-clock delays.
type Clock interface {
	// Now returns the current time.
	Now() time.Time
	// After returns a channel that receives the current time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// Sleep blocks for d on clock, returning early with ctx.Err() if ctx ends first.
func Sleep(ctx context.Context, clock Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	select {
	case <-clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealClock is backed by the wall clock.
type RealClock struct{}

// Now implements Clock.
func (RealClock) Now() time.Time { return time.Now() }

// After implements Clock.
func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ManualClock is a Clock whose time only moves when something waits on it.
// Every After call advances the clock by d, fires immediately and is
// recorded so tests can assert on the sequence of waits.
type ManualClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

// NewManualClock returns a ManualClock starting at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now implements Clock.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// After implements Clock.
func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	now := c.now
	c.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- now
	return ch
}

// Advance moves the clock forward by d without recording a wait.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// Sleeps returns a copy of every duration waited on so far.
func (c *ManualClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

// TimeController invokes registered listeners on a fixed tick until its
// context ends. The scanner uses it for housekeeping that runs beside the
// scan loop.
type TimeController struct {
	mu        sync.RWMutex
	Tick      time.Duration
	clock     Clock
	listeners []func(time.Time)
}

// NewTimeController constructs a controller ticking every tick on clock.
func NewTimeController(clock Clock, tick time.Duration) *TimeController {
	if clock == nil {
		clock = RealClock{}
	}
	return &TimeController{Tick: tick, clock: clock}
}

// AddListener registers a callback invoked on every tick.
func (tc *TimeController) AddListener(fn func(time.Time)) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.listeners = append(tc.listeners, fn)
}

// Start runs the controller in a separate goroutine. The returned channel is
// closed once ctx is done and the last tick has been delivered.
func (tc *TimeController) Start(ctx context.Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if err := Sleep(ctx, tc.clock, tc.Tick); err != nil {
				return
			}
			now := tc.clock.Now()

			tc.mu.RLock()
			listeners := append([]func(time.Time){}, tc.listeners...)
			tc.mu.RUnlock()

			for _, fn := range listeners {
				fn(now)
			}
		}
	}()
	return done
}
