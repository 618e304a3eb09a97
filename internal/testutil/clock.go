package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeClock is a manually driven clock for polling tests.
//
// Sleep never blocks: it advances the clock by the requested duration (plus
// any configured per-sleep drift) and runs the OnSleep hook, which tests use to
// mutate a document "while" a poll is waiting.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	sleeps  []time.Duration
	drift   time.Duration
	onSleep func(n int)
}

// NewFakeClock creates a clock frozen at a fixed instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the clock by d and returns immediately.
// A done context is honored before advancing.
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.now = c.now.Add(d + c.drift)
	c.sleeps = append(c.sleeps, d)
	n := len(c.sleeps)
	hook := c.onSleep
	c.mu.Unlock()

	if hook != nil {
		hook(n)
	}
	return nil
}

// Advance moves the clock forward without recording a sleep.
// Tests use it to simulate slow queries.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetDrift adds d to every subsequent sleep, modelling timer lateness.
func (c *FakeClock) SetDrift(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.drift = d
}

// OnSleep registers a hook called after each sleep with the 1-based sleep count.
func (c *FakeClock) OnSleep(fn func(n int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onSleep = fn
}

// Sleeps returns the durations passed to Sleep, in order.
func (c *FakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Duration, len(c.sleeps))
	copy(out, c.sleeps)
	return out
}

// Elapsed returns how far the clock has moved since creation.
func (c *FakeClock) Elapsed() time.Duration {
	return c.Now().Sub(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
}
