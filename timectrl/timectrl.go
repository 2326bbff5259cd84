package timectrl

import (
	"context"
	"sync"
	"time"
)

// Clock is the time source the navigator reads once per frame. Swapping in
// a ManualClock makes maneuvers deterministic in tests.
type Clock interface {
	Now() time.Time
}

// WallClock reads the system clock.
type WallClock struct{}

// Now returns time.Now().
func (WallClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewManualClock constructs a clock stopped at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Set jumps the clock to t.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

// Ticker invokes registered listeners at a fixed wall-clock period. It
// drives both the render loop of cmd/navsim and the navigator's change
// notifications.
type Ticker struct {
	mu     sync.RWMutex
	Period time.Duration

	ticks     uint64
	listeners []func(time.Time)
}

// NewTicker constructs a ticker with the given period.
func NewTicker(period time.Duration) *Ticker {
	return &Ticker{Period: period}
}

// AddListener registers a callback invoked on every tick, in registration
// order, on the ticker's goroutine.
func (t *Ticker) AddListener(fn func(time.Time)) {
	t.mu.Lock()
	t.listeners = append(t.listeners, fn)
	t.mu.Unlock()
}

// Ticks returns how many ticks have been delivered.
func (t *Ticker) Ticks() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ticks
}

// Start runs the ticker in a separate goroutine until ctx is cancelled or,
// when duration > 0, until that much time has been ticked. It returns a
// channel that is closed when the ticker finishes.
func (t *Ticker) Start(ctx context.Context, duration time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		t.Run(ctx, duration)
	}()
	return done
}

// Run is the blocking form of Start.
func (t *Ticker) Run(ctx context.Context, duration time.Duration) {
	ticker := time.NewTicker(t.Period)
	defer ticker.Stop()

	elapsed := time.Duration(0)
	for {
		if duration > 0 && elapsed >= duration {
			return
		}
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed += t.Period

			t.mu.Lock()
			t.ticks++
			listeners := append([]func(time.Time){}, t.listeners...)
			t.mu.Unlock()

			for _, fn := range listeners {
				fn(now)
			}
		}
	}
}
