package timectrl

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestManualClockAdvanceAndSet(t *testing.T) {
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	c := NewManualClock(start)

	c.Advance(16 * time.Millisecond)
	if got, want := c.Now(), start.Add(16*time.Millisecond); !got.Equal(want) {
		t.Fatalf("Now() = %v, want %v", got, want)
	}

	newNow := start.Add(42 * time.Second)
	c.Set(newNow)
	if got := c.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
}

func TestWallClockMoves(t *testing.T) {
	var c Clock = WallClock{}
	a := c.Now()
	time.Sleep(time.Millisecond)
	if !c.Now().After(a) {
		t.Fatalf("wall clock did not advance")
	}
}

func TestTickerStopsAfterDuration(t *testing.T) {
	tk := NewTicker(5 * time.Millisecond)
	var calls atomic.Int32
	tk.AddListener(func(time.Time) { calls.Add(1) })

	done := tk.Start(context.Background(), 15*time.Millisecond)
	<-done

	if got := calls.Load(); got != 3 {
		t.Fatalf("listener called %d times, want 3", got)
	}
	if got := tk.Ticks(); got != 3 {
		t.Fatalf("Ticks() = %d, want 3", got)
	}
}

func TestTickerStopsOnCancel(t *testing.T) {
	tk := NewTicker(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	done := tk.Start(ctx, 0)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("ticker did not stop after cancel")
	}
}

func TestTickerListenerAddedDuringTick(t *testing.T) {
	tk := NewTicker(5 * time.Millisecond)
	var first, late atomic.Int32
	tk.AddListener(func(time.Time) {
		if first.Add(1) == 1 {
			tk.AddListener(func(time.Time) { late.Add(1) })
		}
	})

	<-tk.Start(context.Background(), 15*time.Millisecond)

	if got := first.Load(); got != 3 {
		t.Fatalf("first listener called %d times, want 3", got)
	}
	if got := late.Load(); got != 2 {
		t.Fatalf("listener added on tick 1 called %d times, want 2", got)
	}
}
