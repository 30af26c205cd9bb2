package testutil

import (
	"testing"
	"time"
)

func TestClockAdvance(t *testing.T) {
	start := time.Unix(1000, 0)
	c := NewClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Fatalf("Now() = %v, want %v", got, start)
	}

	c.Advance(time.Minute)
	if got := c.Now(); !got.Equal(start.Add(time.Minute)) {
		t.Fatalf("Now() after Advance = %v, want %v", got, start.Add(time.Minute))
	}

	// Advancing never rewinds.
	c.Advance(0)
	if got := c.Now(); got.Before(start.Add(time.Minute)) {
		t.Fatalf("clock moved backwards: %v", got)
	}
}
