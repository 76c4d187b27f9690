package clock

import (
	"math"
	"testing"
	"time"
)

func TestFrameClockAdvance(t *testing.T) {
	t.Parallel()
	c := NewFrameClock()
	if c.Now() != 0 {
		t.Fatalf("Now() = %d, want 0", c.Now())
	}
	if got := c.Advance(300); got != 300 {
		t.Fatalf("Advance(300) = %d, want 300", got)
	}
	c.Advance(200)
	if c.Now() != 500 {
		t.Fatalf("Now() = %d, want 500", c.Now())
	}
}

func TestFrameClockRejectsRegression(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		delta float64
	}{
		{name: "negative", delta: -16},
		{name: "nan", delta: math.NaN()},
		{name: "inf", delta: math.Inf(1)},
		{name: "neg inf", delta: math.Inf(-1)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewFrameClock()
			c.Advance(100)
			if got := c.Advance(tt.delta); got != 0 {
				t.Fatalf("Advance(%v) = %d, want 0", tt.delta, got)
			}
			if c.Now() != 100 {
				t.Fatalf("Now() = %d, want 100", c.Now())
			}
			if c.Regressions() != 1 {
				t.Fatalf("Regressions() = %d, want 1", c.Regressions())
			}
		})
	}
}

func TestFrameClockCarriesFractions(t *testing.T) {
	t.Parallel()
	c := NewFrameClock()
	// 60 frames of 1000/60 ms must land on exactly one second.
	for i := 0; i < 60; i++ {
		c.AdvanceBy(time.Second / 60)
	}
	if c.Now() != 999 && c.Now() != 1000 {
		t.Fatalf("Now() = %d, want ~1000", c.Now())
	}
	c.Advance(0.5)
	c.Advance(0.5)
	if c.Now() < 1000 {
		t.Fatalf("Now() = %d, want >= 1000", c.Now())
	}
}

func TestManualSource(t *testing.T) {
	t.Parallel()
	start := time.Unix(1700000000, 0)
	m := NewManualSource(start)
	m.Add(16 * time.Millisecond)
	if got := m.Now().Sub(start); got != 16*time.Millisecond {
		t.Fatalf("elapsed = %v, want 16ms", got)
	}
	var _ Source = WallSource{}
}

func TestVirtualTimeDuration(t *testing.T) {
	t.Parallel()
	if got := VirtualTime(1500).Duration(); got != 1500*time.Millisecond {
		t.Fatalf("Duration() = %v, want 1.5s", got)
	}
}

func TestFrameClockSaturates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		deltas []float64
	}{
		{name: "huge float", deltas: []float64{100, 1e19}},
		{name: "max float", deltas: []float64{math.MaxFloat64}},
		{name: "wrap by sum", deltas: []float64{float64(1 << 61), float64(1 << 61), float64(1 << 61), float64(1 << 61)}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := NewFrameClock()
			prev := c.Now()
			for _, d := range tt.deltas {
				c.Advance(d)
				if c.Now() < prev {
					t.Fatalf("Advance(%v) moved time backward: %d -> %d", d, prev, c.Now())
				}
				prev = c.Now()
			}
			if c.Now() != MaxVirtualTime {
				t.Fatalf("Now() = %d, want MaxVirtualTime", c.Now())
			}
			if got := c.Advance(1); got != 0 || c.Now() != MaxVirtualTime {
				t.Fatalf("Advance(1) at max = %d (now %d), want 0 at max", got, c.Now())
			}
			if c.Regressions() != 0 {
				t.Fatalf("Regressions() = %d, want 0", c.Regressions())
			}
		})
	}
}

func TestAddSaturating(t *testing.T) {
	t.Parallel()
	if got := VirtualTime(10).AddSaturating(5); got != 15 {
		t.Fatalf("AddSaturating = %d, want 15", got)
	}
	if got := (MaxVirtualTime - 3).AddSaturating(10); got != MaxVirtualTime {
		t.Fatalf("AddSaturating near max = %d, want MaxVirtualTime", got)
	}
}
