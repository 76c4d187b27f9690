// Package clock provides the virtual time source driven by the frame loop
// and the wall-clock sources the loop measures frame deltas with.
package clock

import (
	"math"
	"time"
)

// VirtualTime is a count of milliseconds since the clock was created.
// It never decreases.
type VirtualTime int64

// MaxVirtualTime is where virtual time saturates instead of wrapping.
const MaxVirtualTime = VirtualTime(math.MaxInt64)

// exactFloatLimit is the largest step converted from float64 without
// rounding concerns; anything bigger saturates.
const exactFloatLimit = 1 << 62

// Duration converts v to a time.Duration.
func (v VirtualTime) Duration() time.Duration { return time.Duration(v) * time.Millisecond }

// FrameClock is the single source of virtual time. It is advanced once per
// frame by the frame driver and read by the scheduler and its handles.
//
// FrameClock is not safe for concurrent use; it belongs to the goroutine that
// runs the frame loop.
type FrameClock struct {
	now VirtualTime

	// carry holds the sub-millisecond remainder of previous advances.
	carry float64

	regressions uint64
}

// NewFrameClock returns a clock at virtual time zero.
func NewFrameClock() *FrameClock { return &FrameClock{} }

// Now returns the current virtual time.
func (c *FrameClock) Now() VirtualTime { return c.now }

// Advance moves virtual time forward by deltaMillis and returns the number of
// whole milliseconds applied.
//
// Negative, NaN and infinite deltas are clamped to zero and counted as
// regressions. Fractions of a millisecond are carried into the next call.
// Time saturates at MaxVirtualTime.
func (c *FrameClock) Advance(deltaMillis float64) VirtualTime {
	if math.IsNaN(deltaMillis) || math.IsInf(deltaMillis, 0) || deltaMillis < 0 {
		c.regressions++
		return 0
	}
	total := c.carry + deltaMillis
	whole := math.Floor(total)
	if whole >= exactFloatLimit || VirtualTime(whole) > MaxVirtualTime-c.now {
		step := MaxVirtualTime - c.now
		c.now = MaxVirtualTime
		c.carry = 0
		return step
	}
	c.carry = total - whole
	step := VirtualTime(whole)
	c.now += step
	return step
}

// AddSaturating returns v+d, pinned at MaxVirtualTime. d must be >= 0.
func (v VirtualTime) AddSaturating(d VirtualTime) VirtualTime {
	if d > MaxVirtualTime-v {
		return MaxVirtualTime
	}
	return v + d
}

// AdvanceBy is Advance for a time.Duration.
func (c *FrameClock) AdvanceBy(d time.Duration) VirtualTime {
	return c.Advance(float64(d) / float64(time.Millisecond))
}

// Regressions returns how many deltas were rejected by Advance.
func (c *FrameClock) Regressions() uint64 { return c.regressions }
