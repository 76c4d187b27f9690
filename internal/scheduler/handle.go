package scheduler

import (
	"time"

	"frameq/internal/clock"
)

// Handle is the caller's view of one scheduled event. It is both a
// cancellation token and a progress query.
//
// Once the event has fired or been cancelled the handle is stale: mutators
// do nothing and queries report zero. A nil *Handle behaves as a stale one.
type Handle struct {
	s *Scheduler
	e *event
}

func (h *Handle) stale() bool {
	return h == nil || h.s == nil || h.e == nil || h.e.fired || h.e.cancelled
}

// Cancelled reports whether the event was cancelled.
func (h *Handle) Cancelled() bool { return h != nil && h.e != nil && h.e.cancelled }

// Fired reports whether the callback has run, by Tick or by Complete.
func (h *Handle) Fired() bool { return h != nil && h.e != nil && h.e.fired }

// Pending reports whether the event is still waiting to fire.
func (h *Handle) Pending() bool { return !h.stale() }

// Cancel stops the event from ever firing. It is idempotent and has no effect
// on an event that already fired.
func (h *Handle) Cancel() {
	if h.stale() {
		return
	}
	h.s.cancel(h.e)
}

// Complete runs the callback now instead of at its due time and removes the
// event from the queue. It does nothing if the event already fired or was
// cancelled.
func (h *Handle) Complete() {
	if h.stale() {
		return
	}
	h.s.complete(h.e)
}

// ExtendTo cancels this event and schedules its callback delay from now,
// returning the handle of the new event. Callers must replace their stored
// handle with the returned one.
//
// An invalid delay leaves the current event untouched. On a stale handle
// ExtendTo does nothing and returns h.
func (h *Handle) ExtendTo(delay time.Duration) (*Handle, error) {
	ms, err := durationMillis(delay)
	if err != nil {
		return h, err
	}
	return h.extend(ms)
}

// ExtendToTicks is ExtendTo measured in server ticks.
func (h *Handle) ExtendToTicks(ticks float64) (*Handle, error) {
	if h.stale() {
		return h, nil
	}
	ms, err := h.s.ticksMillis(ticks)
	if err != nil {
		return h, err
	}
	return h.extend(ms)
}

func (h *Handle) extend(ms clock.VirtualTime) (*Handle, error) {
	if h.stale() {
		return h, nil
	}
	s, fn := h.s, h.e.fn
	s.cancel(h.e)
	return s.schedule(fn, ms)
}

// DueAt returns the virtual time at which the event becomes due.
func (h *Handle) DueAt() clock.VirtualTime {
	if h == nil || h.e == nil {
		return 0
	}
	return h.e.dueAt
}

// Delay returns the delay the event was scheduled with.
func (h *Handle) Delay() time.Duration {
	if h == nil || h.e == nil {
		return 0
	}
	return h.e.delay.Duration()
}

// RemainingMillis returns the virtual milliseconds until the event is due.
// It can be negative between the clock passing the due time and the next
// Tick. Stale handles report 0.
func (h *Handle) RemainingMillis() int64 {
	if h.stale() {
		return 0
	}
	return int64(h.e.dueAt - h.s.clk.Now())
}

// Remaining is RemainingMillis as a time.Duration.
func (h *Handle) Remaining() time.Duration {
	return time.Duration(h.RemainingMillis()) * time.Millisecond
}

// RemainingSeconds is RemainingMillis in seconds.
func (h *Handle) RemainingSeconds() float64 {
	return float64(h.RemainingMillis()) / 1000
}

// RemainingFraction returns the share of this event's delay still
// outstanding, from 1 right after scheduling down to 0 at the due time.
// Zero-delay events and stale handles report 0.
func (h *Handle) RemainingFraction() float64 {
	if h.stale() || h.e.delay <= 0 {
		return 0
	}
	f := float64(h.e.dueAt-h.s.clk.Now()) / float64(h.e.delay)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
