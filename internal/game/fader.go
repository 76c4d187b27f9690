package game

import (
	"time"

	"frameq/internal/loop"
	"frameq/internal/scheduler"
)

// Fader ramps a volume linearly toward a target over virtual time.
type Fader struct {
	sched  *scheduler.Scheduler
	handle *scheduler.Handle
	from   float64
	to     float64
	vol    float64
	last   float64
	onVol  func(float64)
}

func NewFader(sched *scheduler.Scheduler, volume float64) *Fader {
	v := clamp01(volume)
	return &Fader{sched: sched, vol: v, last: v}
}

// OnVolume sets a sink told about volume changes by Observe.
func (f *Fader) OnVolume(fn func(float64)) { f.onVol = fn }

// FadeTo starts a fade from the current volume to target over d. A zero d
// sets the volume at once.
func (f *Fader) FadeTo(target float64, d time.Duration) error {
	target = clamp01(target)
	cur := f.Volume()
	if d <= 0 {
		f.handle.Cancel()
		f.handle = nil
		f.vol = target
		return nil
	}
	h, err := f.sched.Schedule(f.done, d)
	if err != nil {
		return err
	}
	f.handle.Cancel()
	f.handle = h
	f.from, f.to = cur, target
	return nil
}

func (f *Fader) done() {
	f.vol = f.to
	f.handle = nil
}

func (f *Fader) Fading() bool { return f.handle != nil }

// Volume samples the fade at the current virtual time.
func (f *Fader) Volume() float64 {
	if f.handle == nil {
		return f.vol
	}
	p := 1 - f.handle.RemainingFraction()
	return f.from + (f.to-f.from)*p
}

// Observe is a loop.FrameFunc pushing the sampled volume to the sink when
// it changes.
func (f *Fader) Observe(loop.Frame) {
	v := f.Volume()
	if v == f.last {
		return
	}
	f.last = v
	if f.onVol != nil {
		f.onVol(v)
	}
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
