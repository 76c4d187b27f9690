package game

import (
	"errors"
	"time"

	"frameq/internal/scheduler"
)

var ErrNoTicks = errors.New("game: spell has neither cast nor channel ticks")

// Spell is a castable action measured in server ticks. CastTicks wins over
// ChannelTicks when both are set.
type Spell struct {
	Name         string
	CastTicks    float64
	ChannelTicks float64
}

func (s Spell) ticks() float64 {
	if s.CastTicks > 0 {
		return s.CastTicks
	}
	return s.ChannelTicks
}

// CastEndFunc is told how a cast ended.
type CastEndFunc func(spell Spell, interrupted bool)

type Caster struct {
	sched  *scheduler.Scheduler
	handle *scheduler.Handle
	spell  Spell
	onEnd  CastEndFunc
}

func NewCaster(sched *scheduler.Scheduler) *Caster {
	return &Caster{sched: sched}
}

// OnCastEnd sets the callback run when a cast finishes or is interrupted.
func (c *Caster) OnCastEnd(fn CastEndFunc) { c.onEnd = fn }

// BeginCast starts casting spell, interrupting any cast in progress.
func (c *Caster) BeginCast(spell Spell) error {
	ticks := spell.ticks()
	if ticks <= 0 {
		return ErrNoTicks
	}
	h, err := c.sched.ScheduleTicks(c.endCast, ticks)
	if err != nil {
		return err
	}
	// The new cast is current before the old one's end callback runs, so
	// the callback may itself start (and interrupt) casts.
	prev, prevSpell := c.handle, c.spell
	c.handle, c.spell = h, spell
	if prev != nil {
		prev.Cancel()
		if c.onEnd != nil {
			c.onEnd(prevSpell, true)
		}
	}
	return nil
}

func (c *Caster) endCast() {
	spell := c.spell
	c.handle = nil
	c.spell = Spell{}
	if c.onEnd != nil {
		c.onEnd(spell, false)
	}
}

func (c *Caster) IsCasting() bool { return c.handle != nil }

// Spell returns the spell being cast.
func (c *Caster) Spell() (Spell, bool) {
	if c.handle == nil {
		return Spell{}, false
	}
	return c.spell, true
}

// CastFraction is the completed share of the current cast, 0 when idle.
func (c *Caster) CastFraction() float64 {
	if c.handle == nil {
		return 0
	}
	return 1 - c.handle.RemainingFraction()
}

// Remaining is the virtual time left on the current cast.
func (c *Caster) Remaining() time.Duration {
	if c.handle == nil {
		return 0
	}
	return max(c.handle.Remaining(), 0)
}

// Interrupt cancels the current cast. It reports whether one was active.
func (c *Caster) Interrupt() bool {
	if c.handle == nil {
		return false
	}
	spell := c.spell
	c.handle.Cancel()
	c.handle = nil
	c.spell = Spell{}
	if c.onEnd != nil {
		c.onEnd(spell, true)
	}
	return true
}

// Finish completes the current cast immediately.
func (c *Caster) Finish() bool {
	if c.handle == nil {
		return false
	}
	c.handle.Complete()
	return true
}

// Delay pushes the end of the current cast back by extra. The cast bar
// restarts from the new, longer remaining time.
func (c *Caster) Delay(extra time.Duration) error {
	if c.handle == nil {
		return nil
	}
	h, err := c.handle.ExtendTo(c.Remaining() + extra)
	if err != nil {
		return err
	}
	c.handle = h
	return nil
}
