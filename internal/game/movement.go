package game

import (
	"fmt"

	"frameq/internal/clock"
	"frameq/internal/scheduler"
)

type Direction int

const (
	North Direction = iota
	East
	South
	West
	NorthEast
	SouthEast
	SouthWest
	NorthWest
)

func (d Direction) Diagonal() bool { return d >= NorthEast && d <= NorthWest }

func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	case NorthEast:
		return "north-east"
	case SouthEast:
		return "south-east"
	case SouthWest:
		return "south-west"
	case NorthWest:
		return "north-west"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// Movement locks a creature while it walks one step. Turns requested
// during a step are buffered and applied when the lock lifts.
type Movement struct {
	sched      *scheduler.Scheduler
	handle     *scheduler.Handle
	facing     Direction
	turn       *Direction
	teleported bool
	onUnlock   func()
}

func NewMovement(sched *scheduler.Scheduler) *Movement {
	return &Movement{sched: sched, facing: South}
}

// OnUnlock sets a callback run when a movement lock lifts, e.g. to start
// the next buffered step.
func (m *Movement) OnUnlock(fn func()) { m.onUnlock = fn }

// Lock replaces any current lock with one lasting ticks server ticks.
func (m *Movement) Lock(ticks float64) error {
	h, err := m.sched.ScheduleTicks(m.unlock, ticks)
	if err != nil {
		return err
	}
	m.handle.Cancel()
	m.handle = h
	m.teleported = false
	return nil
}

// Step faces dir and locks for speedTicks, doubled for diagonal steps.
func (m *Movement) Step(dir Direction, speedTicks float64) error {
	ticks := speedTicks
	if dir.Diagonal() {
		ticks *= 2
	}
	if err := m.Lock(ticks); err != nil {
		return err
	}
	m.facing = dir
	return nil
}

// Teleport marks the current step as a jump: it stays locked but has no
// sliding offset.
func (m *Movement) Teleport() { m.teleported = true }

func (m *Movement) unlock() {
	if m.turn != nil {
		m.facing = *m.turn
		m.turn = nil
	}
	m.handle = nil
	m.teleported = false
	if m.onUnlock != nil {
		m.onUnlock()
	}
}

// Turn faces dir now, or after the current step if one is in progress.
func (m *Movement) Turn(dir Direction) {
	if m.IsLocked() {
		m.turn = &dir
		return
	}
	m.facing = dir
}

func (m *Movement) Facing() Direction { return m.facing }

func (m *Movement) IsLocked() bool { return m.handle != nil }

// DueAt is when the current lock lifts. ok is false when idle.
func (m *Movement) DueAt() (due clock.VirtualTime, ok bool) {
	if m.handle == nil {
		return 0, false
	}
	return m.handle.DueAt(), true
}

// Fraction is the share of the current step still to travel, used to offset
// the sprite back toward the tile it came from. It is 0 when idle or after
// a teleport.
func (m *Movement) Fraction() float64 {
	if m.handle == nil || m.teleported {
		return 0
	}
	return m.handle.RemainingFraction()
}
