package app

import (
	"time"

	"frameq/internal/config"
	"frameq/internal/eventbus"
	"frameq/internal/game"
	"frameq/internal/ui"
	logx "frameq/pkg/logx"
)

// demo keeps the consumers busy: it casts the configured spells in a loop,
// walks in a square and ducks the volume while a cast is in progress.
type demo struct {
	w      *world
	spells []game.Spell
	next   int

	moveTicks float64
	steps     int
	fade      time.Duration

	bus  eventbus.Bus
	bars *ui.Bars
	log  logx.Logger
}

var walkPattern = []game.Direction{game.East, game.South, game.West, game.North, game.NorthEast, game.SouthWest}

func newDemo(cfg *config.DemoConfig, fade time.Duration, w *world, bus eventbus.Bus, log logx.Logger) *demo {
	d := &demo{w: w, moveTicks: cfg.MovementTicks, fade: fade, bus: bus, log: log}
	for _, sp := range cfg.Spells {
		d.spells = append(d.spells, game.Spell{Name: sp.Name, CastTicks: sp.CastTicks})
	}
	w.caster.OnCastEnd(d.castEnded)
	w.movement.OnUnlock(d.stepNext)
	return d
}

func (d *demo) start() {
	d.castNext()
	d.stepNext()
}

func (d *demo) castNext() {
	if len(d.spells) == 0 {
		return
	}
	sp := d.spells[d.next%len(d.spells)]
	d.next++
	if err := d.w.caster.BeginCast(sp); err != nil {
		if !d.log.IsZero() {
			d.log.Warn("cast rejected", logx.String("spell", sp.Name), logx.Err(err))
		}
		return
	}
	_ = d.w.fader.FadeTo(0.3, d.fade)
	d.publish(eventbus.TypeCastBegin, sp.Name)
}

func (d *demo) castEnded(sp game.Spell, interrupted bool) {
	if d.bars != nil {
		d.bars.CastEnded(sp, interrupted)
	}
	d.publish(eventbus.TypeCastEnd, sp.Name)
	if interrupted {
		return
	}
	_ = d.w.fader.FadeTo(1, d.fade)
	d.castNext()
}

func (d *demo) stepNext() {
	if d.moveTicks <= 0 {
		return
	}
	dir := walkPattern[d.steps%len(walkPattern)]
	d.steps++
	if err := d.w.movement.Step(dir, d.moveTicks); err != nil && !d.log.IsZero() {
		d.log.Warn("step rejected", logx.Err(err))
	}
}

func (d *demo) publish(typ, spell string) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: spell})
}
