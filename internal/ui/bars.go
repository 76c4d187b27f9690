// Package ui renders cast and movement progress as terminal bars driven by
// frame observers.
package ui

import (
	"context"
	"io"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"frameq/internal/clock"
	"frameq/internal/game"
	"frameq/internal/loop"
)

const barTotal = 1000

// Bars mirrors a Caster and a Movement as progress bars. Observe and
// CastEnded run on the loop goroutine; Close runs after the loop stopped.
type Bars struct {
	p        *mpb.Progress
	caster   *game.Caster
	movement *game.Movement

	cast     *mpb.Bar
	castName string
	move     *mpb.Bar
	moveDue  clock.VirtualTime
	moveDir  game.Direction
}

func New(ctx context.Context, w io.Writer, caster *game.Caster, movement *game.Movement) *Bars {
	return &Bars{
		p: mpb.NewWithContext(ctx,
			mpb.WithOutput(w),
			mpb.WithWidth(64),
			mpb.WithRefreshRate(100*time.Millisecond),
		),
		caster:   caster,
		movement: movement,
	}
}

func barStyle() mpb.BarStyleComposer {
	return mpb.BarStyle().Lbound("╢").Filler("█").Tip("█").Padding("░").Rbound("╟")
}

func (b *Bars) newBar(name, done string) *mpb.Bar {
	return b.p.New(barTotal,
		barStyle(),
		mpb.BarRemoveOnComplete(),
		mpb.PrependDecorators(
			decor.Name(name, decor.WC{W: len(name) + 1, C: decor.DindentRight}),
			decor.OnComplete(decor.Percentage(decor.WC{W: 5}), done),
		),
		mpb.AppendDecorators(
			decor.OnAbort(decor.Elapsed(decor.ET_STYLE_GO, decor.WC{W: 4}), "interrupted"),
		),
	)
}

// Observe is a loop.FrameFunc.
func (b *Bars) Observe(loop.Frame) {
	if b.caster != nil {
		b.observeCast()
	}
	if b.movement != nil {
		b.observeMove()
	}
}

func (b *Bars) observeCast() {
	sp, casting := b.caster.Spell()
	if !casting {
		return
	}
	if b.cast == nil || b.castName != sp.Name {
		if b.cast != nil {
			b.cast.Abort(false)
		}
		b.castName = sp.Name
		b.cast = b.newBar("Casting "+sp.Name, "cast")
	}
	b.cast.SetCurrent(progress(b.caster.CastFraction()))
}

// CastEnded settles the current cast bar. Wire it into Caster.OnCastEnd.
func (b *Bars) CastEnded(spell game.Spell, interrupted bool) {
	if b.cast == nil || b.castName != spell.Name {
		return
	}
	if interrupted {
		b.cast.Abort(false)
	} else {
		b.cast.SetCurrent(barTotal)
	}
	b.cast = nil
	b.castName = ""
}

func (b *Bars) observeMove() {
	due, locked := b.movement.DueAt()
	dir := b.movement.Facing()
	// A step started from the unlock callback is already locked by the
	// time we look, so a new step shows up as a new due time or heading.
	if b.move != nil && (!locked || due != b.moveDue || dir != b.moveDir) {
		b.move.SetCurrent(barTotal)
		b.move = nil
	}
	if !locked {
		return
	}
	if b.move == nil {
		b.moveDue, b.moveDir = due, dir
		b.move = b.newBar("Moving "+dir.String(), "arrived")
	}
	b.move.SetCurrent(progress(1 - b.movement.Fraction()))
}

// Close aborts bars still running and waits for the final render.
func (b *Bars) Close() {
	if b.cast != nil {
		b.cast.Abort(false)
		b.cast = nil
	}
	if b.move != nil {
		b.move.Abort(false)
		b.move = nil
	}
	b.p.Wait()
}

func progress(frac float64) int64 {
	v := int64(frac * barTotal)
	if v >= barTotal {
		// Completion is left to CastEnded / unlock so the bar never
		// finishes ahead of the event.
		return barTotal - 1
	}
	if v < 0 {
		return 0
	}
	return v
}
