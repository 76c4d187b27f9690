package app

import (
	"time"

	"frameq/internal/clock"
	"frameq/internal/config"
	"frameq/internal/eventbus"
	"frameq/internal/game"
	"frameq/internal/loop"
	"frameq/internal/scheduler"
	"frameq/internal/ui"
	logx "frameq/pkg/logx"
)

// world is everything that lives on the loop goroutine. The live app and
// replays build it the same way so a replay sees the same workload.
type world struct {
	sched    *scheduler.Scheduler
	loop     *loop.Loop
	caster   *game.Caster
	movement *game.Movement
	fader    *game.Fader
	demo     *demo
}

type worldOptions struct {
	loop         loop.Config
	tickInterval time.Duration
	compactMin   int
	demo         *config.DemoConfig
	fade         time.Duration
	source       clock.Source
	bus          eventbus.Bus
	log          logx.Logger
}

func newWorld(o worldOptions) *world {
	sched := scheduler.New(clock.NewFrameClock(),
		scheduler.WithLogger(o.log.With(logx.String("comp", "scheduler"))),
		scheduler.WithTickInterval(o.tickInterval),
		scheduler.WithCompactMin(o.compactMin),
		scheduler.WithHooks(busHooks(o.bus)),
	)
	w := &world{
		sched:    sched,
		loop:     loop.New(o.loop, sched, o.source, o.log.With(logx.String("comp", "loop"))),
		caster:   game.NewCaster(sched),
		movement: game.NewMovement(sched),
		fader:    game.NewFader(sched, 1),
	}
	w.loop.OnFrame(w.fader.Observe)
	if o.demo != nil {
		w.demo = newDemo(o.demo, o.fade, w, o.bus, o.log.With(logx.String("comp", "demo")))
	}
	return w
}

// start queues the demo workload for the first frame.
func (w *world) start() {
	if w.demo != nil {
		w.loop.Post(w.demo.start)
	}
}

func (w *world) attachBars(b *ui.Bars) {
	w.loop.OnFrame(b.Observe)
	if w.demo != nil {
		w.demo.bars = b
	}
}
