package app

import (
	"context"
	"fmt"
	"time"

	"frameq/internal/eventbus"
	"frameq/internal/scheduler"
	logx "frameq/pkg/logx"
)

// busHooks publishes scheduler lifecycle events. Publish never blocks, so
// the hooks are safe on the loop goroutine.
func busHooks(bus eventbus.Bus) scheduler.Hooks {
	if bus == nil {
		return scheduler.Hooks{}
	}
	pub := func(typ string) func(scheduler.EventInfo) {
		return func(info scheduler.EventInfo) {
			bus.Publish(eventbus.Event{Type: typ, Time: time.Now(), Data: info})
		}
	}
	return scheduler.Hooks{
		OnScheduled: pub(eventbus.TypeScheduled),
		OnFired:     pub(eventbus.TypeFired),
		OnCompleted: pub(eventbus.TypeCompleted),
		OnCancelled: pub(eventbus.TypeCancelled),
		OnPanic: func(info scheduler.EventInfo, r any) {
			bus.Publish(eventbus.Event{Type: eventbus.TypePanic, Time: time.Now(), Data: panicInfo{EventInfo: info, Value: fmt.Sprint(r)}})
		},
	}
}

type panicInfo struct {
	scheduler.EventInfo
	Value string
}

// logEvents writes bus traffic to the log: panics at warn, the rest at
// debug to keep busy schedulers quiet.
func logEvents(ctx context.Context, bus eventbus.Bus, log logx.Logger) {
	events, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			switch d := e.Data.(type) {
			case panicInfo:
				log.Warn("event callback panicked", logx.Uint64("seq", d.Seq), logx.Int64("due_at", int64(d.DueAt)), logx.String("panic", d.Value))
			case scheduler.EventInfo:
				if log.Enabled(logx.LevelDebug) {
					log.Debug("event", logx.String("type", e.Type), logx.Uint64("seq", d.Seq), logx.Int64("due_at", int64(d.DueAt)), logx.Int64("now", int64(d.Now)))
				}
			default:
				log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	}
}
