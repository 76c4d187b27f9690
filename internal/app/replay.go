package app

import (
	"context"
	"time"

	"frameq/internal/clock"
	"frameq/internal/config"
	"frameq/internal/loop"
	"frameq/internal/storage"
	"frameq/internal/trace"
	logx "frameq/pkg/logx"
)

// ReplaySummary is a finished replay plus the consumer state it ended in.
type ReplaySummary struct {
	trace.ReplayResult
	Casts int
	Steps int
}

// Replay re-runs a recorded session against the demo workload from the
// config at cfgPath. Recorded deltas are already clamped, so the replay
// loop runs without a clamp; the tick interval comes from the session.
func Replay(ctx context.Context, cfgPath, sessionID string, log logx.Logger) (ReplaySummary, error) {
	var sum ReplaySummary
	cfg, err := config.NewConfigManager(cfgPath).Parse()
	if err != nil {
		return sum, err
	}
	st, err := cfg.Resolve()
	if err != nil {
		return sum, err
	}
	store, err := OpenStore(cfgPath, log)
	if err != nil {
		return sum, err
	}
	defer store.Close()

	sess, frames, err := trace.LoadSession(ctx, store, sessionID)
	if err != nil {
		return sum, err
	}
	tick := sess.TickInterval
	if tick <= 0 {
		tick = st.TickInterval
	}

	w := newWorld(worldOptions{
		loop:         loop.Config{PostQueue: st.PostQueue},
		tickInterval: tick,
		compactMin:   st.CompactMin,
		demo:         cfg.Demo,
		fade:         st.FadeDuration,
		source:       clock.NewManualSource(time.Time{}),
		log:          log,
	})
	w.start()

	res, err := trace.ReplayFrames(ctx, sess, frames, w.loop)
	sum.ReplayResult = res
	if w.demo != nil {
		sum.Casts = w.demo.next
		sum.Steps = w.demo.steps
	}
	return sum, err
}

// Sessions lists recorded sessions from the store configured at cfgPath.
func Sessions(ctx context.Context, cfgPath string, log logx.Logger) ([]storage.Session, error) {
	store, err := OpenStore(cfgPath, log)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.Sessions(ctx)
}
