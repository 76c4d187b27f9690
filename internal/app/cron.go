package app

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"frameq/internal/config"
	"frameq/internal/eventbus"
	"frameq/internal/scheduler"
	logx "frameq/pkg/logx"
)

const (
	flushTimeout = 5 * time.Second
	statsTimeout = time.Second
)

// cronJobs owns the periodic trace flush and stats log.
type cronJobs struct {
	a *App
	c *cron.Cron

	mu            sync.Mutex
	flushSpec     string
	flushID       cron.EntryID
	statsSpec     string
	statsID       cron.EntryID
	ctx           context.Context
	cancelJobCtxs context.CancelFunc
}

type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if l.log.Enabled(logx.LevelTrace) {
		l.log.Trace(msg, logx.Any("kv", keysAndValues))
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, logx.Err(err), logx.Any("kv", keysAndValues))
}

var _ cron.Logger = cronLogger{}

func newCronJobs(a *App, cfg *config.Config) (*cronJobs, error) {
	st, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}
	log := cronLogger{log: a.log.With(logx.String("comp", "cron"))}
	ctx, cancel := context.WithCancel(context.Background())
	j := &cronJobs{
		a: a,
		c: cron.New(
			cron.WithParser(config.CronParser()),
			cron.WithLogger(log),
			cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
		),
		ctx:           ctx,
		cancelJobCtxs: cancel,
	}
	j.reschedule(st)
	return j, nil
}

// run starts the cron runner and stops it, waiting for running jobs, when
// ctx is done.
func (j *cronJobs) run(ctx context.Context) {
	j.c.Start()
	<-ctx.Done()
	stopped := j.c.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(flushTimeout):
		j.cancelJobCtxs()
		<-stopped.Done()
	}
	j.cancelJobCtxs()
}

// reschedule swaps job entries whose spec changed.
func (j *cronJobs) reschedule(st config.Settings) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.a.recorder != nil && st.FlushSchedule != j.flushSpec {
		j.flushID = j.replace(j.flushID, st.FlushSchedule, j.flush)
		j.flushSpec = st.FlushSchedule
	}
	if st.StatsSchedule != j.statsSpec {
		if st.StatsSchedule == "" {
			j.c.Remove(j.statsID)
			j.statsID = 0
		} else {
			j.statsID = j.replace(j.statsID, st.StatsSchedule, j.stats)
		}
		j.statsSpec = st.StatsSchedule
	}
}

func (j *cronJobs) replace(old cron.EntryID, spec string, fn func()) cron.EntryID {
	id, err := j.c.AddFunc(spec, fn)
	if err != nil {
		// Specs are validated with the same parser before they get here.
		j.a.log.Warn("cron schedule rejected", logx.String("spec", spec), logx.Err(err))
		return old
	}
	if old != 0 {
		j.c.Remove(old)
	}
	return id
}

func (j *cronJobs) flush() {
	ctx, cancel := context.WithTimeout(j.ctx, flushTimeout)
	defer cancel()
	rec := j.a.recorder
	before := rec.Stats().Written
	if err := rec.Flush(ctx); err != nil {
		j.a.log.Warn("trace flush failed", logx.Err(err))
		return
	}
	if n := rec.Stats().Written - before; n > 0 {
		j.a.bus.Publish(eventbus.Event{Type: eventbus.TypeTraceFlushed, Time: time.Now(), Data: n})
	}
}

// stats logs loop, scheduler and trace counters. Scheduler stats are read
// on the loop goroutine.
func (j *cronJobs) stats() {
	ctx, cancel := context.WithTimeout(j.ctx, statsTimeout)
	defer cancel()

	var ss scheduler.Stats
	sched := j.a.world.sched
	if err := j.a.world.loop.Call(ctx, func() { ss = sched.Stats() }); err != nil {
		j.a.log.Debug("scheduler stats unavailable", logx.Err(err))
		return
	}
	ls := j.a.world.loop.Stats()
	fields := []logx.Field{
		logx.Uint64("frames", ls.Frames),
		logx.Duration("last_delta", ls.LastDelta),
		logx.Uint64("clamped", ls.Clamped),
		logx.Uint64("regressions", ls.Regressions),
		logx.Int64("virtual_ms", int64(ss.Now)),
		logx.Int("pending", ss.Pending),
		logx.Uint64("fired", ss.Fired),
		logx.Uint64("cancelled", ss.Cancelled),
		logx.Uint64("panics", ss.Panics),
		logx.Uint64("bus_dropped", j.a.bus.Dropped()),
	}
	if j.a.recorder != nil {
		rs := j.a.recorder.Stats()
		fields = append(fields, logx.Uint64("trace_written", rs.Written), logx.Int("trace_buffered", rs.Buffered))
	}
	j.a.log.Info("stats", fields...)
}
