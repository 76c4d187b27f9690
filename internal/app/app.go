package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"frameq/internal/clock"
	"frameq/internal/config"
	"frameq/internal/eventbus"
	"frameq/internal/runtime/sdnotify"
	"frameq/internal/runtime/supervisor"
	"frameq/internal/storage"
	"frameq/internal/trace"
	"frameq/internal/ui"
	logx "frameq/pkg/logx"
)

// stallAfter is how long without a frame before the loop counts as stuck
// for the systemd watchdog.
const stallAfter = 2 * time.Second

type App struct {
	cfgPath string

	cfgm *config.ConfigManager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	world    *world
	recorder *trace.Recorder
	bars     *ui.Bars
	sd       *sdnotify.Notifier
	jobs     *cronJobs

	barsCancel context.CancelFunc
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	st, err := cfg.Resolve()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	var store storage.Store
	if sc, enabled := mapStorageConfig(st); enabled {
		store, err = storage.Open(sc, log)
		if err != nil {
			_ = logSvc.Close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	w := newWorld(worldOptions{
		loop:         mapLoopConfig(st),
		tickInterval: st.TickInterval,
		compactMin:   st.CompactMin,
		demo:         cfg.Demo,
		fade:         st.FadeDuration,
		source:       clock.WallSource{},
		bus:          bus,
		log:          log,
	})

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		world:   w,
		sd:      sdnotify.New(cfg.Systemd.Notify, log.With(logx.String("comp", "systemd"))),
	}

	if st.TraceEnabled && store != nil {
		a.recorder = trace.NewRecorder(store, st.BatchSize, log.With(logx.String("comp", "trace")))
		w.loop.OnFrame(a.recorder.Observe)
	}

	if cfg.Demo != nil && cfg.Demo.ProgressBars {
		ctx, cancel := context.WithCancel(context.Background())
		a.bars = ui.New(ctx, os.Stdout, w.caster, w.movement)
		a.barsCancel = cancel
		w.attachBars(a.bars)
	}
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	started := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		if cfg.Trace.Enabled && a.recorder == nil {
			return errors.New("trace.enabled: recording can only be turned on at startup")
		}
		return nil
	})

	if a.recorder != nil {
		st, _ := started.Resolve()
		id, err := a.recorder.Start(ctx, storage.Session{
			Label:         "run",
			TickInterval:  st.TickInterval,
			MaxFrameDelta: st.MaxFrameDelta,
		})
		if err != nil {
			return fmt.Errorf("start trace: %w", err)
		}
		a.log.Info("recording frames", logx.String("session", id))
		a.sup.Go("trace.writer", a.recorder.Run)
	}

	jobs, err := newCronJobs(a, started)
	if err != nil {
		return err
	}
	a.jobs = jobs

	a.world.start()
	a.sup.Go("loop", a.world.loop.Run)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		logEvents(c, a.bus, a.log.With(logx.String("comp", "events")))
	})
	a.sup.Go0("cron", a.jobs.run)
	a.sup.Go0("config.watch", func(c context.Context) { _ = a.cfgm.Watch(c) })
	a.sup.Go0("config.reload", a.reloadLoop)
	if started.Systemd.Watchdog {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			if err := a.sd.Watchdog(c, a.loopAlive); err != nil {
				a.log.Warn("systemd watchdog disabled", logx.Err(err))
			}
		})
	}

	a.sd.Ready()
	a.sd.Status("running")
	a.log.Info("started", logx.String("config", a.cfgPath))
	return nil
}

func (a *App) loopAlive() bool {
	last := a.world.loop.LastFrameAt()
	return !last.IsZero() && time.Since(last) < stallAfter
}

// reloadLoop applies published config changes. Bursts are coalesced so only
// the newest config is applied.
func (a *App) reloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	st, err := newCfg.Resolve()
	if err != nil {
		// Watch validates before publishing; this only guards direct callers.
		a.log.Warn("config reload ignored", logx.Err(err))
		return
	}
	a.sd.Reloading()

	a.logs.Apply(mapLogConfig(newCfg))

	l := a.world.loop
	l.SetTargetFPS(st.TargetFPS)
	l.SetMaxFrameDelta(st.MaxFrameDelta)

	if oldCfg.Scheduler.TickInterval != newCfg.Scheduler.TickInterval {
		if a.recorder != nil {
			a.log.Warn("tick interval changed while recording; replays use the interval the session started with")
		}
		sched := a.world.sched
		if !l.Post(func() { sched.SetTickInterval(st.TickInterval) }) {
			a.log.Warn("loop queue full; tick interval not applied")
		}
	}

	if a.jobs != nil {
		a.jobs.reschedule(st)
	}

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config sections need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	a.sd.Ready()
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sd.Stopping()

	a.sup.Cancel()

	step := func(name string, max time.Duration, fn func(context.Context) error) {
		start := time.Now()
		a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

		stepCtx := ctx
		if max > 0 {
			// respect the caller's deadline; never extend it
			if dl, ok := ctx.Deadline(); ok {
				if rem := time.Until(dl); rem < max {
					max = rem
				}
			}
			var cancel context.CancelFunc
			stepCtx, cancel = context.WithTimeout(ctx, max)
			defer cancel()
		}

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- fmt.Errorf("panic in stop step %s: %v", name, r)
				}
			}()
			done <- fn(stepCtx)
		}()

		select {
		case err := <-done:
			if err != nil {
				a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
			}
			a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
		case <-stepCtx.Done():
			a.log.Warn("stop step deadline reached (continuing)",
				logx.String("name", name),
				logx.Duration("elapsed", time.Since(start)),
			)
		}
	}

	// The loop goroutine must be gone before anything it feeds is closed.
	step("supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	step("bars", time.Second, func(context.Context) error {
		if a.bars != nil {
			a.barsCancel()
			a.bars.Close()
		}
		return nil
	})
	step("trace", 3*time.Second, func(c context.Context) error {
		if a.recorder != nil {
			return a.recorder.Close(c)
		}
		return nil
	})
	step("storage", time.Second, func(context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})

	ls := a.world.loop.Stats()
	a.log.Info("stopped", logx.Uint64("frames", ls.Frames), logx.Uint64("bus_dropped", a.bus.Dropped()))
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
