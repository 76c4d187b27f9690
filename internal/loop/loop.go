// Package loop is the frame driver: it measures wall time between frames,
// advances the frame clock, ticks the scheduler and notifies frame observers,
// once per frame, on a single goroutine.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"frameq/internal/clock"
	"frameq/internal/scheduler"
	logx "frameq/pkg/logx"
)

var (
	ErrRunning    = errors.New("loop: already running")
	ErrNotRunning = errors.New("loop: not running")
)

const (
	DefaultMaxFrameDelta = 250 * time.Millisecond
	defaultPostQueue     = 256
)

type Config struct {
	// TargetFPS caps the frame rate; 0 runs frames back to back.
	TargetFPS int
	// MaxFrameDelta clamps a single frame's wall delta (e.g. after the
	// process was suspended); 0 disables the clamp.
	MaxFrameDelta time.Duration
	// RegressionLogPerSec limits "clock went backwards" warnings.
	RegressionLogPerSec int
	// PostQueue is the capacity of the Post queue.
	PostQueue int
}

// Frame describes one completed frame.
type Frame struct {
	Index uint64
	Delta time.Duration
	Now   clock.VirtualTime
	Fired int
}

// FrameFunc observes frames on the loop goroutine. It must not block.
type FrameFunc func(f Frame)

// Stats is a goroutine-safe snapshot of loop progress.
type Stats struct {
	Running     bool          `json:"running"`
	Frames      uint64        `json:"frames"`
	LastFrameAt time.Time     `json:"last_frame_at"`
	LastDelta   time.Duration `json:"last_delta"`
	Clamped     uint64        `json:"clamped"`
	Regressions uint64        `json:"regressions"`
	TargetFPS   float64       `json:"target_fps"`
	PostDropped uint64        `json:"post_dropped"`
}

type Loop struct {
	clk   *clock.FrameClock
	sched *scheduler.Scheduler
	src   clock.Source
	log   logx.Logger

	observers []FrameFunc
	posts     chan func()

	pacer    *rate.Limiter
	regWarn  *rate.Limiter
	maxDelta atomic.Int64

	running atomic.Bool
	mu      sync.Mutex
	stopRun context.CancelFunc
	// stopped is closed when the current Run returns; nil when not running.
	stopped chan struct{}

	// last is only touched by the goroutine running frames.
	last time.Time

	frames      atomic.Uint64
	lastFrameAt atomic.Int64
	lastDelta   atomic.Int64
	clamped     atomic.Uint64
	regressions atomic.Uint64
	postDropped atomic.Uint64
}

func New(cfg Config, sched *scheduler.Scheduler, src clock.Source, log logx.Logger) *Loop {
	if sched == nil {
		sched = scheduler.New(clock.NewFrameClock())
	}
	if src == nil {
		src = clock.WallSource{}
	}
	if cfg.PostQueue <= 0 {
		cfg.PostQueue = defaultPostQueue
	}
	if cfg.RegressionLogPerSec <= 0 {
		cfg.RegressionLogPerSec = 1
	}
	l := &Loop{
		clk:     sched.Clock(),
		sched:   sched,
		src:     src,
		log:     log,
		posts:   make(chan func(), cfg.PostQueue),
		pacer:   rate.NewLimiter(fpsLimit(cfg.TargetFPS), 1),
		regWarn: rate.NewLimiter(rate.Limit(cfg.RegressionLogPerSec), 1),
	}
	l.maxDelta.Store(int64(cfg.MaxFrameDelta))
	return l
}

func fpsLimit(fps int) rate.Limit {
	if fps <= 0 {
		return rate.Inf
	}
	return rate.Limit(fps)
}

// Scheduler returns the scheduler ticked by this loop.
func (l *Loop) Scheduler() *scheduler.Scheduler { return l.sched }

// OnFrame registers an observer called after every frame, in registration
// order. Register observers before Run.
func (l *Loop) OnFrame(fn FrameFunc) {
	if fn != nil {
		l.observers = append(l.observers, fn)
	}
}

// SetTargetFPS changes the frame cap; safe from any goroutine.
func (l *Loop) SetTargetFPS(fps int) { l.pacer.SetLimit(fpsLimit(fps)) }

// SetMaxFrameDelta changes the per-frame delta clamp; safe from any goroutine.
func (l *Loop) SetMaxFrameDelta(d time.Duration) { l.maxDelta.Store(int64(d)) }

// IsRunning reports whether Run is active.
func (l *Loop) IsRunning() bool { return l.running.Load() }

// Run drives frames until ctx is done or Abort is called. It returns
// ctx.Err() on cancellation and nil after Abort.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.stopped != nil {
		l.mu.Unlock()
		return ErrRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	stopped := make(chan struct{})
	l.stopRun, l.stopped = cancel, stopped
	l.running.Store(true)
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.running.Store(false)
		l.stopRun, l.stopped = nil, nil
		l.mu.Unlock()
		close(stopped)
		cancel()
	}()

	if !l.log.IsZero() {
		l.log.Info("frame loop started", logx.Float64("target_fps", float64(l.pacer.Limit())))
	}
	l.last = l.src.Now()
	for {
		if err := l.pacer.Wait(runCtx); err != nil {
			break
		}
		now := l.src.Now()
		delta := now.Sub(l.last)
		l.last = now
		l.frame(delta)
	}

	if !l.log.IsZero() {
		l.log.Info("frame loop stopped", logx.Uint64("frames", l.frames.Load()))
	}
	return ctx.Err()
}

// Abort stops a running loop after the current frame.
func (l *Loop) Abort() {
	l.mu.Lock()
	stop := l.stopRun
	l.mu.Unlock()
	if stop != nil {
		stop()
	}
}

// Step runs one frame with the given wall delta on the caller's goroutine.
// It is meant for tests and replays and fails while Run is active.
func (l *Loop) Step(delta time.Duration) (Frame, error) {
	if l.running.Load() {
		return Frame{}, ErrRunning
	}
	return l.frame(delta), nil
}

// Post queues fn to run on the loop goroutine at the start of the next
// frame. It never blocks and reports false when the queue is full.
func (l *Loop) Post(fn func()) bool {
	if fn == nil {
		return true
	}
	select {
	case l.posts <- fn:
		return true
	default:
		l.postDropped.Add(1)
		return false
	}
}

// Call runs fn on the loop goroutine and waits for it to finish. If Run
// returns before fn starts, fn is dropped and Call reports ErrNotRunning;
// the same holds for ctx expiring first, with ctx.Err().
func (l *Loop) Call(ctx context.Context, fn func()) error {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped == nil {
		return ErrNotRunning
	}

	const (
		callQueued int32 = iota
		callStarted
		callDropped
	)
	var state atomic.Int32
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		if state.CompareAndSwap(callQueued, callStarted) {
			fn()
		}
	}

	select {
	case l.posts <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-stopped:
		return ErrNotRunning
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		state.CompareAndSwap(callQueued, callDropped)
		return ctx.Err()
	case <-stopped:
		if state.CompareAndSwap(callQueued, callDropped) {
			return ErrNotRunning
		}
		// fn ran on the final frame.
		<-done
		return nil
	}
}

// LastFrameAt returns the wall time of the last completed frame.
func (l *Loop) LastFrameAt() time.Time {
	ns := l.lastFrameAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (l *Loop) Stats() Stats {
	fps := float64(l.pacer.Limit())
	if l.pacer.Limit() == rate.Inf {
		fps = 0
	}
	return Stats{
		Running:     l.running.Load(),
		Frames:      l.frames.Load(),
		LastFrameAt: l.LastFrameAt(),
		LastDelta:   time.Duration(l.lastDelta.Load()),
		Clamped:     l.clamped.Load(),
		Regressions: l.regressions.Load(),
		TargetFPS:   fps,
		PostDropped: l.postDropped.Load(),
	}
}

func (l *Loop) frame(delta time.Duration) Frame {
	l.drainPosts()

	if delta < 0 {
		l.regressions.Add(1)
		if !l.log.IsZero() && l.regWarn.Allow() {
			l.log.Warn("wall clock went backwards; frame delta clamped to zero", logx.Duration("delta", delta))
		}
		delta = 0
	}
	if maxDelta := time.Duration(l.maxDelta.Load()); maxDelta > 0 && delta > maxDelta {
		l.clamped.Add(1)
		if !l.log.IsZero() {
			l.log.Debug("frame delta clamped", logx.Duration("delta", delta), logx.Duration("max", maxDelta))
		}
		delta = maxDelta
	}

	l.clk.AdvanceBy(delta)
	fired := l.sched.Tick()

	f := Frame{
		Index: l.frames.Add(1),
		Delta: delta,
		Now:   l.clk.Now(),
		Fired: fired,
	}
	l.lastDelta.Store(int64(delta))
	l.lastFrameAt.Store(l.src.Now().UnixNano())

	for _, fn := range l.observers {
		fn(f)
	}
	return f
}

func (l *Loop) drainPosts() {
	for {
		select {
		case fn := <-l.posts:
			fn()
		default:
			return
		}
	}
}
