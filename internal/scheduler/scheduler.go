package scheduler

import (
	"fmt"
	"math"
	"runtime/debug"
	"time"

	"frameq/internal/clock"
	logx "frameq/pkg/logx"
)

// maxDelayMillis rejects float delays too large to convert exactly.
const maxDelayMillis = float64(math.MaxInt64 / 4)

// Scheduler owns the pending events of one game session.
type Scheduler struct {
	clk *clock.FrameClock
	log logx.Logger

	hooks Hooks

	queue eventQueue
	seq   uint64

	// live counts events that are neither fired nor cancelled.
	live int
	// cancelledQueued counts cancelled events still waiting in the queue.
	cancelledQueued int

	tickInterval time.Duration
	compactMin   int

	ticking bool
	held    []*event

	stats Stats
}

type Option func(*Scheduler)

func WithLogger(log logx.Logger) Option {
	return func(s *Scheduler) { s.log = log }
}

// WithHooks installs lifecycle hooks. The value is copied.
func WithHooks(h Hooks) Option {
	return func(s *Scheduler) { s.hooks = h }
}

// WithTickInterval sets the server tick length used by ScheduleTicks.
func WithTickInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.tickInterval = d
		}
	}
}

// WithCompactMin sets the queue size from which cancelled events are purged
// eagerly once they make up more than half of the queue. Zero or less
// disables eager compaction.
func WithCompactMin(n int) Option {
	return func(s *Scheduler) { s.compactMin = n }
}

// New returns a scheduler reading virtual time from clk.
func New(clk *clock.FrameClock, opts ...Option) *Scheduler {
	if clk == nil {
		clk = clock.NewFrameClock()
	}
	s := &Scheduler{
		clk:          clk,
		tickInterval: DefaultTickInterval,
		compactMin:   DefaultCompactMin,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Clock returns the frame clock the scheduler reads.
func (s *Scheduler) Clock() *clock.FrameClock { return s.clk }

// Now returns the current virtual time.
func (s *Scheduler) Now() clock.VirtualTime { return s.clk.Now() }

// TickInterval returns the server tick length used by ScheduleTicks.
func (s *Scheduler) TickInterval() time.Duration { return s.tickInterval }

// SetTickInterval changes the server tick length. Events already scheduled
// keep their due time. Non-positive values are ignored.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d <= 0 || d == s.tickInterval {
		return
	}
	if !s.log.IsZero() {
		s.log.Info("tick interval changed", logx.Duration("from", s.tickInterval), logx.Duration("to", d))
	}
	s.tickInterval = d
}

// Schedule runs fn once delay of virtual time has elapsed. Delays are
// truncated to whole milliseconds; a zero delay fires on the next Tick.
func (s *Scheduler) Schedule(fn func(), delay time.Duration) (*Handle, error) {
	ms, err := durationMillis(delay)
	if err != nil {
		return nil, err
	}
	return s.schedule(fn, ms)
}

// ScheduleMillis is Schedule with a delay in (possibly fractional)
// milliseconds. NaN, infinite and negative delays are rejected.
func (s *Scheduler) ScheduleMillis(fn func(), ms float64) (*Handle, error) {
	v, err := floatMillis(ms)
	if err != nil {
		return nil, err
	}
	return s.schedule(fn, v)
}

// ScheduleTicks schedules fn a number of server ticks from now, where one
// tick lasts TickInterval.
func (s *Scheduler) ScheduleTicks(fn func(), ticks float64) (*Handle, error) {
	ms, err := s.ticksMillis(ticks)
	if err != nil {
		return nil, err
	}
	return s.schedule(fn, ms)
}

func (s *Scheduler) ticksMillis(ticks float64) (clock.VirtualTime, error) {
	if math.IsNaN(ticks) || math.IsInf(ticks, 0) || ticks < 0 {
		return 0, fmt.Errorf("%w: %v ticks", ErrInvalidDelay, ticks)
	}
	return floatMillis(ticks * float64(s.tickInterval) / float64(time.Millisecond))
}

func (s *Scheduler) schedule(fn func(), delay clock.VirtualTime) (*Handle, error) {
	if fn == nil {
		return nil, ErrNilCallback
	}
	s.seq++
	e := &event{
		fn:    fn,
		dueAt: s.clk.Now().AddSaturating(delay),
		delay: delay,
		seq:   s.seq,
		index: -1,
	}
	s.queue.push(e)
	s.live++
	s.stats.Scheduled++
	s.hooks.emitScheduled(s.info(e))
	return &Handle{s: s, e: e}, nil
}

// Tick fires, in due order, every pending event whose due time has been
// reached, and returns how many callbacks ran. Events with equal due times
// fire in the order they were scheduled. Events scheduled by callbacks during
// this Tick wait for the next one. A nested call from inside a callback is a
// no-op.
func (s *Scheduler) Tick() int {
	if s.ticking {
		return 0
	}
	s.ticking = true
	defer func() { s.ticking = false }()

	s.stats.Ticks++
	now := s.clk.Now()
	limit := s.seq
	fired := 0

	for {
		e := s.queue.peek()
		if e == nil || e.dueAt > now {
			break
		}
		s.queue.pop()

		if e.cancelled {
			s.cancelledQueued--
			s.discard(e)
			continue
		}
		if e.seq > limit {
			s.held = append(s.held, e)
			continue
		}

		e.fired = true
		s.live--
		s.stats.Fired++
		s.invoke(e)
		s.hooks.emitFired(s.info(e))
		fired++
	}

	for i, e := range s.held {
		// A held event may have been completed by a later callback.
		if !e.fired {
			s.queue.push(e)
		}
		s.held[i] = nil
	}
	s.held = s.held[:0]

	return fired
}

// Step advances the clock by deltaMillis and ticks. It is the whole frame
// driver contract in one call.
func (s *Scheduler) Step(deltaMillis float64) int {
	s.clk.Advance(deltaMillis)
	return s.Tick()
}

// Pending returns the number of events that are neither fired nor cancelled.
func (s *Scheduler) Pending() int { return s.live }

// CancelAll cancels every pending event and returns how many were cancelled.
func (s *Scheduler) CancelAll() int {
	events := make([]*event, 0, len(s.queue)+len(s.held))
	events = append(events, s.queue...)
	events = append(events, s.held...)

	compactMin := s.compactMin
	s.compactMin = 0
	n := 0
	for _, e := range events {
		if s.cancel(e) {
			n++
		}
	}
	s.compactMin = compactMin

	if !s.ticking && s.cancelledQueued > 0 {
		s.compact()
	}
	return n
}

// Stats returns counters and the current queue shape.
func (s *Scheduler) Stats() Stats {
	st := s.stats
	st.Now = s.clk.Now()
	st.Pending = s.live
	st.Queued = len(s.queue) + len(s.held)
	st.TickInterval = s.tickInterval
	return st
}

func (s *Scheduler) cancel(e *event) bool {
	if e.fired || e.cancelled {
		return false
	}
	e.cancelled = true
	s.live--
	s.cancelledQueued++
	s.stats.Cancelled++
	s.hooks.emitCancelled(s.info(e))
	s.maybeCompact()
	return true
}

func (s *Scheduler) complete(e *event) bool {
	if e.fired || e.cancelled {
		return false
	}
	e.fired = true
	s.queue.remove(e)
	s.live--
	s.stats.Completed++
	s.invoke(e)
	s.hooks.emitCompleted(s.info(e))
	return true
}

func (s *Scheduler) maybeCompact() {
	if s.ticking || s.compactMin <= 0 || len(s.queue) < s.compactMin {
		return
	}
	if s.cancelledQueued*2 <= len(s.queue) {
		return
	}
	dropped := s.compact()
	if !s.log.IsZero() {
		s.log.Debug("queue compacted", logx.Int("dropped", dropped), logx.Int("queued", len(s.queue)))
	}
}

// compact purges cancelled events now instead of at their due time.
func (s *Scheduler) compact() int {
	dropped := s.queue.compact(s.discard)
	s.cancelledQueued -= dropped
	return dropped
}

func (s *Scheduler) discard(e *event) {
	s.stats.Discarded++
	s.hooks.emitDiscarded(s.info(e))
}

func (s *Scheduler) invoke(e *event) {
	defer func() {
		if r := recover(); r != nil {
			s.stats.Panics++
			if !s.log.IsZero() {
				s.log.Error("scheduled callback panicked",
					logx.Uint64("seq", e.seq),
					logx.Int64("due_at", int64(e.dueAt)),
					logx.Any("panic", r),
					logx.Stack(string(debug.Stack())),
				)
			}
			s.hooks.emitPanic(s.info(e), r)
		}
	}()
	e.fn()
}

func (s *Scheduler) info(e *event) EventInfo {
	return EventInfo{Seq: e.seq, DueAt: e.dueAt, Delay: e.delay, Now: s.clk.Now()}
}

func durationMillis(d time.Duration) (clock.VirtualTime, error) {
	if d < 0 {
		return 0, fmt.Errorf("%w: %s", ErrInvalidDelay, d)
	}
	return clock.VirtualTime(d / time.Millisecond), nil
}

func floatMillis(ms float64) (clock.VirtualTime, error) {
	if math.IsNaN(ms) || math.IsInf(ms, 0) || ms < 0 || ms > maxDelayMillis {
		return 0, fmt.Errorf("%w: %vms", ErrInvalidDelay, ms)
	}
	return clock.VirtualTime(math.Floor(ms)), nil
}
