package loop

import (
	"context"
	"errors"
	"testing"
	"time"

	"frameq/internal/clock"
	"frameq/internal/scheduler"
	logx "frameq/pkg/logx"
)

func newTestLoop(cfg Config) (*Loop, *scheduler.Scheduler) {
	sched := scheduler.New(clock.NewFrameClock())
	src := clock.NewManualSource(time.Unix(0, 0))
	return New(cfg, sched, src, logx.Nop()), sched
}

func TestStepAdvancesAndTicks(t *testing.T) {
	t.Parallel()
	l, sched := newTestLoop(Config{})
	fired := false
	if _, err := sched.Schedule(func() { fired = true }, 100*time.Millisecond); err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}

	f, err := l.Step(60 * time.Millisecond)
	if err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if f.Fired != 0 || fired {
		t.Fatalf("after 60ms fired = %d (%v), want 0", f.Fired, fired)
	}
	f, _ = l.Step(40 * time.Millisecond)
	if f.Fired != 1 || !fired {
		t.Fatalf("after 100ms fired = %d (%v), want 1", f.Fired, fired)
	}
	if f.Now != 100 || f.Index != 2 {
		t.Fatalf("frame = %+v, want Now=100 Index=2", f)
	}
}

func TestStepClampsDelta(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		max       time.Duration
		delta     time.Duration
		wantDelta time.Duration
		clamped   uint64
		regressed uint64
	}{
		{name: "within max", max: 100 * time.Millisecond, delta: 16 * time.Millisecond, wantDelta: 16 * time.Millisecond},
		{name: "over max", max: 100 * time.Millisecond, delta: 5 * time.Second, wantDelta: 100 * time.Millisecond, clamped: 1},
		{name: "no max", delta: 5 * time.Second, wantDelta: 5 * time.Second},
		{name: "negative", max: 100 * time.Millisecond, delta: -10 * time.Millisecond, wantDelta: 0, regressed: 1},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, _ := newTestLoop(Config{MaxFrameDelta: tt.max})
			f, err := l.Step(tt.delta)
			if err != nil {
				t.Fatalf("Step() error = %v", err)
			}
			if f.Delta != tt.wantDelta {
				t.Fatalf("Delta = %v, want %v", f.Delta, tt.wantDelta)
			}
			if f.Now != clock.VirtualTime(tt.wantDelta.Milliseconds()) {
				t.Fatalf("Now = %d, want %d", f.Now, tt.wantDelta.Milliseconds())
			}
			st := l.Stats()
			if st.Clamped != tt.clamped || st.Regressions != tt.regressed {
				t.Fatalf("stats = %+v, want clamped=%d regressions=%d", st, tt.clamped, tt.regressed)
			}
		})
	}
}

func TestSetMaxFrameDelta(t *testing.T) {
	t.Parallel()
	l, _ := newTestLoop(Config{})
	l.SetMaxFrameDelta(20 * time.Millisecond)
	f, _ := l.Step(time.Second)
	if f.Delta != 20*time.Millisecond {
		t.Fatalf("Delta = %v, want 20ms", f.Delta)
	}
}

func TestObserversRunInOrder(t *testing.T) {
	t.Parallel()
	l, _ := newTestLoop(Config{})
	var got []string
	l.OnFrame(func(Frame) { got = append(got, "a") })
	l.OnFrame(nil)
	l.OnFrame(func(Frame) { got = append(got, "b") })
	l.Step(time.Millisecond)
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("observers = %v, want [a b]", got)
	}
}

func TestPostDrainsBeforeTick(t *testing.T) {
	t.Parallel()
	l, sched := newTestLoop(Config{PostQueue: 1})
	fired := false
	ok := l.Post(func() {
		sched.Schedule(func() { fired = true }, 0)
	})
	if !ok {
		t.Fatal("Post() = false, want true")
	}
	if l.Post(func() {}) {
		t.Fatal("Post() on full queue = true, want false")
	}
	if l.Stats().PostDropped != 1 {
		t.Fatalf("PostDropped = %d, want 1", l.Stats().PostDropped)
	}
	f, _ := l.Step(0)
	if !fired || f.Fired != 1 {
		t.Fatalf("posted event fired = %v (%d), want fired in same frame", fired, f.Fired)
	}
}

func TestCallNotRunning(t *testing.T) {
	t.Parallel()
	l, _ := newTestLoop(Config{})
	if err := l.Call(context.Background(), func() {}); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("Call() error = %v, want ErrNotRunning", err)
	}
}

func TestRunAbort(t *testing.T) {
	t.Parallel()
	l, sched := newTestLoop(Config{TargetFPS: 1000})

	done := make(chan error, 1)
	go func() { done <- l.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for !l.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("loop did not start")
		}
		time.Sleep(time.Millisecond)
	}

	if err := l.Run(context.Background()); !errors.Is(err, ErrRunning) {
		t.Fatalf("second Run() error = %v, want ErrRunning", err)
	}
	if _, err := l.Step(time.Millisecond); !errors.Is(err, ErrRunning) {
		t.Fatalf("Step() while running error = %v, want ErrRunning", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var pending int
	if err := l.Call(ctx, func() {
		sched.Schedule(func() {}, time.Hour)
		pending = sched.Pending()
	}); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if pending != 1 {
		t.Fatalf("Pending() inside Call = %d, want 1", pending)
	}

	l.Abort()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() after Abort = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Abort")
	}
	if l.IsRunning() {
		t.Fatal("IsRunning() = true after Run returned")
	}
	if l.Stats().Frames == 0 {
		t.Fatal("Frames = 0, want at least one frame")
	}
}

func TestRunContextCancel(t *testing.T) {
	t.Parallel()
	l, _ := newTestLoop(Config{TargetFPS: 500})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestCallReturnsWhenRunStops(t *testing.T) {
	t.Parallel()
	// One frame per second: the first frame runs at once, then Run sits in
	// the pacer long enough for a Call to be queued behind it.
	l, _ := newTestLoop(Config{TargetFPS: 1})
	runDone := make(chan error, 1)
	go func() { runDone <- l.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for l.Stats().Frames == 0 {
		if time.Now().After(deadline) {
			t.Fatal("loop did not run its first frame")
		}
		time.Sleep(time.Millisecond)
	}

	ran := false
	callDone := make(chan error, 1)
	go func() { callDone <- l.Call(context.Background(), func() { ran = true }) }()
	for len(l.posts) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Call did not queue")
		}
		time.Sleep(time.Millisecond)
	}

	l.Abort()
	select {
	case err := <-callDone:
		if !errors.Is(err, ErrNotRunning) {
			t.Fatalf("Call() across Abort = %v, want ErrNotRunning", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Call still blocked after Abort")
	}
	if err := <-runDone; err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}

	// The dropped closure must not run on a later frame either.
	if _, err := l.Step(0); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if ran {
		t.Fatal("dropped Call closure ran")
	}
}
