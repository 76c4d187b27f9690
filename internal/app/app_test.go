package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"frameq/internal/eventbus"
	"frameq/internal/scheduler"
	"frameq/internal/storage"
	logx "frameq/pkg/logx"
)

const testConfig = `
logging:
  level: warn
  console: false
loop:
  target_fps: 250
scheduler:
  tick_interval: 10ms
storage:
  driver: file
  path: %s
trace:
  enabled: true
  batch_size: 8
  flush_schedule: "@every 1s"
demo:
  movement_ticks: 1
  fade_duration: 15ms
  spells:
    - name: spark
      cast_ticks: 2
    - name: bolt
      cast_ticks: 3.5
`

func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "frameq.yaml")
	body := []byte(fmt.Sprintf(testConfig, filepath.Join(dir, "traces")))
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunRecordAndReplay(t *testing.T) {
	path := writeConfig(t)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if a.recorder == nil || a.world.demo == nil {
		t.Fatal("recorder or demo not wired")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for a.world.loop.Stats().Frames < 60 {
		if time.Now().After(deadline) {
			t.Fatalf("loop stats = %+v, want 60 frames", a.world.loop.Stats())
		}
		time.Sleep(10 * time.Millisecond)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, StopAppStop); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := a.Err(); err != nil {
		t.Fatalf("Err() = %v, want nil", err)
	}

	frames := a.world.loop.Stats().Frames
	casts, steps := a.world.demo.next, a.world.demo.steps
	sessionID := a.recorder.SessionID()
	if casts == 0 || steps == 0 {
		t.Fatalf("demo idle: casts=%d steps=%d", casts, steps)
	}

	sessions, err := Sessions(context.Background(), path, logx.Nop())
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != sessionID || !sessions[0].Finished() {
		t.Fatalf("Sessions() = %+v, want finished session %s", sessions, sessionID)
	}
	if sessions[0].TickInterval != 10*time.Millisecond {
		t.Fatalf("session tick interval = %v, want 10ms", sessions[0].TickInterval)
	}

	sum, err := Replay(context.Background(), path, sessionID, logx.Nop())
	if err != nil {
		t.Fatalf("Replay() error = %v", err)
	}
	if uint64(sum.Frames) != frames {
		t.Fatalf("replayed %d frames, want %d", sum.Frames, frames)
	}
	if sum.Casts != casts || sum.Steps != steps {
		t.Fatalf("replay casts/steps = %d/%d, want %d/%d", sum.Casts, sum.Steps, casts, steps)
	}
}

func TestBusHooksPublish(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	w := newWorld(worldOptions{tickInterval: 50 * time.Millisecond, bus: bus, log: logx.Nop()})
	h, _ := w.sched.Schedule(func() {}, 0)
	_, _ = w.sched.Schedule(func() { panic("boom") }, 0)
	h2, _ := w.sched.Schedule(func() {}, time.Hour)
	h2.Cancel()
	w.sched.Tick()
	if !h.Fired() {
		t.Fatal("event did not fire")
	}

	counts := map[string]int{}
	for len(events) > 0 {
		e := <-events
		counts[e.Type]++
		if e.Type == eventbus.TypePanic {
			if _, ok := e.Data.(panicInfo); !ok {
				t.Fatalf("panic event data = %T, want panicInfo", e.Data)
			}
		} else if _, ok := e.Data.(scheduler.EventInfo); !ok {
			t.Fatalf("%s data = %T, want EventInfo", e.Type, e.Data)
		}
	}
	if counts[eventbus.TypeScheduled] != 3 || counts[eventbus.TypeCancelled] != 1 || counts[eventbus.TypeFired] != 2 || counts[eventbus.TypePanic] != 1 {
		t.Fatalf("event counts = %v", counts)
	}
}

func TestApplyConfigUpdatesLoop(t *testing.T) {
	path := writeConfig(t)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.logs.Close()
	defer a.store.Close()

	oldCfg := a.cfgm.Get()
	newCfg := *oldCfg
	newCfg.Loop.TargetFPS = 30
	newCfg.Scheduler.TickInterval = "20ms"
	a.applyConfig(oldCfg, &newCfg)

	if got := a.world.loop.Stats().TargetFPS; got != 30 {
		t.Fatalf("TargetFPS = %v, want 30", got)
	}
	if _, err := a.world.loop.Step(0); err != nil {
		t.Fatalf("Step() error = %v", err)
	}
	if got := a.world.sched.TickInterval(); got != 20*time.Millisecond {
		t.Fatalf("TickInterval = %v, want 20ms (applied on the loop)", got)
	}
}

func TestCronFlushPublishes(t *testing.T) {
	path := writeConfig(t)
	a, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.logs.Close()
	defer a.store.Close()

	jobs, err := newCronJobs(a, a.cfgm.Get())
	if err != nil {
		t.Fatalf("newCronJobs() error = %v", err)
	}
	if jobs.flushID == 0 || jobs.flushSpec != "@every 1s" {
		t.Fatalf("flush entry = %d %q, want scheduled @every 1s", jobs.flushID, jobs.flushSpec)
	}

	events, unsub := a.bus.Subscribe(64)
	defer unsub()
	if _, err := a.recorder.Start(context.Background(), storageSession()); err != nil {
		t.Fatalf("recorder Start() error = %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := a.world.loop.Step(16 * time.Millisecond); err != nil {
			t.Fatalf("Step() error = %v", err)
		}
	}
	jobs.flush()

	if got := a.recorder.Stats().Written; got != 3 {
		t.Fatalf("Written = %d, want 3", got)
	}
	for len(events) > 0 {
		if e := <-events; e.Type == eventbus.TypeTraceFlushed {
			if n, _ := e.Data.(uint64); n != 3 {
				t.Fatalf("flushed event data = %v, want 3", e.Data)
			}
			return
		}
	}
	t.Fatal("no trace.flushed event published")
}

func storageSession() storage.Session {
	return storage.Session{Label: "test", TickInterval: 10 * time.Millisecond}
}
