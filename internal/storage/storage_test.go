package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/afero"

	logx "frameq/pkg/logx"
)

func openDrivers(t *testing.T) map[string]Store {
	t.Helper()
	fileSt, err := Open(Config{Driver: "file", Path: "traces", FS: afero.NewMemMapFs()}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(file) error = %v", err)
	}
	sqliteSt, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "frameq.db")}, logx.Nop())
	if err != nil {
		t.Fatalf("Open(sqlite) error = %v", err)
	}
	t.Cleanup(func() {
		_ = fileSt.Close()
		_ = sqliteSt.Close()
	})
	return map[string]Store{"file": fileSt, "sqlite": sqliteSt}
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			start := time.Unix(1700000000, 0)
			sess := Session{ID: "s1", Label: "demo", StartedAt: start, TickInterval: 50 * time.Millisecond, MaxFrameDelta: 250 * time.Millisecond}
			if err := st.CreateSession(ctx, sess); err != nil {
				t.Fatalf("CreateSession() error = %v", err)
			}
			if err := st.CreateSession(ctx, Session{ID: "s2", StartedAt: start.Add(time.Minute)}); err != nil {
				t.Fatalf("CreateSession(s2) error = %v", err)
			}

			batch1 := []FrameRecord{{Index: 1, Delta: 16 * time.Millisecond}, {Index: 2, Delta: 17 * time.Millisecond}}
			batch2 := []FrameRecord{{Index: 3, Delta: 250 * time.Millisecond}}
			if err := st.AppendFrames(ctx, "s1", batch1); err != nil {
				t.Fatalf("AppendFrames() error = %v", err)
			}
			if err := st.AppendFrames(ctx, "s1", batch2); err != nil {
				t.Fatalf("AppendFrames() error = %v", err)
			}
			if err := st.FinishSession(ctx, "s1", start.Add(time.Second)); err != nil {
				t.Fatalf("FinishSession() error = %v", err)
			}

			frames, err := st.Frames(ctx, "s1")
			if err != nil {
				t.Fatalf("Frames() error = %v", err)
			}
			want := append(append([]FrameRecord{}, batch1...), batch2...)
			if len(frames) != len(want) {
				t.Fatalf("Frames() len = %d, want %d", len(frames), len(want))
			}
			for i := range want {
				if frames[i] != want[i] {
					t.Fatalf("Frames()[%d] = %+v, want %+v", i, frames[i], want[i])
				}
			}

			sessions, err := st.Sessions(ctx)
			if err != nil {
				t.Fatalf("Sessions() error = %v", err)
			}
			if len(sessions) != 2 || sessions[0].ID != "s2" || sessions[1].ID != "s1" {
				t.Fatalf("Sessions() = %+v, want [s2 s1]", sessions)
			}
			got := sessions[1]
			if got.Frames != 3 || !got.Finished() || got.Label != "demo" {
				t.Fatalf("session s1 = %+v, want 3 frames, finished, label demo", got)
			}
			if got.TickInterval != 50*time.Millisecond || got.MaxFrameDelta != 250*time.Millisecond {
				t.Fatalf("session s1 timing = %v/%v, want 50ms/250ms", got.TickInterval, got.MaxFrameDelta)
			}
			if sessions[0].Finished() {
				t.Fatal("session s2 finished, want open")
			}
		})
	}
}

func TestStoreUnknownSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	for name, st := range openDrivers(t) {
		t.Run(name, func(t *testing.T) {
			if err := st.AppendFrames(ctx, "missing", []FrameRecord{{Index: 1}}); !errors.Is(err, ErrNotFound) {
				t.Fatalf("AppendFrames() error = %v, want ErrNotFound", err)
			}
			if err := st.FinishSession(ctx, "missing", time.Now()); !errors.Is(err, ErrNotFound) {
				t.Fatalf("FinishSession() error = %v, want ErrNotFound", err)
			}
			if _, err := st.Frames(ctx, "missing"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Frames() error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestFileStoreReopen(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	fs := afero.NewMemMapFs()
	cfg := Config{Driver: "file", Path: "traces", FS: fs}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	_ = st.CreateSession(ctx, Session{ID: "abc", StartedAt: time.Unix(10, 0)})
	_ = st.AppendFrames(ctx, "abc", []FrameRecord{{Index: 1, Delta: time.Millisecond}})
	_ = st.FinishSession(ctx, "abc", time.Unix(11, 0))
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := st.CreateSession(ctx, Session{ID: "late"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("CreateSession() after Close error = %v, want ErrDisabled", err)
	}

	// A torn trailing record must not prevent reopening.
	f, _ := fs.OpenFile(filepath.Join("traces", sessionsFileName), os.O_WRONLY|os.O_APPEND, 0o600)
	_, _ = f.Write([]byte(`{"id":"torn`))
	_ = f.Close()

	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer st.Close()
	sessions, err := st.Sessions(ctx)
	if err != nil {
		t.Fatalf("Sessions() error = %v", err)
	}
	if len(sessions) != 1 || sessions[0].Frames != 1 || !sessions[0].Finished() {
		t.Fatalf("Sessions() = %+v, want one finished session with 1 frame", sessions)
	}
	frames, err := st.Frames(ctx, "abc")
	if err != nil || len(frames) != 1 {
		t.Fatalf("Frames() = %v, %v, want one frame", frames, err)
	}
}

func TestOpenDisabledAndUnknown(t *testing.T) {
	t.Parallel()
	st, err := Open(Config{Driver: "none"}, logx.Nop())
	if st != nil || err != nil {
		t.Fatalf("Open(none) = %v, %v, want nil, nil", st, err)
	}
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("Open(redis) error = nil, want error")
	}
	if err := validID("../etc"); err == nil {
		t.Fatal("validID(../etc) = nil, want error")
	}
}
