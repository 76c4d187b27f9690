package logx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	// Must not panic.
	l.Info("hello", String("k", "v"))
	if l.With(Int("n", 1)).IsZero() {
		t.Fatal("logger with fields should not report IsZero")
	}
}

func newFileService(t *testing.T, level string) (*Service, Logger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frameq.log")
	svc, log := New(Config{Level: level, File: FileConfig{Enabled: true, Path: path}})
	t.Cleanup(func() { _ = svc.Close() })
	return svc, log, path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	return string(b)
}

func TestServiceFileFields(t *testing.T) {
	t.Parallel()
	_, root, path := newFileService(t, "debug")
	l := root.With(String("comp", "test"))
	l.Debug("frame", Int64("now", 42), Bool("fired", true))

	out := readLog(t, path)
	for _, want := range []string{`"comp":"test"`, `"now":42`, `"fired":true`, `"message":"frame"`, `"caller":"logging_test.go:`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output %q missing %q", out, want)
		}
	}
}

func TestServiceApplyChangesLevel(t *testing.T) {
	t.Parallel()
	svc, l, path := newFileService(t, "warn")
	l = l.With(String("comp", "loop"))
	l.Info("dropped")
	if out := readLog(t, path); out != "" {
		t.Fatalf("info should be filtered at warn level, got %q", out)
	}
	if l.Enabled(LevelDebug) {
		t.Fatal("debug should not be enabled at warn level")
	}
	if !l.Enabled(LevelError) {
		t.Fatal("error should be enabled at warn level")
	}

	svc.Apply(Config{Level: "debug", File: FileConfig{Enabled: true, Path: path}})
	if !l.Enabled(LevelDebug) {
		t.Fatal("derived logger did not follow Apply")
	}
	l.Info("kept")
	if out := readLog(t, path); !strings.Contains(out, `"message":"kept"`) {
		t.Fatalf("output %q missing message after Apply", out)
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want bool
	}{
		{"", true},
		{"debug", true},
		{" Warning ", true},
		{"verbose", false},
	}
	for _, tt := range tests {
		if got := ValidLevel(tt.in); got != tt.want {
			t.Fatalf("ValidLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
