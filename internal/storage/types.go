package storage

import (
	"errors"
	"time"

	"github.com/spf13/afero"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("storage: session not found")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default

	// FS backs the file driver; nil means the OS filesystem.
	FS afero.Fs
}

// Session describes one recorded run.
type Session struct {
	ID         string    `json:"id"`
	Label      string    `json:"label,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	// TickInterval is the scheduler tick length the run started with, so a
	// replay converts tick-based delays the same way.
	TickInterval  time.Duration `json:"tick_interval"`
	MaxFrameDelta time.Duration `json:"max_frame_delta"`
	Frames        int64         `json:"frames"`
}

// Finished reports whether FinishSession was called for the session.
func (s Session) Finished() bool { return !s.FinishedAt.IsZero() }

// FrameRecord is one frame's applied wall delta.
type FrameRecord struct {
	Index uint64        `json:"i"`
	Delta time.Duration `json:"d"`
}
