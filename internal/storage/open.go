package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	logx "frameq/pkg/logx"
)

// Store is the persistence API used by the trace recorder and replays.
type Store interface {
	CreateSession(ctx context.Context, s Session) error
	// AppendFrames appends frames to an existing session in order.
	AppendFrames(ctx context.Context, sessionID string, frames []FrameRecord) error
	FinishSession(ctx context.Context, sessionID string, at time.Time) error
	// Frames returns every recorded frame of a session ordered by index.
	Frames(ctx context.Context, sessionID string) ([]FrameRecord, error)
	// Sessions lists sessions, most recently started first.
	Sessions(ctx context.Context) ([]Session, error)
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	log = log.With(logx.String("comp", "storage"), logx.String("driver", driver))

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", driver)
	}
}
