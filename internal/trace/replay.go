package trace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"frameq/internal/clock"
	"frameq/internal/loop"
	"frameq/internal/storage"
)

// ErrTraceGap means frames are missing from a session (dropped while
// recording), so a replay would not reproduce the run.
var ErrTraceGap = errors.New("trace: frame sequence has gaps")

// Stepper runs one frame with a given wall delta. *loop.Loop implements it.
type Stepper interface {
	Step(delta time.Duration) (loop.Frame, error)
}

type ReplayResult struct {
	Session storage.Session
	Frames  int
	Fired   int
	Final   clock.VirtualTime
}

// LoadSession returns a session and its frames, checking that frame
// indexes are consecutive.
func LoadSession(ctx context.Context, store storage.Store, id string) (storage.Session, []storage.FrameRecord, error) {
	if store == nil {
		return storage.Session{}, nil, storage.ErrDisabled
	}
	sessions, err := store.Sessions(ctx)
	if err != nil {
		return storage.Session{}, nil, err
	}
	var sess storage.Session
	found := false
	for _, s := range sessions {
		if s.ID == id {
			sess, found = s, true
			break
		}
	}
	if !found {
		return storage.Session{}, nil, storage.ErrNotFound
	}

	frames, err := store.Frames(ctx, id)
	if err != nil {
		return sess, nil, err
	}
	for i := 1; i < len(frames); i++ {
		if frames[i].Index != frames[i-1].Index+1 {
			return sess, nil, fmt.Errorf("%w: index %d follows %d", ErrTraceGap, frames[i].Index, frames[i-1].Index)
		}
	}
	return sess, frames, nil
}

// Replay feeds a recorded session's deltas to stepper in order.
func Replay(ctx context.Context, store storage.Store, id string, stepper Stepper) (ReplayResult, error) {
	sess, frames, err := LoadSession(ctx, store, id)
	if err != nil {
		return ReplayResult{Session: sess}, err
	}
	return ReplayFrames(ctx, sess, frames, stepper)
}

// ReplayFrames is Replay for a session already returned by LoadSession.
func ReplayFrames(ctx context.Context, sess storage.Session, frames []storage.FrameRecord, stepper Stepper) (ReplayResult, error) {
	res := ReplayResult{Session: sess}
	for _, fr := range frames {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		f, err := stepper.Step(fr.Delta)
		if err != nil {
			return res, fmt.Errorf("replay frame %d: %w", fr.Index, err)
		}
		res.Frames++
		res.Fired += f.Fired
		res.Final = f.Now
	}
	return res, nil
}
