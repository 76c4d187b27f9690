// Package trace records the wall delta of every frame to a storage.Store
// and replays recorded sessions through a frame stepper. Virtual time is a
// pure function of the delta sequence, so a replay reproduces the exact
// timing of every scheduled event.
package trace

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"frameq/internal/loop"
	"frameq/internal/storage"
	logx "frameq/pkg/logx"
)

var ErrNotStarted = errors.New("trace: recorder not started")

const bufferBatches = 64

// Recorder buffers frames observed on the loop goroutine and writes them in
// batches from a separate goroutine, so storage latency never stalls a frame.
type Recorder struct {
	store     storage.Store
	log       logx.Logger
	batchSize int

	mu      sync.Mutex
	buf     []storage.FrameRecord
	session storage.Session
	started bool
	closed  bool

	// flushMu keeps batches in frame order across concurrent flushes.
	flushMu sync.Mutex
	kick    chan struct{}

	written   atomic.Uint64
	dropped   atomic.Uint64
	flushes   atomic.Uint64
	failures  atomic.Uint64
	warnedCap atomic.Bool
}

type RecorderStats struct {
	SessionID string `json:"session_id"`
	Buffered  int    `json:"buffered"`
	Written   uint64 `json:"written"`
	Dropped   uint64 `json:"dropped"`
	Flushes   uint64 `json:"flushes"`
	Failures  uint64 `json:"failures"`
}

func NewRecorder(store storage.Store, batchSize int, log logx.Logger) *Recorder {
	if batchSize <= 0 {
		batchSize = 256
	}
	return &Recorder{
		store:     store,
		log:       log,
		batchSize: batchSize,
		kick:      make(chan struct{}, 1),
	}
}

// Start creates the session row. An empty meta.ID gets a random UUID.
func (r *Recorder) Start(ctx context.Context, meta storage.Session) (string, error) {
	if r.store == nil {
		return "", storage.ErrDisabled
	}
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.StartedAt.IsZero() {
		meta.StartedAt = time.Now()
	}
	if err := r.store.CreateSession(ctx, meta); err != nil {
		return "", err
	}
	r.mu.Lock()
	r.session = meta
	r.started = true
	r.mu.Unlock()
	if !r.log.IsZero() {
		r.log.Info("trace session started", logx.String("session", meta.ID))
	}
	return meta.ID, nil
}

func (r *Recorder) SessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.ID
}

// Observe is a loop.FrameFunc.
func (r *Recorder) Observe(f loop.Frame) {
	r.mu.Lock()
	if !r.started || r.closed {
		r.mu.Unlock()
		return
	}
	if len(r.buf) >= r.batchSize*bufferBatches {
		r.mu.Unlock()
		r.dropped.Add(1)
		if !r.log.IsZero() && r.warnedCap.CompareAndSwap(false, true) {
			r.log.Warn("trace buffer full; dropping frames (replay of this session will fail)",
				logx.Int("buffered", r.batchSize*bufferBatches))
		}
		return
	}
	r.buf = append(r.buf, storage.FrameRecord{Index: f.Index, Delta: f.Delta})
	full := len(r.buf) >= r.batchSize
	r.mu.Unlock()

	if full {
		select {
		case r.kick <- struct{}{}:
		default:
		}
	}
}

// Run flushes full batches until ctx is done.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-r.kick:
			if err := r.Flush(ctx); err != nil && ctx.Err() == nil && !r.log.IsZero() {
				r.log.Warn("trace flush failed", logx.Err(err))
			}
		}
	}
}

// Flush writes all buffered frames. On failure the batch is put back in
// front of the buffer to be retried by the next flush.
func (r *Recorder) Flush(ctx context.Context) error {
	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return ErrNotStarted
	}
	batch := r.buf
	r.buf = nil
	id := r.session.ID
	r.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	r.flushes.Add(1)
	if err := r.store.AppendFrames(ctx, id, batch); err != nil {
		r.failures.Add(1)
		r.mu.Lock()
		r.buf = append(batch, r.buf...)
		r.mu.Unlock()
		return err
	}
	r.written.Add(uint64(len(batch)))
	if !r.log.IsZero() {
		r.log.Debug("trace flushed", logx.Int("frames", len(batch)), logx.String("session", id))
	}
	return nil
}

// Close flushes what is left and marks the session finished.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.started || r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	id := r.session.ID
	r.mu.Unlock()

	flushErr := r.Flush(ctx)
	finishErr := r.store.FinishSession(ctx, id, time.Now())
	if !r.log.IsZero() {
		r.log.Info("trace session finished",
			logx.String("session", id),
			logx.Uint64("frames", r.written.Load()),
			logx.Uint64("dropped", r.dropped.Load()),
		)
	}
	return errors.Join(flushErr, finishErr)
}

func (r *Recorder) Stats() RecorderStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return RecorderStats{
		SessionID: r.session.ID,
		Buffered:  len(r.buf),
		Written:   r.written.Load(),
		Dropped:   r.dropped.Load(),
		Flushes:   r.flushes.Load(),
		Failures:  r.failures.Load(),
	}
}
