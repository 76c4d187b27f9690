package storage

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/spf13/afero"

	logx "frameq/pkg/logx"
)

// fileStore keeps traces as JSON Lines under one directory:
//   - sessions.jsonl      (append-only; the last line for an ID wins)
//   - <id>.frames.jsonl   (append-only frame records)
type fileStore struct {
	fs  afero.Fs
	dir string
	log logx.Logger

	mu           sync.Mutex
	sessionsFile afero.File
	sessions     map[string]Session
	frames       map[string]afero.File
	closed       bool
}

const sessionsFileName = "sessions.jsonl"

func openFile(cfg Config, log logx.Logger) (Store, error) {
	dir := strings.TrimSpace(cfg.Path)
	if dir == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	fs := cfg.FS
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	st := &fileStore{
		fs:       fs,
		dir:      dir,
		log:      log,
		sessions: map[string]Session{},
		frames:   map[string]afero.File{},
	}
	path := filepath.Join(dir, sessionsFileName)
	if err := st.loadSessions(path); err != nil {
		return nil, err
	}
	f, err := fs.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	st.sessionsFile = f
	return st, nil
}

func (s *fileStore) loadSessions(path string) error {
	f, err := s.fs.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec Session
		if err := json.Unmarshal(b, &rec); err != nil || rec.ID == "" {
			// A torn last line after a crash is expected; skip it.
			s.log.Warn("skipping bad session record", logx.Int("line", line), logx.Err(err))
			continue
		}
		s.sessions[rec.ID] = rec
	}
	return sc.Err()
}

func (s *fileStore) framesPath(id string) string {
	return filepath.Join(s.dir, id+".frames.jsonl")
}

// writeSessionLocked appends the current state of a session. s.mu must be held.
func (s *fileStore) writeSessionLocked(rec Session) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := s.sessionsFile.Write(b); err != nil {
		return err
	}
	s.sessions[rec.ID] = rec
	return nil
}

func (s *fileStore) CreateSession(ctx context.Context, rec Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := validID(rec.ID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	if _, ok := s.sessions[rec.ID]; ok {
		return fmt.Errorf("storage: session %s already exists", rec.ID)
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	rec.Frames = 0
	return s.writeSessionLocked(rec)
}

func (s *fileStore) AppendFrames(ctx context.Context, id string, frames []FrameRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(frames) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	rec, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}

	f := s.frames[id]
	if f == nil {
		var err error
		f, err = s.fs.OpenFile(s.framesPath(id), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return err
		}
		s.frames[id] = f
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, fr := range frames {
		if err := enc.Encode(fr); err != nil {
			return err
		}
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		return err
	}
	rec.Frames += int64(len(frames))
	s.sessions[id] = rec
	return nil
}

func (s *fileStore) FinishSession(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	rec, ok := s.sessions[id]
	if !ok {
		return ErrNotFound
	}
	if f := s.frames[id]; f != nil {
		_ = f.Close()
		delete(s.frames, id)
	}
	if at.IsZero() {
		at = time.Now()
	}
	rec.FinishedAt = at
	return s.writeSessionLocked(rec)
}

func (s *fileStore) Frames(ctx context.Context, id string) ([]FrameRecord, error) {
	s.mu.Lock()
	_, ok := s.sessions[id]
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrDisabled
	}
	if !ok {
		return nil, ErrNotFound
	}

	f, err := s.fs.Open(s.framesPath(id))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []FrameRecord
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var fr FrameRecord
		if err := json.Unmarshal(b, &fr); err != nil {
			// Stop at a torn tail; everything before it is intact.
			s.log.Warn("frame trace truncated", logx.String("session", id), logx.Int("frames", len(out)), logx.Err(err))
			break
		}
		out = append(out, fr)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *fileStore) Sessions(ctx context.Context) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrDisabled
	}
	out := make([]Session, 0, len(s.sessions))
	for _, rec := range s.sessions {
		out = append(out, rec)
	}
	sortSessions(out)
	return out, nil
}

func (s *fileStore) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var errs []error
	for id, f := range s.frames {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(s.frames, id)
	}
	if s.sessionsFile != nil {
		if err := s.sessionsFile.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func sortSessions(out []Session) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.After(out[j].StartedAt)
	})
}

// validID keeps session IDs usable as file names.
func validID(id string) error {
	if id == "" {
		return errors.New("storage: empty session id")
	}
	if strings.ContainsAny(id, `/\.`) {
		return fmt.Errorf("storage: invalid session id %q", id)
	}
	return nil
}
