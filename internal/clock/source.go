package clock

import (
	"sync"
	"time"
)

// Source abstracts the wall clock the frame loop measures deltas against,
// so frame pacing can be tested deterministically.
type Source interface {
	// Now returns the current wall-clock time.
	Now() time.Time
}

// WallSource is a zero-value Source backed by time.Now.
type WallSource struct{}

// Now returns time.Now().
func (WallSource) Now() time.Time { return time.Now() }

// ManualSource is a Source that only moves when told to.
// It is safe for concurrent use.
type ManualSource struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualSource returns a ManualSource starting at start.
func NewManualSource(start time.Time) *ManualSource {
	return &ManualSource{now: start}
}

func (m *ManualSource) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Add moves the source forward (or backward, for regression tests) by d.
func (m *ManualSource) Add(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}
