package scheduler

import (
	"time"

	"frameq/internal/clock"
)

// DefaultTickInterval is the server tick length used by ScheduleTicks until
// SetTickInterval is called.
const DefaultTickInterval = 50 * time.Millisecond

// DefaultCompactMin is the queue size below which cancelled events are only
// ever removed lazily.
const DefaultCompactMin = 64

// EventInfo is a read-only view of one scheduled event.
type EventInfo struct {
	Seq   uint64
	DueAt clock.VirtualTime
	Delay clock.VirtualTime
	Now   clock.VirtualTime
}

// Stats are cumulative counters plus the current queue shape.
type Stats struct {
	Now clock.VirtualTime `json:"now"`

	Scheduled uint64 `json:"scheduled"`
	Fired     uint64 `json:"fired"`
	Completed uint64 `json:"completed"`
	Cancelled uint64 `json:"cancelled"`
	Discarded uint64 `json:"discarded"`
	Panics    uint64 `json:"panics"`
	Ticks     uint64 `json:"ticks"`

	// Pending counts live (not cancelled) events; Queued includes cancelled
	// events still waiting for lazy removal.
	Pending int `json:"pending"`
	Queued  int `json:"queued"`

	TickInterval time.Duration `json:"tick_interval"`
}
