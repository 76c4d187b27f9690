package scheduler

// Hooks holds optional callbacks for event lifecycle transitions. All fields
// are nil by default. Hooks run synchronously on the frame loop goroutine, so
// they must be cheap and must not block.
type Hooks struct {
	OnScheduled func(info EventInfo)
	OnFired     func(info EventInfo)
	OnCompleted func(info EventInfo)
	OnCancelled func(info EventInfo)
	// OnDiscarded runs when a cancelled event leaves the queue, lazily at
	// its due time or early by compaction.
	OnDiscarded func(info EventInfo)
	OnPanic     func(info EventInfo, recovered any)
}

func (h *Hooks) emitScheduled(info EventInfo) {
	if h.OnScheduled != nil {
		h.OnScheduled(info)
	}
}

func (h *Hooks) emitFired(info EventInfo) {
	if h.OnFired != nil {
		h.OnFired(info)
	}
}

func (h *Hooks) emitCompleted(info EventInfo) {
	if h.OnCompleted != nil {
		h.OnCompleted(info)
	}
}

func (h *Hooks) emitCancelled(info EventInfo) {
	if h.OnCancelled != nil {
		h.OnCancelled(info)
	}
}

func (h *Hooks) emitDiscarded(info EventInfo) {
	if h.OnDiscarded != nil {
		h.OnDiscarded(info)
	}
}

func (h *Hooks) emitPanic(info EventInfo, r any) {
	if h.OnPanic != nil {
		h.OnPanic(info, r)
	}
}
