package scheduler

import (
	"container/heap"

	"frameq/internal/clock"
)

// event is the scheduler-owned record behind a Handle.
type event struct {
	fn    func()
	dueAt clock.VirtualTime
	delay clock.VirtualTime
	seq   uint64

	cancelled bool
	fired     bool

	// index is the position in the queue, -1 once removed.
	index int
}

// eventQueue is a min-heap ordered by (dueAt, seq).
type eventQueue []*event

func (q eventQueue) Len() int { return len(q) }

func (q eventQueue) Less(i, j int) bool {
	if q[i].dueAt != q[j].dueAt {
		return q[i].dueAt < q[j].dueAt
	}
	return q[i].seq < q[j].seq
}

func (q eventQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

func (q *eventQueue) Push(x any) {
	e := x.(*event)
	e.index = len(*q)
	*q = append(*q, e)
}

func (q *eventQueue) Pop() any {
	old := *q
	n := len(old) - 1
	e := old[n]
	old[n] = nil
	e.index = -1
	*q = old[:n]
	return e
}

func (q eventQueue) peek() *event {
	if len(q) == 0 {
		return nil
	}
	return q[0]
}

func (q *eventQueue) push(e *event) { heap.Push(q, e) }

func (q *eventQueue) pop() *event { return heap.Pop(q).(*event) }

func (q *eventQueue) remove(e *event) {
	if e.index < 0 || e.index >= len(*q) || (*q)[e.index] != e {
		return
	}
	heap.Remove(q, e.index)
}

// compact drops cancelled events, passing each to onDrop, and restores the
// heap.
func (q *eventQueue) compact(onDrop func(*event)) int {
	old := *q
	kept := old[:0]
	dropped := 0
	for _, e := range old {
		if e.cancelled {
			e.index = -1
			dropped++
			if onDrop != nil {
				onDrop(e)
			}
			continue
		}
		e.index = len(kept)
		kept = append(kept, e)
	}
	for i := len(kept); i < len(old); i++ {
		old[i] = nil
	}
	*q = kept
	heap.Init(q)
	return dropped
}
