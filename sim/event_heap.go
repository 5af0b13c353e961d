package sim

import "container/heap"

// scheduledEvent pairs an event with its insertion sequence. The sequence
// is the final tie-break guaranteeing deterministic replay when both time
// and priority coincide.
type scheduledEvent struct {
	ev  Event
	seq uint64
}

// EventQueue implements heap.Interface with deterministic ordering.
// Ordering: timestamp asc, priority desc, insertion sequence asc.
// See canonical Golang example here: https://pkg.go.dev/container/heap#example-package-IntHeap
type EventQueue struct {
	items   []scheduledEvent
	nextSeq uint64
}

// NewEventQueue creates an empty event queue.
func NewEventQueue() *EventQueue {
	q := &EventQueue{}
	heap.Init(q)
	return q
}

func (q *EventQueue) Len() int { return len(q.items) }

func (q *EventQueue) Less(i, j int) bool {
	a, b := q.items[i], q.items[j]
	if a.ev.Timestamp() != b.ev.Timestamp() {
		return a.ev.Timestamp() < b.ev.Timestamp()
	}
	if a.ev.Priority() != b.ev.Priority() {
		return a.ev.Priority() > b.ev.Priority()
	}
	return a.seq < b.seq
}

func (q *EventQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *EventQueue) Push(x any) {
	q.items = append(q.items, x.(scheduledEvent))
}

func (q *EventQueue) Pop() any {
	old := q.items
	n := len(old)
	item := old[n-1]
	q.items = old[0 : n-1]
	return item
}

// Schedule inserts an event, stamping it with the next insertion sequence.
func (q *EventQueue) Schedule(ev Event) {
	heap.Push(q, scheduledEvent{ev: ev, seq: q.nextSeq})
	q.nextSeq++
}

// PopNext removes and returns the earliest event, or nil when empty.
func (q *EventQueue) PopNext() Event {
	if q.Len() == 0 {
		return nil
	}
	return heap.Pop(q).(scheduledEvent).ev
}

// Peek returns the earliest event without removing it, or nil when empty.
func (q *EventQueue) Peek() Event {
	if q.Len() == 0 {
		return nil
	}
	return q.items[0].ev
}
