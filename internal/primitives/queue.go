package primitives

import "github.com/comalice/activex/internal/invariant"

// Queue is the bounded FIFO of event references owned by one active object.
// It is a ring buffer; capacity is fixed at construction.
type Queue struct {
	name    string
	ring    []*Event
	head    int
	count   int
	minFree int
}

// NewQueue creates a queue that holds up to capacity events. name appears
// in overflow diagnostics.
func NewQueue(name string, capacity int) *Queue {
	return &Queue{
		name:    name,
		ring:    make([]*Event, capacity),
		minFree: capacity,
	}
}

// Put appends e. Overflow is a contract violation, never an overwrite; Put
// reports false if the installed executor lets execution continue.
func (q *Queue) Put(e *Event) bool {
	if q.count == len(q.ring) {
		invariant.Violatef("event queue %q overflow: capacity %d", q.name, len(q.ring))
		return false
	}
	q.push(e)
	return true
}

// TryPut appends e only if more than margin slots are free before the put,
// so at least margin slots remain free afterwards. A negative margin is a
// contract violation. A full queue always refuses.
func (q *Queue) TryPut(e *Event, margin int) bool {
	if !invariant.Checkf(margin >= 0, "event queue %q: negative margin %d", q.name, margin) {
		return false
	}
	if q.count == len(q.ring) || len(q.ring)-q.count <= margin {
		return false
	}
	q.push(e)
	return true
}

func (q *Queue) push(e *Event) {
	q.ring[(q.head+q.count)%len(q.ring)] = e
	q.count++
	if free := len(q.ring) - q.count; free < q.minFree {
		q.minFree = free
	}
}

// Get removes and returns the oldest event, or nil when empty.
func (q *Queue) Get() *Event {
	if q.count == 0 {
		return nil
	}
	e := q.ring[q.head]
	q.ring[q.head] = nil
	q.head = (q.head + 1) % len(q.ring)
	q.count--
	return e
}

func (q *Queue) Name() string { return q.name }
func (q *Queue) Len() int { return q.count }
func (q *Queue) Cap() int { return len(q.ring) }
func (q *Queue) Free() int { return len(q.ring) - q.count }
func (q *Queue) MinFree() int { return q.minFree }
func (q *Queue) Empty() bool { return q.count == 0 }
