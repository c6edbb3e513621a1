// Event is the immutable message exchanged between active objects.
//
// Events come in two flavours that consumers cannot tell apart:
//
//   - pooled events are allocated from a PoolSet, carry a reference count and
//     return to their pool when the last consumer has processed them;
//   - static events are created once with NewStaticEvent and are never
//     recycled. Time events and external stimuli use them.
//
// # Immutability
//
// The payload returned by Data may be filled in by the allocator between
// allocation and the first Post or Publish. After that every holder MUST
// treat it as read-only.
package primitives

import "fmt"

// Signal identifies the kind of an event.
type Signal uint16

const (
	// NoSignal is never delivered; it marks an unset signal.
	NoSignal Signal = iota
	// UserSignal is the first signal available to applications.
	UserSignal
)

// staticPool is the pool id carried by events that bypass the pools.
const staticPool uint8 = 0

type Event struct {
	Sig Signal

	data   []byte
	poolID uint8
	handle uint32
	refs   uint32
}

// NewStaticEvent creates a non-pooled event. The payload is copied so the
// caller cannot mutate it after posting.
func NewStaticEvent(sig Signal, payload []byte) *Event {
	e := &Event{Sig: sig, poolID: staticPool}
	if len(payload) > 0 {
		e.data = append([]byte(nil), payload...)
	}
	return e
}

// Data returns the payload.
func (e *Event) Data() []byte {
	return e.data
}

// Len returns the payload size in bytes.
func (e *Event) Len() int {
	return len(e.data)
}

// Pooled reports whether the event was allocated from a pool.
func (e *Event) Pooled() bool {
	return e.poolID != staticPool
}

// PoolID returns the 1-based id of the owning pool, or 0 for static events.
func (e *Event) PoolID() uint8 {
	return e.poolID
}

// Refs returns the number of queues currently holding the event.
func (e *Event) Refs() uint32 {
	return e.refs
}

func (e *Event) String() string {
	if e.Pooled() {
		return fmt.Sprintf("event(sig=%d pool=%d block=%d refs=%d)", e.Sig, e.poolID, e.handle, e.refs)
	}
	return fmt.Sprintf("event(sig=%d static)", e.Sig)
}
