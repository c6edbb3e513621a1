// Package primitives provides the foundational data structures of the
// active-object runtime: signals, immutable events, fixed-block event pools
// and bounded event queues.
//
// None of these types synchronise on their own. The framework in
// internal/core owns every pool and queue and serialises access to them with
// its critical section, which is what keeps the hot paths free of per-object
// locking.
//
// Core invariants:
//   - An Event is immutable once posted; only its reference count changes.
//   - A pool never hands out a block smaller than requested.
//   - A queue preserves FIFO order and never overwrites.
//   - Exhaustion and overflow are reported through internal/invariant.
package primitives
