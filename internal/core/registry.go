package core

import (
	"errors"
	"fmt"

	"github.com/comalice/activex/internal/primitives"
)

var (
	ErrBadSignal   = errors.New("signal outside the publishable range")
	ErrBadPriority = errors.New("priority outside 1..64")
)

// Registry maps each publishable signal to the set of subscribed priorities.
// Subscription is set based: subscribing twice delivers once.
//
// Registry does not lock; the framework calls it inside its critical section.
type Registry struct {
	subs []prioSet
}

// NewRegistry accepts signals in [UserSignal, maxPubSignal).
func NewRegistry(maxPubSignal primitives.Signal) *Registry {
	return &Registry{subs: make([]prioSet, maxPubSignal)}
}

func (r *Registry) check(prio uint8, sig primitives.Signal) error {
	if sig < primitives.UserSignal || int(sig) >= len(r.subs) {
		return fmt.Errorf("signal %d: %w", sig, ErrBadSignal)
	}
	if prio == 0 || prio > MaxActive {
		return fmt.Errorf("priority %d: %w", prio, ErrBadPriority)
	}
	return nil
}

func (r *Registry) Subscribe(prio uint8, sig primitives.Signal) error {
	if err := r.check(prio, sig); err != nil {
		return err
	}
	r.subs[sig].insert(prio)
	return nil
}

func (r *Registry) Unsubscribe(prio uint8, sig primitives.Signal) error {
	if err := r.check(prio, sig); err != nil {
		return err
	}
	r.subs[sig].remove(prio)
	return nil
}

// UnsubscribeAll removes prio from every signal.
func (r *Registry) UnsubscribeAll(prio uint8) {
	for sig := range r.subs {
		r.subs[sig].remove(prio)
	}
}

// Subscribers returns a copy of the subscriber set for sig; later changes to
// the registry do not affect it.
func (r *Registry) Subscribers(sig primitives.Signal) prioSet {
	if int(sig) >= len(r.subs) {
		return 0
	}
	return r.subs[sig]
}

// Publishable reports whether sig is inside the registry's range.
func (r *Registry) Publishable(sig primitives.Signal) bool {
	return sig >= primitives.UserSignal && int(sig) < len(r.subs)
}

// SignalsOf returns the signals prio is subscribed to, ascending.
func (r *Registry) SignalsOf(prio uint8) []primitives.Signal {
	var out []primitives.Signal
	for sig, set := range r.subs {
		if set.has(prio) {
			out = append(out, primitives.Signal(sig))
		}
	}
	return out
}
