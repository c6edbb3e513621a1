package core

import (
	"github.com/comalice/activex/internal/invariant"
	"github.com/comalice/activex/internal/primitives"
)

// TimeEvent posts a static event to its owner after a number of ticks,
// once or periodically. A disarmed TimeEvent costs nothing per tick beyond
// a counter check.
type TimeEvent struct {
	evt      *primitives.Event
	owner    *ActiveObject
	ctr      uint32
	interval uint32
}

// NewTimeEvent creates a disarmed time event delivering sig to ao. ao must
// already be started; Init is the usual place to call this.
func (ao *ActiveObject) NewTimeEvent(sig primitives.Signal) *TimeEvent {
	if !invariant.Checkf(ao.fw != nil, "time event for %s before it was started", ao.name) {
		return nil
	}
	te := &TimeEvent{
		evt:   primitives.NewStaticEvent(sig, nil),
		owner: ao,
	}
	ao.fw.mu.Lock()
	ao.fw.timers = append(ao.fw.timers, te)
	ao.fw.mu.Unlock()
	return te
}

// Arm schedules the event ticks ticks from now, repeating every interval
// ticks when interval is non-zero. Arming an armed time event is fatal.
func (te *TimeEvent) Arm(ticks, interval uint32) {
	fw := te.owner.fw
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !invariant.Check(ticks > 0, "time event armed with zero ticks") {
		return
	}
	if !invariant.Checkf(te.ctr == 0, "time event %v for %s is already armed", te.evt.Sig, te.owner.name) {
		return
	}
	te.ctr = ticks
	te.interval = interval
}

// Disarm cancels the time event and reports whether it was armed. An event
// that already expired may still be in the owner's queue.
func (te *TimeEvent) Disarm() bool {
	fw := te.owner.fw
	fw.mu.Lock()
	defer fw.mu.Unlock()
	was := te.ctr != 0
	te.ctr = 0
	te.interval = 0
	return was
}

// Rearm restarts the countdown at ticks, armed or not, keeping the interval,
// and reports whether it was armed.
func (te *TimeEvent) Rearm(ticks uint32) bool {
	fw := te.owner.fw
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if !invariant.Check(ticks > 0, "time event rearmed with zero ticks") {
		return false
	}
	was := te.ctr != 0
	te.ctr = ticks
	return was
}

func (te *TimeEvent) Armed() bool {
	fw := te.owner.fw
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return te.ctr != 0
}

func (te *TimeEvent) Signal() primitives.Signal {
	return te.evt.Sig
}
