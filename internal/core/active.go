package core

import (
	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/primitives"
)

// Behavior is the event handler of an active object. Init runs once when
// the object is started and typically subscribes, arms time events and
// starts a state machine. Dispatch handles one event to completion.
type Behavior interface {
	Init(ao *ActiveObject) error
	Dispatch(e *primitives.Event) activex.Outcome
}

// StateNamer is implemented by behaviors that can name their current state.
// The framework records the name after every dispatch for traces and
// snapshots.
type StateNamer interface {
	StateName() string
}

// ActiveObject owns an event queue and a behavior. It is bound to a
// framework and a priority by Framework.Start.
type ActiveObject struct {
	name     string
	behavior Behavior

	// set by Framework.Start
	fw    *Framework
	prio  uint8
	queue *primitives.Queue
	state string
}

func NewActiveObject(name string, b Behavior) *ActiveObject {
	return &ActiveObject{name: name, behavior: b}
}

func (ao *ActiveObject) Name() string { return ao.name }
func (ao *ActiveObject) Priority() uint8 { return ao.prio }
func (ao *ActiveObject) Framework() *Framework { return ao.fw }
func (ao *ActiveObject) Behavior() Behavior { return ao.behavior }

// Post queues e to this object.
func (ao *ActiveObject) Post(e *primitives.Event) {
	ao.fw.Post(ao, e)
}

func (ao *ActiveObject) Publish(e *primitives.Event) {
	ao.fw.Publish(e)
}

func (ao *ActiveObject) NewEvent(sig primitives.Signal, size int) *primitives.Event {
	return ao.fw.NewEvent(sig, size)
}

func (ao *ActiveObject) Subscribe(sig primitives.Signal) error {
	return ao.fw.Subscribe(ao, sig)
}

func (ao *ActiveObject) Unsubscribe(sig primitives.Signal) error {
	return ao.fw.Unsubscribe(ao, sig)
}

func (ao *ActiveObject) UnsubscribeAll() {
	ao.fw.UnsubscribeAll(ao)
}
