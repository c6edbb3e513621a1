package testutil

import (
	"sync"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/primitives"
)

// Reaction runs when a Probe receives its signal. The returned outcome is
// reported to the framework.
type Reaction func(ao *core.ActiveObject, e *primitives.Event) activex.Outcome

// Probe is a scriptable core.Behavior. It subscribes to Subscriptions on
// Init, then runs Setup if set. It logs every received signal and runs the
// Reaction registered for it. Unscripted signals are ignored.
type Probe struct {
	Subscriptions []primitives.Signal
	State         string
	Setup         func(ao *core.ActiveObject) error

	mu        sync.Mutex
	ao        *core.ActiveObject
	reactions map[primitives.Signal]Reaction
	received  []primitives.Signal
	payloads  [][]byte
}

func NewProbe(subs ...primitives.Signal) *Probe {
	return &Probe{Subscriptions: subs, State: "idle", reactions: make(map[primitives.Signal]Reaction)}
}

// On scripts the reaction to sig.
func (p *Probe) On(sig primitives.Signal, r Reaction) *Probe {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reactions[sig] = r
	return p
}

// Handle scripts sig as handled without further effect.
func (p *Probe) Handle(sig primitives.Signal) *Probe {
	return p.On(sig, func(*core.ActiveObject, *primitives.Event) activex.Outcome {
		return activex.Handled
	})
}

// Goto scripts sig as a transition to state.
func (p *Probe) Goto(sig primitives.Signal, state string) *Probe {
	return p.On(sig, func(*core.ActiveObject, *primitives.Event) activex.Outcome {
		p.State = state
		return activex.Transitioned
	})
}

func (p *Probe) Init(ao *core.ActiveObject) error {
	p.ao = ao
	for _, sig := range p.Subscriptions {
		if err := ao.Subscribe(sig); err != nil {
			return err
		}
	}
	if p.Setup != nil {
		return p.Setup(ao)
	}
	return nil
}

func (p *Probe) Dispatch(e *primitives.Event) activex.Outcome {
	p.mu.Lock()
	p.received = append(p.received, e.Sig)
	p.payloads = append(p.payloads, append([]byte(nil), e.Data()...))
	r := p.reactions[e.Sig]
	p.mu.Unlock()

	if r == nil {
		return activex.Ignored
	}
	return r(p.ao, e)
}

func (p *Probe) StateName() string {
	return p.State
}

// Received returns the signals dispatched so far.
func (p *Probe) Received() []primitives.Signal {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]primitives.Signal(nil), p.received...)
}

// Payloads returns a copy of each dispatched event's data.
func (p *Probe) Payloads() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.payloads...)
}
