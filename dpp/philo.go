package dpp

import (
	"fmt"
	"math/rand/v2"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/invariant"
	"github.com/comalice/activex/internal/primitives"
)

const (
	stateThinking = "thinking"
	stateHungry   = "hungry"
	stateEating   = "eating"
)

// Philosopher thinks, gets hungry, asks the table for forks and eats once
// the table publishes EAT with its number. It never sees fork state.
type Philosopher struct {
	num   int
	cfg   *Config
	rng   *rand.Rand
	table *core.ActiveObject

	ao      *core.ActiveObject
	timeout *core.TimeEvent
	sm      *activex.Machine
}

func newPhilosopher(num int, cfg *Config, table *core.ActiveObject) (*Philosopher, error) {
	p := &Philosopher{
		num:   num,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(cfg.Seed, uint64(num))),
		table: table,
	}

	b := activex.NewMachineBuilder(stateThinking)
	b.State(stateThinking).
		Entry(p.startThinking).
		Exit(p.stopTimer).
		On(SigTimeout, stateHungry, nil, nil)
	b.State(stateHungry).
		Entry(p.requestForks).
		On(SigEat, stateEating, p.isMine, nil)
	b.State(stateEating).
		Entry(p.startEating).
		Exit(p.finishEating).
		On(SigTimeout, stateThinking, nil, nil)

	sm, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("philosopher %d: %w", num, err)
	}
	p.sm = sm
	return p, nil
}

func (p *Philosopher) Init(ao *core.ActiveObject) error {
	p.ao = ao
	p.timeout = ao.NewTimeEvent(SigTimeout)
	if err := ao.Subscribe(SigEat); err != nil {
		return err
	}
	return p.sm.Start()
}

func (p *Philosopher) Dispatch(e *primitives.Event) activex.Outcome {
	outcome, err := p.sm.Dispatch(e)
	invariant.Checkf(err == nil, "philosopher %d: %v", p.num, err)
	return outcome
}

func (p *Philosopher) StateName() string {
	return p.sm.Current().Name
}

// Machine exposes the philosopher's state machine for visualization.
func (p *Philosopher) Machine() *activex.Machine {
	return p.sm
}

func (p *Philosopher) Num() int {
	return p.num
}

// AO returns the active object running this philosopher.
func (p *Philosopher) AO() *core.ActiveObject {
	return p.ao
}

func (p *Philosopher) Eating() bool {
	return p.sm.Current().Name == stateEating
}

func (p *Philosopher) Hungry() bool {
	return p.sm.Current().Name == stateHungry
}

func (p *Philosopher) ticks(base uint32) uint32 {
	if p.cfg.Jitter == 0 {
		return base
	}
	return base + p.rng.Uint32N(p.cfg.Jitter+1)
}

func (p *Philosopher) isMine(e *primitives.Event) bool {
	return philoNum(e) == p.num
}

func (p *Philosopher) startThinking(_ *primitives.Event, _, _ activex.StateID) {
	p.timeout.Arm(p.ticks(p.cfg.ThinkTicks), 0)
}

func (p *Philosopher) stopTimer(_ *primitives.Event, _, _ activex.StateID) {
	p.timeout.Disarm()
}

func (p *Philosopher) requestForks(_ *primitives.Event, _, _ activex.StateID) {
	e := p.ao.NewEvent(SigHungry, tableEvtSize)
	if e == nil {
		return
	}
	e.Data()[0] = byte(p.num)
	p.table.Post(e)
}

func (p *Philosopher) startEating(_ *primitives.Event, _, _ activex.StateID) {
	p.timeout.Arm(p.ticks(p.cfg.EatTicks), 0)
}

func (p *Philosopher) finishEating(_ *primitives.Event, _, _ activex.StateID) {
	p.timeout.Disarm()
	e := p.ao.NewEvent(SigDone, tableEvtSize)
	if e == nil {
		return
	}
	e.Data()[0] = byte(p.num)
	p.ao.Publish(e)
}
