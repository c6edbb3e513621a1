package dpp

import (
	"fmt"
	"slices"

	log "github.com/sirupsen/logrus"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/invariant"
	"github.com/comalice/activex/internal/primitives"
)

const (
	stateActive  = "active"
	stateServing = "active.serving"
	statePaused  = "active.paused"
)

// Table owns the forks. Philosopher n eats with forks n and (n+1)%N.
//
// Hungry requests wait in arrival order. A request is eligible when both its
// forks are free and neither fork is wanted by an older waiting request.
// After every HUNGRY, DONE or SERVE the table grants up to
// MaxGrantsPerRelease eligible requests, oldest first. While a philosopher
// waits, each of its neighbours is granted at most once.
type Table struct {
	cfg *Config
	n   int

	forkFree []bool
	eating   []bool
	pending  []int
	grants   []uint64

	ao     *core.ActiveObject
	sm     *activex.Machine
	logger *log.Entry
}

func newTable(cfg *Config) (*Table, error) {
	n := cfg.Philosophers
	t := &Table{
		cfg:      cfg,
		n:        n,
		forkFree: make([]bool, n),
		eating:   make([]bool, n),
		grants:   make([]uint64, n),
		logger:   log.WithField("component", "table"),
	}
	for i := range t.forkFree {
		t.forkFree[i] = true
	}

	b := activex.NewMachineBuilder(stateActive)
	b.State(stateActive).
		Initial("serving").
		OnInternal(SigTerminate, nil, t.terminate)
	b.State(stateServing).
		OnInternal(SigHungry, nil, t.serveHungry).
		OnInternal(SigDone, nil, t.serveDone).
		On(SigPause, statePaused, nil, nil)
	b.State(statePaused).
		OnInternal(SigHungry, nil, t.enqueue).
		OnInternal(SigDone, nil, t.release).
		On(SigServe, stateServing, nil, t.resume)

	sm, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("table: %w", err)
	}
	t.sm = sm
	return t, nil
}

func (t *Table) Init(ao *core.ActiveObject) error {
	t.ao = ao
	for _, sig := range []primitives.Signal{SigDone, SigTerminate} {
		if err := ao.Subscribe(sig); err != nil {
			return err
		}
	}
	return t.sm.Start()
}

func (t *Table) Dispatch(e *primitives.Event) activex.Outcome {
	outcome, err := t.sm.Dispatch(e)
	invariant.Checkf(err == nil, "table: %v", err)
	return outcome
}

func (t *Table) StateName() string {
	return t.sm.Current().Name
}

func (t *Table) AO() *core.ActiveObject {
	return t.ao
}

func (t *Table) Machine() *activex.Machine {
	return t.sm
}

// ForkFree reports whether fork i is on the table.
func (t *Table) ForkFree(i int) bool {
	return t.forkFree[i]
}

// Pending returns the waiting philosophers, oldest first.
func (t *Table) Pending() []int {
	return slices.Clone(t.pending)
}

// Grants returns how many times philosopher n was granted EAT.
func (t *Table) Grants(n int) uint64 {
	return t.grants[n]
}

func (t *Table) Paused() bool {
	return t.sm.Current().Name == statePaused
}

func (t *Table) left(n int) int { return n }
func (t *Table) right(n int) int { return (n + 1) % t.n }

// requester validates the philosopher number carried by e.
func (t *Table) requester(e *primitives.Event) (int, bool) {
	n := philoNum(e)
	ok := invariant.Checkf(n >= 0 && n < t.n, "table: %s from unknown philosopher %d", SignalName(e.Sig), n)
	return n, ok
}

func (t *Table) serveHungry(e *primitives.Event, _, _ activex.StateID) {
	if t.enqueueRequest(e) {
		t.grantEligible()
	}
}

func (t *Table) serveDone(e *primitives.Event, _, _ activex.StateID) {
	if t.releaseForks(e) {
		t.grantEligible()
	}
}

func (t *Table) enqueue(e *primitives.Event, _, _ activex.StateID) {
	t.enqueueRequest(e)
}

func (t *Table) release(e *primitives.Event, _, _ activex.StateID) {
	t.releaseForks(e)
}

func (t *Table) resume(_ *primitives.Event, _, _ activex.StateID) {
	t.grantEligible()
}

func (t *Table) terminate(_ *primitives.Event, _, _ activex.StateID) {
	t.logger.Info("terminate requested")
	t.ao.Framework().Stop()
}

func (t *Table) enqueueRequest(e *primitives.Event) bool {
	n, ok := t.requester(e)
	if !ok {
		return false
	}
	if !invariant.Checkf(!t.eating[n] && !slices.Contains(t.pending, n), "table: philosopher %d is already eating or waiting", n) {
		return false
	}
	t.pending = append(t.pending, n)
	t.logger.WithField("philo", n).Debug("hungry")
	return true
}

func (t *Table) releaseForks(e *primitives.Event) bool {
	n, ok := t.requester(e)
	if !ok {
		return false
	}
	if !invariant.Checkf(t.eating[n], "table: DONE from philosopher %d that is not eating", n) {
		return false
	}
	t.eating[n] = false
	t.forkFree[t.left(n)] = true
	t.forkFree[t.right(n)] = true
	t.logger.WithField("philo", n).Debug("forks released")
	return true
}

// grantEligible walks the waiting requests oldest first. A request that
// cannot be granted reserves its forks against every younger request.
func (t *Table) grantEligible() {
	reserved := make([]bool, t.n)
	granted := 0
	for i := 0; i < len(t.pending); {
		if t.cfg.MaxGrantsPerRelease > 0 && granted >= t.cfg.MaxGrantsPerRelease {
			return
		}
		n := t.pending[i]
		l, r := t.left(n), t.right(n)
		if t.forkFree[l] && t.forkFree[r] && !reserved[l] && !reserved[r] {
			t.pending = slices.Delete(t.pending, i, i+1)
			t.grant(n)
			granted++
			continue
		}
		reserved[l], reserved[r] = true, true
		i++
	}
}

func (t *Table) grant(n int) {
	l, r := t.left(n), t.right(n)
	invariant.Checkf(!t.eating[(n+t.n-1)%t.n] && !t.eating[r], "table: neighbour of philosopher %d is eating", n)
	t.forkFree[l] = false
	t.forkFree[r] = false
	t.eating[n] = true
	t.grants[n]++

	e := t.ao.NewEvent(SigEat, tableEvtSize)
	if e == nil {
		return
	}
	e.Data()[0] = byte(n)
	t.ao.Publish(e)
	t.logger.WithFields(log.Fields{
		"philo":   n,
		"waiting": len(t.pending),
	}).Debug("eat granted")
}
