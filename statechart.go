// Package activex provides the state machine executed by every active object.
//
// A Machine is a closed set of States, optionally nested through Parent, and
// a transition table per state. Dispatch is total: every (state, signal) pair
// is Handled, Transitioned or Ignored. Signals a state does not handle are
// escalated to its parent; when no ancestor handles them they are ignored.
package activex

import (
	"errors"
	"fmt"

	"github.com/comalice/activex/internal/primitives"
)

type (
	Event  = primitives.Event
	Signal = primitives.Signal
)

type StateID int

type Action func(evt *Event, from StateID, to StateID)
type Guard func(evt *Event) bool

// Outcome is the result of dispatching one event.
type Outcome int

const (
	Ignored Outcome = iota
	Handled
	Transitioned
)

func (o Outcome) String() string {
	switch o {
	case Handled:
		return "handled"
	case Transitioned:
		return "transitioned"
	default:
		return "ignored"
	}
}

var (
	ErrNoStates          = errors.New("no states provided")
	ErrNilState          = errors.New("nil state")
	ErrDuplicateState    = errors.New("duplicate state ID")
	ErrMultipleInitial   = errors.New("more than one initial state")
	ErrUnknownState      = errors.New("state not registered with machine")
	ErrParentCycle       = errors.New("state hierarchy contains a cycle")
	ErrMachineStarted    = errors.New("machine already started")
	ErrMachineNotStarted = errors.New("machine not started")
)

// ---

type State struct {
	ID           StateID
	Name         string
	Parent       *State
	InitialChild *State // entered when a transition targets this state
	Transitions  []*Transition
	EntryAction  Action
	ExitAction   Action
	Initial      bool
}

type Transition struct {
	Signal Signal
	Source *State
	Target *State // nil --> internal transition
	Guard  Guard  // nil --> always enabled
	Action Action // nil --> do nothing
}

// Machine evaluates the transition tables of a set of states.
type Machine struct {
	states  map[StateID]*State
	order   []*State
	initial *State
	current *State
}

//
// Public API
//

func (s *State) OnEntry(action Action) *State {
	s.EntryAction = action
	return s
}

func (s *State) OnExit(action Action) *State {
	s.ExitAction = action
	return s
}

// On appends a transition to target. A nil target makes it internal.
func (s *State) On(sig Signal, target *State, guard Guard, action Action) *State {
	s.Transitions = append(s.Transitions, &Transition{
		Signal: sig,
		Source: s,
		Target: target,
		Guard:  guard,
		Action: action,
	})
	return s
}

func (s *State) String() string {
	if s.Name != "" {
		return s.Name
	}
	return fmt.Sprintf("state(%d)", s.ID)
}

func NewMachine(states ...*State) (*Machine, error) {
	if len(states) == 0 {
		return nil, ErrNoStates
	}
	m := &Machine{
		states: map[StateID]*State{},
		order:  make([]*State, 0, len(states)),
	}

	var initial *State
	for _, s := range states {
		if s == nil {
			return nil, ErrNilState
		}
		if _, exists := m.states[s.ID]; exists {
			return nil, fmt.Errorf("%w: %d", ErrDuplicateState, s.ID)
		}
		m.states[s.ID] = s
		m.order = append(m.order, s)
		if s.Initial {
			if initial != nil {
				return nil, ErrMultipleInitial
			}
			initial = s
		}
	}
	if initial == nil {
		initial = states[0] // First state is assigned as initial.
	}
	m.initial = initial

	for _, s := range states {
		if err := m.validateState(s); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Start enters the initial state, outermost ancestor first, then follows
// initial children down to a leaf.
func (m *Machine) Start() error {
	if m.current != nil {
		return ErrMachineStarted
	}
	path := []*State{}
	for s := m.initial; s != nil; s = s.Parent {
		path = append(path, s)
	}
	for i := len(path) - 1; i >= 0; i-- {
		path[i].enterState(nil, m.initial.ID, m.initial.ID)
	}
	m.current = m.drillDown(m.initial, nil, m.initial.ID)
	return nil
}

// Dispatch runs one event to completion.
func (m *Machine) Dispatch(evt *Event) (Outcome, error) {
	if m.current == nil {
		return Ignored, ErrMachineNotStarted
	}

	t := m.pickTransition(m.current, evt)
	if t == nil {
		return Ignored, nil
	}

	if t.Target == nil {
		t.evaluateAction(evt, m.current.ID, m.current.ID)
		return Handled, nil
	}

	m.current = m.doTransition(t, evt)
	return Transitioned, nil
}

// Current returns the active leaf state.
func (m *Machine) Current() *State {
	return m.current
}

// IsIn reports whether id is the active leaf or one of its ancestors.
func (m *Machine) IsIn(id StateID) bool {
	for s := m.current; s != nil; s = s.Parent {
		if s.ID == id {
			return true
		}
	}
	return false
}

// State looks a registered state up by id.
func (m *Machine) State(id StateID) *State {
	return m.states[id]
}

// States returns the registered states in registration order.
func (m *Machine) States() []*State {
	return append([]*State(nil), m.order...)
}

//
// Helper Functions (internal API)
//

func (m *Machine) validateState(s *State) error {
	depth := 0
	for p := s.Parent; p != nil; p = p.Parent {
		if m.states[p.ID] != p {
			return fmt.Errorf("parent %v of %v: %w", p, s, ErrUnknownState)
		}
		if depth++; depth > len(m.states) {
			return fmt.Errorf("%v: %w", s, ErrParentCycle)
		}
	}
	if c := s.InitialChild; c != nil && (m.states[c.ID] != c || c.Parent != s) {
		return fmt.Errorf("initial child %v of %v: %w", c, s, ErrUnknownState)
	}
	for _, t := range s.Transitions {
		if t == nil {
			continue
		}
		if t.Source == nil {
			t.Source = s
		}
		if t.Target != nil && m.states[t.Target.ID] != t.Target {
			return fmt.Errorf("target %v of %v: %w", t.Target, s, ErrUnknownState)
		}
	}
	return nil
}

// pickTransition returns the first enabled transition in document order,
// searching the active state and then each ancestor.
func (m *Machine) pickTransition(s *State, evt *Event) *Transition {
	for ; s != nil; s = s.Parent {
		for _, t := range s.Transitions {
			if t == nil || t.Signal != evt.Sig {
				continue
			}
			if t.evaluateGuard(evt) {
				return t
			}
		}
	}
	return nil
}

// doTransition exits up to the least common ancestor, runs the transition
// action, enters down to the target and returns the new leaf.
func (m *Machine) doTransition(t *Transition, evt *Event) *State {
	from, to := t.Source.ID, t.Target.ID
	lca := leastCommonAncestor(t.Source, t.Target)

	for s := m.current; s != lca && s != nil; s = s.Parent {
		s.exitState(evt, from, to)
	}

	t.evaluateAction(evt, from, to)

	var entry []*State
	for s := t.Target; s != lca && s != nil; s = s.Parent {
		entry = append(entry, s)
	}
	for i := len(entry) - 1; i >= 0; i-- {
		entry[i].enterState(evt, from, to)
	}

	return m.drillDown(t.Target, evt, from)
}

func (m *Machine) drillDown(s *State, evt *Event, from StateID) *State {
	for s.InitialChild != nil {
		s = s.InitialChild
		s.enterState(evt, from, s.ID)
	}
	return s
}

// leastCommonAncestor returns the state that is neither exited nor entered.
// A self transition exits and re-enters the source; a transition into a
// substate of the source leaves the source active.
func leastCommonAncestor(source, target *State) *State {
	if source == target {
		return source.Parent
	}
	if isAncestor(source, target) {
		return source
	}
	for a := source.Parent; a != nil; a = a.Parent {
		if isAncestor(a, target) {
			return a
		}
	}
	return nil
}

// isAncestor reports whether a is a strict ancestor of s.
func isAncestor(a, s *State) bool {
	for p := s.Parent; p != nil; p = p.Parent {
		if p == a {
			return true
		}
	}
	return false
}

func (s *State) enterState(evt *Event, from StateID, to StateID) {
	if s.EntryAction != nil {
		s.EntryAction(evt, from, to)
	}
}

func (s *State) exitState(evt *Event, from StateID, to StateID) {
	if s.ExitAction != nil {
		s.ExitAction(evt, from, to)
	}
}

func (t *Transition) evaluateGuard(evt *Event) bool {
	if t.Guard != nil {
		return t.Guard(evt)
	}
	return true
}

func (t *Transition) evaluateAction(evt *Event, from StateID, to StateID) {
	if t.Action != nil {
		t.Action(evt, from, to)
	}
}
