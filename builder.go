package activex

import (
	"fmt"
	"strings"
)

// MachineBuilder provides a fluent API for constructing state machines using string-based state names
// instead of manual State struct creation. Dotted names ("active.serving") nest states.
type MachineBuilder struct {
	nextID   StateID
	nameToID map[string]StateID
	idToName map[StateID]string // For debugging/reverse lookup
	states   map[StateID]*State
	order    []StateID
	initial  string

	pending  []pendingTransition
	children map[StateID]string // parent -> initial child name
}

// StateBuilder provides fluent methods for configuring individual states.
type StateBuilder struct {
	b     *MachineBuilder
	state *State
	name  string
}

type pendingTransition struct {
	t      *Transition
	target string
}

// NewMachineBuilder creates a new builder for constructing a state machine.
// initialStateName is the state entered by Machine.Start.
func NewMachineBuilder(initialStateName string) *MachineBuilder {
	return &MachineBuilder{
		nextID:   1,
		nameToID: make(map[string]StateID),
		idToName: make(map[StateID]string),
		states:   make(map[StateID]*State),
		initial:  initialStateName,
		children: make(map[StateID]string),
	}
}

// State creates or retrieves a state by name.
// If the parent of a dotted name doesn't exist, it is created.
func (b *MachineBuilder) State(name string) *StateBuilder {
	parentPath, _ := splitPath(name)

	var parent *State
	if parentPath != "" {
		parent = b.State(parentPath).state
	}

	id := b.assignID(name)
	state := b.states[id]
	if state == nil {
		state = &State{ID: id, Name: name, Parent: parent}
		b.states[id] = state
		b.order = append(b.order, id)
	}

	return &StateBuilder{b: b, state: state, name: name}
}

// Build validates the state machine configuration and constructs the Machine.
// Returns an error if the configuration is invalid.
func (b *MachineBuilder) Build() (*Machine, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	for _, p := range b.pending {
		if p.target != "" {
			p.t.Target = b.states[b.nameToID[p.target]]
		}
	}
	for parentID, child := range b.children {
		b.states[parentID].InitialChild = b.states[b.nameToID[child]]
	}
	b.states[b.nameToID[b.initial]].Initial = true

	states := make([]*State, 0, len(b.order))
	for _, id := range b.order {
		states = append(states, b.states[id])
	}
	return NewMachine(states...)
}

// GetID returns the assigned StateID for a given state name.
// Returns 0 if the name hasn't been registered.
func (b *MachineBuilder) GetID(name string) StateID {
	return b.nameToID[name]
}

// GetName returns the name for a given StateID.
// Returns empty string if the ID doesn't exist.
func (b *MachineBuilder) GetName(id StateID) string {
	return b.idToName[id]
}

// assignID returns the existing ID for a name, or creates a new sequential ID.
// This ensures deterministic ID assignment.
func (b *MachineBuilder) assignID(name string) StateID {
	if id, exists := b.nameToID[name]; exists {
		return id
	}

	id := b.nextID
	b.nextID++
	b.nameToID[name] = id
	b.idToName[id] = name
	return id
}

// validate checks that every referenced state was declared.
func (b *MachineBuilder) validate() error {
	if _, ok := b.states[b.nameToID[b.initial]]; !ok {
		return fmt.Errorf("initial state %q was never declared", b.initial)
	}
	for _, p := range b.pending {
		if p.target == "" {
			continue
		}
		if _, ok := b.states[b.nameToID[p.target]]; !ok {
			return fmt.Errorf("state %s has transition to unknown target state %q", p.t.Source.Name, p.target)
		}
	}
	for parentID, child := range b.children {
		c, ok := b.states[b.nameToID[child]]
		if !ok || c.Parent != b.states[parentID] {
			return fmt.Errorf("state %s has invalid initial child %q", b.idToName[parentID], child)
		}
	}
	return nil
}

// splitPath splits a hierarchical path into parent and name components.
// For example, "parent.child" returns ("parent", "child").
// For "child", returns ("", "child").
func splitPath(path string) (parent, name string) {
	idx := strings.LastIndex(path, ".")
	if idx == -1 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// StateBuilder fluent methods

// Initial names the child entered when a transition targets this state.
// childName is relative ("serving" under "active").
func (sb *StateBuilder) Initial(childName string) *StateBuilder {
	sb.b.children[sb.state.ID] = sb.name + "." + childName
	return sb
}

// Entry sets the entry action for this state.
func (sb *StateBuilder) Entry(action Action) *StateBuilder {
	sb.state.EntryAction = action
	return sb
}

// Exit sets the exit action for this state.
func (sb *StateBuilder) Exit(action Action) *StateBuilder {
	sb.state.ExitAction = action
	return sb
}

// On adds a transition from this state to the target state when sig arrives.
// targetName is the full name of the target state.
// guard and action are optional (can be nil).
func (sb *StateBuilder) On(sig Signal, targetName string, guard Guard, action Action) *StateBuilder {
	t := &Transition{
		Signal: sig,
		Source: sb.state,
		Guard:  guard,
		Action: action,
	}
	sb.state.Transitions = append(sb.state.Transitions, t)
	sb.b.pending = append(sb.b.pending, pendingTransition{t: t, target: targetName})
	if targetName != "" {
		sb.b.assignID(targetName)
	}
	return sb
}

// OnInternal adds an internal transition that doesn't change state.
// The transition action executes but no exit/entry actions are triggered.
func (sb *StateBuilder) OnInternal(sig Signal, guard Guard, action Action) *StateBuilder {
	return sb.On(sig, "", guard, action)
}

// ID returns the id of the state being configured.
func (sb *StateBuilder) ID() StateID {
	return sb.state.ID
}
