package production

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/comalice/activex"
)

// DefaultVisualizer renders activex machines. SignalName labels edges and
// may be nil.
type DefaultVisualizer struct {
	SignalName func(activex.Signal) string
}

// ExportDOT generates Graphviz DOT source for m. current names the active
// leaf state; it and its ancestors are highlighted.
func (v *DefaultVisualizer) ExportDOT(m *activex.Machine, current string) string {
	var buf bytes.Buffer
	buf.WriteString(`digraph Statechart {
  rankdir=LR;
  node [shape=box, fontsize=10, style=rounded];
  edge [fontsize=9];
`)

	active := activeStates(m, current)
	children := childrenOf(m)
	for _, s := range m.States() {
		if s.Parent == nil {
			v.renderState(&buf, s, children, active, "  ")
		}
	}

	for _, e := range v.collectEdges(m) {
		fmt.Fprintf(&buf, "  %q -> %q [label=%q];\n", e.From, e.To, e.Label)
	}

	buf.WriteString("}\n")
	return buf.String()
}

// StateView is the JSON form of one state.
type StateView struct {
	Name         string           `json:"name"`
	Parent       string           `json:"parent,omitempty"`
	InitialChild string           `json:"initialChild,omitempty"`
	Transitions  []TransitionView `json:"transitions,omitempty"`
}

type TransitionView struct {
	Signal   string `json:"signal"`
	Target   string `json:"target,omitempty"`
	Guarded  bool   `json:"guarded,omitempty"`
	Internal bool   `json:"internal,omitempty"`
}

// ExportJSON serializes the structure of m to JSON.
func (v *DefaultVisualizer) ExportJSON(m *activex.Machine) ([]byte, error) {
	var views []StateView
	for _, s := range m.States() {
		sv := StateView{Name: s.String()}
		if s.Parent != nil {
			sv.Parent = s.Parent.String()
		}
		if s.InitialChild != nil {
			sv.InitialChild = s.InitialChild.String()
		}
		for _, t := range s.Transitions {
			tv := TransitionView{
				Signal:   v.label(t.Signal),
				Guarded:  t.Guard != nil,
				Internal: t.Target == nil,
			}
			if t.Target != nil {
				tv.Target = t.Target.String()
			}
			sv.Transitions = append(sv.Transitions, tv)
		}
		views = append(views, sv)
	}
	return json.MarshalIndent(views, "", "  ")
}

func (v *DefaultVisualizer) label(sig activex.Signal) string {
	if v.SignalName != nil {
		return v.SignalName(sig)
	}
	return fmt.Sprintf("%d", sig)
}

// activeStates returns the current leaf and its ancestors.
func activeStates(m *activex.Machine, current string) map[*activex.State]bool {
	active := make(map[*activex.State]bool)
	for _, s := range m.States() {
		if s.String() != current {
			continue
		}
		for ; s != nil; s = s.Parent {
			active[s] = true
		}
		break
	}
	return active
}

func childrenOf(m *activex.Machine) map[*activex.State][]*activex.State {
	children := make(map[*activex.State][]*activex.State)
	for _, s := range m.States() {
		if s.Parent != nil {
			children[s.Parent] = append(children[s.Parent], s)
		}
	}
	return children
}

// Edge represents a transition edge. Internal transitions have no edge.
type Edge struct {
	From  string
	To    string
	Label string
}

func (v *DefaultVisualizer) collectEdges(m *activex.Machine) []Edge {
	var edges []Edge
	for _, s := range m.States() {
		for _, t := range s.Transitions {
			if t.Target == nil {
				continue
			}
			label := v.label(t.Signal)
			if t.Guard != nil {
				label += " [guard]"
			}
			edges = append(edges, Edge{From: s.String(), To: t.Target.String(), Label: label})
		}
	}
	return edges
}

// renderState recursively renders states and subgraphs.
func (v *DefaultVisualizer) renderState(buf *bytes.Buffer, s *activex.State, children map[*activex.State][]*activex.State, active map[*activex.State]bool, indent string) {
	name := s.String()
	kids := children[s]
	if len(kids) == 0 {
		// Atomic leaf
		style := ""
		if active[s] {
			style = " style=\"rounded,filled\" fillcolor=lightgreen"
		}
		fmt.Fprintf(buf, "%s%q [label=%q%s];\n", indent, name, name, style)
		return
	}

	// Compound: cluster
	fmt.Fprintf(buf, "%ssubgraph %q {\n", indent, "cluster_"+name)
	fmt.Fprintf(buf, "%s  label=%q;\n", indent, name)
	if active[s] {
		fmt.Fprintf(buf, "%s  style=filled; fillcolor=orange;\n", indent)
	}
	fmt.Fprintf(buf, "%s  %q [label=%q shape=ellipse];\n", indent, name, name)
	for _, child := range kids {
		v.renderState(buf, child, children, active, indent+"  ")
	}
	if s.InitialChild != nil {
		fmt.Fprintf(buf, "%s  %q -> %q [style=dashed label=\"initial\"];\n", indent, name, s.InitialChild.String())
	}
	fmt.Fprintf(buf, "%s}\n", indent)
}
