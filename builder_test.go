package activex_test

import (
	"testing"

	. "github.com/comalice/activex"
)

func TestBuilderTrafficLight(t *testing.T) {
	b := NewMachineBuilder("green")

	b.State("green").On(sigGo, "yellow", nil, nil)
	b.State("yellow").On(sigGo, "red", nil, nil)
	b.State("red").On(sigGo, "green", nil, nil)

	machine, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	if err := machine.Start(); err != nil {
		t.Fatal(err)
	}

	for _, want := range []string{"green", "yellow", "red", "green"} {
		if got := machine.Current().Name; got != want {
			t.Errorf("expected %s, got %s", want, got)
		}
		machine.Dispatch(evt(sigGo))
	}
}

func TestBuilderHierarchy(t *testing.T) {
	var pokes int
	b := NewMachineBuilder("active")

	b.State("active").Initial("serving").On(sigStop, "done", nil, nil)
	b.State("active.serving").On(sigGo, "active.paused", nil, nil)
	b.State("active.paused").
		On(sigGo, "active.serving", nil, nil).
		OnInternal(sigPoke, nil, func(*Event, StateID, StateID) { pokes++ })
	b.State("done")

	m, err := b.Build()
	if err != nil {
		t.Fatal(err)
	}
	m.Start()

	if m.Current().ID != b.GetID("active.serving") {
		t.Fatalf("expected active.serving, got %v", m.Current())
	}
	m.Dispatch(evt(sigGo))
	m.Dispatch(evt(sigPoke))
	if m.Current().Name != "active.paused" || pokes != 1 {
		t.Errorf("expected paused with one poke, got %v with %d", m.Current(), pokes)
	}
	m.Dispatch(evt(sigStop))
	if m.Current().Name != "done" {
		t.Errorf("expected done, got %v", m.Current())
	}
	if b.GetName(b.GetID("done")) != "done" {
		t.Error("name lookup mismatch")
	}
}

func TestBuilderUnknownTarget(t *testing.T) {
	b := NewMachineBuilder("a")
	b.State("a").On(sigGo, "missing", nil, nil)

	if _, err := b.Build(); err == nil {
		t.Error("expected error for unknown target")
	}
}

func TestBuilderUndeclaredInitial(t *testing.T) {
	b := NewMachineBuilder("nowhere")
	b.State("a")

	if _, err := b.Build(); err == nil {
		t.Error("expected error for undeclared initial state")
	}
}

func TestBuilderBadInitialChild(t *testing.T) {
	b := NewMachineBuilder("a")
	b.State("a").Initial("ghost")

	if _, err := b.Build(); err == nil {
		t.Error("expected error for undeclared initial child")
	}
}
