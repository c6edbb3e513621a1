package production

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/activex"
	"github.com/comalice/activex/dpp"
)

const (
	sigGo activex.Signal = iota + 1
	sigStop
	sigPing
)

func names(sig activex.Signal) string {
	return map[activex.Signal]string{sigGo: "GO", sigStop: "STOP", sigPing: "PING"}[sig]
}

func buildMachine(t *testing.T) *activex.Machine {
	t.Helper()
	b := activex.NewMachineBuilder("idle")
	b.State("idle").On(sigGo, "run", nil, nil)
	b.State("run").
		Initial("fast").
		On(sigStop, "idle", func(*activex.Event) bool { return true }, nil).
		OnInternal(sigPing, nil, nil)
	b.State("run.fast").On(sigGo, "run.slow", nil, nil)
	b.State("run.slow")
	m, err := b.Build()
	require.NoError(t, err)
	return m
}

func TestDefaultVisualizer_ExportDOT_Simple(t *testing.T) {
	b := activex.NewMachineBuilder("a")
	b.State("a").On(sigGo, "b", nil, nil)
	b.State("b")
	m, err := b.Build()
	require.NoError(t, err)

	v := &DefaultVisualizer{SignalName: names}
	dot := v.ExportDOT(m, "a")

	assert.True(t, strings.HasPrefix(dot, "digraph Statechart {"))
	assert.True(t, strings.HasSuffix(dot, "}\n"))
	assert.Contains(t, dot, `"a" [label="a" style="rounded,filled" fillcolor=lightgreen];`)
	assert.Contains(t, dot, `"b" [label="b"];`)
	assert.Contains(t, dot, `"a" -> "b" [label="GO"];`)
	assert.NotContains(t, dot, `\n`, "no escaped newlines in the output")
}

func TestDefaultVisualizer_ExportDOT_Hierarchy(t *testing.T) {
	m := buildMachine(t)
	v := &DefaultVisualizer{SignalName: names}
	dot := v.ExportDOT(m, "run.slow")

	assert.Contains(t, dot, `subgraph "cluster_run" {`)
	assert.Contains(t, dot, "style=filled; fillcolor=orange;", "ancestor of the active leaf is highlighted")
	assert.Contains(t, dot, `"run.slow" [label="run.slow" style="rounded,filled" fillcolor=lightgreen];`)
	assert.Contains(t, dot, `"run.fast" [label="run.fast"];`)
	assert.Contains(t, dot, `"run" -> "run.fast" [style=dashed label="initial"];`)
	assert.Contains(t, dot, `"run" -> "idle" [label="STOP [guard]"];`)
	assert.NotContains(t, dot, "PING", "internal transitions have no edge")
}

func TestDefaultVisualizer_ExportDOT_UnknownCurrent(t *testing.T) {
	m := buildMachine(t)
	dot := (&DefaultVisualizer{}).ExportDOT(m, "")

	assert.NotContains(t, dot, "fillcolor")
	assert.Contains(t, dot, `"idle" -> "run" [label="1"];`, "numeric labels without a namer")
}

func TestDefaultVisualizer_ExportJSON(t *testing.T) {
	m := buildMachine(t)
	v := &DefaultVisualizer{SignalName: names}

	data, err := v.ExportJSON(m)
	require.NoError(t, err)

	var views []StateView
	require.NoError(t, json.Unmarshal(data, &views))
	byName := make(map[string]StateView)
	for _, sv := range views {
		byName[sv.Name] = sv
	}
	require.Len(t, byName, 4)

	run := byName["run"]
	assert.Equal(t, "run.fast", run.InitialChild)
	assert.Equal(t, []TransitionView{
		{Signal: "STOP", Target: "idle", Guarded: true},
		{Signal: "PING", Internal: true},
	}, run.Transitions)
	assert.Equal(t, "run", byName["run.slow"].Parent)
	assert.Empty(t, byName["idle"].Parent)
}

func TestDefaultVisualizer_DiningTable(t *testing.T) {
	cfg := dpp.DefaultConfig()
	a, err := dpp.New(cfg)
	require.NoError(t, err)
	a.Framework().RunUntilIdle()

	v := &DefaultVisualizer{SignalName: dpp.SignalName}
	dot := v.ExportDOT(a.Table().Machine(), a.Table().StateName())
	assert.Contains(t, dot, `"active.serving" -> "active.paused" [label="PAUSE"];`)
	assert.Contains(t, dot, `"active.serving" [label="active.serving" style="rounded,filled" fillcolor=lightgreen];`)

	dot = v.ExportDOT(a.Philosopher(0).Machine(), a.Philosopher(0).StateName())
	assert.Contains(t, dot, `"hungry" -> "eating" [label="EAT [guard]"];`)
}
