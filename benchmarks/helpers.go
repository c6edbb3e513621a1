// Package benchmarks provides shared helpers for benchmark tests.
package benchmarks

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/primitives"
)

// SigTick drives every generated machine.
const SigTick activex.Signal = primitives.UserSignal

// GenFlatMachine creates a flat machine with n states cycling on SigTick.
func GenFlatMachine(n int) (*activex.Machine, error) {
	if n < 1 {
		n = 1
	}
	b := activex.NewMachineBuilder("s0")
	for i := 0; i < n; i++ {
		b.State(fmt.Sprintf("s%d", i)).On(SigTick, fmt.Sprintf("s%d", (i+1)%n), nil, nil)
	}
	return b.Build()
}

// GenDeepMachine nests depth compound states and flips between two leaves
// at the bottom, each transition exiting and entering through the whole
// chain of ancestors up to the root.
func GenDeepMachine(depth int) (*activex.Machine, error) {
	if depth < 1 {
		depth = 1
	}
	path := "c0"
	for i := 1; i < depth; i++ {
		path += fmt.Sprintf(".c%d", i)
	}
	b := activex.NewMachineBuilder("idle")
	b.State("idle").On(SigTick, path, nil, nil)
	parent := ""
	for i := 0; i < depth; i++ {
		name := fmt.Sprintf("c%d", i)
		if parent != "" {
			name = parent + "." + name
		}
		child := "leaf"
		if i < depth-1 {
			child = fmt.Sprintf("c%d", i+1)
		}
		b.State(name).Initial(child)
		parent = name
	}
	b.State(path+".leaf").On(SigTick, "idle", nil, nil)
	return b.Build()
}

// GenWideTransitions creates one state with numTransitions guarded SigTick
// transitions; only the last guard passes.
func GenWideTransitions(numTransitions int) (*activex.Machine, error) {
	if numTransitions < 1 {
		numTransitions = 1
	}
	b := activex.NewMachineBuilder("main")
	main := b.State("main")
	for i := 0; i < numTransitions-1; i++ {
		main.On(SigTick, "main", func(*activex.Event) bool { return false }, nil)
	}
	main.On(SigTick, "main", func(*activex.Event) bool { return true }, nil)
	return b.Build()
}

// GenSnapshotYAML renders a snapshot of numObjects synthetic objects.
func GenSnapshotYAML(numObjects int) []byte {
	snap := core.Snapshot{
		RunID:     "bench",
		Ticks:     uint64(numObjects) * 10,
		Pools:     []primitives.PoolStats{{ID: 1, BlockSize: 4, Total: 2 * numObjects, Free: numObjects}},
		Timestamp: time.Now(),
	}
	for i := 0; i < numObjects; i++ {
		snap.Objects = append(snap.Objects, core.ObjectSnapshot{
			Name:     fmt.Sprintf("obj[%d]", i),
			Priority: uint8(i%core.MaxActive + 1),
			State:    "active.serving",
			QueueCap: 8,
		})
	}
	data, err := yaml.Marshal(snap)
	if err != nil {
		panic(err)
	}
	return data
}
