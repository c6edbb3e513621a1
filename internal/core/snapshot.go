package core

import (
	"time"

	"github.com/comalice/activex/internal/primitives"
)

// Snapshot is the serializable view of a running framework.
type Snapshot struct {
	RunID      string                 `json:"runID" yaml:"runID"`
	Ticks      uint64                 `json:"ticks" yaml:"ticks"`
	Dispatched uint64                 `json:"dispatched" yaml:"dispatched"`
	Objects    []ObjectSnapshot       `json:"objects" yaml:"objects"`
	Pools      []primitives.PoolStats `json:"pools" yaml:"pools"`
	Timestamp  time.Time              `json:"timestamp" yaml:"timestamp"`
}

type ObjectSnapshot struct {
	Name          string              `json:"name" yaml:"name"`
	Priority      uint8               `json:"priority" yaml:"priority"`
	State         string              `json:"state,omitempty" yaml:"state,omitempty"`
	QueueLen      int                 `json:"queueLen" yaml:"queueLen"`
	QueueCap      int                 `json:"queueCap" yaml:"queueCap"`
	QueueMinFree  int                 `json:"queueMinFree" yaml:"queueMinFree"`
	Subscriptions []primitives.Signal `json:"subscriptions,omitempty" yaml:"subscriptions,omitempty"`
}

// Snapshot captures objects in descending priority order together with the
// pool statistics.
func (f *Framework) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		RunID:      f.runID,
		Ticks:      f.ticks,
		Dispatched: f.nsteps,
		Pools:      f.pools.Stats(),
		Timestamp:  time.Now(),
	}
	for p := MaxActive; p > 0; p-- {
		ao := f.active[p]
		if ao == nil {
			continue
		}
		s.Objects = append(s.Objects, ObjectSnapshot{
			Name:          ao.name,
			Priority:      ao.prio,
			State:         ao.state,
			QueueLen:      ao.queue.Len(),
			QueueCap:      ao.queue.Cap(),
			QueueMinFree:  ao.queue.MinFree(),
			Subscriptions: f.subs.SignalsOf(ao.prio),
		})
	}
	return s
}

// Object finds a started object by name.
func (f *Framework) Object(name string) (*ActiveObject, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ao := range f.active {
		if ao != nil && ao.name == name {
			return ao, true
		}
	}
	return nil, false
}
