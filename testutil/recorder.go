// Package testutil holds helpers shared by package tests: a recording tracer
// and a scriptable behavior.
package testutil

import (
	"context"
	"sync"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/primitives"
)

// Recorder is a core.Tracer that keeps every record in memory.
type Recorder struct {
	mu      sync.Mutex
	records []core.TraceRecord
	closed  bool
}

func (r *Recorder) Trace(_ context.Context, rec core.TraceRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

// Records returns a copy of everything traced so far.
func (r *Recorder) Records() []core.TraceRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]core.TraceRecord(nil), r.records...)
}

// Signals lists the signals dispatched to object, in order.
func (r *Recorder) Signals(object string) []primitives.Signal {
	var out []primitives.Signal
	for _, rec := range r.Records() {
		if rec.Object == object {
			out = append(out, rec.Signal)
		}
	}
	return out
}

// Transitions returns the target states object moved to, in order.
func (r *Recorder) Transitions(object string) []string {
	var out []string
	for _, rec := range r.Records() {
		if rec.Object == object && rec.Outcome == activex.Transitioned {
			out = append(out, rec.To)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = nil
}
