package core

import log "github.com/sirupsen/logrus"

// WithLogger configures the Framework with a logrus entry. Framework adds a
// "run" field carrying its run id.
func WithLogger(l *log.Entry) Option {
	return func(f *Framework) {
		f.logger = l
	}
}

// WithTracer configures the Framework with a Tracer receiving one record
// per dispatched event.
func WithTracer(t Tracer) Option {
	return func(f *Framework) {
		f.tracer = t
	}
}

// WithEventSource configures the Framework with an EventSource pumped while
// Run is active.
func WithEventSource(s EventSource) Option {
	return func(f *Framework) {
		f.source = s
	}
}

// WithRunID replaces the generated run id.
func WithRunID(id string) Option {
	return func(f *Framework) {
		f.runID = id
	}
}
