package extensibility

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/primitives"
)

// LoggingTracer logs every dispatch through logrus. Transitions log at info,
// handled events at debug and ignored events at trace level.
type LoggingTracer struct {
	logger *log.Entry
	names  func(primitives.Signal) string
}

// NewLoggingTracer creates a LoggingTracer. names maps signals to symbols
// and may be nil.
func NewLoggingTracer(logger *log.Entry, names func(primitives.Signal) string) *LoggingTracer {
	if logger == nil {
		logger = log.WithField("component", "trace")
	}
	return &LoggingTracer{logger: logger, names: names}
}

func (r *LoggingTracer) Trace(_ context.Context, rec core.TraceRecord) error {
	entry := r.logger.WithFields(log.Fields{
		"seq":     rec.Seq,
		"object":  rec.Object,
		"signal":  r.signal(rec.Signal),
		"outcome": rec.Outcome.String(),
	})
	switch rec.Outcome {
	case activex.Transitioned:
		entry.WithFields(log.Fields{"from": rec.From, "to": rec.To}).Info("transition")
	case activex.Handled:
		entry.WithField("state", rec.To).Debug("handled")
	default:
		entry.WithField("state", rec.From).Trace("ignored")
	}
	return nil
}

func (r *LoggingTracer) Close() error {
	return nil
}

func (r *LoggingTracer) signal(sig primitives.Signal) any {
	if r.names == nil {
		return sig
	}
	return r.names(sig)
}

// MultiTracer fans a record out to several tracers.
type MultiTracer []core.Tracer

func (m MultiTracer) Trace(ctx context.Context, rec core.TraceRecord) error {
	var errs []error
	for _, t := range m {
		if err := t.Trace(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiTracer) Close() error {
	var errs []error
	for _, t := range m {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
