package production

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/comalice/activex/internal/core"
)

// ChannelTracer forwards trace records to a Go channel.
// Non-blocking: records are dropped on backpressure and counted.
type ChannelTracer struct {
	ch      chan<- core.TraceRecord
	dropped atomic.Uint64
	once    sync.Once
}

// NewChannelTracer creates a ChannelTracer with the given output channel.
func NewChannelTracer(ch chan<- core.TraceRecord) *ChannelTracer {
	return &ChannelTracer{ch: ch}
}

func (p *ChannelTracer) Trace(ctx context.Context, rec core.TraceRecord) error {
	select {
	case p.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.dropped.Add(1)
		return nil // Non-blocking drop
	}
}

// Dropped returns how many records were discarded because the channel was
// full.
func (p *ChannelTracer) Dropped() uint64 {
	return p.dropped.Load()
}

// Close closes the output channel. Trace must not be called afterwards.
func (p *ChannelTracer) Close() error {
	p.once.Do(func() { close(p.ch) })
	return nil
}
