package extensibility

import (
	"time"

	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/primitives"
)

// ChannelEventSource is an EventSource implementation backed by a Go channel.
// Provides a simple way to feed external stimuli into the Framework.
type ChannelEventSource struct {
	ch chan core.Stimulus
}

// NewChannelEventSource creates a new ChannelEventSource with the given channel.
// The channel should be buffered if backpressure handling is needed.
func NewChannelEventSource(ch chan core.Stimulus) *ChannelEventSource {
	return &ChannelEventSource{ch: ch}
}

// Events returns the receive-only channel for stimuli.
func (s *ChannelEventSource) Events() <-chan core.Stimulus {
	return s.ch
}

// Post queues e for direct delivery to the active object named target. It
// blocks while the channel is full.
func (s *ChannelEventSource) Post(target string, e *primitives.Event) {
	s.ch <- core.Stimulus{Target: target, Event: e}
}

// Publish queues e for delivery to every subscriber of its signal.
func (s *ChannelEventSource) Publish(e *primitives.Event) {
	s.ch <- core.Stimulus{Event: e}
}

// TimerEventSource posts a fixed cycle of static events to one target, one
// every d; the board "button" that pauses and resumes the table.
type TimerEventSource struct {
	ch     chan core.Stimulus
	target string
	events []*primitives.Event
	ticker *time.Ticker
	stop   chan struct{}
}

// NewTimerEventSource starts emitting events[0], events[1], ... round robin,
// one every d.
func NewTimerEventSource(target string, events []*primitives.Event, d time.Duration) *TimerEventSource {
	t := &TimerEventSource{
		ch:     make(chan core.Stimulus, 10),
		target: target,
		events: events,
		ticker: time.NewTicker(d),
		stop:   make(chan struct{}),
	}
	go t.run()
	return t
}

func (t *TimerEventSource) run() {
	next := 0
	for {
		select {
		case <-t.ticker.C:
			if len(t.events) == 0 {
				continue
			}
			select {
			case t.ch <- core.Stimulus{Target: t.target, Event: t.events[next]}:
				next = (next + 1) % len(t.events)
			default:
				// drop if full
			}
		case <-t.stop:
			t.ticker.Stop()
			close(t.ch)
			return
		}
	}
}

// Events returns the stimulus channel.
func (t *TimerEventSource) Events() <-chan core.Stimulus {
	return t.ch
}

// Stop stops the ticker and closes the channel.
func (t *TimerEventSource) Stop() {
	close(t.stop)
}
