package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultTickRate is 100 Hz.
const DefaultTickRate = 10 * time.Millisecond

var ErrClockRunning = errors.New("clock already running")

// Ticker is what a Clock drives; *core.Framework implements it.
type Ticker interface {
	Tick()
}

// Config configures the clock.
type Config struct {
	TickRate time.Duration `json:"tick_rate" yaml:"tick_rate"`
}

// Clock calls Tick on its target at a fixed rate.
type Clock struct {
	target   Ticker
	tickRate time.Duration
	ticks    atomic.Uint64
	running  atomic.Bool
	logger   *log.Entry

	// Control for Start/Stop
	mu      sync.Mutex
	cancel  context.CancelFunc
	stopped chan struct{}
	err     error
}

// NewClock creates a stopped clock for target.
func NewClock(target Ticker, cfg Config) *Clock {
	if cfg.TickRate <= 0 {
		cfg.TickRate = DefaultTickRate
	}
	return &Clock{
		target:   target,
		tickRate: cfg.TickRate,
		logger:   log.WithField("component", "clock"),
	}
}

// Run ticks until ctx is done. It returns nil on cancellation and an error
// when a tick panicked.
func (c *Clock) Run(ctx context.Context) (err error) {
	if !c.running.CompareAndSwap(false, true) {
		return ErrClockRunning
	}
	defer c.running.Store(false)

	ticker := time.NewTicker(c.tickRate)
	defer ticker.Stop()
	c.logger.WithField("rate", c.tickRate).Debug("clock started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick %d: %v", c.ticks.Load()+1, r)
			c.logger.WithError(err).Error("clock stopped")
		}
	}()

	for {
		select {
		case <-ctx.Done():
			c.logger.WithField("ticks", c.ticks.Load()).Debug("clock stopped")
			return nil
		case <-ticker.C:
			c.target.Tick()
			c.ticks.Add(1)
		}
	}
}

// Start runs the clock on its own goroutine until Stop or ctx is done.
func (c *Clock) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ctx, c.cancel = context.WithCancel(ctx)
	c.stopped = make(chan struct{})
	go func(done chan struct{}) {
		defer close(done)
		err := c.Run(ctx)
		c.mu.Lock()
		c.err = err
		c.mu.Unlock()
	}(c.stopped)
}

// Stop halts a clock started with Start, waits for its goroutine and
// returns the error Run returned.
func (c *Clock) Stop() error {
	c.mu.Lock()
	cancel, stopped := c.cancel, c.stopped
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-stopped

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Ticks returns the number of completed ticks.
func (c *Clock) Ticks() uint64 {
	return c.ticks.Load()
}
