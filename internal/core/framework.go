// Package core provides the runtime of the active object framework.
// This includes the priority scheduler, event delivery (post and publish),
// the subscription registry and time events.
//
// One mutex guards queues, pools, the registry and the time events. Dispatch
// runs on the goroutine that calls Step, RunUntilIdle or Run, outside the
// lock, so behaviors may post, publish and arm timers while handling an event.
package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/invariant"
	"github.com/comalice/activex/internal/primitives"
)

// Pluggable component interfaces.

// Tracer receives one record per dispatched event. Trace runs on the
// dispatching goroutine; implementations must not block.
type Tracer interface {
	Trace(ctx context.Context, rec TraceRecord) error
	Close() error
}

// Stimulus is an event injected from outside the framework. Target names
// the receiving active object; an empty Target publishes the event.
type Stimulus struct {
	Target string
	Event  *primitives.Event
}

type EventSource interface {
	Events() <-chan Stimulus
}

// TraceRecord describes one run-to-completion step.
type TraceRecord struct {
	Seq       uint64            `json:"seq" yaml:"seq"`
	Object    string            `json:"object" yaml:"object"`
	Priority  uint8             `json:"priority" yaml:"priority"`
	Signal    primitives.Signal `json:"signal" yaml:"signal"`
	From      string            `json:"from,omitempty" yaml:"from,omitempty"`
	To        string            `json:"to,omitempty" yaml:"to,omitempty"`
	Outcome   activex.Outcome   `json:"outcome" yaml:"outcome"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
}

// Option applies configuration to Framework via functional options pattern.
type Option func(*Framework)

var (
	ErrPriorityInUse  = errors.New("priority already taken by another active object")
	ErrAlreadyStarted = errors.New("active object already started")
	ErrQueueLength    = errors.New("queue length must be positive")
	ErrNoBehavior     = errors.New("active object has no behavior")
	ErrRunning        = errors.New("framework is already running")
)

// Config sizes the framework. Signals below MaxPubSignal may be published.
type Config struct {
	MaxPubSignal primitives.Signal       `json:"max_pub_signal" yaml:"max_pub_signal"`
	Pools        []primitives.PoolConfig `json:"pools" yaml:"pools"`
}

func (c Config) Validate() error {
	if c.MaxPubSignal < primitives.UserSignal {
		return fmt.Errorf("max_pub_signal must be at least %d, got %d", primitives.UserSignal, c.MaxPubSignal)
	}
	_, err := primitives.NewPoolSet(c.Pools...)
	return err
}

// Framework schedules active objects by priority and delivers events to
// them. Post, Publish, Subscribe and Tick are safe for concurrent use.
// Dispatch is serialized: Step, RunUntilIdle and Run may be called from any
// goroutine, but only one dispatch runs at a time. Behaviors must not call
// Step, RunUntilIdle, Run or Start from Dispatch.
type Framework struct {
	// dispatching is held across dequeue, Dispatch and release. It is
	// always taken before mu.
	dispatching sync.Mutex
	mu          sync.Mutex
	active  [MaxActive + 1]*ActiveObject
	ready   prioSet
	pools   *primitives.PoolSet
	subs    *Registry
	timers  []*TimeEvent
	ticks   uint64
	nsteps  uint64
	wake    chan struct{}
	done    chan struct{}
	stopped sync.Once
	running atomic.Bool

	runID  string
	logger *log.Entry
	tracer Tracer
	source EventSource
}

// New validates cfg and builds an idle framework.
func New(cfg Config, opts ...Option) (*Framework, error) {
	if cfg.MaxPubSignal < primitives.UserSignal {
		return nil, fmt.Errorf("max_pub_signal must be at least %d, got %d", primitives.UserSignal, cfg.MaxPubSignal)
	}
	pools, err := primitives.NewPoolSet(cfg.Pools...)
	if err != nil {
		return nil, fmt.Errorf("event pools: %w", err)
	}

	f := &Framework{
		pools: pools,
		subs:  NewRegistry(cfg.MaxPubSignal),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
		runID: uuid.NewString(),
	}

	// Apply functional options
	for _, opt := range opts {
		opt(f)
	}
	if f.logger == nil {
		f.logger = log.WithField("component", "framework")
	}
	f.logger = f.logger.WithField("run", f.runID)
	return f, nil
}

// RunID identifies this framework instance in snapshots and traces.
func (f *Framework) RunID() string {
	return f.runID
}

// Start registers ao at prio with a queue of queueLen events and runs its
// initial transition. Events the behavior posts or publishes from Init are
// queued and dispatched once scheduling starts.
func (f *Framework) Start(ao *ActiveObject, prio uint8, queueLen int) error {
	if ao == nil || ao.behavior == nil {
		return ErrNoBehavior
	}
	if prio == 0 || prio > MaxActive {
		return fmt.Errorf("%s: priority %d: %w", ao.name, prio, ErrBadPriority)
	}
	if queueLen <= 0 {
		return fmt.Errorf("%s: %w", ao.name, ErrQueueLength)
	}

	// Init runs with dispatch held so nothing it queues is dispatched
	// before it succeeds.
	f.dispatching.Lock()
	defer f.dispatching.Unlock()

	f.mu.Lock()
	if ao.fw != nil {
		f.mu.Unlock()
		return fmt.Errorf("%s: %w", ao.name, ErrAlreadyStarted)
	}
	if other := f.active[prio]; other != nil {
		f.mu.Unlock()
		return fmt.Errorf("%s: priority %d held by %s: %w", ao.name, prio, other.name, ErrPriorityInUse)
	}
	ao.fw = f
	ao.prio = prio
	ao.queue = primitives.NewQueue(ao.name, queueLen)
	f.active[prio] = ao
	f.mu.Unlock()

	if err := ao.behavior.Init(ao); err != nil {
		f.mu.Lock()
		f.unregisterLocked(ao)
		f.mu.Unlock()
		return fmt.Errorf("%s: init: %w", ao.name, err)
	}
	f.recordState(ao)

	f.logger.WithFields(log.Fields{
		"object":   ao.name,
		"priority": prio,
		"queue":    queueLen,
	}).Info("active object started")
	return nil
}

// unregisterLocked undoes a Start whose Init failed: queued events go back
// to their pools and the object's time events are dropped.
func (f *Framework) unregisterLocked(ao *ActiveObject) {
	for e := ao.queue.Get(); e != nil; e = ao.queue.Get() {
		f.pools.Release(e)
	}
	f.ready.remove(ao.prio)
	f.timers = slices.DeleteFunc(f.timers, func(te *TimeEvent) bool {
		return te.owner == ao
	})
	f.subs.UnsubscribeAll(ao.prio)
	f.active[ao.prio] = nil
	ao.fw = nil
	ao.queue = nil
	ao.prio = 0
}

// NewEvent allocates a pooled event from the smallest pool whose blocks hold
// size bytes. Exhaustion is fatal.
func (f *Framework) NewEvent(sig primitives.Signal, size int) *primitives.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pools.New(sig, size)
}

// Post appends e to the queue of ao. A full queue is fatal.
func (f *Framework) Post(ao *ActiveObject, e *primitives.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.postLocked(ao, e)
}

// TryPost appends e only when ao's queue keeps at least margin free slots
// afterwards. A rejected event nobody else references goes back to its pool.
func (f *Framework) TryPost(ao *ActiveObject, e *primitives.Event, margin int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !invariant.Check(ao != nil && ao.queue != nil, "post to an active object that was never started") {
		return false
	}
	if ao.queue.TryPut(e, margin) {
		f.pools.Retain(e)
		f.readyLocked(ao.prio)
		return true
	}
	if e.Refs() == 0 {
		f.pools.Release(e)
	}
	return false
}

// Publish delivers e to every subscriber of e.Sig, highest priority first.
// Subscribers added or removed while Publish runs do not affect this
// delivery. An event without subscribers is recycled.
func (f *Framework) Publish(e *primitives.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !invariant.Checkf(f.subs.Publishable(e.Sig), "publish of signal %d outside 1..%d", e.Sig, len(f.subs.subs)-1) {
		return
	}

	// The publisher's own reference keeps e alive while it is being queued.
	f.pools.Retain(e)
	for _, p := range f.subs.Subscribers(e.Sig).descending() {
		f.postLocked(f.active[p], e)
	}
	f.pools.Release(e)
}

func (f *Framework) Subscribe(ao *ActiveObject, sig primitives.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs.Subscribe(ao.prio, sig)
}

func (f *Framework) Unsubscribe(ao *ActiveObject, sig primitives.Signal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subs.Unsubscribe(ao.prio, sig)
}

func (f *Framework) UnsubscribeAll(ao *ActiveObject) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs.UnsubscribeAll(ao.prio)
}

// Subscribers returns the names of the objects subscribed to sig, highest
// priority first.
func (f *Framework) Subscribers(sig primitives.Signal) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for _, p := range f.subs.Subscribers(sig).descending() {
		names = append(names, f.active[p].name)
	}
	return names
}

// Step dispatches one event to the highest-priority ready object. It returns
// false when no object has events.
func (f *Framework) Step() bool {
	f.dispatching.Lock()
	defer f.dispatching.Unlock()

	f.mu.Lock()
	if f.ready.empty() {
		f.mu.Unlock()
		return false
	}
	p := f.ready.highest()
	ao := f.active[p]
	e := ao.queue.Get()
	if ao.queue.Empty() {
		f.ready.remove(p)
	}
	f.nsteps++
	seq := f.nsteps
	from := ao.state
	sig := e.Sig
	f.mu.Unlock()

	outcome := ao.behavior.Dispatch(e)

	f.mu.Lock()
	f.pools.Release(e)
	f.mu.Unlock()
	to := f.recordState(ao)

	if outcome == activex.Ignored {
		f.logger.WithFields(log.Fields{
			"object": ao.name,
			"signal": sig,
			"state":  from,
		}).Debug("event ignored")
	}
	if f.tracer != nil {
		rec := TraceRecord{
			Seq:       seq,
			Object:    ao.name,
			Priority:  p,
			Signal:    sig,
			From:      from,
			To:        to,
			Outcome:   outcome,
			Timestamp: time.Now(),
		}
		if err := f.tracer.Trace(context.Background(), rec); err != nil {
			f.logger.WithError(err).Debug("trace dropped")
		}
	}
	return true
}

// RunUntilIdle dispatches events until every queue is empty or Stop is
// called, and returns the number of events dispatched.
func (f *Framework) RunUntilIdle() int {
	n := 0
	for !f.Stopped() && f.Step() {
		n++
	}
	return n
}

// Run dispatches events until ctx is cancelled or Stop is called, blocking
// while every queue is empty. Run returns nil after Stop and ctx.Err() after
// cancellation.
func (f *Framework) Run(ctx context.Context) error {
	if !f.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer f.running.Store(false)

	if f.source != nil {
		go f.pump(ctx)
	}
	f.logger.Info("framework running")

	for {
		f.RunUntilIdle()
		select {
		case <-ctx.Done():
			f.logger.WithError(ctx.Err()).Info("framework cancelled")
			return ctx.Err()
		case <-f.done:
			f.logger.Info("framework stopped")
			return nil
		case <-f.wake:
		}
	}
}

// pump forwards stimuli from the configured EventSource until ctx is done
// or the source closes its channel.
func (f *Framework) pump(ctx context.Context) {
	events := f.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case <-f.done:
			return
		case s, ok := <-events:
			if !ok {
				return
			}
			f.inject(s)
		}
	}
}

func (f *Framework) inject(s Stimulus) {
	if s.Event == nil {
		f.logger.WithField("target", s.Target).Warn("stimulus without event dropped")
		return
	}
	if s.Target == "" {
		f.Publish(s.Event)
		return
	}
	ao, ok := f.Object(s.Target)
	if !ok {
		f.logger.WithFields(log.Fields{
			"target": s.Target,
			"signal": s.Event.Sig,
		}).Warn("stimulus for unknown active object dropped")
		f.mu.Lock()
		if s.Event.Refs() == 0 {
			f.pools.Release(s.Event)
		}
		f.mu.Unlock()
		return
	}
	f.Post(ao, s.Event)
}

// Stop makes Run return and RunUntilIdle stop after the current event.
func (f *Framework) Stop() {
	f.stopped.Do(func() {
		close(f.done)
	})
}

func (f *Framework) Stopped() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done is closed by Stop.
func (f *Framework) Done() <-chan struct{} {
	return f.done
}

// Tick advances every armed time event by one tick and posts those that
// expire, in the order they were created.
func (f *Framework) Tick() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ticks++
	for _, te := range f.timers {
		if te.ctr == 0 {
			continue
		}
		te.ctr--
		if te.ctr == 0 {
			te.ctr = te.interval
			f.postLocked(te.owner, te.evt)
		}
	}
}

// Ticks returns the number of Tick calls so far.
func (f *Framework) Ticks() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ticks
}

// Outstanding returns the number of pooled events currently allocated.
func (f *Framework) Outstanding() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pools.Outstanding()
}

// Idle reports whether no object has events queued.
func (f *Framework) Idle() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ready.empty()
}

func (f *Framework) postLocked(ao *ActiveObject, e *primitives.Event) {
	if !invariant.Check(ao != nil && ao.queue != nil, "post to an active object that was never started") {
		return
	}
	if !ao.queue.Put(e) {
		return
	}
	f.pools.Retain(e)
	f.readyLocked(ao.prio)
}

func (f *Framework) readyLocked(p uint8) {
	f.ready.insert(p)
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// recordState stores the behavior's current state name, if it reports one,
// so snapshots never call into a behavior concurrently with dispatch.
func (f *Framework) recordState(ao *ActiveObject) string {
	sn, ok := ao.behavior.(StateNamer)
	if !ok {
		return ""
	}
	name := sn.StateName()
	f.mu.Lock()
	ao.state = name
	f.mu.Unlock()
	return name
}
