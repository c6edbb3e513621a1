package core_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/invariant"
	"github.com/comalice/activex/internal/primitives"
	"github.com/comalice/activex/testutil"
)

const (
	sigA = primitives.UserSignal + iota
	sigB
	maxPub
	sigPrivate
)

func newTestFramework(t *testing.T, opts ...core.Option) *core.Framework {
	t.Helper()
	f, err := core.New(core.Config{
		MaxPubSignal: maxPub,
		Pools: []primitives.PoolConfig{
			{BlockSize: 8, Blocks: 4},
			{BlockSize: 32, Blocks: 2},
		},
	}, opts...)
	require.NoError(t, err)
	return f
}

func startProbe(t *testing.T, f *core.Framework, name string, p *testutil.Probe, prio uint8, qlen int) *core.ActiveObject {
	t.Helper()
	ao := core.NewActiveObject(name, p)
	require.NoError(t, f.Start(ao, prio, qlen))
	return ao
}

// journal renders every traced dispatch as "object:signal".
func journal(rec *testutil.Recorder) []string {
	var out []string
	for _, r := range rec.Records() {
		out = append(out, fmt.Sprintf("%s:%d", r.Object, r.Signal))
	}
	return out
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, core.Config{}.Validate())
	assert.NoError(t, core.Config{MaxPubSignal: primitives.UserSignal}.Validate())

	bad := core.Config{
		MaxPubSignal: maxPub,
		Pools:        []primitives.PoolConfig{{BlockSize: 16, Blocks: 1}, {BlockSize: 8, Blocks: 1}},
	}
	assert.ErrorIs(t, bad.Validate(), primitives.ErrPoolOrder)
	_, err := core.New(bad)
	assert.ErrorIs(t, err, primitives.ErrPoolOrder)
}

func TestStartRejectsBadConfiguration(t *testing.T) {
	f := newTestFramework(t)
	startProbe(t, f, "a", testutil.NewProbe(), 5, 4)

	tests := []struct {
		name string
		ao   *core.ActiveObject
		prio uint8
		qlen int
		want error
	}{
		{"zero priority", core.NewActiveObject("b", testutil.NewProbe()), 0, 4, core.ErrBadPriority},
		{"priority above range", core.NewActiveObject("b", testutil.NewProbe()), core.MaxActive + 1, 4, core.ErrBadPriority},
		{"duplicate priority", core.NewActiveObject("b", testutil.NewProbe()), 5, 4, core.ErrPriorityInUse},
		{"empty queue", core.NewActiveObject("b", testutil.NewProbe()), 6, 0, core.ErrQueueLength},
		{"nil behavior", core.NewActiveObject("b", nil), 6, 4, core.ErrNoBehavior},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, f.Start(tt.ao, tt.prio, tt.qlen), tt.want)
		})
	}
}

func TestStartTwice(t *testing.T) {
	f := newTestFramework(t)
	ao := startProbe(t, f, "a", testutil.NewProbe(), 1, 4)
	assert.ErrorIs(t, f.Start(ao, 2, 4), core.ErrAlreadyStarted)
}

func TestInitFailureFreesPriority(t *testing.T) {
	f := newTestFramework(t)
	boom := errors.New("boom")
	p := testutil.NewProbe()
	p.Setup = func(*core.ActiveObject) error { return boom }
	err := f.Start(core.NewActiveObject("a", p), 3, 4)
	assert.ErrorIs(t, err, boom)

	startProbe(t, f, "b", testutil.NewProbe(), 3, 4)
}

func TestInitFailureUndoesEverythingInitQueued(t *testing.T) {
	f := newTestFramework(t)
	boom := errors.New("boom")
	attempts := 0
	p := testutil.NewProbe(sigA)
	p.Setup = func(ao *core.ActiveObject) error {
		attempts++
		e := ao.NewEvent(sigB, 4)
		e.Data()[0] = byte(attempts)
		ao.Post(e)
		ao.NewTimeEvent(sigPrivate).Arm(1, 0)
		if attempts == 1 {
			return boom
		}
		return nil
	}
	ao := core.NewActiveObject("a", p)

	require.ErrorIs(t, f.Start(ao, 3, 4), boom)
	assert.Nil(t, ao.Framework())
	assert.Zero(t, f.Outstanding())
	assert.True(t, f.Idle())
	assert.Empty(t, f.Subscribers(sigA))
	_, ok := f.Object("a")
	assert.False(t, ok)

	// the timer armed by the failed Init must not fire
	assert.NotPanics(t, func() {
		f.Tick()
		assert.Zero(t, f.RunUntilIdle())
	})
	assert.True(t, f.Idle())
	assert.Empty(t, p.Received())

	// the same object starts cleanly on a second attempt
	require.NoError(t, f.Start(ao, 5, 4))
	assert.Equal(t, []string{"a"}, f.Subscribers(sigA))
	f.Tick()
	assert.Equal(t, 2, f.RunUntilIdle())
	assert.Equal(t, []primitives.Signal{sigB, sigPrivate}, p.Received())
	assert.Equal(t, byte(2), p.Payloads()[0][0])
	assert.Zero(t, f.Outstanding())

	startProbe(t, f, "b", testutil.NewProbe(), 3, 4)
}

func TestSubscribeOutOfRange(t *testing.T) {
	f := newTestFramework(t)
	err := f.Start(core.NewActiveObject("a", testutil.NewProbe(sigPrivate)), 1, 4)
	assert.ErrorIs(t, err, core.ErrBadSignal)

	ao := startProbe(t, f, "b", testutil.NewProbe(), 2, 4)
	assert.ErrorIs(t, ao.Subscribe(primitives.NoSignal), core.ErrBadSignal)
	assert.ErrorIs(t, ao.Unsubscribe(maxPub), core.ErrBadSignal)
}

func TestHigherPriorityRunsFirst(t *testing.T) {
	rec := &testutil.Recorder{}
	f := newTestFramework(t, core.WithTracer(rec))
	low := startProbe(t, f, "low", testutil.NewProbe(), 1, 4)
	high := startProbe(t, f, "high", testutil.NewProbe(), 9, 4)

	low.Post(primitives.NewStaticEvent(sigA, nil))
	low.Post(primitives.NewStaticEvent(sigB, nil))
	high.Post(primitives.NewStaticEvent(sigB, nil))

	assert.Equal(t, 3, f.RunUntilIdle())
	assert.Equal(t, []string{
		fmt.Sprintf("high:%d", sigB),
		fmt.Sprintf("low:%d", sigA),
		fmt.Sprintf("low:%d", sigB),
	}, journal(rec))
	assert.True(t, f.Idle())
	assert.False(t, f.Step())
}

func TestEventPostedDuringDispatchIsQueued(t *testing.T) {
	rec := &testutil.Recorder{}
	f := newTestFramework(t, core.WithTracer(rec))
	low := startProbe(t, f, "low", testutil.NewProbe(), 1, 4)
	relay := startProbe(t, f, "relay", testutil.NewProbe().On(sigA,
		func(ao *core.ActiveObject, e *primitives.Event) activex.Outcome {
			low.Post(primitives.NewStaticEvent(sigB, nil))
			ao.Post(primitives.NewStaticEvent(sigB, nil))
			return activex.Handled
		}), 2, 4)

	relay.Post(primitives.NewStaticEvent(sigA, nil))
	f.RunUntilIdle()

	// relay keeps the CPU after posting to itself; low runs last.
	assert.Equal(t, []string{
		fmt.Sprintf("relay:%d", sigA),
		fmt.Sprintf("relay:%d", sigB),
		fmt.Sprintf("low:%d", sigB),
	}, journal(rec))
}

func TestPublishDeliversOncePerSubscriberHighestFirst(t *testing.T) {
	rec := &testutil.Recorder{}
	f := newTestFramework(t, core.WithTracer(rec))
	p1 := testutil.NewProbe(sigA, sigA)
	startProbe(t, f, "p1", p1, 1, 4)
	startProbe(t, f, "p2", testutil.NewProbe(sigB), 2, 4)
	startProbe(t, f, "p3", testutil.NewProbe(sigA), 3, 4)

	assert.Equal(t, []string{"p3", "p1"}, f.Subscribers(sigA))

	e := f.NewEvent(sigA, 4)
	require.NotNil(t, e)
	e.Data()[0] = 7
	f.Publish(e)
	assert.Equal(t, uint32(2), e.Refs())
	assert.Equal(t, 1, f.Outstanding())

	f.RunUntilIdle()
	assert.Equal(t, []string{
		fmt.Sprintf("p3:%d", sigA),
		fmt.Sprintf("p1:%d", sigA),
	}, journal(rec))
	assert.Equal(t, byte(7), p1.Payloads()[0][0])
	assert.Zero(t, f.Outstanding())
}

func TestPublishWithoutSubscribersRecycles(t *testing.T) {
	f := newTestFramework(t)
	startProbe(t, f, "a", testutil.NewProbe(), 1, 4)

	f.Publish(f.NewEvent(sigB, 16))
	assert.Zero(t, f.Outstanding())
	assert.True(t, f.Idle())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	rec := &testutil.Recorder{}
	f := newTestFramework(t, core.WithTracer(rec))
	ao := startProbe(t, f, "a", testutil.NewProbe(sigA, sigB), 1, 4)

	require.NoError(t, ao.Unsubscribe(sigA))
	f.Publish(primitives.NewStaticEvent(sigA, nil))
	f.Publish(primitives.NewStaticEvent(sigB, nil))
	f.RunUntilIdle()
	assert.Equal(t, []primitives.Signal{sigB}, rec.Signals("a"))

	ao.UnsubscribeAll()
	assert.Empty(t, f.Subscribers(sigB))
}

func TestSubscriberAddedDuringDispatchMissesEarlierPublish(t *testing.T) {
	rec := &testutil.Recorder{}
	f := newTestFramework(t, core.WithTracer(rec))
	late := startProbe(t, f, "late", testutil.NewProbe(), 1, 4)
	startProbe(t, f, "early", testutil.NewProbe(sigA).On(sigA,
		func(*core.ActiveObject, *primitives.Event) activex.Outcome {
			require.NoError(t, late.Subscribe(sigA))
			return activex.Handled
		}), 2, 4)

	f.Publish(primitives.NewStaticEvent(sigA, nil))
	f.RunUntilIdle()
	assert.Equal(t, []string{fmt.Sprintf("early:%d", sigA)}, journal(rec))
	assert.Equal(t, []string{"early", "late"}, f.Subscribers(sigA))
}

func TestPostOverflowIsFatal(t *testing.T) {
	m := invariant.NewMockViolationExecutor(t)
	f := newTestFramework(t)
	ao := startProbe(t, f, "tiny", testutil.NewProbe(), 1, 1)

	ao.Post(primitives.NewStaticEvent(sigA, nil))
	m.On("Exec", invariant.ViolationError{Statement: `event queue "tiny" overflow: capacity 1`}).Once()
	ao.Post(f.NewEvent(sigB, 1))
}

func TestPublishOutOfRangeIsFatal(t *testing.T) {
	m := invariant.NewMockViolationExecutor(t)
	f := newTestFramework(t)

	m.On("Exec", invariant.ViolationError{
		Statement: fmt.Sprintf("publish of signal %d outside 1..%d", sigPrivate, maxPub-1),
	}).Once()
	f.Publish(primitives.NewStaticEvent(sigPrivate, nil))
}

func TestDefaultExecutorPanicsOnOverflow(t *testing.T) {
	f := newTestFramework(t)
	ao := startProbe(t, f, "tiny", testutil.NewProbe(), 1, 1)
	ao.Post(primitives.NewStaticEvent(sigA, nil))
	assert.Panics(t, func() {
		ao.Post(primitives.NewStaticEvent(sigA, nil))
	})
}

func TestTryPostKeepsMargin(t *testing.T) {
	f := newTestFramework(t)
	ao := startProbe(t, f, "a", testutil.NewProbe(), 1, 3)

	assert.True(t, f.TryPost(ao, f.NewEvent(sigA, 1), 1))
	assert.True(t, f.TryPost(ao, f.NewEvent(sigA, 1), 1))
	assert.False(t, f.TryPost(ao, f.NewEvent(sigA, 1), 1))
	assert.Equal(t, 2, f.Outstanding())

	f.RunUntilIdle()
	assert.Zero(t, f.Outstanding())
	snap := f.Snapshot()
	require.Len(t, snap.Objects, 1)
	assert.Equal(t, 1, snap.Objects[0].QueueMinFree)
}

func TestTryPostNegativeMarginIsFatal(t *testing.T) {
	m := invariant.NewMockViolationExecutor(t)
	f := newTestFramework(t)
	p := testutil.NewProbe()
	ao := startProbe(t, f, "a", p, 1, 2)

	first := f.NewEvent(sigA, 1)
	first.Data()[0] = 1
	second := f.NewEvent(sigA, 1)
	second.Data()[0] = 2
	f.Post(ao, first)
	f.Post(ao, second)

	m.On("Exec", invariant.ViolationError{Statement: `event queue "a": negative margin -1`}).Once()
	assert.False(t, f.TryPost(ao, f.NewEvent(sigB, 1), -1))
	assert.Equal(t, 2, f.Outstanding())

	assert.Equal(t, 2, f.RunUntilIdle())
	assert.Equal(t, []primitives.Signal{sigA, sigA}, p.Received())
	assert.Equal(t, [][]byte{{1}, {2}}, p.Payloads())
	assert.Zero(t, f.Outstanding())
}

func TestOneShotTimeEvent(t *testing.T) {
	f := newTestFramework(t)
	p := testutil.NewProbe()
	ao := startProbe(t, f, "a", p, 1, 4)
	te := ao.NewTimeEvent(sigPrivate)

	te.Arm(2, 0)
	assert.True(t, te.Armed())
	f.Tick()
	assert.True(t, f.Idle())
	f.Tick()
	assert.False(t, te.Armed())
	f.RunUntilIdle()
	assert.Equal(t, []primitives.Signal{sigPrivate}, p.Received())

	f.Tick()
	f.Tick()
	assert.True(t, f.Idle())
	assert.Equal(t, uint64(4), f.Ticks())
}

func TestPeriodicTimeEvent(t *testing.T) {
	f := newTestFramework(t)
	p := testutil.NewProbe()
	ao := startProbe(t, f, "a", p, 1, 4)
	te := ao.NewTimeEvent(sigA)

	te.Arm(1, 3)
	for i := 0; i < 7; i++ {
		f.Tick()
		f.RunUntilIdle()
	}
	// fires on ticks 1, 4 and 7
	assert.Len(t, p.Received(), 3)
	assert.True(t, te.Disarm())
	assert.False(t, te.Disarm())
}

func TestRearmRestartsCountdown(t *testing.T) {
	f := newTestFramework(t)
	ao := startProbe(t, f, "a", testutil.NewProbe(), 1, 4)
	te := ao.NewTimeEvent(sigA)

	assert.False(t, te.Rearm(3))
	f.Tick()
	f.Tick()
	assert.True(t, te.Rearm(3))
	f.Tick()
	f.Tick()
	assert.True(t, f.Idle())
	f.Tick()
	assert.False(t, f.Idle())
}

func TestArmTwiceIsFatal(t *testing.T) {
	m := invariant.NewMockViolationExecutor(t)
	f := newTestFramework(t)
	ao := startProbe(t, f, "a", testutil.NewProbe(), 1, 4)
	te := ao.NewTimeEvent(sigA)

	te.Arm(5, 0)
	m.On("Exec", invariant.ViolationError{
		Statement: fmt.Sprintf("time event %v for a is already armed", sigA),
	}).Once()
	te.Arm(1, 0)
}

func TestSnapshotAndTrace(t *testing.T) {
	rec := &testutil.Recorder{}
	f := newTestFramework(t, core.WithTracer(rec), core.WithRunID("run-1"))
	ao := startProbe(t, f, "a", testutil.NewProbe(sigB).Goto(sigA, "busy"), 4, 2)
	startProbe(t, f, "b", testutil.NewProbe(), 7, 3)

	snap := f.Snapshot()
	assert.Equal(t, "run-1", snap.RunID)
	require.Len(t, snap.Objects, 2)
	assert.Equal(t, "b", snap.Objects[0].Name)
	assert.Equal(t, core.ObjectSnapshot{
		Name:          "a",
		Priority:      4,
		State:         "idle",
		QueueLen:      0,
		QueueCap:      2,
		QueueMinFree:  2,
		Subscriptions: []primitives.Signal{sigB},
	}, snap.Objects[1])
	assert.Len(t, snap.Pools, 2)

	ao.Post(primitives.NewStaticEvent(sigA, nil))
	f.RunUntilIdle()

	recs := rec.Records()
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(1), recs[0].Seq)
	assert.Equal(t, "a", recs[0].Object)
	assert.Equal(t, "idle", recs[0].From)
	assert.Equal(t, "busy", recs[0].To)
	assert.Equal(t, activex.Transitioned, recs[0].Outcome)
	assert.Equal(t, []string{"busy"}, rec.Transitions("a"))
	assert.Equal(t, "busy", f.Snapshot().Objects[1].State)

	found, ok := f.Object("a")
	assert.True(t, ok)
	assert.Same(t, ao, found)
	_, ok = f.Object("zzz")
	assert.False(t, ok)
}

type chanSource chan core.Stimulus

func (c chanSource) Events() <-chan core.Stimulus { return c }

func TestRunPumpsSourceUntilStopped(t *testing.T) {
	src := make(chanSource, 4)
	f := newTestFramework(t, core.WithEventSource(src))
	got := make(chan primitives.Signal, 4)
	react := func(ao *core.ActiveObject, e *primitives.Event) activex.Outcome {
		got <- e.Sig
		if e.Sig == sigB {
			ao.Framework().Stop()
		}
		return activex.Handled
	}
	ao := startProbe(t, f, "a", testutil.NewProbe(sigA).On(sigA, react).On(sigB, react), 1, 4)

	errc := make(chan error, 1)
	go func() { errc <- f.Run(context.Background()) }()

	src <- core.Stimulus{Event: primitives.NewStaticEvent(sigA, nil)}
	src <- core.Stimulus{Target: "nobody", Event: f.NewEvent(sigB, 1)}
	src <- core.Stimulus{Target: ao.Name(), Event: primitives.NewStaticEvent(sigB, nil)}

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Stop")
	}
	assert.Equal(t, sigA, <-got)
	assert.Equal(t, sigB, <-got)
	assert.True(t, f.Stopped())
	assert.Zero(t, f.Outstanding())
}

func TestRunDropsStimulusWithoutEvent(t *testing.T) {
	src := make(chanSource, 3)
	f := newTestFramework(t, core.WithEventSource(src))
	p := testutil.NewProbe().On(sigB, func(ao *core.ActiveObject, _ *primitives.Event) activex.Outcome {
		ao.Framework().Stop()
		return activex.Handled
	})
	startProbe(t, f, "a", p, 1, 4)

	src <- core.Stimulus{Target: "a"}
	src <- core.Stimulus{}
	src <- core.Stimulus{Target: "a", Event: primitives.NewStaticEvent(sigB, nil)}

	errc := make(chan error, 1)
	go func() { errc <- f.Run(context.Background()) }()

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not deliver the stimulus after the empty ones")
	}
	assert.Equal(t, []primitives.Signal{sigB}, p.Received())
}

func TestRunReturnsOnCancel(t *testing.T) {
	f := newTestFramework(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()

	cancel()
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestDispatchIsSerializedAcrossRunners(t *testing.T) {
	const n = 32
	f := newTestFramework(t)
	var inflight, peak atomic.Int32
	p := testutil.NewProbe().On(sigA, func(*core.ActiveObject, *primitives.Event) activex.Outcome {
		cur := inflight.Add(1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		inflight.Add(-1)
		return activex.Handled
	})
	ao := startProbe(t, f, "a", p, 1, n)
	for i := 0; i < n; i++ {
		ao.Post(primitives.NewStaticEvent(sigA, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()
	stepped := make(chan int, 1)
	go func() { stepped <- f.RunUntilIdle() }()

	require.Eventually(t, func() bool {
		return len(p.Received()) == n
	}, 5*time.Second, time.Millisecond)
	<-stepped
	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	assert.Equal(t, int32(1), peak.Load())
	assert.True(t, f.Idle())
}

// sink handles everything without recording, so benchmarks measure only
// the framework.
type sink struct{ subs []primitives.Signal }

func (s sink) Init(ao *core.ActiveObject) error {
	for _, sig := range s.subs {
		if err := ao.Subscribe(sig); err != nil {
			return err
		}
	}
	return nil
}

func (sink) Dispatch(*primitives.Event) activex.Outcome { return activex.Handled }

func (sink) StateName() string { return "" }

func BenchmarkPostDispatch(b *testing.B) {
	f, err := core.New(core.Config{MaxPubSignal: maxPub})
	require.NoError(b, err)
	ao := core.NewActiveObject("bench", sink{})
	require.NoError(b, f.Start(ao, 1, 16))
	e := primitives.NewStaticEvent(sigA, nil)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Post(ao, e)
		f.Step()
	}
}

func BenchmarkPublishFanOut(b *testing.B) {
	f, err := core.New(core.Config{
		MaxPubSignal: maxPub,
		Pools:        []primitives.PoolConfig{{BlockSize: 8, Blocks: 4}},
	})
	require.NoError(b, err)
	for p := uint8(1); p <= 8; p++ {
		ao := core.NewActiveObject(fmt.Sprintf("s%d", p), sink{subs: []primitives.Signal{sigA}})
		require.NoError(b, f.Start(ao, p, 4))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Publish(f.NewEvent(sigA, 1))
		f.RunUntilIdle()
	}
}
