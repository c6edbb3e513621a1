// Package realtime provides the clock that drives time events.
//
// A Clock calls Tick on its target at a fixed rate from its own goroutine.
// The framework turns ticks into TIMEOUT-style events posted to active
// objects; the clock never dispatches anything itself, so timing jitter
// changes when events are queued but never the order in which one object
// sees them.
//
// # Example Usage
//
//	fw, _ := core.New(cfg)
//	clk := realtime.NewClock(fw, realtime.Config{
//		TickRate: 10 * time.Millisecond, // 100 Hz
//	})
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(func() error { return fw.Run(ctx) })
//	g.Go(func() error { return clk.Run(ctx) })
//
// # Failure
//
// A tick that posts into a full queue violates a runtime contract and
// panics. Run recovers that panic and returns it as an error so the
// process can shut down with a diagnostic instead of losing the goroutine.
//
// # Tick Rates
//
// At 100 Hz (10ms tick rate) a philosopher with think_ticks: 7 thinks for
// 70ms. Tests do not use a Clock; they call Framework.Tick directly for
// reproducible runs.
package realtime
