// Command dpp runs the dining philosophers on the activex framework.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/comalice/activex/dpp"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/extensibility"
	"github.com/comalice/activex/internal/inspect"
	"github.com/comalice/activex/internal/invariant"
	"github.com/comalice/activex/internal/logging"
	"github.com/comalice/activex/internal/primitives"
	"github.com/comalice/activex/internal/production"
	"github.com/comalice/activex/realtime"
)

type options struct {
	Config         string        `long:"config" description:"YAML configuration file"`
	LogLevel       string        `long:"log-level" default:"info" description:"log level"`
	LogFormat      string        `long:"log-format" default:"text" choice:"text" choice:"json" description:"log output format"`
	TickRate       time.Duration `long:"tick-rate" default:"10ms" description:"clock tick period"`
	Duration       time.Duration `long:"duration" description:"run this long, then terminate; zero runs until interrupted"`
	ButtonPeriod   time.Duration `long:"button-period" description:"alternate PAUSE and SERVE to the table at this period; zero disables"`
	SnapshotDir    string        `long:"snapshot-dir" description:"write a diagnostic snapshot to this directory on exit"`
	SnapshotFormat string        `long:"snapshot-format" default:"json" choice:"json" choice:"yaml" description:"snapshot encoding"`
	InspectAddr    string        `long:"inspect-addr" description:"serve read-only diagnostics on this address"`
	Trace          bool          `long:"trace" description:"log every dispatched event"`
}

func main() {
	opts := getCLIArgs()
	if err := logging.Configure(opts.LogLevel, opts.LogFormat); err != nil {
		log.WithError(err).Fatal("Failed to configure logging")
	}
	invariant.SetViolationExecutor(invariant.NewLoggingViolationExecutor(nil))

	if err := run(opts); err != nil {
		log.WithError(err).Fatal("dpp failed")
	}
}

func getCLIArgs() options {
	var opts options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flags.WroteHelp(err) {
			os.Exit(0)
		}
		os.Exit(2)
	}
	return opts
}

func run(opts options) error {
	cfg := dpp.DefaultConfig()
	if opts.Config != "" {
		var err error
		if cfg, err = dpp.LoadConfig(opts.Config); err != nil {
			return err
		}
	}

	var coreOpts []core.Option
	if opts.Trace {
		coreOpts = append(coreOpts, core.WithTracer(
			extensibility.NewLoggingTracer(log.WithField("component", "trace"), dpp.SignalName)))
	}
	if opts.ButtonPeriod > 0 {
		button := extensibility.NewTimerEventSource("table", []*primitives.Event{
			primitives.NewStaticEvent(dpp.SigPause, nil),
			primitives.NewStaticEvent(dpp.SigServe, nil),
		}, opts.ButtonPeriod)
		defer button.Stop()
		coreOpts = append(coreOpts, core.WithEventSource(button))
	}

	app, err := dpp.New(cfg, coreOpts...)
	if err != nil {
		return err
	}
	fw := app.Framework()
	log.WithFields(log.Fields{
		"run":          fw.RunID(),
		"philosophers": cfg.Philosophers,
		"tickRate":     opts.TickRate,
	}).Info("dining philosophers starting")

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		sigCtx, cancel = context.WithTimeout(sigCtx, opts.Duration)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(context.Background())
	runCtx, stopRun := context.WithCancel(gctx)
	defer stopRun()

	g.Go(func() error {
		defer stopRun()
		return guard(func() error { return ignoreCancel(app.Run(gctx)) })
	})

	// The table stops the framework when it sees TERMINATE.
	g.Go(func() error {
		select {
		case <-sigCtx.Done():
			log.Info("terminating")
			app.Terminate()
		case <-runCtx.Done():
		}
		return nil
	})

	clock := realtime.NewClock(fw, realtime.Config{TickRate: opts.TickRate})
	g.Go(func() error {
		return clock.Run(runCtx)
	})

	if opts.InspectAddr != "" {
		srv := &http.Server{
			Addr:              opts.InspectAddr,
			Handler:           inspect.NewRouter(fw, dpp.SignalName),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			log.WithField("addr", opts.InspectAddr).Info("inspection server listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("inspect server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-runCtx.Done()
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
	}

	err = g.Wait()
	if opts.SnapshotDir != "" {
		if serr := saveSnapshot(opts, fw.Snapshot()); serr != nil {
			err = errors.Join(err, serr)
		}
	}
	log.WithFields(log.Fields{
		"ticks":       fw.Ticks(),
		"outstanding": fw.Outstanding(),
	}).Info("dining philosophers stopped")
	return err
}

func saveSnapshot(opts options, snap core.Snapshot) error {
	p, err := production.NewPersister(opts.SnapshotFormat, opts.SnapshotDir)
	if err != nil {
		return err
	}
	if err := p.Save(context.Background(), snap); err != nil {
		return err
	}
	log.WithFields(log.Fields{"dir": opts.SnapshotDir, "run": snap.RunID}).Info("snapshot written")
	return nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// guard turns a contract violation raised while dispatching into an error so
// the other goroutines shut down and the snapshot is still written.
func guard(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			v, ok := r.(invariant.ViolationError)
			if !ok {
				panic(r)
			}
			err = fmt.Errorf("dispatch: %w", v)
		}
	}()
	return fn()
}
