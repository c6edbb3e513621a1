// Package dpp is the dining philosophers application: N Philosopher active
// objects at priorities 1..N and one Table at priority N+1 that owns every
// fork.
package dpp

import (
	"context"
	"fmt"

	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/primitives"
)

// App wires a framework, its table and its philosophers.
type App struct {
	cfg          Config
	fw           *core.Framework
	table        *Table
	philosophers []*Philosopher

	pause     *primitives.Event
	serve     *primitives.Event
	terminate *primitives.Event
}

// New validates cfg, builds the framework and starts every active object.
func New(cfg Config, opts ...core.Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	fw, err := core.New(cfg.Runtime, opts...)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		fw:        fw,
		pause:     primitives.NewStaticEvent(SigPause, nil),
		serve:     primitives.NewStaticEvent(SigServe, nil),
		terminate: primitives.NewStaticEvent(SigTerminate, nil),
	}
	a.table, err = newTable(&a.cfg)
	if err != nil {
		return nil, err
	}
	tableAO := core.NewActiveObject("table", a.table)

	for n := 0; n < cfg.Philosophers; n++ {
		p, err := newPhilosopher(n, &a.cfg, tableAO)
		if err != nil {
			return nil, err
		}
		ao := core.NewActiveObject(fmt.Sprintf("philo[%d]", n), p)
		if err := fw.Start(ao, uint8(n+1), cfg.PhiloQueue); err != nil {
			return nil, err
		}
		a.philosophers = append(a.philosophers, p)
	}
	if err := fw.Start(tableAO, uint8(cfg.Philosophers+1), cfg.TableQueue); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) Framework() *core.Framework {
	return a.fw
}

func (a *App) Table() *Table {
	return a.table
}

func (a *App) Philosopher(n int) *Philosopher {
	return a.philosophers[n]
}

func (a *App) Philosophers() []*Philosopher {
	return a.philosophers
}

// Run dispatches events until TERMINATE, Stop or ctx cancellation.
func (a *App) Run(ctx context.Context) error {
	return a.fw.Run(ctx)
}

// Pause asks the table to stop granting forks. Requests keep queueing.
func (a *App) Pause() {
	a.fw.Post(a.table.ao, a.pause)
}

// Serve resumes granting.
func (a *App) Serve() {
	a.fw.Post(a.table.ao, a.serve)
}

// Terminate publishes TERMINATE; the table stops the framework.
func (a *App) Terminate() {
	a.fw.Publish(a.terminate)
}

// PauseEvent and ServeEvent are the static events an external stimulus
// source posts to the table.
func (a *App) PauseEvent() *primitives.Event {
	return a.pause
}

func (a *App) ServeEvent() *primitives.Event {
	return a.serve
}
