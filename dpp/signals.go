package dpp

import (
	"fmt"

	"github.com/comalice/activex/internal/primitives"
)

// Published signals come first so that MaxPubSig sizes the registry.
const (
	SigEat primitives.Signal = primitives.UserSignal + iota
	SigDone
	SigTerminate
	MaxPubSig

	SigHungry
	SigTimeout
	SigPause
	SigServe
)

var signalNames = map[primitives.Signal]string{
	SigEat:       "EAT",
	SigDone:      "DONE",
	SigTerminate: "TERMINATE",
	SigHungry:    "HUNGRY",
	SigTimeout:   "TIMEOUT",
	SigPause:     "PAUSE",
	SigServe:     "SERVE",
}

// SignalName returns the symbolic name of sig for logs and traces.
func SignalName(sig primitives.Signal) string {
	if name, ok := signalNames[sig]; ok {
		return name
	}
	return fmt.Sprintf("SIG(%d)", sig)
}

// TableEvt payloads carry the philosopher number in their first byte.
const tableEvtSize = 1

func philoNum(e *primitives.Event) int {
	if e.Len() < tableEvtSize {
		return -1
	}
	return int(e.Data()[0])
}
