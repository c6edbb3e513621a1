// Package inspect serves a read-only HTTP view of a running framework.
package inspect

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"

	"github.com/comalice/activex"
	"github.com/comalice/activex/internal/core"
	"github.com/comalice/activex/internal/production"
)

// MachineOwner is implemented by behaviors that expose their state machine.
type MachineOwner interface {
	Machine() *activex.Machine
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
	ErrorType    string `json:"errorType"`
}

type handler struct {
	fw  *core.Framework
	viz *production.DefaultVisualizer
}

// NewRouter builds the diagnostics router for fw. names labels signals in
// rendered diagrams and may be nil.
func NewRouter(fw *core.Framework, names func(activex.Signal) string) *chi.Mux {
	h := &handler{fw: fw, viz: &production.DefaultVisualizer{SignalName: names}}

	r := chi.NewRouter()
	r.Use(accessLogDecorator)

	r.Get("/snapshot", h.snapshot)
	r.Get("/objects", h.objects)
	r.Get("/objects/{name}", h.object)
	r.Get("/objects/{name}/dot", h.dot)
	r.Get("/pools", h.pools)
	return r
}

func (h *handler) snapshot(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.fw.Snapshot())
}

func (h *handler) objects(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.fw.Snapshot().Objects)
}

func (h *handler) pools(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, h.fw.Snapshot().Pools)
}

func (h *handler) object(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	for _, obj := range h.fw.Snapshot().Objects {
		if obj.Name == name {
			render.JSON(w, r, obj)
			return
		}
	}
	notFound(w, r, "Object.NotFound", "no active object named "+name)
}

func (h *handler) dot(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ao, ok := h.fw.Object(name)
	if !ok {
		notFound(w, r, "Object.NotFound", "no active object named "+name)
		return
	}
	owner, ok := ao.Behavior().(MachineOwner)
	if !ok {
		notFound(w, r, "Object.NoMachine", name+" does not expose a state machine")
		return
	}

	var current string
	for _, obj := range h.fw.Snapshot().Objects {
		if obj.Name == name {
			current = obj.State
		}
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(h.viz.ExportDOT(owner.Machine(), current)))
}

func notFound(w http.ResponseWriter, r *http.Request, errType, msg string) {
	render.Status(r, http.StatusNotFound)
	render.JSON(w, r, &ErrorResponse{ErrorMessage: msg, ErrorType: errType})
}

func accessLogDecorator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		entry := log.WithFields(log.Fields{"component": "inspect", "status": status})
		if status/100 != 2 {
			entry.Warnf("%s %s", r.Method, r.URL)
		} else {
			entry.Debugf("%s %s", r.Method, r.URL)
		}
	})
}
