// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"github.com/gogama/httpq/request"
)

// emptyHandlers stands in when Config.Handlers is nil.
var emptyHandlers = HandlerGroup{}

// A HandlerGroup holds one handler chain per scheduler Event. Set it
// as Config.Handlers to observe every Request the Scheduler runs: its
// admission (Enqueued), each attempt (BeforeExecute, AfterResponse),
// the re-admissions that follow it (AfterRedirect, AfterRetry), and
// how it ends (AfterComplete, AfterFailure, AfterTimeout or
// AfterKill). The metrics package's Collector is one such observer.
//
// Each event runs on the goroutine that caused it: the caller of
// Enqueue, Kill or Close, a worker, the watchdog, or the Dispatcher
// answering a retry prompt. The Scheduler's lock is never held while
// handlers run. A HandlerGroup must not be modified once its Scheduler
// has started, and its handlers must be safe for concurrent use. A
// slow handler holds up the worker it runs on.
type HandlerGroup struct {
	chains [numEvents][]Handler
}

// PushBack appends h to the chain for evt. Handlers in a chain run in
// the order they were pushed.
func (g *HandlerGroup) PushBack(evt Event, h Handler) {
	if h == nil {
		panic("httpq: nil handler")
	}
	if evt < 0 || evt >= eventSentinel {
		panic("httpq: unknown event")
	}
	g.chains[evt] = append(g.chains[evt], h)
}

// PushBackAll appends h to the chain of every event in evts, or of
// every Event there is if evts is empty.
func (g *HandlerGroup) PushBackAll(h Handler, evts ...Event) {
	if len(evts) == 0 {
		evts = Events()
	}
	for _, evt := range evts {
		g.PushBack(evt, h)
	}
}

// Len returns the number of handlers chained for evt.
func (g *HandlerGroup) Len(evt Event) int {
	if evt < 0 || evt >= eventSentinel {
		return 0
	}
	return len(g.chains[evt])
}

func (g *HandlerGroup) run(evt Event, e *request.Execution) {
	for _, h := range g.chains[evt] {
		h.Handle(evt, e)
	}
}

// A Handler is told about an Event in the life of a Request. The
// Execution passed is the Request's own, and a worker may update it as
// soon as the handler returns.
type Handler interface {
	Handle(Event, *request.Execution)
}

// The HandlerFunc type is an adapter to allow the use of ordinary
// functions as event handlers. If f is a function with appropriate
// signature, then HandlerFunc(f) is a Handler that calls f.
type HandlerFunc func(Event, *request.Execution)

// Handle calls f(evt, e).
func (f HandlerFunc) Handle(evt Event, e *request.Execution) {
	f(evt, e)
}
