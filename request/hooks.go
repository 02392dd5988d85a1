// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"io"
	"net/url"
)

// An Action is a hook's decision about a failed attempt.
type Action int

const (
	// Fail finalizes the Request in the Failed state.
	Fail Action = iota
	// Retry re-admits the Request at High priority. It does not
	// consume the silent retry budget.
	Retry
	// Ask defers the decision to the scheduler's retry prompt, which
	// runs on the caller's dispatcher. Without a prompt, Ask behaves
	// like Fail.
	Ask
)

// String returns the name of the action.
func (a Action) String() string {
	switch a {
	case Fail:
		return "Fail"
	case Retry:
		return "Retry"
	case Ask:
		return "Ask"
	default:
		return "Action(?)"
	}
}

// Hooks is the strategy a Request uses to take part in its own
// execution. Every field is optional; a nil hook selects the default
// behavior documented on the field.
//
// All hooks except OnComplete run on the worker which owns the
// Request. They must not block for long, and anything user-facing
// should be handed over to the caller's own scheduling context.
type Hooks struct {
	// OnResponse consumes the body of a successful (2xx) response. The
	// reader is a progress stream: reading from it updates transfer
	// counters and keeps the timeout watchdog at bay. A non-nil error
	// fails the attempt and is handled like a protocol failure.
	//
	// By default the body is read fully into Execution.Body.
	OnResponse func(e *Execution, body io.Reader) error

	// OnError handles a non-2xx response that is not followed as a
	// redirect, and a redirect chain that is too long.
	//
	// By default the Request fails.
	OnError func(e *Execution) Action

	// OnIOFailure handles a transport failure once the silent retry
	// budget is exhausted. The error is also in Execution.Err.
	//
	// By default the decision is deferred to the retry prompt (Ask).
	OnIOFailure func(e *Execution, err error) Action

	// OnFault handles a panic recovered during the attempt. It does not
	// consume the silent retry budget. The recovered value is also in
	// Execution.Fault.
	//
	// By default the decision is deferred to the retry prompt (Ask).
	OnFault func(e *Execution, fault interface{}) Action

	// OnRedirect is consulted before a redirect is followed. Returning
	// true intercepts the redirect: the Request completes without
	// being re-admitted, and the hook is responsible for whatever
	// follows.
	OnRedirect func(e *Execution, location *url.URL) bool

	// CookieHeader may replace the Cookie header value computed from
	// the scheduler's cookie jar. Returning the empty string sends no
	// Cookie header.
	CookieHeader func(e *Execution, value string) string

	// OnProgress is called after each chunk is transferred with the
	// cumulative number of response bytes read and request bytes
	// written during the current attempt.
	OnProgress func(e *Execution, read, written int64)

	// OnComplete is called once the Request completes. It runs on the
	// scheduler's dispatcher, never on a worker.
	OnComplete func(e *Execution)
}
