// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gogama/httpq/transient"
)

// An Execution represents the state of a Request as it moves through
// the scheduler.
//
// Every Request has exactly one Execution, which lives for as long as
// the Request does and accumulates state across attempts: silent
// retries, redirects and pauses all reuse the same Execution. Only
// the worker which currently owns the Request writes to it, and the
// hooks and event handlers it invokes receive it as their input.
//
// Hooks and handlers may store their own data on an Execution with
// SetValue, but should treat its exported fields as read-only.
type Execution struct {
	// Request is the Request being executed. It is never nil.
	Request *Request

	// Worker is the pool slot of the worker which most recently
	// executed the Request, or -1 if the Request has never been
	// dispatched.
	Worker int

	// Start is the time the Request was first dispatched to a worker.
	// It is zero until then and constant thereafter.
	Start time.Time

	// End is the time the Request reached a terminal state. It is zero
	// until then.
	End time.Time

	// Attempt is the zero-based number of the current dispatch. It is
	// incremented each time the Request is re-admitted by a retry, a
	// redirect or a pause.
	Attempt int

	// Retries counts the silent retries consumed so far.
	Retries int

	// Redirects counts the redirects followed so far.
	Redirects int

	// Timeouts counts the attempts which ended in a timeout, whether
	// detected by the inactivity watchdog or by the transport. A
	// watchdog timeout kills the request, so only transport timeouts
	// can be followed by another attempt.
	Timeouts int

	// URL is the URL of the current or most recent attempt. It starts
	// out as the Request URL and changes when a redirect is followed.
	URL *url.URL

	// Response is the HTTP response of the most recent attempt, or nil
	// if the attempt failed before a response was received. Its Body
	// has already been consumed and closed by the time hooks other
	// than OnResponse see it.
	Response *http.Response

	// Body holds the response body read by the default response hook,
	// or the diagnostic body of an error response if the Request is
	// configured to read it.
	Body []byte

	// BytesRead and BytesWritten count the bytes transferred in the
	// response and request bodies of the most recent attempt.
	BytesRead, BytesWritten int64

	// Err is the error of the most recent attempt, or nil. A transport
	// failure is always wrapped in a *url.Error.
	Err error

	// Fault holds the value recovered from a panic during the most
	// recent attempt, or nil.
	Fault interface{}

	data context.Context
}

// NewExecution returns a fresh Execution for r.
func NewExecution(r *Request) *Execution {
	e := &Execution{
		Request: r,
		Worker:  -1,
	}
	if r != nil {
		e.URL = r.URL()
	}
	return e
}

// StatusCode returns the status code of the HTTP response from the
// most recent attempt, or 0 if there is no response.
func (e *Execution) StatusCode() int {
	if e.Response == nil {
		return 0
	}

	return e.Response.StatusCode
}

// Status returns the status line message of the HTTP response from the
// most recent attempt, for example "404 Not Found", or the empty
// string if there is no response.
func (e *Execution) Status() string {
	if e.Response == nil {
		return ""
	}

	return e.Response.Status
}

// Header returns the HTTP response headers from the most recent
// attempt, or the nil header if there is no response.
func (e *Execution) Header() http.Header {
	if e.Response == nil {
		var nilHeader http.Header
		return nilHeader
	}

	return e.Response.Header
}

// Duration returns the duration of the execution.
//
// If the execution has not yet started, the duration is zero. If the
// execution has ended, the duration returned is equal to End minus
// Start. Otherwise, it is equal to the current time minus Start.
func (e *Execution) Duration() time.Duration {
	if !e.Started() {
		return time.Duration(0)
	} else if !e.Ended() {
		return time.Since(e.Start)
	}

	return e.End.Sub(e.Start)
}

// Started indicates whether the Request has been dispatched to a
// worker at least once.
func (e *Execution) Started() bool {
	return e.Start != (time.Time{})
}

// Ended indicates whether the Request has reached a terminal state.
func (e *Execution) Ended() bool {
	return e.End != (time.Time{})
}

// Timeout indicates whether Err currently contains a timeout error.
func (e *Execution) Timeout() bool {
	cat := transient.Categorize(e.Err)
	return cat == transient.Timeout
}

// SetValue allows hooks and event handlers to store arbitrary data in
// the execution.
//
// The key must follow the same rules as the key parameter in
// context.WithValue: it may not be nil, it must be comparable, and it
// should not be of a built-in type to avoid collisions.
func (e *Execution) SetValue(key, value interface{}) {
	ctx := e.data
	if ctx == nil {
		ctx = context.Background()
	}

	e.data = context.WithValue(ctx, key, value)
}

// Value returns the data value associated with this execution for key,
// or nil if there is no value associated with key.
func (e *Execution) Value(key interface{}) interface{} {
	ctx := e.data
	if ctx == nil {
		return nil
	}

	return ctx.Value(key)
}
