// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"time"

	"github.com/gogama/httpq/request"
	"github.com/gogama/httpq/transient"
)

// A Decider decides if a silent retry should be done.
//
// Implementations of Decider must be safe for concurrent use by
// multiple goroutines.
//
// Use the built-in deciders Budget and TransientErr, and the built-in
// constructors Times, StatusCode, and Before; or implement your own
// Decider. Use DeciderFunc to convert an ordinary function into a
// Decider, and to compose deciders logically using DeciderFunc.And and
// DeciderFunc.Or.
type Decider interface {
	Decide(e *request.Execution) bool
}

// The DeciderFunc type is an adapter to allow the use of ordinary
// functions as retry deciders. It implements the Decider interface, and
// also provides the logical composition methods And and Or.
//
// Every DeciderFunc must be safe for concurrent use by multiple
// goroutines.
type DeciderFunc func(e *request.Execution) bool

// DefaultDecider retries any transport failure while the request has
// retry budget left.
var DefaultDecider = Budget

// Budget is a decider that returns true while the request's silent
// retry budget (request.Request.RetryBudget) is not yet used up.
var Budget DeciderFunc = budget

// TransientErr is a decider that indicates a retry if the current
// error is transient according to transient.Categorize.
//
// TransientErr only looks at the error, so it will always return false
// if a valid HTTP response was received.
var TransientErr DeciderFunc = transientErr

// Decide returns true if a retry should be done, and false otherwise,
// after examining the current execution state.
func (f DeciderFunc) Decide(e *request.Execution) bool {
	return f(e)
}

// And composes two retry deciders into a new decider which returns true
// if both sub-deciders return true, and false otherwise.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// false.
func (f DeciderFunc) And(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) && g(e)
	}
}

// Or composes two retry deciders into a new decider which returns
// true if either of the two sub-deciders returns true, but false if
// they both return false.
//
// Short-circuit logic is used, so g will not be evaluated if f returns
// true.
func (f DeciderFunc) Or(g DeciderFunc) DeciderFunc {
	return func(e *request.Execution) bool {
		return f(e) || g(e)
	}
}

// Times constructs a retry decider which allows up to n silent
// retries, regardless of the request's own budget. The returned decider
// returns true while e.Retries is less than n.
func Times(n int) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Retries < n
	}
}

// Before constructs a retry decider allowing retries until a certain
// amount of time has elapsed since the request was first dispatched.
func Before(d time.Duration) DeciderFunc {
	return func(e *request.Execution) bool {
		return e.Duration() < d
	}
}

// StatusCode constructs a decider which returns true if the most
// recent attempt received an HTTP response whose status code is in ss.
//
// The scheduler never consults its retry policy for HTTP responses,
// but StatusCode is handy inside an OnError hook.
func StatusCode(ss ...int) DeciderFunc {
	ss2 := make([]int, len(ss))
	copy(ss2, ss)
	return func(e *request.Execution) bool {
		for _, s := range ss2 {
			if e.StatusCode() == s {
				return true
			}
		}
		return false
	}
}

func budget(e *request.Execution) bool {
	return e.Request != nil && e.Request.RetriesLeft() > 0
}

func transientErr(e *request.Execution) bool {
	return transient.Is(e.Err)
}
