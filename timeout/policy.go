// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import (
	"time"

	"github.com/gogama/httpq/request"
)

// A Policy defines a timeout policy which may be plugged into the
// scheduler (httpq.Config) to direct the inactivity timeout enforced
// on each attempt of a request.
//
// Implementations of Policy must be safe for concurrent use by multiple
// goroutines.
type Policy interface {
	// Timeout returns the inactivity timeout to enforce on the next
	// attempt within the execution e. A non-positive value disables
	// the timeout.
	Timeout(e *request.Execution) time.Duration
}

// DefaultGlobal is the global timeout used by DefaultPolicy.
const DefaultGlobal = 30 * time.Second

// DefaultPolicy is the default timeout policy. It applies the
// request's own timeout if positive, and DefaultGlobal otherwise.
var DefaultPolicy Policy = Global(DefaultGlobal)

// Infinite is a built-in timeout policy which never times out.
var Infinite Policy = Fixed(1<<63 - 1)

// Global constructs a timeout policy which uses the request's own
// Timeout when it is positive, and d otherwise. This is the effective
// timeout rule the scheduler applies by default.
func Global(d time.Duration) Policy {
	return global(d)
}

type global time.Duration

func (g global) Timeout(e *request.Execution) time.Duration {
	if e.Request != nil && e.Request.Timeout > 0 {
		return e.Request.Timeout
	}

	return time.Duration(g)
}

// Fixed constructs a timeout policy that uses the same value for every
// attempt, ignoring any per-request override.
func Fixed(d time.Duration) Policy {
	return policy([]time.Duration{d})
}

// Adaptive constructs a timeout policy that varies the next timeout
// value if the previous attempt timed out.
//
// Parameter usual represents the timeout value the policy will return
// for an initial attempt and for any attempt where the immediately
// preceding attempt did not time out.
//
// Parameter after contains timeout values the policy will return if
// the previous attempt timed out. If this was the first timeout of the
// execution, after[0] is returned; if the second, after[1], and so on.
// If more attempts have timed out within the execution than after has
// elements, then the last element of after is returned.
//
// Consider the following timeout policy:
//
// 	p := Adaptive(5*time.Second, 10*time.Second, 30*time.Second)
//
// The policy p will use 5 seconds as the usual timeout but if the
// preceding attempt timed out and was the first timeout of the
// execution, it will use 10 seconds; after any further timeout it
// will use 30 seconds.
//
// Only attempts that end in a timeout and are then retried reach the
// policy again. A timeout reported by the transport is a transport
// failure, so it comes back through a silent retry or an OnIOFailure
// hook returning request.Retry. A timeout enforced by the scheduler's
// own inactivity watchdog, or by a native context deadline, is
// terminal: the request is killed with httpq.ErrTimeout and is never
// attempted again, so it does not raise the next timeout.
func Adaptive(usual time.Duration, after ...time.Duration) Policy {
	p := make([]time.Duration, 1, 1+len(after))
	p[0] = usual
	return policy(append(p, after...))
}

type policy []time.Duration

func (p policy) Timeout(e *request.Execution) time.Duration {
	if !e.Timeout() {
		return p[0]
	}

	i := e.Timeouts
	if i > len(p)-1 {
		i = len(p) - 1
	}

	return p[i]
}
