// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package retry

import (
	"math/rand/v2"
	"time"

	"github.com/gogama/httpq/request"
)

// A Waiter specifies how long a silently retried request waits before
// it is re-admitted to the queue. A zero wait re-admits it at once.
//
// Implementations of Waiter must be safe for concurrent use by multiple
// goroutines.
//
// The scheduler does not call the Waiter on a retry policy if the
// policy Decider returned false.
type Waiter interface {
	Wait(e *request.Execution) time.Duration
}

// DefaultWaiter is the default retry wait policy: a jittered
// exponential Backoff from 50 milliseconds up to 1 second, shortened
// for urgent requests by ByPriority.
var DefaultWaiter = ByPriority(Backoff{Base: 50 * time.Millisecond, Max: time.Second, Jitter: true})

// NewFixedWaiter constructs a Waiter that always returns the given
// duration.
func NewFixedWaiter(d time.Duration) Waiter {
	return fixedWaiter(d)
}

type fixedWaiter time.Duration

func (w fixedWaiter) Wait(_ *request.Execution) time.Duration {
	return time.Duration(w)
}

// Backoff is an exponential backoff Waiter. The ceiling of the wait
// doubles with every silent retry the request has consumed:
//
//	ceil := min(Base * 2**Retries, Max)
//
// With Jitter the wait is drawn uniformly from [0, ceil), which is the
// "Full Jitter" approach described in
// https://aws.amazon.com/blogs/architecture/exponential-backoff-and-jitter.
// Without it the wait is ceil.
//
// A non-positive Base means no wait. A Max below Base is raised to
// Base.
type Backoff struct {
	Base   time.Duration
	Max    time.Duration
	Jitter bool
}

// Wait returns the wait before the next attempt of e.
func (b Backoff) Wait(e *request.Execution) time.Duration {
	if b.Base <= 0 {
		return 0
	}
	max := b.Max
	if max < b.Base {
		max = b.Base
	}

	ceil := max
	if e.Retries < 63 {
		if exp := int64(1) << e.Retries; int64(b.Base) <= int64(max)/exp {
			ceil = b.Base * time.Duration(exp)
		}
	}

	if b.Jitter {
		return time.Duration(rand.Int64N(int64(ceil)))
	}
	return ceil
}

// ByPriority adapts w to the request priority. Critical requests are
// re-admitted at once, High requests wait half as long as w says, and
// Low and Redundant ones twice as long.
func ByPriority(w Waiter) Waiter {
	return priorityWaiter{w}
}

type priorityWaiter struct {
	w Waiter
}

func (pw priorityWaiter) Wait(e *request.Execution) time.Duration {
	p := request.Normal
	if e.Request != nil {
		p = e.Request.Priority
	}
	switch {
	case p.IsCritical():
		return 0
	case p >= request.High:
		return pw.w.Wait(e) / 2
	case p <= request.Low:
		return pw.w.Wait(e) * 2
	default:
		return pw.w.Wait(e)
	}
}
