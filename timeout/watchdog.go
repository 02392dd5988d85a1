// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package timeout

import "time"

// MinPollInterval is the smallest interval PollInterval returns.
const MinPollInterval = time.Millisecond

// PollInterval returns the interval at which a watchdog enforcing the
// global timeout d polls for stalled requests: one tenth of d, but no
// less than MinPollInterval. A non-positive d returns zero, meaning
// there is nothing to poll for.
func PollInterval(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}

	p := d / 10
	if p < MinPollInterval {
		p = MinPollInterval
	}

	return p
}

// Idle returns how long a request has been inactive at time now,
// measured from the latest of the given activity timestamps. Zero
// timestamps are ignored. If every timestamp is zero, Idle returns 0.
func Idle(now time.Time, activity ...time.Time) time.Duration {
	var last time.Time
	for _, t := range activity {
		if t.After(last) {
			last = t
		}
	}

	if last.IsZero() || now.Before(last) {
		return 0
	}

	return now.Sub(last)
}

// Expired reports whether a request whose effective timeout is d has
// been idle for longer than d. A non-positive d never expires.
func Expired(d, idle time.Duration) bool {
	return d > 0 && idle > d
}
