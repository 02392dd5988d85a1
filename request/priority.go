// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import "strconv"

// A Priority determines where a Request is placed in the scheduler's
// pending queue. Ordering is purely numeric: higher values are
// dispatched first, and any value between the named tiers is legal.
type Priority uint8

const (
	// Redundant is the lowest priority tier, for work whose result
	// is nice to have but may be superseded.
	Redundant Priority = 0
	// Low is the priority tier for background transfers.
	Low Priority = 30
	// Normal is the default priority tier.
	Normal Priority = 50
	// High is the priority tier for interactive traffic. Redirects
	// and retries are always re-admitted at High.
	High Priority = 80
	// Critical is the top priority tier. A Critical request jumps
	// ahead of every non-critical pending request and preempts a
	// lower priority request on the primary worker.
	Critical Priority = 100
)

// IsCritical reports whether p is in the Critical tier.
func (p Priority) IsCritical() bool {
	return p >= Critical
}

// String returns the name of the tier p falls in, or its numeric
// value if p lies between two tiers.
func (p Priority) String() string {
	switch p {
	case Redundant:
		return "redundant"
	case Low:
		return "low"
	case Normal:
		return "normal"
	case High:
		return "high"
	case Critical:
		return "critical"
	default:
		return strconv.Itoa(int(p))
	}
}
