// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package timeout defines policies for the inactivity timeout enforced
// on scheduled requests, and the arithmetic the scheduler's watchdog
// uses to enforce them.
//
// A timeout in this package is not a deadline for the whole request:
// it bounds the time since the request last showed any sign of life,
// either in the execution lifecycle itself or in the bytes moving
// through its progress streams. A large download that keeps receiving
// bytes never times out; one that stalls mid-body does.
package timeout
