// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package progress provides buffered stream wrappers which monitor the
// bytes flowing through a request body or response body.
//
// Reader and Writer count the bytes they transfer, record the time of
// their most recent activity, and invoke an optional callback after
// every chunk. The scheduler's timeout watchdog reads the activity
// time to tell a transfer which is slow but alive from one which has
// stalled.
//
// Both wrappers can be stopped from another goroutine. A stopped
// Reader reports io.EOF from then on, and a stopped Writer fails with
// ErrStopped, so the goroutine blocked on the stream notices promptly
// without anyone closing resources it owns.
//
// Both wrappers also support a cooperative yield mode, intended for
// low priority transfers, in which they pause briefly after each period
// of continuous activity.
package progress
