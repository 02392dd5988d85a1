// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

// A State is a step in the lifecycle of a Request.
//
//	New -> Queued -> Executing -> Complete
//	                           -> Failed
//	                           -> Redirecting -> Queued
//	                           -> Paused      -> Queued
//	                           -> Killed
//
// Complete, Failed and Killed are terminal.
type State int32

const (
	// StateNew is the state of a Request that has never been enqueued.
	StateNew State = iota
	// StateQueued is the state of a Request waiting in the pending queue.
	StateQueued
	// StateExecuting is the state of a Request owned by a worker.
	StateExecuting
	// StateComplete is the terminal state of a successful Request.
	StateComplete
	// StateFailed is the terminal state of a Request whose error handling
	// decided against retrying.
	StateFailed
	// StateRedirecting is the transient state of a Request that received a
	// redirect and is about to be re-admitted with a new URL.
	StateRedirecting
	// StatePaused is the transient state of a pausable Request that was
	// displaced by a Critical request.
	StatePaused
	// StateKilled is the terminal state of a Request cancelled by Kill or
	// by the timeout watchdog.
	StateKilled
)

var stateNames = []string{
	"New",
	"Queued",
	"Executing",
	"Complete",
	"Failed",
	"Redirecting",
	"Paused",
	"Killed",
}

// Terminal reports whether s is Complete, Failed or Killed.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateKilled
}

// String returns the name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "State(?)"
	}
	return stateNames[s]
}
