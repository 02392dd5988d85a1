// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

// An Event identifies the event type when installing or running a
// Handler. Install event handlers in a Scheduler to extend it with
// custom functionality.
type Event int

const (
	// Enqueued identifies the event that occurs when a Request is
	// admitted to the pending queue by Enqueue or Retry.
	//
	// Enqueued runs on the goroutine which enqueued the Request. It
	// does not fire for internal re-admissions after a redirect, a
	// retry or a pause.
	Enqueued Event = iota
	// BeforeExecute identifies the event that occurs when a worker
	// has taken ownership of a Request and is about to run one attempt
	// of its execution lifecycle.
	//
	// When the Scheduler fires BeforeExecute, the execution's Worker
	// and Attempt fields identify the worker and the attempt.
	BeforeExecute
	// AfterResponse identifies the event that occurs after an attempt
	// received an HTTP response, before the status is acted upon.
	//
	// When the Scheduler fires AfterResponse, the execution's Response
	// field is set but its body has not been read.
	AfterResponse
	// AfterRedirect identifies the event that occurs after a redirect
	// has been accepted and the Request has been pointed at its new
	// URL, just before it is re-admitted to the queue.
	AfterRedirect
	// AfterRetry identifies the event that occurs when a failed
	// attempt is retried: silently, because an error hook chose Retry,
	// or because a retry prompt confirmed it.
	//
	// When the Scheduler fires AfterRetry, the execution's Err or
	// Response describes the failure being retried.
	AfterRetry
	// AfterTimeout identifies the event that occurs after a Request
	// was killed because it exceeded its effective timeout.
	//
	// When the Scheduler fires AfterTimeout, the execution's Timeouts
	// counter has been incremented and its Err is ErrTimeout.
	AfterTimeout
	// AfterComplete identifies the event that occurs after a Request
	// reaches the Complete state.
	AfterComplete
	// AfterFailure identifies the event that occurs after a Request
	// reaches the Failed state.
	AfterFailure
	// AfterKill identifies the event that occurs after a Request was
	// killed other than by a timeout.
	AfterKill
	// eventSentinel provides the total number of events typed as an
	// Event.
	eventSentinel
	// numEvents provides the total number of events types as an int.
	numEvents = int(eventSentinel)
)

var eventNames = []string{
	"Enqueued",
	"BeforeExecute",
	"AfterResponse",
	"AfterRedirect",
	"AfterRetry",
	"AfterTimeout",
	"AfterComplete",
	"AfterFailure",
	"AfterKill",
}

// Events returns a slice containing all events which can occur during
// a Request's execution, in the order in which they would occur.
func Events() []Event {
	return []Event{
		Enqueued,
		BeforeExecute,
		AfterResponse,
		AfterRedirect,
		AfterRetry,
		AfterTimeout,
		AfterComplete,
		AfterFailure,
		AfterKill,
	}
}

// Name returns the name of the event.
func (evt Event) Name() string {
	return eventNames[int(evt)]
}

// String returns the name of the event.
func (evt Event) String() string {
	return evt.Name()
}
