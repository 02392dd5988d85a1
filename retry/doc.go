// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package retry provides policies for silently retrying scheduled
// requests after transport failures, and for deciding how long to
// wait before a retried request is re-admitted to the queue.
//
// The scheduler consults its Policy each time an attempt fails at the
// transport level. If the Decider agrees, one unit of the request's
// retry budget is consumed and the request is re-admitted at High
// priority once the Waiter's delay has elapsed. Otherwise the request's
// OnIOFailure hook takes over.
//
// The interface Policy defines a retry Policy. A Policy instance can be
// constructed using NewPolicy by providing a decision-maker, Decider,
// and a wait time calculator, Waiter:
//
//     decider := retry.Budget.
//                    And(retry.Before(5 * time.Second)).
//                    And(retry.TransientErr)
//     waiter := retry.Backoff{Base: 100 * time.Millisecond, Max: 2 * time.Second, Jitter: true}
//     policy := retry.NewPolicy(decider, waiter)
//
// Deciders are ordinary predicates on a request.Execution, so they may
// also be used from within a request's OnError hook to pick an Action.
package retry
