// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package request contains the core types Request (describes one logical
HTTP call to be scheduled) and Execution (describes the progress of a
Request through the scheduler).

A Request carries everything the scheduler needs to run a call: the
method, URL and ordered arguments, an optional Body producer, the
Priority which decides its place in the queue, its retry, redirect and
timeout policy, and a set of Hooks through which the caller takes part
in the execution.

	r, err := request.New("POST", "https://example.com/upload")
	...
	r.Priority = request.High
	r.RetryBudget = 2
	_ = r.AddArg("name", "value")
	r.Hooks.OnComplete = func(e *request.Execution) {
		...
	}

Arguments are encoded according to the method: appended to the query
string for GET-like methods, and sent as a form body for POST. Changing
between the two after arguments were added fails with
ErrStateViolation.

The second core type is Execution, which accumulates the state of a
Request across attempts, retries and redirects. Execution is the input
type for hooks, retry deciders, timeout policies and event handlers. It
is created together with the Request and can be obtained from it with
Request.Execution.
*/
package request
