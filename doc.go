// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package httpq provides a priority scheduler for HTTP requests, with a
fixed pool of workers, inactivity timeouts, silent retries and
cooperative cancellation.

Create a Scheduler, start it, and enqueue requests.

	s, err := httpq.New(httpq.DefaultConfig())
	...
	err = s.Start()
	...
	ex, err := s.Get(ctx, "https://www.example.com")
	...
	ex, err := s.PostForm(ctx, "http://example.com/form",
		url.Values{"key": {"Value"}, "id": {"123"}})

For control over priority, headers, hooks and the rest, build the
request yourself and enqueue it. Enqueue never blocks; use Wait, or an
OnComplete hook, to learn the outcome.

	r, err := s.NewRequest("GET", "https://www.example.com/feed")
	...
	r.Priority = request.High
	r.Hooks.OnComplete = func(e *request.Execution) {
		log.Printf("%s: %s", e.URL, e.Status())
	}
	ok, err := s.Enqueue(r)

Requests run in descending priority order, first come first served
within a priority. A Critical request preempts the non-critical request
running on the primary worker: a pausable request is put back into the
queue, anything else is killed.

Completion callbacks and retry prompts never run on a worker. They are
handed to the Dispatcher, which by default is a Loop owned by the
Scheduler. Set Config.Dispatcher to run them on your own event loop.

For control over the scheduler's silent retry decisions and timing, use
a custom retry policy from package retry:

	cfg := httpq.DefaultConfig()
	cfg.RetryBudget = 3
	cfg.RetryPolicy = retry.NewPolicy(retry.DefaultDecider.And(retry.TransientErr), retry.DefaultWaiter)

For control over the inactivity timeout of individual attempts, set a
timeout policy from package timeout:

	cfg.TimeoutPolicy = timeout.Adaptive(10*time.Second, 30*time.Second)

To hook into the fine-grained details of request execution, install a
handler into the appropriate handler chain:

	handlers := &httpq.HandlerGroup{}
	handlers.PushBack(httpq.AfterTimeout, httpq.HandlerFunc(
		func(_ httpq.Event, e *request.Execution) {
			log.Printf("%s timed out on worker %d", e.URL, e.Worker)
		}),
	)
	cfg.Handlers = handlers

Package metrics provides ready-made handlers which export Prometheus
metrics.
*/
package httpq
