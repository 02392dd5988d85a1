// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package metrics exports scheduler activity as Prometheus metrics.

A Collector is an event handler. Install it into the HandlerGroup of a
scheduler's configuration:

	reg := prometheus.NewRegistry()
	handlers := &httpq.HandlerGroup{}
	metrics.New(reg).Install(handlers)
	cfg := httpq.DefaultConfig()
	cfg.Handlers = handlers

RegisterScheduler adds gauges which sample the scheduler's queue and
worker pool whenever the registry is scraped.
*/
package metrics
