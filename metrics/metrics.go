// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package metrics

import (
	"github.com/gogama/httpq"
	"github.com/gogama/httpq/request"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "httpq"
	subsystem = "scheduler"
)

// A Collector turns scheduler events into Prometheus metrics. It is an
// httpq.Handler: install it into a HandlerGroup with Install.
type Collector struct {
	events   *prometheus.CounterVec
	finished *prometheus.CounterVec
	duration *prometheus.HistogramVec
	bytes    *prometheus.CounterVec
}

// New creates a Collector and registers its metrics with reg. A nil
// reg means prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		events: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "events_total",
			Help:      "Number of scheduler events fired, by event.",
		}, []string{"event"}),
		finished: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_finished_total",
			Help:      "Number of requests which reached a terminal state, by state and priority.",
		}, []string{"state", "priority"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "Time from first dispatch to terminal state, by state.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"state"}),
		bytes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "body_bytes_total",
			Help:      "Body bytes transferred by the final attempt of finished requests, by direction.",
		}, []string{"direction"}),
	}
}

// Install adds c to every event chain of g.
func (c *Collector) Install(g *httpq.HandlerGroup) {
	g.PushBackAll(c)
}

// Handle records evt.
func (c *Collector) Handle(evt httpq.Event, e *request.Execution) {
	c.events.WithLabelValues(evt.Name()).Inc()

	var state request.State
	switch evt {
	case httpq.AfterComplete:
		state = request.StateComplete
	case httpq.AfterFailure:
		state = request.StateFailed
	case httpq.AfterKill, httpq.AfterTimeout:
		state = request.StateKilled
	default:
		return
	}

	c.finished.WithLabelValues(state.String(), e.Request.Priority.String()).Inc()
	if e.Started() {
		c.duration.WithLabelValues(state.String()).Observe(e.Duration().Seconds())
	}
	c.bytes.WithLabelValues("read").Add(float64(e.BytesRead))
	c.bytes.WithLabelValues("written").Add(float64(e.BytesWritten))
}

// RegisterScheduler registers gauges which sample s: the pending queue
// length, the number of live workers and the number of retired
// workers not yet reaped.
func RegisterScheduler(reg prometheus.Registerer, s *httpq.Scheduler) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "pending_requests",
		Help:      "Number of requests in the pending queue.",
	}, func() float64 { return float64(s.Pending()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "workers",
		Help:      "Number of live workers.",
	}, func() float64 { return float64(s.Workers()) })
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      "retired_workers",
		Help:      "Number of workers replaced by the watchdog which have not exited yet.",
	}, func() float64 { return float64(s.Retired()) })
}
