// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/gogama/httpq/progress"
	"github.com/gogama/httpq/request"
	"github.com/sirupsen/logrus"
)

// A worker is one slot of the pool. It runs one Request at a time.
//
// The owned, cancel and retired fields are guarded by the Scheduler's
// mutex. Everything else is either immutable or atomic, so that the
// watchdog can inspect a worker without waiting for it.
type worker struct {
	s    *Scheduler
	slot int
	log  logrus.FieldLogger
	done chan struct{}

	owned   *request.Request
	cancel  context.CancelFunc
	retired bool

	activity atomic.Int64 // unix nanos
	limit    atomic.Int64 // effective timeout of the current attempt
	timedOut atomic.Bool
	reader   atomic.Pointer[progress.Reader]
	writer   atomic.Pointer[progress.Writer]
}

// spawnLocked starts a new worker in the given slot. The caller must
// hold s.mu.
func (s *Scheduler) spawnLocked(slot int) *worker {
	w := &worker{
		s:    s,
		slot: slot,
		log:  s.log.WithField("worker", slot),
		done: make(chan struct{}),
	}
	w.touch()
	s.wg.Add(1)
	go w.run()
	return w
}

func (w *worker) run() {
	defer w.s.wg.Done()
	defer close(w.done)

	w.log.Debug("worker started")
	for {
		r := w.s.next(w)
		if r == nil {
			w.log.Debug("worker exiting")
			return
		}
		w.execute(r)
	}
}

func (w *worker) touch() {
	w.activity.Store(time.Now().UnixNano())
}

// lastActivity returns the latest sign of life from the worker or
// from either of its transfer streams.
func (w *worker) lastActivity() []time.Time {
	t := []time.Time{time.Unix(0, w.activity.Load())}
	if pr := w.reader.Load(); pr != nil {
		t = append(t, pr.LastActivity())
	}
	if pw := w.writer.Load(); pw != nil {
		t = append(t, pw.LastActivity())
	}
	return t
}

// interrupt stops the worker's transfer streams and cancels its
// attempt. The caller must hold s.mu and must already have flagged
// the owned Request.
func (w *worker) interrupt() {
	if pr := w.reader.Load(); pr != nil {
		pr.Stop()
	}
	if pw := w.writer.Load(); pw != nil {
		pw.Stop()
	}
	if w.cancel != nil {
		w.cancel()
	}
}

// execute runs one attempt of r and settles the outcome.
func (w *worker) execute(r *request.Request) {
	s := w.s
	e := r.Execution()
	e.Worker = w.slot
	if !e.Started() {
		e.Start = time.Now()
	}

	// The timeout policy may look at how the previous attempt ended.
	d := s.cfg.TimeoutPolicy.Timeout(e)
	w.limit.Store(int64(d))

	e.Response = nil
	e.Body = nil
	e.BytesRead, e.BytesWritten = 0, 0
	e.Err = nil
	e.Fault = nil
	w.timedOut.Store(false)

	var ctx context.Context
	var cancel context.CancelFunc
	if s.cfg.NativeTimeout && d > 0 {
		ctx, cancel = context.WithTimeout(s.ctx, d)
	} else {
		ctx, cancel = context.WithCancel(s.ctx)
	}
	s.mu.Lock()
	w.cancel = cancel
	if r.Interrupted() {
		// Killed or paused between hand-over and now.
		cancel()
	}
	s.mu.Unlock()

	w.touch()
	log := w.log.WithFields(logrus.Fields{
		"request":  r.ID(),
		"priority": r.Priority,
		"url":      e.URL.String(),
		"attempt":  e.Attempt,
	})
	log.Debug("executing request")

	res := w.attempt(ctx, r, log)
	cancel()
	s.settle(w, r, res, log)
}

// streamOptions returns the progress options of a transfer stream of
// r. Requests below Normal priority yield periodically to their
// betters.
func (w *worker) streamOptions(r *request.Request, read bool) []progress.Option {
	e := r.Execution()
	opts := []progress.Option{
		progress.WithCallback(func(n int64) {
			if r.Hooks.OnProgress == nil {
				return
			}
			if read {
				r.Hooks.OnProgress(e, n, e.BytesWritten)
			} else {
				r.Hooks.OnProgress(e, 0, n)
			}
		}),
	}
	if r.Priority < request.Normal {
		opts = append(opts, progress.WithYield(0, 0))
	}
	return opts
}
