// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"time"

	"github.com/gogama/httpq/request"
	"github.com/gogama/httpq/timeout"
	"github.com/sirupsen/logrus"
)

// watch is the watchdog loop. It kills Requests which make no progress
// within their effective timeout.
func (s *Scheduler) watch() {
	defer s.bg.Done()

	d := s.cfg.Timeout
	if d <= 0 {
		// Requests may still carry timeouts of their own.
		d = time.Second
	}
	ticker := time.NewTicker(timeout.PollInterval(d))
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case now := <-ticker.C:
			s.inspect(now)
		}
	}
}

type suspect struct {
	w *worker
	r *request.Request
}

// inspect kills every Request idle for longer than its effective
// timeout, then gives each worker concerned KillGrace to let go. The
// grace periods run in the background so the next poll is not held
// up by a wedged worker.
func (s *Scheduler) inspect(now time.Time) {
	var expired []suspect

	s.mu.Lock()
	for _, w := range s.workers {
		r := w.owned
		if r == nil || w.timedOut.Load() {
			continue
		}
		d := time.Duration(w.limit.Load())
		idle := timeout.Idle(now, w.lastActivity()...)
		if !timeout.Expired(d, idle) {
			continue
		}
		w.timedOut.Store(true)
		r.Kill()
		w.interrupt()
		expired = append(expired, suspect{w, r})
		w.log.WithFields(logrus.Fields{
			"request": r.ID(),
			"idle":    idle,
			"timeout": d,
		}).Warn("request timed out")
	}
	s.mu.Unlock()

	for _, x := range expired {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			s.awaitRelease(x)
		}()
	}
}

// awaitRelease waits up to KillGrace for x.w to let go of x.r, and
// retires the worker if it does not.
func (s *Scheduler) awaitRelease(x suspect) {
	deadline := time.Now().Add(s.cfg.KillGrace)
	poll := s.cfg.KillGrace / 10
	if poll > killPoll {
		poll = killPoll
	}
	for time.Now().Before(deadline) {
		if !s.stillOwns(x) {
			return
		}
		select {
		case <-s.quit:
			return
		case <-time.After(poll):
		}
	}
	if s.stillOwns(x) {
		s.retire(x)
	}
}

func (s *Scheduler) stillOwns(x suspect) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return x.w.owned == x.r
}

// retire takes a wedged worker out of the pool, starts a replacement
// in the same slot and finishes the Request the old worker is stuck
// on. The supervisor reaps the old worker if it ever returns.
func (s *Scheduler) retire(x suspect) {
	s.mu.Lock()
	if x.w.owned != x.r || x.w.retired || s.closed {
		s.mu.Unlock()
		return
	}
	x.w.retired = true
	s.retired = append(s.retired, x.w)
	s.workers[x.w.slot] = s.spawnLocked(x.w.slot)
	s.cond.Broadcast()
	s.mu.Unlock()

	x.w.log.WithField("request", x.r.ID()).Warn("worker wedged, replaced")
	s.finishKilled(x.r, true)

	select {
	case s.reap <- x.w:
	case <-s.quit:
	}
}

// supervise reaps retired workers once they exit.
func (s *Scheduler) supervise() {
	defer s.bg.Done()

	ticker := time.NewTicker(s.cfg.KillGrace)
	defer ticker.Stop()
	var watching []*worker
	for {
		select {
		case <-s.quit:
			return
		case w := <-s.reap:
			watching = append(watching, w)
		case <-ticker.C:
			watching = s.reapExited(watching)
		}
	}
}

func (s *Scheduler) reapExited(watching []*worker) []*worker {
	alive := watching[:0]
	for _, w := range watching {
		select {
		case <-w.done:
			s.forget(w)
			w.log.Info("retired worker reaped")
		default:
			alive = append(alive, w)
		}
	}
	return alive
}

func (s *Scheduler) forget(w *worker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.retired {
		if x == w {
			s.retired = append(s.retired[:i], s.retired[i+1:]...)
			return
		}
	}
}
