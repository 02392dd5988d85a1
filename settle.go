// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"time"

	"github.com/gogama/httpq/request"
	"github.com/sirupsen/logrus"
)

// settle releases r from w and carries out the outcome of the attempt.
func (s *Scheduler) settle(w *worker, r *request.Request, res result, log logrus.FieldLogger) {
	timedOut := w.timedOut.Load()

	s.mu.Lock()
	w.owned = nil
	w.cancel = nil
	w.reader.Store(nil)
	w.writer.Store(nil)

	out := res.out
	if out == outPaused && r.Killed() {
		out = outKilled
	}
	if out != outComplete && out != outFailed && out != outKilled && (s.closed || r.Killed()) {
		out = outKilled
	}

	switch out {
	case outPaused:
		r.Resume()
		r.Execution().Attempt++
		if s.pending.index(r) < 0 {
			s.pending.push(entry{r: r, prio: r.Priority})
		}
		r.SetState(request.StateQueued)
		s.cond.Broadcast()
		s.mu.Unlock()
		log.Debug("request paused")
		return

	case outRequeue:
		r.Execution().Attempt++
		s.pending.remove(r)
		s.pending.push(entry{r: r, prio: request.High})
		r.SetState(request.StateQueued)
		s.cond.Broadcast()
		s.mu.Unlock()
		return

	case outRetryLater:
		r.Execution().Attempt++
		s.pending.remove(r)
		r.SetState(request.StateQueued)
		if res.wait <= 0 {
			s.pending.push(entry{r: r, prio: request.High})
		} else {
			s.delayed[r] = time.AfterFunc(res.wait, func() { s.readmit(r) })
		}
		s.cond.Broadcast()
		s.mu.Unlock()
		return

	case outAsk:
		s.pending.remove(r)
		s.cond.Broadcast()
		if s.cfg.RetryPrompt == nil {
			s.mu.Unlock()
			s.finish(r, request.StateFailed, log)
			return
		}
		s.prompting[r] = struct{}{}
		s.mu.Unlock()
		e := r.Execution()
		s.dispatcher.Dispatch(func() {
			s.answer(r, s.cfg.RetryPrompt(e), log)
		})
		return
	}

	// Terminal.
	s.pending.remove(r)
	s.cond.Broadcast()
	s.mu.Unlock()

	switch out {
	case outComplete:
		s.finish(r, request.StateComplete, log)
	case outFailed:
		s.finish(r, request.StateFailed, log)
	default:
		s.finishKilled(r, timedOut)
	}
}

// readmit puts a silently retried Request back into the queue once its
// wait is over.
func (s *Scheduler) readmit(r *request.Request) {
	s.mu.Lock()
	if _, ok := s.delayed[r]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.delayed, r)
	if s.closed || r.Killed() {
		s.mu.Unlock()
		s.finishKilled(r, false)
		return
	}
	s.pending.push(entry{r: r, prio: request.High})
	s.cond.Broadcast()
	s.mu.Unlock()
}

// answer carries out the retry prompt's decision. It runs on the
// Dispatcher.
func (s *Scheduler) answer(r *request.Request, retry bool, log logrus.FieldLogger) {
	s.mu.Lock()
	delete(s.prompting, r)
	switch {
	case s.closed || r.Killed():
		s.mu.Unlock()
		s.finishKilled(r, false)
	case retry:
		e := r.Execution()
		e.Attempt++
		s.pending.push(entry{r: r, prio: request.High})
		r.SetState(request.StateQueued)
		s.cond.Broadcast()
		s.mu.Unlock()
		log.Debug("retry prompt accepted")
		s.handlers.run(AfterRetry, e)
	default:
		s.mu.Unlock()
		s.finish(r, request.StateFailed, log)
	}
}

// finish moves r into the Complete or Failed state, fires the matching
// event and hands the completion callback to the Dispatcher.
func (s *Scheduler) finish(r *request.Request, state request.State, log logrus.FieldLogger) {
	if !r.Finish(state) {
		return
	}
	e := r.Execution()
	evt := AfterComplete
	if state == request.StateFailed {
		evt = AfterFailure
	}
	s.handlers.run(evt, e)

	log.WithFields(logrus.Fields{
		"state":    state,
		"status":   e.StatusCode(),
		"duration": e.Duration(),
	}).Debug("request finished")

	if r.Hooks.OnComplete != nil {
		s.dispatcher.Dispatch(func() {
			r.Hooks.OnComplete(e)
		})
	}
}

// finishKilled moves r into the Killed state. A timed out Request
// carries ErrTimeout and fires AfterTimeout instead of AfterKill.
func (s *Scheduler) finishKilled(r *request.Request, timedOut bool) {
	if r.State().Terminal() {
		return
	}
	e := r.Execution()
	evt := AfterKill
	if timedOut {
		e.Timeouts++
		e.Err = urlErrorWrap(r, ErrTimeout)
		evt = AfterTimeout
	} else {
		e.Err = urlErrorWrap(r, ErrKilled)
	}
	if !r.Finish(request.StateKilled) {
		return
	}
	s.handlers.run(evt, e)

	s.log.WithFields(logrus.Fields{
		"request":   r.ID(),
		"priority":  r.Priority,
		"timed_out": timedOut,
	}).Info("request killed")
}
