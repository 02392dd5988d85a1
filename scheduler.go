// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gogama/httpq/accesspoint"
	"github.com/gogama/httpq/request"
	"github.com/sirupsen/logrus"
)

// killPoll is the polling interval of KillAndWait.
const killPoll = 10 * time.Millisecond

// A Scheduler runs Requests on a fixed pool of workers, in priority
// order.
//
// Requests are admitted with Enqueue. Each worker repeatedly takes the
// highest priority pending Request and runs its execution lifecycle:
// it sends the HTTP request through the Transport, streams the bodies
// through progress monitors, follows redirects, manages cookies and
// reacts to failures through the Request's hooks. Completion callbacks
// and retry prompts are handed to the Dispatcher, never run on a
// worker.
//
// A watchdog kills Requests which make no progress within their
// effective timeout and, if a worker is wedged and does not let go of
// its Request, replaces the worker so the pool keeps its size.
//
// A Scheduler is safe for concurrent use by multiple goroutines.
type Scheduler struct {
	cfg        Config
	log        logrus.FieldLogger
	handlers   *HandlerGroup
	dispatcher Dispatcher
	ownLoop    *Loop

	mu        sync.Mutex
	cond      *sync.Cond
	pending   queue
	workers   []*worker
	retired   []*worker
	delayed   map[*request.Request]*time.Timer
	prompting map[*request.Request]struct{}
	affinity  map[string]int
	started   bool
	closed    bool
	probing   bool
	probeErr  error
	ap        *accesspoint.AccessPoint

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}
	probed chan struct{}
	reap   chan *worker
	wg     sync.WaitGroup // workers, live and retired
	bg     sync.WaitGroup // watchdog, supervisor and prober
}

// New returns a Scheduler with the given configuration. The Scheduler
// accepts Requests straight away but runs nothing until Start.
func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	s := &Scheduler{
		cfg:       cfg,
		log:       cfg.Logger,
		handlers:  cfg.Handlers,
		delayed:   make(map[*request.Request]*time.Timer),
		prompting: make(map[*request.Request]struct{}),
		affinity:  cfg.Affinity,
		quit:      make(chan struct{}),
		probed:    make(chan struct{}),
		reap:      make(chan *worker, cfg.Workers),
	}
	s.cond = sync.NewCond(&s.mu)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.dispatcher = cfg.Dispatcher
	if s.dispatcher == nil {
		s.ownLoop = NewLoop()
		s.dispatcher = s.ownLoop
	}
	return s, nil
}

// Start starts the worker pool, the watchdog and, if configured, the
// access point probe.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.started {
		return errors.New("httpq: scheduler already started")
	}
	s.started = true

	for slot := 0; slot < s.cfg.Workers; slot++ {
		s.workers = append(s.workers, s.spawnLocked(slot))
	}

	if s.cfg.AutoDetectAccessPoint {
		s.probing = true
		s.bg.Add(1)
		go s.probe()
	} else {
		close(s.probed)
	}

	if !s.cfg.NativeTimeout {
		s.bg.Add(1)
		go s.watch()
	}

	s.bg.Add(1)
	go s.supervise()

	s.log.WithFields(logrus.Fields{
		"workers":        s.cfg.Workers,
		"timeout":        s.cfg.Timeout,
		"native_timeout": s.cfg.NativeTimeout,
	}).Info("scheduler started")
	return nil
}

// Close stops the Scheduler. Pending Requests are killed, executing
// Requests are killed and interrupted, and Close waits for the workers
// to let go of them or for ctx to be done, whichever is first.
//
// Close returns ctx.Err() if ctx is done first.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	var doomed []*request.Request
	for _, x := range s.pending.drain() {
		doomed = append(doomed, x.r)
	}
	for r, t := range s.delayed {
		t.Stop()
		doomed = append(doomed, r)
	}
	s.delayed = make(map[*request.Request]*time.Timer)
	for _, w := range s.workers {
		if w.owned != nil {
			w.owned.Kill()
			w.interrupt()
		}
	}
	started := s.started
	s.cond.Broadcast()
	s.mu.Unlock()

	for _, r := range doomed {
		r.Kill()
		s.finishKilled(r, false)
	}

	close(s.quit)
	s.cancel()

	if !started {
		s.closeLoop()
		return nil
	}

	stopped := make(chan struct{})
	go func() {
		s.wg.Wait()
		s.bg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		s.closeLoop()
		s.log.Info("scheduler closed")
		return nil
	case <-ctx.Done():
		s.log.WithError(ctx.Err()).Warn("scheduler close abandoned waiting for workers")
		return ctx.Err()
	}
}

func (s *Scheduler) closeLoop() {
	if s.ownLoop != nil {
		s.ownLoop.Close()
	}
}

// NewRequest returns a Request seeded with the Scheduler's configured
// defaults for following redirects, the silent retry budget and
// reading error bodies.
func (s *Scheduler) NewRequest(method, url string) (*request.Request, error) {
	r, err := request.New(method, url)
	if err != nil {
		return nil, err
	}
	r.FollowRedirects = s.cfg.FollowRedirects
	r.RetryBudget = s.cfg.RetryBudget
	r.ReadErrorBody = s.cfg.ReadErrorBody
	return r, nil
}

// Enqueue admits r to the pending queue, at the tail of its priority
// tier. It reports whether r was admitted.
//
// Enqueue returns an *request.InvalidRequestError if r fails
// validation, and an error wrapping request.ErrStateViolation if r has
// been enqueued before. Unless r is duplicate-tolerant, it is dropped
// without error if an equal Request is pending or executing.
//
// A Critical Request goes ahead of every non-critical one, behind any
// Critical Requests already pending, so critical work stays in arrival
// order. If the primary worker is running a non-critical Request, that Request is
// paused and put back right behind r if it is pausable, and killed
// otherwise.
func (s *Scheduler) Enqueue(r *request.Request) (bool, error) {
	return s.enqueue(r, false)
}

// Retry admits r like Enqueue, but at High priority and without the
// duplicate check. Use it to resubmit work which failed once already:
// a Request which finished Failed, Killed or even Complete is reopened
// first, which clears its kill flag, silent retry budget and last
// outcome, and gives it a new Done channel. Waiters on the old channel
// have already been released.
//
// Retry fails with ErrStateViolation for a finished Request which a
// retired worker is still stuck on.
func (s *Scheduler) Retry(r *request.Request) (bool, error) {
	return s.enqueue(r, true)
}

func (s *Scheduler) enqueue(r *request.Request, isRetry bool) (bool, error) {
	if r == nil {
		return false, errors.New("httpq: nil request")
	}
	if err := r.Validate(); err != nil {
		return false, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false, ErrClosed
	}
	if isRetry && r.State().Terminal() {
		if s.stuckLocked(r) {
			s.mu.Unlock()
			return false, fmt.Errorf("%w: request is still held by a retired worker", request.ErrStateViolation)
		}
		if err := r.Reopen(); err != nil {
			s.mu.Unlock()
			return false, err
		}
	}
	if st := r.State(); st != request.StateNew {
		s.mu.Unlock()
		return false, fmt.Errorf("%w: cannot enqueue a request in state %s", request.ErrStateViolation, st)
	}
	if !isRetry && !r.DuplicateTolerant && s.duplicateLocked(r) {
		s.mu.Unlock()
		s.log.WithFields(logrus.Fields{
			"request": r.ID(),
			"key":     r.Key(),
		}).Debug("dropped duplicate request")
		return false, nil
	}

	prio := r.Priority
	if isRetry {
		prio = request.High
	}
	i := s.pending.push(entry{r: r, prio: prio})
	r.SetState(request.StateQueued)
	if prio.IsCritical() {
		s.preemptLocked(i)
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	s.handlers.run(Enqueued, r.Execution())
	return true, nil
}

// duplicateLocked reports whether a Request equal to r is pending,
// owned by a worker, waiting out a retry delay or waiting on the retry
// prompt.
func (s *Scheduler) duplicateLocked(r *request.Request) bool {
	if s.pending.containsEqual(r) {
		return true
	}
	for _, w := range s.workers {
		if w.owned != nil && w.owned.Equal(r) {
			return true
		}
	}
	for x := range s.delayed {
		if x.Equal(r) {
			return true
		}
	}
	for x := range s.prompting {
		if x.Equal(r) {
			return true
		}
	}
	return false
}

// preemptLocked makes room on the primary worker for the Critical
// entry at index i.
func (s *Scheduler) preemptLocked(i int) {
	if len(s.workers) == 0 {
		return
	}
	w := s.workers[0]
	cur := w.owned
	if cur == nil || cur.Priority.IsCritical() {
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"request":  cur.ID(),
		"priority": cur.Priority,
		"worker":   w.slot,
	})
	if cur.Pause() {
		if s.pending.index(cur) < 0 {
			s.pending.insertAt(i+1, entry{r: cur, prio: cur.Priority})
		}
		log.Debug("paused for critical request")
	} else {
		cur.Kill()
		log.Info("killed for critical request")
	}
	w.interrupt()
}

// next blocks until there is a Request for w to run, and hands it
// over. It returns nil once w should exit.
func (s *Scheduler) next(w *worker) *request.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.closed || w.retired {
			return nil
		}
		i := s.headLocked()
		if i < 0 {
			s.cond.Wait()
			continue
		}

		x := s.pending.entries[i]
		if offset, pinned := s.affinity[x.r.Kind]; pinned && offset != w.slot && !x.probe {
			// Not ours: put it back behind the next one and yield.
			s.pending.removeAt(i)
			s.pending.insertAt(i+1, x)
			s.cond.Broadcast()
			s.mu.Unlock()
			time.Sleep(s.cfg.AffinityYield)
			s.mu.Lock()
			continue
		}

		s.pending.removeAt(i)
		w.owned = x.r
		x.r.SetState(request.StateExecuting)
		return x.r
	}
}

// headLocked returns the index of the first entry which may be
// dispatched, or -1. An entry is skipped while its Request is still
// owned by a worker, as happens to a Request being paused, and only
// probes are dispatched while the access point probe runs.
func (s *Scheduler) headLocked() int {
	for i := range s.pending.entries {
		x := &s.pending.entries[i]
		if s.probing && !x.probe {
			continue
		}
		if s.ownerLocked(x.r) != nil {
			continue
		}
		return i
	}
	return -1
}

// stuckLocked reports whether a retired worker still holds r.
func (s *Scheduler) stuckLocked(r *request.Request) bool {
	for _, w := range s.retired {
		if w.owned == r {
			return true
		}
	}
	return false
}

func (s *Scheduler) ownerLocked(r *request.Request) *worker {
	for _, w := range s.workers {
		if w.owned == r {
			return w
		}
	}
	return nil
}

// Kill kills r. A pending Request is removed from the queue and
// finished at once. An executing Request is flagged and its worker
// interrupted; the worker finishes it at its next checkpoint.
func (s *Scheduler) Kill(r *request.Request) {
	r.Kill()

	s.mu.Lock()
	removed := s.pending.remove(r)
	if t, ok := s.delayed[r]; ok {
		t.Stop()
		delete(s.delayed, r)
		removed = true
	}
	w := s.ownerLocked(r)
	if w != nil {
		w.interrupt()
	}
	s.cond.Broadcast()
	s.mu.Unlock()

	if removed && w == nil {
		s.finishKilled(r, false)
	}
}

// KillAndWait kills r and waits until no worker owns it any more, or
// until ctx is done. It must not be called from a hook running on a
// worker.
func (s *Scheduler) KillAndWait(ctx context.Context, r *request.Request) error {
	s.Kill(r)
	ticker := time.NewTicker(killPoll)
	defer ticker.Stop()
	for {
		if !s.owns(r) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) owns(r *request.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ownerLocked(r) != nil
}

// Wait blocks until r reaches a terminal state or ctx is done, and
// returns r's Execution.
//
// Wait never needs the Dispatcher to make progress, so it is safe to
// call from a completion callback or any other function running on
// the Dispatcher.
//
// The error is nil if r completed. Otherwise it is ctx.Err(), the
// transport or hook error of a failed Request, an error wrapping
// ErrFailed, or a *url.Error wrapping ErrKilled or ErrTimeout.
func (s *Scheduler) Wait(ctx context.Context, r *request.Request) (*request.Execution, error) {
	e := r.Execution()
	if r.State() == request.StateNew {
		return e, ErrNotQueued
	}
	select {
	case <-r.Done():
	case <-ctx.Done():
		return e, ctx.Err()
	}

	switch r.State() {
	case request.StateComplete:
		return e, nil
	case request.StateFailed:
		if e.Err != nil {
			return e, e.Err
		}
		return e, fmt.Errorf("%w: %s", ErrFailed, e.Status())
	default:
		if e.Err != nil {
			return e, e.Err
		}
		return e, ErrKilled
	}
}

// Do enqueues r and waits for it. It returns ErrNotQueued if r was
// dropped as a duplicate.
func (s *Scheduler) Do(ctx context.Context, r *request.Request) (*request.Execution, error) {
	ok, err := s.Enqueue(r)
	if err != nil {
		return r.Execution(), err
	}
	if !ok {
		return r.Execution(), ErrNotQueued
	}
	return s.Wait(ctx, r)
}

// Get issues a GET to the specified URL and waits for it.
func (s *Scheduler) Get(ctx context.Context, url string) (*request.Execution, error) {
	return Get(ctx, s, url)
}

// Post issues a POST to the specified URL and waits for it.
//
// The body parameter may be nil for an empty body, or any of the types
// supported by request.NewBody.
func (s *Scheduler) Post(ctx context.Context, url, contentType string, body interface{}) (*request.Execution, error) {
	return Post(ctx, s, url, contentType, body)
}

// PostForm issues a POST to the specified URL, with data's keys and
// values as form arguments, and waits for it.
func (s *Scheduler) PostForm(ctx context.Context, url string, data url.Values) (*request.Execution, error) {
	return PostForm(ctx, s, url, data)
}

// IsIdle reports whether nothing is pending, including silent retries
// waiting to be re-admitted, and no worker owns a Request.
func (s *Scheduler) IsIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending.len() > 0 || len(s.delayed) > 0 {
		return false
	}
	for _, w := range s.workers {
		if w.owned != nil {
			return false
		}
	}
	return true
}

// Pending returns the number of Requests in the pending queue.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending.len()
}

// Workers returns the number of live workers.
func (s *Scheduler) Workers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Retired returns the number of workers which were replaced by the
// watchdog and have not exited yet.
func (s *Scheduler) Retired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.retired)
}

// SetAffinity pins Requests of the given kind to the worker at offset.
func (s *Scheduler) SetAffinity(kind string, offset int) error {
	if offset < 0 || offset >= s.cfg.Workers {
		return fmt.Errorf("httpq: affinity of kind %q to worker %d is out of range", kind, offset)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.affinity[kind] = offset
	s.cond.Broadcast()
	return nil
}

// ClearAffinity unpins Requests of the given kind.
func (s *Scheduler) ClearAffinity(kind string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.affinity, kind)
	s.cond.Broadcast()
}
