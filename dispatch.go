// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import "sync"

// A Dispatcher runs functions on the caller's scheduling context. The
// Scheduler never runs completion callbacks or retry prompts on its
// workers; it hands them to the Dispatcher instead.
//
// Dispatch must not block waiting for f to run.
type Dispatcher interface {
	Dispatch(f func())
}

// The DispatcherFunc type is an adapter to allow the use of ordinary
// functions as dispatchers.
type DispatcherFunc func(f func())

// Dispatch calls d(f).
func (d DispatcherFunc) Dispatch(f func()) {
	d(f)
}

// Goroutine is a Dispatcher which runs each function on its own new
// goroutine.
var Goroutine Dispatcher = DispatcherFunc(func(f func()) { go f() })

// A Loop is a Dispatcher which runs functions one at a time, in the
// order they were dispatched, on a single goroutine. It models a
// single-threaded event loop such as a UI thread.
//
// Functions running on a Loop may call Scheduler.Wait: waiting never
// requires the Loop itself to make progress.
type Loop struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []func()
	closed  bool
	stopped chan struct{}
}

// NewLoop starts a Loop.
func NewLoop() *Loop {
	l := &Loop{stopped: make(chan struct{})}
	l.cond = sync.NewCond(&l.mu)
	go l.run()
	return l
}

// Dispatch queues f to run on the Loop. Functions dispatched after
// Close are dropped.
func (l *Loop) Dispatch(f func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.queue = append(l.queue, f)
	l.cond.Signal()
}

// Close stops the Loop once the functions already dispatched have
// run, and waits for that to happen. Close must not be called from
// the Loop itself.
func (l *Loop) Close() {
	l.mu.Lock()
	l.closed = true
	l.cond.Signal()
	l.mu.Unlock()
	<-l.stopped
}

func (l *Loop) run() {
	defer close(l.stopped)
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if len(l.queue) == 0 {
			l.mu.Unlock()
			return
		}
		f := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		f()
	}
}
