// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package progress

import (
	"sync/atomic"
	"time"
)

// A Stream is the part of Reader and Writer which other goroutines
// may use while the stream is in use.
type Stream interface {
	// N returns the number of bytes transferred so far.
	N() int64
	// LastActivity returns the time of the most recent transfer, or
	// the time the stream was created if nothing has moved yet.
	LastActivity() time.Time
	// Stop stops the stream. It is safe to call more than once.
	Stop()
	// Stopped reports whether Stop was called.
	Stopped() bool
}

// monitor holds the state shared by Reader and Writer. Its atomic
// fields may be read from any goroutine; the rest belongs to the
// goroutine using the stream.
type monitor struct {
	opts options

	n       atomic.Int64
	last    atomic.Int64
	stopped atomic.Bool

	yieldStart time.Time
}

func (m *monitor) init(opts []Option) {
	m.opts = newOptions(opts)
	m.touch()
}

func (m *monitor) N() int64 {
	return m.n.Load()
}

func (m *monitor) LastActivity() time.Time {
	return time.Unix(0, m.last.Load())
}

func (m *monitor) Stop() {
	m.stopped.Store(true)
}

func (m *monitor) Stopped() bool {
	return m.stopped.Load()
}

func (m *monitor) touch() {
	m.last.Store(m.opts.now().UnixNano())
}

// moved records a chunk of n bytes, reports it, and yields if due.
func (m *monitor) moved(n int) {
	if n <= 0 {
		return
	}

	total := m.n.Add(int64(n))
	m.touch()
	if m.opts.callback != nil {
		m.opts.callback(total)
	}
	m.yield()
}

func (m *monitor) yield() {
	if m.opts.yieldEvery <= 0 {
		return
	}

	now := m.opts.now()
	if m.yieldStart.IsZero() {
		m.yieldStart = now
		return
	}

	if now.Sub(m.yieldStart) >= m.opts.yieldEvery {
		m.opts.sleep(m.opts.yieldFor)
		m.yieldStart = m.opts.now()
		// Sleeping is not stalling.
		m.touch()
	}
}
