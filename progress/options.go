// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package progress

import (
	"errors"
	"time"
)

// ErrStopped is returned by a Writer's Write and Flush methods after
// the Writer has been stopped.
var ErrStopped = errors.New("httpq/progress: stream stopped")

const (
	// DefaultBufferSize is the initial buffer size of a Reader and the
	// buffer size of a Writer.
	DefaultBufferSize = 8192

	// DefaultYieldEvery is the period of continuous activity after
	// which a yielding stream pauses.
	DefaultYieldEvery = 300 * time.Millisecond

	// DefaultYieldFor is how long a yielding stream pauses.
	DefaultYieldFor = 10 * time.Millisecond
)

// A Callback receives the cumulative number of bytes a stream has
// transferred. It is called on the goroutine using the stream, after
// every chunk.
type Callback func(n int64)

// An Option configures a Reader or Writer.
type Option func(*options)

type options struct {
	callback   Callback
	bufSize    int
	yieldEvery time.Duration
	yieldFor   time.Duration
	sleep      func(time.Duration)
	now        func() time.Time
}

func defaultOptions() options {
	return options{
		bufSize: DefaultBufferSize,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// WithCallback installs a progress callback.
func WithCallback(cb Callback) Option {
	return func(o *options) {
		o.callback = cb
	}
}

// WithBufferSize sets the buffer size. Values below 1 are ignored.
func WithBufferSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.bufSize = n
		}
	}
}

// WithYield turns on cooperative yielding: after every period of
// continuous activity, the stream sleeps for pause before carrying
// on. A non-positive every or pause selects the package default.
func WithYield(every, pause time.Duration) Option {
	return func(o *options) {
		if every <= 0 {
			every = DefaultYieldEvery
		}
		if pause <= 0 {
			pause = DefaultYieldFor
		}
		o.yieldEvery = every
		o.yieldFor = pause
	}
}

func newOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
