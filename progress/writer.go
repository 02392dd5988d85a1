// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package progress

import "io"

// A Writer is a buffered io.Writer which monitors the bytes written to
// the underlying writer. Call Flush when done writing.
//
// Apart from the Stream methods, a Writer must only be used by one
// goroutine at a time.
type Writer struct {
	monitor

	w   io.Writer
	err error

	buf []byte
	n   int
}

var _ Stream = (*Writer)(nil)

// NewWriter returns a Writer wrapping w.
func NewWriter(w io.Writer, opts ...Option) *Writer {
	wr := &Writer{w: w}
	wr.init(opts)
	wr.buf = make([]byte, wr.opts.bufSize)
	return wr
}

// Write writes p into the buffer, flushing to the underlying writer as
// the buffer fills up. It fails with ErrStopped once the Writer is
// stopped.
func (w *Writer) Write(p []byte) (int, error) {
	nn := 0
	for len(p) > w.available() && w.err == nil {
		if w.Stopped() {
			return nn, ErrStopped
		}
		var n int
		if w.n == 0 {
			// Nothing buffered: write straight through.
			n, w.err = w.w.Write(p)
			w.moved(n)
		} else {
			n = copy(w.buf[w.n:], p)
			w.n += n
			w.flush()
		}
		nn += n
		p = p[n:]
	}
	if w.err != nil {
		return nn, w.err
	}
	if w.Stopped() {
		return nn, ErrStopped
	}

	n := copy(w.buf[w.n:], p)
	w.n += n
	nn += n
	return nn, nil
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if w.Stopped() {
		return ErrStopped
	}

	return w.flush()
}

// Buffered returns the number of bytes written into the buffer but
// not yet flushed.
func (w *Writer) Buffered() int {
	return w.n
}

func (w *Writer) available() int {
	return len(w.buf) - w.n
}

func (w *Writer) flush() error {
	if w.err != nil {
		return w.err
	}
	if w.n == 0 {
		return nil
	}

	n, err := w.w.Write(w.buf[:w.n])
	w.moved(n)
	if n < w.n && err == nil {
		err = io.ErrShortWrite
	}
	if err != nil {
		if n > 0 && n < w.n {
			copy(w.buf[:w.n-n], w.buf[n:w.n])
		}
		w.n -= n
		w.err = err
		return err
	}

	w.n = 0
	return nil
}
