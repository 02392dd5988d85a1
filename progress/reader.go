// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package progress

import (
	"errors"
	"io"
)

// ErrInvalidMark is returned by Reader.Reset when there is no valid
// mark to reset to.
var ErrInvalidMark = errors.New("httpq/progress: invalid mark")

// A Reader is a buffered io.Reader which monitors the bytes read from
// the underlying reader.
//
// A Reader supports mark and reset. After Mark(limit), up to limit
// bytes read from the Reader are retained so that Reset can rewind to
// the mark. The buffer starts at the configured buffer size and
// doubles as needed, up to limit. Reading more than limit bytes past
// the mark invalidates it.
//
// Apart from the Stream methods, a Reader must only be used by one
// goroutine at a time.
type Reader struct {
	monitor

	r   io.Reader
	err error

	buf        []byte
	pos, count int
	markPos    int
	markLimit  int
}

var _ Stream = (*Reader)(nil)

// NewReader returns a Reader wrapping r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	rd := &Reader{
		r:       r,
		markPos: -1,
	}
	rd.init(opts)
	rd.buf = make([]byte, rd.opts.bufSize)
	return rd
}

// Read reads data into p. Once the Reader is stopped, Read returns
// io.EOF without touching the underlying reader.
func (r *Reader) Read(p []byte) (int, error) {
	if r.Stopped() {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	if r.pos >= r.count {
		if r.err != nil {
			return 0, r.readErr()
		}
		if r.markPos < 0 && len(p) >= len(r.buf) {
			// Large read with nothing to retain: skip the buffer.
			n, err := r.r.Read(p)
			r.moved(n)
			return n, err
		}
		r.fill()
		if r.pos >= r.count {
			return 0, r.readErr()
		}
	}

	n := copy(p, r.buf[r.pos:r.count])
	r.pos += n
	return n, nil
}

// Mark marks the current position. A subsequent Reset rewinds the
// Reader to it, as long as no more than limit bytes have been read in
// the meantime.
func (r *Reader) Mark(limit int) {
	r.markLimit = limit
	r.markPos = r.pos
}

// Reset rewinds the Reader to the most recent mark.
func (r *Reader) Reset() error {
	if r.markPos < 0 {
		return ErrInvalidMark
	}

	r.pos = r.markPos
	return nil
}

// Buffered returns the number of bytes that can be read from the
// buffer without reading from the underlying reader.
func (r *Reader) Buffered() int {
	return r.count - r.pos
}

// fill reads one chunk from the underlying reader into the buffer.
func (r *Reader) fill() {
	if r.markPos < 0 {
		r.pos = 0
	} else if r.pos >= len(r.buf) {
		switch {
		case r.markPos > 0:
			n := copy(r.buf, r.buf[r.markPos:r.pos])
			r.pos = n
			r.markPos = 0
		case len(r.buf) >= r.markLimit:
			r.markPos = -1
			r.pos = 0
		default:
			size := 2 * len(r.buf)
			if size > r.markLimit {
				size = r.markLimit
			}
			buf := make([]byte, size)
			copy(buf, r.buf[:r.pos])
			r.buf = buf
		}
	}

	r.count = r.pos
	n, err := r.r.Read(r.buf[r.pos:])
	if n > 0 {
		r.count += n
		r.moved(n)
	}
	if err != nil {
		r.err = err
	}
}

func (r *Reader) readErr() error {
	err := r.err
	r.err = nil
	return err
}
