// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"errors"
	"io"

	"github.com/spf13/afero"
)

const badBodyTypeMsg = "httpq/request: invalid type (for body use nil, " +
	"string, []byte, io.Reader, io.ReadCloser or Body)"

// A Body produces the request body of a write request.
//
// The scheduler may call WriteTo once per attempt, so a Body must be
// able to produce its content more than once: on a silent retry or on
// a 301 redirect the same Body is written again.
type Body interface {
	// ContentLength returns the exact number of bytes WriteTo will
	// write, or -1 if the length is not known in advance. A known
	// length is sent as the Content-Length header; an unknown length
	// causes the body to be sent with chunked transfer encoding.
	ContentLength() int64
	// WriteTo writes the body to w.
	WriteTo(w io.Writer) (int64, error)
}

// NewBody converts body into a Body. The body parameter may be nil,
// a string, a []byte, an io.Reader or io.ReadCloser (which are read
// fully and closed), or a Body (returned as is).
func NewBody(body interface{}) (Body, error) {
	switch x := body.(type) {
	case nil:
		return nil, nil
	case Body:
		return x, nil
	case string:
		return BytesBody([]byte(x)), nil
	case []byte:
		return BytesBody(x), nil
	case io.ReadCloser:
		b, err := io.ReadAll(x)
		if err != nil {
			return nil, err
		}
		err = x.Close()
		if err != nil {
			return nil, err
		}
		return BytesBody(b), nil
	case io.Reader:
		return NewBody(io.NopCloser(x))
	default:
		return nil, errors.New(badBodyTypeMsg)
	}
}

// BytesBody is a Body backed by an in-memory byte slice.
type BytesBody []byte

// ContentLength returns len(b).
func (b BytesBody) ContentLength() int64 {
	return int64(len(b))
}

// WriteTo writes b to w.
func (b BytesBody) WriteTo(w io.Writer) (int64, error) {
	return bytes.NewReader(b).WriteTo(w)
}

// StreamBody returns a Body whose content is produced by calling
// write. Use length -1 if the length is not known in advance; the
// body is then streamed without a precomputed Content-Length.
func StreamBody(length int64, write func(w io.Writer) error) Body {
	if length < 0 {
		length = -1
	}
	return &streamBody{length: length, write: write}
}

type streamBody struct {
	length int64
	write  func(w io.Writer) error
}

func (b *streamBody) ContentLength() int64 {
	return b.length
}

func (b *streamBody) WriteTo(w io.Writer) (int64, error) {
	cw := &countingWriter{w: w}
	err := b.write(cw)
	return cw.n, err
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// FileBody returns a Body which streams the named file from fs. The
// file size is read once, up front, so the Content-Length is known
// before the scheduler connects.
func FileBody(fs afero.Fs, name string) (Body, error) {
	fi, err := fs.Stat(name)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, errors.New("httpq/request: body file " + name + " is a directory")
	}
	return &fileBody{fs: fs, name: name, size: fi.Size()}, nil
}

type fileBody struct {
	fs   afero.Fs
	name string
	size int64
}

func (b *fileBody) ContentLength() int64 {
	return b.size
}

func (b *fileBody) WriteTo(w io.Writer) (int64, error) {
	f, err := b.fs.Open(b.name)
	if err != nil {
		return 0, err
	}
	defer func() {
		_ = f.Close()
	}()
	return io.Copy(w, f)
}
