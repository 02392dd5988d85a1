// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestNewBody(t *testing.T) {
	t.Run("happy path", func(t *testing.T) {
		b, err := NewBody(nil)
		assert.Nil(t, b)
		assert.NoError(t, err)
		b, err = NewBody("foo")
		assert.Equal(t, BytesBody("foo"), b)
		assert.NoError(t, err)
		b, err = NewBody([]byte("bar"))
		assert.Equal(t, BytesBody("bar"), b)
		assert.NoError(t, err)
		b, err = NewBody(strings.NewReader("baz"))
		assert.Equal(t, BytesBody("baz"), b)
		assert.NoError(t, err)
		b, err = NewBody(io.NopCloser(bytes.NewReader([]byte("qux"))))
		assert.Equal(t, BytesBody("qux"), b)
		assert.NoError(t, err)
		s := StreamBody(-5, func(w io.Writer) error { return nil })
		b, err = NewBody(s)
		assert.Same(t, s, b)
		assert.NoError(t, err)
		b, err = NewBody(10)
		assert.Nil(t, b)
		assert.EqualError(t, err, badBodyTypeMsg)
	})
	t.Run("read error", func(t *testing.T) {
		m := &mockReadCloser{}
		m.Test(t)
		m.On("Read", mock.Anything).Return(0, errors.New("read fail")).Once()
		b, err := NewBody(m)
		assert.Nil(t, b)
		assert.EqualError(t, err, "read fail")
		m.AssertExpectations(t)
	})
	t.Run("close error", func(t *testing.T) {
		m := &mockReadCloser{}
		m.Test(t)
		m.On("Read", mock.Anything).Return(0, io.EOF).Once()
		m.On("Close").Return(errors.New("close fail")).Once()
		b, err := NewBody(m)
		assert.Nil(t, b)
		assert.EqualError(t, err, "close fail")
		m.AssertExpectations(t)
	})
}

func TestBytesBody(t *testing.T) {
	b := BytesBody("hello")
	assert.Equal(t, int64(5), b.ContentLength())
	var buf bytes.Buffer
	for i := 0; i < 2; i++ {
		buf.Reset()
		n, err := b.WriteTo(&buf)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
		assert.Equal(t, "hello", buf.String())
	}
}

func TestStreamBody(t *testing.T) {
	b := StreamBody(-5, func(w io.Writer) error {
		_, err := io.WriteString(w, "streamed")
		return err
	})
	assert.Equal(t, int64(-1), b.ContentLength())
	var buf bytes.Buffer
	n, err := b.WriteTo(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(8), n)
	assert.Equal(t, "streamed", buf.String())
	assert.Equal(t, int64(3), StreamBody(3, nil).ContentLength())
}

func TestFileBody(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/data/upload.bin", []byte("0123456789"), 0644))
	require.NoError(t, fs.MkdirAll("/data/dir", 0755))
	t.Run("happy path", func(t *testing.T) {
		b, err := FileBody(fs, "/data/upload.bin")
		require.NoError(t, err)
		assert.Equal(t, int64(10), b.ContentLength())
		var buf bytes.Buffer
		n, err := b.WriteTo(&buf)
		require.NoError(t, err)
		assert.Equal(t, int64(10), n)
		assert.Equal(t, "0123456789", buf.String())
	})
	t.Run("missing", func(t *testing.T) {
		b, err := FileBody(fs, "/data/nope")
		assert.Nil(t, b)
		assert.Error(t, err)
	})
	t.Run("directory", func(t *testing.T) {
		b, err := FileBody(fs, "/data/dir")
		assert.Nil(t, b)
		assert.Error(t, err)
	})
	t.Run("removed after stat", func(t *testing.T) {
		b, err := FileBody(fs, "/data/upload.bin")
		require.NoError(t, err)
		require.NoError(t, fs.Remove("/data/upload.bin"))
		_, err = b.WriteTo(io.Discard)
		assert.Error(t, err)
	})
}

type mockReadCloser struct {
	mock.Mock
}

func (m *mockReadCloser) Read(p []byte) (n int, err error) {
	args := m.Called(p)
	return args.Int(0), args.Error(1)
}

func (m *mockReadCloser) Close() error {
	args := m.Called()
	return args.Error(0)
}
