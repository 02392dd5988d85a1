// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/gogama/httpq/request"
)

var (
	// ErrClosed is returned when using a Scheduler after Close.
	ErrClosed = errors.New("httpq: scheduler closed")

	// ErrNotStarted is returned by operations which need a running
	// Scheduler when Start has not been called.
	ErrNotStarted = errors.New("httpq: scheduler not started")

	// ErrNotQueued is returned by Wait for a Request which was never
	// admitted, for example because an equal Request was already
	// pending when it was enqueued.
	ErrNotQueued = errors.New("httpq: request not queued")

	// ErrKilled is the error of a Request which was killed.
	ErrKilled = errors.New("httpq: request killed")

	// ErrTimeout is the error of a Request which was killed because it
	// made no progress within its effective timeout. Its Timeout
	// method reports true.
	ErrTimeout error = timeoutError{}

	// ErrFailed is returned by Wait for a Request which failed without
	// a transport error, for example because its error hook gave up on
	// a non-2xx response.
	ErrFailed = errors.New("httpq: request failed")

	// ErrTooManyRedirects is the error of a Request which exceeded the
	// scheduler's redirect limit.
	ErrTooManyRedirects = errors.New("httpq: too many redirects")

	// ErrNoAccessPoint is returned by the start-up probe when no access
	// point could reach the probe URL.
	ErrNoAccessPoint = errors.New("httpq: no working access point")
)

type timeoutError struct{}

func (timeoutError) Error() string   { return "httpq: request timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// A PanicError wraps a value recovered from a panic during a Request's
// execution lifecycle.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("httpq: panic: %v", e.Value)
}

func urlErrorWrap(r *request.Request, err error) error {
	if _, ok := err.(*url.Error); ok {
		return err
	}
	return &url.Error{
		Op:  urlErrorOp(r.Method()),
		URL: r.Execution().URL.String(),
		Err: err,
	}
}

// urlErrorOp is lifted verbatim from net/http/client.go
func urlErrorOp(method string) string {
	if method == "" {
		return "Get"
	}
	return method[:1] + strings.ToLower(method[1:])
}
