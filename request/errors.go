// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"errors"
	"fmt"
)

// ErrStateViolation is returned when a Request is modified in a way
// its current contents or lifecycle state do not allow, for example
// switching between GET and POST after arguments were added, or
// enqueueing a Request that already reached a terminal state.
var ErrStateViolation = errors.New("httpq/request: state violation")

// An InvalidRequestError reports a Request which cannot be submitted
// because its URL or headers are missing or malformed.
type InvalidRequestError struct {
	URL    string
	Reason string
	Err    error
}

func (e *InvalidRequestError) Error() string {
	msg := "httpq/request: invalid request"
	if e.URL != "" {
		msg += fmt.Sprintf(" %q", e.URL)
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *InvalidRequestError) Unwrap() error {
	return e.Err
}

func invalid(url, reason string, err error) error {
	return &InvalidRequestError{URL: url, Reason: reason, Err: err}
}

func violation(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrStateViolation}, args...)...)
}
