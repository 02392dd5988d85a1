// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"context"
	"net/url"

	"github.com/gogama/httpq/request"
)

// Doer is the interface that wraps the basic NewRequest and Do
// methods.
//
// NewRequest creates a Request seeded with the implementation's
// defaults. Do runs a Request and waits until it finishes, returning
// its Execution (and error, if any). Scheduler implements the Doer
// interface, and any other Doer implementation must behave
// substantially the same as Scheduler.Do.
type Doer interface {
	NewRequest(method, url string) (*request.Request, error)
	Do(ctx context.Context, r *request.Request) (*request.Execution, error)
}

// Getter is the interface that wraps the basic Get method.
//
// Any Doer can be used to emulate a Getter via the Get function.
type Getter interface {
	Get(ctx context.Context, url string) (*request.Execution, error)
}

// Poster is the interface that wraps the basic Post method.
//
// The body parameter may be nil for an empty body, or may be any of the
// types supported by request.NewBody, namely: string; []byte;
// io.Reader; and io.ReadCloser.
//
// Any Doer can be used to emulate a Poster via the Post function.
type Poster interface {
	Post(ctx context.Context, url, contentType string, body interface{}) (*request.Execution, error)
}

// FormPoster is the interface that wraps the basic PostForm method.
//
// The keys and values from data are sent as form arguments, URL-encoded
// in the request body with content type
// application/x-www-form-urlencoded.
//
// Any Doer can be used to emulate a FormPoster via the PostForm
// function.
type FormPoster interface {
	PostForm(ctx context.Context, url string, data url.Values) (*request.Execution, error)
}

// Executor is the interface that groups the basic Do, Get, Post and
// PostForm methods.
type Executor interface {
	Doer
	Getter
	Poster
	FormPoster
}

var _ Executor = (*Scheduler)(nil)

// Get uses the specified Doer to issue a GET to the specified URL,
// using the same policies as d.Do.
//
// To make a Request with custom headers or priority, use d.NewRequest
// and d.Do.
func Get(ctx context.Context, d Doer, url string) (*request.Execution, error) {
	r, err := d.NewRequest("GET", url)
	if err != nil {
		return nil, err
	}
	return d.Do(ctx, r)
}

// Head uses the specified Doer to issue a HEAD to the specified URL,
// using the same policies as d.Do.
func Head(ctx context.Context, d Doer, url string) (*request.Execution, error) {
	r, err := d.NewRequest("HEAD", url)
	if err != nil {
		return nil, err
	}
	return d.Do(ctx, r)
}

// Post uses the specified Doer to issue a POST to the specified URL,
// using the same policies as d.Do.
func Post(ctx context.Context, d Doer, url, contentType string, body interface{}) (*request.Execution, error) {
	b, err := request.NewBody(body)
	if err != nil {
		return nil, err
	}
	r, err := d.NewRequest("POST", url)
	if err != nil {
		return nil, err
	}
	if b != nil {
		if err = r.SetBody(b); err != nil {
			return nil, err
		}
	}
	r.ContentType = contentType
	return d.Do(ctx, r)
}

// PostForm uses the specified Doer to issue a form POST to the
// specified URL, using the same policies as d.Do.
func PostForm(ctx context.Context, d Doer, url string, data url.Values) (*request.Execution, error) {
	r, err := d.NewRequest("POST", url)
	if err != nil {
		return nil, err
	}
	for _, arg := range request.ArgsFromValues(data) {
		if err = r.AddArg(arg.Key, arg.Value); err != nil {
			return nil, err
		}
	}
	return d.Do(ctx, r)
}
