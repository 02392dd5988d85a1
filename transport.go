// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"net"
	"net/http"
	"time"

	"github.com/gogama/httpq/accesspoint"
)

// A Transport implements a Do method in the same manner as the GoLang
// standard library http.Client from the net/http package.
//
// The Scheduler follows redirects and manages cookies itself, so a
// Transport should return 3xx responses as is and keep no cookie jar.
type Transport interface {
	// Do sends an HTTP request and returns an HTTP response.
	//
	// The Do method must follow the contract documented on the GoLang
	// standard library http.Client from the net/http package.
	Do(r *http.Request) (*http.Response, error)
}

// NewTransport returns the default Transport: an http.Client which
// does not follow redirects. If sw implements accesspoint.Dialer,
// connections are dialed through it.
func NewTransport(sw accesspoint.Switcher) Transport {
	t := http.DefaultTransport.(*http.Transport).Clone()
	if d, ok := sw.(accesspoint.Dialer); ok {
		t.DialContext = d.DialContext
	} else {
		t.DialContext = (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext
	}
	return &http.Client{
		Transport: t,
		CheckRedirect: func(_ *http.Request, _ []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}
