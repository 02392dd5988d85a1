// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package cookie parses Set-Cookie response headers and keeps the
// resulting cookies in a Jar so they can be sent with later requests
// to matching domains and paths.
//
// The scheduler handles cookies itself rather than through an
// http.CookieJar so that a request's CookieHeader hook can see, and
// replace, the exact Cookie header value before it is sent.
package cookie
