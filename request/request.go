// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"net/http"
	urlpkg "net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/http/httpguts"
)

// A Request describes one logical HTTP call to be run by the
// scheduler, together with the policy and hooks that govern its
// execution.
//
// Create a Request with New (or with the scheduler's NewRequest, which
// seeds it with the scheduler's configured defaults), adjust its
// exported fields, then enqueue it. The exported fields must not be
// changed once the Request is enqueued: while it is executing, only
// the owning worker changes it, and Kill and Pause are the only
// operations other goroutines may perform on it.
type Request struct {
	// Header holds user headers. They override the scheduler's
	// User-Agent and Content-Type defaults.
	Header http.Header

	// ContentType is sent as the Content-Type of a write request. It
	// defaults to application/x-www-form-urlencoded for POST requests
	// carrying arguments.
	ContentType string

	// Priority determines the Request's place in the pending queue.
	Priority Priority

	// Kind names a class of Request for worker affinity. Requests of a
	// kind pinned to a worker offset only execute on that worker.
	Kind string

	// Timeout is the inactivity timeout for this Request. Zero or
	// negative means the scheduler's global timeout applies.
	Timeout time.Duration

	// RetryBudget is the number of transport failures which are
	// retried silently before OnIOFailure is consulted.
	RetryBudget int

	// FollowRedirects enables following 301, 302 and 303 responses.
	FollowRedirects bool

	// KeepMethodOnRedirect disables the conversion of POST to GET when
	// a 302 or 303 redirect is followed.
	KeepMethodOnRedirect bool

	// DuplicateTolerant allows several equal Requests to be pending at
	// once. By default a Request equal to one already pending or
	// executing is dropped at submission.
	DuplicateTolerant bool

	// Pausable lets a Critical request displace this Request back into
	// the queue instead of killing it.
	Pausable bool

	// ReadErrorBody enables reading the body of error responses into
	// Execution.Body for diagnostic purposes.
	ReadErrorBody bool

	// Hooks customizes the Request's execution.
	Hooks Hooks

	id     string
	method string
	url    *urlpkg.URL
	args   Args
	body   Body

	initOnce sync.Once
	exec     *Execution
	doneMu   sync.Mutex
	done     chan struct{}
	finished bool

	state  atomic.Int32
	killed atomic.Bool
	paused atomic.Bool
}

// New returns a Request for the given method and URL. An empty method
// means GET. The URL must be an absolute http or https URL.
func New(method, url string) (*Request, error) {
	if method == "" {
		method = "GET"
	}
	if !validMethod(method) {
		return nil, invalid(url, "invalid method "+method, nil)
	}
	u, err := parseURL(url)
	if err != nil {
		return nil, err
	}
	r := &Request{
		Header:          make(http.Header),
		Priority:        Normal,
		FollowRedirects: true,
		id:              uuid.NewString(),
		method:          strings.ToUpper(method),
		url:             u,
	}
	r.init()
	return r, nil
}

func (r *Request) init() {
	r.initOnce.Do(func() {
		if r.id == "" {
			r.id = uuid.NewString()
		}
		r.done = make(chan struct{})
		r.exec = NewExecution(r)
	})
}

// ID returns a unique identifier for the Request, suitable for log
// correlation.
func (r *Request) ID() string {
	r.init()
	return r.id
}

// Method returns the HTTP method.
func (r *Request) Method() string {
	if r.method == "" {
		return "GET"
	}
	return r.method
}

// URL returns a copy of the Request URL, without any GET arguments.
func (r *Request) URL() *urlpkg.URL {
	if r.url == nil {
		return nil
	}
	u := *r.url
	return &u
}

// Args returns the request arguments in insertion order.
func (r *Request) Args() Args {
	return r.args
}

// Body returns the request body producer, or nil.
func (r *Request) Body() Body {
	return r.body
}

// SetURL replaces the Request URL.
func (r *Request) SetURL(url string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	u, err := parseURL(url)
	if err != nil {
		return err
	}
	r.url = u
	r.init()
	r.exec.URL = r.URL()
	return nil
}

// SetMethod changes the HTTP method. Switching between a form-encoded
// method (POST) and a query-encoded one after arguments were added is
// a state violation, as is switching to POST when a body is set and
// arguments exist.
func (r *Request) SetMethod(method string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if method == "" {
		method = "GET"
	}
	if !validMethod(method) {
		return invalid(r.urlString(), "invalid method "+method, nil)
	}
	method = strings.ToUpper(method)
	if len(r.args) > 0 && formEncoded(method) != formEncoded(r.Method()) {
		return violation("cannot change method from %s to %s after arguments were added", r.Method(), method)
	}
	r.method = method
	return nil
}

// AddArg appends an argument. For a POST request the arguments form
// the body, so adding one when a Body is already set is a state
// violation.
func (r *Request) AddArg(key, value string) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if formEncoded(r.Method()) && r.body != nil {
		return violation("cannot add form argument %q to a POST request with a body", key)
	}
	r.args.Add(key, value)
	return nil
}

// SetBody sets the body producer of a write request. Setting a body on
// a POST request which already has form arguments is a state
// violation.
func (r *Request) SetBody(body Body) error {
	if err := r.checkMutable(); err != nil {
		return err
	}
	if body != nil && formEncoded(r.Method()) && len(r.args) > 0 {
		return violation("cannot set a body on a POST request with form arguments")
	}
	r.body = body
	return nil
}

// IsWrite reports whether the Request sends a body: either an explicit
// Body or POST form arguments.
func (r *Request) IsWrite() bool {
	return r.body != nil || (formEncoded(r.Method()) && len(r.args) > 0)
}

// WriteBody returns the Body to send, building the form body for a
// POST with arguments, or nil for a request without a body.
func (r *Request) WriteBody() Body {
	if r.body != nil {
		return r.body
	}
	if formEncoded(r.Method()) && len(r.args) > 0 {
		return BytesBody(r.args.Encode())
	}
	return nil
}

// EncodedURL returns the URL to send: for a query-encoded method the
// arguments are appended to the query string.
func (r *Request) EncodedURL() *urlpkg.URL {
	u := r.URL()
	if u == nil || formEncoded(r.Method()) || len(r.args) == 0 {
		return u
	}
	if u.RawQuery == "" {
		u.RawQuery = r.args.Encode()
	} else {
		u.RawQuery += "&" + r.args.Encode()
	}
	return u
}

// Key returns the identity of the Request: its method, URL and
// argument set. Two Requests with the same Key are equal, whatever
// order their arguments were added in.
func (r *Request) Key() string {
	return r.Method() + " " + r.urlString() + "\x00" + r.args.canonical()
}

// Equal reports whether r and o describe the same logical call.
func (r *Request) Equal(o *Request) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	return r.Key() == o.Key()
}

// Validate checks the Request can be submitted. It returns an
// *InvalidRequestError if the URL is missing or malformed or a header
// is not valid on the wire.
func (r *Request) Validate() error {
	if r.url == nil {
		return invalid("", "missing URL", nil)
	}
	if err := checkURL(r.url); err != nil {
		return err
	}
	for k, vs := range r.Header {
		if !httpguts.ValidHeaderFieldName(k) {
			return invalid(r.urlString(), "invalid header name "+k, nil)
		}
		for _, v := range vs {
			if !httpguts.ValidHeaderFieldValue(v) {
				return invalid(r.urlString(), "invalid value for header "+k, nil)
			}
		}
	}
	return nil
}

// Execution returns the Request's Execution.
func (r *Request) Execution() *Execution {
	r.init()
	return r.exec
}

// State returns the current lifecycle state.
func (r *Request) State() State {
	return State(r.state.Load())
}

// SetState records a lifecycle transition. It is used by the
// scheduler; terminal states are set with Finish.
func (r *Request) SetState(s State) {
	r.state.Store(int32(s))
}

// Finish moves the Request into the terminal state s and releases
// anyone waiting on Done. It reports false if the Request had already
// finished.
func (r *Request) Finish(s State) bool {
	r.init()
	r.doneMu.Lock()
	defer r.doneMu.Unlock()
	if r.finished {
		return false
	}
	r.finished = true
	r.state.Store(int32(s))
	r.exec.End = time.Now()
	close(r.done)
	return true
}

// Done returns a channel which is closed when the Request reaches a
// terminal state. A reopened Request has a new channel.
func (r *Request) Done() <-chan struct{} {
	r.init()
	r.doneMu.Lock()
	defer r.doneMu.Unlock()
	return r.done
}

// Reopen returns a finished Request to the New state so it can be
// submitted again. The kill and pause flags, the silent retry budget
// and the outcome of the last attempt are cleared; Attempt keeps
// counting. It is used by the scheduler and fails with
// ErrStateViolation unless the Request has finished.
func (r *Request) Reopen() error {
	r.init()
	r.doneMu.Lock()
	defer r.doneMu.Unlock()
	if !r.finished {
		return violation("cannot reopen a request in state %s", r.State())
	}
	r.finished = false
	r.done = make(chan struct{})
	r.killed.Store(false)
	r.paused.Store(false)
	r.state.Store(int32(StateNew))

	e := r.exec
	e.End = time.Time{}
	e.Attempt++
	e.Retries = 0
	e.Response = nil
	e.Body = nil
	e.Err = nil
	e.Fault = nil
	return nil
}

// Kill flags the Request for cooperative cancellation. The owning
// worker notices the flag at its next checkpoint.
func (r *Request) Kill() {
	r.killed.Store(true)
}

// Killed reports whether Kill was called.
func (r *Request) Killed() bool {
	return r.killed.Load()
}

// Pause flags a pausable Request to yield its worker. It reports false
// if the Request is not pausable.
func (r *Request) Pause() bool {
	if !r.Pausable {
		return false
	}
	r.paused.Store(true)
	return true
}

// Paused reports whether the Request has a pending pause.
func (r *Request) Paused() bool {
	return r.paused.Load()
}

// Resume clears a pending pause.
func (r *Request) Resume() {
	r.paused.Store(false)
}

// Interrupted reports whether the owning worker should stop, because
// the Request was killed or paused.
func (r *Request) Interrupted() bool {
	return r.Killed() || r.Paused()
}

// RetriesLeft returns the unused part of the silent retry budget.
func (r *Request) RetriesLeft() int {
	n := r.RetryBudget - r.Execution().Retries
	if n < 0 {
		return 0
	}
	return n
}

// ConsumeRetry uses one unit of the silent retry budget. It reports
// false if the budget was already exhausted.
func (r *Request) ConsumeRetry() bool {
	if r.RetriesLeft() == 0 {
		return false
	}
	r.exec.Retries++
	return true
}

// Redirect points the Request at a new URL. If toGet is true the
// Request becomes a GET without body or form arguments. It is used by
// the worker which owns the Request and bypasses the mutability
// checks of SetURL and SetMethod.
func (r *Request) Redirect(to *urlpkg.URL, toGet bool) {
	u := *to
	r.url = &u
	if toGet || !formEncoded(r.Method()) {
		// Query arguments belong to the old URL.
		r.args = nil
	}
	if toGet {
		r.method = "GET"
		r.body = nil
	}
	r.Execution().URL = r.URL()
	r.exec.Redirects++
}

func (r *Request) checkMutable() error {
	switch s := r.State(); s {
	case StateQueued, StateExecuting, StateRedirecting, StatePaused:
		return violation("cannot modify a request in state %s", s)
	default:
		return nil
	}
}

func (r *Request) urlString() string {
	if r.url == nil {
		return ""
	}
	return r.url.String()
}

func formEncoded(method string) bool {
	return method == "POST"
}

func parseURL(url string) (*urlpkg.URL, error) {
	if url == "" {
		return nil, invalid("", "missing URL", nil)
	}
	u, err := urlpkg.Parse(url)
	if err != nil {
		return nil, invalid(url, "malformed URL", err)
	}
	if err = checkURL(u); err != nil {
		return nil, err
	}
	u.Host = removeEmptyPort(u.Host)
	return u, nil
}

func checkURL(u *urlpkg.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid(u.String(), "unsupported scheme "+u.Scheme, nil)
	}
	if u.Host == "" {
		return invalid(u.String(), "missing host", nil)
	}
	return nil
}

func validMethod(method string) bool {
	return strings.IndexFunc(method, isNotToken) == -1
}

func isNotToken(r rune) bool {
	return !httpguts.IsTokenRune(r)
}

func hasPort(s string) bool { return strings.LastIndex(s, ":") > strings.LastIndex(s, "]") }

func removeEmptyPort(host string) string {
	if hasPort(host) {
		return strings.TrimSuffix(host, ":")
	}
	return host
}
