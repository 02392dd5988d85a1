// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gogama/httpq/progress"
	"github.com/gogama/httpq/request"
	"github.com/gogama/httpq/transient"
	"github.com/sirupsen/logrus"
)

// maxDrain is how much of a redirect's body is read to let the
// connection be reused.
const maxDrain = 4 << 10

var errUploadDone = errors.New("httpq: upload abandoned")

type outcome int

const (
	outComplete outcome = iota
	outFailed
	outKilled
	outPaused
	outRequeue    // re-admit at High now
	outRetryLater // silent retry, re-admit at High after wait
	outAsk        // defer to the retry prompt
)

type result struct {
	out  outcome
	wait time.Duration
}

// attempt runs one pass of r's execution lifecycle: prepare, send,
// dispatch on the status code, and clean up. It never panics.
func (w *worker) attempt(ctx context.Context, r *request.Request, log logrus.FieldLogger) (res result) {
	s := w.s
	e := r.Execution()

	defer func() {
		if v := recover(); v != nil {
			res = w.fault(ctx, r, v, log)
		}
	}()

	s.handlers.run(BeforeExecute, e)
	if res, stop := w.checkpoint(ctx, r); stop {
		return res
	}

	req, body, err := s.buildRequest(ctx, r)
	if err != nil {
		e.Err = urlErrorWrap(r, err)
		return s.onError(r, log)
	}

	var up *upload
	if body != nil {
		up = w.startUpload(req, r, body)
	}
	resp, err := s.cfg.Transport.Do(req)
	if up != nil {
		e.BytesWritten = up.finish()
	}
	w.touch()
	if err != nil {
		if res, stop := w.checkpoint(ctx, r); stop {
			return res
		}
		e.Err = urlErrorWrap(r, err)
		return s.onIOFailure(r, log)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	e.Response = resp
	for _, err := range s.cfg.Jar.SetFromResponse(e.URL, resp.Header) {
		log.WithError(err).Debug("rejected cookie")
	}
	s.handlers.run(AfterResponse, e)
	if res, stop := w.checkpoint(ctx, r); stop {
		return res
	}

	code := resp.StatusCode
	switch {
	case code-200 >= 0 && code-200 <= 100:
		return w.readResponse(ctx, r, log)
	case isRedirect(code) && r.FollowRedirects:
		return w.redirect(r, log)
	default:
		if r.ReadErrorBody {
			w.readErrorBody(r)
		}
		if res, stop := w.checkpoint(ctx, r); stop {
			return res
		}
		return s.onError(r, log)
	}
}

// checkpoint reports whether the attempt must stop because r was
// killed or paused, or because the attempt context is done.
func (w *worker) checkpoint(ctx context.Context, r *request.Request) (result, bool) {
	switch {
	case r.Killed():
		return result{out: outKilled}, true
	case r.Paused():
		return result{out: outPaused}, true
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		w.timedOut.Store(true)
		return result{out: outKilled}, true
	case ctx.Err() != nil:
		return result{out: outKilled}, true
	default:
		return result{}, false
	}
}

func isRedirect(code int) bool {
	return code == http.StatusMovedPermanently || code == http.StatusFound || code == http.StatusSeeOther
}

// buildRequest prepares the HTTP request for the current attempt of r.
// The returned Body, if not nil, still has to be written.
func (s *Scheduler) buildRequest(ctx context.Context, r *request.Request) (*http.Request, request.Body, error) {
	e := r.Execution()
	u := r.EncodedURL()
	if s.cfg.RewriteURL != nil {
		u = s.cfg.RewriteURL(u)
	}

	req, err := http.NewRequestWithContext(ctx, r.Method(), u.String(), nil)
	if err != nil {
		return nil, nil, err
	}

	body := r.WriteBody()
	req.Header.Set("User-Agent", s.cfg.UserAgent)
	if body != nil {
		ct := r.ContentType
		if ct == "" && r.Body() == nil {
			ct = "application/x-www-form-urlencoded"
		}
		if ct != "" {
			req.Header.Set("Content-Type", ct)
		}
	}
	for k, vs := range r.Header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	cookie := s.cfg.Jar.Header(e.URL)
	if r.Hooks.CookieHeader != nil {
		cookie = r.Hooks.CookieHeader(e, cookie)
	}
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	return req, body, nil
}

// An upload streams a request body into the transport through a pipe,
// so that the bytes written are monitored like the bytes read.
type upload struct {
	pr   *io.PipeReader
	pw   *progress.Writer
	done chan struct{}
}

func (w *worker) startUpload(req *http.Request, r *request.Request, body request.Body) *upload {
	n := body.ContentLength()
	if n == 0 {
		req.Body = http.NoBody
		req.ContentLength = 0
		return nil
	}

	pr, pipe := io.Pipe()
	up := &upload{
		pr:   pr,
		pw:   progress.NewWriter(pipe, w.streamOptions(r, false)...),
		done: make(chan struct{}),
	}
	w.writer.Store(up.pw)
	req.Body = pr
	if n > 0 {
		req.ContentLength = n
	}

	go func() {
		defer close(up.done)
		_, err := body.WriteTo(up.pw)
		if err == nil {
			err = up.pw.Flush()
		}
		_ = pipe.CloseWithError(err)
	}()
	return up
}

// finish abandons whatever the transport did not read and waits for
// the writing goroutine. It returns the number of bytes written.
func (up *upload) finish() int64 {
	_ = up.pr.CloseWithError(errUploadDone)
	<-up.done
	return up.pw.N()
}

func (w *worker) openBody(r *request.Request) *progress.Reader {
	pr := progress.NewReader(r.Execution().Response.Body, w.streamOptions(r, true)...)
	w.reader.Store(pr)
	return pr
}

// A readRecorder remembers the error of the underlying reader, which
// tells IO failures apart from errors made up by a response hook.
type readRecorder struct {
	r   io.Reader
	err error
}

func (rr *readRecorder) Read(p []byte) (int, error) {
	n, err := rr.r.Read(p)
	if err != nil && err != io.EOF {
		rr.err = err
	}
	return n, err
}

func (w *worker) readResponse(ctx context.Context, r *request.Request, log logrus.FieldLogger) result {
	s := w.s
	e := r.Execution()
	body := w.openBody(r)
	rec := &readRecorder{r: body}

	var err error
	if r.Hooks.OnResponse != nil {
		err = r.Hooks.OnResponse(e, rec)
	} else {
		e.Body, err = io.ReadAll(rec)
	}
	e.BytesRead = body.N()
	w.touch()
	if res, stop := w.checkpoint(ctx, r); stop {
		return res
	}

	if err != nil {
		if rec.err != nil && errors.Is(err, rec.err) {
			e.Err = urlErrorWrap(r, err)
			return s.onIOFailure(r, log)
		}
		e.Err = err
		return s.onError(r, log)
	}
	return result{out: outComplete}
}

func (w *worker) readErrorBody(r *request.Request) {
	e := r.Execution()
	body := w.openBody(r)
	e.Body, _ = io.ReadAll(body)
	e.BytesRead = body.N()
	w.touch()
}

// redirect follows a 301, 302 or 303 response by pointing r at the
// new location and asking for re-admission.
func (w *worker) redirect(r *request.Request, log logrus.FieldLogger) result {
	s := w.s
	e := r.Execution()
	resp := e.Response

	loc := resp.Header.Get("Location")
	if loc == "" {
		e.Err = urlErrorWrap(r, fmt.Errorf("%s response missing Location header", resp.Status))
		return s.onError(r, log)
	}
	target, err := e.URL.Parse(loc)
	if err != nil {
		e.Err = urlErrorWrap(r, err)
		return s.onError(r, log)
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		e.Err = urlErrorWrap(r, fmt.Errorf("unsupported redirect scheme %q", target.Scheme))
		return s.onError(r, log)
	}
	if e.Redirects >= s.cfg.MaxRedirects {
		e.Err = urlErrorWrap(r, ErrTooManyRedirects)
		return s.onError(r, log)
	}

	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))

	if r.Hooks.OnRedirect != nil && r.Hooks.OnRedirect(e, target) {
		log.WithField("location", target.String()).Debug("redirect intercepted")
		return result{out: outComplete}
	}

	code := resp.StatusCode
	toGet := (code == http.StatusFound || code == http.StatusSeeOther) &&
		r.Method() == http.MethodPost && !r.KeepMethodOnRedirect
	r.Redirect(target, toGet)
	r.SetState(request.StateRedirecting)
	s.handlers.run(AfterRedirect, e)
	log.WithFields(logrus.Fields{
		"location": target.String(),
		"method":   r.Method(),
	}).Debug("following redirect")
	return result{out: outRequeue}
}

// onError consults the OnError hook about a protocol-level failure.
func (s *Scheduler) onError(r *request.Request, log logrus.FieldLogger) result {
	e := r.Execution()
	action := request.Fail
	if r.Hooks.OnError != nil {
		action = r.Hooks.OnError(e)
	}
	log.WithFields(logrus.Fields{
		"status": e.StatusCode(),
		"action": action,
	}).WithError(e.Err).Debug("request error")
	return s.act(r, action)
}

// onIOFailure retries a transport failure silently while the retry
// policy and the budget allow it, and consults the OnIOFailure hook
// once they do not.
func (s *Scheduler) onIOFailure(r *request.Request, log logrus.FieldLogger) result {
	e := r.Execution()
	if e.Timeout() {
		e.Timeouts++
	}
	log = log.WithError(e.Err).WithField("transient", transient.Categorize(e.Err))

	if s.cfg.RetryPolicy.Decide(e) {
		wait := s.cfg.RetryPolicy.Wait(e)
		if r.ConsumeRetry() {
			log.WithField("wait", wait).Info("retrying silently")
			s.handlers.run(AfterRetry, e)
			return result{out: outRetryLater, wait: wait}
		}
	}

	action := request.Ask
	if r.Hooks.OnIOFailure != nil {
		action = r.Hooks.OnIOFailure(e, e.Err)
	}
	log.WithField("action", action).Warn("transport failure")
	return s.act(r, action)
}

// fault handles a panic recovered from the attempt. A panicking
// OnFault hook fails the Request.
func (w *worker) fault(ctx context.Context, r *request.Request, v interface{}, log logrus.FieldLogger) (res result) {
	e := r.Execution()
	e.Fault = v
	e.Err = urlErrorWrap(r, &PanicError{Value: v})
	log.WithField("panic", v).Error("recovered panic in request lifecycle")

	if res, stop := w.checkpoint(ctx, r); stop {
		return res
	}

	action := request.Ask
	if r.Hooks.OnFault != nil {
		defer func() {
			if v2 := recover(); v2 != nil {
				log.WithField("panic", v2).Error("recovered panic in fault hook")
				res = result{out: outFailed}
			}
		}()
		action = r.Hooks.OnFault(e, v)
	}
	return w.s.act(r, action)
}

func (s *Scheduler) act(r *request.Request, action request.Action) result {
	switch action {
	case request.Retry:
		s.handlers.run(AfterRetry, r.Execution())
		return result{out: outRequeue}
	case request.Ask:
		return result{out: outAsk}
	default:
		return result{out: outFailed}
	}
}
