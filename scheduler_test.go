// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/gogama/httpq/accesspoint"
	"github.com/gogama/httpq/request"
	"github.com/gogama/httpq/retry"
	"github.com/gogama/httpq/timeout"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 10 * time.Second
	tick    = 5 * time.Millisecond
)

type transportFunc func(req *http.Request) (*http.Response, error)

func (f transportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// testTransport returns a Transport trusting server's certificate, and
// which leaves redirects and cookies to the Scheduler.
func testTransport(server *httptest.Server) Transport {
	c := *server.Client()
	c.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	c.Jar = nil
	return &c
}

func testConfig(server *httptest.Server) (Config, *test.Hook) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	cfg := DefaultConfig()
	cfg.Transport = testTransport(server)
	cfg.Logger = logger
	cfg.KillGrace = 100 * time.Millisecond
	return cfg, hook
}

func startScheduler(t *testing.T, cfg Config) *Scheduler {
	s, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, s.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = s.Close(ctx)
	})
	return s
}

func newRequest(t *testing.T, s *Scheduler, method string, i *serverInstruction, server *httptest.Server, path string) *request.Request {
	r, err := s.NewRequest(method, i.url(server, path))
	require.NoError(t, err)
	return r
}

func enqueue(t *testing.T, s *Scheduler, r *request.Request) {
	ok, err := s.Enqueue(r)
	require.NoError(t, err)
	require.True(t, ok)
}

func waitRequest(s *Scheduler, r *request.Request) (*request.Execution, error) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	return s.Wait(ctx, r)
}

// waitBusy waits until every worker owns a Request and nothing is
// pending.
func waitBusy(t *testing.T, s *Scheduler) {
	require.Eventually(t, func() bool {
		return s.Pending() == 0 && !s.IsIdle()
	}, waitFor, tick)
}

// recorder collects the paths of Requests as events fire.
type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (rec *recorder) Handle(_ Event, e *request.Execution) {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	rec.paths = append(rec.paths, e.Request.URL().Path)
}

func (rec *recorder) get() []string {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return append([]string(nil), rec.paths...)
}

func TestNew(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		s, err := New(Config{Workers: -1})
		assert.Nil(t, s)
		assert.Error(t, err)
	})
	t.Run("defaults", func(t *testing.T) {
		s, err := New(Config{})
		require.NoError(t, err)
		assert.Equal(t, DefaultWorkers, s.cfg.Workers)
		assert.NotNil(t, s.ownLoop)
		assert.Same(t, s.ownLoop, s.dispatcher)
		assert.NoError(t, s.Close(context.Background()))
	})
	t.Run("custom dispatcher", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Dispatcher = Goroutine
		s, err := New(cfg)
		require.NoError(t, err)
		assert.Nil(t, s.ownLoop)
		assert.NoError(t, s.Close(context.Background()))
	})
}

func TestScheduler_Get(t *testing.T) {
	for _, server := range servers {
		t.Run(serverName(server), func(t *testing.T) {
			cfg, _ := testConfig(server)
			rec := map[Event]*recorder{}
			handlers := &HandlerGroup{}
			for _, evt := range Events() {
				rec[evt] = &recorder{}
				handlers.PushBack(evt, rec[evt])
			}
			cfg.Handlers = handlers
			s := startScheduler(t, cfg)

			i := &serverInstruction{StatusCode: 200, Body: []bodyChunk{{Data: []byte("hello")}}}
			e, err := s.Get(context.Background(), i.url(server, "/get"))
			require.NoError(t, err)
			assert.Equal(t, 200, e.StatusCode())
			assert.Equal(t, "hello", string(e.Body))
			assert.Equal(t, int64(5), e.BytesRead)
			assert.Equal(t, 0, e.Worker)
			assert.Equal(t, 0, e.Attempt)
			assert.Equal(t, request.StateComplete, e.Request.State())
			assert.True(t, e.Ended())

			for _, evt := range []Event{Enqueued, BeforeExecute, AfterResponse} {
				assert.Equal(t, []string{"/get"}, rec[evt].get(), evt.String())
			}
			require.Eventually(t, func() bool { return len(rec[AfterComplete].get()) == 1 }, waitFor, tick)
			for _, evt := range []Event{AfterRedirect, AfterRetry, AfterTimeout, AfterFailure, AfterKill} {
				assert.Empty(t, rec[evt].get(), evt.String())
			}
			assert.True(t, s.IsIdle())
		})
	}
}

func TestScheduler_Headers(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	s := startScheduler(t, cfg)
	echo := &serverInstruction{StatusCode: 200, Echo: true}

	t.Run("default user agent", func(t *testing.T) {
		e, err := s.Get(context.Background(), echo.url(httpServer, "/ua"))
		require.NoError(t, err)
		got, err := decodeEcho(e.Body)
		require.NoError(t, err)
		assert.Equal(t, DefaultUserAgent, got.Header.Get("User-Agent"))
	})
	t.Run("user headers win", func(t *testing.T) {
		r := newRequest(t, s, "GET", echo, httpServer, "/ua2")
		r.Header.Set("User-Agent", "custom/2.0")
		r.Header.Set("X-Extra", "1")
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		got, err := decodeEcho(e.Body)
		require.NoError(t, err)
		assert.Equal(t, "custom/2.0", got.Header.Get("User-Agent"))
		assert.Equal(t, "1", got.Header.Get("X-Extra"))
	})
	t.Run("GET arguments", func(t *testing.T) {
		r := newRequest(t, s, "GET", echo, httpServer, "/args")
		require.NoError(t, r.AddArg("b", "2"))
		require.NoError(t, r.AddArg("a", "1 1"))
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		got, err := decodeEcho(e.Body)
		require.NoError(t, err)
		assert.Equal(t, "2", got.Query.Get("b"))
		assert.Equal(t, "1 1", got.Query.Get("a"))
	})
	t.Run("form post", func(t *testing.T) {
		e, err := s.PostForm(context.Background(), echo.url(httpServer, "/form"), map[string][]string{"k": {"v"}})
		require.NoError(t, err)
		got, err := decodeEcho(e.Body)
		require.NoError(t, err)
		assert.Equal(t, "POST", got.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", got.Header.Get("Content-Type"))
		assert.Equal(t, "k=v", got.Body)
	})
}

func TestScheduler_Upload(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	s := startScheduler(t, cfg)
	echo := &serverInstruction{StatusCode: 200, Echo: true}
	data := strings.Repeat("0123456789", 2000)

	t.Run("known length", func(t *testing.T) {
		var written atomic.Int64
		r := newRequest(t, s, "PUT", echo, httpServer, "/put")
		require.NoError(t, r.SetBody(request.BytesBody(data)))
		r.ContentType = "text/plain"
		r.Hooks.OnProgress = func(_ *request.Execution, _, w int64) {
			if w > written.Load() {
				written.Store(w)
			}
		}
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		got, err := decodeEcho(e.Body)
		require.NoError(t, err)
		assert.Equal(t, data, got.Body)
		assert.Equal(t, "text/plain", got.Header.Get("Content-Type"))
		assert.Equal(t, int64(len(data)), e.BytesWritten)
		assert.Equal(t, int64(len(data)), written.Load())
	})
	t.Run("unknown length", func(t *testing.T) {
		r := newRequest(t, s, "POST", echo, httpServer, "/stream")
		require.NoError(t, r.SetBody(request.StreamBody(-1, func(w io.Writer) error {
			_, err := io.WriteString(w, data)
			return err
		})))
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		got, err := decodeEcho(e.Body)
		require.NoError(t, err)
		assert.Equal(t, data, got.Body)
	})
	t.Run("empty body", func(t *testing.T) {
		r := newRequest(t, s, "POST", echo, httpServer, "/empty")
		require.NoError(t, r.SetBody(request.BytesBody(nil)))
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		got, err := decodeEcho(e.Body)
		require.NoError(t, err)
		assert.Equal(t, "", got.Body)
	})
}

func TestScheduler_PriorityOrder(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	rec := &recorder{}
	cfg.Handlers = &HandlerGroup{}
	cfg.Handlers.PushBack(AfterComplete, rec)
	s := startScheduler(t, cfg)

	blocker := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 200 * time.Millisecond}, httpServer, "/blocker")
	enqueue(t, s, blocker)
	waitBusy(t, s)

	ok := &serverInstruction{StatusCode: 200}
	for _, x := range []struct {
		path string
		prio request.Priority
	}{
		{"/low", request.Low},
		{"/normal", request.Normal},
		{"/high1", request.High},
		{"/redundant", request.Redundant},
		{"/high2", request.High},
		{"/between", 60},
	} {
		r := newRequest(t, s, "GET", ok, httpServer, x.path)
		r.Priority = x.prio
		enqueue(t, s, r)
	}

	require.Eventually(t, func() bool { return len(rec.get()) == 7 }, waitFor, tick)
	assert.Equal(t, []string{"/blocker", "/high1", "/high2", "/between", "/normal", "/low", "/redundant"}, rec.get())
}

func TestScheduler_ReadmitAtHigh(t *testing.T) {
	t.Run("redirect", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		rec := &recorder{}
		cfg.Handlers = &HandlerGroup{}
		cfg.Handlers.PushBack(BeforeExecute, rec)
		s := startScheduler(t, cfg)

		landed := &serverInstruction{StatusCode: 200}
		hop := newRequest(t, s, "GET", &serverInstruction{
			StatusCode:  302,
			HeaderPause: 200 * time.Millisecond,
			Location:    landed.url(httpServer, "/landed"),
		}, httpServer, "/hop")
		hop.Priority = request.Low
		enqueue(t, s, hop)
		waitBusy(t, s)

		ok := &serverInstruction{StatusCode: 200}
		normal := newRequest(t, s, "GET", ok, httpServer, "/normal")
		enqueue(t, s, normal)
		low := newRequest(t, s, "GET", ok, httpServer, "/low")
		low.Priority = request.Low
		enqueue(t, s, low)

		_, err := waitRequest(s, low)
		require.NoError(t, err)
		assert.Equal(t, []string{"/hop", "/landed", "/normal", "/low"}, rec.get())
	})
	t.Run("silent retry", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		rec := &recorder{}
		cfg.Handlers = &HandlerGroup{}
		cfg.Handlers.PushBack(BeforeExecute, rec)
		cfg.RetryBudget = 1
		cfg.RetryPolicy = retry.NewPolicy(retry.DefaultDecider, retry.NewFixedWaiter(0))
		next := testTransport(httpServer)
		var failed atomic.Bool
		cfg.Transport = transportFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path == "/again" && failed.CompareAndSwap(false, true) {
				time.Sleep(200 * time.Millisecond)
				return nil, refused()
			}
			return next.Do(req)
		})
		s := startScheduler(t, cfg)

		ok := &serverInstruction{StatusCode: 200}
		again := newRequest(t, s, "GET", ok, httpServer, "/again")
		again.Priority = request.Low
		enqueue(t, s, again)
		waitBusy(t, s)

		normal := newRequest(t, s, "GET", ok, httpServer, "/normal")
		enqueue(t, s, normal)
		low := newRequest(t, s, "GET", ok, httpServer, "/low")
		low.Priority = request.Low
		enqueue(t, s, low)

		_, err := waitRequest(s, low)
		require.NoError(t, err)
		assert.Equal(t, []string{"/again", "/again", "/normal", "/low"}, rec.get())
		assert.Equal(t, 1, again.Execution().Retries)
	})
}

func TestScheduler_Critical(t *testing.T) {
	t.Run("kills non-pausable", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		s := startScheduler(t, cfg)

		slow := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 5 * time.Second}, httpServer, "/slow")
		enqueue(t, s, slow)
		waitBusy(t, s)

		crit := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/critical")
		crit.Priority = request.Critical
		enqueue(t, s, crit)

		_, err := waitRequest(s, slow)
		assert.ErrorIs(t, err, ErrKilled)
		assert.Equal(t, request.StateKilled, slow.State())
		_, err = waitRequest(s, crit)
		assert.NoError(t, err)
	})
	t.Run("pauses pausable", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		rec := &recorder{}
		cfg.Handlers = &HandlerGroup{}
		cfg.Handlers.PushBack(AfterComplete, rec)
		s := startScheduler(t, cfg)

		slow := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 300 * time.Millisecond}, httpServer, "/pausable")
		slow.Pausable = true
		enqueue(t, s, slow)
		waitBusy(t, s)

		crit := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/critical")
		crit.Priority = request.Critical
		enqueue(t, s, crit)

		e, err := waitRequest(s, slow)
		require.NoError(t, err)
		assert.Equal(t, 1, e.Attempt)
		require.Eventually(t, func() bool { return len(rec.get()) == 2 }, waitFor, tick)
		assert.Equal(t, []string{"/critical", "/pausable"}, rec.get())
	})
	t.Run("critical does not preempt critical", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		s := startScheduler(t, cfg)

		first := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 200 * time.Millisecond}, httpServer, "/c1")
		first.Priority = request.Critical
		enqueue(t, s, first)
		waitBusy(t, s)
		second := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/c2")
		second.Priority = request.Critical
		enqueue(t, s, second)

		_, err := waitRequest(s, first)
		assert.NoError(t, err)
		_, err = waitRequest(s, second)
		assert.NoError(t, err)
	})
	t.Run("critical requests run in arrival order", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		rec := &recorder{}
		cfg.Handlers = &HandlerGroup{}
		cfg.Handlers.PushBack(BeforeExecute, rec)
		s := startScheduler(t, cfg)

		busy := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 200 * time.Millisecond}, httpServer, "/c0")
		busy.Priority = request.Critical
		enqueue(t, s, busy)
		waitBusy(t, s)

		ok := &serverInstruction{StatusCode: 200}
		normal := newRequest(t, s, "GET", ok, httpServer, "/normal")
		enqueue(t, s, normal)
		var crits []*request.Request
		for _, path := range []string{"/c1", "/c2", "/c3"} {
			c := newRequest(t, s, "GET", ok, httpServer, path)
			c.Priority = request.Critical
			enqueue(t, s, c)
			crits = append(crits, c)
		}

		_, err := waitRequest(s, normal)
		require.NoError(t, err)
		for _, c := range crits {
			assert.Equal(t, request.StateComplete, c.State())
		}
		assert.Equal(t, []string{"/c0", "/c1", "/c2", "/c3", "/normal"}, rec.get())
	})
}

func TestScheduler_Duplicates(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	s := startScheduler(t, cfg)

	busy := &serverInstruction{StatusCode: 200, HeaderPause: 300 * time.Millisecond}
	r1 := newRequest(t, s, "GET", busy, httpServer, "/dup")
	enqueue(t, s, r1)
	waitBusy(t, s)

	r2 := newRequest(t, s, "GET", busy, httpServer, "/dup")
	ok, err := s.Enqueue(r2)
	assert.NoError(t, err)
	assert.False(t, ok, "equal to the executing request")
	_, err = s.Wait(context.Background(), r2)
	assert.ErrorIs(t, err, ErrNotQueued)

	quick := &serverInstruction{StatusCode: 200}
	r3 := newRequest(t, s, "GET", quick, httpServer, "/other")
	enqueue(t, s, r3)
	r4 := newRequest(t, s, "GET", quick, httpServer, "/other")
	ok, err = s.Enqueue(r4)
	assert.NoError(t, err)
	assert.False(t, ok, "equal to a pending request")

	r5 := newRequest(t, s, "GET", quick, httpServer, "/other")
	r5.DuplicateTolerant = true
	enqueue(t, s, r5)

	r6 := newRequest(t, s, "GET", quick, httpServer, "/other")
	ok, err = s.Retry(r6)
	assert.NoError(t, err)
	assert.True(t, ok, "retries skip the duplicate check")

	for _, r := range []*request.Request{r1, r3, r5, r6} {
		_, err = waitRequest(s, r)
		assert.NoError(t, err)
	}
}

func TestScheduler_Enqueue(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	s := startScheduler(t, cfg)

	t.Run("nil", func(t *testing.T) {
		ok, err := s.Enqueue(nil)
		assert.False(t, ok)
		assert.Error(t, err)
	})
	t.Run("invalid", func(t *testing.T) {
		ok, err := s.Enqueue(&request.Request{})
		assert.False(t, ok)
		var invalid *request.InvalidRequestError
		assert.ErrorAs(t, err, &invalid)
	})
	t.Run("twice", func(t *testing.T) {
		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/twice")
		enqueue(t, s, r)
		_, err := waitRequest(s, r)
		require.NoError(t, err)
		ok, err := s.Enqueue(r)
		assert.False(t, ok)
		assert.ErrorIs(t, err, request.ErrStateViolation)
	})
	t.Run("retry reopens a failed request", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.Transport, _ = flakyTransport(1, testTransport(httpServer))
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/reopen")
		_, err := s.Do(context.Background(), r)
		require.ErrorIs(t, err, syscall.ECONNREFUSED)
		require.Equal(t, request.StateFailed, r.State())
		old := r.Done()

		ok, err := s.Retry(r)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.NotEqual(t, old, r.Done())

		e, err := waitRequest(s, r)
		require.NoError(t, err)
		assert.Equal(t, request.StateComplete, r.State())
		assert.NoError(t, e.Err)
		assert.Equal(t, 1, e.Attempt)

		ok, err = s.Enqueue(r)
		assert.False(t, ok, "only Retry reopens")
		assert.ErrorIs(t, err, request.ErrStateViolation)
	})
}

func TestScheduler_Redirects(t *testing.T) {
	for _, server := range servers {
		t.Run(serverName(server), func(t *testing.T) {
			cfg, _ := testConfig(server)
			cfg.MaxRedirects = 3
			redirects := &recorder{}
			cfg.Handlers = &HandlerGroup{}
			cfg.Handlers.PushBack(AfterRedirect, redirects)
			s := startScheduler(t, cfg)
			final := "/final?" + (&serverInstruction{StatusCode: 200, Echo: true}).query()

			t.Run("relative location", func(t *testing.T) {
				r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 302, Location: final}, server, "/start")
				e, err := s.Do(context.Background(), r)
				require.NoError(t, err)
				assert.Equal(t, 1, e.Redirects)
				assert.Equal(t, 1, e.Attempt)
				assert.Equal(t, "/final", e.URL.Path)
				got, err := decodeEcho(e.Body)
				require.NoError(t, err)
				assert.Equal(t, "GET", got.Method)
				assert.Equal(t, []string{"/final"}, redirects.get())
			})
			for _, code := range []int{302, 303} {
				t.Run("POST becomes GET on "+http.StatusText(code), func(t *testing.T) {
					r := newRequest(t, s, "POST", &serverInstruction{StatusCode: code, Location: final}, server, "/post")
					require.NoError(t, r.AddArg("a", "b"))
					e, err := s.Do(context.Background(), r)
					require.NoError(t, err)
					got, err := decodeEcho(e.Body)
					require.NoError(t, err)
					assert.Equal(t, "GET", got.Method)
					assert.Equal(t, "", got.Body)
				})
			}
			t.Run("POST kept on 301", func(t *testing.T) {
				r := newRequest(t, s, "POST", &serverInstruction{StatusCode: 301, Location: final}, server, "/post301")
				require.NoError(t, r.AddArg("a", "b"))
				e, err := s.Do(context.Background(), r)
				require.NoError(t, err)
				got, err := decodeEcho(e.Body)
				require.NoError(t, err)
				assert.Equal(t, "POST", got.Method)
				assert.Equal(t, "a=b", got.Body)
			})
			t.Run("KeepMethodOnRedirect", func(t *testing.T) {
				r := newRequest(t, s, "POST", &serverInstruction{StatusCode: 302, Location: final}, server, "/keep")
				r.KeepMethodOnRedirect = true
				require.NoError(t, r.AddArg("a", "b"))
				e, err := s.Do(context.Background(), r)
				require.NoError(t, err)
				got, err := decodeEcho(e.Body)
				require.NoError(t, err)
				assert.Equal(t, "POST", got.Method)
				assert.Equal(t, "a=b", got.Body)
			})
			t.Run("too many", func(t *testing.T) {
				r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 302, Location: "#again"}, server, "/loop")
				e, err := s.Do(context.Background(), r)
				assert.ErrorIs(t, err, ErrTooManyRedirects)
				assert.Equal(t, request.StateFailed, r.State())
				assert.Equal(t, 3, e.Redirects)
			})
			t.Run("not followed", func(t *testing.T) {
				r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 302, Location: final}, server, "/nofollow")
				r.FollowRedirects = false
				e, err := s.Do(context.Background(), r)
				assert.ErrorIs(t, err, ErrFailed)
				assert.Equal(t, 302, e.StatusCode())
				assert.Equal(t, 0, e.Redirects)
			})
			t.Run("intercepted", func(t *testing.T) {
				var location string
				r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 303, Location: final}, server, "/intercept")
				r.Hooks.OnRedirect = func(_ *request.Execution, u *url.URL) bool {
					location = u.Path
					return true
				}
				e, err := s.Do(context.Background(), r)
				require.NoError(t, err)
				assert.Equal(t, "/final", location)
				assert.Equal(t, 303, e.StatusCode())
				assert.Equal(t, 0, e.Redirects)
			})
		})
	}
}

func refused() error {
	return &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
}

// policyFunc records the timeout each attempt is given.
type policyFunc func(e *request.Execution) time.Duration

func (f policyFunc) Timeout(e *request.Execution) time.Duration {
	return f(e)
}

// flakyTransport fails the first n requests with a refused connection.
func flakyTransport(n int32, next Transport) (Transport, *atomic.Int32) {
	var calls atomic.Int32
	return transportFunc(func(req *http.Request) (*http.Response, error) {
		if calls.Add(1) <= n {
			return nil, refused()
		}
		return next.Do(req)
	}), &calls
}

func TestScheduler_SilentRetry(t *testing.T) {
	quick := &serverInstruction{StatusCode: 200}

	t.Run("within budget", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.RetryBudget = 2
		cfg.RetryPolicy = retry.NewPolicy(retry.DefaultDecider, retry.NewFixedWaiter(time.Millisecond))
		cfg.Transport, _ = flakyTransport(2, testTransport(httpServer))
		retries := &recorder{}
		cfg.Handlers = &HandlerGroup{}
		cfg.Handlers.PushBack(AfterRetry, retries)
		s := startScheduler(t, cfg)

		var hooked atomic.Int32
		r := newRequest(t, s, "GET", quick, httpServer, "/flaky")
		r.Hooks.OnIOFailure = func(*request.Execution, error) request.Action {
			hooked.Add(1)
			return request.Fail
		}
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, 2, e.Retries)
		assert.Equal(t, 2, e.Attempt)
		assert.Equal(t, int32(0), hooked.Load())
		assert.Len(t, retries.get(), 2)
	})
	t.Run("budget exhausted", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.RetryBudget = 1
		cfg.RetryPolicy = retry.NewPolicy(retry.DefaultDecider, retry.NewFixedWaiter(time.Millisecond))
		cfg.Transport, _ = flakyTransport(3, testTransport(httpServer))
		s := startScheduler(t, cfg)

		var hooked atomic.Int32
		r := newRequest(t, s, "GET", quick, httpServer, "/flaky")
		r.Hooks.OnIOFailure = func(_ *request.Execution, err error) request.Action {
			hooked.Add(1)
			return request.Fail
		}
		e, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, syscall.ECONNREFUSED)
		var urlErr *url.Error
		assert.ErrorAs(t, err, &urlErr)
		assert.Equal(t, request.StateFailed, r.State())
		assert.Equal(t, 1, e.Retries)
		assert.Equal(t, int32(1), hooked.Load())
	})
	t.Run("hook retry skips budget", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.Transport, _ = flakyTransport(1, testTransport(httpServer))
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", quick, httpServer, "/flaky")
		r.Hooks.OnIOFailure = func(*request.Execution, error) request.Action {
			return request.Retry
		}
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, 0, e.Retries)
		assert.Equal(t, 1, e.Attempt)
	})
	t.Run("transport timeout raises adaptive timeout", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.RetryBudget = 1
		cfg.RetryPolicy = retry.NewPolicy(retry.DefaultDecider, retry.NewFixedWaiter(0))
		var calls atomic.Int32
		next := testTransport(httpServer)
		cfg.Transport = transportFunc(func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				return nil, &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ETIMEDOUT)}
			}
			return next.Do(req)
		})
		adaptive := timeout.Adaptive(time.Second, 3*time.Second)
		var mu sync.Mutex
		var given []time.Duration
		cfg.TimeoutPolicy = policyFunc(func(e *request.Execution) time.Duration {
			d := adaptive.Timeout(e)
			mu.Lock()
			given = append(given, d)
			mu.Unlock()
			return d
		})
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", quick, httpServer, "/slow-link")
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, 1, e.Retries)
		assert.Equal(t, 1, e.Timeouts)
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, []time.Duration{time.Second, 3 * time.Second}, given)
	})
	t.Run("delayed retry keeps scheduler busy", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.RetryBudget = 1
		cfg.RetryPolicy = retry.NewPolicy(retry.DefaultDecider, retry.NewFixedWaiter(200*time.Millisecond))
		cfg.Transport, _ = flakyTransport(1, testTransport(httpServer))
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", quick, httpServer, "/delayed")
		enqueue(t, s, r)
		require.Eventually(t, func() bool { return r.Execution().Retries == 1 }, waitFor, tick)
		assert.False(t, s.IsIdle())
		_, err := waitRequest(s, r)
		require.NoError(t, err)
		assert.True(t, s.IsIdle())
	})
	t.Run("equal request dropped during retry delay", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.RetryBudget = 1
		cfg.RetryPolicy = retry.NewPolicy(retry.DefaultDecider, retry.NewFixedWaiter(300*time.Millisecond))
		cfg.Transport, _ = flakyTransport(1, testTransport(httpServer))
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", quick, httpServer, "/delayed")
		enqueue(t, s, r)
		require.Eventually(t, func() bool {
			s.mu.Lock()
			defer s.mu.Unlock()
			_, ok := s.delayed[r]
			return ok
		}, waitFor, tick)

		twin := newRequest(t, s, "GET", quick, httpServer, "/delayed")
		ok, err := s.Enqueue(twin)
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, request.StateNew, twin.State())

		_, err = waitRequest(s, r)
		require.NoError(t, err)
	})
	t.Run("equal request dropped during retry prompt", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		asked := make(chan struct{})
		release := make(chan struct{})
		cfg.RetryPrompt = func(*request.Execution) bool {
			close(asked)
			<-release
			return true
		}
		cfg.Transport, _ = flakyTransport(1, testTransport(httpServer))
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", quick, httpServer, "/prompted")
		enqueue(t, s, r)
		select {
		case <-asked:
		case <-time.After(waitFor):
			t.Fatal("retry prompt not shown")
		}

		twin := newRequest(t, s, "GET", quick, httpServer, "/prompted")
		ok, err := s.Enqueue(twin)
		require.NoError(t, err)
		assert.False(t, ok)

		close(release)
		_, err = waitRequest(s, r)
		require.NoError(t, err)
	})
}

func TestScheduler_ErrorStatus(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	var prompts atomic.Int32
	cfg.RetryPrompt = func(*request.Execution) bool {
		return prompts.Add(1) == 1
	}
	s := startScheduler(t, cfg)
	notFound := &serverInstruction{StatusCode: 404, Body: []bodyChunk{{Data: []byte("nope")}}}

	t.Run("default fails", func(t *testing.T) {
		r := newRequest(t, s, "GET", notFound, httpServer, "/404")
		e, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, ErrFailed)
		assert.Contains(t, err.Error(), "404")
		assert.Equal(t, request.StateFailed, r.State())
		assert.Nil(t, e.Body)
	})
	t.Run("ReadErrorBody", func(t *testing.T) {
		r := newRequest(t, s, "GET", notFound, httpServer, "/404body")
		r.ReadErrorBody = true
		e, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, ErrFailed)
		assert.Equal(t, "nope", string(e.Body))
	})
	t.Run("hook retries once", func(t *testing.T) {
		var calls int
		r := newRequest(t, s, "GET", notFound, httpServer, "/404retry")
		r.Hooks.OnError = func(*request.Execution) request.Action {
			calls++
			if calls == 1 {
				return request.Retry
			}
			return request.Fail
		}
		e, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, ErrFailed)
		assert.Equal(t, 2, calls)
		assert.Equal(t, 1, e.Attempt)
	})
	t.Run("ask prompt", func(t *testing.T) {
		r := newRequest(t, s, "GET", notFound, httpServer, "/404ask")
		r.Hooks.OnError = func(*request.Execution) request.Action {
			return request.Ask
		}
		e, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, ErrFailed)
		assert.Equal(t, int32(2), prompts.Load())
		assert.Equal(t, 1, e.Attempt)
	})
	t.Run("OnComplete runs for failures", func(t *testing.T) {
		done := make(chan request.State, 1)
		r := newRequest(t, s, "GET", notFound, httpServer, "/404complete")
		r.Hooks.OnComplete = func(e *request.Execution) {
			done <- e.Request.State()
		}
		enqueue(t, s, r)
		select {
		case st := <-done:
			assert.Equal(t, request.StateFailed, st)
		case <-time.After(waitFor):
			t.Fatal("OnComplete not called")
		}
	})
}

func TestScheduler_Fault(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	s := startScheduler(t, cfg)
	quick := &serverInstruction{StatusCode: 200}

	t.Run("default fails without prompt", func(t *testing.T) {
		r := newRequest(t, s, "GET", quick, httpServer, "/panic")
		r.RetryBudget = 5
		r.Hooks.OnResponse = func(*request.Execution, io.Reader) error {
			panic("boom")
		}
		e, err := s.Do(context.Background(), r)
		var pe *PanicError
		require.ErrorAs(t, err, &pe)
		assert.Equal(t, "boom", pe.Value)
		assert.Equal(t, "boom", e.Fault)
		assert.Equal(t, 0, e.Retries)
		assert.Equal(t, request.StateFailed, r.State())
	})
	t.Run("hook retries", func(t *testing.T) {
		var panicked atomic.Bool
		r := newRequest(t, s, "GET", quick, httpServer, "/panic-once")
		r.Hooks.OnResponse = func(*request.Execution, io.Reader) error {
			if panicked.CompareAndSwap(false, true) {
				panic("once")
			}
			return nil
		}
		r.Hooks.OnFault = func(*request.Execution, interface{}) request.Action {
			return request.Retry
		}
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, 1, e.Attempt)
		assert.Nil(t, e.Fault)
	})
	t.Run("hook error is a protocol failure", func(t *testing.T) {
		hookErr := errors.New("bad content")
		var onError atomic.Int32
		r := newRequest(t, s, "GET", quick, httpServer, "/hookerr")
		r.Hooks.OnResponse = func(*request.Execution, io.Reader) error {
			return hookErr
		}
		r.Hooks.OnError = func(*request.Execution) request.Action {
			onError.Add(1)
			return request.Fail
		}
		_, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, hookErr)
		assert.Equal(t, int32(1), onError.Load())
	})
}

func TestScheduler_Timeout(t *testing.T) {
	t.Run("watchdog", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.Timeout = 100 * time.Millisecond
		timeouts := &recorder{}
		cfg.Handlers = &HandlerGroup{}
		cfg.Handlers.PushBack(AfterTimeout, timeouts)
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 3 * time.Second}, httpServer, "/hang")
		e, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, request.StateKilled, r.State())
		assert.Equal(t, 1, e.Timeouts)
		assert.True(t, e.Timeout())
		assert.Equal(t, []string{"/hang"}, timeouts.get())
		assert.Equal(t, 0, s.Retired())
	})
	t.Run("slow but steady", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.Timeout = 150 * time.Millisecond
		s := startScheduler(t, cfg)

		chunks := []bodyChunk{
			{Pause: 60 * time.Millisecond, Data: []byte("ab")},
			{Pause: 60 * time.Millisecond, Data: []byte("cd")},
			{Pause: 60 * time.Millisecond, Data: []byte("ef")},
			{Pause: 60 * time.Millisecond, Data: []byte("gh")},
		}
		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, Body: chunks}, httpServer, "/drip")
		e, err := s.Do(context.Background(), r)
		require.NoError(t, err)
		assert.Equal(t, "abcdefgh", string(e.Body))
	})
	t.Run("per-request override", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.Timeout = -1
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 3 * time.Second}, httpServer, "/own")
		r.Timeout = 100 * time.Millisecond
		_, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, ErrTimeout)
	})
	t.Run("native", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.Timeout = 100 * time.Millisecond
		cfg.NativeTimeout = true
		s := startScheduler(t, cfg)

		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 3 * time.Second}, httpServer, "/native")
		e, err := s.Do(context.Background(), r)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, request.StateKilled, r.State())
		assert.Equal(t, 1, e.Timeouts)
	})
	t.Run("wedged worker replaced", func(t *testing.T) {
		cfg, hook := testConfig(httpServer)
		cfg.Timeout = 100 * time.Millisecond
		release := make(chan struct{})
		var calls atomic.Int32
		next := testTransport(httpServer)
		cfg.Transport = transportFunc(func(req *http.Request) (*http.Response, error) {
			if calls.Add(1) == 1 {
				<-release
			}
			return next.Do(req)
		})
		s := startScheduler(t, cfg)

		wedged := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/wedged")
		_, err := s.Do(context.Background(), wedged)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, 1, s.Retired())
		assert.Equal(t, 1, s.Workers())

		after := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/after")
		e, err := s.Do(context.Background(), after)
		require.NoError(t, err)
		assert.Equal(t, 0, e.Worker)

		close(release)
		require.Eventually(t, func() bool { return s.Retired() == 0 }, waitFor, tick)

		var replaced bool
		for _, entry := range hook.AllEntries() {
			if entry.Message == "worker wedged, replaced" {
				replaced = true
				assert.Equal(t, logrus.WarnLevel, entry.Level)
			}
		}
		assert.True(t, replaced)
	})
	t.Run("wedged worker does not hold up others", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		cfg.Workers = 2
		cfg.Timeout = 100 * time.Millisecond
		cfg.KillGrace = time.Second
		release := make(chan struct{})
		next := testTransport(httpServer)
		cfg.Transport = transportFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path == "/wedged" {
				<-release
			}
			return next.Do(req)
		})
		s := startScheduler(t, cfg)
		t.Cleanup(func() { close(release) })

		wedged := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/wedged")
		enqueue(t, s, wedged)
		stalled := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 5 * time.Second}, httpServer, "/stalled")
		stalled.Timeout = 250 * time.Millisecond
		start := time.Now()
		enqueue(t, s, stalled)

		_, err := waitRequest(s, stalled)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Less(t, time.Since(start), 800*time.Millisecond)

		_, err = waitRequest(s, wedged)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.Equal(t, 1, s.Retired())
	})
}

func TestScheduler_Kill(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	kills := &recorder{}
	cfg.Handlers = &HandlerGroup{}
	cfg.Handlers.PushBack(AfterKill, kills)
	s := startScheduler(t, cfg)

	busy := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 5 * time.Second}, httpServer, "/busy")
	enqueue(t, s, busy)
	waitBusy(t, s)

	pending := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/pending")
	enqueue(t, s, pending)
	s.Kill(pending)
	_, err := waitRequest(s, pending)
	assert.ErrorIs(t, err, ErrKilled)
	assert.Equal(t, 0, s.Pending())

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, s.KillAndWait(ctx, busy))
	assert.True(t, s.IsIdle())
	_, err = waitRequest(s, busy)
	assert.ErrorIs(t, err, ErrKilled)
	require.Eventually(t, func() bool { return len(kills.get()) == 2 }, waitFor, tick)
	assert.ElementsMatch(t, []string{"/pending", "/busy"}, kills.get())
}

func TestScheduler_Close(t *testing.T) {
	t.Run("kills everything", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		s, err := New(cfg)
		require.NoError(t, err)
		require.NoError(t, s.Start())

		busy := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 5 * time.Second}, httpServer, "/busy")
		enqueue(t, s, busy)
		waitBusy(t, s)
		pending := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/pending")
		enqueue(t, s, pending)

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, s.Close(ctx))
		assert.Equal(t, request.StateKilled, busy.State())
		assert.Equal(t, request.StateKilled, pending.State())

		late := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/late")
		ok, err := s.Enqueue(late)
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrClosed)
		assert.NoError(t, s.Close(ctx), "second close")
	})
	t.Run("before start", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		s, err := New(cfg)
		require.NoError(t, err)
		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/never")
		enqueue(t, s, r)
		assert.NoError(t, s.Close(context.Background()))
		assert.Equal(t, request.StateKilled, r.State())
		assert.ErrorIs(t, s.Start(), ErrClosed)
		assert.ErrorIs(t, s.WaitProbe(context.Background()), ErrNotStarted)
	})
}

func TestScheduler_WaitFromDispatcher(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	cfg.Workers = 2
	s := startScheduler(t, cfg)

	second := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 100 * time.Millisecond}, httpServer, "/second")
	result := make(chan error, 1)
	first := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/first")
	first.Hooks.OnComplete = func(*request.Execution) {
		if _, err := s.Enqueue(second); err != nil {
			result <- err
			return
		}
		_, err := waitRequest(s, second)
		result <- err
	}
	enqueue(t, s, first)

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("Wait on the dispatcher deadlocked")
	}
}

func TestScheduler_Affinity(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	cfg.Workers = 3
	s := startScheduler(t, cfg)
	assert.Error(t, s.SetAffinity("pinned", 3))
	require.NoError(t, s.SetAffinity("pinned", 2))

	var rs []*request.Request
	for _, path := range []string{"/p1", "/p2", "/p3", "/p4", "/p5", "/p6"} {
		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200, HeaderPause: 10 * time.Millisecond}, httpServer, path)
		r.Kind = "pinned"
		enqueue(t, s, r)
		rs = append(rs, r)
	}
	for _, r := range rs {
		e, err := waitRequest(s, r)
		require.NoError(t, err)
		assert.Equal(t, 2, e.Worker, e.URL.Path)
	}

	s.ClearAffinity("pinned")
	assert.Empty(t, s.affinity)
}

func TestScheduler_Cookies(t *testing.T) {
	cfg, _ := testConfig(httpServer)
	s := startScheduler(t, cfg)
	echo := &serverInstruction{StatusCode: 200, Echo: true}

	_, err := s.Get(context.Background(), (&serverInstruction{StatusCode: 200, SetCookie: []string{"sid=abc; Path=/"}}).url(httpServer, "/login"))
	require.NoError(t, err)

	e, err := s.Get(context.Background(), echo.url(httpServer, "/account"))
	require.NoError(t, err)
	got, err := decodeEcho(e.Body)
	require.NoError(t, err)
	assert.Equal(t, "sid=abc", got.Header.Get("Cookie"))

	r := newRequest(t, s, "GET", echo, httpServer, "/custom")
	r.Hooks.CookieHeader = func(_ *request.Execution, value string) string {
		return value + "; extra=1"
	}
	e, err = s.Do(context.Background(), r)
	require.NoError(t, err)
	got, err = decodeEcho(e.Body)
	require.NoError(t, err)
	assert.Equal(t, "sid=abc; extra=1", got.Header.Get("Cookie"))
}

// fakeSwitcher pretends the probe URL is only reachable through one
// access point.
type fakeSwitcher struct {
	mu       sync.Mutex
	aps      []accesspoint.AccessPoint
	good     string
	current  string
	switched []string
}

func (f *fakeSwitcher) AccessPoints(context.Context) ([]accesspoint.AccessPoint, error) {
	return append([]accesspoint.AccessPoint(nil), f.aps...), nil
}

func (f *fakeSwitcher) Switch(_ context.Context, ap accesspoint.AccessPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = ap.Name
	f.switched = append(f.switched, ap.Name)
	return nil
}

func (f *fakeSwitcher) reachable() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current == f.good
}

func (f *fakeSwitcher) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.switched...)
}

func TestScheduler_Probe(t *testing.T) {
	aps := []accesspoint.AccessPoint{
		{Name: "rmnet0", Kind: accesspoint.Cellular2G},
		{Name: "wlan0", Kind: accesspoint.WiFi},
		{Name: "eth0", Kind: accesspoint.Corporate},
	}
	probeConfig := func(sw *fakeSwitcher) Config {
		cfg, _ := testConfig(httpServer)
		cfg.AutoDetectAccessPoint = true
		cfg.AccessPoints = sw
		cfg.ProbeURL = httpServer.URL + "/probe"
		next := testTransport(httpServer)
		cfg.Transport = transportFunc(func(req *http.Request) (*http.Response, error) {
			if req.URL.Path == "/probe" && !sw.reachable() {
				return nil, refused()
			}
			return next.Do(req)
		})
		return cfg
	}

	t.Run("switches in rank order", func(t *testing.T) {
		sw := &fakeSwitcher{aps: aps, good: "eth0"}
		s := startScheduler(t, probeConfig(sw))

		r := newRequest(t, s, "GET", &serverInstruction{StatusCode: 200}, httpServer, "/early")
		enqueue(t, s, r)

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		require.NoError(t, s.WaitProbe(ctx))
		assert.Equal(t, []string{"wlan0", "eth0"}, sw.history())
		ap, ok := s.AccessPoint()
		require.True(t, ok)
		assert.Equal(t, "eth0", ap.Name)

		_, err := waitRequest(s, r)
		assert.NoError(t, err)
	})
	t.Run("exhausted", func(t *testing.T) {
		sw := &fakeSwitcher{aps: aps, good: "none"}
		s := startScheduler(t, probeConfig(sw))

		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		assert.ErrorIs(t, s.WaitProbe(ctx), ErrNoAccessPoint)
		assert.Equal(t, []string{"wlan0", "eth0", "rmnet0"}, sw.history())
		_, ok := s.AccessPoint()
		assert.False(t, ok)
		select {
		case <-s.Probed():
		default:
			t.Fatal("Probed not closed")
		}
	})
	t.Run("no probe", func(t *testing.T) {
		cfg, _ := testConfig(httpServer)
		s := startScheduler(t, cfg)
		assert.NoError(t, s.WaitProbe(context.Background()))
	})
}
