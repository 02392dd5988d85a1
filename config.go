// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package httpq

import (
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gogama/httpq/accesspoint"
	"github.com/gogama/httpq/cookie"
	"github.com/gogama/httpq/request"
	"github.com/gogama/httpq/retry"
	"github.com/gogama/httpq/timeout"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultWorkers is the default size of the worker pool.
	DefaultWorkers = 1

	// DefaultTimeout is the default global inactivity timeout.
	DefaultTimeout = timeout.DefaultGlobal

	// DefaultUserAgent is the default User-Agent header value.
	DefaultUserAgent = "httpq/1.0"

	// DefaultMaxRedirects is the default limit on the number of
	// redirects followed by one Request.
	DefaultMaxRedirects = 10

	// DefaultKillGrace is how long the watchdog waits for a worker to
	// release a timed out Request before replacing the worker.
	DefaultKillGrace = time.Second

	// DefaultAffinityYield is how long a worker pauses after putting
	// back a Request pinned to another worker.
	DefaultAffinityYield = 10 * time.Millisecond

	// DefaultProbeURL is the default URL of the access point probe.
	DefaultProbeURL = "http://connectivitycheck.gstatic.com/generate_204"
)

// Config configures a Scheduler. Start from DefaultConfig: in the
// zero value every boolean option is off.
//
// Zero numeric values and nil fields are replaced by their defaults
// when the Scheduler is constructed.
type Config struct {
	// Workers is the size of the worker pool.
	Workers int

	// Timeout is the global inactivity timeout, which applies to every
	// Request without a positive timeout of its own. A negative value
	// disables timeouts altogether.
	Timeout time.Duration

	// TimeoutPolicy overrides how the effective timeout of an attempt
	// is computed. By default it is timeout.Global(Timeout).
	TimeoutPolicy timeout.Policy

	// NativeTimeout enforces timeouts by putting a deadline on each
	// attempt's context instead of running the watchdog. Use it when
	// the Transport reliably honors context deadlines.
	NativeTimeout bool

	// UserAgent is sent as the User-Agent of every Request which does
	// not set its own.
	UserAgent string

	// FollowRedirects, RetryBudget and ReadErrorBody seed the
	// same-named fields of Requests created by NewRequest.
	FollowRedirects bool
	RetryBudget     int
	ReadErrorBody   bool

	// MaxRedirects limits the number of redirects one Request follows.
	MaxRedirects int

	// AutoDetectAccessPoint runs the access point probe on Start.
	// Requests enqueued before the probe finishes wait for it.
	AutoDetectAccessPoint bool

	// ProbeURL is the URL fetched by the access point probe.
	ProbeURL string

	// AccessPoints lists and switches access points for the probe.
	// Required when AutoDetectAccessPoint is set. If it implements
	// accesspoint.Dialer, the default Transport dials through it.
	AccessPoints accesspoint.Switcher

	// RewriteURL, if set, may rewrite the URL of each attempt just
	// before it is sent, for example to route through the proxy an
	// access point requires.
	RewriteURL func(u *url.URL) *url.URL

	// KillGrace is how long the watchdog waits for a worker to let go
	// of a timed out Request before retiring and replacing it.
	KillGrace time.Duration

	// Affinity pins Request kinds to worker offsets. A Request whose
	// Kind is pinned only ever runs on that worker.
	Affinity map[string]int

	// AffinityYield is how long a worker pauses after putting back a
	// Request pinned to another worker.
	AffinityYield time.Duration

	// RetryPolicy decides which transport failures are retried
	// silently, and how long to wait first. The Request's retry budget
	// always caps the number of silent retries.
	RetryPolicy retry.Policy

	// RetryPrompt answers Ask actions returned by error hooks. It runs
	// on the Dispatcher, and returning true retries the Request. If
	// nil, Ask fails the Request.
	RetryPrompt func(e *request.Execution) bool

	// Transport sends the HTTP requests. By default it is an
	// http.Client which follows no redirects and keeps no cookies.
	Transport Transport

	// Dispatcher runs completion callbacks and retry prompts. By
	// default the Scheduler runs its own Loop.
	Dispatcher Dispatcher

	// Handlers allows custom handler chains to be invoked when
	// designated events occur during execution of a Request.
	Handlers *HandlerGroup

	// Jar stores cookies across Requests. By default a new, empty
	// Jar is used.
	Jar *cookie.Jar

	// Logger receives structured log output. By default the logrus
	// standard logger is used.
	Logger logrus.FieldLogger
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Workers:         DefaultWorkers,
		Timeout:         DefaultTimeout,
		UserAgent:       DefaultUserAgent,
		FollowRedirects: true,
		MaxRedirects:    DefaultMaxRedirects,
		ProbeURL:        DefaultProbeURL,
		KillGrace:       DefaultKillGrace,
		AffinityYield:   DefaultAffinityYield,
	}
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("httpq: negative worker count %d", c.Workers)
	}
	if c.MaxRedirects < 0 {
		return fmt.Errorf("httpq: negative redirect limit %d", c.MaxRedirects)
	}
	if c.RetryBudget < 0 {
		return fmt.Errorf("httpq: negative retry budget %d", c.RetryBudget)
	}
	workers := c.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	for kind, offset := range c.Affinity {
		if offset < 0 || offset >= workers {
			return fmt.Errorf("httpq: affinity of kind %q to worker %d is out of range", kind, offset)
		}
	}
	if c.AutoDetectAccessPoint {
		if c.AccessPoints == nil {
			return errors.New("httpq: access point detection needs an access point switcher")
		}
		if _, err := request.New("GET", c.probeURL()); err != nil {
			return fmt.Errorf("httpq: bad probe URL: %w", err)
		}
	}
	return nil
}

func (c *Config) probeURL() string {
	if c.ProbeURL == "" {
		return DefaultProbeURL
	}
	return c.ProbeURL
}

// withDefaults returns a copy of c with zero values replaced.
func (c Config) withDefaults() Config {
	if c.Workers == 0 {
		c.Workers = DefaultWorkers
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.TimeoutPolicy == nil {
		if c.Timeout > 0 {
			c.TimeoutPolicy = timeout.Global(c.Timeout)
		} else {
			c.TimeoutPolicy = timeout.Global(0)
		}
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.MaxRedirects == 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
	c.ProbeURL = c.probeURL()
	if c.KillGrace <= 0 {
		c.KillGrace = DefaultKillGrace
	}
	if c.AffinityYield <= 0 {
		c.AffinityYield = DefaultAffinityYield
	}
	if c.RetryPolicy == nil {
		c.RetryPolicy = retry.DefaultPolicy
	}
	if c.Transport == nil {
		c.Transport = NewTransport(c.AccessPoints)
	}
	if c.Handlers == nil {
		c.Handlers = &emptyHandlers
	}
	if c.Jar == nil {
		c.Jar = cookie.NewJar()
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}
	affinity := make(map[string]int, len(c.Affinity))
	for k, v := range c.Affinity {
		affinity[k] = v
	}
	c.Affinity = affinity
	return c
}
