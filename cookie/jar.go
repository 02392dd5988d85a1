// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cookie

import (
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"

	"golang.org/x/net/publicsuffix"
)

var (
	// ErrPublicSuffix is returned when a cookie's Domain attribute
	// names a public suffix such as "com" or "co.uk".
	ErrPublicSuffix = errors.New("httpq/cookie: domain is a public suffix")

	// ErrDomainMismatch is returned when a cookie's Domain attribute
	// does not cover the host that set it.
	ErrDomainMismatch = errors.New("httpq/cookie: domain does not match host")
)

// A Jar stores cookies. A Jar is safe for concurrent use by multiple
// goroutines.
type Jar struct {
	mu      sync.Mutex
	entries map[string]entry
	seq     uint64
}

type entry struct {
	Cookie
	seq uint64
}

// NewJar returns an empty Jar.
func NewJar() *Jar {
	return &Jar{entries: make(map[string]entry)}
}

// SetFromResponse parses every Set-Cookie header in h, received in
// response to a request for u, and stores the valid cookies. It
// returns the errors of the headers it rejected.
func (j *Jar) SetFromResponse(u *url.URL, h http.Header) []error {
	var errs []error
	for _, line := range h.Values("Set-Cookie") {
		c, err := Parse(line, u)
		if err == nil {
			err = j.Set(u, c)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Set stores c as received from u. A cookie with a negative MaxAge
// deletes any stored cookie with the same name, domain and path.
func (j *Jar) Set(u *url.URL, c Cookie) error {
	host := strings.ToLower(u.Hostname())
	if c.Domain == "" {
		c.Domain = host
		c.HostOnly = true
	}
	if c.Path == "" {
		c.Path = defaultPath(u)
	}
	if !c.HostOnly {
		if ps, _ := publicsuffix.PublicSuffix(c.Domain); ps == c.Domain {
			if c.Domain != host {
				return ErrPublicSuffix
			}
			c.HostOnly = true
		}
		if !domainMatch(host, c.Domain) {
			return ErrDomainMismatch
		}
	}

	key := c.Domain + ";" + c.Path + ";" + c.Name

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.entries == nil {
		j.entries = make(map[string]entry)
	}
	if c.MaxAge < 0 {
		delete(j.entries, key)
		return nil
	}
	seq := j.seq
	if old, ok := j.entries[key]; ok {
		seq = old.seq
	} else {
		j.seq++
	}
	j.entries[key] = entry{Cookie: c, seq: seq}
	return nil
}

// Cookies returns the cookies to send with a request for u: longer
// paths first, then in the order they were first stored.
func (j *Jar) Cookies(u *url.URL) []Cookie {
	host := strings.ToLower(u.Hostname())
	https := u.Scheme == "https"
	path := u.EscapedPath()

	j.mu.Lock()
	selected := make([]entry, 0, len(j.entries))
	for _, e := range j.entries {
		if e.Secure && !https {
			continue
		}
		if e.HostOnly && host != e.Domain {
			continue
		}
		if !e.HostOnly && !domainMatch(host, e.Domain) {
			continue
		}
		if !pathMatch(path, e.Path) {
			continue
		}
		selected = append(selected, e)
	}
	j.mu.Unlock()

	sort.Slice(selected, func(a, b int) bool {
		if len(selected[a].Path) != len(selected[b].Path) {
			return len(selected[a].Path) > len(selected[b].Path)
		}
		return selected[a].seq < selected[b].seq
	})

	cookies := make([]Cookie, len(selected))
	for i := range selected {
		cookies[i] = selected[i].Cookie
	}
	return cookies
}

// Header returns the Cookie header value for a request to u: the
// matching cookies as name=value pairs joined by ";". It returns the
// empty string if no cookie matches.
func (j *Jar) Header(u *url.URL) string {
	cookies := j.Cookies(u)
	if len(cookies) == 0 {
		return ""
	}
	pairs := make([]string, len(cookies))
	for i := range cookies {
		pairs[i] = cookies[i].String()
	}
	return strings.Join(pairs, ";")
}

// Len returns the number of stored cookies.
func (j *Jar) Len() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.entries)
}
