// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package cookie

import (
	"errors"
	"net/url"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a Set-Cookie header has no name=value
// pair.
var ErrMalformed = errors.New("httpq/cookie: malformed Set-Cookie header")

// A Cookie is a name/value pair received in a Set-Cookie header,
// together with the attributes controlling where it is sent.
type Cookie struct {
	Name  string
	Value string

	// Domain is the lower-case domain the cookie applies to, without a
	// leading dot. If HostOnly is true, it only applies to exactly that
	// host; otherwise it also applies to subdomains.
	Domain   string
	HostOnly bool

	// Path is the path prefix the cookie applies to.
	Path string

	// Secure cookies are only sent over https.
	Secure bool

	// HTTPOnly is recorded but has no effect on sending.
	HTTPOnly bool

	// MaxAge follows the net/http convention: zero means no Max-Age
	// attribute was given, and a negative value means the header asked
	// for the cookie to be deleted.
	MaxAge int
}

// String returns the cookie in the name=value form used in a Cookie
// request header.
func (c Cookie) String() string {
	return c.Name + "=" + c.Value
}

// Parse parses the value of one Set-Cookie header received in response
// to a request for from. Attribute names are matched without regard to
// case. Missing Domain and Path attributes default to the host of from
// and the directory of its path.
func Parse(header string, from *url.URL) (Cookie, error) {
	parts := strings.Split(header, ";")
	name, value, ok := strings.Cut(parts[0], "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return Cookie{}, ErrMalformed
	}

	c := Cookie{
		Name:  name,
		Value: trimQuotes(strings.TrimSpace(value)),
	}

	for _, attr := range parts[1:] {
		k, v, _ := strings.Cut(attr, "=")
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		switch k {
		case "domain":
			c.Domain = strings.ToLower(strings.TrimPrefix(v, "."))
		case "path":
			if strings.HasPrefix(v, "/") {
				c.Path = v
			}
		case "secure":
			c.Secure = true
		case "httponly":
			c.HTTPOnly = true
		case "max-age":
			secs, err := strconv.Atoi(v)
			if err != nil {
				continue
			}
			if secs <= 0 {
				c.MaxAge = -1
			} else {
				c.MaxAge = secs
			}
		}
	}

	if c.Domain == "" && from != nil {
		c.Domain = strings.ToLower(from.Hostname())
		c.HostOnly = true
	}
	if c.Path == "" {
		c.Path = defaultPath(from)
	}

	return c, nil
}

// defaultPath returns the directory of the request path, per RFC 6265
// section 5.1.4.
func defaultPath(from *url.URL) string {
	if from == nil {
		return "/"
	}
	p := from.EscapedPath()
	if p == "" || p[0] != '/' {
		return "/"
	}
	i := strings.LastIndex(p, "/")
	if i == 0 {
		return "/"
	}
	return p[:i]
}

func trimQuotes(s string) string {
	if len(s) > 1 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// domainMatch reports whether host falls within domain.
func domainMatch(host, domain string) bool {
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain) && !isIP(host)
}

// pathMatch implements RFC 6265 section 5.1.4 path matching.
func pathMatch(reqPath, cookiePath string) bool {
	if reqPath == "" {
		reqPath = "/"
	}
	if reqPath == cookiePath {
		return true
	}
	if !strings.HasPrefix(reqPath, cookiePath) {
		return false
	}
	return strings.HasSuffix(cookiePath, "/") || reqPath[len(cookiePath)] == '/'
}

func isIP(host string) bool {
	return strings.Trim(host, "0123456789.") == "" || strings.Contains(host, ":")
}
