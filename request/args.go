// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package request

import (
	"net/url"
	"sort"
	"strings"
)

// An Arg is a single request argument.
type Arg struct {
	Key   string
	Value string
}

// Args is an ordered list of request arguments. Unlike url.Values,
// Args keeps insertion order on the wire. Request equality ignores the
// order of different keys, but not of the values of one key.
//
// For a GET-like request the arguments are appended to the URL query;
// for a POST request they form an application/x-www-form-urlencoded
// body.
type Args []Arg

// Add appends a key/value pair.
func (a *Args) Add(key, value string) {
	*a = append(*a, Arg{Key: key, Value: value})
}

// Get returns the first value associated with key, or the empty
// string.
func (a Args) Get(key string) string {
	for _, arg := range a {
		if arg.Key == key {
			return arg.Value
		}
	}
	return ""
}

// Encode encodes the arguments in order as "k1=v1&k2=v2".
func (a Args) Encode() string {
	if len(a) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, arg := range a {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(arg.Key))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(arg.Value))
	}
	return sb.String()
}

// canonical encodes the arguments sorted by key, keeping the relative
// order of repeated keys.
func (a Args) canonical() string {
	c := make(Args, len(a))
	copy(c, a)
	sort.SliceStable(c, func(i, j int) bool { return c[i].Key < c[j].Key })
	return c.Encode()
}

// ArgsFromValues converts url.Values into Args, sorting by key so the
// result is deterministic.
func ArgsFromValues(v url.Values) Args {
	if len(v) == 0 {
		return nil
	}
	var a Args
	for _, k := range sortedKeys(v) {
		for _, x := range v[k] {
			a.Add(k, x)
		}
	}
	return a
}

func sortedKeys(v url.Values) []string {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
