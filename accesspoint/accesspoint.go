// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package accesspoint

import (
	"context"
	"errors"
	"net"
	"sort"
	"strings"
)

// ErrUnknown is returned by a Switcher asked to switch to an access
// point it does not know.
var ErrUnknown = errors.New("httpq/accesspoint: unknown access point")

// A Kind is the class of an access point.
type Kind int

const (
	// Unknown is an access point which could not be classified. It is
	// ranked last.
	Unknown Kind = iota
	// WiFi is a wireless LAN.
	WiFi
	// Corporate is a wired or managed network.
	Corporate
	// Cellular3G is a fast cellular data connection.
	Cellular3G
	// Cellular2G is a slow cellular data connection.
	Cellular2G
)

var kindNames = []string{"Unknown", "WiFi", "Corporate", "3G", "2G"}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "Kind(?)"
	}
	return kindNames[k]
}

// Rank returns the probing rank of k. Lower ranks are probed first:
// Wi-Fi, then corporate and 3G, then 2G, then unknown.
func (k Kind) Rank() int {
	switch k {
	case WiFi:
		return 0
	case Corporate, Cellular3G:
		return 1
	case Cellular2G:
		return 2
	default:
		return 3
	}
}

// An AccessPoint is one network connection profile.
type AccessPoint struct {
	// Name identifies the access point to its Switcher.
	Name string
	// Kind is the class of the access point.
	Kind Kind
	// Addr is the local address outgoing connections bind to when the
	// access point is active. It may be nil.
	Addr net.IP
}

func (ap AccessPoint) String() string {
	return ap.Name + " (" + ap.Kind.String() + ")"
}

// A Switcher lists and activates access points.
//
// Implementations must be safe for concurrent use by multiple
// goroutines.
type Switcher interface {
	// AccessPoints returns the candidate access points.
	AccessPoints(ctx context.Context) ([]AccessPoint, error)
	// Switch makes ap the active access point.
	Switch(ctx context.Context, ap AccessPoint) error
}

// A Dialer is implemented by Switchers which route connections
// themselves. The scheduler's default transport dials through it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Sort orders aps by Kind rank, keeping the existing order among
// access points of equal rank.
func Sort(aps []AccessPoint) {
	sort.SliceStable(aps, func(i, j int) bool {
		return aps[i].Kind.Rank() < aps[j].Kind.Rank()
	})
}

var classPrefixes = []struct {
	prefix string
	kind   Kind
}{
	{"wlan", WiFi},
	{"wlp", WiFi},
	{"wifi", WiFi},
	{"wl", WiFi},
	{"ath", WiFi},
	{"gprs", Cellular2G},
	{"edge", Cellular2G},
	{"wwan", Cellular3G},
	{"rmnet", Cellular3G},
	{"ccmni", Cellular3G},
	{"ppp", Cellular3G},
	{"eth", Corporate},
	{"enp", Corporate},
	{"eno", Corporate},
	{"ens", Corporate},
	{"en", Corporate},
}

// Classify guesses the Kind of a network interface from its name.
func Classify(name string) Kind {
	n := strings.ToLower(name)
	for _, c := range classPrefixes {
		if strings.HasPrefix(n, c.prefix) {
			return c.kind
		}
	}
	return Unknown
}
