// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package accesspoint

import (
	"context"
	"net"
	"sync"
	"time"
)

// InterfaceSwitcher is a Switcher over the host's network interfaces.
// Switching binds subsequent connections made through DialContext to
// the chosen interface's address.
//
// The zero value is ready to use and dials without binding until
// Switch is called.
type InterfaceSwitcher struct {
	// Interfaces lists the host's interfaces. If nil, net.Interfaces
	// is used.
	Interfaces func() ([]net.Interface, error)

	// Addrs lists an interface's addresses. If nil, the interface's
	// own Addrs method is used.
	Addrs func(ifi net.Interface) ([]net.Addr, error)

	// Timeout bounds each dial. Zero means 30 seconds.
	Timeout time.Duration

	mu     sync.RWMutex
	active *AccessPoint
}

var (
	_ Switcher = (*InterfaceSwitcher)(nil)
	_ Dialer   = (*InterfaceSwitcher)(nil)
)

// AccessPoints returns one AccessPoint per interface which is up, is
// not a loopback interface and has an IPv4 address, ranked by Sort.
func (s *InterfaceSwitcher) AccessPoints(_ context.Context) ([]AccessPoint, error) {
	list := s.Interfaces
	if list == nil {
		list = net.Interfaces
	}
	ifs, err := list()
	if err != nil {
		return nil, err
	}

	var aps []AccessPoint
	for _, ifi := range ifs {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		ip := s.ipv4(ifi)
		if ip == nil {
			continue
		}
		aps = append(aps, AccessPoint{
			Name: ifi.Name,
			Kind: Classify(ifi.Name),
			Addr: ip,
		})
	}
	Sort(aps)
	return aps, nil
}

// Switch makes ap the active access point. The access point must have
// an address.
func (s *InterfaceSwitcher) Switch(_ context.Context, ap AccessPoint) error {
	if ap.Addr == nil {
		return ErrUnknown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = &ap
	return nil
}

// Active returns the active access point, if any.
func (s *InterfaceSwitcher) Active() (AccessPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == nil {
		return AccessPoint{}, false
	}
	return *s.active, true
}

// DialContext dials addr from the active access point's address.
func (s *InterfaceSwitcher) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d := net.Dialer{Timeout: s.Timeout}
	if d.Timeout == 0 {
		d.Timeout = 30 * time.Second
	}
	if ap, ok := s.Active(); ok {
		d.LocalAddr = &net.TCPAddr{IP: ap.Addr}
	}
	return d.DialContext(ctx, network, addr)
}

func (s *InterfaceSwitcher) ipv4(ifi net.Interface) net.IP {
	addrs := s.Addrs
	if addrs == nil {
		addrs = func(ifi net.Interface) ([]net.Addr, error) {
			return ifi.Addrs()
		}
	}
	as, err := addrs(ifi)
	if err != nil {
		return nil
	}
	for _, a := range as {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip4 := ip.To4(); ip4 != nil {
			return ip4
		}
	}
	return nil
}
