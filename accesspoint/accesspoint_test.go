// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package accesspoint

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	assert.Equal(t, "WiFi", WiFi.String())
	assert.Equal(t, "2G", Cellular2G.String())
	assert.Equal(t, "Kind(?)", Kind(99).String())
	assert.Less(t, WiFi.Rank(), Corporate.Rank())
	assert.Equal(t, Corporate.Rank(), Cellular3G.Rank())
	assert.Less(t, Cellular3G.Rank(), Cellular2G.Rank())
	assert.Less(t, Cellular2G.Rank(), Unknown.Rank())
}

func TestClassify(t *testing.T) {
	testCases := map[string]Kind{
		"wlan0":   WiFi,
		"wlp3s0":  WiFi,
		"eth0":    Corporate,
		"enp0s31": Corporate,
		"en0":     Corporate,
		"rmnet0":  Cellular3G,
		"ppp0":    Cellular3G,
		"gprs0":   Cellular2G,
		"EDGE1":   Cellular2G,
		"docker0": Unknown,
	}
	for name, kind := range testCases {
		assert.Equal(t, kind, Classify(name), name)
	}
}

func TestSort(t *testing.T) {
	aps := []AccessPoint{
		{Name: "a", Kind: Cellular2G},
		{Name: "b", Kind: Corporate},
		{Name: "c", Kind: Unknown},
		{Name: "d", Kind: WiFi},
		{Name: "e", Kind: Cellular3G},
	}
	Sort(aps)
	names := make([]string, len(aps))
	for i := range aps {
		names[i] = aps[i].Name
	}
	assert.Equal(t, []string{"d", "b", "e", "a", "c"}, names)
}

func TestInterfaceSwitcher(t *testing.T) {
	s := &InterfaceSwitcher{
		Interfaces: func() ([]net.Interface, error) {
			return []net.Interface{
				{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
				{Index: 2, Name: "eth0", Flags: net.FlagUp},
				{Index: 3, Name: "wlan0", Flags: net.FlagUp},
				{Index: 4, Name: "wlan1"},
				{Index: 5, Name: "ppp0", Flags: net.FlagUp},
			}, nil
		},
		Addrs: func(ifi net.Interface) ([]net.Addr, error) {
			switch ifi.Name {
			case "eth0":
				return []net.Addr{&net.IPNet{IP: net.ParseIP("fe80::1")}, &net.IPNet{IP: net.ParseIP("10.0.0.2")}}, nil
			case "wlan0":
				return []net.Addr{&net.IPAddr{IP: net.ParseIP("192.168.1.5")}}, nil
			case "ppp0":
				return nil, errors.New("no addresses")
			default:
				return []net.Addr{&net.IPNet{IP: net.ParseIP("127.0.0.1")}}, nil
			}
		},
	}

	aps, err := s.AccessPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, aps, 2)
	assert.Equal(t, "wlan0", aps[0].Name)
	assert.Equal(t, WiFi, aps[0].Kind)
	assert.Equal(t, "192.168.1.5", aps[0].Addr.String())
	assert.Equal(t, "eth0", aps[1].Name)
	assert.Equal(t, "10.0.0.2", aps[1].Addr.String())

	_, ok := s.Active()
	assert.False(t, ok)
	assert.Equal(t, ErrUnknown, s.Switch(context.Background(), AccessPoint{Name: "nowhere"}))
	require.NoError(t, s.Switch(context.Background(), aps[1]))
	active, ok := s.Active()
	assert.True(t, ok)
	assert.Equal(t, "eth0", active.Name)

	s.Interfaces = func() ([]net.Interface, error) { return nil, errors.New("boom") }
	_, err = s.AccessPoints(context.Background())
	assert.EqualError(t, err, "boom")
}

func TestInterfaceSwitcher_DialContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.RemoteAddr))
	}))
	defer server.Close()

	var s InterfaceSwitcher
	require.NoError(t, s.Switch(context.Background(), AccessPoint{Name: "lo", Addr: net.ParseIP("127.0.0.1")}))
	conn, err := s.DialContext(context.Background(), "tcp", server.Listener.Addr().String())
	require.NoError(t, err)
	defer func() {
		_ = conn.Close()
	}()
	local, ok := conn.LocalAddr().(*net.TCPAddr)
	require.True(t, ok)
	assert.Equal(t, "127.0.0.1", local.IP.String())
}
