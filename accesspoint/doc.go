// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package accesspoint describes the network access points a scheduler
// may route its traffic through, and ranks them for the scheduler's
// start-up probe.
//
// An access point is anything the platform can switch between: a
// Wi-Fi adapter, a wired corporate network, a cellular modem. The
// Switcher interface abstracts the platform mechanism. This package
// provides one Switcher, InterfaceSwitcher, which selects among the
// host's network interfaces by binding outgoing connections to the
// chosen interface's address.
package accesspoint
