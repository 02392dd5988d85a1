// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/gogama/httpq"
	"github.com/gogama/httpq/accesspoint"
	"github.com/urfave/cli"
)

func probe(ctx *cli.Context) error {
	cfg, _, err := settings(ctx)
	if err != nil {
		return err
	}
	sw := &accesspoint.InterfaceSwitcher{}
	cfg.AutoDetectAccessPoint = true
	cfg.AccessPoints = sw
	if probeURL != "" {
		cfg.ProbeURL = probeURL
	}

	bg, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	aps, err := sw.AccessPoints(bg)
	if err != nil {
		return err
	}
	for _, ap := range aps {
		fmt.Printf("candidate  %-12s %-8s %s\n", ap.Name, ap.Kind, ap.Addr)
	}

	s, err := httpq.New(cfg)
	if err != nil {
		return err
	}
	if err = s.Start(); err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Close(closeCtx)
	}()

	if err = s.WaitProbe(bg); err != nil {
		return err
	}
	if ap, ok := s.AccessPoint(); ok {
		fmt.Printf("connected  %s\n", ap)
	} else {
		fmt.Println("connected  (default route)")
	}
	return nil
}
