// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gogama/httpq"
	"github.com/gogama/httpq/internal/config"
	"github.com/gogama/httpq/request"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/urfave/cli"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	workers    int
	timeoutVal time.Duration

	outputDir   string
	priority    string
	metricsAddr string
	quiet       bool

	probeURL string
)

var globalFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "config, c",
		Usage:       "read settings from `FILE` (yaml, toml or json)",
		EnvVar:      "HTTPQ_CONFIG",
		Destination: &configPath,
	},
	cli.StringFlag{
		Name:        "log-level",
		Usage:       "log level: panic, fatal, error, warn, info, debug or trace",
		Destination: &logLevel,
	},
	cli.StringFlag{
		Name:        "log-format",
		Usage:       "log format: text or json",
		Destination: &logFormat,
	},
	cli.IntFlag{
		Name:        "workers, w",
		Usage:       "size of the worker pool",
		Destination: &workers,
	},
	cli.DurationFlag{
		Name:        "timeout, t",
		Usage:       "global inactivity timeout, negative to disable",
		Destination: &timeoutVal,
	},
}

var fetchFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "output-dir, o",
		Usage:       "write downloads into `DIR`",
		Value:       ".",
		Destination: &outputDir,
	},
	cli.StringFlag{
		Name:        "priority, p",
		Usage:       "priority of the requests: redundant, low, normal, high, critical or 0-255",
		Value:       "normal",
		Destination: &priority,
	},
	cli.StringFlag{
		Name:        "metrics-addr",
		Usage:       "serve Prometheus metrics on `ADDR` while fetching",
		Destination: &metricsAddr,
	},
	cli.BoolFlag{
		Name:        "quiet, q",
		Usage:       "hide progress bars",
		Destination: &quiet,
	},
}

var probeFlags = []cli.Flag{
	cli.StringFlag{
		Name:        "url, u",
		Usage:       "probe `URL`",
		Destination: &probeURL,
	},
}

// settings loads the configuration file and applies the global flags
// on top of it.
func settings(ctx *cli.Context) (httpq.Config, *logrus.Logger, error) {
	f, err := config.Load(afero.NewOsFs(), configPath)
	if err != nil {
		return httpq.Config{}, nil, err
	}
	if ctx.GlobalIsSet("log-level") {
		f.LogLevel = logLevel
	}
	if ctx.GlobalIsSet("log-format") {
		f.LogFormat = logFormat
	}
	if ctx.GlobalIsSet("workers") {
		f.Workers = workers
	}
	if ctx.GlobalIsSet("timeout") {
		f.Timeout = timeoutVal
	}
	cfg, err := f.Config()
	if err != nil {
		return httpq.Config{}, nil, err
	}
	logger, err := f.Logger()
	if err != nil {
		return httpq.Config{}, nil, err
	}
	cfg.Logger = logger
	return cfg, logger, nil
}

var priorities = map[string]request.Priority{
	"redundant": request.Redundant,
	"low":       request.Low,
	"normal":    request.Normal,
	"high":      request.High,
	"critical":  request.Critical,
}

func parsePriority(s string) (request.Priority, error) {
	if p, ok := priorities[strings.ToLower(s)]; ok {
		return p, nil
	}
	n, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("unknown priority %q", s)
	}
	return request.Priority(n), nil
}
