// Copyright 2021 The httpq Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

// Package config loads scheduler settings from a configuration file and
// HTTPQ_* environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/gogama/httpq"
	"github.com/gogama/httpq/accesspoint"
	"github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes the environment variables which override file
// settings, for example HTTPQ_WORKERS.
const EnvPrefix = "HTTPQ"

// File holds the recognized settings.
type File struct {
	Workers               int            `mapstructure:"workers"`
	Timeout               time.Duration  `mapstructure:"timeout"`
	NativeTimeout         bool           `mapstructure:"native_timeout"`
	UserAgent             string         `mapstructure:"user_agent"`
	FollowRedirects       bool           `mapstructure:"follow_redirects"`
	MaxRedirects          int            `mapstructure:"max_redirects"`
	AutoDetectAccessPoint bool           `mapstructure:"auto_detect_access_point"`
	ProbeURL              string         `mapstructure:"probe_url"`
	RetryBudget           int            `mapstructure:"retry_budget"`
	ReadErrorBody         bool           `mapstructure:"read_error_body"`
	KillGrace             time.Duration  `mapstructure:"kill_grace"`
	Affinity              map[string]int `mapstructure:"affinity"`
	LogLevel              string         `mapstructure:"log_level"`
	LogFormat             string         `mapstructure:"log_format"`
}

// Load reads the configuration file at path from fs, if path is not
// empty, and applies environment overrides. The file type is taken
// from the extension: yaml, toml and json are supported.
func Load(fs afero.Fs, path string) (*File, error) {
	v := viper.New()
	v.SetFs(fs)
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if _, err := f.Config(); err != nil {
		return nil, err
	}
	return &f, nil
}

func setDefaults(v *viper.Viper) {
	d := httpq.DefaultConfig()
	v.SetDefault("workers", d.Workers)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("native_timeout", d.NativeTimeout)
	v.SetDefault("user_agent", d.UserAgent)
	v.SetDefault("follow_redirects", d.FollowRedirects)
	v.SetDefault("max_redirects", d.MaxRedirects)
	v.SetDefault("auto_detect_access_point", d.AutoDetectAccessPoint)
	v.SetDefault("probe_url", d.ProbeURL)
	v.SetDefault("retry_budget", d.RetryBudget)
	v.SetDefault("read_error_body", d.ReadErrorBody)
	v.SetDefault("kill_grace", d.KillGrace)
	v.SetDefault("affinity", map[string]int{})
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Config converts f into a scheduler configuration and validates it.
// Fields which cannot be expressed in a file, such as the transport
// and hooks, keep their defaults. Access point detection switches
// between the host's network interfaces.
func (f *File) Config() (httpq.Config, error) {
	cfg := httpq.DefaultConfig()
	cfg.Workers = f.Workers
	cfg.Timeout = f.Timeout
	cfg.NativeTimeout = f.NativeTimeout
	cfg.UserAgent = f.UserAgent
	cfg.FollowRedirects = f.FollowRedirects
	cfg.MaxRedirects = f.MaxRedirects
	cfg.AutoDetectAccessPoint = f.AutoDetectAccessPoint
	cfg.ProbeURL = f.ProbeURL
	cfg.RetryBudget = f.RetryBudget
	cfg.ReadErrorBody = f.ReadErrorBody
	cfg.KillGrace = f.KillGrace
	cfg.Affinity = f.Affinity
	if cfg.AutoDetectAccessPoint {
		cfg.AccessPoints = &accesspoint.InterfaceSwitcher{}
	}
	return cfg, cfg.Validate()
}

// Logger returns a logger configured with f's level and format.
func (f *File) Logger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(f.LogLevel)
	if err != nil {
		return nil, err
	}
	l := logrus.New()
	l.SetLevel(level)
	switch f.LogFormat {
	case "", "text":
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("unknown log format %q", f.LogFormat)
	}
	return l, nil
}
