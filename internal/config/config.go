// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Default configuration values, applied by applyDefaults after parsing.
const (
	DefaultListenAddress = ":53"
	DefaultTTL           = 60

	DefaultServerWeight = 1

	DefaultHealthCheckType = "http"
	DefaultHealthPath      = "/healthz"
	DefaultHealthInterval  = 10 * time.Second
	DefaultHealthTimeout   = 3 * time.Second

	DefaultPolicy = "leastOutstanding"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsAddress = "127.0.0.1:9153"
	DefaultAPIAddress     = "127.0.0.1:8080"
)

// DefaultAPIAllowedNetworks lists the networks allowed to reach the admin
// API when none are configured explicitly.
var DefaultAPIAllowedNetworks = []string{"127.0.0.1/32", "::1/128"}

// Load reads and parses the configuration file at path.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes and applies defaults. It does
// not validate; call Validate separately so callers can decide whether a
// reload with invalid content should be rejected or merely logged.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DNS.ListenAddress == "" {
		cfg.DNS.ListenAddress = DefaultListenAddress
	}
	if cfg.DNS.DefaultTTL == 0 {
		cfg.DNS.DefaultTTL = DefaultTTL
	}

	for i := range cfg.Pools {
		applyPoolDefaults(&cfg.Pools[i])
	}

	for i := range cfg.Zones {
		if cfg.Zones[i].TTL == 0 {
			cfg.Zones[i].TTL = cfg.DNS.DefaultTTL
		}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Address == "" {
		cfg.Metrics.Address = DefaultMetricsAddress
	}

	if cfg.API.Enabled {
		if cfg.API.Address == "" {
			cfg.API.Address = DefaultAPIAddress
		}
		if len(cfg.API.AllowedNetworks) == 0 {
			cfg.API.AllowedNetworks = DefaultAPIAllowedNetworks
		}
	}
}

func applyPoolDefaults(p *Pool) {
	if p.Policy == "" {
		p.Policy = DefaultPolicy
	}
	for i := range p.Backends {
		applyBackendDefaults(&p.Backends[i])
	}
}

func applyBackendDefaults(b *Backend) {
	if b.Weight == 0 {
		b.Weight = DefaultServerWeight
	}
	hc := &b.HealthCheck
	if hc.Type == "" {
		hc.Type = DefaultHealthCheckType
	}
	if hc.Path == "" && (hc.Type == "http" || hc.Type == "https") {
		hc.Path = DefaultHealthPath
	}
	if hc.Interval == 0 {
		hc.Interval = DefaultHealthInterval
	}
	if hc.Timeout == 0 {
		hc.Timeout = DefaultHealthTimeout
	}
}
