// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

// Package config loads and validates the gslbd YAML configuration file.
package config

import "time"

// Config is the top-level configuration document.
type Config struct {
	DNS          DNSConfig     `yaml:"dns"`
	Perturbation uint32        `yaml:"perturbation"`
	Pools        []Pool        `yaml:"pools"`
	Zones        []Zone        `yaml:"zones"`
	Logging      LoggingConfig `yaml:"logging"`
	Metrics      MetricsConfig `yaml:"metrics"`
	API          APIConfig     `yaml:"api"`
	Geo          GeoConfig     `yaml:"geo"`
}

// DNSConfig configures the DNS front end listener.
type DNSConfig struct {
	ListenAddress string `yaml:"listen_address"`
	DefaultTTL    int    `yaml:"default_ttl"`
}

// Pool configures one selector pool and its member backends.
type Pool struct {
	Name                          string    `yaml:"name"`
	Policy                        string    `yaml:"policy"`
	WeightedBalancingFactor       float64   `yaml:"weighted_balancing_factor"`
	ConsistentHashBalancingFactor float64   `yaml:"consistent_hash_balancing_factor"`
	// LatencyEWMAAlpha is the smoothing factor applied to each backend's
	// latency EWMA. Zero means "use the selector's default of 0.1"; when
	// set it must fall within [0.05, 0.2].
	LatencyEWMAAlpha float64   `yaml:"latency_ewma_alpha"`
	Backends         []Backend `yaml:"backends"`
}

// Backend configures one backend server within a pool.
type Backend struct {
	ID          string      `yaml:"id"`
	Address     string      `yaml:"address"`
	Port        int         `yaml:"port"`
	Weight      int32       `yaml:"weight"`
	Order       int         `yaml:"order"`
	QPSLimit    int         `yaml:"qps_limit"`
	GeoTag      string      `yaml:"geo_tag"`
	HealthCheck HealthCheck `yaml:"health_check"`
}

// HealthCheck configures the active prober for a backend. Type, Path and
// Timeout are passed to the prober; Interval is parsed and defaulted but
// not applied: every backend is probed at the health monitor's own
// interval.
type HealthCheck struct {
	Type     string        `yaml:"type"`
	Path     string        `yaml:"path"`
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Zone maps a DNS zone to the pool that answers for it.
type Zone struct {
	Name string `yaml:"name"`
	Pool string `yaml:"pool"`
	TTL  int    `yaml:"ttl"`
}

// LoggingConfig configures the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig configures the Prometheus exposition endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// APIConfig configures the admin/introspection HTTP server.
type APIConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Address         string   `yaml:"address"`
	AllowedNetworks []string `yaml:"allowed_networks"`
}

// GeoConfig configures advisory client-address-to-geo_tag resolution. It
// never influences selection; the resolved client tag only feeds the
// per-tag selection metric.
type GeoConfig struct {
	Enabled      bool              `yaml:"enabled"`
	DatabasePath string            `yaml:"database_path"`
	DefaultTag   string            `yaml:"default_tag"`
	CountryTags  map[string]string `yaml:"country_tags"`
	CIDRTags     []CIDRTag         `yaml:"cidr_tags"`
}

// CIDRTag maps one CIDR block to a geo_tag, taking priority over the
// GeoIP database lookup.
type CIDRTag struct {
	CIDR    string `yaml:"cidr"`
	Tag     string `yaml:"tag"`
	Comment string `yaml:"comment"`
}
