// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// OpenGSLB is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPLv3)
//    Free forever for open-source and internal use. You may copy, modify,
//    and distribute this software under the terms of the AGPLv3.
//    → https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Commercial licenses are available for proprietary integration,
//    closed-source appliances, SaaS offerings, and dedicated support.
//    Contact: licensing@opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package config

import (
	"errors"
	"fmt"
	"net"
)

// ValidationError describes a single configuration field that failed
// validation.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s: %s (got: %v)", e.Field, e.Message, e.Value)
}

var validPolicies = map[string]bool{
	"roundrobin":       true,
	"firstAvailable":   true,
	"leastOutstanding": true,
	"wrandom":          true,
	"whashed":          true,
	"chashed":          true,
}

// Validate checks cfg and returns errors.Join of every *ValidationError
// found, or nil if cfg is well-formed.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateDNS(&cfg.DNS)...)
	errs = append(errs, validatePools(cfg.Pools)...)
	errs = append(errs, validateZones(cfg.Zones, cfg.Pools)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateGeo(&cfg.Geo)...)

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateDNS(dns *DNSConfig) []error {
	var errs []error

	if dns.ListenAddress == "" {
		errs = append(errs, &ValidationError{Field: "dns.listen_address", Value: dns.ListenAddress, Message: "cannot be empty"})
	} else if host, _, err := net.SplitHostPort(dns.ListenAddress); err != nil {
		errs = append(errs, &ValidationError{Field: "dns.listen_address", Value: dns.ListenAddress, Message: fmt.Sprintf("invalid address: %v", err)})
	} else if host != "" && net.ParseIP(host) == nil {
		errs = append(errs, &ValidationError{Field: "dns.listen_address", Value: dns.ListenAddress, Message: "invalid IP address"})
	}

	if dns.DefaultTTL < 1 || dns.DefaultTTL > 86400 {
		errs = append(errs, &ValidationError{Field: "dns.default_ttl", Value: dns.DefaultTTL, Message: "must be between 1 and 86400 seconds"})
	}

	return errs
}

func validatePools(pools []Pool) []error {
	var errs []error

	if len(pools) == 0 {
		return []error{&ValidationError{Field: "pools", Value: nil, Message: "at least one pool must be defined"}}
	}

	seen := make(map[string]bool, len(pools))
	for i := range pools {
		p := &pools[i]
		field := fmt.Sprintf("pools[%d]", i)

		if p.Name == "" {
			errs = append(errs, &ValidationError{Field: field + ".name", Value: p.Name, Message: "cannot be empty"})
		} else if seen[p.Name] {
			errs = append(errs, &ValidationError{Field: field + ".name", Value: p.Name, Message: "duplicate pool name"})
		}
		seen[p.Name] = true

		if !validPolicies[p.Policy] {
			errs = append(errs, &ValidationError{Field: field + ".policy", Value: p.Policy, Message: "unknown policy"})
		}

		if p.WeightedBalancingFactor < 0 {
			errs = append(errs, &ValidationError{Field: field + ".weighted_balancing_factor", Value: p.WeightedBalancingFactor, Message: "cannot be negative"})
		}
		if p.ConsistentHashBalancingFactor < 0 {
			errs = append(errs, &ValidationError{Field: field + ".consistent_hash_balancing_factor", Value: p.ConsistentHashBalancingFactor, Message: "cannot be negative"})
		}
		if p.LatencyEWMAAlpha != 0 && (p.LatencyEWMAAlpha < 0.05 || p.LatencyEWMAAlpha > 0.2) {
			errs = append(errs, &ValidationError{Field: field + ".latency_ewma_alpha", Value: p.LatencyEWMAAlpha, Message: "must be between 0.05 and 0.2"})
		}

		errs = append(errs, validateBackends(field, p.Backends)...)
	}

	return errs
}

func validateBackends(poolField string, backends []Backend) []error {
	var errs []error

	if len(backends) == 0 {
		errs = append(errs, &ValidationError{Field: poolField + ".backends", Value: nil, Message: "at least one backend must be defined"})
		return errs
	}

	seen := make(map[string]bool, len(backends))
	for i := range backends {
		b := &backends[i]
		field := fmt.Sprintf("%s.backends[%d]", poolField, i)

		if b.ID == "" {
			errs = append(errs, &ValidationError{Field: field + ".id", Value: b.ID, Message: "cannot be empty"})
		} else if seen[b.ID] {
			errs = append(errs, &ValidationError{Field: field + ".id", Value: b.ID, Message: "duplicate backend id within pool"})
		}
		seen[b.ID] = true

		if net.ParseIP(b.Address) == nil {
			errs = append(errs, &ValidationError{Field: field + ".address", Value: b.Address, Message: "invalid IP address"})
		}
		if b.Port < 1 || b.Port > 65535 {
			errs = append(errs, &ValidationError{Field: field + ".port", Value: b.Port, Message: "must be between 1 and 65535"})
		}
		if b.Weight < 1 {
			errs = append(errs, &ValidationError{Field: field + ".weight", Value: b.Weight, Message: "must be at least 1"})
		}
		if b.QPSLimit < 0 {
			errs = append(errs, &ValidationError{Field: field + ".qps_limit", Value: b.QPSLimit, Message: "cannot be negative"})
		}

		switch b.HealthCheck.Type {
		case "http", "https", "tcp":
		default:
			errs = append(errs, &ValidationError{Field: field + ".health_check.type", Value: b.HealthCheck.Type, Message: "must be http, https, or tcp"})
		}
	}

	return errs
}

func validateZones(zones []Zone, pools []Pool) []error {
	var errs []error

	poolNames := make(map[string]bool, len(pools))
	for _, p := range pools {
		poolNames[p.Name] = true
	}

	if len(zones) == 0 {
		errs = append(errs, &ValidationError{Field: "zones", Value: nil, Message: "at least one zone must be defined"})
	}

	seen := make(map[string]bool, len(zones))
	for i, z := range zones {
		field := fmt.Sprintf("zones[%d]", i)

		if z.Name == "" {
			errs = append(errs, &ValidationError{Field: field + ".name", Value: z.Name, Message: "cannot be empty"})
		} else if seen[z.Name] {
			errs = append(errs, &ValidationError{Field: field + ".name", Value: z.Name, Message: "duplicate zone name"})
		}
		seen[z.Name] = true

		if !poolNames[z.Pool] {
			errs = append(errs, &ValidationError{Field: field + ".pool", Value: z.Pool, Message: "references an undefined pool"})
		}
		if z.TTL < 1 || z.TTL > 86400 {
			errs = append(errs, &ValidationError{Field: field + ".ttl", Value: z.TTL, Message: "must be between 1 and 86400 seconds"})
		}
	}

	return errs
}

func validateGeo(g *GeoConfig) []error {
	var errs []error

	if !g.Enabled {
		return errs
	}

	seen := make(map[string]bool, len(g.CIDRTags))
	for i, c := range g.CIDRTags {
		field := fmt.Sprintf("geo.cidr_tags[%d]", i)

		if _, _, err := net.ParseCIDR(c.CIDR); err != nil {
			errs = append(errs, &ValidationError{Field: field + ".cidr", Value: c.CIDR, Message: "invalid CIDR"})
		} else if seen[c.CIDR] {
			errs = append(errs, &ValidationError{Field: field + ".cidr", Value: c.CIDR, Message: "duplicate CIDR entry"})
		}
		seen[c.CIDR] = true

		if c.Tag == "" {
			errs = append(errs, &ValidationError{Field: field + ".tag", Value: c.Tag, Message: "cannot be empty"})
		}
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, &ValidationError{Field: "logging.level", Value: l.Level, Message: "must be one of debug, info, warn, error"})
	}

	switch l.Format {
	case "json", "text":
	default:
		errs = append(errs, &ValidationError{Field: "logging.format", Value: l.Format, Message: "must be json or text"})
	}

	return errs
}
