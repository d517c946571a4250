// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package geo

import (
	"log/slog"
	"net"
)

// MatchType indicates how a Resolve result was determined.
type MatchType string

const (
	MatchCIDR    MatchType = "cidr_mapping"
	MatchGeoIP   MatchType = "geoip"
	MatchDefault MatchType = "default"
)

// Match is the result of resolving a client address to a geo_tag.
type Match struct {
	Tag       string
	MatchType MatchType
	Country   string
	Continent string
	CIDR      string
}

// Resolver labels a client IP with an advisory geo_tag, consulting custom
// CIDR mappings before falling back to a GeoIP2 country database and
// finally a configured default tag. Nothing in this package feeds the
// selection policies; the daemon uses Resolve's label only for the per-tag
// selection metric.
type Resolver struct {
	database    *Database
	cidrs       *CIDRMappings
	defaultTag  string
	countryTags map[string]string
	logger      *slog.Logger
}

// ResolverConfig configures a Resolver. Database is optional: a nil
// Database disables GeoIP fallback and Resolve only consults CIDR
// mappings and the default tag.
type ResolverConfig struct {
	Database    *Database
	CIDRs       []CIDRMapping
	CountryTags map[string]string // ISO country code -> geo_tag, e.g. "US" -> "us-east"
	DefaultTag  string
	Logger      *slog.Logger
}

// NewResolver builds a Resolver from cfg.
func NewResolver(cfg ResolverConfig) (*Resolver, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	cidrs := NewCIDRMappings(logger)
	if len(cfg.CIDRs) > 0 {
		if err := cidrs.Load(cfg.CIDRs); err != nil {
			return nil, err
		}
	}

	countryTags := make(map[string]string, len(cfg.CountryTags))
	for k, v := range cfg.CountryTags {
		countryTags[k] = v
	}

	return &Resolver{
		database:    cfg.Database,
		cidrs:       cidrs,
		defaultTag:  cfg.DefaultTag,
		countryTags: countryTags,
		logger:      logger,
	}, nil
}

// Resolve determines the geo_tag for ip. Resolution order: custom CIDR
// mapping (longest prefix), then GeoIP country lookup against
// CountryTags, then the configured default tag.
func (r *Resolver) Resolve(ip net.IP) Match {
	if result := r.cidrs.Lookup(ip); result.Found {
		return Match{Tag: result.Tag, MatchType: MatchCIDR, CIDR: result.CIDR}
	}

	if r.database != nil {
		if geoResult, err := r.database.Lookup(ip); err == nil && geoResult.Found {
			if tag, ok := r.countryTags[geoResult.Country]; ok {
				return Match{Tag: tag, MatchType: MatchGeoIP, Country: geoResult.Country, Continent: geoResult.Continent}
			}
		}
	}

	return Match{Tag: r.defaultTag, MatchType: MatchDefault}
}

// CIDRMappings returns the resolver's custom mapping table, for admin
// introspection and reload endpoints.
func (r *Resolver) CIDRMappings() *CIDRMappings { return r.cidrs }

// Close releases the underlying GeoIP database, if one was configured.
func (r *Resolver) Close() error {
	if r.database == nil {
		return nil
	}
	return r.database.Close()
}
