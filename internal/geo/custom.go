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

package geo

import (
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"

	"github.com/yl2chen/cidranger"
)

// CIDRMapping binds a CIDR block directly to a geo_tag, taking priority
// over GeoIP country lookup.
type CIDRMapping struct {
	CIDR    string
	Tag     string
	Comment string
}

type tagEntry struct {
	network net.IPNet
	tag     string
	comment string
}

func (e tagEntry) Network() net.IPNet { return e.network }

// CIDRMappings is a radix-tree backed longest-prefix-match table of
// CIDR-to-geo_tag mappings.
type CIDRMappings struct {
	mu       sync.RWMutex
	ranger   cidranger.Ranger
	mappings map[string]*CIDRMapping
	logger   *slog.Logger
}

// NewCIDRMappings creates an empty mapping table.
func NewCIDRMappings(logger *slog.Logger) *CIDRMappings {
	if logger == nil {
		logger = slog.Default()
	}
	return &CIDRMappings{
		ranger:   cidranger.NewPCTrieRanger(),
		mappings: make(map[string]*CIDRMapping),
		logger:   logger,
	}
}

// Load replaces the table wholesale with mappings, validating every CIDR
// before committing so a bad entry never leaves the table half built.
func (c *CIDRMappings) Load(mappings []CIDRMapping) error {
	newRanger := cidranger.NewPCTrieRanger()
	newMappings := make(map[string]*CIDRMapping, len(mappings))

	for _, m := range mappings {
		_, network, err := net.ParseCIDR(m.CIDR)
		if err != nil {
			return fmt.Errorf("invalid CIDR %q: %w", m.CIDR, err)
		}
		entry := tagEntry{network: *network, tag: m.Tag, comment: m.Comment}
		if err := newRanger.Insert(entry); err != nil {
			return fmt.Errorf("insert CIDR %q: %w", m.CIDR, err)
		}
		newMappings[m.CIDR] = &CIDRMapping{CIDR: m.CIDR, Tag: m.Tag, Comment: m.Comment}
	}

	c.mu.Lock()
	c.ranger = newRanger
	c.mappings = newMappings
	c.mu.Unlock()

	c.logger.Info("custom geo CIDR mappings loaded", "count", len(mappings))
	return nil
}

// CIDRLookupResult is the outcome of a CIDRMappings lookup.
type CIDRLookupResult struct {
	Tag     string
	CIDR    string
	Comment string
	Found   bool
}

// Lookup finds the most specific (longest prefix) mapping containing ip.
func (c *CIDRMappings) Lookup(ip net.IP) *CIDRLookupResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entries, err := c.ranger.ContainingNetworks(ip)
	if err != nil || len(entries) == 0 {
		return &CIDRLookupResult{Found: false}
	}

	mostSpecific, ok := entries[len(entries)-1].(tagEntry)
	if !ok {
		return &CIDRLookupResult{Found: false}
	}

	return &CIDRLookupResult{
		Tag:     mostSpecific.tag,
		CIDR:    mostSpecific.network.String(),
		Comment: mostSpecific.comment,
		Found:   true,
	}
}

// List returns every mapping, sorted by CIDR for stable admin output.
func (c *CIDRMappings) List() []*CIDRMapping {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*CIDRMapping, 0, len(c.mappings))
	for _, m := range c.mappings {
		out = append(out, &CIDRMapping{CIDR: m.CIDR, Tag: m.Tag, Comment: m.Comment})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CIDR < out[j].CIDR })
	return out
}

// Count returns the number of mappings currently loaded.
func (c *CIDRMappings) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.mappings)
}
