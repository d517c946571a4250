// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package policy

import "sort"

// consistentHashed picks the backend owning the ring point nearest to (and
// at or after) the query name hash, wrapping around to the smallest ring
// point in the pool if the hash falls past every backend's points. Each
// backend contributes one point per virtual node (weight-scaled), so
// higher-weight backends own proportionally more of the ring.
//
// Ring membership changes (AddBackend/RemoveBackend/SetWeight) only
// reassign the points adjacent to the change, giving consistent hashing's
// usual minimal-disruption property relative to a naive modulo hash.
type consistentHashed struct {
	cfg *Config
}

func newConsistentHashed(cfg *Config) *consistentHashed {
	return &consistentHashed{cfg: cfg}
}

func (p *consistentHashed) Select(qctx QueryContext, candidates []Candidate) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, ErrNoneAvailable
	}
	qhash := qctx.QNameHash

	factor := p.cfg.ConsistentHashBalancingFactor()
	bounded := false
	var targetLoad float64
	if factor > 0 {
		var totalWeight, sumOutstanding int64
		for _, c := range candidates {
			totalWeight += int64(c.Weight)
			sumOutstanding += c.Outstanding
		}
		if totalWeight > 0 {
			currentLoad := float64(sumOutstanding + 1)
			targetLoad = (currentLoad / float64(totalWeight)) * factor
			bounded = true
		}
	}

	eligible := func(c Candidate) bool {
		return !bounded || float64(c.Outstanding) <= targetLoad*float64(c.Weight)
	}

	selID, firstID, haveSel, haveFirst := consistentHashReduce(candidates, qhash, eligible)
	if !haveSel && !haveFirst && bounded {
		// Bounding excluded every backend with ring points; retry unbounded
		// rather than returning ErrNoneAvailable while Up backends exist.
		bounded = false
		selID, firstID, haveSel, haveFirst = consistentHashReduce(candidates, qhash, func(Candidate) bool { return true })
	}

	if haveSel {
		r := "chashed"
		if bounded {
			r = "chashed-bounded"
		}
		return Decision{ID: selID, Reason: r}, nil
	}
	if haveFirst {
		r := "chashed-wrap"
		if bounded {
			r = "chashed-wrap-bounded"
		}
		return Decision{ID: firstID, Reason: r}, nil
	}
	return Decision{}, ErrNoneAvailable
}

// consistentHashReduce finds, among candidates passing eligible, the
// backend owning the ring point nearest to (and at or after) qhash, plus
// the backend owning the smallest ring point overall for wraparound. It
// performs no allocation: each candidate's ring is a preallocated slice
// owned by the Backend, searched in place.
func consistentHashReduce(candidates []Candidate, qhash uint32, eligible func(Candidate) bool) (selID, firstID string, haveSel, haveFirst bool) {
	var selPoint, firstPoint uint32
	for _, c := range candidates {
		if len(c.RingPoints) == 0 || !eligible(c) {
			continue
		}
		// smallest point in this backend's ring that is >= qhash
		idx := sort.Search(len(c.RingPoints), func(i int) bool { return c.RingPoints[i] >= qhash })
		if idx < len(c.RingPoints) {
			point := c.RingPoints[idx]
			if !haveSel || point < selPoint {
				selPoint, selID, haveSel = point, c.ID, true
			}
		}
		// this backend's own smallest point, for wraparound fallback
		point := c.RingPoints[0]
		if !haveFirst || point < firstPoint {
			firstPoint, firstID, haveFirst = point, c.ID, true
		}
	}
	return
}
