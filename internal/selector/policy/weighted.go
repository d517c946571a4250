// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package policy

import (
	"crypto/rand"
	"encoding/binary"
)

// weightedRandom draws a candidate with probability proportional to
// weight, using a fresh random draw per query.
type weightedRandom struct {
	cfg *Config
}

func newWeightedRandom(cfg *Config) *weightedRandom {
	return &weightedRandom{cfg: cfg}
}

func (p *weightedRandom) Select(_ QueryContext, candidates []Candidate) (Decision, error) {
	seed, err := randomUint32()
	if err != nil {
		return Decision{}, err
	}
	return weightedWalk(candidates, seed, p.cfg.WeightedBalancingFactor(), "wrandom")
}

// weightedHashed draws a candidate deterministically from the query name
// hash, so repeated queries for the same name land on the same candidate
// as long as the pool membership and weights are unchanged.
type weightedHashed struct {
	cfg *Config
}

func newWeightedHashed(cfg *Config) *weightedHashed {
	return &weightedHashed{cfg: cfg}
}

func (p *weightedHashed) Select(qctx QueryContext, candidates []Candidate) (Decision, error) {
	return weightedWalk(candidates, qctx.QNameHash, p.cfg.WeightedBalancingFactor(), "whashed")
}

// weightedWalk implements the cumulative-weight walk shared by wrandom and
// whashed over the pool's cached Up-candidate slice. When factor > 0 it
// applies a Bounded-Load cap: a candidate is excluded from the draw if its
// outstanding count exceeds (currentLoad/totalWeight)*factor times its own
// weight, where currentLoad is 1 (the query being handled) plus the summed
// outstanding count of every candidate. If the cap would exclude every
// candidate, it is dropped for this draw so the pool never returns
// ErrNoneAvailable purely because every backend is momentarily over its
// target load. The walk never allocates: eligibility under the cap is
// recomputed per pass instead of copied into a filtered slice.
func weightedWalk(candidates []Candidate, seed uint32, factor float64, reason string) (Decision, error) {
	if len(candidates) == 0 {
		return Decision{}, ErrNoneAvailable
	}

	var totalWeight, sumOutstanding int64
	for _, c := range candidates {
		totalWeight += int64(c.Weight)
		sumOutstanding += c.Outstanding
	}
	if totalWeight <= 0 {
		return Decision{}, ErrNoneAvailable
	}

	var targetLoad float64
	if factor > 0 {
		currentLoad := float64(sumOutstanding + 1)
		targetLoad = (currentLoad / float64(totalWeight)) * factor
	}

	var poolWeight int64
	eligibleCount := 0
	if factor > 0 {
		for _, c := range candidates {
			if float64(c.Outstanding) <= targetLoad*float64(c.Weight) {
				poolWeight += int64(c.Weight)
				eligibleCount++
			}
		}
	}
	bounded := poolWeight > 0
	if !bounded {
		poolWeight = totalWeight
		eligibleCount = len(candidates)
	}

	draw := int64(seed) % poolWeight

	var cumulative int64
	for _, c := range candidates {
		if bounded && float64(c.Outstanding) > targetLoad*float64(c.Weight) {
			continue
		}
		cumulative += int64(c.Weight)
		if draw < cumulative {
			r := reason
			if bounded && eligibleCount != len(candidates) {
				r = reason + "-bounded"
			}
			return Decision{ID: c.ID, Reason: r}, nil
		}
	}

	// Unreachable unless floating point rounding left a gap; fall back to
	// the last eligible candidate in the walk rather than erroring.
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		if !bounded || float64(c.Outstanding) <= targetLoad*float64(c.Weight) {
			return Decision{ID: c.ID, Reason: reason}, nil
		}
	}
	return Decision{}, ErrNoneAvailable
}

func randomUint32() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}
