// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

// Package policy implements the six backend-selection algorithms:
// roundrobin, firstAvailable, leastOutstanding, wrandom, whashed, and
// chashed. Each policy is a pure function of a QueryContext and a slice of
// Candidate values; none of them touch selector internals directly, which
// keeps them independently testable against hand-built candidate sets.
package policy

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// ErrNoneAvailable is returned by a policy when no candidate is eligible
// for selection (no Up backend, or an empty candidate set).
var ErrNoneAvailable = errors.New("policy: no candidate available")

// ErrUnknownPolicy is returned by New for an unrecognized policy id.
var ErrUnknownPolicy = errors.New("policy: unknown policy id")

// QueryContext carries the per-query hash inputs a policy may consult.
type QueryContext struct {
	QNameHash  uint32
	ClientHash uint32
}

// Candidate is a read-only view of one backend's state at selection time.
// The pool hands Select an Up-only, order-sorted slice of these, so a
// policy never needs to filter or sort candidates itself.
type Candidate struct {
	ID          string
	Order       int
	Weight      int32
	Up          bool
	Outstanding int64
	LatencyUsec int64
	RingPoints  []uint32
	QPSLimit    int
}

// Decision is what a policy returns: the chosen backend id and a short
// human-readable reason, surfaced in admin/debug output.
type Decision struct {
	ID     string
	Reason string
}

// Policy selects one candidate to answer a query.
type Policy interface {
	Select(qctx QueryContext, candidates []Candidate) (Decision, error)
}

// Config holds the shared, mutable-at-runtime tunables every policy
// constructor reads from. The balancing factors are stored as atomic bits
// so an admin reconfigure never blocks or races an in-flight Select.
type Config struct {
	Perturbation uint32

	weightedBalancingFactorBits         atomic.Uint64
	consistentHashBalancingFactorBits   atomic.Uint64
}

// NewConfig builds a Config. A balancing factor of 0 disables the
// corresponding Bounded-Load cap (unbounded weighted selection).
func NewConfig(perturbation uint32, weightedBalancingFactor, consistentHashBalancingFactor float64) *Config {
	c := &Config{Perturbation: perturbation}
	c.SetWeightedBalancingFactor(weightedBalancingFactor)
	c.SetConsistentHashBalancingFactor(consistentHashBalancingFactor)
	return c
}

// WeightedBalancingFactor returns the current factor for wrandom/whashed.
func (c *Config) WeightedBalancingFactor() float64 {
	return math.Float64frombits(c.weightedBalancingFactorBits.Load())
}

// SetWeightedBalancingFactor updates the factor without blocking readers.
func (c *Config) SetWeightedBalancingFactor(f float64) {
	c.weightedBalancingFactorBits.Store(math.Float64bits(f))
}

// ConsistentHashBalancingFactor returns the current factor for chashed.
func (c *Config) ConsistentHashBalancingFactor() float64 {
	return math.Float64frombits(c.consistentHashBalancingFactorBits.Load())
}

// SetConsistentHashBalancingFactor updates the factor without blocking readers.
func (c *Config) SetConsistentHashBalancingFactor(f float64) {
	c.consistentHashBalancingFactorBits.Store(math.Float64bits(f))
}

// New constructs the named policy. cfg may be nil for policies that need
// no shared tunables (roundrobin, firstAvailable, leastOutstanding).
func New(id string, cfg *Config) (Policy, error) {
	switch id {
	case "roundrobin":
		return newRoundRobin(), nil
	case "firstAvailable":
		return newFirstAvailable(), nil
	case "leastOutstanding":
		return newLeastOutstanding(), nil
	case "wrandom":
		return newWeightedRandom(cfg), nil
	case "whashed":
		return newWeightedHashed(cfg), nil
	case "chashed":
		return newConsistentHashed(cfg), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownPolicy, id)
	}
}
