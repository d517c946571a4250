// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package selector

import (
	"net"
	"sync"
	"time"

	"github.com/gslbd/gslbd/internal/selector/policy"
)

// Engine is the top-level registry of pools, keyed by pool name. A DNS
// front end holds one Engine and routes each query's domain to a pool name
// before calling Select.
type Engine struct {
	mu           sync.RWMutex
	pools        map[string]*Pool
	perturbation uint32
	policyConfig *policy.Config
}

// NewEngine creates an empty engine. perturbation seeds every hash-based
// policy and must stay fixed for the engine's lifetime: changing it
// reshuffles every consistent-hash ring.
func NewEngine(perturbation uint32, weightedBalancingFactor, consistentHashBalancingFactor float64) *Engine {
	return &Engine{
		pools:        make(map[string]*Pool),
		perturbation: perturbation,
		policyConfig: policy.NewConfig(perturbation, weightedBalancingFactor, consistentHashBalancingFactor),
	}
}

// AddPool registers a new pool under name with the given policy id.
func (e *Engine) AddPool(name, policyID string) (*Pool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.pools[name]; exists {
		return nil, ErrDuplicatePool
	}

	p, err := NewPool(name, policyID, e.perturbation, e.policyConfig)
	if err != nil {
		return nil, err
	}
	e.pools[name] = p
	return p, nil
}

// RemovePool unregisters a pool by name.
func (e *Engine) RemovePool(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.pools[name]; !exists {
		return ErrUnknownPool
	}
	delete(e.pools, name)
	return nil
}

// Pool returns the named pool, or ErrUnknownPool.
func (e *Engine) Pool(name string) (*Pool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	p, ok := e.pools[name]
	if !ok {
		return nil, ErrUnknownPool
	}
	return p, nil
}

// Select resolves a query against the named pool.
func (e *Engine) Select(poolName string, qctx QueryContext) (SelectResult, error) {
	p, err := e.Pool(poolName)
	if err != nil {
		return SelectResult{}, err
	}

	b, reason, err := p.Select(qctx)
	if err != nil {
		return SelectResult{}, err
	}

	return SelectResult{
		BackendID:      b.ID(),
		Address:        b.Address(),
		Port:           b.Port(),
		DecisionReason: reason,
	}, nil
}

// SelectQuery is the ingress entry point from the DNS layer: it hashes the
// query name and client address into a QueryContext and resolves it
// against the named pool.
func (e *Engine) SelectQuery(poolName, qname string, clientAddr net.IP, qtype uint16) (SelectResult, error) {
	qctx := QueryContext{
		QNameHash: hashQName(qname, e.perturbation),
		QType:     qtype,
	}
	if clientAddr != nil {
		qctx.ClientHash = hash32(clientAddr, e.perturbation)
	}
	return e.Select(poolName, qctx)
}

// RecordDispatch credits one in-flight query to backendID in poolName.
func (e *Engine) RecordDispatch(poolName, backendID string) error {
	p, err := e.Pool(poolName)
	if err != nil {
		return err
	}
	b, err := p.Backend(backendID)
	if err != nil {
		return err
	}
	b.RecordDispatch()
	return nil
}

// RecordResponse completes a previously dispatched query. Every outcome,
// failed or not, also feeds the pool's health monitor via the
// caller-supplied observer, if one has been wired (see
// Pool.SetHealthObserver).
func (e *Engine) RecordResponse(poolName, backendID string, latency time.Duration, outcome Outcome) error {
	p, err := e.Pool(poolName)
	if err != nil {
		return err
	}
	b, err := p.Backend(backendID)
	if err != nil {
		return err
	}
	b.RecordResponse(outcome, latency.Microseconds())
	p.observeHealth(backendID, outcome.IsFailure())
	return nil
}

// PoolNames returns the names of every registered pool.
func (e *Engine) PoolNames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.pools))
	for name := range e.pools {
		names = append(names, name)
	}
	return names
}

// Snapshot returns a coherent view of every pool for admin/introspection
// APIs.
func (e *Engine) Snapshot() []PoolSnapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]PoolSnapshot, 0, len(e.pools))
	for _, p := range e.pools {
		out = append(out, p.Snapshot())
	}
	return out
}
