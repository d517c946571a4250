// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package selector

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/gslbd/gslbd/internal/selector/policy"
)

// poolSnapshot is the immutable, coherent view of a pool's backend set that
// readers select against. It is rebuilt and published wholesale on every
// membership, policy, or health change so a Select call never observes a
// half rebuilt ring or backend list, even though the rebuild itself walks
// several backends.
//
// upCandidates is the Up-only candidate slice, sorted by (order asc,
// insertion-seq asc) per the pool's ordering rule for selection input. It
// is computed once per rebuild, not per query, so Select and every policy
// read it without allocating.
type poolSnapshot struct {
	name         string
	policy       policy.Policy
	policyID     string
	backends     []*Backend
	byID         map[string]*Backend
	upCandidates []policy.Candidate
}

// Pool is a named set of backends answering for one or more domains, load
// balanced by a single configured policy. Membership and policy changes are
// serialized by mu; Select itself never takes mu, only an atomic load.
type Pool struct {
	mu   sync.Mutex
	snap atomic.Pointer[poolSnapshot]

	perturbation uint32
	policyConfig *policy.Config

	healthObserver atomic.Pointer[func(backendID string, failed bool)]
}

// SetHealthObserver registers the function invoked on every RecordResponse
// with the outcome's pass/fail verdict, so a health.Monitor's lazy mode
// can be fed without selector importing the health package.
func (p *Pool) SetHealthObserver(fn func(backendID string, failed bool)) {
	p.healthObserver.Store(&fn)
}

func (p *Pool) observeHealth(backendID string, failed bool) {
	if fnPtr := p.healthObserver.Load(); fnPtr != nil {
		(*fnPtr)(backendID, failed)
	}
}

// NewPool creates an empty pool using the given policy and the shared
// selector-wide perturbation seed used for hashing.
func NewPool(name string, policyID string, perturbation uint32, cfg *policy.Config) (*Pool, error) {
	pol, err := policy.New(policyID, cfg)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		perturbation: perturbation,
		policyConfig: cfg,
	}
	p.snap.Store(&poolSnapshot{
		name:     name,
		policy:   pol,
		policyID: policyID,
		backends: nil,
		byID:     map[string]*Backend{},
	})
	return p, nil
}

// buildUpCandidates derives the Up-only, (order asc, insertion-seq asc)
// sorted candidate slice a policy selects over. backends is assumed to
// already be in insertion order (AddBackend only ever appends), so a
// stable sort on order alone reproduces the full tie-break rule.
func buildUpCandidates(backends []*Backend) []policy.Candidate {
	cands := make([]policy.Candidate, 0, len(backends))
	for _, b := range backends {
		if b.IsUp() {
			cands = append(cands, backendCandidate(b))
		}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].Order < cands[j].Order })
	return cands
}

// Name returns the pool's configured name.
func (p *Pool) Name() string { return p.snap.Load().name }

// AddBackend registers a new backend in the pool. It is a configuration
// operation: callers are expected to serialize AddBackend/RemoveBackend
// themselves at the engine level (e.g. during a config reload), but Pool
// itself is safe for concurrent use regardless.
func (p *Pool) AddBackend(cfg BackendConfig) (*Backend, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.snap.Load()
	if _, exists := cur.byID[cfg.ID]; exists {
		return nil, ErrDuplicateBackend
	}

	b := NewBackend(cfg, p.perturbation)
	b.setOnHealthChange(func() { p.rebuildCandidateCache() })

	backends := append(append([]*Backend{}, cur.backends...), b)
	next := &poolSnapshot{
		name:         cur.name,
		policy:       cur.policy,
		policyID:     cur.policyID,
		backends:     backends,
		byID:         make(map[string]*Backend, len(cur.byID)+1),
		upCandidates: buildUpCandidates(backends),
	}
	for id, be := range cur.byID {
		next.byID[id] = be
	}
	next.byID[b.ID()] = b

	p.snap.Store(next)
	return b, nil
}

// RemoveBackend removes a backend from the pool by id.
func (p *Pool) RemoveBackend(id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.snap.Load()
	if _, exists := cur.byID[id]; !exists {
		return ErrUnknownBackend
	}

	next := &poolSnapshot{
		name:     cur.name,
		policy:   cur.policy,
		policyID: cur.policyID,
		backends: make([]*Backend, 0, len(cur.backends)-1),
		byID:     make(map[string]*Backend, len(cur.byID)-1),
	}
	for _, be := range cur.backends {
		if be.ID() == id {
			continue
		}
		next.backends = append(next.backends, be)
		next.byID[be.ID()] = be
	}
	next.upCandidates = buildUpCandidates(next.backends)

	p.snap.Store(next)
	return nil
}

// SetPolicy swaps the pool's selection policy. Existing backends and their
// accumulated counters are carried over unchanged.
func (p *Pool) SetPolicy(policyID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	pol, err := policy.New(policyID, p.policyConfig)
	if err != nil {
		return err
	}

	cur := p.snap.Load()
	next := &poolSnapshot{
		name:         cur.name,
		policy:       pol,
		policyID:     policyID,
		backends:     cur.backends,
		byID:         cur.byID,
		upCandidates: cur.upCandidates,
	}
	p.snap.Store(next)
	return nil
}

// rebuildCandidateCache recomputes upCandidates from the current backend
// set and republishes the snapshot. It is invoked by a Backend's
// onHealthChange callback whenever SetHealth flips a backend's health, so
// a Select call never sources its candidate list from a stale Up-set.
func (p *Pool) rebuildCandidateCache() {
	p.mu.Lock()
	defer p.mu.Unlock()

	cur := p.snap.Load()
	next := &poolSnapshot{
		name:         cur.name,
		policy:       cur.policy,
		policyID:     cur.policyID,
		backends:     cur.backends,
		byID:         cur.byID,
		upCandidates: buildUpCandidates(cur.backends),
	}
	p.snap.Store(next)
}

// Backend returns the backend registered under id, or ErrUnknownBackend.
func (p *Pool) Backend(id string) (*Backend, error) {
	cur := p.snap.Load()
	b, ok := cur.byID[id]
	if !ok {
		return nil, ErrUnknownBackend
	}
	return b, nil
}

// Select runs the pool's configured policy against the current backend
// snapshot and returns the chosen backend. It never blocks on mu: a
// concurrent AddBackend only ever swaps the atomic pointer this method
// loads once at entry.
func (p *Pool) Select(qctx QueryContext) (*Backend, string, error) {
	cur := p.snap.Load()
	if len(cur.backends) == 0 {
		return nil, "", ErrNoBackend
	}

	decision, err := cur.policy.Select(policy.QueryContext{
		QNameHash:  qctx.QNameHash,
		ClientHash: qctx.ClientHash,
	}, cur.upCandidates)
	if err != nil {
		if errors.Is(err, policy.ErrNoneAvailable) {
			return nil, "", ErrNoBackend
		}
		return nil, "", err
	}

	return cur.byID[decision.ID], decision.Reason, nil
}

// backendCandidate adapts a Backend's live atomic state into the value the
// policy package consumes, without handing policies a pointer back into
// selector internals.
func backendCandidate(b *Backend) policy.Candidate {
	return policy.Candidate{
		ID:          b.ID(),
		Order:       b.Order(),
		Weight:      b.Weight(),
		Up:          b.IsUp(),
		Outstanding: b.Outstanding(),
		LatencyUsec: b.LatencyEWMAus(),
		RingPoints:  b.RingPoints(),
		QPSLimit:    b.QPSLimit(),
	}
}

// Snapshot returns a coherent, read-only view of the pool for
// admin/introspection APIs.
func (p *Pool) Snapshot() PoolSnapshot {
	cur := p.snap.Load()
	var totalUp int64
	var up, down int
	for _, b := range cur.backends {
		if b.IsUp() {
			up++
			totalUp += int64(b.Weight())
		} else {
			down++
		}
	}
	return PoolSnapshot{
		Name:          cur.name,
		Policy:        cur.policyID,
		TotalWeightUp: totalUp,
		UpCount:       up,
		DownCount:     down,
	}
}

// Backends returns a snapshot slice of every backend currently registered,
// in pool membership order.
func (p *Pool) Backends() []*Backend {
	cur := p.snap.Load()
	out := make([]*Backend, len(cur.backends))
	copy(out, cur.backends)
	return out
}
