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

package policy

import (
	"errors"
	"testing"
)

func upCandidate(id string, order int, weight int32, outstanding int64) Candidate {
	return Candidate{ID: id, Order: order, Weight: weight, Up: true, Outstanding: outstanding}
}

func TestRoundRobin_RotatesAndErrorsWhenEmpty(t *testing.T) {
	t.Run("empty candidates error", func(t *testing.T) {
		rr := newRoundRobin()
		_, err := rr.Select(QueryContext{}, nil)
		if !errors.Is(err, ErrNoneAvailable) {
			t.Fatalf("expected ErrNoneAvailable, got %v", err)
		}
	})

	t.Run("rotates evenly across all-up candidates", func(t *testing.T) {
		rr := newRoundRobin()
		cands := []Candidate{
			upCandidate("a", 0, 1, 0),
			upCandidate("b", 1, 1, 0),
			upCandidate("c", 2, 1, 0),
		}
		counts := map[string]int{}
		for i := 0; i < 300; i++ {
			d, err := rr.Select(QueryContext{}, cands)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			counts[d.ID]++
		}
		for _, id := range []string{"a", "b", "c"} {
			if counts[id] != 100 {
				t.Errorf("expected 100 selections for %s, got %d", id, counts[id])
			}
		}
	})

}

func TestLeastOutstanding_PicksFewestThenOrderThenLatency(t *testing.T) {
	fa := newLeastOutstanding()

	t.Run("empty candidates errors", func(t *testing.T) {
		_, err := fa.Select(QueryContext{}, nil)
		if !errors.Is(err, ErrNoneAvailable) {
			t.Fatalf("expected ErrNoneAvailable, got %v", err)
		}
	})

	t.Run("fewest outstanding wins", func(t *testing.T) {
		cands := []Candidate{
			upCandidate("busy", 0, 1, 5),
			upCandidate("idle", 1, 1, 1),
		}
		d, err := fa.Select(QueryContext{}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != "idle" {
			t.Errorf("expected idle, got %s", d.ID)
		}
	})

	t.Run("ties on outstanding break by order", func(t *testing.T) {
		cands := []Candidate{
			upCandidate("later", 5, 1, 2),
			upCandidate("earlier", 1, 1, 2),
		}
		d, err := fa.Select(QueryContext{}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != "earlier" {
			t.Errorf("expected earlier, got %s", d.ID)
		}
	})

	t.Run("ties on outstanding and order break by latency", func(t *testing.T) {
		cands := []Candidate{
			{ID: "slow", Order: 0, Weight: 1, Up: true, Outstanding: 2, LatencyUsec: 500},
			{ID: "fast", Order: 0, Weight: 1, Up: true, Outstanding: 2, LatencyUsec: 50},
		}
		d, err := fa.Select(QueryContext{}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != "fast" {
			t.Errorf("expected fast, got %s", d.ID)
		}
	})
}

func TestFirstAvailable_FallsThroughToLeastOutstanding(t *testing.T) {
	fa := newFirstAvailable()

	t.Run("picks lowest order up candidate", func(t *testing.T) {
		cands := []Candidate{
			upCandidate("second", 2, 1, 0),
			upCandidate("first", 1, 1, 0),
		}
		d, err := fa.Select(QueryContext{}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != "first" {
			t.Errorf("expected first, got %s", d.ID)
		}
	})

	t.Run("empty candidates errors", func(t *testing.T) {
		_, err := fa.Select(QueryContext{}, nil)
		if !errors.Is(err, ErrNoneAvailable) {
			t.Fatalf("expected ErrNoneAvailable, got %v", err)
		}
	})

	t.Run("skips a candidate over its QPS limit", func(t *testing.T) {
		cands := []Candidate{
			{ID: "saturated", Order: 0, Weight: 1, Up: true, Outstanding: 10, QPSLimit: 10},
			{ID: "roomy", Order: 1, Weight: 1, Up: true, Outstanding: 2, QPSLimit: 10},
		}
		d, err := fa.Select(QueryContext{}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != "roomy" {
			t.Errorf("expected roomy, got %s", d.ID)
		}
	})

	t.Run("falls through to leastOutstanding when every candidate is over its QPS limit", func(t *testing.T) {
		cands := []Candidate{
			{ID: "busier", Order: 0, Weight: 1, Up: true, Outstanding: 20, QPSLimit: 10},
			{ID: "less-busy", Order: 1, Weight: 1, Up: true, Outstanding: 15, QPSLimit: 10},
		}
		d, err := fa.Select(QueryContext{}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != "less-busy" {
			t.Errorf("expected less-busy as the leastOutstanding fallback, got %s", d.ID)
		}
	})
}

func TestWeightedRandom_RespectsWeightDistribution(t *testing.T) {
	cfg := NewConfig(1, 0, 0)
	wr := newWeightedRandom(cfg)

	cands := []Candidate{
		upCandidate("heavy", 0, 9, 0),
		upCandidate("light", 1, 1, 0),
	}

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		d, err := wr.Select(QueryContext{}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[d.ID]++
	}

	if counts["heavy"] < counts["light"]*5 {
		t.Errorf("expected heavy to dominate roughly 9:1, got heavy=%d light=%d", counts["heavy"], counts["light"])
	}
}

func TestWeightedHashed_IsDeterministicPerName(t *testing.T) {
	cfg := NewConfig(1, 0, 0)
	wh := newWeightedHashed(cfg)

	cands := []Candidate{
		upCandidate("a", 0, 1, 0),
		upCandidate("b", 1, 1, 0),
		upCandidate("c", 2, 1, 0),
	}

	qctx := QueryContext{QNameHash: 123456789}
	first, err := wh.Select(qctx, cands)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i := 0; i < 10; i++ {
		d, err := wh.Select(qctx, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != first.ID {
			t.Errorf("expected stable decision %s, got %s on iteration %d", first.ID, d.ID, i)
		}
	}
}

func TestWeightedWalk_BoundedLoadExcludesOverloadedCandidate(t *testing.T) {
	cfg := NewConfig(1, 1.0, 0)
	wr := newWeightedRandom(cfg)

	// "hot" is massively over its fair share of outstanding queries relative
	// to its weight; with a balancing factor of 1.0 it should essentially
	// never be picked once the cap kicks in.
	cands := []Candidate{
		upCandidate("hot", 0, 5, 1000),
		upCandidate("cool", 1, 5, 0),
	}

	counts := map[string]int{}
	for i := 0; i < 200; i++ {
		d, err := wr.Select(QueryContext{}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		counts[d.ID]++
	}
	if counts["hot"] > 0 {
		t.Errorf("expected hot to be excluded by the load cap, got %d selections", counts["hot"])
	}
}

func TestConsistentHashed_StableAndWrapsAround(t *testing.T) {
	cfg := NewConfig(7, 0, 0)

	mk := func(id string, order int, weight int32, points []uint32) Candidate {
		return Candidate{ID: id, Order: order, Weight: weight, Up: true, RingPoints: points}
	}

	cands := []Candidate{
		mk("a", 0, 1, []uint32{100, 400}),
		mk("b", 1, 1, []uint32{200, 900}),
	}

	ch := newConsistentHashed(cfg)

	t.Run("picks owner of nearest point at or after hash", func(t *testing.T) {
		d, err := ch.Select(QueryContext{QNameHash: 150}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != "b" {
			t.Errorf("expected b (owns point 200), got %s", d.ID)
		}
	})

	t.Run("wraps around to the smallest point when hash exceeds all points", func(t *testing.T) {
		d, err := ch.Select(QueryContext{QNameHash: 950}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if d.ID != "a" {
			t.Errorf("expected wraparound to a (owns smallest point 100), got %s", d.ID)
		}
	})

	t.Run("deterministic for the same hash", func(t *testing.T) {
		first, err := ch.Select(QueryContext{QNameHash: 500}, cands)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for i := 0; i < 5; i++ {
			d, err := ch.Select(QueryContext{QNameHash: 500}, cands)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.ID != first.ID {
				t.Errorf("expected stable decision, got %s then %s", first.ID, d.ID)
			}
		}
	})

	t.Run("no candidates with ring points errors", func(t *testing.T) {
		_, err := ch.Select(QueryContext{QNameHash: 1}, []Candidate{{ID: "no-ring", Up: true}})
		if !errors.Is(err, ErrNoneAvailable) {
			t.Fatalf("expected ErrNoneAvailable, got %v", err)
		}
	})
}

func TestNew_UnknownPolicy(t *testing.T) {
	_, err := New("not-a-real-policy", NewConfig(1, 0, 0))
	if !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("expected ErrUnknownPolicy, got %v", err)
	}
}
