// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package selector

import (
	"errors"
	"net"
	"testing"
)

func TestEngine_AddPoolRejectsDuplicateName(t *testing.T) {
	e := NewEngine(1, 0, 0)
	if _, err := e.AddPool("web", "roundrobin"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := e.AddPool("web", "roundrobin"); !errors.Is(err, ErrDuplicatePool) {
		t.Fatalf("expected ErrDuplicatePool, got %v", err)
	}
}

func TestEngine_SelectUnknownPool(t *testing.T) {
	e := NewEngine(1, 0, 0)
	_, err := e.Select("missing", QueryContext{})
	if !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
}

func TestEngine_SelectEndToEnd(t *testing.T) {
	e := NewEngine(1, 0, 0)
	p, err := e.AddPool("web", "leastOutstanding")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := p.AddBackend(BackendConfig{ID: "a", Address: net.ParseIP("10.0.0.1"), Port: 53, Weight: 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b.SetHealth(HealthUp)

	res, err := e.Select("web", QueryContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.BackendID != "a" {
		t.Fatalf("expected backend a, got %s", res.BackendID)
	}
	if !res.Address.Equal(net.ParseIP("10.0.0.1")) {
		t.Fatalf("expected address 10.0.0.1, got %s", res.Address)
	}
}

func TestEngine_RemovePoolUnknown(t *testing.T) {
	e := NewEngine(1, 0, 0)
	if err := e.RemovePool("missing"); !errors.Is(err, ErrUnknownPool) {
		t.Fatalf("expected ErrUnknownPool, got %v", err)
	}
}
