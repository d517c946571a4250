// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package dnsfront

import (
	"net"
	"testing"

	"github.com/miekg/dns"

	"github.com/gslbd/gslbd/internal/geo"
	"github.com/gslbd/gslbd/internal/selector"
)

// fakeResponseWriter captures the message written by ServeDNS without
// opening a real socket.
type fakeResponseWriter struct {
	remote  net.Addr
	written *dns.Msg
}

func (f *fakeResponseWriter) LocalAddr() net.Addr         { return &net.UDPAddr{IP: net.ParseIP("127.0.0.1")} }
func (f *fakeResponseWriter) RemoteAddr() net.Addr        { return f.remote }
func (f *fakeResponseWriter) WriteMsg(m *dns.Msg) error   { f.written = m; return nil }
func (f *fakeResponseWriter) Write(b []byte) (int, error) { return len(b), nil }
func (f *fakeResponseWriter) Close() error                { return nil }
func (f *fakeResponseWriter) TsigStatus() error            { return nil }
func (f *fakeResponseWriter) TsigTimersOnly(bool)          {}
func (f *fakeResponseWriter) Hijack()                       {}

func newTestEngine(t *testing.T) (*selector.Engine, string) {
	t.Helper()
	engine := selector.NewEngine(1, 0, 0)
	pool, err := engine.AddPool("web", "roundrobin")
	if err != nil {
		t.Fatalf("AddPool: %v", err)
	}
	b, err := pool.AddBackend(selector.BackendConfig{
		ID:      "web-1",
		Address: net.ParseIP("10.0.0.1"),
		Port:    80,
		Weight:  1,
	})
	if err != nil {
		t.Fatalf("AddBackend: %v", err)
	}
	b.SetHealth(selector.HealthUp)
	return engine, "web-1"
}

func TestHandler_AnswersARecordForRegisteredZone(t *testing.T) {
	engine, backendID := newTestEngine(t)

	registry := NewRegistry()
	registry.ReplaceAll([]ZoneEntry{{Name: "example.com.", Pool: "web", TTL: 30}})

	handler := NewHandler(HandlerConfig{Registry: registry, Engine: engine, DefaultTTL: 60})

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	w := &fakeResponseWriter{remote: &net.UDPAddr{IP: net.ParseIP("203.0.113.5")}}
	handler.ServeDNS(w, req)

	if w.written == nil {
		t.Fatal("expected a response to be written")
	}
	if w.written.Rcode != dns.RcodeSuccess {
		t.Fatalf("rcode = %v, want success", w.written.Rcode)
	}
	if len(w.written.Answer) != 1 {
		t.Fatalf("expected 1 answer record, got %d", len(w.written.Answer))
	}
	a, ok := w.written.Answer[0].(*dns.A)
	if !ok {
		t.Fatalf("expected *dns.A, got %T", w.written.Answer[0])
	}
	if !a.A.Equal(net.ParseIP("10.0.0.1")) {
		t.Errorf("answer address = %v, want 10.0.0.1", a.A)
	}
	if a.Hdr.Ttl != 30 {
		t.Errorf("ttl = %d, want 30 (zone override)", a.Hdr.Ttl)
	}

	snap, err := engine.Pool("web")
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	be, err := snap.Backend(backendID)
	if err != nil {
		t.Fatalf("Backend: %v", err)
	}
	if got := be.Snapshot().Queries; got != 1 {
		t.Errorf("queries = %d, want 1 after dispatch+response", got)
	}
	if be.Outstanding() != 0 {
		t.Errorf("outstanding = %d, want 0 after response recorded", be.Outstanding())
	}
}

func TestHandler_UnregisteredZoneReturnsNXDOMAIN(t *testing.T) {
	engine, _ := newTestEngine(t)
	registry := NewRegistry()
	handler := NewHandler(HandlerConfig{Registry: registry, Engine: engine, DefaultTTL: 60})

	req := new(dns.Msg)
	req.SetQuestion("unknown.example.", dns.TypeA)

	w := &fakeResponseWriter{remote: &net.UDPAddr{IP: net.ParseIP("203.0.113.5")}}
	handler.ServeDNS(w, req)

	if w.written == nil || w.written.Rcode != dns.RcodeNameError {
		t.Fatalf("expected NXDOMAIN, got %+v", w.written)
	}
}

func TestHandler_NoBackendReturnsSERVFAIL(t *testing.T) {
	engine := selector.NewEngine(1, 0, 0)
	if _, err := engine.AddPool("empty", "roundrobin"); err != nil {
		t.Fatalf("AddPool: %v", err)
	}
	registry := NewRegistry()
	registry.ReplaceAll([]ZoneEntry{{Name: "example.com.", Pool: "empty", TTL: 30}})

	handler := NewHandler(HandlerConfig{Registry: registry, Engine: engine, DefaultTTL: 60})

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	w := &fakeResponseWriter{remote: &net.UDPAddr{IP: net.ParseIP("203.0.113.5")}}
	handler.ServeDNS(w, req)

	if w.written == nil || w.written.Rcode != dns.RcodeServerFailure {
		t.Fatalf("expected SERVFAIL, got %+v", w.written)
	}
}

func TestHandler_RecordsAdvisoryGeoTagWhenResolverConfigured(t *testing.T) {
	engine, _ := newTestEngine(t)
	registry := NewRegistry()
	registry.ReplaceAll([]ZoneEntry{{Name: "example.com.", Pool: "web", TTL: 30}})

	resolver, err := geo.NewResolver(geo.ResolverConfig{
		CIDRs:      []geo.CIDRMapping{{CIDR: "203.0.113.0/24", Tag: "test-region"}},
		DefaultTag: "unknown",
	})
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	handler := NewHandler(HandlerConfig{Registry: registry, Engine: engine, DefaultTTL: 60, GeoResolver: resolver})

	req := new(dns.Msg)
	req.SetQuestion("example.com.", dns.TypeA)

	w := &fakeResponseWriter{remote: &net.UDPAddr{IP: net.ParseIP("203.0.113.5")}}
	handler.ServeDNS(w, req)

	if w.written == nil || w.written.Rcode != dns.RcodeSuccess {
		t.Fatalf("expected successful answer, got %+v", w.written)
	}
}

func TestRegistry_LookupNormalizesTrailingDot(t *testing.T) {
	r := NewRegistry()
	r.ReplaceAll([]ZoneEntry{{Name: "example.com", Pool: "web", TTL: 30}})

	entry, ok := r.Lookup("example.com.")
	if !ok || entry.Pool != "web" {
		t.Fatalf("Lookup = %+v, %v, want match on web", entry, ok)
	}
}
