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

package dnsfront

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/miekg/dns"

	"github.com/gslbd/gslbd/internal/geo"
	"github.com/gslbd/gslbd/internal/metrics"
	"github.com/gslbd/gslbd/internal/selector"
)

// Default EDNS configuration values.
const DefaultEDNSUDPSize = 4096

// HandlerConfig configures a Handler.
type HandlerConfig struct {
	Registry    *Registry
	Engine      *selector.Engine
	DefaultTTL  uint32
	Logger      *slog.Logger
	EDNSEnabled *bool // nil defaults to true
	EDNSUDPSize uint16
	// GeoResolver is optional. When set, every successful answer resolves
	// the client address to an advisory geo_tag for the geo selection
	// metric; it never affects which backend is chosen.
	GeoResolver *geo.Resolver
}

// Handler answers DNS queries by resolving the query name to a zone, then
// asking the selection engine for a backend. It never runs selection logic
// itself; it only encodes selector.SelectResult into DNS resource records.
type Handler struct {
	registry    *Registry
	engine      *selector.Engine
	defaultTTL  uint32
	logger      *slog.Logger
	ednsEnabled bool
	ednsUDPSize uint16
	geoResolver *geo.Resolver
}

// NewHandler creates a Handler from cfg.
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ednsEnabled := true
	if cfg.EDNSEnabled != nil {
		ednsEnabled = *cfg.EDNSEnabled
	}

	ednsUDPSize := cfg.EDNSUDPSize
	if ednsUDPSize == 0 {
		ednsUDPSize = DefaultEDNSUDPSize
	}

	return &Handler{
		registry:    cfg.Registry,
		engine:      cfg.Engine,
		defaultTTL:  cfg.DefaultTTL,
		logger:      logger,
		ednsEnabled: ednsEnabled,
		ednsUDPSize: ednsUDPSize,
		geoResolver: cfg.GeoResolver,
	}
}

// ServeDNS implements dns.Handler.
func (h *Handler) ServeDNS(w dns.ResponseWriter, r *dns.Msg) {
	start := time.Now()

	msg := new(dns.Msg)
	msg.SetReply(r)
	msg.Authoritative = true

	clientOPT := h.getEDNS(r)

	if len(r.Question) == 0 {
		h.logger.Warn("received DNS query with no questions")
		msg.Rcode = dns.RcodeFormatError
		h.addEDNS(msg, clientOPT)
		h.writeMsg(w, msg)
		return
	}

	q := r.Question[0]
	zone := ""

	switch q.Qtype {
	case dns.TypeA:
		zone = h.answer(msg, q, w.RemoteAddr(), true)
	case dns.TypeAAAA:
		zone = h.answer(msg, q, w.RemoteAddr(), false)
	default:
		h.logger.Debug("unsupported query type", "name", q.Name, "type", dns.TypeToString[q.Qtype])
		msg.Rcode = dns.RcodeNotImplemented
	}

	h.addEDNS(msg, clientOPT)
	h.writeMsg(w, msg)

	rcode := dns.RcodeToString[msg.Rcode]
	metrics.RecordDNSQuery(zone, dns.TypeToString[q.Qtype], rcode, time.Since(start).Seconds())
}

// answer resolves q against the zone registry and selection engine, filling
// msg's Answer section on success. It returns the normalized zone name for
// metrics labeling.
func (h *Handler) answer(msg *dns.Msg, q dns.Question, remoteAddr net.Addr, ipv4 bool) string {
	entry, ok := h.registry.Lookup(q.Name)
	if !ok {
		h.logger.Debug("zone not found", "name", q.Name)
		msg.Rcode = dns.RcodeNameError
		return q.Name
	}

	clientIP := clientAddrIP(remoteAddr)

	result, err := h.engine.SelectQuery(entry.Pool, q.Name, clientIP, q.Qtype)
	if err != nil {
		if errors.Is(err, selector.ErrNoBackend) {
			h.logger.Warn("no backend available", "zone", entry.Name, "pool", entry.Pool)
			metrics.RecordSelectionFailure(entry.Pool)
		} else {
			h.logger.Error("selection failed", "zone", entry.Name, "pool", entry.Pool, "error", err)
		}
		msg.Rcode = dns.RcodeServerFailure
		return entry.Name
	}

	isIPv4 := result.Address.To4() != nil
	if isIPv4 != ipv4 {
		// The selected backend has no address of the requested family; this
		// is an empty (but successful) answer, matching authoritative
		// behavior for A-only or AAAA-only backend pools.
		return entry.Name
	}

	dispatchStart := time.Now()
	if err := h.engine.RecordDispatch(entry.Pool, result.BackendID); err != nil {
		h.logger.Error("record dispatch failed", "pool", entry.Pool, "backend", result.BackendID, "error", err)
	}

	ttl := entry.TTL
	if ttl == 0 {
		ttl = h.defaultTTL
	}

	if ipv4 {
		msg.Answer = append(msg.Answer, &dns.A{
			Hdr: dns.RR_Header{Name: q.Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
			A:   result.Address,
		})
	} else {
		msg.Answer = append(msg.Answer, &dns.AAAA{
			Hdr:  dns.RR_Header{Name: q.Name, Rrtype: dns.TypeAAAA, Class: dns.ClassINET, Ttl: ttl},
			AAAA: result.Address,
		})
	}

	metrics.RecordSelection(entry.Pool, result.DecisionReason, result.BackendID)
	if h.geoResolver != nil && clientIP != nil {
		metrics.RecordSelectionGeoTag(h.geoResolver.Resolve(clientIP).Tag)
	}

	// The DNS front end never observes whether the client actually used the
	// answered backend, since traffic to it never flows through this
	// process; the "response" leg of the dispatch/response pair records the
	// success of answering the query itself, with the encode+select latency
	// standing in for backend latency. Real backend health is exclusively
	// the concern of internal/health's active/lazy monitors.
	if err := h.engine.RecordResponse(entry.Pool, result.BackendID, time.Since(dispatchStart), selector.OK); err != nil {
		h.logger.Error("record response failed", "pool", entry.Pool, "backend", result.BackendID, "error", err)
	}

	h.logger.Debug("selection decision",
		"zone", entry.Name,
		"pool", entry.Pool,
		"backend", result.BackendID,
		"reason", result.DecisionReason,
		"ttl", ttl,
	)
	return entry.Name
}

func (h *Handler) writeMsg(w dns.ResponseWriter, msg *dns.Msg) {
	if err := w.WriteMsg(msg); err != nil {
		h.logger.Error("failed to write DNS response", "error", err)
	}
}

func clientAddrIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.TCPAddr:
		return a.IP
	default:
		return nil
	}
}

func (h *Handler) getEDNS(r *dns.Msg) *dns.OPT {
	if !h.ednsEnabled {
		return nil
	}
	for _, rr := range r.Extra {
		if opt, ok := rr.(*dns.OPT); ok {
			return opt
		}
	}
	return nil
}

func (h *Handler) addEDNS(msg *dns.Msg, clientOPT *dns.OPT) {
	if clientOPT == nil || !h.ednsEnabled {
		return
	}
	opt := new(dns.OPT)
	opt.Hdr.Name = "."
	opt.Hdr.Rrtype = dns.TypeOPT
	opt.SetUDPSize(h.ednsUDPSize)
	opt.SetVersion(0)
	msg.Extra = append(msg.Extra, opt)
}
