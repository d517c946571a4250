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
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/miekg/dns"
)

// Server runs the UDP and TCP DNS listeners side by side.
type Server struct {
	udpServer *dns.Server
	tcpServer *dns.Server
	handler   *Handler
	address   string
	logger    *slog.Logger

	mu      sync.Mutex
	running bool
}

// ServerConfig configures a Server.
type ServerConfig struct {
	Address string
	Handler *Handler
	Logger  *slog.Logger
}

// NewServer creates a DNS server bound to cfg.Address.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{handler: cfg.Handler, address: cfg.Address, logger: logger}
}

// Start begins listening on both UDP and TCP. It blocks until ctx is
// canceled or a listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("dns server already running")
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("starting DNS server", "address", s.address)

	s.udpServer = &dns.Server{Addr: s.address, Net: "udp", Handler: s.handler}
	s.tcpServer = &dns.Server{Addr: s.address, Net: "tcp", Handler: s.handler}

	errChan := make(chan error, 2)

	go func() {
		s.logger.Info("starting UDP listener", "address", s.address)
		if err := s.udpServer.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("udp server error: %w", err)
		}
	}()

	go func() {
		s.logger.Info("starting TCP listener", "address", s.address)
		if err := s.tcpServer.ListenAndServe(); err != nil {
			errChan <- fmt.Errorf("tcp server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.logger.Error("dns server error", "error", err)
		_ = s.Shutdown(context.Background())
		return err
	}
}

// Shutdown gracefully stops both listeners.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.logger.Info("shutting down DNS server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var errs []error
	if s.udpServer != nil {
		if err := s.udpServer.ShutdownContext(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("udp shutdown: %w", err))
		}
	}
	if s.tcpServer != nil {
		if err := s.tcpServer.ShutdownContext(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("tcp shutdown: %w", err))
		}
	}

	s.running = false
	s.logger.Info("dns server stopped")

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// IsRunning reports whether the server is currently serving.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
