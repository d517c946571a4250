// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

// Package api serves the read-only admin/introspection HTTP endpoints:
// GET /status, GET /backends, and GET /metrics.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gslbd/gslbd/internal/selector"
)

// ServerConfig configures the admin API server.
type ServerConfig struct {
	Address           string
	AllowedNetworks   []string
	TrustProxyHeaders bool
	Engine            *selector.Engine
	Logger            *slog.Logger
}

// Server is the read-only admin HTTP server.
type Server struct {
	cfg        ServerConfig
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer builds a Server bound to cfg.Address. It does not start
// listening until Start is called.
func NewServer(cfg ServerConfig) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{cfg: cfg, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.withACL(s.handleStatus))
	mux.HandleFunc("/backends", s.withACL(s.handleBackends))
	mux.Handle("/metrics", s.withACL(promhttp.Handler().ServeHTTP))

	s.httpServer = &http.Server{
		Addr:         cfg.Address,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start begins serving the admin API. It blocks until ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("admin API starting", "address", s.cfg.Address)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case <-ctx.Done():
		return s.shutdown()
	case err := <-errChan:
		return err
	}
}

func (s *Server) shutdown() error {
	s.logger.Info("admin API shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// statusResponse is the per-pool shape returned by GET /status.
type statusResponse struct {
	Name          string `json:"name"`
	Policy        string `json:"policy"`
	TotalWeightUp int64  `json:"total_weight_up"`
	UpCount       int    `json:"up_count"`
	DownCount     int    `json:"down_count"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snaps := s.cfg.Engine.Snapshot()
	out := make([]statusResponse, 0, len(snaps))
	for _, p := range snaps {
		out = append(out, statusResponse{
			Name:          p.Name,
			Policy:        p.Policy,
			TotalWeightUp: p.TotalWeightUp,
			UpCount:       p.UpCount,
			DownCount:     p.DownCount,
		})
	}
	writeJSON(w, out)
}

// backendResponse is the per-backend shape returned by GET /backends.
type backendResponse struct {
	Pool          string `json:"pool"`
	ID            string `json:"id"`
	Address       string `json:"address"`
	Port          int    `json:"port"`
	Health        string `json:"health"`
	Weight        int32  `json:"weight"`
	Order         int    `json:"order"`
	Queries       uint64 `json:"queries"`
	Reuseds       uint64 `json:"reuseds"`
	Outstanding   int64  `json:"outstanding"`
	LatencyEWMAus int64  `json:"latency_ewma_us"`
}

func (s *Server) handleBackends(w http.ResponseWriter, r *http.Request) {
	var out []backendResponse
	for _, poolName := range s.cfg.Engine.PoolNames() {
		pool, err := s.cfg.Engine.Pool(poolName)
		if err != nil {
			continue
		}
		for _, b := range pool.Backends() {
			snap := b.Snapshot()
			out = append(out, backendResponse{
				Pool:          poolName,
				ID:            snap.ID,
				Address:       snap.Address.String(),
				Port:          snap.Port,
				Health:        snap.Health,
				Weight:        snap.Weight,
				Order:         snap.Order,
				Queries:       snap.Queries,
				Reuseds:       snap.Reuseds,
				Outstanding:   snap.Outstanding,
				LatencyEWMAus: snap.LatencyEWMAus,
			})
		}
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// withACL restricts access by source IP against cfg.AllowedNetworks.
func (s *Server) withACL(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.isAllowed(r) {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next(w, r)
	}
}

func (s *Server) isAllowed(r *http.Request) bool {
	clientIP := s.getClientIP(r)
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}

	if len(s.cfg.AllowedNetworks) == 0 {
		return ip.IsLoopback()
	}

	for _, network := range s.cfg.AllowedNetworks {
		_, cidr, err := net.ParseCIDR(network)
		if err != nil {
			continue
		}
		if cidr.Contains(ip) {
			return true
		}
	}
	return false
}

func (s *Server) getClientIP(r *http.Request) string {
	if s.cfg.TrustProxyHeaders {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for i, c := range xff {
				if c == ',' {
					return xff[:i]
				}
			}
			return xff
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return xri
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
