// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package main

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gslbd/gslbd/internal/api"
	"github.com/gslbd/gslbd/internal/config"
	"github.com/gslbd/gslbd/internal/dnsfront"
	"github.com/gslbd/gslbd/internal/geo"
	"github.com/gslbd/gslbd/internal/health"
	"github.com/gslbd/gslbd/internal/metrics"
	"github.com/gslbd/gslbd/internal/selector"
)

// Application owns the lifecycle of every gslbd component: the selection
// engine, the health monitor feeding it, the DNS front end, and the
// optional metrics/admin HTTP servers.
type Application struct {
	config   *config.Config
	configMu sync.RWMutex
	logger   *slog.Logger

	engine      *selector.Engine
	healthMon   *health.Monitor
	geoResolver *geo.Resolver
	dnsRegistry *dnsfront.Registry
	dnsServer   *dnsfront.Server
	metricsSrv  *metrics.Server
	apiSrv      *api.Server

	// backendPool maps a backend id to the pool it belongs to, so the
	// health monitor's transition callback (keyed only by backend id) can
	// look up which selector.Backend to update.
	backendPool map[string]string
}

// NewApplication creates an Application from a loaded, validated
// configuration. It does not start any listeners.
func NewApplication(cfg *config.Config, logger *slog.Logger) *Application {
	if logger == nil {
		logger = slog.Default()
	}
	return &Application{
		config:      cfg,
		logger:      logger,
		backendPool: make(map[string]string),
	}
}

// Initialize builds every component from the current configuration.
func (a *Application) Initialize() error {
	perturbation := a.config.Perturbation
	if perturbation == 0 {
		p, err := randomPerturbation()
		if err != nil {
			return fmt.Errorf("derive perturbation: %w", err)
		}
		perturbation = p
		a.logger.Info("derived random perturbation seed", "perturbation", perturbation)
	}

	// The two balancing factors live on policy.Config, which is shared
	// across every pool in the engine so an admin reconfigure never blocks
	// a concurrent Select. The YAML schema still carries them per pool for
	// operator clarity; the first pool that sets a non-zero value wins.
	var weightedFactor, chashedFactor float64
	for _, poolCfg := range a.config.Pools {
		if weightedFactor == 0 {
			weightedFactor = poolCfg.WeightedBalancingFactor
		}
		if chashedFactor == 0 {
			chashedFactor = poolCfg.ConsistentHashBalancingFactor
		}
	}

	a.engine = selector.NewEngine(perturbation, weightedFactor, chashedFactor)

	checker := health.NewCompositeChecker()
	checker.Register("http", health.NewHTTPChecker())
	checker.Register("https", health.NewHTTPChecker())
	checker.Register("tcp", health.NewTCPChecker())

	a.healthMon = health.NewMonitor(checker, health.DefaultMonitorConfig(), a.logger)
	a.healthMon.OnTransition(a.onHealthTransition)

	if err := a.buildPools(); err != nil {
		return fmt.Errorf("build pools: %w", err)
	}

	if err := a.buildGeoResolver(); err != nil {
		return fmt.Errorf("build geo resolver: %w", err)
	}

	a.buildDNSRegistry()

	a.dnsServer = dnsfront.NewServer(dnsfront.ServerConfig{
		Address: a.config.DNS.ListenAddress,
		Handler: dnsfront.NewHandler(dnsfront.HandlerConfig{
			Registry:    a.dnsRegistry,
			Engine:      a.engine,
			DefaultTTL:  uint32(a.config.DNS.DefaultTTL),
			Logger:      a.logger,
			GeoResolver: a.geoResolver,
		}),
		Logger: a.logger,
	})

	if a.config.Metrics.Enabled {
		a.metricsSrv = metrics.NewServer(metrics.ServerConfig{Address: a.config.Metrics.Address, Logger: a.logger})
	}

	if a.config.API.Enabled {
		a.apiSrv = api.NewServer(api.ServerConfig{
			Address:         a.config.API.Address,
			AllowedNetworks: a.config.API.AllowedNetworks,
			Engine:          a.engine,
			Logger:          a.logger,
		})
	}

	return nil
}

// buildPools creates every configured pool and backend, registers each
// backend with the health monitor, and wires the pool's lazy-health
// observer to feed passive Monitor.Observe calls.
func (a *Application) buildPools() error {
	for _, poolCfg := range a.config.Pools {
		pool, err := a.engine.AddPool(poolCfg.Name, poolCfg.Policy)
		if err != nil {
			return fmt.Errorf("pool %s: %w", poolCfg.Name, err)
		}
		pool.SetHealthObserver(func(backendID string, failed bool) {
			a.healthMon.Observe(backendID, failed)
		})

		for _, be := range poolCfg.Backends {
			if _, err := pool.AddBackend(selector.BackendConfig{
				ID:        be.ID,
				Address:   net.ParseIP(be.Address),
				Port:      be.Port,
				Order:     be.Order,
				Weight:    be.Weight,
				QPSLimit:  be.QPSLimit,
				GeoTag:    be.GeoTag,
				EWMAAlpha: poolCfg.LatencyEWMAAlpha,
			}); err != nil {
				return fmt.Errorf("pool %s backend %s: %w", poolCfg.Name, be.ID, err)
			}
			a.backendPool[be.ID] = poolCfg.Name

			if err := a.healthMon.RegisterBackend(be.ID, health.Target{
				Address: be.Address,
				Port:    be.Port,
				Path:    be.HealthCheck.Path,
				Scheme:  be.HealthCheck.Type,
				Timeout: be.HealthCheck.Timeout,
			}); err != nil {
				return fmt.Errorf("register health check for %s: %w", be.ID, err)
			}
		}
	}
	return nil
}

func (a *Application) buildGeoResolver() error {
	if !a.config.Geo.Enabled {
		return nil
	}

	var db *geo.Database
	if a.config.Geo.DatabasePath != "" {
		d, err := geo.NewDatabase(a.config.Geo.DatabasePath, a.logger)
		if err != nil {
			return err
		}
		db = d
	}

	cidrs := make([]geo.CIDRMapping, 0, len(a.config.Geo.CIDRTags))
	for _, c := range a.config.Geo.CIDRTags {
		cidrs = append(cidrs, geo.CIDRMapping{CIDR: c.CIDR, Tag: c.Tag, Comment: c.Comment})
	}

	resolver, err := geo.NewResolver(geo.ResolverConfig{
		Database:    db,
		CIDRs:       cidrs,
		CountryTags: a.config.Geo.CountryTags,
		DefaultTag:  a.config.Geo.DefaultTag,
		Logger:      a.logger,
	})
	if err != nil {
		return err
	}
	a.geoResolver = resolver
	return nil
}

func (a *Application) buildDNSRegistry() {
	a.dnsRegistry = dnsfront.NewRegistry()
	entries := make([]dnsfront.ZoneEntry, 0, len(a.config.Zones))
	for _, z := range a.config.Zones {
		entries = append(entries, dnsfront.ZoneEntry{Name: z.Name, Pool: z.Pool, TTL: uint32(z.TTL)})
	}
	a.dnsRegistry.ReplaceAll(entries)
}

// onHealthTransition applies a health.Monitor status change to the
// corresponding selector.Backend and republishes the affected metrics.
func (a *Application) onHealthTransition(backendID string, from, to health.Status) {
	poolName, ok := a.backendPool[backendID]
	if !ok {
		return
	}
	pool, err := a.engine.Pool(poolName)
	if err != nil {
		return
	}
	backend, err := pool.Backend(backendID)
	if err != nil {
		return
	}

	backend.SetHealth(toSelectorHealth(to))
	metrics.SetBackendHealth(backendID, int(toSelectorHealth(to)))
	metrics.RecordHealthTransition(backendID, from.String(), to.String())

	snap := pool.Snapshot()
	metrics.SetPoolBackendsUp(poolName, snap.UpCount)
}

func toSelectorHealth(s health.Status) selector.Health {
	switch s {
	case health.StatusUp:
		return selector.HealthUp
	case health.StatusDown:
		return selector.HealthDown
	case health.StatusProbing:
		return selector.HealthProbing
	default:
		return selector.HealthUnknown
	}
}

func randomPerturbation() (uint32, error) {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

// Start begins the health monitor, the optional metrics/admin servers, and
// finally the DNS listener. It blocks until ctx is canceled or a component
// fails.
func (a *Application) Start(ctx context.Context) error {
	if err := a.healthMon.Start(); err != nil {
		return fmt.Errorf("start health monitor: %w", err)
	}
	a.logger.Info("health monitor started")

	if a.metricsSrv != nil {
		go func() {
			if err := a.metricsSrv.Start(ctx); err != nil {
				a.logger.Error("metrics server error", "error", err)
			}
		}()
	}

	if a.apiSrv != nil {
		go func() {
			if err := a.apiSrv.Start(ctx); err != nil {
				a.logger.Error("admin API server error", "error", err)
			}
		}()
	}

	a.logger.Info("starting DNS server", "address", a.config.DNS.ListenAddress)
	if err := a.dnsServer.Start(ctx); err != nil {
		return fmt.Errorf("dns server error: %w", err)
	}
	return nil
}

// Shutdown stops the components that do not self-terminate on ctx
// cancellation: the health monitor's probe goroutines and the geo
// resolver's database handle.
func (a *Application) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down application")

	var errs []error
	if a.healthMon != nil {
		if err := a.healthMon.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.geoResolver != nil {
		if err := a.geoResolver.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(50 * time.Millisecond):
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Reload applies a new configuration's zones and geo mappings without
// restarting listeners. Pool/backend membership and listener addresses
// require a restart.
func (a *Application) Reload(newCfg *config.Config) error {
	a.configMu.Lock()
	defer a.configMu.Unlock()

	if a.config.DNS.ListenAddress != newCfg.DNS.ListenAddress {
		a.logger.Warn("DNS listen address change requires restart")
	}

	entries := make([]dnsfront.ZoneEntry, 0, len(newCfg.Zones))
	for _, z := range newCfg.Zones {
		entries = append(entries, dnsfront.ZoneEntry{Name: z.Name, Pool: z.Pool, TTL: uint32(z.TTL)})
	}
	a.dnsRegistry.ReplaceAll(entries)

	if a.geoResolver != nil && newCfg.Geo.Enabled {
		cidrs := make([]geo.CIDRMapping, 0, len(newCfg.Geo.CIDRTags))
		for _, c := range newCfg.Geo.CIDRTags {
			cidrs = append(cidrs, geo.CIDRMapping{CIDR: c.CIDR, Tag: c.Tag, Comment: c.Comment})
		}
		if err := a.geoResolver.CIDRMappings().Load(cidrs); err != nil {
			return fmt.Errorf("reload geo CIDR mappings: %w", err)
		}
	}

	a.config = newCfg
	a.logger.Info("configuration reload complete", "zones", len(entries))
	return nil
}
