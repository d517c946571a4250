// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

package main

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/gslbd/gslbd/internal/config"
)

const testConfigYAML = `
dns:
  listen_address: "127.0.0.1:25353"
  default_ttl: 30
perturbation: 42
pools:
  - name: web
    policy: leastOutstanding
    backends:
      - id: web-1
        address: 127.0.0.1
        port: 18080
        health_check:
          type: tcp
          interval: 1h
          timeout: 1s
zones:
  - name: example.com.
    pool: web
logging:
  level: error
`

func testApp(t *testing.T) *Application {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if err := config.Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return NewApplication(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestApplication_InitializeBuildsEveryComponent(t *testing.T) {
	app := testApp(t)
	if err := app.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	if app.engine == nil {
		t.Error("engine should be initialized")
	}
	if app.healthMon == nil {
		t.Error("health monitor should be initialized")
	}
	if app.dnsServer == nil {
		t.Error("DNS server should be initialized")
	}
	if app.apiSrv != nil {
		t.Error("API server should be nil when api.enabled is unset")
	}

	pool, err := app.engine.Pool("web")
	if err != nil {
		t.Fatalf("Pool: %v", err)
	}
	if _, err := pool.Backend("web-1"); err != nil {
		t.Errorf("expected web-1 registered in pool: %v", err)
	}
	if app.backendPool["web-1"] != "web" {
		t.Errorf("backendPool[web-1] = %q, want web", app.backendPool["web-1"])
	}
}

func TestApplication_LifecycleStartAndShutdown(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping lifecycle test in short mode")
	}

	app := testApp(t)
	if err := app.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errChan := make(chan error, 1)
	go func() { errChan <- app.Start(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errChan:
		if err != nil {
			t.Errorf("Start returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start did not return after cancellation")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
}

func TestApplication_ReloadReplacesZones(t *testing.T) {
	app := testApp(t)
	if err := app.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	newCfg, err := config.Parse([]byte(testConfigYAML + "\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	newCfg.Zones = append(newCfg.Zones, config.Zone{Name: "extra.example.com.", Pool: "web", TTL: 60})

	if err := app.Reload(newCfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	if _, ok := app.dnsRegistry.Lookup("extra.example.com."); !ok {
		t.Error("expected reloaded registry to contain the new zone")
	}
}

func TestApplication_ReloadUpdatesGeoCIDRMappings(t *testing.T) {
	app := testApp(t)
	app.config.Geo = config.GeoConfig{Enabled: true, DefaultTag: "unknown"}
	if err := app.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	newCfg, err := config.Parse([]byte(testConfigYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	newCfg.Geo = config.GeoConfig{
		Enabled:    true,
		DefaultTag: "unknown",
		CIDRTags:   []config.CIDRTag{{CIDR: "203.0.113.0/24", Tag: "test-region"}},
	}

	if err := app.Reload(newCfg); err != nil {
		t.Fatalf("Reload: %v", err)
	}

	match := app.geoResolver.CIDRMappings().Lookup(net.ParseIP("203.0.113.5"))
	if !match.Found || match.Tag != "test-region" {
		t.Errorf("expected reloaded CIDR mapping to apply, got %+v", match)
	}
}
