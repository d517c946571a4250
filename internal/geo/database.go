// Copyright (C) 2025 Logan Ross
//
// This file is part of OpenGSLB – https://opengslb.org
//
// SPDX-License-Identifier: AGPL-3.0-or-later OR LicenseRef-OpenGSLB-Commercial

// Package geo resolves a client address to an advisory geo_tag string. It
// never feeds the selection policies in package policy: a geo_tag only
// labels backends and enriches admin/metrics output.
package geo

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Database wraps a MaxMind GeoIP2/GeoLite2 country database with hot-reload
// support.
type Database struct {
	mu      sync.RWMutex
	reader  *geoip2.Reader
	path    string
	logger  *slog.Logger
	modTime int64
}

// NewDatabase opens the GeoIP database at path.
func NewDatabase(path string, logger *slog.Logger) (*Database, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db := &Database{path: path, logger: logger}
	if err := db.load(); err != nil {
		return nil, err
	}
	return db, nil
}

func (d *Database) load() error {
	info, err := os.Stat(d.path)
	if err != nil {
		return fmt.Errorf("stat geoip database %q: %w", d.path, err)
	}

	reader, err := geoip2.Open(d.path)
	if err != nil {
		return fmt.Errorf("open geoip database %q: %w", d.path, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reader != nil {
		d.reader.Close()
	}
	d.reader = reader
	d.modTime = info.ModTime().Unix()

	d.logger.Info("geoip database loaded", "path", d.path, "type", reader.Metadata().DatabaseType)
	return nil
}

// Reload reloads the database from disk if its mtime has changed, reporting
// whether a reload occurred.
func (d *Database) Reload() (bool, error) {
	info, err := os.Stat(d.path)
	if err != nil {
		return false, fmt.Errorf("stat geoip database: %w", err)
	}

	d.mu.RLock()
	unchanged := info.ModTime().Unix() == d.modTime
	d.mu.RUnlock()

	if unchanged {
		return false, nil
	}
	if err := d.load(); err != nil {
		return false, err
	}
	return true, nil
}

// CountryResult is the outcome of a country lookup.
type CountryResult struct {
	Country   string
	Continent string
	Found     bool
}

// Lookup resolves ip to its country and continent codes.
func (d *Database) Lookup(ip net.IP) (*CountryResult, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.reader == nil {
		return &CountryResult{}, fmt.Errorf("geoip database not loaded")
	}

	record, err := d.reader.Country(ip)
	if err != nil {
		return &CountryResult{}, err
	}

	return &CountryResult{
		Country:   record.Country.IsoCode,
		Continent: record.Continent.Code,
		Found:     record.Country.IsoCode != "" || record.Continent.Code != "",
	}, nil
}

// Close releases the underlying database file.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.reader != nil {
		err := d.reader.Close()
		d.reader = nil
		return err
	}
	return nil
}
