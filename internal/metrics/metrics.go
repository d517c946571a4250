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

// Package metrics provides Prometheus metrics for gslbd observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gslbd"

// DNS metrics
var (
	DNSQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dns_queries_total",
			Help:      "Total number of DNS queries received",
		},
		[]string{"zone", "qtype", "rcode"},
	)

	DNSQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dns_query_duration_seconds",
			Help:      "DNS query processing duration in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"zone", "rcode"},
	)
)

// Selection metrics
var (
	SelectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selections_total",
			Help:      "Total number of backend selections made, by pool, policy, and chosen backend",
		},
		[]string{"pool", "policy", "backend"},
	)

	SelectionFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_failures_total",
			Help:      "Total number of selections that failed because no backend was available",
		},
		[]string{"pool"},
	)

	BackendOutstandingGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_outstanding_queries",
			Help:      "Current number of in-flight queries dispatched to a backend",
		},
		[]string{"pool", "backend"},
	)

	BackendLatencyEWMAMicros = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_latency_ewma_microseconds",
			Help:      "Smoothed response latency in microseconds for a backend",
		},
		[]string{"pool", "backend"},
	)
)

// Health metrics
var (
	HealthCheckResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_check_results_total",
			Help:      "Total number of active health check results by backend and outcome",
		},
		[]string{"backend", "result"},
	)

	HealthCheckDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "health_check_duration_seconds",
			Help:      "Active health check duration in seconds",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	BackendHealthGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "backend_health",
			Help:      "Current health state of a backend: 0=unknown 1=up 2=down 3=probing",
		},
		[]string{"backend"},
	)

	PoolBackendsUpGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_backends_up",
			Help:      "Current number of backends selectable (Up) in a pool",
		},
		[]string{"pool"},
	)

	HealthTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_transitions_total",
			Help:      "Total number of health state transitions by backend, from-state, and to-state",
		},
		[]string{"backend", "from", "to"},
	)
)

// Geo metrics
var (
	SelectionGeoTagTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "selection_geo_tag_total",
			Help:      "Total number of selections by the advisory geo_tag resolved for the client address",
		},
		[]string{"tag"},
	)
)

// Config metrics
var (
	ConfigReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "config_reloads_total",
			Help:      "Total number of configuration reload attempts",
		},
		[]string{"result"},
	)

	ConfigReloadTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "config_reload_timestamp_seconds",
			Help:      "Unix timestamp of the last successful configuration reload",
		},
	)
)

// RecordDNSQuery records a completed DNS query.
func RecordDNSQuery(zone, qtype, rcode string, durationSeconds float64) {
	DNSQueriesTotal.WithLabelValues(zone, qtype, rcode).Inc()
	DNSQueryDuration.WithLabelValues(zone, rcode).Observe(durationSeconds)
}

// RecordSelection records a successful policy selection.
func RecordSelection(pool, policy, backend string) {
	SelectionsTotal.WithLabelValues(pool, policy, backend).Inc()
}

// RecordSelectionFailure records a selection that found no available backend.
func RecordSelectionFailure(pool string) {
	SelectionFailuresTotal.WithLabelValues(pool).Inc()
}

// SetBackendLoad publishes a backend's current in-flight count and smoothed
// latency.
func SetBackendLoad(pool, backend string, outstanding int32, latencyEWMAus int64) {
	BackendOutstandingGauge.WithLabelValues(pool, backend).Set(float64(outstanding))
	BackendLatencyEWMAMicros.WithLabelValues(pool, backend).Set(float64(latencyEWMAus))
}

// RecordHealthCheck records an active health check outcome.
func RecordHealthCheck(backend, result string, durationSeconds float64) {
	HealthCheckResultsTotal.WithLabelValues(backend, result).Inc()
	HealthCheckDuration.WithLabelValues(backend).Observe(durationSeconds)
}

// SetBackendHealth publishes a backend's current health state as an integer
// gauge, matching the ordering of selector.Health.
func SetBackendHealth(backend string, state int) {
	BackendHealthGauge.WithLabelValues(backend).Set(float64(state))
}

// SetPoolBackendsUp publishes the number of selectable backends in a pool.
func SetPoolBackendsUp(pool string, count int) {
	PoolBackendsUpGauge.WithLabelValues(pool).Set(float64(count))
}

// RecordSelectionGeoTag records the advisory geo_tag resolved for the
// client address of a completed selection.
func RecordSelectionGeoTag(tag string) {
	SelectionGeoTagTotal.WithLabelValues(tag).Inc()
}

// RecordHealthTransition records a health FSM transition.
func RecordHealthTransition(backend, from, to string) {
	HealthTransitionsTotal.WithLabelValues(backend, from, to).Inc()
}

// RecordReload records a configuration reload attempt.
func RecordReload(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	ConfigReloadsTotal.WithLabelValues(result).Inc()
	if success {
		ConfigReloadTimestamp.SetToCurrentTime()
	}
}
