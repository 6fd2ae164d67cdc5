// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package session

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// resolutionsTotal counts role resolution outcomes.
	// Labels:
	//   - outcome: "resolved", "failed", "stale_discarded"
	resolutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsgate_role_resolutions_total",
			Help: "Total number of role resolution attempts by outcome",
		},
		[]string{"outcome"},
	)

	// resolutionFailures counts failures by resolution reason.
	resolutionFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsgate_role_resolution_failures_total",
			Help: "Total number of role resolution failures by reason",
		},
		[]string{"reason"},
	)

	// resolutionDuration measures role lookup latency.
	resolutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "opsgate_role_resolution_duration_seconds",
			Help:    "Duration of role resolution lookups in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	// logoutsTotal counts optimistic logouts initiated through the store.
	logoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "opsgate_logouts_total",
			Help: "Total number of logouts initiated through the session store",
		},
	)

	// cacheOperations counts durable role-cache operations.
	// Labels:
	//   - operation: "store", "clear", "load"
	//   - outcome: "success", "failure", "empty"
	cacheOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "opsgate_role_cache_operations_total",
			Help: "Total number of durable role cache operations",
		},
		[]string{"operation", "outcome"},
	)
)
