// Opsgate - Session and Role Authorization Gateway for the Lalaba Admin Console
// Copyright 2026 Lalaba Dev Team
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/lalaba-dev/opsgate

package guard

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// guardDecisions counts route guard outcomes.
// Labels:
//   - decision: "render", "loading", "redirect_login", "redirect_unauthorized"
var guardDecisions = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "opsgate_guard_decisions_total",
		Help: "Total number of route guard decisions by outcome",
	},
	[]string{"decision"},
)
