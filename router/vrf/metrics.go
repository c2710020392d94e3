// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package vrf

import "ribd/common/reporter"

type metrics struct {
	contexts reporter.Gauge
	rejected *reporter.CounterVec
}

func (reg *Registry) initMetrics() {
	reg.metrics.contexts = reg.r.Gauge(
		reporter.GaugeOpts{
			Name: "contexts",
			Help: "Number of routing contexts.",
		},
	)
	reg.metrics.rejected = reg.r.CounterVec(
		reporter.CounterOpts{
			Name: "stale_updates_total",
			Help: "Number of route updates discarded because their session was superseded.",
		},
		[]string{"vrf"},
	)
}
