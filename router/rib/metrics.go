// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package rib

import "ribd/common/reporter"

type metrics struct {
	routes   *reporter.GaugeVec
	selected *reporter.GaugeVec
	changes  *reporter.CounterVec
}

func (rib *RIB) initMetrics() {
	rib.metrics.routes = rib.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "routes",
			Help: "Number of candidate routes.",
		},
		[]string{"vrf", "family", "source"},
	)
	rib.metrics.selected = rib.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "selected_routes",
			Help: "Number of prefixes with a selected route.",
		},
		[]string{"vrf", "family"},
	)
	rib.metrics.changes = rib.r.CounterVec(
		reporter.CounterOpts{
			Name: "selection_changes_total",
			Help: "Number of changes pushed to the forwarding table.",
		},
		[]string{"vrf", "family"},
	)
}
