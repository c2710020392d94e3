// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package fib

import "ribd/common/reporter"

type metrics struct {
	routes     *reporter.GaugeVec
	operations *reporter.CounterVec
}

func (t *Table) initMetrics() {
	t.metrics.routes = t.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "routes",
			Help: "Number of installed routes.",
		},
		[]string{"vrf", "family"},
	)
	t.metrics.operations = t.r.CounterVec(
		reporter.CounterOpts{
			Name: "operations_total",
			Help: "Number of forwarding table changes.",
		},
		[]string{"vrf", "family", "operation"},
	)
}
