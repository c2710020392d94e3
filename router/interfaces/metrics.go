// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package interfaces

import "ribd/common/reporter"

type metrics struct {
	events      *reporter.CounterVec
	operChanges *reporter.CounterVec
}

func (t *Table) initMetrics() {
	t.metrics.events = t.r.CounterVec(
		reporter.CounterOpts{
			Name: "events_total",
			Help: "Number of interface events notified.",
		},
		[]string{"kind"},
	)
	t.metrics.operChanges = t.r.CounterVec(
		reporter.CounterOpts{
			Name: "oper_changes_total",
			Help: "Number of operational state changes.",
		},
		[]string{"vrf"},
	)
}
