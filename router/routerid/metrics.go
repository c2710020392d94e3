// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package routerid

import "ribd/common/reporter"

type metrics struct {
	changes *reporter.CounterVec
}

func (m *Manager) initMetrics() {
	m.metrics.changes = m.r.CounterVec(
		reporter.CounterOpts{
			Name: "changes_total",
			Help: "Number of router identifier changes.",
		},
		[]string{"vrf", "protocol"},
	)
}
