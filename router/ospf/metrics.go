// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ospf

import "ribd/common/reporter"

type metrics struct {
	routes *reporter.GaugeVec
}

func (i *Instance) initMetrics() {
	i.metrics.routes = i.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "routes",
			Help: "Number of routes learned from the OSPF engine.",
		},
		[]string{"vrf"},
	)
}
