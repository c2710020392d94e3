// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package bgp

import "ribd/common/reporter"

type metrics struct {
	messages    *reporter.CounterVec
	established *reporter.CounterVec
	dialErrors  *reporter.CounterVec
	sessionErrs *reporter.CounterVec
	prefixes    *reporter.GaugeVec
	denied      *reporter.CounterVec
	state       *reporter.GaugeVec
}

func (m *Manager) initMetrics() {
	m.metrics.messages = m.r.CounterVec(
		reporter.CounterOpts{
			Name: "messages_total",
			Help: "Number of BGP messages exchanged with a neighbor.",
		},
		[]string{"vrf", "neighbor", "direction", "type"},
	)
	m.metrics.established = m.r.CounterVec(
		reporter.CounterOpts{
			Name: "established_total",
			Help: "Number of times a session reached the established state.",
		},
		[]string{"vrf", "neighbor"},
	)
	m.metrics.dialErrors = m.r.CounterVec(
		reporter.CounterOpts{
			Name: "dial_errors_total",
			Help: "Number of failed connections to a neighbor.",
		},
		[]string{"vrf", "neighbor"},
	)
	m.metrics.sessionErrs = m.r.CounterVec(
		reporter.CounterOpts{
			Name: "session_errors_total",
			Help: "Number of sessions terminated on error.",
		},
		[]string{"vrf", "neighbor", "error"},
	)
	m.metrics.prefixes = m.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "received_prefixes",
			Help: "Number of prefixes accepted from a neighbor.",
		},
		[]string{"vrf", "neighbor"},
	)
	m.metrics.denied = m.r.CounterVec(
		reporter.CounterOpts{
			Name: "denied_prefixes_total",
			Help: "Number of prefixes rejected because of an AS path loop.",
		},
		[]string{"vrf", "neighbor"},
	)
	m.metrics.state = m.r.GaugeVec(
		reporter.GaugeOpts{
			Name: "sessions",
			Help: "Number of sessions in each state.",
		},
		[]string{"vrf", "state"},
	)
}
