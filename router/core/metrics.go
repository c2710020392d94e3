// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package core

import "ribd/common/reporter"

type metrics struct {
	commands      *reporter.CounterVec
	commandErrors *reporter.CounterVec
	apiErrors     *reporter.CounterVec
}

func (c *Component) initMetrics() {
	c.metrics.commands = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "commands_total",
			Help: "Number of configuration commands applied.",
		},
		[]string{"vrf"},
	)
	c.metrics.commandErrors = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "command_errors_total",
			Help: "Number of command batches rejected.",
		},
		[]string{"vrf"},
	)
	c.metrics.apiErrors = c.r.CounterVec(
		reporter.CounterOpts{
			Name: "api_errors_total",
			Help: "Number of API requests answered with an error.",
		},
		[]string{"status"},
	)
}
