// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package core plumbs the routing components together. It applies the
// startup configuration and exposes the routing state over HTTP.
package core

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"

	"ribd/common/daemon"
	"ribd/common/httpserver"
	"ribd/common/reporter"
	"ribd/router/command"
	"ribd/router/interfaces"
	"ribd/router/vrf"
)

// Component represents the core component.
type Component struct {
	r      *reporter.Reporter
	d      *Dependencies
	config Configuration

	metrics metrics

	interfaces *interfaces.Table
	registry   *vrf.Registry
	startup    []startupCommands
}

type startupCommands struct {
	vrf      string
	commands []command.Command
}

// Dependencies define the dependencies of the core component.
type Dependencies struct {
	Daemon daemon.Component
	HTTP   *httpserver.Component
	Clock  clock.Clock
}

// New creates a new core component. Startup commands are decoded
// here to detect errors before starting.
func New(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Component, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	c := Component{
		r:          r,
		d:          &dependencies,
		config:     configuration,
		interfaces: interfaces.New(r),
	}
	seen := map[string]bool{}
	for _, vrfConfig := range configuration.VRFs {
		if seen[vrfConfig.Name] {
			return nil, fmt.Errorf("VRF %s configured twice", vrfConfig.Name)
		}
		seen[vrfConfig.Name] = true
		if err := vrf.ValidateName(vrfConfig.Name); err != nil {
			return nil, err
		}
		commands := make([]command.Command, 0, len(vrfConfig.Commands))
		for i, input := range vrfConfig.Commands {
			cmd, err := command.Decode(input)
			if err != nil {
				return nil, fmt.Errorf("VRF %s, command %d: %w", vrfConfig.Name, i+1, err)
			}
			commands = append(commands, cmd)
		}
		if !vrfConfig.Enabled {
			r.Info().Str("vrf", vrfConfig.Name).Msg("VRF disabled, skipping")
			continue
		}
		c.startup = append(c.startup, startupCommands{vrf: vrfConfig.Name, commands: commands})
	}
	registry, err := vrf.NewRegistry(r, configuration.Routing, vrf.Dependencies{
		Interfaces: c.interfaces,
		Clock:      dependencies.Clock,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot create VRF registry: %w", err)
	}
	c.registry = registry
	c.initMetrics()
	return &c, nil
}

// Start starts the core component.
func (c *Component) Start() error {
	c.r.Info().Msg("starting core component")
	for _, startup := range c.startup {
		ctx, err := c.registry.Get(startup.vrf)
		if err != nil {
			if ctx, err = c.registry.Create(startup.vrf); err != nil {
				return fmt.Errorf("cannot create VRF %s: %w", startup.vrf, err)
			}
		}
		if err := c.apply(ctx, startup.commands); err != nil {
			return fmt.Errorf("cannot configure VRF %s: %w", startup.vrf, err)
		}
	}

	c.r.RegisterHealthcheck("router", c.healthcheck)
	c.registerHTTPRoutes()
	return nil
}

// Stop stops the core component.
func (c *Component) Stop() error {
	defer c.r.Info().Msg("core component stopped")
	c.r.Info().Msg("stopping core component")
	return c.registry.Stop()
}

// Registry returns the registry of routing contexts.
func (c *Component) Registry() *vrf.Registry {
	return c.registry
}

// Interfaces returns the interface state table.
func (c *Component) Interfaces() *interfaces.Table {
	return c.interfaces
}

// apply applies commands to a routing context and accounts for them.
func (c *Component) apply(ctx *vrf.Context, commands []command.Command) error {
	err := command.ApplyAll(ctx, commands)
	if err != nil {
		c.metrics.commandErrors.WithLabelValues(ctx.Name()).Inc()
		return err
	}
	c.metrics.commands.WithLabelValues(ctx.Name()).Add(float64(len(commands)))
	return nil
}

func (c *Component) healthcheck(_ context.Context) reporter.HealthcheckResult {
	names := c.registry.Names()
	if len(names) == 0 {
		return reporter.HealthcheckResult{
			Status: reporter.HealthcheckError,
			Reason: "no routing context",
		}
	}
	return reporter.HealthcheckResult{
		Status: reporter.HealthcheckOK,
		Reason: fmt.Sprintf("%d routing contexts", len(names)),
	}
}
