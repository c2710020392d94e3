// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package vrf

import (
	"fmt"
	"net/netip"
	"sync"
	"time"

	"ribd/common/reporter"
	"ribd/router/bgp"
	"ribd/router/fib"
	"ribd/router/interfaces"
	"ribd/router/ospf"
	"ribd/router/rib"
	"ribd/router/routerid"
	"ribd/router/routing"
)

// Context is a routing context.
type Context struct {
	r       *reporter.Reporter
	name    string
	config  Configuration
	d       *Dependencies
	metrics *metrics
	unwatch func()
	// ignored logs routes rejected from neighbors
	ignored reporter.Logger

	mu         sync.Mutex
	closed     bool
	interfaces []interfaces.Interface
	fib        *fib.Table
	rib        *rib.RIB
	distances  rib.Distances
	statics    []StaticRoute

	bgp       *bgp.Manager
	bgpID     *routerid.Manager
	bgpRoutes map[netip.Addr]map[netip.Prefix]rib.Route

	ospf   *ospf.Instance
	ospfID *routerid.Manager
}

func newContext(reg *Registry, name string) *Context {
	c := Context{
		r:         reg.r,
		name:      name,
		config:    reg.config,
		d:         reg.d,
		metrics:   &reg.metrics,
		fib:       fib.New(reg.r, name),
		distances: rib.DefaultDistances(),
		ignored:   reg.r.Sample(reporter.BurstSampler(time.Minute, 10)).
			With().Str("vrf", name).Logger(),
	}
	c.rib = rib.New(reg.r, name, c.fib)
	return &c
}

// Name returns the name of the routing context.
func (c *Context) Name() string {
	return c.name
}

// lock locks the context and checks it is still alive.
func (c *Context) lock() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("VRF %s: %w", c.name, routing.ErrNotFound)
	}
	return nil
}

// close stops the protocol instances and withdraws all routes.
func (c *Context) close() {
	c.unwatch()
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	manager := c.detachBGP()
	if c.ospf != nil {
		c.detachOSPF()
	}
	for _, s := range c.statics {
		c.rib.Withdraw(s.Prefix, s.key())
	}
	c.statics = nil
	for _, iface := range c.interfaces {
		c.rib.SetInterfaceState(iface.Name, false)
	}
	c.mu.Unlock()
	if manager != nil {
		manager.Stop()
	}
}

// vrfName returns the name used in the configuration: empty for the
// default context.
func (c *Context) vrfName() string {
	if c.name == DefaultName {
		return ""
	}
	return c.name
}

// Routes returns the RIB entries of a family.
func (c *Context) Routes(family routing.Family) ([]rib.Entry, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.rib.Routes(family), nil
}

// Lookup returns the RIB entries for a prefix.
func (c *Context) Lookup(prefix netip.Prefix) ([]rib.Entry, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return c.rib.Lookup(prefix), nil
}

// Forwarding returns the forwarding table of a family.
func (c *Context) Forwarding(family routing.Family) []fib.Route {
	return c.fib.Routes(family)
}

// Resolve returns the forwarding entry used to reach an address.
func (c *Context) Resolve(addr netip.Addr) (fib.Route, bool) {
	return c.fib.Lookup(addr)
}

// RouterIDs returns the effective router identifier of each protocol
// instance.
func (c *Context) RouterIDs() (map[string]netip.Addr, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	result := map[string]netip.Addr{}
	if c.bgpID != nil {
		result["bgp"] = c.bgpID.Effective()
	}
	if c.ospfID != nil {
		result["ospf"] = c.ospfID.Effective()
	}
	return result, nil
}
