// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package vrf

import (
	"fmt"
	"net/netip"

	"ribd/router/ospf"
	"ribd/router/rib"
	"ribd/router/routerid"
	"ribd/router/routing"
)

// CreateOSPF creates the OSPF instance of the routing context. The
// instance number is 0 when not set. Creating it again with the same
// number does nothing. Creating it with another number is rejected
// with ErrResourceExceeded.
func (c *Context) CreateOSPF(instance uint16) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.ospf != nil {
		if c.ospf.Instance() == instance {
			return nil
		}
		return fmt.Errorf("%w: OSPF instance already running in VRF %s",
			routing.ErrResourceExceeded, c.name)
	}
	c.ospf = ospf.New(c.r, c.name, instance)
	c.ospfID = routerid.New(c.r, c.name, "ospf", nil)
	c.ospfID.Recompute(c.interfaces)
	c.r.Info().Str("vrf", c.name).Msg("OSPF instance created")
	return nil
}

// DeleteOSPF deletes the OSPF instance and its routes.
func (c *Context) DeleteOSPF(instance uint16) error {
	return c.withOSPF(func(i *ospf.Instance) error {
		if i.Instance() != instance {
			return fmt.Errorf("OSPF instance %d: %w", instance, routing.ErrNotFound)
		}
		c.detachOSPF()
		c.r.Info().Str("vrf", c.name).Msg("OSPF instance deleted")
		return nil
	})
}

// detachOSPF removes the OSPF instance and its routes. The lock should
// be held.
func (c *Context) detachOSPF() {
	for _, route := range c.ospf.Flush() {
		c.rib.Withdraw(route.Prefix, ospfKey(route.NextHop))
	}
	c.ospf = nil
	c.ospfID = nil
}

func (c *Context) withOSPF(fn func(i *ospf.Instance) error) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.ospf == nil {
		return fmt.Errorf("OSPF instance in VRF %s: %w", c.name, routing.ErrNotFound)
	}
	return fn(c.ospf)
}

func ospfKey(nextHop netip.Addr) rib.Key {
	return rib.Key{Source: rib.SourceOSPF, NextHop: nextHop}
}

// SetOSPFRouterID configures the OSPF router identifier.
func (c *Context) SetOSPFRouterID(id netip.Addr) error {
	return c.withOSPF(func(*ospf.Instance) error {
		return c.ospfID.Configure(id, c.interfaces)
	})
}

// UnsetOSPFRouterID removes the configured OSPF router identifier.
func (c *Context) UnsetOSPFRouterID() error {
	return c.withOSPF(func(*ospf.Instance) error {
		c.ospfID.Unconfigure(c.interfaces)
		return nil
	})
}

// OSPFRouterID returns the effective OSPF router identifier.
func (c *Context) OSPFRouterID() (netip.Addr, error) {
	var id netip.Addr
	err := c.withOSPF(func(*ospf.Instance) error {
		id = c.ospfID.Effective()
		return nil
	})
	return id, err
}

// AddOSPFNetwork adds an OSPF network statement.
func (c *Context) AddOSPFNetwork(prefix netip.Prefix, area ospf.Area) error {
	return c.withOSPF(func(i *ospf.Instance) error {
		return i.AddNetwork(prefix, area)
	})
}

// RemoveOSPFNetwork removes an OSPF network statement.
func (c *Context) RemoveOSPFNetwork(prefix netip.Prefix, area ospf.Area) error {
	return c.withOSPF(func(i *ospf.Instance) error {
		return i.RemoveNetwork(prefix, area)
	})
}

// LearnOSPF injects a route computed by the OSPF engine.
func (c *Context) LearnOSPF(route ospf.Route) error {
	return c.withOSPF(func(i *ospf.Instance) error {
		route, err := i.Learn(route)
		if err != nil {
			return err
		}
		if err := c.rib.Add(rib.Route{
			Prefix:   route.Prefix,
			NextHop:  route.NextHop,
			Source:   rib.SourceOSPF,
			Distance: c.distances.OSPF,
			Metric:   route.Cost,
		}); err != nil {
			i.Forget(route.Prefix, route.NextHop)
			return err
		}
		return nil
	})
}

// ForgetOSPF removes a route computed by the OSPF engine.
func (c *Context) ForgetOSPF(prefix netip.Prefix, nextHop netip.Addr) error {
	return c.withOSPF(func(i *ospf.Instance) error {
		if err := i.Forget(prefix, nextHop); err != nil {
			return err
		}
		return c.rib.Withdraw(prefix, ospfKey(nextHop))
	})
}

// OSPFRoutes returns the routes injected by the OSPF engine.
func (c *Context) OSPFRoutes() ([]ospf.Route, error) {
	var routes []ospf.Route
	err := c.withOSPF(func(i *ospf.Instance) error {
		routes = i.Routes()
		return nil
	})
	return routes, err
}
