// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package vrf

import (
	"fmt"
	"net/netip"
	"slices"

	"ribd/router/interfaces"
	"ribd/router/rib"
	"ribd/router/routing"
)

// interfaceEvent is called by the interface table, with its lock held.
func (c *Context) interfaceEvent(e interfaces.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.interfaces = e.Interfaces
	switch e.Kind {
	case interfaces.Synchronized:
		for _, iface := range e.Interfaces {
			c.rib.SetInterfaceState(iface.Name, iface.OperUp())
			for _, prefix := range iface.Addresses {
				c.addConnected(iface.Name, prefix)
			}
		}
	case interfaces.InterfaceAdded, interfaces.StateChanged:
		c.rib.SetInterfaceState(e.Interface.Name, e.Interface.OperUp())
	case interfaces.InterfaceRemoved:
		c.rib.SetInterfaceState(e.Interface.Name, false)
	case interfaces.AddressAdded:
		c.addConnected(e.Interface.Name, e.Prefix)
	case interfaces.AddressRemoved:
		// Another address of the interface may use the same subnet
		if !slices.ContainsFunc(e.Interface.Addresses, func(p netip.Prefix) bool {
			return p.Masked() == e.Prefix.Masked()
		}) {
			c.rib.Withdraw(e.Prefix.Masked(), rib.Key{
				Source:    rib.SourceConnected,
				Interface: e.Interface.Name,
			})
		}
	}
	c.recomputeRouterIDs()
}

// addConnected adds the connected route for an interface address. The
// lock should be held.
func (c *Context) addConnected(name string, prefix netip.Prefix) {
	if err := c.rib.Add(rib.Route{
		Prefix:    prefix.Masked(),
		Interface: name,
		Source:    rib.SourceConnected,
		Distance:  c.distances.Connected,
	}); err != nil {
		c.r.Err(err).Str("vrf", c.name).Str("interface", name).Msg("cannot add connected route")
	}
}

// recomputeRouterIDs updates the router identifiers of the protocol
// instances. The lock should be held.
func (c *Context) recomputeRouterIDs() {
	if c.bgpID != nil {
		c.bgpID.Recompute(c.interfaces)
	}
	if c.ospfID != nil {
		c.ospfID.Recompute(c.interfaces)
	}
}

// Interfaces returns the interfaces bound to the routing context,
// ordered by index.
func (c *Context) Interfaces() ([]interfaces.Interface, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return slices.Clone(c.interfaces), nil
}

// The following operations go through the interface table, which
// notifies the context. They should not be called with the context
// lock held.

// AddInterface creates an interface bound to the routing context.
func (c *Context) AddInterface(name string) error {
	return c.d.Interfaces.Add(name, c.name)
}

// RemoveInterface deletes an interface of the routing context.
func (c *Context) RemoveInterface(name string) error {
	if err := c.owns(name); err != nil {
		return err
	}
	return c.d.Interfaces.Remove(name)
}

// SetInterfaceShutdown changes the administrative state of an
// interface of the routing context.
func (c *Context) SetInterfaceShutdown(name string, shutdown bool) error {
	if err := c.owns(name); err != nil {
		return err
	}
	return c.d.Interfaces.SetAdminState(name, !shutdown)
}

// AddInterfaceAddress adds an address to an interface of the routing
// context.
func (c *Context) AddInterfaceAddress(name string, prefix netip.Prefix) error {
	if err := c.owns(name); err != nil {
		return err
	}
	return c.d.Interfaces.AddAddress(name, prefix)
}

// RemoveInterfaceAddress removes an address from an interface of the
// routing context.
func (c *Context) RemoveInterfaceAddress(name string, prefix netip.Prefix) error {
	if err := c.owns(name); err != nil {
		return err
	}
	return c.d.Interfaces.RemoveAddress(name, prefix)
}

func (c *Context) owns(name string) error {
	iface, ok := c.d.Interfaces.Get(name)
	if !ok || iface.VRF != c.name {
		return fmt.Errorf("interface %s in VRF %s: %w", name, c.name, routing.ErrNotFound)
	}
	return nil
}
