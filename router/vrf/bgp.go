// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package vrf

import (
	"fmt"
	"net/netip"

	"ribd/router/bgp"
	"ribd/router/rib"
	"ribd/router/routerid"
	"ribd/router/routing"
)

// CreateBGP creates the BGP instance of the routing context. Creating
// it again with the same AS number does nothing. Creating it with
// another AS number is rejected with ErrResourceExceeded.
func (c *Context) CreateBGP(asn uint32) error {
	if err := bgp.ValidateASN(asn); err != nil {
		return err
	}
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.bgp != nil {
		if c.bgp.ASN() == asn {
			return nil
		}
		return fmt.Errorf("%w: BGP instance %d already running in VRF %s",
			routing.ErrResourceExceeded, c.bgp.ASN(), c.name)
	}
	manager, err := bgp.New(c.r, c.name, asn, c.config.BGP, bgp.Dependencies{
		Sink:  c,
		Clock: c.d.Clock,
	})
	if err != nil {
		return err
	}
	c.bgp = manager
	c.bgpRoutes = map[netip.Addr]map[netip.Prefix]rib.Route{}
	c.bgpID = routerid.New(c.r, c.name, "bgp", manager.SetRouterID)
	c.bgpID.Recompute(c.interfaces)
	c.r.Info().Str("vrf", c.name).Uint32("asn", asn).Msg("BGP instance created")
	return nil
}

// DeleteBGP deletes the BGP instance. It waits for the sessions to
// terminate.
func (c *Context) DeleteBGP(asn uint32) error {
	if err := c.lock(); err != nil {
		return err
	}
	if c.bgp == nil || c.bgp.ASN() != asn {
		c.mu.Unlock()
		return fmt.Errorf("BGP instance %d: %w", asn, routing.ErrNotFound)
	}
	manager := c.detachBGP()
	c.mu.Unlock()
	// Sessions may be waiting for the context lock.
	manager.Stop()
	c.r.Info().Str("vrf", c.name).Uint32("asn", asn).Msg("BGP instance deleted")
	return nil
}

// detachBGP removes the BGP instance and its routes. The caller should
// stop the returned instance once the lock is released.
func (c *Context) detachBGP() *bgp.Manager {
	manager := c.bgp
	if manager == nil {
		return nil
	}
	for peer := range c.bgpRoutes {
		c.flushPeer(peer)
	}
	c.bgp = nil
	c.bgpID = nil
	c.bgpRoutes = nil
	return manager
}

// withBGP runs a function on the BGP instance with the lock held.
// Routes of neighbors reset by the function are flushed.
func (c *Context) withBGP(fn func(m *bgp.Manager) error) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if c.bgp == nil {
		return fmt.Errorf("BGP instance in VRF %s: %w", c.name, routing.ErrNotFound)
	}
	err := fn(c.bgp)
	for _, peer := range c.bgp.Resets() {
		c.flushPeer(peer)
	}
	return err
}

// SetRouterID configures the BGP router identifier.
func (c *Context) SetRouterID(id netip.Addr) error {
	return c.withBGP(func(*bgp.Manager) error {
		return c.bgpID.Configure(id, c.interfaces)
	})
}

// UnsetRouterID removes the configured BGP router identifier. The
// identifier is derived from interfaces again.
func (c *Context) UnsetRouterID() error {
	return c.withBGP(func(*bgp.Manager) error {
		c.bgpID.Unconfigure(c.interfaces)
		return nil
	})
}

// RouterID returns the effective BGP router identifier.
func (c *Context) RouterID() (netip.Addr, error) {
	var id netip.Addr
	err := c.withBGP(func(*bgp.Manager) error {
		id = c.bgpID.Effective()
		return nil
	})
	return id, err
}

// SetTimers sets the instance-level BGP timers.
func (c *Context) SetTimers(timers bgp.Timers) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.SetTimers(timers)
	})
}

// UnsetTimers reverts the instance-level BGP timers to the defaults.
func (c *Context) UnsetTimers() error {
	return c.withBGP(func(m *bgp.Manager) error {
		m.UnsetTimers()
		return nil
	})
}

// SetBGPDistance changes the distances of BGP routes. Known routes
// are updated.
func (c *Context) SetBGPDistance(distances bgp.Distances) error {
	return c.withBGP(func(m *bgp.Manager) error {
		if err := m.SetDistances(distances); err != nil {
			return err
		}
		for _, routes := range c.bgpRoutes {
			for prefix, route := range routes {
				route.Distance = c.bgpDistance(route.PeerAS == m.ASN())
				routes[prefix] = route
				c.rib.Add(route)
			}
		}
		return nil
	})
}

// AddNeighbor creates a neighbor or changes its remote AS.
func (c *Context) AddNeighbor(addr netip.Addr, remoteAS uint32) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.AddNeighbor(addr, remoteAS)
	})
}

// RemoveNeighbor deletes a neighbor and the routes learned from it.
func (c *Context) RemoveNeighbor(addr netip.Addr) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.RemoveNeighbor(addr)
	})
}

// UpdateNeighbor changes the options of a neighbor.
func (c *Context) UpdateNeighbor(addr netip.Addr, fn func(*bgp.NeighborConfig)) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.UpdateNeighbor(addr, fn)
	})
}

// BindNeighbor puts a neighbor in a peer group.
func (c *Context) BindNeighbor(addr netip.Addr, group string) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.BindNeighbor(addr, group)
	})
}

// AddPeerGroup creates a peer group.
func (c *Context) AddPeerGroup(name string) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.AddPeerGroup(name)
	})
}

// SetPeerGroupRemoteAS sets the remote AS of a peer group.
func (c *Context) SetPeerGroupRemoteAS(name string, remoteAS uint32) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.SetPeerGroupRemoteAS(name, remoteAS)
	})
}

// RemovePeerGroup deletes a peer group.
func (c *Context) RemovePeerGroup(name string) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.RemovePeerGroup(name)
	})
}

// AddNetwork adds a BGP network statement.
func (c *Context) AddNetwork(prefix netip.Prefix) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.AddNetwork(prefix)
	})
}

// RemoveNetwork removes a BGP network statement.
func (c *Context) RemoveNetwork(prefix netip.Prefix) error {
	return c.withBGP(func(m *bgp.Manager) error {
		return m.RemoveNetwork(prefix)
	})
}

// Neighbors returns the status of the BGP neighbors.
func (c *Context) Neighbors() ([]bgp.Status, error) {
	var result []bgp.Status
	err := c.withBGP(func(m *bgp.Manager) error {
		result = m.Neighbors()
		return nil
	})
	return result, err
}

// Neighbor returns the status of a BGP neighbor.
func (c *Context) Neighbor(addr netip.Addr) (bgp.Status, error) {
	var result bgp.Status
	err := c.withBGP(func(m *bgp.Manager) error {
		status, ok := m.Neighbor(addr)
		if !ok {
			return fmt.Errorf("neighbor %s: %w", addr, routing.ErrNotFound)
		}
		result = status
		return nil
	})
	return result, err
}

// LearnRoutes is called by BGP sessions with the routes they receive.
func (c *Context) LearnRoutes(peer netip.Addr, generation uint64, internal bool, announced []bgp.Path, withdrawn []netip.Prefix) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.bgp == nil || !c.bgp.Current(peer, generation) {
		c.metrics.rejected.WithLabelValues(c.name).Inc()
		return
	}
	routes := c.bgpRoutes[peer]
	if routes == nil {
		routes = map[netip.Prefix]rib.Route{}
		c.bgpRoutes[peer] = routes
	}
	for _, prefix := range withdrawn {
		if route, ok := routes[prefix]; ok {
			c.rib.Withdraw(prefix, route.Key())
			delete(routes, prefix)
		}
	}
	for _, path := range announced {
		route := rib.Route{
			Prefix:  path.Prefix,
			NextHop: path.NextHop,
			Source:  rib.SourceBGP,
			Peer:    peer,
			ASPath:  path.ASPath,
			Metric:  path.MED,
		}
		switch {
		case internal:
			route.PeerAS = c.bgp.ASN()
		case len(path.ASPath) > 0:
			route.PeerAS = path.ASPath[0]
		}
		route.Distance = c.bgpDistance(internal)
		if previous, ok := routes[path.Prefix]; ok && previous.Key() != route.Key() {
			c.rib.Withdraw(path.Prefix, previous.Key())
		}
		if err := c.rib.Add(route); err != nil {
			c.ignored.Debug().Err(err).Stringer("peer", peer).Msg("route from neighbor ignored")
			delete(routes, path.Prefix)
			continue
		}
		routes[path.Prefix] = route
	}
}

// SessionDown is called by BGP sessions when they are lost.
func (c *Context) SessionDown(peer netip.Addr, generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.bgp == nil || !c.bgp.Current(peer, generation) {
		return
	}
	c.flushPeer(peer)
}

// flushPeer removes the routes learned from a neighbor. The lock
// should be held.
func (c *Context) flushPeer(peer netip.Addr) {
	delete(c.bgpRoutes, peer)
	c.rib.FlushPeer(peer)
}

// bgpDistance returns the distance of a BGP route. The lock should be
// held.
func (c *Context) bgpDistance(internal bool) uint8 {
	distances := c.bgp.Distances()
	if internal {
		return distances.Internal
	}
	return distances.External
}
