// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package fib implements the forwarding table of a routing context.
// It receives the selected routes from the RIB and answers longest
// prefix match lookups.
package fib

import (
	"net/netip"
	"slices"
	"sync"

	"github.com/kentik/patricia"
	tree "github.com/kentik/patricia/generics_tree"

	"ribd/common/reporter"
	"ribd/router/routing"
)

// Route is an installed route.
type Route struct {
	Prefix  netip.Prefix    `json:"prefix"`
	NextHop routing.NextHop `json:"nexthop"`
}

// Table is a forwarding table for both address families. Internally,
// everything is stored in a single tree, using v6-mapped IPv4
// addresses.
type Table struct {
	r       *reporter.Reporter
	vrf     string
	metrics metrics

	mu     sync.RWMutex
	tree   *tree.TreeV6[Route]
	routes map[netip.Prefix]Route
}

// New creates a new forwarding table.
func New(r *reporter.Reporter, vrf string) *Table {
	t := Table{
		r:      r,
		vrf:    vrf,
		tree:   tree.NewTreeV6[Route](),
		routes: map[netip.Prefix]Route{},
	}
	t.initMetrics()
	return &t
}

func treeAddress(prefix netip.Prefix) patricia.IPv6Address {
	addr := prefix.Addr()
	bits := prefix.Bits()
	if addr.Is4() {
		bits += 96
	}
	ip := addr.As16()
	return patricia.NewIPv6Address(ip[:], uint(bits))
}

func samePrefix(r1, r2 Route) bool {
	return r1.Prefix == r2.Prefix
}

// Install installs or replaces a route. Installing the same route
// twice is a no-op.
func (t *Table) Install(family routing.Family, prefix netip.Prefix, nh routing.NextHop) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix = prefix.Masked()
	current, ok := t.routes[prefix]
	if ok && current.NextHop == nh {
		return
	}
	route := Route{Prefix: prefix, NextHop: nh}
	t.tree.Set(treeAddress(prefix), route)
	t.routes[prefix] = route
	if !ok {
		t.metrics.routes.WithLabelValues(t.vrf, family.String()).Inc()
	}
	t.metrics.operations.WithLabelValues(t.vrf, family.String(), "install").Inc()
	t.r.Debug().
		Str("vrf", t.vrf).
		Stringer("prefix", prefix).
		Stringer("nexthop", nh).
		Msg("route installed")
}

// Withdraw removes a route. Withdrawing a missing route is a no-op.
func (t *Table) Withdraw(family routing.Family, prefix netip.Prefix) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prefix = prefix.Masked()
	current, ok := t.routes[prefix]
	if !ok {
		return
	}
	t.tree.Delete(treeAddress(prefix), samePrefix, current)
	delete(t.routes, prefix)
	t.metrics.routes.WithLabelValues(t.vrf, family.String()).Dec()
	t.metrics.operations.WithLabelValues(t.vrf, family.String(), "withdraw").Inc()
	t.r.Debug().
		Str("vrf", t.vrf).
		Stringer("prefix", prefix).
		Msg("route withdrawn")
}

// Lookup returns the route matching the provided address using the
// longest prefix match.
func (t *Table) Lookup(addr netip.Addr) (Route, bool) {
	addr = addr.Unmap()
	is4 := addr.Is4()
	ip := addr.As16()
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, routes := t.tree.FindDeepestTagsWithFilter(patricia.NewIPv6Address(ip[:], 128),
		func(route Route) bool {
			// ::/0 should not match IPv4 addresses
			return route.Prefix.Addr().Is4() == is4
		})
	if len(routes) == 0 {
		return Route{}, false
	}
	return routes[0], true
}

// Routes returns the installed routes of a family, sorted by prefix.
func (t *Table) Routes(family routing.Family) []Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := []Route{}
	for prefix, route := range t.routes {
		if routing.FamilyOf(prefix.Addr()) == family {
			result = append(result, route)
		}
	}
	slices.SortFunc(result, func(a, b Route) int {
		return routing.ComparePrefixes(a.Prefix, b.Prefix)
	})
	return result
}
