// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package rib implements the routing information base of a routing
// context. For each prefix of each family, it keeps the candidate
// routes from all sources and selects the best one, which is pushed to
// the forwarding table.
//
// Ranking uses, in order: next hop reachability, administrative
// distance, metric, next hop address, source, BGP peer and interface
// name. This is a total order: selection does not depend on the order
// routes were added.
//
// Next hops are resolved through the prefixes having a reachable
// non-BGP route, excluding the route's own prefix. Static and OSPF
// routes may resolve through each other. BGP routes never resolve
// through BGP routes. Unresolved routes are kept as inactive and
// reevaluated when the resolution table changes.
//
// The RIB is not safe for concurrent use: the routing context
// serializes all accesses.
package rib

import (
	"fmt"
	"net/netip"
	"slices"

	"github.com/gaissmai/bart"

	"ribd/common/reporter"
	"ribd/router/routing"
)

// RIB is the routing information base of a routing context.
type RIB struct {
	r         *reporter.Reporter
	vrf       string
	forwarder Forwarder
	metrics   metrics

	tables [2]*bart.Table[*destination]
	// igp contains prefixes with a reachable non-BGP route.
	igp [2]*bart.Table[struct{}]
	// up tracks interfaces operationally up.
	up map[string]bool
}

type destination struct {
	prefix    netip.Prefix
	entries   []*entry
	selected  *entry
	installed *routing.NextHop
	// inIGP mirrors membership in the IGP table.
	inIGP bool
}

type entry struct {
	Route
	reachable bool
	evaluated bool
}

// New creates a new RIB pushing selected routes to the provided
// forwarder.
func New(r *reporter.Reporter, vrf string, forwarder Forwarder) *RIB {
	rib := RIB{
		r:         r,
		vrf:       vrf,
		forwarder: forwarder,
		up:        make(map[string]bool),
	}
	for _, f := range routing.Families {
		rib.tables[f] = &bart.Table[*destination]{}
		rib.igp[f] = &bart.Table[struct{}]{}
	}
	rib.initMetrics()
	return &rib
}

// Add adds or replaces a candidate route. Only the prefix of the route
// is reevaluated, unless resolution of other prefixes depends on it.
func (rib *RIB) Add(route Route) error {
	prefix, err := routing.CanonicalPrefix(route.Prefix)
	if err != nil {
		return err
	}
	route.Prefix = prefix
	if route.NextHop.IsValid() && route.NextHop.Is4() != prefix.Addr().Is4() {
		return routing.Rejectf("next hop %s does not match family of %s", route.NextHop, prefix)
	}
	if route.Source != SourceConnected && !route.NextHop.IsValid() && route.Interface == "" {
		return routing.Rejectf("route to %s needs a next hop or an interface", prefix)
	}
	f := route.Family()
	dest, ok := rib.tables[f].Get(prefix)
	if !ok {
		dest = &destination{prefix: prefix}
		rib.tables[f].Insert(prefix, dest)
	}
	key := route.Key()
	idx := slices.IndexFunc(dest.entries, func(e *entry) bool { return e.Key() == key })
	if idx >= 0 {
		dest.entries[idx].Route = route
	} else {
		dest.entries = append(dest.entries, &entry{Route: route})
		rib.metrics.routes.WithLabelValues(rib.vrf, f.String(), route.Source.String()).Inc()
	}
	rib.refresh(f, []*destination{dest})
	return nil
}

// Withdraw removes a candidate route.
func (rib *RIB) Withdraw(prefix netip.Prefix, key Key) error {
	prefix, err := routing.CanonicalPrefix(prefix)
	if err != nil {
		return err
	}
	f := routing.FamilyOf(prefix.Addr())
	dest, ok := rib.tables[f].Get(prefix)
	if !ok || !dest.remove(func(e *entry) bool { return e.Key() == key }, rib.removed(f)) {
		return fmt.Errorf("%s route to %s: %w", key.Source, prefix, routing.ErrNotFound)
	}
	rib.refresh(f, []*destination{dest})
	return nil
}

// FlushPeer removes all the routes learned from a BGP neighbor. It
// returns the number of removed routes.
func (rib *RIB) FlushPeer(peer netip.Addr) int {
	count := 0
	for _, f := range routing.Families {
		var seeds []*destination
		rib.walk(f, func(dest *destination) {
			before := len(dest.entries)
			if dest.remove(func(e *entry) bool {
				return e.Source == SourceBGP && e.Peer == peer
			}, rib.removed(f)) {
				count += before - len(dest.entries)
				seeds = append(seeds, dest)
			}
		})
		rib.refresh(f, seeds)
	}
	if count > 0 {
		rib.r.Info().
			Str("vrf", rib.vrf).
			Stringer("peer", peer).
			Int("routes", count).
			Msg("routes from neighbor flushed")
	}
	return count
}

// SetInterfaceState records the operational state of an interface and
// reevaluates the routes using it.
func (rib *RIB) SetInterfaceState(name string, up bool) {
	if rib.up[name] == up {
		return
	}
	if up {
		rib.up[name] = true
	} else {
		delete(rib.up, name)
	}
	for _, f := range routing.Families {
		var seeds []*destination
		rib.walk(f, func(dest *destination) {
			if slices.ContainsFunc(dest.entries, func(e *entry) bool { return e.Interface == name }) {
				seeds = append(seeds, dest)
			}
		})
		rib.refresh(f, seeds)
	}
}

// Routes returns all the entries of a family, sorted by prefix. For a
// given prefix, the selected entry comes first.
func (rib *RIB) Routes(f routing.Family) []Entry {
	result := []Entry{}
	var dests []*destination
	rib.walk(f, func(dest *destination) { dests = append(dests, dest) })
	slices.SortFunc(dests, func(a, b *destination) int {
		return routing.ComparePrefixes(a.prefix, b.prefix)
	})
	for _, dest := range dests {
		result = append(result, dest.dump()...)
	}
	return result
}

// Lookup returns the entries for a prefix.
func (rib *RIB) Lookup(prefix netip.Prefix) []Entry {
	prefix, err := routing.CanonicalPrefix(prefix)
	if err != nil {
		return nil
	}
	dest, ok := rib.tables[routing.FamilyOf(prefix.Addr())].Get(prefix)
	if !ok {
		return nil
	}
	return dest.dump()
}

// Selected returns the selected route for a prefix.
func (rib *RIB) Selected(prefix netip.Prefix) (Route, bool) {
	prefix, err := routing.CanonicalPrefix(prefix)
	if err != nil {
		return Route{}, false
	}
	dest, ok := rib.tables[routing.FamilyOf(prefix.Addr())].Get(prefix)
	if !ok || dest.selected == nil {
		return Route{}, false
	}
	return dest.selected.Route, true
}

func (rib *RIB) removed(f routing.Family) func(*entry) {
	return func(e *entry) {
		rib.metrics.routes.WithLabelValues(rib.vrf, f.String(), e.Source.String()).Dec()
	}
}

// walk calls the provided function on each destination of a family.
// The function should not add or remove destinations.
func (rib *RIB) walk(f routing.Family, fn func(*destination)) {
	all := rib.tables[f].All4
	if f == routing.IPv6 {
		all = rib.tables[f].All6
	}
	for _, dest := range all() {
		fn(dest)
	}
}

func (dest *destination) remove(match func(*entry) bool, removed func(*entry)) bool {
	found := false
	dest.entries = slices.DeleteFunc(dest.entries, func(e *entry) bool {
		if match(e) {
			removed(e)
			found = true
			return true
		}
		return false
	})
	return found
}

func (dest *destination) dump() []Entry {
	result := make([]Entry, 0, len(dest.entries))
	for _, e := range dest.entries {
		result = append(result, Entry{
			Route:     e.Route,
			Reachable: e.reachable,
			Selected:  e == dest.selected,
		})
	}
	slices.SortStableFunc(result, func(a, b Entry) int {
		if a.Selected != b.Selected {
			if a.Selected {
				return -1
			}
			return 1
		}
		return compare(a.Route, a.Reachable, b.Route, b.Reachable)
	})
	return result
}
