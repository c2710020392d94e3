// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package rib

import (
	"cmp"
	"net/netip"
	"slices"

	"ribd/router/routing"
)

// refresh reevaluates the provided destinations, then the
// destinations whose resolution depends on the IGP table when it
// changed. Selections are applied once everything has been evaluated.
func (rib *RIB) refresh(f routing.Family, seeds []*destination) {
	if len(seeds) == 0 {
		return
	}
	touched := map[*destination]struct{}{}
	igpChanged := false
	for _, dest := range seeds {
		igpChanged = rib.evaluate(f, dest) || igpChanged
		touched[dest] = struct{}{}
	}
	if igpChanged {
		rib.resolveIGP(f, touched)
		rib.walk(f, func(dest *destination) {
			if dest.has(SourceBGP) {
				rib.evaluate(f, dest)
				touched[dest] = struct{}{}
			}
		})
	}

	ordered := make([]*destination, 0, len(touched))
	for dest := range touched {
		ordered = append(ordered, dest)
	}
	slices.SortFunc(ordered, func(a, b *destination) int {
		return routing.ComparePrefixes(a.prefix, b.prefix)
	})
	for _, dest := range ordered {
		rib.apply(f, dest)
	}
}

// evaluate updates reachability of each entry of a destination and
// its membership in the IGP table. It tells if the IGP table changed.
func (rib *RIB) evaluate(f routing.Family, dest *destination) bool {
	for _, e := range dest.entries {
		reachable := rib.reachable(f, dest.prefix, e)
		if !reachable && (e.reachable || !e.evaluated) {
			rib.unresolved(e)
		}
		e.reachable = reachable
		e.evaluated = true
	}
	return rib.updateIGP(f, dest)
}

// resolveIGP recomputes the reachability of static and OSPF routes
// using a next hop. Starting with all of them unreachable, routes are
// marked reachable until nothing changes. Routes resolving only
// through each other therefore stay unreachable.
func (rib *RIB) resolveIGP(f routing.Family, touched map[*destination]struct{}) {
	var dependents []*destination
	previous := map[*entry]bool{}
	rib.walk(f, func(dest *destination) {
		if !slices.ContainsFunc(dest.entries, (*entry).recursive) {
			return
		}
		dependents = append(dependents, dest)
		for _, e := range dest.entries {
			if e.recursive() {
				previous[e] = e.reachable || !e.evaluated
				e.reachable = false
				e.evaluated = true
			}
		}
		rib.updateIGP(f, dest)
	})
	for changed := true; changed; {
		changed = false
		for _, dest := range dependents {
			for _, e := range dest.entries {
				if e.recursive() && !e.reachable && rib.resolves(f, e.NextHop, dest.prefix) {
					e.reachable = true
					changed = true
				}
			}
			rib.updateIGP(f, dest)
		}
	}
	for _, dest := range dependents {
		for _, e := range dest.entries {
			if e.recursive() && !e.reachable && previous[e] {
				rib.unresolved(e)
			}
		}
		touched[dest] = struct{}{}
	}
}

// updateIGP updates the membership of a destination in the IGP table.
// It returns true if the membership changed.
func (rib *RIB) updateIGP(f routing.Family, dest *destination) bool {
	igp := slices.ContainsFunc(dest.entries, func(e *entry) bool {
		return e.reachable && e.Source != SourceBGP
	})
	if igp == dest.inIGP {
		return false
	}
	dest.inIGP = igp
	if igp {
		rib.igp[f].Insert(dest.prefix, struct{}{})
	} else {
		rib.igp[f].Delete(dest.prefix)
	}
	return true
}

// reachable tells if the next hop of an entry for the provided prefix
// is resolved.
func (rib *RIB) reachable(f routing.Family, prefix netip.Prefix, e *entry) bool {
	switch e.Source {
	case SourceConnected:
		return rib.up[e.Interface]
	case SourceStatic, SourceOSPF:
		if e.Interface != "" {
			return rib.up[e.Interface]
		}
		return rib.resolves(f, e.NextHop, prefix)
	case SourceBGP:
		if !e.NextHop.IsValid() {
			return false
		}
		_, ok := rib.igp[f].Lookup(e.NextHop)
		return ok
	}
	return false
}

// resolves tells if a next hop is covered by a prefix of the IGP
// table, other than the provided one.
func (rib *RIB) resolves(f routing.Family, nextHop netip.Addr, self netip.Prefix) bool {
	for bits := nextHop.BitLen(); bits >= 0; bits-- {
		prefix := netip.PrefixFrom(nextHop, bits).Masked()
		if prefix == self {
			continue
		}
		if _, ok := rib.igp[f].Get(prefix); ok {
			return true
		}
	}
	return false
}

func (rib *RIB) unresolved(e *entry) {
	rib.r.Debug().
		Str("vrf", rib.vrf).
		Stringer("prefix", e.Prefix).
		Stringer("source", e.Source).
		Stringer("nexthop", e.nextHop()).
		Msg("next hop unresolved, route kept inactive")
}

// apply selects the best entry of a destination and programs the
// forwarding table accordingly.
func (rib *RIB) apply(f routing.Family, dest *destination) {
	var best *entry
	for _, e := range dest.entries {
		if !e.reachable {
			continue
		}
		if best == nil || compare(e.Route, true, best.Route, true) < 0 {
			best = e
		}
	}
	previous := dest.selected
	dest.selected = best
	if previous == nil && best != nil {
		rib.metrics.selected.WithLabelValues(rib.vrf, f.String()).Inc()
	} else if previous != nil && best == nil {
		rib.metrics.selected.WithLabelValues(rib.vrf, f.String()).Dec()
	}

	switch {
	case best == nil && dest.installed != nil:
		rib.forwarder.Withdraw(f, dest.prefix)
		dest.installed = nil
		rib.metrics.changes.WithLabelValues(rib.vrf, f.String()).Inc()
	case best != nil && (dest.installed == nil || *dest.installed != best.nextHop()):
		nh := best.nextHop()
		rib.forwarder.Install(f, dest.prefix, nh)
		dest.installed = &nh
		rib.metrics.changes.WithLabelValues(rib.vrf, f.String()).Inc()
	}
	if best != previous && best != nil {
		rib.r.Debug().
			Str("vrf", rib.vrf).
			Stringer("prefix", dest.prefix).
			Stringer("source", best.Source).
			Stringer("nexthop", best.nextHop()).
			Msg("route selected")
	}

	if len(dest.entries) == 0 {
		rib.tables[f].Delete(dest.prefix)
	}
}

// compare ranks two routes. A negative value means a is better.
func compare(a Route, aReachable bool, b Route, bReachable bool) int {
	if aReachable != bReachable {
		if aReachable {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Metric, b.Metric); c != 0 {
		return c
	}
	if c := a.NextHop.Compare(b.NextHop); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Source, b.Source); c != 0 {
		return c
	}
	if c := a.Peer.Compare(b.Peer); c != 0 {
		return c
	}
	return cmp.Compare(a.Interface, b.Interface)
}

// recursive tells if the entry is resolved through the IGP table.
func (e *entry) recursive() bool {
	return (e.Source == SourceStatic || e.Source == SourceOSPF) && e.Interface == ""
}

func (dest *destination) has(sources ...Source) bool {
	return slices.ContainsFunc(dest.entries, func(e *entry) bool {
		return slices.Contains(sources, e.Source)
	})
}
