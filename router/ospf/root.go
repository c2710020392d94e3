// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package ospf keeps the configuration of the OSPF instance of a
// routing context and the routes learned by the OSPF engine. The
// engine itself runs outside this daemon and pushes its routes with
// Learn and Forget.
//
// An instance is not safe for concurrent use. It is driven by its
// routing context.
package ospf

import (
	"cmp"
	"fmt"
	"io"
	"net/netip"
	"slices"
	"strconv"

	"ribd/common/reporter"
	"ribd/router/routing"
)

// MaxCost is the highest cost of an OSPF route.
const MaxCost = 1<<24 - 1

// Instance is an OSPF instance.
type Instance struct {
	r        *reporter.Reporter
	vrf      string
	instance uint16
	metrics  metrics

	networks []Network
	routes   map[routeKey]Route
}

// Area is an OSPF area identifier. It remembers if it was written as
// a dotted quad.
type Area struct {
	ID     uint32
	Dotted bool
}

// ParseArea parses an area identifier, either as a number or as a
// dotted quad.
func ParseArea(input string) (Area, error) {
	if id, err := strconv.ParseUint(input, 10, 32); err == nil {
		return Area{ID: uint32(id)}, nil
	}
	addr, err := netip.ParseAddr(input)
	if err != nil || !addr.Is4() {
		return Area{}, routing.Rejectf("invalid area %q", input)
	}
	b := addr.As4()
	return Area{ID: uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3]), Dotted: true}, nil
}

// String turns an area into a string, the way it was parsed.
func (a Area) String() string {
	if a.Dotted {
		return netip.AddrFrom4([4]byte{byte(a.ID >> 24), byte(a.ID >> 16), byte(a.ID >> 8), byte(a.ID)}).String()
	}
	return strconv.FormatUint(uint64(a.ID), 10)
}

// MarshalText turns an area into text.
func (a Area) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses an area.
func (a *Area) UnmarshalText(input []byte) error {
	area, err := ParseArea(string(input))
	if err != nil {
		return err
	}
	*a = area
	return nil
}

// Network is a network statement.
type Network struct {
	Prefix netip.Prefix `json:"prefix"`
	Area   Area         `json:"area"`
}

// Route is a route computed by the OSPF engine.
type Route struct {
	Prefix  netip.Prefix `json:"prefix"`
	NextHop netip.Addr   `json:"nexthop"`
	Cost    uint32       `json:"cost"`
}

type routeKey struct {
	prefix  netip.Prefix
	nextHop netip.Addr
}

// New creates a new OSPF instance. The instance number is 0 when not
// set.
func New(r *reporter.Reporter, vrf string, instance uint16) *Instance {
	i := Instance{
		r:        r,
		vrf:      vrf,
		instance: instance,
		routes:   make(map[routeKey]Route),
	}
	i.initMetrics()
	return &i
}

// Instance returns the instance number.
func (i *Instance) Instance() uint16 {
	return i.instance
}

// AddNetwork adds a network statement. A prefix can only belong to one
// area.
func (i *Instance) AddNetwork(prefix netip.Prefix, area Area) error {
	prefix, err := routing.CanonicalPrefix(prefix)
	if err != nil {
		return err
	}
	if !prefix.Addr().Is4() {
		return routing.Rejectf("OSPF network %s is not IPv4", prefix)
	}
	idx := slices.IndexFunc(i.networks, func(n Network) bool { return n.Prefix == prefix })
	if idx >= 0 {
		if i.networks[idx].Area.ID != area.ID {
			return routing.Rejectf("network %s already in area %s", prefix, i.networks[idx].Area)
		}
		i.networks[idx].Area = area
		return nil
	}
	i.networks = append(i.networks, Network{Prefix: prefix, Area: area})
	slices.SortFunc(i.networks, func(a, b Network) int {
		return routing.ComparePrefixes(a.Prefix, b.Prefix)
	})
	return nil
}

// RemoveNetwork removes a network statement.
func (i *Instance) RemoveNetwork(prefix netip.Prefix, area Area) error {
	prefix = prefix.Masked()
	idx := slices.IndexFunc(i.networks, func(n Network) bool {
		return n.Prefix == prefix && n.Area.ID == area.ID
	})
	if idx < 0 {
		return fmt.Errorf("network %s area %s: %w", prefix, area, routing.ErrNotFound)
	}
	i.networks = slices.Delete(i.networks, idx, idx+1)
	return nil
}

// Networks returns the network statements.
func (i *Instance) Networks() []Network {
	return slices.Clone(i.networks)
}

// Learn records a route from the OSPF engine. It returns the route in
// its canonical form. Learning a known route updates its cost.
func (i *Instance) Learn(route Route) (Route, error) {
	prefix, err := routing.CanonicalPrefix(route.Prefix)
	if err != nil {
		return Route{}, err
	}
	route.Prefix = prefix
	if !route.NextHop.IsValid() || route.NextHop.Is4() != prefix.Addr().Is4() {
		return Route{}, routing.Rejectf("invalid next hop %q for %s", route.NextHop, prefix)
	}
	if route.Cost > MaxCost {
		return Route{}, routing.Rejectf("cost %d is too high", route.Cost)
	}
	key := routeKey{prefix: prefix, nextHop: route.NextHop}
	if _, ok := i.routes[key]; !ok {
		i.metrics.routes.WithLabelValues(i.vrf).Inc()
	}
	i.routes[key] = route
	return route, nil
}

// Forget removes a route from the OSPF engine.
func (i *Instance) Forget(prefix netip.Prefix, nextHop netip.Addr) error {
	key := routeKey{prefix: prefix.Masked(), nextHop: nextHop}
	if _, ok := i.routes[key]; !ok {
		return fmt.Errorf("OSPF route to %s via %s: %w", prefix, nextHop, routing.ErrNotFound)
	}
	delete(i.routes, key)
	i.metrics.routes.WithLabelValues(i.vrf).Dec()
	return nil
}

// Routes returns the learned routes, ordered by prefix and next hop.
func (i *Instance) Routes() []Route {
	result := make([]Route, 0, len(i.routes))
	for _, route := range i.routes {
		result = append(result, route)
	}
	slices.SortFunc(result, func(a, b Route) int {
		return cmp.Or(
			routing.ComparePrefixes(a.Prefix, b.Prefix),
			a.NextHop.Compare(b.NextHop),
		)
	})
	return result
}

// Flush removes all the learned routes and returns them.
func (i *Instance) Flush() []Route {
	routes := i.Routes()
	clear(i.routes)
	i.metrics.routes.WithLabelValues(i.vrf).Set(0)
	return routes
}

// WriteConfig writes the configuration of the instance in its
// canonical form. routerID is the configured router identifier, if any.
func (i *Instance) WriteConfig(w io.Writer, vrf string, routerID netip.Addr) {
	header := "router ospf"
	if i.instance != 0 {
		header = fmt.Sprintf("%s %d", header, i.instance)
	}
	if vrf != "" {
		header = fmt.Sprintf("%s vrf %s", header, vrf)
	}
	fmt.Fprintln(w, header)
	if routerID.IsValid() {
		fmt.Fprintf(w, " ospf router-id %s\n", routerID)
	}
	for _, network := range i.networks {
		fmt.Fprintf(w, " network %s area %s\n", network.Prefix, network.Area)
	}
	fmt.Fprintln(w, "exit")
}
