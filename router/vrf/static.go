// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package vrf

import (
	"cmp"
	"fmt"
	"net/netip"
	"slices"
	"strings"

	"ribd/router/rib"
	"ribd/router/routing"
)

// StaticRoute is a configured static route. The next hop, the
// interface or both should be set. A zero distance means the default
// one.
type StaticRoute struct {
	Prefix    netip.Prefix `json:"prefix"`
	NextHop   netip.Addr   `json:"nexthop,omitzero"`
	Interface string       `json:"interface,omitempty"`
	Distance  uint8        `json:"distance,omitempty"`
}

func (s StaticRoute) key() rib.Key {
	return rib.Key{
		Source:    rib.SourceStatic,
		NextHop:   s.NextHop,
		Interface: s.Interface,
	}
}

// String formats a static route as a configuration line.
func (s StaticRoute) String() string {
	words := []string{"ip", "route", s.Prefix.String()}
	if !s.Prefix.Addr().Is4() {
		words[0] = "ipv6"
	}
	if s.NextHop.IsValid() {
		words = append(words, s.NextHop.String())
	}
	if s.Interface != "" {
		words = append(words, s.Interface)
	}
	if s.Distance != 0 {
		words = append(words, fmt.Sprint(s.Distance))
	}
	return strings.Join(words, " ")
}

func compareStatics(a, b StaticRoute) int {
	return cmp.Or(
		routing.ComparePrefixes(a.Prefix, b.Prefix),
		a.NextHop.Compare(b.NextHop),
		cmp.Compare(a.Interface, b.Interface),
	)
}

// AddStaticRoute adds a static route. Adding a route with the same
// prefix, next hop and interface replaces its distance.
func (c *Context) AddStaticRoute(route StaticRoute) error {
	prefix, err := routing.CanonicalPrefix(route.Prefix)
	if err != nil {
		return err
	}
	route.Prefix = prefix
	if route.NextHop.IsValid() {
		if route.NextHop.Is4() != prefix.Addr().Is4() {
			return routing.Rejectf("next hop %s does not match family of %s", route.NextHop, prefix)
		}
		if route.NextHop.IsUnspecified() || route.NextHop.IsMulticast() {
			return routing.Rejectf("invalid next hop %s", route.NextHop)
		}
	} else if route.Interface == "" {
		return routing.Rejectf("static route to %s needs a next hop or an interface", prefix)
	}
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	distance := route.Distance
	if distance == 0 {
		distance = c.distances.Static
	}
	if err := c.rib.Add(rib.Route{
		Prefix:    route.Prefix,
		NextHop:   route.NextHop,
		Interface: route.Interface,
		Source:    rib.SourceStatic,
		Distance:  distance,
	}); err != nil {
		return err
	}
	idx := slices.IndexFunc(c.statics, func(s StaticRoute) bool { return compareStatics(s, route) == 0 })
	if idx >= 0 {
		c.statics[idx] = route
	} else {
		c.statics = append(c.statics, route)
		slices.SortFunc(c.statics, compareStatics)
	}
	return nil
}

// RemoveStaticRoute removes a static route. The distance is ignored.
func (c *Context) RemoveStaticRoute(route StaticRoute) error {
	if err := c.lock(); err != nil {
		return err
	}
	defer c.mu.Unlock()
	route.Prefix = route.Prefix.Masked()
	idx := slices.IndexFunc(c.statics, func(s StaticRoute) bool { return compareStatics(s, route) == 0 })
	if idx < 0 {
		return fmt.Errorf("static route %s: %w", route, routing.ErrNotFound)
	}
	c.statics = slices.Delete(c.statics, idx, idx+1)
	return c.rib.Withdraw(route.Prefix, route.key())
}

// StaticRoutes returns the configured static routes.
func (c *Context) StaticRoutes() ([]StaticRoute, error) {
	if err := c.lock(); err != nil {
		return nil, err
	}
	defer c.mu.Unlock()
	return slices.Clone(c.statics), nil
}
