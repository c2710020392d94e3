// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package rib

import (
	"fmt"
	"net/netip"
	"strings"

	"ribd/router/routing"
)

// Source tells where a route comes from.
type Source uint8

const (
	// SourceConnected is for subnets of active interface addresses.
	SourceConnected Source = iota
	// SourceStatic is for configured static routes.
	SourceStatic
	// SourceOSPF is for routes learned through OSPF.
	SourceOSPF
	// SourceBGP is for routes learned from a BGP neighbor.
	SourceBGP
)

var sourceNames = []string{"connected", "static", "ospf", "bgp"}

// String turns a source into a string.
func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "unknown"
}

// Code returns the one-letter code of the source.
func (s Source) Code() string {
	return strings.ToUpper(s.String()[:1])
}

// MarshalText turns a source into text.
func (s Source) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a source.
func (s *Source) UnmarshalText(input []byte) error {
	for i, name := range sourceNames {
		if name == strings.ToLower(string(input)) {
			*s = Source(i)
			return nil
		}
	}
	return fmt.Errorf("unknown route source %q", string(input))
}

// Distances are the administrative distances of each source. The lowest
// wins.
type Distances struct {
	Connected uint8
	Static    uint8
	EBGP      uint8
	OSPF      uint8
	IBGP      uint8
}

// DefaultDistances returns the default administrative distances.
func DefaultDistances() Distances {
	return Distances{
		Connected: 0,
		Static:    1,
		EBGP:      20,
		OSPF:      110,
		IBGP:      200,
	}
}

// Route is a candidate route for a prefix.
type Route struct {
	Prefix netip.Prefix `json:"prefix"`
	// NextHop is the gateway. It is unset for connected routes and for
	// routes bound to an interface only.
	NextHop   netip.Addr `json:"nexthop,omitzero"`
	Interface string     `json:"interface,omitempty"`
	Source    Source     `json:"source"`
	// Peer is the BGP neighbor the route was learned from.
	Peer     netip.Addr `json:"peer,omitzero"`
	PeerAS   uint32     `json:"peer-as,omitempty"`
	ASPath   []uint32   `json:"as-path,omitempty"`
	Distance uint8      `json:"distance"`
	Metric   uint32     `json:"metric"`
}

// Family returns the family of the route.
func (r Route) Family() routing.Family {
	return routing.FamilyOf(r.Prefix.Addr())
}

// Key identifies a route among the candidates of a prefix. Adding a
// route with the same key replaces the previous one.
type Key struct {
	Source    Source
	Peer      netip.Addr
	NextHop   netip.Addr
	Interface string
}

// Key returns the key of the route.
func (r Route) Key() Key {
	return Key{
		Source:    r.Source,
		Peer:      r.Peer,
		NextHop:   r.NextHop,
		Interface: r.Interface,
	}
}

func (r Route) nextHop() routing.NextHop {
	return routing.NextHop{Address: r.NextHop, Interface: r.Interface}
}

// Entry is a route as seen in the RIB.
type Entry struct {
	Route
	// Reachable tells if the next hop is resolved.
	Reachable bool `json:"reachable"`
	// Selected tells if the route is the best one for its prefix.
	Selected bool `json:"selected"`
}

// String formats an entry like a "show ip route" line.
func (e Entry) String() string {
	flags := e.Source.Code() + "  "
	if e.Selected {
		flags = e.Source.Code() + ">*"
	}
	switch {
	case e.Source == SourceConnected:
		return fmt.Sprintf("%s %s is directly connected, %s", flags, e.Prefix, e.Interface)
	case e.NextHop.IsValid() && e.Interface != "":
		return fmt.Sprintf("%s %s [%d/%d] via %s, %s", flags, e.Prefix, e.Distance, e.Metric, e.NextHop, e.Interface)
	case e.NextHop.IsValid():
		return fmt.Sprintf("%s %s [%d/%d] via %s", flags, e.Prefix, e.Distance, e.Metric, e.NextHop)
	default:
		return fmt.Sprintf("%s %s [%d/%d] is directly connected, %s", flags, e.Prefix, e.Distance, e.Metric, e.Interface)
	}
}

// Forwarder receives the selected routes. Calls are synchronous and
// should be idempotent.
type Forwarder interface {
	Install(family routing.Family, prefix netip.Prefix, nh routing.NextHop)
	Withdraw(family routing.Family, prefix netip.Prefix)
}
