// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package routing holds the vocabulary shared by the routing
// components: address families, next hops and error kinds.
package routing

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"
)

var (
	// ErrConfigurationRejected is returned when a configuration value is
	// invalid. No state is changed.
	ErrConfigurationRejected = errors.New("configuration rejected")
	// ErrResourceExceeded is returned when an operation would create
	// more than one protocol instance of a kind in a routing context.
	ErrResourceExceeded = errors.New("resource exceeded")
	// ErrNotFound is returned when removing or querying an unknown object.
	ErrNotFound = errors.New("not found")
)

// Rejectf returns an error wrapping ErrConfigurationRejected.
func Rejectf(format string, a ...any) error {
	return fmt.Errorf("%w: %s", ErrConfigurationRejected, fmt.Sprintf(format, a...))
}

// Family is an address family. IPv4 and IPv6 are handled independently.
type Family uint8

const (
	// IPv4 is the IPv4 unicast family.
	IPv4 Family = iota
	// IPv6 is the IPv6 unicast family.
	IPv6
)

// Families lists all the supported address families.
var Families = []Family{IPv4, IPv6}

// FamilyOf returns the family of the provided address.
func FamilyOf(addr netip.Addr) Family {
	if addr.Is4() {
		return IPv4
	}
	return IPv6
}

// String turns a family into a string.
func (f Family) String() string {
	switch f {
	case IPv4:
		return "ipv4"
	case IPv6:
		return "ipv6"
	default:
		return "unknown"
	}
}

// MarshalText turns a family into text.
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// UnmarshalText parses a family.
func (f *Family) UnmarshalText(input []byte) error {
	switch strings.ToLower(string(input)) {
	case "ipv4", "ip", "inet":
		*f = IPv4
	case "ipv6", "inet6":
		*f = IPv6
	default:
		return fmt.Errorf("unknown address family %q", string(input))
	}
	return nil
}

// RouteFamily returns the BGP AFI/SAFI matching the family.
func (f Family) RouteFamily() bgp.RouteFamily {
	if f == IPv6 {
		return bgp.RF_IPv6_UC
	}
	return bgp.RF_IPv4_UC
}

// NextHop is where a route forwards traffic to. Either the address or
// the interface may be unset, not both.
type NextHop struct {
	Address   netip.Addr `json:"address,omitzero"`
	Interface string     `json:"interface,omitempty"`
}

// String turns a next hop into a string.
func (nh NextHop) String() string {
	switch {
	case nh.Address.IsValid() && nh.Interface != "":
		return fmt.Sprintf("%s via %s", nh.Address, nh.Interface)
	case nh.Address.IsValid():
		return nh.Address.String()
	case nh.Interface != "":
		return fmt.Sprintf("directly connected, %s", nh.Interface)
	default:
		return "unspecified"
	}
}

// CanonicalPrefix validates a prefix and returns its masked form. IPv4
// mapped IPv6 prefixes are rejected.
func CanonicalPrefix(prefix netip.Prefix) (netip.Prefix, error) {
	if !prefix.IsValid() {
		return netip.Prefix{}, Rejectf("invalid prefix %q", prefix)
	}
	if prefix.Addr().Is4In6() {
		return netip.Prefix{}, Rejectf("IPv4-mapped prefix %s not supported", prefix)
	}
	if prefix.Addr().Zone() != "" {
		return netip.Prefix{}, Rejectf("prefix %s should not have a zone", prefix)
	}
	return prefix.Masked(), nil
}

// ComparePrefixes orders prefixes by address, then by length.
func ComparePrefixes(a, b netip.Prefix) int {
	if c := a.Addr().Compare(b.Addr()); c != 0 {
		return c
	}
	return a.Bits() - b.Bits()
}
