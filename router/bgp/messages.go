// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package bgp

import (
	"math"
	"net"
	"net/netip"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"ribd/router/routing"
)

const (
	// asTrans is the AS number advertised in OPEN messages when the
	// local AS does not fit in 16 bits.
	asTrans = 23456
	// headerLength is the length of the BGP header.
	headerLength = 19
	// maxMessageLength is the maximum length of a BGP message.
	maxMessageLength = 4096
)

// openMessage builds the OPEN message for a session.
func openMessage(localAS uint32, hold uint16, routerID netip.Addr) *bgp.BGPMessage {
	myAS := uint16(asTrans)
	if localAS <= math.MaxUint16 {
		myAS = uint16(localAS)
	}
	capabilities := []bgp.ParameterCapabilityInterface{}
	for _, family := range routing.Families {
		capabilities = append(capabilities, bgp.NewCapMultiProtocol(family.RouteFamily()))
	}
	capabilities = append(capabilities, bgp.NewCapFourOctetASNumber(localAS))
	return bgp.NewBGPOpenMessage(myAS, hold, routerID.String(),
		[]bgp.OptionParameterInterface{bgp.NewOptionParameterCapability(capabilities)})
}

// peerAS extracts the AS number of the peer from an OPEN message.
func peerAS(open *bgp.BGPOpen) uint32 {
	asn := uint32(open.MyAS)
	for _, param := range open.OptParams {
		switch param := param.(type) {
		case *bgp.OptionParameterCapability:
			for _, capability := range param.Capability {
				if as4, ok := capability.(*bgp.CapFourOctetASNumber); ok {
					asn = as4.CapValue
				}
			}
		}
	}
	return asn
}

// parseUpdate extracts the announced and withdrawn prefixes of an
// UPDATE message. Prefixes of unsupported families are ignored.
func parseUpdate(update *bgp.BGPUpdate) ([]Path, []netip.Prefix) {
	var announced []Path
	var withdrawn []netip.Prefix

	var nh netip.Addr
	var attrs Path
	for _, attr := range update.PathAttributes {
		switch attr := attr.(type) {
		case *bgp.PathAttributeNextHop:
			nh, _ = netip.AddrFromSlice(attr.Value.To4())
		case *bgp.PathAttributeAsPath:
			attrs.ASPath = asPathFlat(attr)
		case *bgp.PathAttributeMultiExitDisc:
			attrs.MED = attr.Value
		}
	}

	// Regular NLRI and withdrawn routes
	for _, ipprefix := range update.NLRI {
		if prefix, ok := prefixFrom(routing.IPv4, ipprefix.Prefix, ipprefix.Length); ok {
			path := attrs
			path.Prefix = prefix
			path.NextHop = nh
			announced = append(announced, path)
		}
	}
	for _, ipprefix := range update.WithdrawnRoutes {
		if prefix, ok := prefixFrom(routing.IPv4, ipprefix.Prefix, ipprefix.Length); ok {
			withdrawn = append(withdrawn, prefix)
		}
	}

	// MP reach and unreach NLRI
	for _, attr := range update.PathAttributes {
		var mpnh netip.Addr
		var ipprefixes []bgp.AddrPrefixInterface
		reach := false
		switch attr := attr.(type) {
		case *bgp.PathAttributeMpReachNLRI:
			mpnh, _ = netip.AddrFromSlice(attr.Nexthop.To16())
			mpnh = mpnh.Unmap()
			ipprefixes = attr.Value
			reach = true
		case *bgp.PathAttributeMpUnreachNLRI:
			ipprefixes = attr.Value
		}
		for _, ipprefix := range ipprefixes {
			var prefix netip.Prefix
			var ok bool
			switch ipprefix := ipprefix.(type) {
			case *bgp.IPAddrPrefix:
				prefix, ok = prefixFrom(routing.IPv4, ipprefix.Prefix, ipprefix.Length)
			case *bgp.IPv6AddrPrefix:
				prefix, ok = prefixFrom(routing.IPv6, ipprefix.Prefix, ipprefix.Length)
			}
			if !ok {
				continue
			}
			if !reach {
				withdrawn = append(withdrawn, prefix)
				continue
			}
			path := attrs
			path.Prefix = prefix
			path.NextHop = mpnh
			announced = append(announced, path)
		}
	}
	return announced, withdrawn
}

// prefixFrom builds a prefix from its wire representation.
func prefixFrom(family routing.Family, ip net.IP, length uint8) (netip.Prefix, bool) {
	if family == routing.IPv4 {
		ip = ip.To4()
	} else {
		ip = ip.To16()
	}
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Prefix{}, false
	}
	prefix := netip.PrefixFrom(addr, int(length))
	if !prefix.IsValid() {
		return netip.Prefix{}, false
	}
	return prefix.Masked(), true
}

// asPathFlat transforms an AS path to a flat AS path: first value of
// a set is used, confed seq is considered as a regular seq.
func asPathFlat(aspath *bgp.PathAttributeAsPath) []uint32 {
	s := []uint32{}
	for _, param := range aspath.Value {
		segType := param.GetType()
		asList := param.GetAS()

		switch segType {
		case bgp.BGP_ASPATH_ATTR_TYPE_CONFED_SET, bgp.BGP_ASPATH_ATTR_TYPE_SET:
			asList = asList[:min(1, len(asList))]
		}
		s = append(s, asList...)
	}
	return s
}

// occurrences counts the occurrences of an AS in an AS path.
func occurrences(path []uint32, asn uint32) int {
	count := 0
	for _, as := range path {
		if as == asn {
			count++
		}
	}
	return count
}
