// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package routerid derives the router identifier of a protocol
// instance. An explicitly configured identifier always wins. Otherwise,
// the first IPv4 address of the operationally up interface with the
// lowest index is used. Once chosen, an identifier is kept as long as
// it stays usable. When nothing is usable, the identifier is 0.0.0.0.
//
// A manager is not safe for concurrent use. It is expected to be
// driven by its routing context.
package routerid

import (
	"net/netip"

	"ribd/common/reporter"
	"ribd/router/interfaces"
	"ribd/router/routing"
)

// Unset is the identifier used when none can be derived.
var Unset = netip.IPv4Unspecified()

// Manager maintains the router identifier of one protocol instance.
type Manager struct {
	r        *reporter.Reporter
	vrf      string
	protocol string
	onChange func(netip.Addr)

	configured netip.Addr
	effective  netip.Addr
	metrics    metrics
}

// New creates a new router identifier manager. The provided function,
// if any, is called each time the effective identifier changes.
func New(r *reporter.Reporter, vrf, protocol string, onChange func(netip.Addr)) *Manager {
	m := Manager{
		r:         r,
		vrf:       vrf,
		protocol:  protocol,
		onChange:  onChange,
		effective: Unset,
	}
	m.initMetrics()
	return &m
}

// Validate checks if an address can be used as a router identifier.
func Validate(addr netip.Addr) error {
	switch {
	case !addr.IsValid():
		return routing.Rejectf("missing router identifier")
	case !addr.Is4():
		return routing.Rejectf("router identifier %s is not an IPv4 address", addr)
	case addr.IsUnspecified():
		return routing.Rejectf("router identifier cannot be %s", addr)
	case addr.IsMulticast(), addr == netip.AddrFrom4([4]byte{255, 255, 255, 255}):
		return routing.Rejectf("router identifier %s is not an unicast address", addr)
	}
	return nil
}

// Configure sets an explicit router identifier. On error, nothing is
// changed.
func (m *Manager) Configure(addr netip.Addr, snapshot []interfaces.Interface) error {
	if err := Validate(addr); err != nil {
		return err
	}
	m.configured = addr
	m.Recompute(snapshot)
	return nil
}

// Unconfigure removes the explicit router identifier. The identifier
// is derived again from the interfaces.
func (m *Manager) Unconfigure(snapshot []interfaces.Interface) {
	m.configured = netip.Addr{}
	m.Recompute(snapshot)
}

// Configured returns the explicit router identifier, if any.
func (m *Manager) Configured() (netip.Addr, bool) {
	return m.configured, m.configured.IsValid()
}

// Effective returns the router identifier in use.
func (m *Manager) Effective() netip.Addr {
	return m.effective
}

// Recompute derives the router identifier from the provided snapshot
// of interfaces. It returns true if the identifier has changed.
// Running it twice on the same input does not change anything.
func (m *Manager) Recompute(snapshot []interfaces.Interface) bool {
	var candidate netip.Addr
	if m.configured.IsValid() {
		candidate = m.configured
	} else {
		candidate = Select(m.effective, snapshot)
	}
	if candidate == m.effective {
		return false
	}
	previous := m.effective
	m.effective = candidate
	m.r.Info().
		Str("vrf", m.vrf).
		Str("protocol", m.protocol).
		Stringer("previous", previous).
		Stringer("current", candidate).
		Msg("router identifier changed")
	m.metrics.changes.WithLabelValues(m.vrf, m.protocol).Inc()
	if m.onChange != nil {
		m.onChange(candidate)
	}
	return true
}

// Select derives a router identifier from interfaces, keeping the
// current one if it is still present on an operationally up
// interface. Interfaces are considered by increasing index.
func Select(current netip.Addr, snapshot []interfaces.Interface) netip.Addr {
	var (
		best      netip.Addr
		bestIndex uint32
	)
	for _, iface := range snapshot {
		for _, prefix := range iface.ActiveAddresses() {
			if prefix.Addr() == current && current != Unset {
				return current
			}
		}
		first, ok := iface.FirstIPv4()
		if !ok {
			continue
		}
		if !best.IsValid() || iface.Index < bestIndex {
			best = first
			bestIndex = iface.Index
		}
	}
	if !best.IsValid() {
		return Unset
	}
	return best
}
