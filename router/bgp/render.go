// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package bgp

import (
	"fmt"
	"io"
	"net/netip"
	"strings"
)

// WriteConfig writes the configuration of the instance in its
// canonical form. routerID is the configured router identifier, if any.
func (m *Manager) WriteConfig(w io.Writer, vrf string, routerID netip.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()

	header := fmt.Sprintf("router bgp %d", m.asn)
	if vrf != "" {
		header = fmt.Sprintf("%s vrf %s", header, vrf)
	}
	fmt.Fprintln(w, header)
	if routerID.IsValid() {
		fmt.Fprintf(w, " bgp router-id %s\n", routerID)
	}
	if m.timers != nil {
		fmt.Fprintf(w, " timers bgp %s\n", m.timers)
	}
	if m.distances != DefaultDistances() {
		fmt.Fprintf(w, " distance bgp %d %d %d\n",
			m.distances.External, m.distances.Internal, m.distances.Local)
	}
	for _, pg := range m.peerGroupsLocked() {
		fmt.Fprintf(w, " neighbor %s peer-group\n", pg.Name)
		if pg.RemoteAS != 0 {
			fmt.Fprintf(w, " neighbor %s remote-as %d\n", pg.Name, pg.RemoteAS)
		}
	}
	configs := m.neighborConfigsLocked()
	for _, nc := range configs {
		addr := nc.Address
		if nc.RemoteAS != 0 {
			fmt.Fprintf(w, " neighbor %s remote-as %d\n", addr, nc.RemoteAS)
		}
		if nc.PeerGroup != "" {
			fmt.Fprintf(w, " neighbor %s peer-group %s\n", addr, nc.PeerGroup)
		}
		if nc.Description != "" {
			fmt.Fprintf(w, " neighbor %s description %s\n", addr, nc.Description)
		}
		if nc.Shutdown {
			fmt.Fprintf(w, " neighbor %s shutdown\n", addr)
		}
		if nc.Password != "" {
			fmt.Fprintf(w, " neighbor %s password %s\n", addr, nc.Password)
		}
		if nc.Port != 0 {
			fmt.Fprintf(w, " neighbor %s port %d\n", addr, nc.Port)
		}
		if nc.Timers != nil {
			fmt.Fprintf(w, " neighbor %s timers %s\n", addr, nc.Timers)
		}
	}

	// Address family specific configuration
	for _, af := range []struct {
		name string
		is4  bool
	}{{"ipv4 unicast", true}, {"ipv6 unicast", false}} {
		lines := []string{}
		for _, prefix := range m.networks {
			if prefix.Addr().Is4() == af.is4 {
				lines = append(lines, fmt.Sprintf("  network %s", prefix))
			}
		}
		if af.is4 {
			for _, nc := range configs {
				addr := nc.Address
				if nc.AllowASIn != 0 {
					lines = append(lines, fmt.Sprintf("  neighbor %s allowas-in %d", addr, nc.AllowASIn))
				}
				if nc.RemovePrivateAS {
					lines = append(lines, fmt.Sprintf("  neighbor %s remove-private-AS", addr))
				}
				if nc.SoftReconfigurationInbound {
					lines = append(lines, fmt.Sprintf("  neighbor %s soft-reconfiguration inbound", addr))
				}
			}
		}
		if len(lines) == 0 {
			continue
		}
		fmt.Fprintln(w, " !")
		fmt.Fprintf(w, " address-family %s\n", af.name)
		fmt.Fprintln(w, strings.Join(lines, "\n"))
		fmt.Fprintln(w, " exit-address-family")
	}
	fmt.Fprintln(w, "exit")
}
