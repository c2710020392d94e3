// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package vrf

import (
	"fmt"
	"strings"
)

// RunningConfig returns the configuration of the routing context in
// its canonical textual form. Each accepted operation is rendered back
// as it was configured.
func (c *Context) RunningConfig() (string, error) {
	if err := c.lock(); err != nil {
		return "", err
	}
	defer c.mu.Unlock()

	var b strings.Builder
	vrf := c.vrfName()
	for _, iface := range c.interfaces {
		if vrf != "" {
			fmt.Fprintf(&b, "interface %s vrf %s\n", iface.Name, vrf)
		} else {
			fmt.Fprintf(&b, "interface %s\n", iface.Name)
		}
		for _, prefix := range iface.Addresses {
			if prefix.Addr().Is4() {
				fmt.Fprintf(&b, " ip address %s\n", prefix)
			} else {
				fmt.Fprintf(&b, " ipv6 address %s\n", prefix)
			}
		}
		if !iface.AdminUp {
			b.WriteString(" shutdown\n")
		}
		b.WriteString("exit\n!\n")
	}

	if len(c.statics) > 0 {
		indent := ""
		if vrf != "" {
			fmt.Fprintf(&b, "vrf %s\n", vrf)
			indent = " "
		}
		for _, s := range c.statics {
			fmt.Fprintf(&b, "%s%s\n", indent, s)
		}
		if vrf != "" {
			b.WriteString("exit-vrf\n")
		}
		b.WriteString("!\n")
	}

	if c.bgp != nil {
		id, _ := c.bgpID.Configured()
		c.bgp.WriteConfig(&b, vrf, id)
		b.WriteString("!\n")
	}
	if c.ospf != nil {
		id, _ := c.ospfID.Configured()
		c.ospf.WriteConfig(&b, vrf, id)
		b.WriteString("!\n")
	}
	return b.String(), nil
}
