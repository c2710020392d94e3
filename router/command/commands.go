// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package command

import (
	"net/netip"
	"strconv"
	"strings"

	"ribd/router/bgp"
	"ribd/router/ospf"
	"ribd/router/routing"
	"ribd/router/vrf"
)

// Interface creates or deletes an interface.
type Interface struct {
	Name string `validate:"required"`
	No   bool
}

// Apply applies the command to a routing context.
func (cmd *Interface) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.RemoveInterface(cmd.Name)
	}
	return c.AddInterface(cmd.Name)
}

// Shutdown shuts down an interface.
type Shutdown struct {
	Interface string `validate:"required"`
	No        bool
}

// Apply applies the command to a routing context.
func (cmd *Shutdown) Apply(c *vrf.Context) error {
	return c.SetInterfaceShutdown(cmd.Interface, !cmd.No)
}

// Address adds or removes an IPv4 or IPv6 address on an interface.
type Address struct {
	Interface string `validate:"required"`
	Prefix    netip.Prefix
	No        bool
}

// Apply applies the command to a routing context.
func (cmd *Address) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.RemoveInterfaceAddress(cmd.Interface, cmd.Prefix)
	}
	return c.AddInterfaceAddress(cmd.Interface, cmd.Prefix)
}

// StaticRoute adds or removes a static route.
type StaticRoute struct {
	Prefix    netip.Prefix
	NextHop   netip.Addr
	Interface string
	Distance  uint8
	No        bool
}

// Apply applies the command to a routing context.
func (cmd *StaticRoute) Apply(c *vrf.Context) error {
	route := vrf.StaticRoute{
		Prefix:    cmd.Prefix,
		NextHop:   cmd.NextHop,
		Interface: cmd.Interface,
		Distance:  cmd.Distance,
	}
	if cmd.No {
		return c.RemoveStaticRoute(route)
	}
	return c.AddStaticRoute(route)
}

// RouterBGP creates or deletes the BGP instance.
type RouterBGP struct {
	ASN uint32 `validate:"required"`
	No  bool
}

// Apply applies the command to a routing context.
func (cmd *RouterBGP) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.DeleteBGP(cmd.ASN)
	}
	return c.CreateBGP(cmd.ASN)
}

// BGPRouterID sets or unsets the BGP router identifier.
type BGPRouterID struct {
	RouterID netip.Addr
	No       bool
}

// Apply applies the command to a routing context.
func (cmd *BGPRouterID) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.UnsetRouterID()
	}
	return c.SetRouterID(cmd.RouterID)
}

// TimersBGP sets or unsets the BGP timers of the instance. Both
// values are mandatory: "0 0" disables the timers.
type TimersBGP struct {
	Keepalive *uint16 `validate:"required_without=No"`
	Hold      *uint16 `validate:"required_without=No"`
	No        bool
}

// Apply applies the command to a routing context.
func (cmd *TimersBGP) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.UnsetTimers()
	}
	return c.SetTimers(bgp.Timers{Keepalive: *cmd.Keepalive, Hold: *cmd.Hold})
}

// DistanceBGP sets the distances of BGP routes. Removing it restores
// the defaults.
type DistanceBGP struct {
	External uint8 `validate:"required_without=No"`
	Internal uint8 `validate:"required_without=No"`
	Local    uint8 `validate:"required_without=No"`
	No       bool
}

// Apply applies the command to a routing context.
func (cmd *DistanceBGP) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.SetBGPDistance(bgp.DefaultDistances())
	}
	return c.SetBGPDistance(bgp.Distances{
		External: cmd.External,
		Internal: cmd.Internal,
		Local:    cmd.Local,
	})
}

// Neighbor creates a neighbor or deletes it.
type Neighbor struct {
	Address  netip.Addr
	RemoteAS uint32 `validate:"required_without=No"`
	No       bool
}

// Apply applies the command to a routing context.
func (cmd *Neighbor) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.RemoveNeighbor(cmd.Address)
	}
	return c.AddNeighbor(cmd.Address, cmd.RemoteAS)
}

// NeighborOption sets or unsets an option of a neighbor. The value
// depends on the option.
type NeighborOption struct {
	Address netip.Addr
	Option  string `validate:"oneof=description password port timers allowas-in remove-private-as soft-reconfiguration-inbound shutdown peer-group"`
	Value   string
	No      bool
}

// Apply applies the command to a routing context.
func (cmd *NeighborOption) Apply(c *vrf.Context) error {
	if cmd.Option == "peer-group" && !cmd.No {
		return c.BindNeighbor(cmd.Address, cmd.Value)
	}
	change, err := cmd.change()
	if err != nil {
		return err
	}
	return c.UpdateNeighbor(cmd.Address, change)
}

// change returns the function altering the configuration of the
// neighbor.
func (cmd *NeighborOption) change() (func(*bgp.NeighborConfig), error) {
	set := !cmd.No
	switch cmd.Option {
	case "description", "password":
		value := strings.TrimSpace(cmd.Value)
		if set && value == "" {
			return nil, routing.Rejectf("%s needs a value", cmd.Option)
		}
		if cmd.No {
			value = ""
		}
		if cmd.Option == "password" {
			return func(nc *bgp.NeighborConfig) { nc.Password = value }, nil
		}
		return func(nc *bgp.NeighborConfig) { nc.Description = value }, nil
	case "port":
		var port uint16
		if set {
			parsed, err := strconv.ParseUint(cmd.Value, 10, 16)
			if err != nil || parsed == 0 {
				return nil, routing.Rejectf("invalid port %q", cmd.Value)
			}
			port = uint16(parsed)
		}
		return func(nc *bgp.NeighborConfig) { nc.Port = port }, nil
	case "timers":
		var timers *bgp.Timers
		if set {
			fields := strings.Fields(cmd.Value)
			if len(fields) != 2 {
				return nil, routing.Rejectf("timers should be %q, not %q", "<keepalive> <hold>", cmd.Value)
			}
			keepalive, err1 := strconv.ParseUint(fields[0], 10, 16)
			hold, err2 := strconv.ParseUint(fields[1], 10, 16)
			if err1 != nil || err2 != nil {
				return nil, routing.Rejectf("invalid timers %q", cmd.Value)
			}
			timers = &bgp.Timers{Keepalive: uint16(keepalive), Hold: uint16(hold)}
		}
		return func(nc *bgp.NeighborConfig) { nc.Timers = timers }, nil
	case "allowas-in":
		var count uint8
		if set {
			count = bgp.DefaultAllowASIn
			if cmd.Value != "" {
				parsed, err := strconv.ParseUint(cmd.Value, 10, 8)
				if err != nil || parsed == 0 {
					return nil, routing.Rejectf("invalid allowas-in count %q", cmd.Value)
				}
				count = uint8(parsed)
			}
		}
		return func(nc *bgp.NeighborConfig) { nc.AllowASIn = count }, nil
	case "remove-private-as":
		return func(nc *bgp.NeighborConfig) { nc.RemovePrivateAS = set }, nil
	case "soft-reconfiguration-inbound":
		return func(nc *bgp.NeighborConfig) { nc.SoftReconfigurationInbound = set }, nil
	case "shutdown":
		return func(nc *bgp.NeighborConfig) { nc.Shutdown = set }, nil
	case "peer-group":
		return func(nc *bgp.NeighborConfig) { nc.PeerGroup = "" }, nil
	}
	return nil, routing.Rejectf("unknown neighbor option %q", cmd.Option)
}

// PeerGroup creates a peer group, optionally with a remote AS, or
// deletes it. Removing only the remote AS is done with RemoteAS set
// and No.
type PeerGroup struct {
	Name     string `validate:"required"`
	RemoteAS uint32
	No       bool
}

// Apply applies the command to a routing context.
func (cmd *PeerGroup) Apply(c *vrf.Context) error {
	switch {
	case cmd.No && cmd.RemoteAS != 0:
		return c.SetPeerGroupRemoteAS(cmd.Name, 0)
	case cmd.No:
		return c.RemovePeerGroup(cmd.Name)
	}
	if err := c.AddPeerGroup(cmd.Name); err != nil {
		return err
	}
	if cmd.RemoteAS != 0 {
		return c.SetPeerGroupRemoteAS(cmd.Name, cmd.RemoteAS)
	}
	return nil
}

// Network adds or removes a BGP network statement.
type Network struct {
	Prefix netip.Prefix
	No     bool
}

// Apply applies the command to a routing context.
func (cmd *Network) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.RemoveNetwork(cmd.Prefix)
	}
	return c.AddNetwork(cmd.Prefix)
}

// RouterOSPF creates or deletes the OSPF instance.
type RouterOSPF struct {
	Instance uint16
	No       bool
}

// Apply applies the command to a routing context.
func (cmd *RouterOSPF) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.DeleteOSPF(cmd.Instance)
	}
	return c.CreateOSPF(cmd.Instance)
}

// OSPFRouterID sets or unsets the OSPF router identifier.
type OSPFRouterID struct {
	RouterID netip.Addr
	No       bool
}

// Apply applies the command to a routing context.
func (cmd *OSPFRouterID) Apply(c *vrf.Context) error {
	if cmd.No {
		return c.UnsetOSPFRouterID()
	}
	return c.SetOSPFRouterID(cmd.RouterID)
}

// OSPFNetwork adds or removes an OSPF network statement. The area is
// a number or a dotted quad.
type OSPFNetwork struct {
	Prefix netip.Prefix
	Area   string `validate:"required"`
	No     bool
}

// Apply applies the command to a routing context.
func (cmd *OSPFNetwork) Apply(c *vrf.Context) error {
	area, err := ospf.ParseArea(cmd.Area)
	if err != nil {
		return err
	}
	if cmd.No {
		return c.RemoveOSPFNetwork(cmd.Prefix, area)
	}
	return c.AddOSPFNetwork(cmd.Prefix, area)
}
