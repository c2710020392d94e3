// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package vrf

import (
	"errors"
	"net/netip"
	"strings"
	"testing"

	"github.com/benbjohnson/clock"

	"ribd/common/helpers"
	"ribd/common/reporter"
	"ribd/router/bgp"
	"ribd/router/interfaces"
	"ribd/router/ospf"
	"ribd/router/rib"
	"ribd/router/routing"
)

func newRegistry(t *testing.T) (*Registry, *reporter.Reporter) {
	t.Helper()
	r := reporter.NewMock(t)
	reg, err := NewRegistry(r, DefaultConfiguration(), Dependencies{
		Interfaces: interfaces.New(r),
		Clock:      clock.NewMock(),
	})
	if err != nil {
		t.Fatalf("NewRegistry() error:\n%+v", err)
	}
	helpers.StartStop(t, reg)
	return reg, r
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error:\n%+v", err)
	}
}

func routerID(t *testing.T, c *Context) string {
	t.Helper()
	id, err := c.RouterID()
	if err != nil {
		t.Fatalf("RouterID() error:\n%+v", err)
	}
	return id.String()
}

// selected returns the selected entry for a prefix.
func selected(t *testing.T, c *Context, prefix string) (rib.Entry, bool) {
	t.Helper()
	entries, err := c.Lookup(netip.MustParsePrefix(prefix))
	if err != nil {
		t.Fatalf("Lookup() error:\n%+v", err)
	}
	for _, entry := range entries {
		if entry.Selected {
			return entry, true
		}
	}
	return rib.Entry{}, false
}

func TestRouterIDFallback(t *testing.T) {
	reg, _ := newRegistry(t)
	c := reg.Default()
	must(t, c.CreateBGP(10))
	if got := routerID(t, c); got != "0.0.0.0" {
		t.Fatalf("RouterID() == %s, expected 0.0.0.0", got)
	}

	must(t, c.AddInterface("eth1"))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("9.0.0.1/8")))
	if got := routerID(t, c); got != "9.0.0.1" {
		t.Fatalf("RouterID() == %s, expected 9.0.0.1", got)
	}

	must(t, c.SetInterfaceShutdown("eth1", true))
	must(t, c.AddInterface("eth2"))
	must(t, c.AddInterfaceAddress("eth2", netip.MustParsePrefix("9.0.0.2/8")))
	if got := routerID(t, c); got != "9.0.0.2" {
		t.Fatalf("RouterID() == %s, expected 9.0.0.2", got)
	}

	// The current identifier is kept when eth1 is back
	must(t, c.SetInterfaceShutdown("eth1", false))
	if got := routerID(t, c); got != "9.0.0.2" {
		t.Fatalf("RouterID() == %s, expected 9.0.0.2", got)
	}
	ids, _ := c.RouterIDs()
	if diff := helpers.Diff(ids, map[string]netip.Addr{"bgp": netip.MustParseAddr("9.0.0.2")}); diff != "" {
		t.Fatalf("RouterIDs() (-got, +want):\n%s", diff)
	}
}

func TestRouterIDExplicit(t *testing.T) {
	reg, _ := newRegistry(t)
	c := reg.Default()
	must(t, c.CreateBGP(10))
	must(t, c.SetRouterID(netip.MustParseAddr("9.0.0.3")))
	if got := routerID(t, c); got != "9.0.0.3" {
		t.Fatalf("RouterID() == %s, expected 9.0.0.3", got)
	}
	must(t, c.AddInterface("eth1"))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("9.0.0.1/8")))
	if got := routerID(t, c); got != "9.0.0.3" {
		t.Fatalf("RouterID() == %s, expected 9.0.0.3", got)
	}

	if err := c.SetRouterID(netip.MustParseAddr("2001:db8::1")); !errors.Is(err, routing.ErrConfigurationRejected) {
		t.Fatalf("SetRouterID() error == %v, expected ErrConfigurationRejected", err)
	}
	if got := routerID(t, c); got != "9.0.0.3" {
		t.Fatalf("RouterID() == %s after rejected change, expected 9.0.0.3", got)
	}

	must(t, c.UnsetRouterID())
	if got := routerID(t, c); got != "9.0.0.1" {
		t.Fatalf("RouterID() == %s, expected 9.0.0.1", got)
	}
	must(t, c.RemoveInterface("eth1"))
	if got := routerID(t, c); got != "0.0.0.0" {
		t.Fatalf("RouterID() == %s, expected 0.0.0.0", got)
	}
}

func TestStaticRoutes(t *testing.T) {
	reg, _ := newRegistry(t)
	c := reg.Default()
	must(t, c.AddInterface("eth1"))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("10.0.20.1/24")))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("2001::1/64")))
	v4 := StaticRoute{
		Prefix:  netip.MustParsePrefix("10.0.30.0/24"),
		NextHop: netip.MustParseAddr("10.0.20.2"),
	}
	v6 := StaticRoute{
		Prefix:  netip.MustParsePrefix("2002::/120"),
		NextHop: netip.MustParseAddr("2001::2"),
	}
	must(t, c.AddStaticRoute(v4))
	must(t, c.AddStaticRoute(v6))

	for _, prefix := range []string{"10.0.30.0/24", "2002::/120"} {
		entry, ok := selected(t, c, prefix)
		if !ok || entry.Source != rib.SourceStatic || !entry.Reachable {
			t.Fatalf("selected(%s) == %+v, %v", prefix, entry, ok)
		}
	}
	if fwd, ok := c.Resolve(netip.MustParseAddr("10.0.30.1")); !ok || fwd.NextHop.Address != v4.NextHop {
		t.Fatalf("Resolve(10.0.30.1) == %+v, %v", fwd, ok)
	}
	if fwd, ok := c.Resolve(netip.MustParseAddr("2002::1")); !ok || fwd.NextHop.Address != v6.NextHop {
		t.Fatalf("Resolve(2002::1) == %+v, %v", fwd, ok)
	}

	must(t, c.RemoveStaticRoute(v4))
	if entries, _ := c.Lookup(v4.Prefix); len(entries) != 0 {
		t.Fatalf("Lookup(%s) == %v, expected nothing", v4.Prefix, entries)
	}
	if _, ok := c.Resolve(netip.MustParseAddr("10.0.30.1")); ok {
		t.Fatal("Resolve(10.0.30.1) still found a route")
	}
	if _, ok := selected(t, c, "2002::/120"); !ok {
		t.Fatal("IPv6 static route not selected anymore")
	}
	if err := c.RemoveStaticRoute(v4); !errors.Is(err, routing.ErrNotFound) {
		t.Fatalf("RemoveStaticRoute() error == %v, expected ErrNotFound", err)
	}
	if err := c.AddStaticRoute(StaticRoute{Prefix: v4.Prefix}); !errors.Is(err, routing.ErrConfigurationRejected) {
		t.Fatalf("AddStaticRoute() error == %v, expected ErrConfigurationRejected", err)
	}
}

func TestStaticReachability(t *testing.T) {
	reg, _ := newRegistry(t)
	c := reg.Default()
	must(t, c.AddInterface("eth1"))
	must(t, c.AddInterface("eth2"))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("10.0.1.1/24")))
	must(t, c.AddInterfaceAddress("eth2", netip.MustParsePrefix("10.0.2.1/24")))
	must(t, c.AddStaticRoute(StaticRoute{
		Prefix:  netip.MustParsePrefix("192.0.2.0/24"),
		NextHop: netip.MustParseAddr("10.0.1.2"),
	}))
	must(t, c.AddStaticRoute(StaticRoute{
		Prefix:   netip.MustParsePrefix("192.0.2.0/24"),
		NextHop:  netip.MustParseAddr("10.0.2.2"),
		Distance: 10,
	}))
	if entry, _ := selected(t, c, "192.0.2.0/24"); entry.NextHop != netip.MustParseAddr("10.0.1.2") {
		t.Fatalf("selected next hop == %s, expected 10.0.1.2", entry.NextHop)
	}

	must(t, c.SetInterfaceShutdown("eth1", true))
	if entry, _ := selected(t, c, "192.0.2.0/24"); entry.NextHop != netip.MustParseAddr("10.0.2.2") {
		t.Fatalf("selected next hop == %s, expected 10.0.2.2", entry.NextHop)
	}
	entries, _ := c.Lookup(netip.MustParsePrefix("192.0.2.0/24"))
	if len(entries) != 2 || entries[1].Reachable {
		t.Fatalf("Lookup() == %+v, expected an unreachable entry", entries)
	}

	must(t, c.SetInterfaceShutdown("eth2", true))
	if entry, ok := selected(t, c, "192.0.2.0/24"); ok {
		t.Fatalf("selected() == %+v, expected nothing", entry)
	}
	if _, ok := c.Resolve(netip.MustParseAddr("192.0.2.1")); ok {
		t.Fatal("Resolve(192.0.2.1) found a route")
	}

	must(t, c.SetInterfaceShutdown("eth1", false))
	if entry, _ := selected(t, c, "192.0.2.0/24"); entry.NextHop != netip.MustParseAddr("10.0.1.2") {
		t.Fatalf("selected next hop == %s, expected 10.0.1.2", entry.NextHop)
	}
}

func TestNeighborLifecycle(t *testing.T) {
	reg, _ := newRegistry(t)
	c := reg.Default()
	must(t, c.CreateBGP(10))
	addr := netip.MustParseAddr("1.1.1.1")
	must(t, c.AddNeighbor(addr, 1111))

	status, err := c.Neighbor(addr)
	if err != nil {
		t.Fatalf("Neighbor() error:\n%+v", err)
	}
	if status.Address != addr || status.RemoteAS != 1111 || status.LocalAS != 10 || status.Port != 179 {
		t.Fatalf("Neighbor() == %+v", status)
	}
	if status.State == bgp.StateEstablished {
		t.Fatalf("Neighbor() state == %s", status.State)
	}
	neighbors, _ := c.Neighbors()
	if len(neighbors) != 1 {
		t.Fatalf("Neighbors() == %+v", neighbors)
	}

	must(t, c.RemoveNeighbor(addr))
	if _, err := c.Neighbor(addr); !errors.Is(err, routing.ErrNotFound) {
		t.Fatalf("Neighbor() error == %v, expected ErrNotFound", err)
	}
	if neighbors, _ := c.Neighbors(); len(neighbors) != 0 {
		t.Fatalf("Neighbors() == %+v, expected nothing", neighbors)
	}
	if err := c.RemoveNeighbor(addr); !errors.Is(err, routing.ErrNotFound) {
		t.Fatalf("RemoveNeighbor() error == %v, expected ErrNotFound", err)
	}
}

func TestInstanceGuard(t *testing.T) {
	reg, _ := newRegistry(t)
	c := reg.Default()
	cases := []struct {
		Pos      helpers.Pos
		Err      error
		Expected error
	}{
		{helpers.Mark(), c.AddNeighbor(netip.MustParseAddr("1.1.1.1"), 1111), routing.ErrNotFound},
		{helpers.Mark(), c.CreateBGP(0), routing.ErrConfigurationRejected},
		{helpers.Mark(), c.CreateBGP(10), nil},
		{helpers.Mark(), c.CreateBGP(10), nil},
		{helpers.Mark(), c.CreateBGP(20), routing.ErrResourceExceeded},
		{helpers.Mark(), c.DeleteBGP(20), routing.ErrNotFound},
		{helpers.Mark(), c.CreateOSPF(0), nil},
		{helpers.Mark(), c.CreateOSPF(0), nil},
		{helpers.Mark(), c.CreateOSPF(3), routing.ErrResourceExceeded},
		{helpers.Mark(), c.DeleteOSPF(3), routing.ErrNotFound},
	}
	for _, tc := range cases {
		if !errors.Is(tc.Err, tc.Expected) {
			t.Errorf("%serror == %v, expected %v", tc.Pos, tc.Err, tc.Expected)
		}
	}
	got, _ := c.RunningConfig()
	expected := `router bgp 10
exit
!
router ospf
exit
!
`
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("RunningConfig() (-got, +want):\n%s", diff)
	}

	must(t, c.DeleteBGP(10))
	must(t, c.DeleteOSPF(0))
	must(t, c.CreateBGP(20))
	if got, _ := c.RunningConfig(); got != "router bgp 20\nexit\n!\n" {
		t.Fatalf("RunningConfig() == %q", got)
	}
}

func TestLearnedRoutes(t *testing.T) {
	reg, r := newRegistry(t)
	c := reg.Default()
	must(t, c.CreateBGP(65000))
	must(t, c.AddInterface("eth1"))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("10.0.0.1/24")))
	peer := netip.MustParseAddr("10.0.0.2")
	must(t, c.AddNeighbor(peer, 65001))
	generation := c.bgp.Generation(peer)
	if generation == 0 {
		t.Fatal("Generation() == 0")
	}

	c.LearnRoutes(peer, generation, false, []bgp.Path{
		{
			Prefix:  netip.MustParsePrefix("192.0.2.0/24"),
			NextHop: peer,
			ASPath:  []uint32{65001, 65002},
			MED:     5,
		}, {
			Prefix:  netip.MustParsePrefix("198.51.100.0/24"),
			NextHop: netip.MustParseAddr("172.16.0.1"),
			ASPath:  []uint32{65001},
		},
	}, nil)
	entry, ok := selected(t, c, "192.0.2.0/24")
	if !ok || entry.Source != rib.SourceBGP || entry.Distance != 20 || entry.Metric != 5 || entry.PeerAS != 65001 {
		t.Fatalf("selected(192.0.2.0/24) == %+v, %v", entry, ok)
	}
	if _, ok := selected(t, c, "198.51.100.0/24"); ok {
		t.Fatal("route with an unresolved next hop was selected")
	}

	// A static route to the next hop makes the second route usable
	must(t, c.AddStaticRoute(StaticRoute{
		Prefix:  netip.MustParsePrefix("172.16.0.0/16"),
		NextHop: peer,
	}))
	if _, ok := selected(t, c, "198.51.100.0/24"); !ok {
		t.Fatal("route with a recursive next hop was not selected")
	}

	// Static routes win over external routes
	must(t, c.AddStaticRoute(StaticRoute{
		Prefix:  netip.MustParsePrefix("192.0.2.0/24"),
		NextHop: netip.MustParseAddr("10.0.0.3"),
	}))
	if entry, _ := selected(t, c, "192.0.2.0/24"); entry.Source != rib.SourceStatic {
		t.Fatalf("selected(192.0.2.0/24) == %+v, expected static route", entry)
	}
	must(t, c.RemoveStaticRoute(StaticRoute{
		Prefix:  netip.MustParsePrefix("192.0.2.0/24"),
		NextHop: netip.MustParseAddr("10.0.0.3"),
	}))

	// Distance changes apply to known routes
	must(t, c.SetBGPDistance(bgp.Distances{External: 120, Internal: 200, Local: 200}))
	if entry, _ := selected(t, c, "192.0.2.0/24"); entry.Distance != 120 {
		t.Fatalf("selected(192.0.2.0/24) distance == %d, expected 120", entry.Distance)
	}

	// Next hop change replaces the route
	c.LearnRoutes(peer, generation, false, []bgp.Path{{
		Prefix:  netip.MustParsePrefix("192.0.2.0/24"),
		NextHop: netip.MustParseAddr("10.0.0.4"),
		ASPath:  []uint32{65001},
	}}, nil)
	entries, _ := c.Lookup(netip.MustParsePrefix("192.0.2.0/24"))
	if len(entries) != 1 || entries[0].NextHop != netip.MustParseAddr("10.0.0.4") {
		t.Fatalf("Lookup() == %+v", entries)
	}

	// Updates from a previous session are ignored
	c.LearnRoutes(peer, generation-1, false, nil, []netip.Prefix{netip.MustParsePrefix("192.0.2.0/24")})
	if _, ok := selected(t, c, "192.0.2.0/24"); !ok {
		t.Fatal("stale withdraw was applied")
	}
	gotMetrics := r.GetMetrics("ribd_router_vrf_", "stale_updates_total")
	expectedMetrics := map[string]string{
		`stale_updates_total{vrf="default"}`: "1",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}

	// Withdraw
	c.LearnRoutes(peer, generation, false, nil, []netip.Prefix{netip.MustParsePrefix("198.51.100.0/24")})
	if entries, _ := c.Lookup(netip.MustParsePrefix("198.51.100.0/24")); len(entries) != 0 {
		t.Fatalf("Lookup() == %+v after withdraw", entries)
	}

	// Session restart flushes the routes
	must(t, c.UpdateNeighbor(peer, func(nc *bgp.NeighborConfig) {
		nc.Timers = &bgp.Timers{Keepalive: 10, Hold: 30}
	}))
	if entries, _ := c.Lookup(netip.MustParsePrefix("192.0.2.0/24")); len(entries) != 0 {
		t.Fatalf("Lookup() == %+v after session restart", entries)
	}
	if c.bgp.Generation(peer) == generation {
		t.Fatal("Generation() did not change after restart")
	}

	// Routes are flushed when the session is lost or the neighbor is removed
	generation = c.bgp.Generation(peer)
	route := bgp.Path{Prefix: netip.MustParsePrefix("203.0.113.0/24"), NextHop: peer}
	c.LearnRoutes(peer, generation, false, []bgp.Path{route}, nil)
	c.SessionDown(peer, generation)
	if entries, _ := c.Lookup(route.Prefix); len(entries) != 0 {
		t.Fatalf("Lookup() == %+v after session down", entries)
	}
	c.LearnRoutes(peer, generation, false, []bgp.Path{route}, nil)
	must(t, c.RemoveNeighbor(peer))
	if entries, _ := c.Lookup(route.Prefix); len(entries) != 0 {
		t.Fatalf("Lookup() == %+v after neighbor removal", entries)
	}
}

func TestInternalRoutes(t *testing.T) {
	reg, _ := newRegistry(t)
	c := reg.Default()
	must(t, c.CreateBGP(65000))
	must(t, c.CreateOSPF(0))
	must(t, c.AddInterface("eth1"))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("10.0.0.1/24")))
	peer := netip.MustParseAddr("10.0.0.2")
	must(t, c.AddNeighbor(peer, 65000))
	c.LearnRoutes(peer, c.bgp.Generation(peer), true, []bgp.Path{{
		Prefix:  netip.MustParsePrefix("192.0.2.0/24"),
		NextHop: peer,
	}}, nil)
	entry, _ := selected(t, c, "192.0.2.0/24")
	if entry.Distance != 200 || entry.PeerAS != 65000 {
		t.Fatalf("selected(192.0.2.0/24) == %+v", entry)
	}

	// OSPF routes win over internal routes
	must(t, c.LearnOSPF(ospf.Route{
		Prefix:  netip.MustParsePrefix("192.0.2.0/24"),
		NextHop: netip.MustParseAddr("10.0.0.3"),
		Cost:    20,
	}))
	entry, _ = selected(t, c, "192.0.2.0/24")
	if entry.Source != rib.SourceOSPF || entry.Distance != 110 || entry.Metric != 20 {
		t.Fatalf("selected(192.0.2.0/24) == %+v", entry)
	}
	if routes, _ := c.OSPFRoutes(); len(routes) != 1 {
		t.Fatalf("OSPFRoutes() == %+v", routes)
	}
	must(t, c.ForgetOSPF(netip.MustParsePrefix("192.0.2.0/24"), netip.MustParseAddr("10.0.0.3")))
	if entry, _ := selected(t, c, "192.0.2.0/24"); entry.Source != rib.SourceBGP {
		t.Fatalf("selected(192.0.2.0/24) == %+v, expected BGP route", entry)
	}

	// Deleting the instances removes their routes
	must(t, c.LearnOSPF(ospf.Route{
		Prefix:  netip.MustParsePrefix("198.51.100.0/24"),
		NextHop: netip.MustParseAddr("10.0.0.3"),
	}))
	must(t, c.DeleteOSPF(0))
	must(t, c.DeleteBGP(65000))
	for _, family := range routing.Families {
		entries, _ := c.Routes(family)
		for _, entry := range entries {
			if entry.Source != rib.SourceConnected {
				t.Errorf("Routes(%s) contains %s", family, entry)
			}
		}
	}
}

func TestRunningConfig(t *testing.T) {
	reg, _ := newRegistry(t)
	c := reg.Default()
	must(t, c.AddInterface("eth1"))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("10.0.20.1/24")))
	must(t, c.AddInterfaceAddress("eth1", netip.MustParsePrefix("2001::1/64")))
	must(t, c.AddInterface("eth2"))
	must(t, c.SetInterfaceShutdown("eth2", true))
	must(t, c.AddStaticRoute(StaticRoute{
		Prefix:  netip.MustParsePrefix("2002::/120"),
		NextHop: netip.MustParseAddr("2001::2"),
	}))
	must(t, c.AddStaticRoute(StaticRoute{
		Prefix:    netip.MustParsePrefix("10.0.40.0/24"),
		Interface: "eth1",
		Distance:  5,
	}))
	must(t, c.AddStaticRoute(StaticRoute{
		Prefix:  netip.MustParsePrefix("10.0.30.0/24"),
		NextHop: netip.MustParseAddr("10.0.20.2"),
	}))
	must(t, c.CreateBGP(10))
	must(t, c.SetRouterID(netip.MustParseAddr("9.0.0.3")))
	must(t, c.SetTimers(bgp.Timers{Keepalive: 10, Hold: 30}))
	must(t, c.AddPeerGroup("core"))
	must(t, c.SetPeerGroupRemoteAS("core", 20))
	must(t, c.AddNeighbor(netip.MustParseAddr("1.1.1.1"), 1111))
	must(t, c.UpdateNeighbor(netip.MustParseAddr("1.1.1.1"), func(nc *bgp.NeighborConfig) {
		nc.Description = "peer one"
		nc.AllowASIn = 2
		nc.SoftReconfigurationInbound = true
	}))
	must(t, c.BindNeighbor(netip.MustParseAddr("2.2.2.2"), "core"))
	must(t, c.AddNetwork(netip.MustParsePrefix("192.0.2.0/24")))
	must(t, c.CreateOSPF(0))
	area, _ := ospf.ParseArea("0")
	must(t, c.AddOSPFNetwork(netip.MustParsePrefix("10.0.20.0/24"), area))

	got, err := c.RunningConfig()
	if err != nil {
		t.Fatalf("RunningConfig() error:\n%+v", err)
	}
	expected := `interface eth1
 ip address 10.0.20.1/24
 ipv6 address 2001::1/64
exit
!
interface eth2
 shutdown
exit
!
ip route 10.0.30.0/24 10.0.20.2
ip route 10.0.40.0/24 eth1 5
ipv6 route 2002::/120 2001::2
!
router bgp 10
 bgp router-id 9.0.0.3
 timers bgp 10 30
 neighbor core peer-group
 neighbor core remote-as 20
 neighbor 1.1.1.1 remote-as 1111
 neighbor 1.1.1.1 description peer one
 neighbor 2.2.2.2 peer-group core
 !
 address-family ipv4 unicast
  network 192.0.2.0/24
  neighbor 1.1.1.1 allowas-in 2
  neighbor 1.1.1.1 soft-reconfiguration inbound
 exit-address-family
exit
!
router ospf
 network 10.0.20.0/24 area 0
exit
!
`
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("RunningConfig() (-got, +want):\n%s", diff)
	}

	red, err := reg.Create("red")
	if err != nil {
		t.Fatalf("Create() error:\n%+v", err)
	}
	must(t, red.AddInterface("eth3"))
	must(t, red.AddInterfaceAddress("eth3", netip.MustParsePrefix("10.1.0.1/24")))
	must(t, red.AddStaticRoute(StaticRoute{
		Prefix:  netip.MustParsePrefix("0.0.0.0/0"),
		NextHop: netip.MustParseAddr("10.1.0.254"),
	}))
	must(t, red.CreateBGP(65000))
	got, _ = red.RunningConfig()
	expected = `interface eth3 vrf red
 ip address 10.1.0.1/24
exit
!
vrf red
 ip route 0.0.0.0/0 10.1.0.254
exit-vrf
!
router bgp 65000 vrf red
exit
!
`
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("RunningConfig() (-got, +want):\n%s", diff)
	}

	// The default context is not affected
	if got, _ := c.RunningConfig(); !strings.Contains(got, "interface eth1\n") || strings.Contains(got, "eth3") {
		t.Fatalf("RunningConfig() == %s", got)
	}
}

func TestRegistry(t *testing.T) {
	reg, r := newRegistry(t)
	if err := reg.Delete(DefaultName); !errors.Is(err, routing.ErrConfigurationRejected) {
		t.Fatalf("Delete() error == %v, expected ErrConfigurationRejected", err)
	}
	for _, name := range []string{"", "with space", "-dash"} {
		if _, err := reg.Create(name); !errors.Is(err, routing.ErrConfigurationRejected) {
			t.Errorf("Create(%q) error == %v, expected ErrConfigurationRejected", name, err)
		}
	}
	red, err := reg.Create("red")
	if err != nil {
		t.Fatalf("Create() error:\n%+v", err)
	}
	if _, err := reg.Create("red"); !errors.Is(err, routing.ErrConfigurationRejected) {
		t.Fatalf("Create() error == %v, expected ErrConfigurationRejected", err)
	}
	if diff := helpers.Diff(reg.Names(), []string{"default", "red"}); diff != "" {
		t.Fatalf("Names() (-got, +want):\n%s", diff)
	}

	must(t, red.AddInterface("eth1"))
	must(t, red.AddInterfaceAddress("eth1", netip.MustParsePrefix("10.0.0.1/24")))
	must(t, red.CreateBGP(65000))
	must(t, red.AddNeighbor(netip.MustParseAddr("10.0.0.2"), 65001))
	if fwd := red.Forwarding(routing.IPv4); len(fwd) != 1 {
		t.Fatalf("Forwarding() == %+v", fwd)
	}
	// Interfaces of another context are not visible
	if err := reg.Default().AddInterfaceAddress("eth1", netip.MustParsePrefix("10.0.1.1/24")); !errors.Is(err, routing.ErrNotFound) {
		t.Fatalf("AddInterfaceAddress() error == %v, expected ErrNotFound", err)
	}

	must(t, reg.Delete("red"))
	if fwd := red.Forwarding(routing.IPv4); len(fwd) != 0 {
		t.Fatalf("Forwarding() == %+v after delete", fwd)
	}
	if _, err := red.Neighbors(); !errors.Is(err, routing.ErrNotFound) {
		t.Fatalf("Neighbors() error == %v, expected ErrNotFound", err)
	}
	if _, err := reg.Get("red"); !errors.Is(err, routing.ErrNotFound) {
		t.Fatalf("Get() error == %v, expected ErrNotFound", err)
	}

	gotMetrics := r.GetMetrics("ribd_router_vrf_", "contexts")
	if diff := helpers.Diff(gotMetrics, map[string]string{"contexts": "1"}); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}
