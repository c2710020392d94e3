// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package fib

import (
	"net/netip"
	"testing"

	"ribd/common/helpers"
	"ribd/common/reporter"
	"ribd/router/routing"
)

func TestInstallWithdraw(t *testing.T) {
	r := reporter.NewMock(t)
	table := New(r, "default")

	nh1 := routing.NextHop{Address: netip.MustParseAddr("10.0.20.2")}
	nh2 := routing.NextHop{Interface: "eth1"}
	nh3 := routing.NextHop{Address: netip.MustParseAddr("2001::2")}
	table.Install(routing.IPv4, netip.MustParsePrefix("10.0.30.0/24"), nh1)
	table.Install(routing.IPv4, netip.MustParsePrefix("10.0.30.0/24"), nh1)
	table.Install(routing.IPv4, netip.MustParsePrefix("10.0.20.0/24"), nh2)
	table.Install(routing.IPv4, netip.MustParsePrefix("0.0.0.0/0"), nh2)
	table.Install(routing.IPv6, netip.MustParsePrefix("2002::/120"), nh3)

	cases := []struct {
		Pos      helpers.Pos
		Addr     string
		Expected Route
		Found    bool
	}{
		{helpers.Mark(), "10.0.30.4", Route{netip.MustParsePrefix("10.0.30.0/24"), nh1}, true},
		{helpers.Mark(), "10.0.20.4", Route{netip.MustParsePrefix("10.0.20.0/24"), nh2}, true},
		{helpers.Mark(), "192.0.2.1", Route{netip.MustParsePrefix("0.0.0.0/0"), nh2}, true},
		{helpers.Mark(), "::ffff:10.0.30.4", Route{netip.MustParsePrefix("10.0.30.0/24"), nh1}, true},
		{helpers.Mark(), "2002::10", Route{netip.MustParsePrefix("2002::/120"), nh3}, true},
		{helpers.Mark(), "2002::1:10", Route{}, false},
	}
	for _, tc := range cases {
		got, ok := table.Lookup(netip.MustParseAddr(tc.Addr))
		if ok != tc.Found {
			t.Errorf("%sLookup(%s) found == %v", tc.Pos, tc.Addr, ok)
			continue
		}
		if diff := helpers.Diff(got, tc.Expected); diff != "" {
			t.Errorf("%sLookup(%s) (-got, +want):\n%s", tc.Pos, tc.Addr, diff)
		}
	}

	table.Withdraw(routing.IPv4, netip.MustParsePrefix("0.0.0.0/0"))
	table.Withdraw(routing.IPv4, netip.MustParsePrefix("0.0.0.0/0"))
	table.Withdraw(routing.IPv6, netip.MustParsePrefix("2003::/120"))

	got := table.Routes(routing.IPv4)
	expected := []Route{
		{netip.MustParsePrefix("10.0.20.0/24"), nh2},
		{netip.MustParsePrefix("10.0.30.0/24"), nh1},
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("Routes() (-got, +want):\n%s", diff)
	}

	gotMetrics := r.GetMetrics("ribd_router_fib_")
	expectedMetrics := map[string]string{
		`operations_total{family="ipv4",operation="install",vrf="default"}`:  "3",
		`operations_total{family="ipv4",operation="withdraw",vrf="default"}`: "1",
		`operations_total{family="ipv6",operation="install",vrf="default"}`:  "1",
		`routes{family="ipv4",vrf="default"}`:                                "2",
		`routes{family="ipv6",vrf="default"}`:                                "1",
	}
	if diff := helpers.Diff(gotMetrics, expectedMetrics); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}
}

func TestLookupKeepsFamiliesApart(t *testing.T) {
	r := reporter.NewMock(t)
	table := New(r, "default")
	nh := routing.NextHop{Interface: "eth0"}
	table.Install(routing.IPv6, netip.MustParsePrefix("::/0"), nh)

	if got, ok := table.Lookup(netip.MustParseAddr("192.0.2.1")); ok {
		t.Errorf("Lookup(192.0.2.1) == %v, expected no route", got)
	}
	got, ok := table.Lookup(netip.MustParseAddr("2001:db8::1"))
	if !ok {
		t.Fatal("Lookup(2001:db8::1) found no route")
	}
	if diff := helpers.Diff(got, Route{netip.MustParsePrefix("::/0"), nh}); diff != "" {
		t.Errorf("Lookup(2001:db8::1) (-got, +want):\n%s", diff)
	}
	if got := table.Routes(routing.IPv4); len(got) != 0 {
		t.Errorf("Routes(ipv4) == %v, expected none", got)
	}
}
