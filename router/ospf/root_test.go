// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package ospf

import (
	"errors"
	"net/netip"
	"strings"
	"testing"

	"ribd/common/helpers"
	"ribd/common/reporter"
	"ribd/router/routing"
)

func TestParseArea(t *testing.T) {
	cases := []struct {
		Pos      helpers.Pos
		Input    string
		Expected Area
		Error    bool
	}{
		{helpers.Mark(), "0", Area{ID: 0}, false},
		{helpers.Mark(), "0.0.0.0", Area{ID: 0, Dotted: true}, false},
		{helpers.Mark(), "0.0.1.2", Area{ID: 258, Dotted: true}, false},
		{helpers.Mark(), "4294967295", Area{ID: 4294967295}, false},
		{helpers.Mark(), "4294967296", Area{}, true},
		{helpers.Mark(), "backbone", Area{}, true},
		{helpers.Mark(), "::1", Area{}, true},
	}
	for _, tc := range cases {
		got, err := ParseArea(tc.Input)
		if err != nil && !tc.Error {
			t.Errorf("%sParseArea(%q) error:\n%+v", tc.Pos, tc.Input, err)
			continue
		} else if err == nil && tc.Error {
			t.Errorf("%sParseArea(%q) no error", tc.Pos, tc.Input)
			continue
		}
		if diff := helpers.Diff(got, tc.Expected); diff != "" {
			t.Errorf("%sParseArea(%q) (-got, +want):\n%s", tc.Pos, tc.Input, diff)
		}
		if !tc.Error && got.String() != tc.Input {
			t.Errorf("%sString() == %q, expected %q", tc.Pos, got.String(), tc.Input)
		}
	}
}

func TestNetworks(t *testing.T) {
	i := New(reporter.NewMock(t), "default", 0)
	backbone, _ := ParseArea("0")
	dotted, _ := ParseArea("0.0.0.1")
	if err := i.AddNetwork(netip.MustParsePrefix("10.0.1.1/24"), dotted); err != nil {
		t.Fatalf("AddNetwork() error:\n%+v", err)
	}
	if err := i.AddNetwork(netip.MustParsePrefix("10.0.0.0/24"), backbone); err != nil {
		t.Fatalf("AddNetwork() error:\n%+v", err)
	}
	if err := i.AddNetwork(netip.MustParsePrefix("10.0.0.0/24"), dotted); !errors.Is(err, routing.ErrConfigurationRejected) {
		t.Fatalf("AddNetwork() error == %v, expected ErrConfigurationRejected", err)
	}
	if err := i.AddNetwork(netip.MustParsePrefix("2001:db8::/32"), backbone); !errors.Is(err, routing.ErrConfigurationRejected) {
		t.Fatalf("AddNetwork() error == %v, expected ErrConfigurationRejected", err)
	}

	var got strings.Builder
	i.WriteConfig(&got, "", netip.MustParseAddr("9.0.0.3"))
	expected := `router ospf
 ospf router-id 9.0.0.3
 network 10.0.0.0/24 area 0
 network 10.0.1.0/24 area 0.0.0.1
exit
`
	if diff := helpers.Diff(got.String(), expected); diff != "" {
		t.Fatalf("WriteConfig() (-got, +want):\n%s", diff)
	}

	if err := i.RemoveNetwork(netip.MustParsePrefix("10.0.1.0/24"), backbone); !errors.Is(err, routing.ErrNotFound) {
		t.Fatalf("RemoveNetwork() error == %v, expected ErrNotFound", err)
	}
	i.RemoveNetwork(netip.MustParsePrefix("10.0.1.0/24"), dotted)
	got.Reset()
	i.WriteConfig(&got, "red", netip.Addr{})
	expected = `router ospf vrf red
 network 10.0.0.0/24 area 0
exit
`
	if diff := helpers.Diff(got.String(), expected); diff != "" {
		t.Fatalf("WriteConfig() (-got, +want):\n%s", diff)
	}
}

func TestRoutes(t *testing.T) {
	r := reporter.NewMock(t)
	i := New(r, "default", 0)
	learn := func(prefix, nh string, cost uint32) error {
		_, err := i.Learn(Route{
			Prefix:  netip.MustParsePrefix(prefix),
			NextHop: netip.MustParseAddr(nh),
			Cost:    cost,
		})
		return err
	}
	learn("10.0.2.0/24", "10.0.0.2", 10)
	learn("10.0.1.0/24", "10.0.0.3", 20)
	learn("10.0.1.0/24", "10.0.0.2", 20)
	learn("10.0.1.0/24", "10.0.0.2", 30)
	if err := learn("10.0.1.0/24", "2001:db8::1", 10); !errors.Is(err, routing.ErrConfigurationRejected) {
		t.Fatalf("Learn() error == %v, expected ErrConfigurationRejected", err)
	}
	if err := learn("10.0.1.0/24", "10.0.0.2", MaxCost+1); !errors.Is(err, routing.ErrConfigurationRejected) {
		t.Fatalf("Learn() error == %v, expected ErrConfigurationRejected", err)
	}

	expected := []Route{
		{netip.MustParsePrefix("10.0.1.0/24"), netip.MustParseAddr("10.0.0.2"), 30},
		{netip.MustParsePrefix("10.0.1.0/24"), netip.MustParseAddr("10.0.0.3"), 20},
		{netip.MustParsePrefix("10.0.2.0/24"), netip.MustParseAddr("10.0.0.2"), 10},
	}
	if diff := helpers.Diff(i.Routes(), expected); diff != "" {
		t.Fatalf("Routes() (-got, +want):\n%s", diff)
	}

	if err := i.Forget(netip.MustParsePrefix("10.0.1.0/24"), netip.MustParseAddr("10.0.0.3")); err != nil {
		t.Fatalf("Forget() error:\n%+v", err)
	}
	if err := i.Forget(netip.MustParsePrefix("10.0.1.0/24"), netip.MustParseAddr("10.0.0.3")); !errors.Is(err, routing.ErrNotFound) {
		t.Fatalf("Forget() error == %v, expected ErrNotFound", err)
	}
	gotMetrics := r.GetMetrics("ribd_router_ospf_")
	if diff := helpers.Diff(gotMetrics, map[string]string{`routes{vrf="default"}`: "2"}); diff != "" {
		t.Fatalf("Metrics (-got, +want):\n%s", diff)
	}

	if got := i.Flush(); len(got) != 2 {
		t.Fatalf("Flush() == %v", got)
	}
	if got := i.Routes(); len(got) != 0 {
		t.Fatalf("Routes() == %v after Flush()", got)
	}
}

func TestInstanceNumber(t *testing.T) {
	i := New(reporter.NewMock(t), "red", 2)
	var got strings.Builder
	i.WriteConfig(&got, "red", netip.Addr{})
	if diff := helpers.Diff(got.String(), "router ospf 2 vrf red\nexit\n"); diff != "" {
		t.Fatalf("WriteConfig() (-got, +want):\n%s", diff)
	}
}
