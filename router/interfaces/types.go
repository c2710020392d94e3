// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package interfaces

import (
	"net/netip"
	"slices"
)

// Interface is the state of one interface.
type Interface struct {
	Name string `json:"name"`
	// Index is allocated when the interface is created. It never
	// decreases.
	Index uint32 `json:"index"`
	VRF   string `json:"vrf"`
	// AdminUp is false when the interface is shut down.
	AdminUp bool `json:"admin-up"`
	// LinkUp reflects the physical state.
	LinkUp bool `json:"link-up"`
	// Addresses are the configured addresses, in configuration order.
	Addresses []netip.Prefix `json:"addresses"`
}

// OperUp tells if the interface is operationally up.
func (i Interface) OperUp() bool {
	return i.AdminUp && i.LinkUp
}

// ActiveAddresses returns the addresses in use. An interface which is
// not operationally up has no active address.
func (i Interface) ActiveAddresses() []netip.Prefix {
	if !i.OperUp() {
		return nil
	}
	return i.Addresses
}

// FirstIPv4 returns the first configured IPv4 address of an
// operationally up interface.
func (i Interface) FirstIPv4() (netip.Addr, bool) {
	for _, prefix := range i.ActiveAddresses() {
		if prefix.Addr().Is4() {
			return prefix.Addr(), true
		}
	}
	return netip.Addr{}, false
}

func (i *Interface) clone() Interface {
	c := *i
	c.Addresses = slices.Clone(i.Addresses)
	return c
}

// EventKind is the kind of change notified to subscribers.
type EventKind int

const (
	// InterfaceAdded is sent when an interface is created.
	InterfaceAdded EventKind = iota
	// InterfaceRemoved is sent when an interface is deleted.
	InterfaceRemoved
	// StateChanged is sent when the admin or link state changes.
	StateChanged
	// AddressAdded is sent when an address is added.
	AddressAdded
	// AddressRemoved is sent when an address is removed.
	AddressRemoved
	// Synchronized is sent once to a new watcher with the current state.
	Synchronized
)

// String turns an event kind into a string.
func (k EventKind) String() string {
	switch k {
	case InterfaceAdded:
		return "interface-added"
	case InterfaceRemoved:
		return "interface-removed"
	case StateChanged:
		return "state-changed"
	case AddressAdded:
		return "address-added"
	case AddressRemoved:
		return "address-removed"
	case Synchronized:
		return "synchronized"
	default:
		return "unknown"
	}
}

// Event describes a change in the table.
type Event struct {
	Kind EventKind
	// Interface is the interface after the change.
	Interface Interface
	// Prefix is the added or removed address, if any.
	Prefix netip.Prefix
	// Interfaces is a snapshot of all the interfaces of the same VRF
	// after the change, ordered by index.
	Interfaces []Interface
}
