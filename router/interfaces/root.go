// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package interfaces keeps the state of the router interfaces: their
// administrative and operational state as well as their addresses.
// Changes are pushed synchronously to subscribers.
package interfaces

import (
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"sync"

	"ribd/common/reporter"
	"ribd/router/routing"
)

// Table is the interface state table.
type Table struct {
	r       *reporter.Reporter
	metrics metrics

	mu         sync.Mutex
	interfaces map[string]*Interface
	lastIndex  uint32
	lastWatch  uint64
	watchers   map[uint64]watcher
}

type watcher struct {
	vrf string
	fn  func(Event)
}

// New creates a new interface state table.
func New(r *reporter.Reporter) *Table {
	t := Table{
		r:          r,
		interfaces: make(map[string]*Interface),
		watchers:   make(map[uint64]watcher),
	}
	t.initMetrics()
	return &t
}

// Watch registers a function called on each change of an interface
// bound to the provided VRF. It is first called with a Synchronized
// event carrying the current interfaces. The function is called with
// the table lock held and should not call the table back. The returned
// function cancels the registration.
func (t *Table) Watch(vrf string, fn func(Event)) func() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastWatch++
	id := t.lastWatch
	t.watchers[id] = watcher{vrf: vrf, fn: fn}
	fn(Event{Kind: Synchronized, Interfaces: t.list(vrf)})
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		delete(t.watchers, id)
	}
}

// Add creates a new interface, administratively and physically up.
// Adding an existing interface to the same VRF does nothing.
func (t *Table) Add(name, vrf string) error {
	if name == "" {
		return routing.Rejectf("empty interface name")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if iface, ok := t.interfaces[name]; ok {
		if iface.VRF != vrf {
			return routing.Rejectf("interface %s already bound to VRF %q", name, iface.VRF)
		}
		return nil
	}
	t.lastIndex++
	iface := &Interface{
		Name:    name,
		Index:   t.lastIndex,
		VRF:     vrf,
		AdminUp: true,
		LinkUp:  true,
	}
	t.interfaces[name] = iface
	t.r.Debug().Str("interface", name).Uint32("index", iface.Index).Msg("interface added")
	t.notify(Event{Kind: InterfaceAdded, Interface: iface.clone()})
	return nil
}

// Remove deletes an interface. Its addresses are removed first.
func (t *Table) Remove(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	iface, ok := t.interfaces[name]
	if !ok {
		return fmt.Errorf("interface %s: %w", name, routing.ErrNotFound)
	}
	for len(iface.Addresses) > 0 {
		prefix := iface.Addresses[len(iface.Addresses)-1]
		iface.Addresses = iface.Addresses[:len(iface.Addresses)-1]
		t.notify(Event{Kind: AddressRemoved, Interface: iface.clone(), Prefix: prefix})
	}
	delete(t.interfaces, name)
	t.r.Debug().Str("interface", name).Msg("interface removed")
	t.notify(Event{Kind: InterfaceRemoved, Interface: iface.clone()})
	return nil
}

// SetAdminState changes the administrative state of an interface
// (shutdown or no shutdown).
func (t *Table) SetAdminState(name string, up bool) error {
	return t.setState(name, func(iface *Interface) { iface.AdminUp = up })
}

// SetLinkState changes the physical state of an interface.
func (t *Table) SetLinkState(name string, up bool) error {
	return t.setState(name, func(iface *Interface) { iface.LinkUp = up })
}

func (t *Table) setState(name string, change func(*Interface)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	iface, ok := t.interfaces[name]
	if !ok {
		return fmt.Errorf("interface %s: %w", name, routing.ErrNotFound)
	}
	previous := *iface
	change(iface)
	if previous.AdminUp == iface.AdminUp && previous.LinkUp == iface.LinkUp {
		return nil
	}
	if previous.OperUp() != iface.OperUp() {
		t.metrics.operChanges.WithLabelValues(iface.VRF).Inc()
		t.r.Info().
			Str("interface", name).
			Bool("up", iface.OperUp()).
			Msg("interface operational state changed")
	}
	t.notify(Event{Kind: StateChanged, Interface: iface.clone()})
	return nil
}

// AddAddress adds an address to an interface. The prefix length
// describes the connected subnet. Adding an existing address does
// nothing.
func (t *Table) AddAddress(name string, prefix netip.Prefix) error {
	if !prefix.IsValid() || prefix.Addr().Is4In6() || prefix.Addr().Zone() != "" {
		return routing.Rejectf("invalid interface address %q", prefix)
	}
	if prefix.Addr().IsUnspecified() || prefix.Addr().IsMulticast() {
		return routing.Rejectf("address %s cannot be assigned to an interface", prefix)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	iface, ok := t.interfaces[name]
	if !ok {
		return fmt.Errorf("interface %s: %w", name, routing.ErrNotFound)
	}
	if slices.Contains(iface.Addresses, prefix) {
		return nil
	}
	iface.Addresses = append(iface.Addresses, prefix)
	t.notify(Event{Kind: AddressAdded, Interface: iface.clone(), Prefix: prefix})
	return nil
}

// RemoveAddress removes an address from an interface.
func (t *Table) RemoveAddress(name string, prefix netip.Prefix) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	iface, ok := t.interfaces[name]
	if !ok {
		return fmt.Errorf("interface %s: %w", name, routing.ErrNotFound)
	}
	idx := slices.Index(iface.Addresses, prefix)
	if idx < 0 {
		return fmt.Errorf("address %s on %s: %w", prefix, name, routing.ErrNotFound)
	}
	iface.Addresses = slices.Delete(iface.Addresses, idx, idx+1)
	t.notify(Event{Kind: AddressRemoved, Interface: iface.clone(), Prefix: prefix})
	return nil
}

// Get returns a copy of the named interface.
func (t *Table) Get(name string) (Interface, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	iface, ok := t.interfaces[name]
	if !ok {
		return Interface{}, false
	}
	return iface.clone(), true
}

// List returns a copy of the interfaces bound to the provided VRF,
// ordered by index.
func (t *Table) List(vrf string) []Interface {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.list(vrf)
}

func (t *Table) list(vrf string) []Interface {
	result := []Interface{}
	for _, iface := range t.interfaces {
		if iface.VRF == vrf {
			result = append(result, iface.clone())
		}
	}
	slices.SortFunc(result, func(a, b Interface) int {
		return int(a.Index) - int(b.Index)
	})
	return result
}

// notify sends an event to the watchers of the VRF of the interface.
// The lock should be held.
func (t *Table) notify(event Event) {
	event.Interfaces = t.list(event.Interface.VRF)
	t.metrics.events.WithLabelValues(event.Kind.String()).Inc()
	ids := slices.Sorted(maps.Keys(t.watchers))
	for _, id := range ids {
		if w := t.watchers[id]; w.vrf == event.Interface.VRF {
			w.fn(event)
		}
	}
}
