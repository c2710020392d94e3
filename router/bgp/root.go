// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package bgp manages the BGP instance of a routing context: its
// configuration, its neighbors and their sessions. Each neighbor has
// its own session goroutine. Routes learned over a session are handed
// to a RouteSink.
//
// Session goroutines never call the sink while holding the manager
// lock. The sink is expected to check with Current that the session is
// still the active one before accepting routes.
package bgp

import (
	"fmt"
	"net/netip"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"

	"ribd/common/reporter"
	"ribd/router/routing"
)

// Manager is a BGP instance.
type Manager struct {
	r       *reporter.Reporter
	vrf     string
	config  Configuration
	d       *Dependencies
	metrics metrics

	mu         sync.Mutex
	wg         sync.WaitGroup
	stopped    bool
	asn        uint32
	routerID   netip.Addr
	timers     *Timers
	distances  Distances
	neighbors  map[netip.Addr]*neighbor
	peerGroups map[string]*PeerGroup
	networks   []netip.Prefix
	generation uint64
	resets     []netip.Addr
}

// Dependencies define the dependencies of a BGP instance.
type Dependencies struct {
	Sink  RouteSink
	Clock clock.Clock
}

// RouteSink receives the routes learned over sessions.
type RouteSink interface {
	// LearnRoutes is called with the routes announced and withdrawn
	// in an UPDATE message.
	LearnRoutes(peer netip.Addr, generation uint64, internal bool, announced []Path, withdrawn []netip.Prefix)
	// SessionDown is called when an established session is lost.
	SessionDown(peer netip.Addr, generation uint64)
}

// Path is a route received from a neighbor.
type Path struct {
	Prefix  netip.Prefix
	NextHop netip.Addr
	ASPath  []uint32
	MED     uint32
}

// New creates a new BGP instance.
func New(r *reporter.Reporter, vrf string, asn uint32, configuration Configuration, dependencies Dependencies) (*Manager, error) {
	if err := ValidateASN(asn); err != nil {
		return nil, err
	}
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	m := Manager{
		r:          r,
		vrf:        vrf,
		config:     configuration,
		d:          &dependencies,
		asn:        asn,
		routerID:   netip.IPv4Unspecified(),
		distances:  DefaultDistances(),
		neighbors:  make(map[netip.Addr]*neighbor),
		peerGroups: make(map[string]*PeerGroup),
	}
	m.initMetrics()
	return &m, nil
}

// ASN returns the local AS number.
func (m *Manager) ASN() uint32 {
	return m.asn
}

// RouterID returns the router identifier used in new sessions.
func (m *Manager) RouterID() netip.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routerID
}

// SetRouterID changes the router identifier. Established sessions are
// kept. New sessions use the new identifier.
func (m *Manager) SetRouterID(id netip.Addr) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.routerID = id
}

// SetTimers sets the instance timers. Neighbors without their own
// timers are restarted to use them.
func (m *Manager) SetTimers(timers Timers) error {
	if err := timers.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timers != nil && *m.timers == timers {
		return nil
	}
	m.timers = &timers
	m.restartInheriting()
	return nil
}

// UnsetTimers reverts instance timers to the defaults. Neighbor
// timers are not changed.
func (m *Manager) UnsetTimers() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timers == nil {
		return
	}
	m.timers = nil
	m.restartInheriting()
}

// Timers returns the instance timers and whether they are configured.
func (m *Manager) Timers() (Timers, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.timers == nil {
		return DefaultTimers(), false
	}
	return *m.timers, true
}

// restartInheriting restarts sessions using the instance timers. The
// lock should be held.
func (m *Manager) restartInheriting() {
	for _, n := range m.neighbors {
		if n.config.Timers == nil {
			m.restart(n)
		}
	}
}

// effectiveTimers returns the timers of a neighbor. The lock should be
// held.
func (m *Manager) effectiveTimers(n *neighbor) Timers {
	switch {
	case n.config.Timers != nil:
		return *n.config.Timers
	case m.timers != nil:
		return *m.timers
	default:
		return DefaultTimers()
	}
}

// SetDistances changes the administrative distances of BGP routes.
func (m *Manager) SetDistances(distances Distances) error {
	if err := distances.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.distances = distances
	return nil
}

// Distances returns the administrative distances of BGP routes.
func (m *Manager) Distances() Distances {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.distances
}

// AddNetwork adds a network statement.
func (m *Manager) AddNetwork(prefix netip.Prefix) error {
	prefix, err := routing.CanonicalPrefix(prefix)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if !slices.Contains(m.networks, prefix) {
		m.networks = append(m.networks, prefix)
		slices.SortFunc(m.networks, routing.ComparePrefixes)
	}
	return nil
}

// RemoveNetwork removes a network statement.
func (m *Manager) RemoveNetwork(prefix netip.Prefix) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	idx := slices.Index(m.networks, prefix.Masked())
	if idx < 0 {
		return fmt.Errorf("network %s: %w", prefix, routing.ErrNotFound)
	}
	m.networks = slices.Delete(m.networks, idx, idx+1)
	return nil
}

// Networks returns the network statements.
func (m *Manager) Networks() []netip.Prefix {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.networks)
}

// Current tells if the provided generation is the active session of a
// neighbor.
func (m *Manager) Current(peer netip.Addr, generation uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.neighbors[peer]
	return ok && !m.stopped && n.session != nil && n.session.generation == generation
}

// Resets returns the neighbors whose session was stopped or restarted
// by a configuration change since the last call. Routes learned from
// them are stale.
func (m *Manager) Resets() []netip.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	resets := m.resets
	m.resets = nil
	slices.SortFunc(resets, netip.Addr.Compare)
	return slices.Compact(resets)
}

// Stop stops all the sessions and waits for them to terminate.
func (m *Manager) Stop() error {
	m.mu.Lock()
	m.stopped = true
	for _, n := range m.neighbors {
		m.stopSession(n)
	}
	m.mu.Unlock()
	m.wg.Wait()
	m.r.Debug().Str("vrf", m.vrf).Uint32("asn", m.asn).Msg("BGP instance stopped")
	return nil
}
