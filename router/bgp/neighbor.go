// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package bgp

import (
	"fmt"
	"net/netip"
	"slices"
	"strings"
	"time"

	"github.com/osrg/gobgp/v3/pkg/packet/bgp"

	"ribd/router/routing"
)

// State is the state of a BGP session.
type State int

const (
	// StateIdle is for sessions not trying to connect.
	StateIdle State = iota
	// StateConnect is for sessions waiting for the TCP connection.
	StateConnect
	// StateActive is for sessions waiting before connecting again.
	StateActive
	// StateOpenSent is for sessions waiting for an OPEN message.
	StateOpenSent
	// StateOpenConfirm is for sessions waiting for a KEEPALIVE message.
	StateOpenConfirm
	// StateEstablished is for established sessions.
	StateEstablished
)

var stateNames = []string{"Idle", "Connect", "Active", "OpenSent", "OpenConfirm", "Established"}

// String turns a state into a string.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// MarshalText turns a state into text.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// MessageCounters counts messages by type.
type MessageCounters struct {
	Open         uint64 `json:"open"`
	Update       uint64 `json:"update"`
	Notification uint64 `json:"notification"`
	Keepalive    uint64 `json:"keepalive"`
	RouteRefresh uint64 `json:"route-refresh"`
}

func (mc *MessageCounters) count(msgType uint8) {
	switch msgType {
	case bgp.BGP_MSG_OPEN:
		mc.Open++
	case bgp.BGP_MSG_UPDATE:
		mc.Update++
	case bgp.BGP_MSG_NOTIFICATION:
		mc.Notification++
	case bgp.BGP_MSG_KEEPALIVE:
		mc.Keepalive++
	case bgp.BGP_MSG_ROUTE_REFRESH:
		mc.RouteRefresh++
	}
}

func messageType(msgType uint8) string {
	switch msgType {
	case bgp.BGP_MSG_OPEN:
		return "open"
	case bgp.BGP_MSG_UPDATE:
		return "update"
	case bgp.BGP_MSG_NOTIFICATION:
		return "notification"
	case bgp.BGP_MSG_KEEPALIVE:
		return "keepalive"
	case bgp.BGP_MSG_ROUTE_REFRESH:
		return "route-refresh"
	default:
		return "unknown"
	}
}

// Status is the state of a neighbor as exposed to users.
type Status struct {
	Address        netip.Addr `json:"address"`
	RemoteAS       uint32     `json:"remote-as"`
	LocalAS        uint32     `json:"local-as"`
	Internal       bool       `json:"internal"`
	Description    string     `json:"description,omitempty"`
	PeerGroup      string     `json:"peer-group,omitempty"`
	State          State      `json:"state"`
	RemoteRouterID netip.Addr `json:"remote-router-id,omitzero"`
	// Port is the TCP port used to reach the neighbor.
	Port          uint16         `json:"port"`
	LocalAddress  netip.AddrPort `json:"local-address,omitzero"`
	RemoteAddress netip.AddrPort `json:"remote-address,omitzero"`
	// Timers are the negotiated timers when established, the
	// configured ones otherwise.
	Timers                 Timers        `json:"timers"`
	Uptime                 time.Duration `json:"uptime"`
	EstablishedTransitions uint32        `json:"established-transitions"`
	Sent                   MessageCounters `json:"sent"`
	Received               MessageCounters `json:"received"`
	ReceivedPrefixes       int             `json:"received-prefixes"`
	LastError              string          `json:"last-error,omitempty"`
}

type neighbor struct {
	config  NeighborConfig
	session *session
	state   State

	localAddr     netip.AddrPort
	remoteAddr    netip.AddrPort
	remoteID      netip.Addr
	negotiated    *Timers
	establishedAt time.Time
	transitions   uint32
	sent          MessageCounters
	received      MessageCounters
	prefixes      map[netip.Prefix]struct{}
	lastError     string
}

// AddNeighbor creates a neighbor or changes its remote AS.
func (m *Manager) AddNeighbor(addr netip.Addr, remoteAS uint32) error {
	if err := ValidateASN(remoteAS); err != nil {
		return err
	}
	return m.configure(addr, true, func(nc *NeighborConfig) {
		nc.RemoteAS = remoteAS
	})
}

// BindNeighbor puts a neighbor in a peer group, creating the neighbor
// when needed.
func (m *Manager) BindNeighbor(addr netip.Addr, group string) error {
	return m.configure(addr, true, func(nc *NeighborConfig) {
		nc.PeerGroup = group
	})
}

// UpdateNeighbor changes the configuration of an existing neighbor.
func (m *Manager) UpdateNeighbor(addr netip.Addr, fn func(*NeighborConfig)) error {
	return m.configure(addr, false, fn)
}

func (m *Manager) configure(addr netip.Addr, create bool, fn func(*NeighborConfig)) error {
	addr = addr.Unmap()
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.neighbors[addr]
	if !ok && !create {
		return fmt.Errorf("neighbor %s: %w", addr, routing.ErrNotFound)
	}
	config := NeighborConfig{Address: addr}
	if ok {
		config = n.config
	}
	fn(&config)
	config.Address = addr
	if err := config.validate(); err != nil {
		return err
	}
	if config.PeerGroup != "" {
		if _, ok := m.peerGroups[config.PeerGroup]; !ok {
			return fmt.Errorf("peer group %s: %w", config.PeerGroup, routing.ErrNotFound)
		}
	}
	if m.remoteAS(config) == 0 {
		return routing.Rejectf("neighbor %s needs a remote AS", addr)
	}
	if !ok {
		n = &neighbor{config: config, prefixes: map[netip.Prefix]struct{}{}}
		m.neighbors[addr] = n
		m.metrics.state.WithLabelValues(m.vrf, StateIdle.String()).Inc()
		m.r.Info().Str("vrf", m.vrf).Str("neighbor", addr.String()).Msg("neighbor added")
		if !m.stopped && !config.Shutdown {
			m.startSession(n)
		}
		return nil
	}
	previous := n.config
	n.config = config
	if previous.sessionDiffers(config) || m.remoteAS(previous) != m.remoteAS(config) {
		m.restart(n)
	}
	return nil
}

// RemoveNeighbor deletes a neighbor and stops its session. It does not
// wait for the session to terminate.
func (m *Manager) RemoveNeighbor(addr netip.Addr) error {
	addr = addr.Unmap()
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.neighbors[addr]
	if !ok {
		return fmt.Errorf("neighbor %s: %w", addr, routing.ErrNotFound)
	}
	m.removeNeighbor(n)
	return nil
}

// removeNeighbor deletes a neighbor. The lock should be held.
func (m *Manager) removeNeighbor(n *neighbor) {
	addr := n.config.Address
	m.stopSession(n)
	m.resets = append(m.resets, addr)
	m.metrics.state.WithLabelValues(m.vrf, n.state.String()).Dec()
	m.metrics.prefixes.DeleteLabelValues(m.vrf, addr.String())
	delete(m.neighbors, addr)
	m.r.Info().Str("vrf", m.vrf).Str("neighbor", addr.String()).Msg("neighbor removed")
}

// AddPeerGroup creates a peer group. Creating an existing group does
// nothing.
func (m *Manager) AddPeerGroup(name string) error {
	if name == "" || strings.ContainsAny(name, " \t\n") {
		return routing.Rejectf("invalid peer group name %q", name)
	}
	if _, err := netip.ParseAddr(name); err == nil {
		return routing.Rejectf("peer group name %q is an address", name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peerGroups[name]; !ok {
		m.peerGroups[name] = &PeerGroup{Name: name}
	}
	return nil
}

// SetPeerGroupRemoteAS sets the remote AS inherited by the members of
// a peer group. Use 0 to unset it.
func (m *Manager) SetPeerGroupRemoteAS(name string, remoteAS uint32) error {
	if remoteAS != 0 {
		if err := ValidateASN(remoteAS); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	pg, ok := m.peerGroups[name]
	if !ok {
		return fmt.Errorf("peer group %s: %w", name, routing.ErrNotFound)
	}
	if remoteAS == 0 {
		for _, n := range m.neighbors {
			if n.config.PeerGroup == name && n.config.RemoteAS == 0 {
				return routing.Rejectf("peer group %s has members without remote AS", name)
			}
		}
	}
	if pg.RemoteAS == remoteAS {
		return nil
	}
	pg.RemoteAS = remoteAS
	for _, n := range m.neighbors {
		if n.config.PeerGroup == name && n.config.RemoteAS == 0 {
			m.restart(n)
		}
	}
	return nil
}

// RemovePeerGroup deletes a peer group. Members inheriting their
// remote AS from the group are deleted too.
func (m *Manager) RemovePeerGroup(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peerGroups[name]; !ok {
		return fmt.Errorf("peer group %s: %w", name, routing.ErrNotFound)
	}
	for _, n := range m.neighbors {
		if n.config.PeerGroup != name {
			continue
		}
		if n.config.RemoteAS == 0 {
			m.removeNeighbor(n)
			continue
		}
		n.config.PeerGroup = ""
		m.restart(n)
	}
	delete(m.peerGroups, name)
	return nil
}

// remoteAS returns the remote AS of a neighbor, possibly inherited
// from its peer group. The lock should be held.
func (m *Manager) remoteAS(config NeighborConfig) uint32 {
	if config.RemoteAS != 0 {
		return config.RemoteAS
	}
	if pg, ok := m.peerGroups[config.PeerGroup]; ok {
		return pg.RemoteAS
	}
	return 0
}

// port returns the TCP port to reach a neighbor. The lock should be held.
func (m *Manager) port(config NeighborConfig) uint16 {
	if config.Port != 0 {
		return config.Port
	}
	return m.config.Port
}

// Neighbor returns the status of a neighbor.
func (m *Manager) Neighbor(addr netip.Addr) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.neighbors[addr.Unmap()]
	if !ok {
		return Status{}, false
	}
	return m.status(n), true
}

// Neighbors returns the status of all neighbors, ordered by address.
func (m *Manager) Neighbors() []Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Status, 0, len(m.neighbors))
	for _, n := range m.neighbors {
		result = append(result, m.status(n))
	}
	slices.SortFunc(result, func(a, b Status) int {
		return a.Address.Compare(b.Address)
	})
	return result
}

// status builds the status of a neighbor. The lock should be held.
func (m *Manager) status(n *neighbor) Status {
	remoteAS := m.remoteAS(n.config)
	status := Status{
		Address:                n.config.Address,
		RemoteAS:               remoteAS,
		LocalAS:                m.asn,
		Internal:               remoteAS == m.asn,
		Description:            n.config.Description,
		PeerGroup:              n.config.PeerGroup,
		State:                  n.state,
		RemoteRouterID:         n.remoteID,
		Port:                   m.port(n.config),
		LocalAddress:           n.localAddr,
		RemoteAddress:          n.remoteAddr,
		Timers:                 m.effectiveTimers(n),
		EstablishedTransitions: n.transitions,
		Sent:                   n.sent,
		Received:               n.received,
		ReceivedPrefixes:       len(n.prefixes),
		LastError:              n.lastError,
	}
	if n.state == StateEstablished {
		status.Uptime = m.d.Clock.Since(n.establishedAt)
		if n.negotiated != nil {
			status.Timers = *n.negotiated
		}
	}
	return status
}

// PeerGroups returns the configured peer groups, ordered by name.
func (m *Manager) PeerGroups() []PeerGroup {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.peerGroupsLocked()
}

func (m *Manager) peerGroupsLocked() []PeerGroup {
	result := make([]PeerGroup, 0, len(m.peerGroups))
	for _, pg := range m.peerGroups {
		result = append(result, *pg)
	}
	slices.SortFunc(result, func(a, b PeerGroup) int {
		return strings.Compare(a.Name, b.Name)
	})
	return result
}

// NeighborConfigs returns the configuration of all neighbors, ordered
// by address.
func (m *Manager) NeighborConfigs() []NeighborConfig {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.neighborConfigsLocked()
}

func (m *Manager) neighborConfigsLocked() []NeighborConfig {
	result := make([]NeighborConfig, 0, len(m.neighbors))
	for _, n := range m.neighbors {
		config := n.config
		if config.Timers != nil {
			timers := *config.Timers
			config.Timers = &timers
		}
		result = append(result, config)
	}
	slices.SortFunc(result, func(a, b NeighborConfig) int {
		return a.Address.Compare(b.Address)
	})
	return result
}

// setState changes the state of a neighbor. The lock should be held.
func (m *Manager) setState(n *neighbor, state State) {
	if n.state == state {
		return
	}
	m.metrics.state.WithLabelValues(m.vrf, n.state.String()).Dec()
	m.metrics.state.WithLabelValues(m.vrf, state.String()).Inc()
	if state == StateEstablished {
		n.establishedAt = m.d.Clock.Now()
		n.transitions++
		n.lastError = ""
		m.metrics.established.WithLabelValues(m.vrf, n.config.Address.String()).Inc()
		m.r.Info().Str("vrf", m.vrf).Str("neighbor", n.config.Address.String()).Msg("session established")
	} else if n.state == StateEstablished {
		m.r.Info().Str("vrf", m.vrf).Str("neighbor", n.config.Address.String()).
			Str("state", state.String()).Msg("session lost")
	}
	if state < StateOpenSent {
		n.localAddr = netip.AddrPort{}
		n.remoteAddr = netip.AddrPort{}
		n.remoteID = netip.Addr{}
		n.negotiated = nil
	}
	if state != StateEstablished && len(n.prefixes) > 0 {
		clear(n.prefixes)
		m.metrics.prefixes.WithLabelValues(m.vrf, n.config.Address.String()).Set(0)
	}
	n.state = state
}

// restart restarts the session of a neighbor. The lock should be held.
func (m *Manager) restart(n *neighbor) {
	if n.session != nil {
		m.resets = append(m.resets, n.config.Address)
	}
	m.stopSession(n)
	if !m.stopped && !n.config.Shutdown {
		m.startSession(n)
	}
}

// startSession starts a new session for a neighbor. The lock should be
// held.
func (m *Manager) startSession(n *neighbor) {
	m.generation++
	remoteAS := m.remoteAS(n.config)
	s := &session{
		m:          m,
		generation: m.generation,
		peer:       n.config.Address,
		port:       m.port(n.config),
		localAS:    m.asn,
		remoteAS:   remoteAS,
		timers:     m.effectiveTimers(n),
		allowASIn:  n.config.AllowASIn,
		log: m.r.With().
			Str("vrf", m.vrf).
			Str("neighbor", n.config.Address.String()).
			Logger(),
	}
	n.session = s
	m.wg.Add(1)
	s.t.Go(func() error {
		defer m.wg.Done()
		return s.run()
	})
}

// stopSession stops the session of a neighbor without waiting. The
// lock should be held.
func (m *Manager) stopSession(n *neighbor) {
	if n.session == nil {
		return
	}
	n.session.t.Kill(nil)
	n.session = nil
	m.setState(n, StateIdle)
}

// update runs the provided function on the neighbor of a session if
// the session is still the active one.
func (m *Manager) update(s *session, fn func(n *neighbor)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.neighbors[s.peer]
	if !ok || n.session == nil || n.session.generation != s.generation {
		return false
	}
	fn(n)
	return true
}
