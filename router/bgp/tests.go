// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !release

package bgp

import (
	"net/netip"
	"slices"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"

	"ribd/common/helpers"
	"ribd/common/reporter"
	"ribd/router/routing"
)

// MockSink records the routes learned by sessions.
type MockSink struct {
	mu     sync.Mutex
	routes map[netip.Addr]map[netip.Prefix]Path
	downs  int
}

// LearnRoutes records announced and withdrawn routes.
func (s *MockSink) LearnRoutes(peer netip.Addr, _ uint64, _ bool, announced []Path, withdrawn []netip.Prefix) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.routes[peer] == nil {
		s.routes[peer] = map[netip.Prefix]Path{}
	}
	for _, prefix := range withdrawn {
		delete(s.routes[peer], prefix)
	}
	for _, path := range announced {
		s.routes[peer][path.Prefix] = path
	}
}

// SessionDown forgets the routes of a peer.
func (s *MockSink) SessionDown(peer netip.Addr, _ uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.routes, peer)
	s.downs++
}

// Routes returns the routes learned from a peer, sorted by prefix.
func (s *MockSink) Routes(peer netip.Addr) []Path {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := []Path{}
	for _, path := range s.routes[peer] {
		result = append(result, path)
	}
	slices.SortFunc(result, func(a, b Path) int {
		return routing.ComparePrefixes(a.Prefix, b.Prefix)
	})
	return result
}

// Downs returns the number of sessions lost.
func (s *MockSink) Downs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.downs
}

// NewMock creates a BGP instance for AS 65000 with a mock clock and a
// mock sink. It is stopped on cleanup.
func NewMock(t *testing.T, r *reporter.Reporter, config Configuration) (*Manager, *MockSink, *clock.Mock) {
	t.Helper()
	sink := &MockSink{routes: map[netip.Addr]map[netip.Prefix]Path{}}
	mockClock := clock.NewMock()
	m, err := New(r, "default", 65000, config, Dependencies{
		Sink:  sink,
		Clock: mockClock,
	})
	if err != nil {
		t.Fatalf("New() error:\n%+v", err)
	}
	helpers.StartStop(t, m)
	return m, sink, mockClock
}

// Generation returns the generation of the current session of a
// neighbor, or 0.
func (m *Manager) Generation(peer netip.Addr) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.neighbors[peer]; ok && n.session != nil {
		return n.session.generation
	}
	return 0
}
