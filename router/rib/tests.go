// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

//go:build !release

package rib

import (
	"fmt"
	"net/netip"
	"testing"

	"ribd/common/reporter"
	"ribd/router/routing"
)

// MockForwarder records forwarding table operations.
type MockForwarder struct {
	Operations []string
}

// Install records an install operation.
func (m *MockForwarder) Install(f routing.Family, prefix netip.Prefix, nh routing.NextHop) {
	m.Operations = append(m.Operations, fmt.Sprintf("install %s %s %s", f, prefix, nh))
}

// Withdraw records a withdraw operation.
func (m *MockForwarder) Withdraw(f routing.Family, prefix netip.Prefix) {
	m.Operations = append(m.Operations, fmt.Sprintf("withdraw %s %s", f, prefix))
}

// Reset returns the recorded operations and forget them.
func (m *MockForwarder) Reset() []string {
	result := m.Operations
	m.Operations = nil
	if result == nil {
		result = []string{}
	}
	return result
}

// NewMock creates a RIB recording forwarding table operations.
func NewMock(t *testing.T, r *reporter.Reporter) (*RIB, *MockForwarder) {
	t.Helper()
	forwarder := &MockForwarder{}
	return New(r, "default", forwarder), forwarder
}
