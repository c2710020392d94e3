// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package vrf implements routing contexts. A routing context owns a
// RIB, a forwarding table and at most one instance of each routing
// protocol. Configuration operations, interface events and routes
// learned by sessions are serialized by the context lock.
//
// Locks are taken in this order: registry, interface table, context,
// BGP instance.
package vrf

import (
	"fmt"
	"regexp"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"

	"ribd/common/reporter"
	"ribd/router/bgp"
	"ribd/router/interfaces"
	"ribd/router/routing"
)

// DefaultName is the name of the default routing context.
const DefaultName = "default"

var nameRegexp = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,35}$`)

// Configuration is the configuration shared by all routing contexts.
type Configuration struct {
	// BGP is the configuration of BGP sessions.
	BGP bgp.Configuration
}

// DefaultConfiguration represents the default configuration for
// routing contexts.
func DefaultConfiguration() Configuration {
	return Configuration{
		BGP: bgp.DefaultConfiguration(),
	}
}

// Dependencies define the dependencies of the routing contexts.
type Dependencies struct {
	Interfaces *interfaces.Table
	Clock      clock.Clock
}

// Registry keeps the routing contexts by name.
type Registry struct {
	r       *reporter.Reporter
	config  Configuration
	d       *Dependencies
	metrics metrics

	mu       sync.RWMutex
	contexts map[string]*Context
}

// NewRegistry creates a new registry with the default routing context.
func NewRegistry(r *reporter.Reporter, configuration Configuration, dependencies Dependencies) (*Registry, error) {
	if dependencies.Clock == nil {
		dependencies.Clock = clock.New()
	}
	reg := Registry{
		r:        r,
		config:   configuration,
		d:        &dependencies,
		contexts: make(map[string]*Context),
	}
	reg.initMetrics()
	if _, err := reg.Create(DefaultName); err != nil {
		return nil, err
	}
	return &reg, nil
}

// ValidateName checks a name can be used for a routing context.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return routing.Rejectf("invalid VRF name %q", name)
	}
	return nil
}

// Create creates a new routing context.
func (reg *Registry) Create(name string) (*Context, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if _, ok := reg.contexts[name]; ok {
		return nil, routing.Rejectf("VRF %s already exists", name)
	}
	c := newContext(reg, name)
	c.unwatch = reg.d.Interfaces.Watch(name, c.interfaceEvent)
	reg.contexts[name] = c
	reg.metrics.contexts.Set(float64(len(reg.contexts)))
	reg.r.Info().Str("vrf", name).Msg("VRF created")
	return c, nil
}

// Get returns a routing context.
func (reg *Registry) Get(name string) (*Context, error) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	c, ok := reg.contexts[name]
	if !ok {
		return nil, fmt.Errorf("VRF %s: %w", name, routing.ErrNotFound)
	}
	return c, nil
}

// Default returns the default routing context.
func (reg *Registry) Default() *Context {
	c, _ := reg.Get(DefaultName)
	return c
}

// Names returns the names of the routing contexts, sorted.
func (reg *Registry) Names() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	names := make([]string, 0, len(reg.contexts))
	for name := range reg.contexts {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Delete stops the protocol instances of a routing context and
// removes it. The default context cannot be deleted.
func (reg *Registry) Delete(name string) error {
	if name == DefaultName {
		return routing.Rejectf("default VRF cannot be deleted")
	}
	reg.mu.Lock()
	c, ok := reg.contexts[name]
	if ok {
		delete(reg.contexts, name)
		reg.metrics.contexts.Set(float64(len(reg.contexts)))
	}
	reg.mu.Unlock()
	if !ok {
		return fmt.Errorf("VRF %s: %w", name, routing.ErrNotFound)
	}
	c.close()
	reg.r.Info().Str("vrf", name).Msg("VRF deleted")
	return nil
}

// Stop stops all the routing contexts.
func (reg *Registry) Stop() error {
	reg.mu.Lock()
	contexts := reg.contexts
	reg.contexts = make(map[string]*Context)
	reg.mu.Unlock()
	for _, c := range contexts {
		c.close()
	}
	return nil
}
