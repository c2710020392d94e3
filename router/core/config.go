// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package core

import (
	"ribd/common/helpers"
	"ribd/router/vrf"
)

// Configuration describes the configuration for the core component.
type Configuration struct {
	// Routing is the configuration shared by all routing contexts.
	Routing vrf.Configuration
	// VRFs are the routing contexts to configure at startup. The
	// default context always exists and may be listed to receive
	// commands.
	VRFs []VRFConfiguration `validate:"dive"`
}

// VRFConfiguration is the startup configuration of a routing context.
type VRFConfiguration struct {
	Name string `validate:"required"`
	// Enabled tells if the context is set up at startup. Commands of
	// a disabled context are still checked.
	Enabled bool
	// Commands are applied in order when starting.
	Commands []map[string]any
}

// DefaultVRFConfiguration is the default for each element of VRFs.
func DefaultVRFConfiguration() VRFConfiguration {
	return VRFConfiguration{
		Enabled: true,
	}
}

// DefaultConfiguration represents the default configuration for the core component.
func DefaultConfiguration() Configuration {
	return Configuration{
		Routing: vrf.DefaultConfiguration(),
	}
}

func init() {
	helpers.RegisterMapstructureUnmarshallerHook(helpers.DefaultValuesUnmarshallerHook(DefaultVRFConfiguration()))
}
