// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package httpserver

// Configuration describes the configuration for the HTTP server.
type Configuration struct {
	// Listen defines the listening string to listen to. When empty,
	// the HTTP server is disabled.
	Listen string `validate:"omitempty,listen"`
	// Profiler enables Go profiler as /debug
	Profiler bool
}

// DefaultConfiguration is the default configuration of the HTTP server.
func DefaultConfiguration() Configuration {
	return Configuration{
		Listen: "127.0.0.1:8080",
	}
}
