// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ribd/common/daemon"
	"ribd/common/httpserver"
	"ribd/common/reporter"
	"ribd/router/core"
)

// ServeConfiguration represents the configuration file for the serve command.
type ServeConfiguration struct {
	Reporting reporter.Configuration
	HTTP      httpserver.Configuration
	Router    core.Configuration
}

// Reset resets the configuration for the serve command to its default value.
func (c *ServeConfiguration) Reset() {
	*c = ServeConfiguration{
		Reporting: reporter.DefaultConfiguration(),
		HTTP:      httpserver.DefaultConfiguration(),
		Router:    core.DefaultConfiguration(),
	}
}

type serveOptions struct {
	ConfigRelatedOptions
	CheckMode bool
}

// ServeOptions stores the command-line option values for the serve
// command.
var ServeOptions serveOptions

// ServeOptionsReset resets serve options provided on command line.
// This should be used between two tests.
func ServeOptionsReset() {
	ServeOptions = serveOptions{}
}

var serveCmd = &cobra.Command{
	Use:   "serve [config]",
	Short: "Start ribd",
	Long: `ribd is a routing control-plane daemon. It maintains the routing tables of
each VRF from connected, static, OSPF and BGP routes and exposes them over HTTP.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		config := ServeConfiguration{}
		config.Reset()
		if len(args) == 1 {
			ServeOptions.Path = args[0]
		}
		if err := ServeOptions.Parse(cmd.OutOrStdout(), "serve", &config); err != nil {
			return err
		}

		r, err := reporter.New(config.Reporting)
		if err != nil {
			return fmt.Errorf("unable to initialize reporter: %w", err)
		}
		return serveStart(r, config, ServeOptions.CheckMode)
	},
}

func init() {
	RootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVarP(&ServeOptions.ConfigRelatedOptions.Dump, "dump", "D", false,
		"Dump configuration before starting")
	serveCmd.Flags().BoolVarP(&ServeOptions.CheckMode, "check", "C", false,
		"Check configuration, but does not start")
}

func serveStart(r *reporter.Reporter, config ServeConfiguration, checkOnly bool) error {
	// Initialize the various components
	daemonComponent, err := daemon.New(r)
	if err != nil {
		return fmt.Errorf("unable to initialize daemon component: %w", err)
	}
	httpComponent, err := httpserver.New(r, config.HTTP, httpserver.Dependencies{
		Daemon: daemonComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize http component: %w", err)
	}
	coreComponent, err := core.New(r, config.Router, core.Dependencies{
		Daemon: daemonComponent,
		HTTP:   httpComponent,
	})
	if err != nil {
		return fmt.Errorf("unable to initialize core component: %w", err)
	}

	// Expose some information and metrics
	addCommonHTTPHandlers(r, httpComponent)
	versionMetrics(r)

	// If we only asked for a check, stop here.
	if checkOnly {
		return nil
	}

	// Start all the components.
	components := []any{
		httpComponent,
		coreComponent,
	}
	return StartStopComponents(r, daemonComponent, components)
}
