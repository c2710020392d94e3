// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type healthcheckOptions struct {
	HTTP string
}

// HealthcheckOptions stores the command-line option values for the healthcheck
// command.
var HealthcheckOptions healthcheckOptions

func init() {
	RootCmd.AddCommand(healthcheckCmd)
	healthcheckCmd.Flags().StringVarP(&HealthcheckOptions.HTTP, "http", "", "",
		"HTTP host:port for health check (default: 127.0.0.1:8080)")
}

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Check healthness",
	Long:  `Check if ribd is alive using the builtin HTTP endpoint.`,
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, _ []string) error {
		addr := HealthcheckOptions.HTTP
		if addr == "" {
			addr = "127.0.0.1:8080"
		}
		client := http.Client{Timeout: 5 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/api/v0/healthcheck", addr))
		if err != nil {
			return fmt.Errorf("unable to connect to %s: %w", addr, err)
		}
		defer resp.Body.Close()
		var results struct {
			Status string `json:"status"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
			return fmt.Errorf("unable to parse healthcheck answer: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("service is unhealthy (status %s)", results.Status)
		}
		cmd.Println(results.Status)
		return nil
	},
}
