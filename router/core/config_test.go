// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package core

import (
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"ribd/common/helpers"
)

func TestDefaultConfiguration(t *testing.T) {
	if err := helpers.Validate.Struct(DefaultConfiguration()); err != nil {
		t.Fatalf("validate.Struct() error:\n%+v", err)
	}
}

func TestConfigurationDecode(t *testing.T) {
	helpers.TestConfigurationDecode(t, helpers.ConfigurationDecodeCases{
		{
			Description: "BGP settings and VRFs",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return gin.H{
					"routing": gin.H{
						"bgp": gin.H{
							"port":          1179,
							"connect-retry": gin.H{"initial": "1s"},
						},
					},
					"vrfs": []gin.H{
						{
							"name": "default",
							"commands": []gin.H{
								{"op": "router-bgp", "asn": 65000},
							},
						},
						{"name": "red"},
					},
				}
			},
			Expected: func() Configuration {
				config := DefaultConfiguration()
				config.Routing.BGP.Port = 1179
				config.Routing.BGP.ConnectRetry.Initial = time.Second
				config.VRFs = []VRFConfiguration{
					{
						Name:    "default",
						Enabled: true,
						Commands: []map[string]any{
							{"op": "router-bgp", "asn": 65000},
						},
					},
					{Name: "red", Enabled: true},
				}
				return config
			}(),
		}, {
			Description: "disabled VRF",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return gin.H{
					"vrfs": []gin.H{
						{"name": "red", "enabled": false},
						{"name": "blue"},
					},
				}
			},
			Expected: func() Configuration {
				config := DefaultConfiguration()
				config.VRFs = []VRFConfiguration{
					{Name: "red"},
					{Name: "blue", Enabled: true},
				}
				return config
			}(),
		}, {
			Description: "VRF without name",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return gin.H{
					"vrfs": []gin.H{{"commands": []gin.H{}}},
				}
			},
			Error: true,
		}, {
			Description: "invalid retry",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return gin.H{
					"routing": gin.H{
						"bgp": gin.H{
							"connect-retry": gin.H{"initial": "10m"},
						},
					},
				}
			},
			Error: true,
		}, {
			Description: "unknown key",
			Initial:     func() any { return DefaultConfiguration() },
			Configuration: func() any {
				return gin.H{"unknown": true}
			},
			Error: true,
		},
	})
}
