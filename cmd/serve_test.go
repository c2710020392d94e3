// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"ribd/cmd"
	"ribd/common/helpers"
	"ribd/common/helpers/yaml"
)

func want(t *testing.T, got, expected any) {
	t.Helper()
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Errorf("Configuration (-got, +want):\n%s", diff)
	}
}

func writeServeConfiguration(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	config := `---
http:
 listen: 127.0.0.1:8000
router:
 routing:
  bgp:
   port: 1179
   connect-retry:
    initial: 1s
 vrfs:
  - name: default
    commands: !include "default.yaml"
  - name: red
    commands:
     - op: interface
       name: eth1
`
	commands := `---
- op: interface
  name: eth0
- op: address
  interface: eth0
  prefix: 9.0.0.1/24
- op: router-bgp
  asn: 65000
`
	if err := os.WriteFile(filepath.Join(dir, "ribd.yaml"), []byte(config), 0o644); err != nil {
		t.Fatalf("WriteFile() error:\n%+v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "default.yaml"), []byte(commands), 0o644); err != nil {
		t.Fatalf("WriteFile() error:\n%+v", err)
	}
	return filepath.Join(dir, "ribd.yaml")
}

func TestServeDump(t *testing.T) {
	configFile := writeServeConfiguration(t)

	root := cmd.RootCmd
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(os.Stderr)
	root.SetArgs([]string{"serve", "-D", "-C", configFile})
	cmd.ServeOptionsReset()
	if err := root.Execute(); err != nil {
		t.Fatalf("`serve -D -C` error:\n%+v", err)
	}

	var got map[string]map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error:\n%+v", err)
	}
	want(t, got["http"]["listen"], "127.0.0.1:8000")
	want(t, got["router"]["routing"], map[string]any{
		"bgp": map[string]any{
			"port":         1179,
			"dialtimeout":  "5s",
			"openholdtime": "4m0s",
			"connectretry": map[string]any{
				"initial": "1s",
				"maximum": "2m0s",
			},
		},
	})
	want(t, got["router"]["vrfs"], []any{
		map[string]any{
			"name":    "default",
			"enabled": true,
			"commands": []any{
				map[string]any{"op": "interface", "name": "eth0"},
				map[string]any{"op": "address", "interface": "eth0", "prefix": "9.0.0.1/24"},
				map[string]any{"op": "router-bgp", "asn": 65000},
			},
		},
		map[string]any{
			"name":    "red",
			"enabled": true,
			"commands": []any{
				map[string]any{"op": "interface", "name": "eth1"},
			},
		},
	})
}

func TestServeEnvOverride(t *testing.T) {
	configFile := writeServeConfiguration(t)

	t.Setenv("RIBD_SERVE_HTTP_LISTEN", "127.0.0.1:9000")
	t.Setenv("RIBD_SERVE_ROUTER_ROUTING_BGP_DIALTIMEOUT", "2s")
	t.Setenv("RIBD_SERVE_ROUTER_VRFS_1_NAME", "blue")

	root := cmd.RootCmd
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(os.Stderr)
	root.SetArgs([]string{"serve", "-D", "-C", configFile})
	cmd.ServeOptionsReset()
	if err := root.Execute(); err != nil {
		t.Fatalf("`serve -D -C` error:\n%+v", err)
	}

	var got map[string]map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("Unmarshal() error:\n%+v", err)
	}
	want(t, got["http"]["listen"], "127.0.0.1:9000")
	bgp := got["router"]["routing"].(map[string]any)["bgp"].(map[string]any)
	want(t, bgp["dialtimeout"], "2s")
	vrfs := got["router"]["vrfs"].([]any)
	want(t, vrfs[1].(map[string]any)["name"], "blue")
}

func TestServeCheckErrors(t *testing.T) {
	cases := []struct {
		Pos         helpers.Pos
		Description string
		Config      string
	}{
		{
			Pos:         helpers.Mark(),
			Description: "unknown key",
			Config: `---
router:
 unknown: 1
`,
		}, {
			Pos:         helpers.Mark(),
			Description: "invalid listen",
			Config: `---
http:
 listen: nowhere
`,
		}, {
			Pos:         helpers.Mark(),
			Description: "invalid command",
			Config: `---
router:
 vrfs:
  - name: default
    commands:
     - op: neighbor
       address: 1.1.1.1
`,
		}, {
			Pos:         helpers.Mark(),
			Description: "invalid VRF name",
			Config: `---
router:
 vrfs:
  - name: red/blue
`,
		}, {
			Pos:         helpers.Mark(),
			Description: "VRF without name",
			Config: `---
router:
 vrfs:
  - commands: []
`,
		},
	}
	for _, tc := range cases {
		t.Run(tc.Description, func(t *testing.T) {
			configFile := filepath.Join(t.TempDir(), "ribd.yaml")
			if err := os.WriteFile(configFile, []byte(tc.Config), 0o644); err != nil {
				t.Fatalf("WriteFile() error:\n%+v", err)
			}
			root := cmd.RootCmd
			root.SetOut(new(bytes.Buffer))
			root.SetArgs([]string{"serve", "-C", configFile})
			cmd.ServeOptionsReset()
			if err := root.Execute(); err == nil {
				t.Errorf("%s`serve -C` did not error", tc.Pos)
			}
		})
	}
}
