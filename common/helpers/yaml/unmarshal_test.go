// SPDX-FileCopyrightText: 2023 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package yaml_test

import (
	"testing"
	"testing/fstest"

	"ribd/common/helpers"
	"ribd/common/helpers/yaml"
)

func TestUnmarshalWithInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"base.yaml": {Data: []byte(`---
.hidden:
  port: 1179
router:
  vrfs:
    - name: default
      bgp: !include "bgp.yaml"
`)},
		"bgp.yaml": {Data: []byte(`---
asn: 65000
neighbors:
  - address: 192.0.2.1
    remote-as: 65001
`)},
	}
	var got interface{}
	if err := yaml.UnmarshalWithInclude(fsys, "base.yaml", &got); err != nil {
		t.Fatalf("UnmarshalWithInclude() error:\n%+v", err)
	}
	expected := map[string]any{
		"router": map[string]any{
			"vrfs": []any{
				map[string]any{
					"name": "default",
					"bgp": map[string]any{
						"asn": 65000,
						"neighbors": []any{
							map[string]any{
								"address":   "192.0.2.1",
								"remote-as": 65001,
							},
						},
					},
				},
			},
		},
	}
	if diff := helpers.Diff(got, expected); diff != "" {
		t.Fatalf("UnmarshalWithInclude() (-got, +want):\n%s", diff)
	}
}

func TestUnmarshalMissingInclude(t *testing.T) {
	fsys := fstest.MapFS{
		"base.yaml": {Data: []byte("bgp: !include missing.yaml\n")},
	}
	var got interface{}
	if err := yaml.UnmarshalWithInclude(fsys, "base.yaml", &got); err == nil {
		t.Fatal("UnmarshalWithInclude() did not error")
	}
}
