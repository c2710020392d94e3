// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

// Package command turns configuration operations into typed commands
// applied to a routing context. Commands are decoded from maps, as
// produced by the JSON or YAML decoders. The "op" key selects the
// command. Other keys are the fields of the command.
package command

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mitchellh/mapstructure"

	"ribd/common/helpers"
	"ribd/router/routing"
	"ribd/router/vrf"
)

// Command is a configuration operation.
type Command interface {
	// Apply applies the command to a routing context.
	Apply(c *vrf.Context) error
}

var operations = map[string](func() Command){
	"interface":       func() Command { return &Interface{} },
	"shutdown":        func() Command { return &Shutdown{} },
	"address":         func() Command { return &Address{} },
	"static-route":    func() Command { return &StaticRoute{} },
	"router-bgp":      func() Command { return &RouterBGP{} },
	"bgp-router-id":   func() Command { return &BGPRouterID{} },
	"timers-bgp":      func() Command { return &TimersBGP{} },
	"distance-bgp":    func() Command { return &DistanceBGP{} },
	"neighbor":        func() Command { return &Neighbor{} },
	"neighbor-option": func() Command { return &NeighborOption{} },
	"peer-group":      func() Command { return &PeerGroup{} },
	"network":         func() Command { return &Network{} },
	"router-ospf":     func() Command { return &RouterOSPF{} },
	"ospf-router-id":  func() Command { return &OSPFRouterID{} },
	"ospf-network":    func() Command { return &OSPFNetwork{} },
}

// Operations returns the names of the known operations, sorted.
func Operations() []string {
	return slices.Sorted(maps.Keys(operations))
}

// Decode decodes a command. Unknown operations, unknown fields and
// invalid values are rejected with ErrConfigurationRejected.
func Decode(input any) (Command, error) {
	fields, ok := input.(map[string]any)
	if !ok {
		return nil, routing.Rejectf("command should be a map, not %T", input)
	}
	fields = maps.Clone(fields)
	op, ok := fields["op"].(string)
	if !ok {
		return nil, routing.Rejectf("command without operation")
	}
	delete(fields, "op")
	newCommand, ok := operations[strings.ToLower(op)]
	if !ok {
		return nil, routing.Rejectf("unknown operation %q", op)
	}
	cmd := newCommand()
	decoder, err := mapstructure.NewDecoder(helpers.GetMapStructureDecoderConfig(cmd))
	if err != nil {
		return nil, fmt.Errorf("cannot create decoder: %w", err)
	}
	if err := decoder.Decode(fields); err != nil {
		return nil, routing.Rejectf("%s: %s", op, err)
	}
	if err := helpers.Validate.Struct(cmd); err != nil {
		return nil, routing.Rejectf("%s: %s", op, err)
	}
	return cmd, nil
}

// DecodeAll decodes a list of commands. A single command is accepted
// as well.
func DecodeAll(input any) ([]Command, error) {
	list, ok := input.([]any)
	if !ok {
		cmd, err := Decode(input)
		if err != nil {
			return nil, err
		}
		return []Command{cmd}, nil
	}
	result := make([]Command, 0, len(list))
	for i, item := range list {
		cmd, err := Decode(item)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i+1, err)
		}
		result = append(result, cmd)
	}
	return result, nil
}

// ApplyAll applies commands in order. It stops at the first error.
// Commands applied before are kept.
func ApplyAll(c *vrf.Context, commands []Command) error {
	for i, cmd := range commands {
		if err := cmd.Apply(c); err != nil {
			return fmt.Errorf("command %d: %w", i+1, err)
		}
	}
	return nil
}
