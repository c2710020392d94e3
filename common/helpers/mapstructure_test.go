// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package helpers

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/mitchellh/mapstructure"
)

func TestMapStructureMatchName(t *testing.T) {
	cases := []struct {
		pos       Pos
		mapKey    string
		fieldName string
		expected  bool
	}{
		{Mark(), "one", "one", true},
		{Mark(), "one", "One", true},
		{Mark(), "one-two", "OneTwo", true},
		{Mark(), "onetwo", "OneTwo", true},
		{Mark(), "One-Two", "OneTwo", true},
		{Mark(), "two", "one", false},
	}
	for _, tc := range cases {
		got := MapStructureMatchName(tc.mapKey, tc.fieldName)
		if got && !tc.expected {
			t.Errorf("%s%q == %q but expected !=", tc.pos, tc.mapKey, tc.fieldName)
		} else if !got && tc.expected {
			t.Errorf("%s%q != %q but expected ==", tc.pos, tc.mapKey, tc.fieldName)
		}
	}
}

func TestStringToSliceHookFunc(t *testing.T) {
	type Configuration struct {
		A []string
		B []int
	}
	TestConfigurationDecode(t, ConfigurationDecodeCases{
		{
			Initial: func() any { return Configuration{} },
			Configuration: func() any {
				return gin.H{
					"a": "blip,blop",
					"b": "1,2,3,4",
				}
			},
			Expected: Configuration{
				A: []string{"blip", "blop"},
				B: []int{1, 2, 3, 4},
			},
		},
	})
}

func TestProtectedDecodeHook(t *testing.T) {
	var configuration struct {
		A string
		B string
	}
	panicHook := func(from, _ reflect.Type, data any) (any, error) {
		if from.Kind() == reflect.String {
			panic(errors.New("noooo"))
		}
		return data, nil
	}
	decoder, err := mapstructure.NewDecoder(GetMapStructureDecoderConfig(&configuration, panicHook))
	if err != nil {
		t.Fatalf("NewDecoder() error:\n%+v", err)
	}
	err = decoder.Decode(gin.H{"A": "hello", "B": "bye"})
	if err == nil {
		t.Fatal("Decode() did not error")
	} else {
		got := strings.Split(err.Error(), "\n")
		expected := []string{
			`decoding failed due to the following error(s):`,
			``,
			`'A' internal error while parsing: noooo`,
			`'B' internal error while parsing: noooo`,
		}
		if diff := Diff(got, expected); diff != "" {
			t.Fatalf("Decode() error:\n%s", diff)
		}
	}
}

func TestDefaultValuesConfig(t *testing.T) {
	type InnerConfiguration struct {
		AA string
		BB string
		CC int
	}
	type OuterConfiguration struct {
		DD []InnerConfiguration
	}
	RegisterMapstructureUnmarshallerHook(DefaultValuesUnmarshallerHook(InnerConfiguration{
		BB: "hello",
		CC: 10,
	}))
	TestConfigurationDecode(t, ConfigurationDecodeCases{
		{
			Initial: func() any { return OuterConfiguration{} },
			Configuration: func() any {
				return gin.H{
					"dd": []gin.H{
						{
							"aa": "hello1",
							"bb": "hello2",
							"cc": 43,
						},
						{"cc": 44},
						{"aa": "bye"},
					},
				}
			},
			Expected: OuterConfiguration{
				DD: []InnerConfiguration{
					{
						AA: "hello1",
						BB: "hello2",
						CC: 43,
					}, {
						AA: "",
						BB: "hello",
						CC: 44,
					}, {
						AA: "bye",
						BB: "hello",
						CC: 10,
					},
				},
			},
		},
	})
}
