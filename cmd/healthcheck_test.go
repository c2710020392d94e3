// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"bytes"
	"context"
	"net"
	"sync/atomic"
	"testing"

	"ribd/common/helpers"
	"ribd/common/httpserver"
	"ribd/common/reporter"
)

func TestHealthcheck(t *testing.T) {
	// Setup a fake service
	r := reporter.NewMock(t)
	h := httpserver.NewMock(t, r)
	h.GinRouter.GET("/api/v0/healthcheck", r.HealthcheckHTTPHandler)
	var healthy atomic.Bool
	r.RegisterHealthcheck("mock", func(context.Context) reporter.HealthcheckResult {
		if healthy.Load() {
			return reporter.HealthcheckResult{Status: reporter.HealthcheckOK, Reason: "all good"}
		}
		return reporter.HealthcheckResult{Status: reporter.HealthcheckError, Reason: "broken"}
	})
	_, port, err := net.SplitHostPort(h.LocalAddr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error:\n%+v", err)
	}

	for _, tc := range []struct {
		Pos         helpers.Pos
		description string
		http        string
		healthy     bool
		ok          bool
	}{
		{
			Pos:         helpers.Mark(),
			description: "healthy",
			http:        "127.0.0.1:" + port,
			healthy:     true,
			ok:          true,
		}, {
			Pos:         helpers.Mark(),
			description: "unhealthy",
			http:        "127.0.0.1:" + port,
			healthy:     false,
			ok:          false,
		}, {
			Pos:         helpers.Mark(),
			description: "not listening",
			http:        "127.0.0.1:0",
			ok:          false,
		},
	} {
		t.Run(tc.description, func(t *testing.T) {
			healthy.Store(tc.healthy)
			root := RootCmd
			buf := new(bytes.Buffer)
			root.SetOut(buf)
			root.SetArgs([]string{"healthcheck", "--http", tc.http})
			err := root.Execute()
			if err != nil && tc.ok {
				t.Errorf("%s`healthcheck` error:\n%+v", tc.Pos, err)
			} else if err == nil && !tc.ok {
				t.Errorf("%s`healthcheck` did not error", tc.Pos)
			}
		})
	}
}
