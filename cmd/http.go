// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package cmd

import (
	"ribd/common/httpserver"
	"ribd/common/reporter"
)

// addCommonHTTPHandlers configures the metrics, healthcheck and
// version endpoints under `/api/v0`.
func addCommonHTTPHandlers(r *reporter.Reporter, httpComponent *httpserver.Component) {
	httpComponent.AddHandler("/api/v0/metrics", r.MetricsHTTPHandler())
	httpComponent.GinRouter.GET("/api/v0/healthcheck", r.HealthcheckHTTPHandler)
	httpComponent.GinRouter.GET("/api/v0/version", versionHandler)
}
