// SPDX-FileCopyrightText: 2022 Free Mobile
// SPDX-License-Identifier: AGPL-3.0-only

package core

import (
	"errors"
	"net/http"
	"net/netip"
	"strconv"

	"github.com/gin-gonic/gin"

	"ribd/router/command"
	"ribd/router/ospf"
	"ribd/router/routing"
	"ribd/router/vrf"
)

func (c *Component) registerHTTPRoutes() {
	router := c.d.HTTP.GinRouter.Group("/api/v0/router")
	router.GET("/vrfs", c.vrfsHandlerFunc)
	router.PUT("/vrfs/:vrf", c.createVRFHandlerFunc)
	router.DELETE("/vrfs/:vrf", c.deleteVRFHandlerFunc)
	router.GET("/vrfs/:vrf/router-id", c.routerIDHandlerFunc)
	router.GET("/vrfs/:vrf/interfaces", c.interfacesHandlerFunc)
	router.GET("/vrfs/:vrf/rib/:family", c.ribHandlerFunc)
	router.GET("/vrfs/:vrf/fib/:family", c.fibHandlerFunc)
	router.GET("/vrfs/:vrf/bgp/neighbors", c.neighborsHandlerFunc)
	router.GET("/vrfs/:vrf/bgp/neighbors/:address", c.neighborHandlerFunc)
	router.GET("/vrfs/:vrf/ospf/routes", c.ospfRoutesHandlerFunc)
	router.POST("/vrfs/:vrf/ospf/routes", c.learnOSPFHandlerFunc)
	router.DELETE("/vrfs/:vrf/ospf/routes", c.forgetOSPFHandlerFunc)
	router.GET("/vrfs/:vrf/running-config", c.runningConfigHandlerFunc)
	router.POST("/vrfs/:vrf/commands", c.commandsHandlerFunc)
	router.POST("/interfaces/:name/link", c.linkHandlerFunc)
}

// fail answers with the HTTP status matching the error.
func (c *Component) fail(gc *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, routing.ErrConfigurationRejected):
		status = http.StatusBadRequest
	case errors.Is(err, routing.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, routing.ErrResourceExceeded):
		status = http.StatusConflict
	}
	c.metrics.apiErrors.WithLabelValues(strconv.Itoa(status)).Inc()
	gc.JSON(status, gin.H{"message": err.Error()})
}

func (c *Component) routingContext(gc *gin.Context) (*vrf.Context, bool) {
	ctx, err := c.registry.Get(gc.Param("vrf"))
	if err != nil {
		c.fail(gc, err)
		return nil, false
	}
	return ctx, true
}

func (c *Component) family(gc *gin.Context) (routing.Family, bool) {
	var family routing.Family
	if err := family.UnmarshalText([]byte(gc.Param("family"))); err != nil {
		c.fail(gc, routing.Rejectf("%s", err))
		return 0, false
	}
	return family, true
}

func (c *Component) vrfsHandlerFunc(gc *gin.Context) {
	gc.JSON(http.StatusOK, gin.H{"vrfs": c.registry.Names()})
}

func (c *Component) createVRFHandlerFunc(gc *gin.Context) {
	ctx, err := c.registry.Create(gc.Param("vrf"))
	if err != nil {
		c.fail(gc, err)
		return
	}
	gc.JSON(http.StatusCreated, gin.H{"vrf": ctx.Name()})
}

func (c *Component) deleteVRFHandlerFunc(gc *gin.Context) {
	if err := c.registry.Delete(gc.Param("vrf")); err != nil {
		c.fail(gc, err)
		return
	}
	gc.Status(http.StatusNoContent)
}

func (c *Component) routerIDHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	ids, err := ctx.RouterIDs()
	if err != nil {
		c.fail(gc, err)
		return
	}
	gc.JSON(http.StatusOK, ids)
}

func (c *Component) interfacesHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	ifaces, err := ctx.Interfaces()
	if err != nil {
		c.fail(gc, err)
		return
	}
	gc.JSON(http.StatusOK, gin.H{"interfaces": ifaces})
}

// ribHandlerFunc returns the RIB entries of a family. With the prefix
// query parameter, only the candidates for this prefix are returned.
func (c *Component) ribHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	family, ok := c.family(gc)
	if !ok {
		return
	}
	if query := gc.Query("prefix"); query != "" {
		prefix, err := netip.ParsePrefix(query)
		if err != nil || routing.FamilyOf(prefix.Addr()) != family {
			c.fail(gc, routing.Rejectf("invalid %s prefix %q", family, query))
			return
		}
		entries, err := ctx.Lookup(prefix)
		if err != nil {
			c.fail(gc, err)
			return
		}
		gc.JSON(http.StatusOK, gin.H{"routes": entries})
		return
	}
	entries, err := ctx.Routes(family)
	if err != nil {
		c.fail(gc, err)
		return
	}
	gc.JSON(http.StatusOK, gin.H{"routes": entries})
}

func (c *Component) fibHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	family, ok := c.family(gc)
	if !ok {
		return
	}
	gc.JSON(http.StatusOK, gin.H{"routes": ctx.Forwarding(family)})
}

func (c *Component) neighborsHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	neighbors, err := ctx.Neighbors()
	if err != nil {
		c.fail(gc, err)
		return
	}
	gc.JSON(http.StatusOK, gin.H{"neighbors": neighbors})
}

func (c *Component) neighborHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	addr, err := netip.ParseAddr(gc.Param("address"))
	if err != nil {
		c.fail(gc, routing.Rejectf("invalid neighbor address %q", gc.Param("address")))
		return
	}
	status, err := ctx.Neighbor(addr)
	if err != nil {
		c.fail(gc, err)
		return
	}
	gc.JSON(http.StatusOK, status)
}

func (c *Component) ospfRoutesHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	routes, err := ctx.OSPFRoutes()
	if err != nil {
		c.fail(gc, err)
		return
	}
	gc.JSON(http.StatusOK, gin.H{"routes": routes})
}

func (c *Component) learnOSPFHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	var route ospf.Route
	if err := gc.ShouldBindJSON(&route); err != nil {
		c.fail(gc, routing.Rejectf("invalid OSPF route: %s", err))
		return
	}
	if err := ctx.LearnOSPF(route); err != nil {
		c.fail(gc, err)
		return
	}
	gc.Status(http.StatusNoContent)
}

func (c *Component) forgetOSPFHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	prefix, err1 := netip.ParsePrefix(gc.Query("prefix"))
	nextHop, err2 := netip.ParseAddr(gc.Query("nexthop"))
	if err1 != nil || err2 != nil {
		c.fail(gc, routing.Rejectf("prefix and nexthop are expected"))
		return
	}
	if err := ctx.ForgetOSPF(prefix, nextHop); err != nil {
		c.fail(gc, err)
		return
	}
	gc.Status(http.StatusNoContent)
}

func (c *Component) runningConfigHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	config, err := ctx.RunningConfig()
	if err != nil {
		c.fail(gc, err)
		return
	}
	gc.String(http.StatusOK, config)
}

// commandsHandlerFunc applies configuration commands. The body is
// either a single command or an object with a "commands" list.
func (c *Component) commandsHandlerFunc(gc *gin.Context) {
	ctx, ok := c.routingContext(gc)
	if !ok {
		return
	}
	var body map[string]any
	if err := gc.ShouldBindJSON(&body); err != nil {
		c.fail(gc, routing.Rejectf("invalid body: %s", err))
		return
	}
	var input any = body
	if list, ok := body["commands"]; ok && len(body) == 1 {
		input = list
	}
	commands, err := command.DecodeAll(input)
	if err != nil {
		c.fail(gc, err)
		return
	}
	if err := c.apply(ctx, commands); err != nil {
		c.fail(gc, err)
		return
	}
	c.r.Info().Str("vrf", ctx.Name()).Int("commands", len(commands)).Msg("configuration applied")
	gc.JSON(http.StatusOK, gin.H{"applied": len(commands)})
}

type linkState struct {
	Up bool `json:"up"`
}

// linkHandlerFunc changes the physical state of an interface.
func (c *Component) linkHandlerFunc(gc *gin.Context) {
	var state linkState
	if err := gc.ShouldBindJSON(&state); err != nil {
		c.fail(gc, routing.Rejectf("invalid body: %s", err))
		return
	}
	if err := c.interfaces.SetLinkState(gc.Param("name"), state.Up); err != nil {
		c.fail(gc, err)
		return
	}
	gc.Status(http.StatusNoContent)
}
