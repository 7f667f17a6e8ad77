/*
Copyright 2024 Blnk Finance Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package api

import (
	"net/http"

	"github.com/canopyfield/canopy"
	"github.com/canopyfield/canopy/api/middleware"
	"github.com/canopyfield/canopy/config"
	"github.com/canopyfield/canopy/internal/apierror"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

type Api struct {
	canopy *canopy.Canopy
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/inspections", a.CreateInspection)
	router.GET("/inspections", a.GetAllInspections)
	router.GET("/inspections/:id", a.GetInspection)
	router.PUT("/inspections/:id", a.UpdateInspection)
	router.PUT("/inspections/:id/status", a.UpdateInspectionStatus)
	router.DELETE("/inspections/:id", a.DeleteInspection)

	router.POST("/sync", a.TriggerSync)
	router.GET("/sync/status", a.GetSyncStatus)
	router.GET("/sync/pending", a.GetPendingWrites)
	router.POST("/sync/pending/:id/requeue", a.RequeuePendingWrite)
	router.POST("/sync/pull", a.PullRemote)

	router.GET("/addresses", a.ResolveAddress)
	router.GET("/addresses/pending", a.GetPendingAddressLookups)
	router.GET("/addresses/events", a.StreamAddressUpdates)

	router.GET("/connectivity", a.GetConnectivity)
	router.POST("/connectivity", a.ReportConnectivity)
	return a.router
}

func NewAPI(c *canopy.Canopy) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otelgin.Middleware(conf.ProjectName))
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{canopy: c, router: r}
}

func respondError(c *gin.Context, err error) {
	c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
}

func requiredParam(c *gin.Context, name string) (string, bool) {
	value, passed := c.Params.Get(name)
	if !passed || value == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": name + " is required. pass " + name + " in the route /:" + name})
		return "", false
	}
	return value, true
}
