package main

import (
	"database/sql"

	"callsync/internal/httpapi"
	"callsync/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type routeDeps struct {
	authMW       gin.HandlerFunc
	job          httpapi.JobRunner
	integrations httpapi.IntegrationLister
	db           *sql.DB
}

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, deps routeDeps) {
	h := httpapi.Handlers{
		Job:          deps.job,
		Integrations: deps.integrations,
		DB:           deps.db,
	}

	// public
	r.GET("/healthz", h.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(deps.authMW)

	// JOBS routes: platform-wide, never tenant scoped.
	jobs := v1.Group("/jobs")
	jobs.Use(rbac.RequireGlobalScope())
	jobs.Use(rbac.RequireAnyRole(rbac.RoleScheduler))
	{
		jobs.POST("/call-sync", h.TriggerCallSync)
	}

	// INTEGRATIONS routes
	ints := v1.Group("/integrations")
	ints.Use(rbac.RequireGlobalScope())
	ints.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleScheduler))
	{
		ints.GET("", h.ListIntegrations)
	}
}
