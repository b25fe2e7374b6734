// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"github.com/AleutianAI/EmoRobCare/pkg/extensions"
	"github.com/AleutianAI/EmoRobCare/services/guardian/handlers"
	"github.com/AleutianAI/EmoRobCare/services/guardian/middleware"
	"github.com/AleutianAI/EmoRobCare/services/safety"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxRequestBytes caps /v1 request bodies. It leaves room for JSON
// escaping of a maximal message plus its profile.
const MaxRequestBytes = 8 * safety.MaxContentBytes

// Deps are what the routes need. Limiter and Gatherer may be nil.
type Deps struct {
	Engine   *safety.Engine
	Options  extensions.ServiceOptions
	Limiter  *middleware.RateLimiter
	Gatherer prometheus.Gatherer
}

// SetupRoutes registers every endpoint. /health and /metrics are open; the
// /v1 group is rate limited and authenticated.
func SetupRoutes(router *gin.Engine, deps Deps) {
	router.GET("/health", handlers.HealthCheck)
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/v1")
	if deps.Limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(deps.Limiter))
	}
	v1.Use(middleware.AuthMiddleware(deps.Options.AuthProvider))
	v1.Use(middleware.BodyLimit(MaxRequestBytes))

	s := v1.Group("/safety")
	{
		s.GET("/status", handlers.HandleStatus(deps.Engine))
		s.GET("/statistics", handlers.HandleStatistics(deps.Engine))
		s.POST("/check", handlers.HandleCheck(deps.Engine))
		s.POST("/resolve", handlers.HandleResolve(deps.Engine))
		s.POST("/filter", handlers.HandleFilter(deps.Engine))
		s.POST("/profile/validate", handlers.HandleValidateProfile(deps.Engine))
		s.POST("/alternative-topic", handlers.HandleAlternativeTopic(deps.Engine))
		s.GET("/alerts", middleware.RequireRole("operator"), handlers.HandleAlerts(deps.Options.AuditLogger))
	}
}
