package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/chewie/internal/middleware"
)

type RouterDeps struct {
	Ask           *AskHandler
	Admin         *AdminHandler
	Health        *HealthHandler
	Metrics       http.Handler
	APIKeys       []string
	RatePerMinute int
	RateBurst     int
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", deps.Health.Health)
	api.GET("/health/detailed", deps.Health.Detailed)
	api.GET("/health/ready", deps.Health.Ready)
	api.GET("/health/live", deps.Health.Live)
	api.GET("/ask/test", deps.Ask.Test)
	if deps.Metrics != nil {
		api.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	authGroup := api.Group("")
	authGroup.Use(middleware.APIKey(deps.APIKeys), middleware.RateLimit(deps.RatePerMinute, deps.RateBurst))
	authGroup.POST("/ask", deps.Ask.Ask)

	admin := authGroup.Group("/admin")
	admin.GET("/cache/stats", deps.Admin.Stats)
	admin.GET("/cache/entries/:id", deps.Admin.Entry)
	admin.POST("/cache/refresh", deps.Admin.Refresh)
	admin.DELETE("/cache/clear", deps.Admin.Clear)
	admin.POST("/documents", deps.Admin.Ingest)
	admin.POST("/documents/reembed", deps.Admin.ReEmbed)
}
