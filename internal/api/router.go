package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/beobridge/halo-bridge-go/internal/api/handlers"
	"github.com/beobridge/halo-bridge-go/internal/api/middleware"
	"github.com/beobridge/halo-bridge-go/internal/config"
)

// NewRouter assembles the diagnostics and management API.
func NewRouter(cfg *config.Config, h *handlers.Handlers, logger *logrus.Logger) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	router := gin.New()
	router.Use(middleware.ErrorHandlingMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.CORSMiddleware())

	router.GET("/health", h.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", h.Status)
		v1.GET("/configuration", h.GetConfiguration)
		v1.POST("/configuration", h.SetConfiguration)
		v1.POST("/notification", h.PostNotification)
		v1.POST("/displaypage", h.PostDisplayPage)

		v1.GET("/bindings", h.ListBindings)
		v1.PUT("/bindings/:button_id", h.PutBinding)
		v1.DELETE("/bindings/:button_id", h.DeleteBinding)
	}

	return router
}
