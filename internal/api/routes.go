package api

import (
	"log"

	"github.com/gin-gonic/gin"
	"github.com/playmatatu/billiards/internal/api/handlers"
	"github.com/playmatatu/billiards/internal/config"
	"github.com/playmatatu/billiards/internal/middleware"
)

// SetupRoutes configures all API routes
func SetupRoutes(router *gin.Engine, cfg *config.Config) {
	router.Use(middleware.CORSMiddleware(cfg))

	if cfg.Environment != "production" {
		router.Use(func(c *gin.Context) {
			c.Header("Cache-Control", "no-store, no-cache, must-revalidate, max-age=0")
			c.Header("Pragma", "no-cache")
			c.Header("Expires", "0")
			c.Next()
		})
		log.Println("[DEV MODE] no-cache headers enabled for all routes")
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/health", handlers.HealthCheck)
		v1.GET("/config", handlers.GetConfig(cfg))

		tables := v1.Group("/tables")
		{
			tables.POST("", handlers.CreateTable(cfg))
			tables.GET("/:id", handlers.GetTableState())
			tables.GET("/:id/plan", handlers.PreviewPlan())
			tables.GET("/:id/history", handlers.GetTableHistory())
			tables.GET("/:id/ws", middleware.WebSocketCORSCheck(cfg), handlers.HandleTableWebSocket())

			owned := tables.Group("/:id", handlers.RequireTableToken(cfg))
			{
				owned.POST("/shot", handlers.TakeShot())
				owned.POST("/reset", handlers.ResetTable())
				owned.POST("/computer", handlers.ComputerShot(cfg))
			}
		}
	}
}
